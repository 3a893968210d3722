package store

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/vidrag/internal/models"
)

func seg(videoID string, start, end float64, vec []float32, entities, topics []string) models.VideoSegment {
	return models.VideoSegment{
		SegmentID: models.SegmentID(videoID, start, end),
		VideoID:   videoID,
		StartTime: start,
		EndTime:   end,
		Text:      "text",
		Entities:  entities,
		Topics:    topics,
		Embedding: vec,
	}
}

func seeded(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	require.NoError(t, m.Upsert(context.Background(), []models.VideoSegment{
		seg("v1", 0, 30, []float32{1, 0}, []string{"Elon Musk"}, []string{"space"}),
		seg("v1", 30, 60, []float32{0, 1}, []string{"Tesla"}, []string{"electric cars"}),
		seg("v2", 0, 30, []float32{0.7, 0.7}, []string{"Elon Musk", "Tesla"}, []string{"business"}),
	}))
	return m
}

func TestMemorySimilaritySearch(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	hits, err := m.SimilaritySearch(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "v1", hits[0].Segment.VideoID)
	assert.Equal(t, 0.0, hits[0].Segment.StartTime)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, "v2", hits[1].Segment.VideoID)

	hits, err = m.SimilaritySearch(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemorySimilaritySearchSkipsDegraded(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var segs []models.VideoSegment
	for i := range 4 {
		d := seg("v1", float64(i*30), float64(i*30+30), []float32{0, 0}, nil, nil)
		d.Degraded = true
		segs = append(segs, d)
	}
	segs = append(segs, seg("v2", 0, 30, []float32{-0.2, 1}, nil, nil))
	require.NoError(t, m.Upsert(ctx, segs))

	hits, err := m.SimilaritySearch(ctx, []float32{1, 0}, 4)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "v2", hits[0].Segment.VideoID)
	assert.Less(t, hits[0].Score, 0.0)
}

func TestMemoryUpsertIsIdempotent(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	s := seg("v1", 0, 30, []float32{1, 0}, []string{"SpaceX"}, nil)
	require.NoError(t, m.Upsert(ctx, []models.VideoSegment{s}))
	require.NoError(t, m.Upsert(ctx, []models.VideoSegment{s}))

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Segments)

	got, err := m.Get(ctx, s.SegmentID)
	require.NoError(t, err)
	assert.Equal(t, []string{"SpaceX"}, got.Entities)
}

func TestMemoryFilter(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		filter Filter
		want   []string // video:start
	}{
		{name: "all", filter: Filter{}, want: []string{"v1:0", "v2:0", "v1:30"}},
		{name: "video", filter: Filter{VideoIDs: []string{"v2"}}, want: []string{"v2:0"}},
		{name: "entity case-insensitive", filter: Filter{Entity: "tesla"}, want: []string{"v2:0", "v1:30"}},
		{name: "topic", filter: Filter{Topic: "SPACE"}, want: []string{"v1:0"}},
		{name: "time range touching boundary", filter: Filter{TimeRange: &models.TimeRange{Start: 60, End: 90}}, want: []string{"v1:30"}},
		{name: "limit", filter: Filter{Limit: 1}, want: []string{"v1:0"}},
		{name: "no match", filter: Filter{Entity: "Bezos"}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs, err := m.Filter(ctx, tt.filter)
			require.NoError(t, err)
			got := make([]string, 0, len(segs))
			for _, s := range segs {
				got = append(got, s.VideoID+":"+map[float64]string{0: "0", 30: "30"}[s.StartTime])
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemoryPruneVideo(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	keep := models.SegmentID("v1", 0, 30)
	removed, err := m.PruneVideo(ctx, "v1", []string{keep})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	segs, err := m.GetByVideo(ctx, "v1")
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, keep, segs[0].SegmentID)

	// other videos untouched
	segs, err = m.GetByVideo(ctx, "v2")
	require.NoError(t, err)
	assert.Len(t, segs, 1)
}

func TestMemoryGetNotFound(t *testing.T) {
	_, err := NewMemory().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStats(t *testing.T) {
	st, err := seeded(t).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Videos: 2, Segments: 3, Entities: 2, Topics: 3}, st)
}

func TestMemoryReturnsCopies(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	segs, err := m.GetByVideo(ctx, "v2")
	require.NoError(t, err)
	segs[0].Entities[0] = "mutated"

	again, err := m.GetByVideo(ctx, "v2")
	require.NoError(t, err)
	assert.Equal(t, "Elon Musk", again[0].Entities[0])
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = m.Upsert(ctx, []models.VideoSegment{seg("v", float64(i), float64(i+1), []float32{1, 0}, nil, nil)})
		}()
		go func() {
			defer wg.Done()
			_, _ = m.SimilaritySearch(ctx, []float32{1, 0}, 5)
		}()
	}
	wg.Wait()

	st, err := m.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, st.Segments)
}
