package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/vidrag/internal/embedding"
	"github.com/raphaelgruber/vidrag/internal/extract"
	"github.com/raphaelgruber/vidrag/internal/graph"
	"github.com/raphaelgruber/vidrag/internal/metrics"
	"github.com/raphaelgruber/vidrag/internal/models"
	"github.com/raphaelgruber/vidrag/internal/store"
)

const testDim = 64

// flakyEmbedder fails for texts containing failOn.
type flakyEmbedder struct {
	*embedding.HashEmbedder
	failOn string
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, errors.New("embedding service unavailable")
	}
	return f.HashEmbedder.Embed(ctx, text)
}

// funcExtractor adapts a function to extract.Extractor.
type funcExtractor func(ctx context.Context, text string) (extract.Annotations, error)

func (f funcExtractor) Extract(ctx context.Context, text string) (extract.Annotations, error) {
	return f(ctx, text)
}

// failingStore rejects upserts.
type failingStore struct {
	*store.Memory
}

func (failingStore) Upsert(context.Context, []models.VideoSegment) error {
	return errors.New("connection refused")
}

func example95s(videoID string) models.Transcript {
	return models.Transcript{
		VideoID:  videoID,
		Title:    "Rockets and cars",
		Source:   "youtube",
		Duration: 95,
		Entries: []models.TranscriptEntry{
			{Timestamp: 0, Text: "Elon Musk talks about the rocket."},
			{Timestamp: 10, Text: "SpaceX wants to reach orbit."},
			{Timestamp: 35, Text: "Tesla builds electric cars."},
			{Timestamp: 50, Text: "The battery is the hard part."},
			{Timestamp: 80, Text: "Thanks for watching."},
		},
	}
}

type pipelineFixture struct {
	registry *TaskRegistry
	store    *store.Memory
	pipeline *Pipeline
	metrics  *metrics.Collector
}

func newFixture(t *testing.T, st store.Store, emb embedding.Embedder, ex extract.Extractor, cfg PipelineConfig) pipelineFixture {
	t.Helper()
	mem, _ := st.(*store.Memory)
	reg := NewTaskRegistry()
	mc := metrics.NewCollector()
	return pipelineFixture{
		registry: reg,
		store:    mem,
		pipeline: NewPipeline(reg, st, emb, ex, cfg, mc),
		metrics:  mc,
	}
}

func defaultFixture(t *testing.T) pipelineFixture {
	return newFixture(t, store.NewMemory(), embedding.NewHashEmbedder(testDim), extract.NewHeuristic(), DefaultPipelineConfig())
}

func TestIngestProducesSegments(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)

	taskID, err := f.pipeline.Ingest(ctx, IngestRequest{Transcript: example95s("vid1"), Metadata: map[string]any{"requested_by": "test"}})
	require.NoError(t, err)
	f.pipeline.Wait()

	task, err := f.registry.Get(taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, task.Status, task.Error)
	assert.Contains(t, task.Progress, "3 segments")
	assert.Equal(t, "test", task.Metadata["requested_by"])
	assert.Equal(t, []string{"vid1"}, task.Metadata["video_ids"])

	segs, err := f.store.GetByVideo(ctx, "vid1")
	require.NoError(t, err)
	require.Len(t, segs, 3)

	bounds := [][2]float64{{0, 30}, {30, 60}, {60, 95}}
	for i, s := range segs {
		assert.Equal(t, bounds[i][0], s.StartTime)
		assert.Equal(t, bounds[i][1], s.EndTime)
		assert.Len(t, s.Embedding, testDim)
		assert.False(t, s.Degraded)
		assert.Equal(t, "Rockets and cars", s.Title)
		assert.NotNil(t, s.Entities)
		assert.NotNil(t, s.Topics)
	}
	assert.Equal(t, "Elon Musk talks about the rocket. SpaceX wants to reach orbit.", segs[0].Text)
	assert.Contains(t, segs[0].Entities, "Elon Musk")
	assert.Contains(t, segs[0].Topics, "space")

	result, ok := f.pipeline.Result(taskID)
	require.True(t, ok)
	assert.Equal(t, IngestResult{Videos: 1, Segments: 3}, result)

	snap := f.metrics.Snapshot()
	require.NotNil(t, snap.Embedding)
	assert.Equal(t, int64(3), snap.Embedding.Count)
	require.NotNil(t, snap.StoreUpsert)
	assert.Equal(t, int64(1), snap.StoreUpsert.Count)
}

func TestIngestRejectsInvalidTranscriptWithoutTask(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)

	tests := []struct {
		name string
		tr   models.Transcript
	}{
		{name: "empty", tr: models.Transcript{VideoID: "v"}},
		{name: "missing video id", tr: models.Transcript{Entries: []models.TranscriptEntry{{Timestamp: 0, Text: "hi"}}}},
		{name: "decreasing timestamps", tr: models.Transcript{VideoID: "v", Entries: []models.TranscriptEntry{
			{Timestamp: 10, Text: "b"}, {Timestamp: 5, Text: "a"},
		}}},
		{name: "negative timestamp", tr: models.Transcript{VideoID: "v", Entries: []models.TranscriptEntry{{Timestamp: -1, Text: "a"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.pipeline.Ingest(ctx, IngestRequest{Transcript: tt.tr})
			assert.ErrorIs(t, err, ErrInvalidTranscript)
		})
	}
	assert.Empty(t, f.registry.List(ListOptions{}))
}

func TestIngestDegradesFailedEmbeddings(t *testing.T) {
	ctx := context.Background()
	emb := &flakyEmbedder{HashEmbedder: embedding.NewHashEmbedder(testDim), failOn: "Tesla"}
	f := newFixture(t, store.NewMemory(), emb, extract.NewHeuristic(), DefaultPipelineConfig())

	taskID, err := f.pipeline.Ingest(ctx, IngestRequest{Transcript: example95s("vid1")})
	require.NoError(t, err)
	f.pipeline.Wait()

	task, err := f.registry.Get(taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, task.Status)

	segs, err := f.store.GetByVideo(ctx, "vid1")
	require.NoError(t, err)
	require.Len(t, segs, 3)
	assert.True(t, segs[1].Degraded)
	assert.True(t, embedding.IsZero(segs[1].Embedding))
	assert.Len(t, segs[1].Embedding, testDim)
	assert.False(t, segs[0].Degraded)

	result, _ := f.pipeline.Result(taskID)
	assert.Equal(t, 1, result.Degraded)
}

func TestIngestKeepsSegmentsWhenExtractionFails(t *testing.T) {
	ctx := context.Background()
	ex := funcExtractor(func(context.Context, string) (extract.Annotations, error) {
		return extract.Annotations{}, errors.New("model overloaded")
	})
	f := newFixture(t, store.NewMemory(), embedding.NewHashEmbedder(testDim), ex, DefaultPipelineConfig())

	taskID, err := f.pipeline.Ingest(ctx, IngestRequest{Transcript: example95s("vid1")})
	require.NoError(t, err)
	f.pipeline.Wait()

	task, _ := f.registry.Get(taskID)
	assert.Equal(t, models.TaskCompleted, task.Status)

	segs, err := f.store.GetByVideo(ctx, "vid1")
	require.NoError(t, err)
	require.Len(t, segs, 3)
	for _, s := range segs {
		assert.Equal(t, []string{}, s.Entities)
		assert.Equal(t, []string{}, s.Topics)
	}
	result, _ := f.pipeline.Result(taskID)
	assert.Equal(t, 3, result.FailedExtractions)
}

func TestIngestFailsWhenStoreRejectsWrite(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	f := newFixture(t, failingStore{Memory: mem}, embedding.NewHashEmbedder(testDim), extract.NewHeuristic(), DefaultPipelineConfig())

	taskID, err := f.pipeline.Ingest(ctx, IngestRequest{Transcript: example95s("vid1")})
	require.NoError(t, err)
	f.pipeline.Wait()

	task, err := f.registry.Get(taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, task.Status)
	assert.Contains(t, task.Error, "connection refused")

	segs, err := mem.GetByVideo(ctx, "vid1")
	require.NoError(t, err)
	assert.Empty(t, segs)
}

func TestIngestPanicFailsTask(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		emb  embedding.Embedder
		ex   extract.Extractor
	}{
		{
			name: "extractor panics",
			emb:  embedding.NewHashEmbedder(testDim),
			ex: funcExtractor(func(context.Context, string) (extract.Annotations, error) {
				panic("extractor bug")
			}),
		},
		{
			name: "embedder panics",
			emb:  panicDimEmbedder{},
			ex:   extract.NewHeuristic(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, store.NewMemory(), tt.emb, tt.ex, DefaultPipelineConfig())
			taskID, err := f.pipeline.Ingest(ctx, IngestRequest{Transcript: example95s("vid1")})
			require.NoError(t, err)
			f.pipeline.Wait()

			task, err := f.registry.Get(taskID)
			require.NoError(t, err)
			assert.Equal(t, models.TaskFailed, task.Status)
			assert.Contains(t, task.Error, "internal panic")

			segs, _ := f.store.GetByVideo(ctx, "vid1")
			assert.Empty(t, segs)
		})
	}
}

// panicDimEmbedder fails every embed and panics when asked for its dimension.
type panicDimEmbedder struct{}

func (panicDimEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("down")
}

func (panicDimEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("down")
}

func (panicDimEmbedder) Model() string { return "panic" }

func (panicDimEmbedder) Dimension() int { panic("dimension unknown") }

func TestReingestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)

	for range 2 {
		_, err := f.pipeline.Ingest(ctx, IngestRequest{Transcript: example95s("vid1")})
		require.NoError(t, err)
		f.pipeline.Wait()
	}

	segs, err := f.store.GetByVideo(ctx, "vid1")
	require.NoError(t, err)
	assert.Len(t, segs, 3)
}

func TestReingestReplacesStaleSegments(t *testing.T) {
	ctx := context.Background()
	reg := NewTaskRegistry()
	mem := store.NewMemory()
	emb := embedding.NewHashEmbedder(testDim)

	coarse := NewPipeline(reg, mem, emb, extract.NewHeuristic(), PipelineConfig{SegmentDuration: 30}, nil)
	_, err := coarse.Ingest(ctx, IngestRequest{Transcript: example95s("vid1")})
	require.NoError(t, err)
	coarse.Wait()

	fine := NewPipeline(reg, mem, emb, extract.NewHeuristic(), PipelineConfig{SegmentDuration: 10}, nil)
	taskID, err := fine.Ingest(ctx, IngestRequest{Transcript: example95s("vid1")})
	require.NoError(t, err)
	fine.Wait()

	segs, err := mem.GetByVideo(ctx, "vid1")
	require.NoError(t, err)
	require.Len(t, segs, 5)
	for i := 1; i < len(segs); i++ {
		assert.Equal(t, segs[i-1].EndTime, segs[i].StartTime, "segments stay contiguous")
	}

	result, _ := fine.Result(taskID)
	assert.Equal(t, 3, result.Pruned)
}

func TestIngestBatchFailsOnFirstFatalVideo(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	st := &failOnVideoStore{Memory: mem, videoID: "bad"}
	f := newFixture(t, st, embedding.NewHashEmbedder(testDim), extract.NewHeuristic(), DefaultPipelineConfig())

	taskID, err := f.pipeline.IngestBatch(ctx, []IngestRequest{
		{Transcript: example95s("good")},
		{Transcript: example95s("bad")},
		{Transcript: example95s("never")},
	}, nil)
	require.NoError(t, err)
	f.pipeline.Wait()

	task, err := f.registry.Get(taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskFailed, task.Status)
	assert.Contains(t, task.Error, "video bad")

	good, _ := mem.GetByVideo(ctx, "good")
	assert.Len(t, good, 3)
	never, _ := mem.GetByVideo(ctx, "never")
	assert.Empty(t, never)
}

type failOnVideoStore struct {
	*store.Memory
	videoID string
}

func (s *failOnVideoStore) Upsert(ctx context.Context, segs []models.VideoSegment) error {
	if len(segs) > 0 && segs[0].VideoID == s.videoID {
		return errors.New("write rejected")
	}
	return s.Memory.Upsert(ctx, segs)
}

func TestCancelledTaskNeverRuns(t *testing.T) {
	ctx := context.Background()

	release := make(chan struct{})
	var once sync.Once
	started := make(chan struct{})
	ex := funcExtractor(func(ctx context.Context, text string) (extract.Annotations, error) {
		once.Do(func() { close(started) })
		<-release
		return extract.Annotations{}, nil
	})

	cfg := DefaultPipelineConfig()
	cfg.MaxConcurrentRuns = 1
	cfg.CallTimeout = 0
	f := newFixture(t, store.NewMemory(), embedding.NewHashEmbedder(testDim), ex, cfg)

	first, err := f.pipeline.Ingest(ctx, IngestRequest{Transcript: example95s("first")})
	require.NoError(t, err)
	<-started

	second, err := f.pipeline.Ingest(ctx, IngestRequest{Transcript: example95s("second")})
	require.NoError(t, err)
	require.NoError(t, f.registry.Cancel(ctx, second))

	close(release)
	f.pipeline.Wait()

	task, _ := f.registry.Get(first)
	assert.Equal(t, models.TaskCompleted, task.Status)
	task, _ = f.registry.Get(second)
	assert.Equal(t, models.TaskCancelled, task.Status)
	assert.Nil(t, task.StartedAt)

	segs, _ := f.store.GetByVideo(ctx, "second")
	assert.Empty(t, segs)
}

func TestConcurrentIngestion(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)

	ids := make([]string, 0, 6)
	for _, v := range []string{"a", "b", "c", "d", "e", "f"} {
		id, err := f.pipeline.Ingest(ctx, IngestRequest{Transcript: example95s(v)})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	f.pipeline.Wait()

	for _, id := range ids {
		task, err := f.registry.Get(id)
		require.NoError(t, err)
		assert.Equal(t, models.TaskCompleted, task.Status)
	}
	st, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, st.Videos)
	assert.Equal(t, 18, st.Segments)
}

func TestDeleteVideo(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)

	_, err := f.pipeline.Ingest(ctx, IngestRequest{Transcript: example95s("vid1")})
	require.NoError(t, err)
	_, err = f.pipeline.Ingest(ctx, IngestRequest{Transcript: example95s("vid2")})
	require.NoError(t, err)
	f.pipeline.Wait()

	removed, err := f.pipeline.DeleteVideo(ctx, "vid1")
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	segs, err := f.store.GetByVideo(ctx, "vid1")
	require.NoError(t, err)
	assert.Empty(t, segs)

	segs, err = f.store.GetByVideo(ctx, "vid2")
	require.NoError(t, err)
	assert.Len(t, segs, 3, "other videos are untouched")

	_, err = f.pipeline.DeleteVideo(ctx, "vid1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIngestLinksGraph(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)
	g := graph.NewMemory()
	f.pipeline.WithGraph(g)

	_, err := f.pipeline.Ingest(ctx, IngestRequest{Transcript: example95s("vid1")})
	require.NoError(t, err)
	_, err = f.pipeline.Ingest(ctx, IngestRequest{Transcript: example95s("vid2")})
	require.NoError(t, err)
	f.pipeline.Wait()

	entities, err := g.Entities(ctx)
	require.NoError(t, err)
	musk, ok := lo.Find(entities, func(e graph.EntityCount) bool { return e.Key == "elon musk" })
	require.True(t, ok)
	assert.Equal(t, 2, musk.Videos)

	_, err = f.pipeline.DeleteVideo(ctx, "vid1")
	require.NoError(t, err)

	entities, err = g.Entities(ctx)
	require.NoError(t, err)
	musk, ok = lo.Find(entities, func(e graph.EntityCount) bool { return e.Key == "elon musk" })
	require.True(t, ok)
	assert.Equal(t, 1, musk.Videos)
	assert.Equal(t, 1, musk.Segments)
}

// failingGraph rejects every link.
type failingGraph struct {
	*graph.Memory
}

func (failingGraph) LinkVideo(context.Context, string, []models.VideoSegment) error {
	return errors.New("graph unavailable")
}

func TestIngestSurvivesGraphFailure(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)
	f.pipeline.WithGraph(failingGraph{graph.NewMemory()})

	taskID, err := f.pipeline.Ingest(ctx, IngestRequest{Transcript: example95s("vid1")})
	require.NoError(t, err)
	f.pipeline.Wait()

	task, err := f.registry.Get(taskID)
	require.NoError(t, err)
	assert.Equal(t, models.TaskCompleted, task.Status, task.Error)

	segs, err := f.store.GetByVideo(ctx, "vid1")
	require.NoError(t, err)
	assert.Len(t, segs, 3)
}
