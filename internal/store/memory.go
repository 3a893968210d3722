package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/raphaelgruber/vidrag/internal/embedding"
	"github.com/raphaelgruber/vidrag/internal/models"
)

// Memory is a Store kept in process memory with brute-force cosine search.
type Memory struct {
	mu       sync.RWMutex
	segments map[string]models.VideoSegment
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{segments: make(map[string]models.VideoSegment)}
}

func cloneSegment(s models.VideoSegment) models.VideoSegment {
	s.Entities = slices.Clone(s.Entities)
	s.Topics = slices.Clone(s.Topics)
	s.Embedding = slices.Clone(s.Embedding)
	return s
}

// Upsert implements Store.
func (m *Memory) Upsert(ctx context.Context, segments []models.VideoSegment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range segments {
		m.segments[s.SegmentID] = cloneSegment(s)
	}
	return nil
}

// PruneVideo implements Store.
func (m *Memory) PruneVideo(ctx context.Context, videoID string, keep []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, s := range m.segments {
		if s.VideoID == videoID && !slices.Contains(keep, id) {
			delete(m.segments, id)
			removed++
		}
	}
	return removed, nil
}

// SimilaritySearch implements Store.
func (m *Memory) SimilaritySearch(ctx context.Context, vector []float32, topN int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topN <= 0 {
		return []Hit{}, nil
	}

	m.mu.RLock()
	hits := make([]Hit, 0, len(m.segments))
	for _, s := range m.segments {
		// Degraded and zero vectors are not indexed, as with HNSW over NONE.
		if s.Degraded || embedding.IsZero(s.Embedding) {
			continue
		}
		hits = append(hits, Hit{Segment: cloneSegment(s), Score: embedding.Cosine(vector, s.Embedding)})
	}
	m.mu.RUnlock()

	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Segment.SegmentID, b.Segment.SegmentID)
	})
	if len(hits) > topN {
		hits = hits[:topN]
	}
	return hits, nil
}

// GetByVideo implements Store.
func (m *Memory) GetByVideo(ctx context.Context, videoID string) ([]models.VideoSegment, error) {
	return m.Filter(ctx, Filter{VideoIDs: []string{videoID}})
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, segmentID string) (models.VideoSegment, error) {
	if err := ctx.Err(); err != nil {
		return models.VideoSegment{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.segments[segmentID]
	if !ok {
		return models.VideoSegment{}, ErrNotFound
	}
	return cloneSegment(s), nil
}

// Filter implements Store.
func (m *Memory) Filter(ctx context.Context, f Filter) ([]models.VideoSegment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]models.VideoSegment, 0)
	for _, s := range m.segments {
		if f.Matches(s) {
			out = append(out, cloneSegment(s))
		}
	}
	m.mu.RUnlock()

	SortByTimeline(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Stats implements Store.
func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	videos := map[string]struct{}{}
	entities := map[string]struct{}{}
	topics := map[string]struct{}{}
	st := Stats{Segments: len(m.segments)}
	for _, s := range m.segments {
		videos[s.VideoID] = struct{}{}
		for _, e := range s.Entities {
			entities[models.NormalizeKey(e)] = struct{}{}
		}
		for _, t := range s.Topics {
			topics[models.NormalizeKey(t)] = struct{}{}
		}
		if s.Degraded {
			st.Degraded++
		}
	}
	st.Videos = len(videos)
	st.Entities = len(entities)
	st.Topics = len(topics)
	return st, nil
}
