package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/raphaelgruber/vidrag/internal/embedding"
	"github.com/raphaelgruber/vidrag/internal/metrics"
	"github.com/raphaelgruber/vidrag/internal/models"
	"github.com/raphaelgruber/vidrag/internal/store"
)

// neutralConfidence is assigned when ranking without query text.
const neutralConfidence = 1.0

// SearchQuery combines optional semantic text with structural filters.
type SearchQuery struct {
	Query      string
	VideoIDs   []string
	Entity     string
	Topic      string
	TimeRange  *models.TimeRange
	MaxResults int
}

// EntitySearchOptions narrows SearchByEntity and SearchByTopic.
type EntitySearchOptions struct {
	Query      string
	VideoIDs   []string
	TimeRange  *models.TimeRange
	MaxResults int
}

// SearchResult is a ranked segment.
type SearchResult struct {
	SegmentID  string   `json:"segment_id" yaml:"segment_id"`
	VideoID    string   `json:"video_id" yaml:"video_id"`
	Title      string   `json:"title,omitempty" yaml:"title,omitempty"`
	StartTime  float64  `json:"start_time" yaml:"start_time"`
	EndTime    float64  `json:"end_time" yaml:"end_time"`
	Text       string   `json:"text" yaml:"text"`
	Entities   []string `json:"entities" yaml:"entities"`
	Topics     []string `json:"topics" yaml:"topics"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
	Degraded   bool     `json:"degraded,omitempty" yaml:"degraded,omitempty"`
	Source     string   `json:"source,omitempty" yaml:"source,omitempty"`
	// URL links to the segment start when the source supports deep links.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// SearchConfig tunes ranking.
type SearchConfig struct {
	DefaultMaxResults int
	// Oversample multiplies MaxResults when fetching similarity candidates,
	// leaving room for post-filtering.
	Oversample int
}

// SearchService answers temporal segment queries. It only reads from the store.
type SearchService struct {
	store    store.Store
	embedder embedding.Embedder
	metrics  *metrics.Collector
	cfg      SearchConfig
}

// NewSearchService creates a search service. mc may be nil.
func NewSearchService(st store.Store, emb embedding.Embedder, cfg SearchConfig, mc *metrics.Collector) *SearchService {
	if cfg.DefaultMaxResults <= 0 {
		cfg.DefaultMaxResults = 10
	}
	if cfg.Oversample <= 0 {
		cfg.Oversample = 4
	}
	return &SearchService{store: st, embedder: emb, metrics: mc, cfg: cfg}
}

// candidate carries the raw similarity used for ranking. confidence is its
// order-preserving mapping onto [0, 1].
type candidate struct {
	segment    models.VideoSegment
	score      float64
	confidence float64
}

// Search ranks segments by similarity to q.Query, or neutrally when no query
// text is given, after applying the video, entity, topic and time filters.
func (s *SearchService) Search(ctx context.Context, q SearchQuery) (results []SearchResult, err error) {
	start := time.Now()
	defer func() { s.metrics.Observe(metrics.OpSearch, start, err) }()

	if q.MaxResults <= 0 {
		q.MaxResults = s.cfg.DefaultMaxResults
	}
	if q.TimeRange != nil && !q.TimeRange.Valid() {
		return nil, fmt.Errorf("%w: time range [%g, %g]", ErrInvalidQuery, q.TimeRange.Start, q.TimeRange.End)
	}
	q.Query = strings.TrimSpace(q.Query)
	q.Entity = strings.TrimSpace(q.Entity)
	q.Topic = strings.TrimSpace(q.Topic)

	var candidates []candidate
	if q.Query != "" {
		candidates, err = s.similarityCandidates(ctx, q)
		if err != nil {
			return nil, err
		}
	}
	if candidates == nil {
		candidates, err = s.filterCandidates(ctx, q)
		if err != nil {
			return nil, err
		}
	}

	candidates = applyFilters(candidates, q)
	candidates = lo.UniqBy(candidates, func(c candidate) string { return c.segment.SegmentID })
	rank(candidates)
	if len(candidates) > q.MaxResults {
		candidates = candidates[:q.MaxResults]
	}
	return lo.Map(candidates, func(c candidate, _ int) SearchResult { return toResult(c) }), nil
}

// similarityCandidates returns nil without error when the query embeds to a
// zero vector, which callers treat as no query text.
func (s *SearchService) similarityCandidates(ctx context.Context, q SearchQuery) ([]candidate, error) {
	vec, err := s.embedder.Embed(ctx, q.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrUnavailable, err)
	}
	if embedding.IsZero(vec) {
		return nil, nil
	}

	n := max(q.MaxResults*s.cfg.Oversample, q.MaxResults)
	start := time.Now()
	hits, err := s.store.SimilaritySearch(ctx, vec, n)
	s.metrics.Observe(metrics.OpStoreSearch, start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity search: %w", ErrUnavailable, err)
	}

	out := make([]candidate, 0, len(hits))
	for _, h := range hits {
		c := candidate{segment: h.Segment, score: h.Score, confidence: similarityConfidence(h.Score)}
		if h.Segment.Degraded {
			c.score, c.confidence = -1, 0
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *SearchService) filterCandidates(ctx context.Context, q SearchQuery) ([]candidate, error) {
	start := time.Now()
	segs, err := s.store.Filter(ctx, store.Filter{
		VideoIDs:  q.VideoIDs,
		Entity:    q.Entity,
		Topic:     q.Topic,
		TimeRange: q.TimeRange,
	})
	s.metrics.Observe(metrics.OpStoreSearch, start, err)
	if err != nil {
		return nil, fmt.Errorf("%w: filter segments: %w", ErrUnavailable, err)
	}
	return lo.Map(segs, func(seg models.VideoSegment, _ int) candidate {
		conf := lo.Ternary(seg.Degraded, 0.0, neutralConfidence)
		return candidate{segment: seg, score: conf, confidence: conf}
	}), nil
}

// similarityConfidence maps a cosine similarity in [-1, 1] onto [0, 1].
func similarityConfidence(score float64) float64 {
	return min(max((score+1)/2, 0), 1)
}

// applyFilters narrows candidates by video, then entity, then topic, then time range.
func applyFilters(cands []candidate, q SearchQuery) []candidate {
	if len(q.VideoIDs) > 0 {
		cands = lo.Filter(cands, func(c candidate, _ int) bool { return slices.Contains(q.VideoIDs, c.segment.VideoID) })
	}
	if q.Entity != "" {
		cands = lo.Filter(cands, func(c candidate, _ int) bool { return models.ContainsFold(c.segment.Entities, q.Entity) })
	}
	if q.Topic != "" {
		cands = lo.Filter(cands, func(c candidate, _ int) bool { return models.ContainsFold(c.segment.Topics, q.Topic) })
	}
	if q.TimeRange != nil {
		r := *q.TimeRange
		cands = lo.Filter(cands, func(c candidate, _ int) bool { return r.Intersects(c.segment.StartTime, c.segment.EndTime) })
	}
	return cands
}

// rank orders non-degraded segments first, then by similarity descending,
// start time ascending and video id ascending.
func rank(cands []candidate) {
	slices.SortStableFunc(cands, func(a, b candidate) int {
		if a.segment.Degraded != b.segment.Degraded {
			if a.segment.Degraded {
				return 1
			}
			return -1
		}
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.segment.StartTime, b.segment.StartTime); c != 0 {
			return c
		}
		return strings.Compare(a.segment.VideoID, b.segment.VideoID)
	})
}

func toResult(c candidate) SearchResult {
	s := c.segment
	return SearchResult{
		SegmentID:  s.SegmentID,
		VideoID:    s.VideoID,
		Title:      s.Title,
		StartTime:  s.StartTime,
		EndTime:    s.EndTime,
		Text:       s.Text,
		Entities:   lo.Ternary(s.Entities == nil, []string{}, s.Entities),
		Topics:     lo.Ternary(s.Topics == nil, []string{}, s.Topics),
		Confidence: c.confidence,
		Degraded:   s.Degraded,
		Source:     s.Source,
		URL:        SegmentURL(s.Source, s.VideoID, s.StartTime),
	}
}

// SegmentURL returns a deep link to start seconds into the video, or "" when
// the source has no public URL.
func SegmentURL(source, videoID string, start float64) string {
	if source != "youtube" || videoID == "" {
		return ""
	}
	return fmt.Sprintf("https://youtu.be/%s?t=%d", videoID, int(start))
}

// SearchByEntity returns segments mentioning entity, ranked by query
// similarity when a query is given.
func (s *SearchService) SearchByEntity(ctx context.Context, entity string, opts EntitySearchOptions) ([]SearchResult, error) {
	if strings.TrimSpace(entity) == "" {
		return nil, fmt.Errorf("%w: entity is required", ErrInvalidQuery)
	}
	return s.Search(ctx, SearchQuery{
		Query:      opts.Query,
		VideoIDs:   opts.VideoIDs,
		Entity:     entity,
		TimeRange:  opts.TimeRange,
		MaxResults: opts.MaxResults,
	})
}

// SearchByTopic returns segments tagged with topic, ranked by query
// similarity when a query is given.
func (s *SearchService) SearchByTopic(ctx context.Context, topic string, opts EntitySearchOptions) ([]SearchResult, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidQuery)
	}
	return s.Search(ctx, SearchQuery{
		Query:      opts.Query,
		VideoIDs:   opts.VideoIDs,
		Topic:      topic,
		TimeRange:  opts.TimeRange,
		MaxResults: opts.MaxResults,
	})
}

// VideoTimeline returns every segment of a video ordered by start time.
func (s *SearchService) VideoTimeline(ctx context.Context, videoID string) ([]SearchResult, error) {
	if strings.TrimSpace(videoID) == "" {
		return nil, fmt.Errorf("%w: video id is required", ErrInvalidQuery)
	}
	segs, err := s.store.GetByVideo(ctx, videoID)
	if err != nil {
		return nil, fmt.Errorf("%w: timeline: %w", ErrUnavailable, err)
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: video %s", ErrNotFound, videoID)
	}
	slices.SortStableFunc(segs, func(a, b models.VideoSegment) int { return cmp.Compare(a.StartTime, b.StartTime) })
	return lo.Map(segs, func(seg models.VideoSegment, _ int) SearchResult {
		return toResult(candidate{segment: seg, confidence: neutralConfidence})
	}), nil
}

// GetSegment looks up one segment by id.
func (s *SearchService) GetSegment(ctx context.Context, segmentID string) (SearchResult, error) {
	seg, err := s.store.Get(ctx, segmentID)
	if errors.Is(err, store.ErrNotFound) {
		return SearchResult{}, fmt.Errorf("%w: segment %s", ErrNotFound, segmentID)
	}
	if err != nil {
		return SearchResult{}, fmt.Errorf("%w: get segment: %w", ErrUnavailable, err)
	}
	return toResult(candidate{segment: seg, confidence: neutralConfidence}), nil
}

// Stats summarizes the stored corpus.
func (s *SearchService) Stats(ctx context.Context) (store.Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return store.Stats{}, fmt.Errorf("%w: stats: %w", ErrUnavailable, err)
	}
	return st, nil
}
