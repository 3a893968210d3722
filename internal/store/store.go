// Package store defines segment persistence and an in-memory implementation.
package store

import (
	"context"
	"errors"
	"slices"

	"github.com/raphaelgruber/vidrag/internal/models"
)

// ErrNotFound indicates the requested segment does not exist.
var ErrNotFound = errors.New("segment not found")

// Hit is a similarity search candidate.
type Hit struct {
	Segment models.VideoSegment
	// Score is the cosine similarity between the query and segment embeddings.
	Score float64
}

// Filter narrows segment listings. Zero values match everything.
type Filter struct {
	VideoIDs  []string
	Entity    string
	Topic     string
	TimeRange *models.TimeRange
	Limit     int
}

// Matches applies the filter to one segment. Entity and topic comparisons
// ignore case; the time range is a closed-interval intersection.
func (f Filter) Matches(s models.VideoSegment) bool {
	if len(f.VideoIDs) > 0 && !slices.Contains(f.VideoIDs, s.VideoID) {
		return false
	}
	if f.Entity != "" && !models.ContainsFold(s.Entities, f.Entity) {
		return false
	}
	if f.Topic != "" && !models.ContainsFold(s.Topics, f.Topic) {
		return false
	}
	if f.TimeRange != nil && !f.TimeRange.Intersects(s.StartTime, s.EndTime) {
		return false
	}
	return true
}

// Stats summarizes stored content.
type Stats struct {
	Videos   int `json:"videos"`
	Segments int `json:"segments"`
	Entities int `json:"entities"`
	Topics   int `json:"topics"`
	Degraded int `json:"degraded"`
}

// Store persists segments and answers similarity and key lookups.
// Upserts are idempotent by segment id.
type Store interface {
	// Upsert writes segments, replacing any with the same id.
	Upsert(ctx context.Context, segments []models.VideoSegment) error

	// PruneVideo deletes segments of videoID whose id is not in keep.
	PruneVideo(ctx context.Context, videoID string, keep []string) (int, error)

	// SimilaritySearch returns up to topN segments ordered by descending similarity.
	// Degraded segments are never returned.
	SimilaritySearch(ctx context.Context, vector []float32, topN int) ([]Hit, error)

	// GetByVideo returns all segments of a video ordered by start time.
	GetByVideo(ctx context.Context, videoID string) ([]models.VideoSegment, error)

	// Get returns one segment or ErrNotFound.
	Get(ctx context.Context, segmentID string) (models.VideoSegment, error)

	// Filter lists segments matching f ordered by start time then video id.
	Filter(ctx context.Context, f Filter) ([]models.VideoSegment, error)

	// Stats summarizes the stored corpus.
	Stats(ctx context.Context) (Stats, error)
}

// SortByTimeline orders segments by start time, then video id.
func SortByTimeline(segments []models.VideoSegment) {
	slices.SortStableFunc(segments, func(a, b models.VideoSegment) int {
		switch {
		case a.StartTime < b.StartTime:
			return -1
		case a.StartTime > b.StartTime:
			return 1
		}
		switch {
		case a.VideoID < b.VideoID:
			return -1
		case a.VideoID > b.VideoID:
			return 1
		}
		return 0
	})
}
