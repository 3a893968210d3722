package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/vidrag/internal/models"
	"github.com/raphaelgruber/vidrag/internal/store"
)

var _ store.Store = (*Client)(nil)

// segmentRecord is the stored shape of a segment.
type segmentRecord struct {
	ID        surrealmodels.RecordID `json:"id"`
	VideoID   string                 `json:"video_id"`
	StartTime float64                `json:"start_time"`
	EndTime   float64                `json:"end_time"`
	Text      string                 `json:"text"`
	Entities  []string               `json:"entities"`
	Topics    []string               `json:"topics"`
	Embedding []float32              `json:"embedding,omitempty"`
	Degraded  bool                   `json:"degraded"`
	Title     string                 `json:"title,omitempty"`
	Source    string                 `json:"source,omitempty"`
	Score     float64                `json:"score,omitempty"`
}

func (r segmentRecord) segment() (models.VideoSegment, error) {
	id, err := models.RecordIDString(r.ID)
	if err != nil {
		return models.VideoSegment{}, err
	}
	return models.VideoSegment{
		SegmentID: id,
		VideoID:   r.VideoID,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		Text:      r.Text,
		Entities:  lo.Ternary(r.Entities == nil, []string{}, r.Entities),
		Topics:    lo.Ternary(r.Topics == nil, []string{}, r.Topics),
		Embedding: r.Embedding,
		Degraded:  r.Degraded,
		Title:     r.Title,
		Source:    r.Source,
	}, nil
}

func toSegments(records []segmentRecord) ([]models.VideoSegment, error) {
	out := make([]models.VideoSegment, 0, len(records))
	for _, r := range records {
		s, err := r.segment()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Upsert writes all segments in one transaction so a video is never half written.
func (c *Client) Upsert(ctx context.Context, segments []models.VideoSegment) error {
	if len(segments) == 0 {
		return nil
	}

	rows := lo.Map(segments, func(s models.VideoSegment, _ int) map[string]any {
		return map[string]any{
			"id":          s.SegmentID,
			"video_id":    s.VideoID,
			"start_time":  s.StartTime,
			"end_time":    s.EndTime,
			"text":        s.Text,
			"entities":    lo.Ternary(s.Entities == nil, []string{}, s.Entities),
			"topics":      lo.Ternary(s.Topics == nil, []string{}, s.Topics),
			"entity_keys": models.Keys(s.Entities),
			"topic_keys":  models.Keys(s.Topics),
			"embedding":   s.Embedding,
			"degraded":    s.Degraded,
			"title":       s.Title,
			"source":      s.Source,
		}
	})

	_, err := surrealdb.Query[any](ctx, c.db, `
		BEGIN TRANSACTION;
		FOR $s IN $segments {
			UPSERT type::record("segment", $s.id) CONTENT {
				video_id: $s.video_id,
				start_time: <float>$s.start_time,
				end_time: <float>$s.end_time,
				text: $s.text,
				entities: $s.entities,
				topics: $s.topics,
				entity_keys: $s.entity_keys,
				topic_keys: $s.topic_keys,
				embedding: IF $s.degraded OR $s.embedding = NONE OR $s.embedding = NULL THEN NONE ELSE $s.embedding END,
				degraded: $s.degraded,
				title: $s.title,
				source: $s.source,
				updated: time::now()
			};
		};
		COMMIT TRANSACTION;
	`, map[string]any{"segments": rows})
	if err != nil {
		return fmt.Errorf("upsert segments: %w", wrapQueryError(err))
	}
	return nil
}

// PruneVideo deletes stale segments of a re-ingested video.
func (c *Client) PruneVideo(ctx context.Context, videoID string, keep []string) (int, error) {
	if keep == nil {
		keep = []string{}
	}
	results, err := surrealdb.Query[[]segmentRecord](ctx, c.db, `
		DELETE segment
		WHERE video_id = $video AND record::id(id) NOTINSIDE $keep
		RETURN BEFORE
	`, map[string]any{"video": videoID, "keep": keep})
	if err != nil {
		return 0, fmt.Errorf("prune video: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

// SimilaritySearch runs an HNSW nearest-neighbour query.
func (c *Client) SimilaritySearch(ctx context.Context, vector []float32, topN int) ([]store.Hit, error) {
	if topN <= 0 {
		return []store.Hit{}, nil
	}

	// KNN with ef=40 candidates per HNSW layer.
	sql := fmt.Sprintf(`
		SELECT *, vector::similarity::cosine(embedding, $emb) AS score
		FROM segment
		WHERE embedding <|%d,40|> $emb
		ORDER BY score DESC
	`, topN)

	results, err := surrealdb.Query[[]segmentRecord](ctx, c.db, sql, map[string]any{"emb": vector})
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []store.Hit{}, nil
	}

	hits := make([]store.Hit, 0, len((*results)[0].Result))
	for _, r := range (*results)[0].Result {
		s, err := r.segment()
		if err != nil {
			return nil, fmt.Errorf("similarity search: %w", err)
		}
		hits = append(hits, store.Hit{Segment: s, Score: r.Score})
	}
	return hits, nil
}

// GetByVideo returns every segment of a video ordered by start time.
func (c *Client) GetByVideo(ctx context.Context, videoID string) ([]models.VideoSegment, error) {
	return c.Filter(ctx, store.Filter{VideoIDs: []string{videoID}})
}

// Get retrieves one segment by id.
func (c *Client) Get(ctx context.Context, segmentID string) (models.VideoSegment, error) {
	results, err := surrealdb.Query[[]segmentRecord](ctx, c.db, `
		SELECT * FROM type::record("segment", $id)
	`, map[string]any{"id": segmentID})
	if err != nil {
		return models.VideoSegment{}, fmt.Errorf("get segment: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return models.VideoSegment{}, ErrNotFound
	}
	return (*results)[0].Result[0].segment()
}

// Filter lists segments matching f. Entity and topic filters compare the
// lowercase key arrays.
func (c *Client) Filter(ctx context.Context, f store.Filter) ([]models.VideoSegment, error) {
	var clauses []string
	vars := map[string]any{}

	if len(f.VideoIDs) > 0 {
		clauses = append(clauses, "video_id INSIDE $videos")
		vars["videos"] = f.VideoIDs
	}
	if f.Entity != "" {
		clauses = append(clauses, "entity_keys CONTAINS $entity")
		vars["entity"] = models.NormalizeKey(f.Entity)
	}
	if f.Topic != "" {
		clauses = append(clauses, "topic_keys CONTAINS $topic")
		vars["topic"] = models.NormalizeKey(f.Topic)
	}
	if f.TimeRange != nil {
		clauses = append(clauses, "start_time <= $range_end AND end_time >= $range_start")
		vars["range_start"] = f.TimeRange.Start
		vars["range_end"] = f.TimeRange.End
	}

	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	limit := ""
	if f.Limit > 0 {
		limit = "LIMIT $limit"
		vars["limit"] = f.Limit
	}

	sql := fmt.Sprintf(`
		SELECT * FROM segment %s ORDER BY start_time ASC, video_id ASC %s
	`, where, limit)

	results, err := surrealdb.Query[[]segmentRecord](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("filter segments: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []models.VideoSegment{}, nil
	}
	segs, err := toSegments((*results)[0].Result)
	if err != nil {
		return nil, fmt.Errorf("filter segments: %w", err)
	}
	return segs, nil
}

// Stats counts stored videos, segments and distinct annotation keys.
func (c *Client) Stats(ctx context.Context) (store.Stats, error) {
	results, err := surrealdb.Query[store.Stats](ctx, c.db, `
		LET $rows = SELECT video_id, entity_keys, topic_keys, degraded FROM segment;
		RETURN {
			segments: array::len($rows),
			videos: array::len(array::distinct($rows.video_id)),
			entities: array::len(array::distinct(array::flatten($rows.entity_keys))),
			topics: array::len(array::distinct(array::flatten($rows.topic_keys))),
			degraded: array::len($rows[WHERE degraded = true])
		};
	`, nil)
	if err != nil {
		return store.Stats{}, fmt.Errorf("segment stats: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return store.Stats{}, nil
	}
	return (*results)[len(*results)-1].Result, nil
}
