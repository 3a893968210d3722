package db

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/vidrag/internal/graph"
	"github.com/raphaelgruber/vidrag/internal/models"
)

var _ graph.Store = (*Client)(nil)

// pruneOrphans removes entity and topic nodes without incoming edges.
const pruneOrphans = `
		DELETE entity WHERE array::len(<-mentions) = 0;
		DELETE topic WHERE array::len(<-covers) = 0;
`

type graphLabel struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// LinkVideo replaces the mentions and covers edges of a video. The segments
// must already be stored.
func (c *Client) LinkVideo(ctx context.Context, videoID string, segments []models.VideoSegment) error {
	labels := func(values []string) []graphLabel {
		return lo.Map(models.NormalizeSet(values), func(v string, _ int) graphLabel {
			return graphLabel{Name: v, Key: models.NormalizeKey(v)}
		})
	}
	rows := lo.Map(segments, func(s models.VideoSegment, _ int) map[string]any {
		return map[string]any{
			"id":       s.SegmentID,
			"entities": labels(s.Entities),
			"topics":   labels(s.Topics),
		}
	})

	_, err := surrealdb.Query[any](ctx, c.db, `
		BEGIN TRANSACTION;
		DELETE mentions WHERE video_id = $video;
		DELETE covers WHERE video_id = $video;
		FOR $s IN $segments {
			FOR $e IN $s.entities {
				UPSERT type::record("entity", $e.key) SET name = $e.name;
				RELATE type::record("segment", $s.id)->mentions->type::record("entity", $e.key) SET video_id = $video;
			};
			FOR $t IN $s.topics {
				UPSERT type::record("topic", $t.key) SET name = $t.name;
				RELATE type::record("segment", $s.id)->covers->type::record("topic", $t.key) SET video_id = $video;
			};
		};
		`+pruneOrphans+`
		COMMIT TRANSACTION;
	`, map[string]any{"video": videoID, "segments": rows})
	if err != nil {
		return fmt.Errorf("link video %s: %w", videoID, wrapQueryError(err))
	}
	return nil
}

// UnlinkVideo removes the edges of a video and any node left without edges.
func (c *Client) UnlinkVideo(ctx context.Context, videoID string) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		BEGIN TRANSACTION;
		DELETE mentions WHERE video_id = $video;
		DELETE covers WHERE video_id = $video;
		`+pruneOrphans+`
		COMMIT TRANSACTION;
	`, map[string]any{"video": videoID})
	if err != nil {
		return fmt.Errorf("unlink video %s: %w", videoID, wrapQueryError(err))
	}
	return nil
}

// Entities counts segments and distinct videos mentioning each entity.
func (c *Client) Entities(ctx context.Context) ([]graph.EntityCount, error) {
	results, err := surrealdb.Query[[]graph.EntityCount](ctx, c.db, `
		SELECT
			name,
			record::id(id) AS key,
			array::len(<-mentions) AS segments,
			array::len(array::distinct(<-mentions.video_id)) AS videos
		FROM entity
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []graph.EntityCount{}, nil
	}
	out := (*results)[0].Result
	if out == nil {
		out = []graph.EntityCount{}
	}
	graph.SortEntities(out)
	return out, nil
}

type graphRows struct {
	Entities []graphLabel `json:"entities"`
	Topics   []graphLabel `json:"topics"`
	Segments []struct {
		Key       string  `json:"key"`
		VideoID   string  `json:"video_id"`
		StartTime float64 `json:"start_time"`
	} `json:"segments"`
	Mentions []graphEdgeRow `json:"mentions"`
	Covers   []graphEdgeRow `json:"covers"`
}

type graphEdgeRow struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// Graph exports every node and edge.
func (c *Client) Graph(ctx context.Context) (graph.Graph, error) {
	results, err := surrealdb.Query[graphRows](ctx, c.db, `
		RETURN {
			entities: (SELECT name, record::id(id) AS key FROM entity),
			topics: (SELECT name, record::id(id) AS key FROM topic),
			segments: (SELECT record::id(id) AS key, video_id, start_time FROM segment
				WHERE array::len(->mentions) > 0 OR array::len(->covers) > 0),
			mentions: (SELECT record::id(in) AS src, record::id(out) AS dst FROM mentions),
			covers: (SELECT record::id(in) AS src, record::id(out) AS dst FROM covers)
		};
	`, nil)
	if err != nil {
		return graph.Graph{}, fmt.Errorf("export graph: %w", wrapQueryError(err))
	}

	var g graph.Graph
	if results == nil || len(*results) == 0 {
		g.Normalize()
		return g, nil
	}
	rows := (*results)[0].Result

	for _, e := range rows.Entities {
		g.Nodes = append(g.Nodes, graph.Node{ID: graph.NodeID(graph.KindEntity, e.Key), Kind: graph.KindEntity, Label: e.Name})
	}
	for _, t := range rows.Topics {
		g.Nodes = append(g.Nodes, graph.Node{ID: graph.NodeID(graph.KindTopic, t.Key), Kind: graph.KindTopic, Label: t.Name})
	}
	for _, s := range rows.Segments {
		g.Nodes = append(g.Nodes, graph.Node{
			ID:    graph.NodeID(graph.KindSegment, s.Key),
			Kind:  graph.KindSegment,
			Label: graph.SegmentLabel(models.VideoSegment{VideoID: s.VideoID, StartTime: s.StartTime}),
		})
	}
	for _, e := range rows.Mentions {
		g.Edges = append(g.Edges, graph.Edge{
			From:  graph.NodeID(graph.KindSegment, e.Src),
			To:    graph.NodeID(graph.KindEntity, e.Dst),
			Label: graph.EdgeMentions,
		})
	}
	for _, e := range rows.Covers {
		g.Edges = append(g.Edges, graph.Edge{
			From:  graph.NodeID(graph.KindSegment, e.Src),
			To:    graph.NodeID(graph.KindTopic, e.Dst),
			Label: graph.EdgeCovers,
		})
	}
	g.Normalize()
	return g, nil
}
