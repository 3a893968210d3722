// Package graph links segments to the entities and topics found in them.
//
// Segments point at entities through "mentions" edges and at topics through
// "covers" edges. Entity and topic nodes are keyed by their lowercase form and
// disappear once no segment points at them.
package graph

import (
	"cmp"
	"context"
	"slices"

	"github.com/raphaelgruber/vidrag/internal/models"
)

// Node and edge kinds.
const (
	KindSegment = "segment"
	KindEntity  = "entity"
	KindTopic   = "topic"

	EdgeMentions = "mentions"
	EdgeCovers   = "covers"
)

// Node is one vertex of the graph. ID is "<kind>:<key>".
type Node struct {
	ID    string `json:"id" yaml:"id"`
	Kind  string `json:"kind" yaml:"kind"`
	Label string `json:"label" yaml:"label"`
}

// Edge points from a segment node to an entity or topic node.
type Edge struct {
	From  string `json:"from" yaml:"from"`
	To    string `json:"to" yaml:"to"`
	Label string `json:"label" yaml:"label"`
}

// Graph is a full export of the stored graph.
type Graph struct {
	Nodes      []Node `json:"nodes" yaml:"nodes"`
	Edges      []Edge `json:"edges" yaml:"edges"`
	TotalNodes int    `json:"total_nodes" yaml:"total_nodes"`
	TotalEdges int    `json:"total_edges" yaml:"total_edges"`
}

// EntityCount summarizes how often an entity is mentioned.
type EntityCount struct {
	Name     string `json:"name" yaml:"name"`
	Key      string `json:"key" yaml:"key"`
	Segments int    `json:"segments" yaml:"segments"`
	Videos   int    `json:"videos" yaml:"videos"`
}

// Store persists the segment graph.
type Store interface {
	// LinkVideo replaces every edge of videoID with edges for segments.
	LinkVideo(ctx context.Context, videoID string, segments []models.VideoSegment) error

	// UnlinkVideo removes every edge of videoID and any node left without edges.
	UnlinkVideo(ctx context.Context, videoID string) error

	// Entities lists entities by descending segment count, then key.
	Entities(ctx context.Context) ([]EntityCount, error)

	// Graph exports all nodes and edges.
	Graph(ctx context.Context) (Graph, error)
}

// NodeID builds a node id from its kind and key.
func NodeID(kind, key string) string { return kind + ":" + key }

// SortEntities orders entities by descending segment count, then key.
func SortEntities(entities []EntityCount) {
	slices.SortFunc(entities, func(a, b EntityCount) int {
		if c := cmp.Compare(b.Segments, a.Segments); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
}

// Normalize sorts nodes by kind then id and edges by source, label and target,
// and fills the totals.
func (g *Graph) Normalize() {
	if g.Nodes == nil {
		g.Nodes = []Node{}
	}
	if g.Edges == nil {
		g.Edges = []Edge{}
	}
	slices.SortFunc(g.Nodes, func(a, b Node) int {
		if c := cmp.Compare(a.Kind, b.Kind); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	slices.SortFunc(g.Edges, func(a, b Edge) int {
		if c := cmp.Compare(a.From, b.From); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Label, b.Label); c != 0 {
			return c
		}
		return cmp.Compare(a.To, b.To)
	})
	g.TotalNodes = len(g.Nodes)
	g.TotalEdges = len(g.Edges)
}
