package graph

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/raphaelgruber/vidrag/internal/models"
)

type linkedSegment struct {
	id       string
	label    string
	entities []string // keys
	topics   []string // keys
}

// Memory is a Store kept in process memory.
type Memory struct {
	mu     sync.RWMutex
	videos map[string][]linkedSegment
	names  map[string]string // node id -> display name
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory graph.
func NewMemory() *Memory {
	return &Memory{
		videos: make(map[string][]linkedSegment),
		names:  make(map[string]string),
	}
}

// SegmentLabel names a segment node by video and start second.
func SegmentLabel(s models.VideoSegment) string {
	return fmt.Sprintf("%s@%.0fs", s.VideoID, s.StartTime)
}

// LinkVideo implements Store.
func (m *Memory) LinkVideo(ctx context.Context, videoID string, segments []models.VideoSegment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	linked := make([]linkedSegment, 0, len(segments))
	for _, s := range segments {
		ls := linkedSegment{id: s.SegmentID, label: SegmentLabel(s)}
		for _, e := range models.NormalizeSet(s.Entities) {
			key := models.NormalizeKey(e)
			m.names[NodeID(KindEntity, key)] = e
			ls.entities = append(ls.entities, key)
		}
		for _, t := range models.NormalizeSet(s.Topics) {
			key := models.NormalizeKey(t)
			m.names[NodeID(KindTopic, key)] = t
			ls.topics = append(ls.topics, key)
		}
		linked = append(linked, ls)
	}
	m.videos[videoID] = linked
	m.dropOrphans()
	return nil
}

// UnlinkVideo implements Store.
func (m *Memory) UnlinkVideo(ctx context.Context, videoID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.videos, videoID)
	m.dropOrphans()
	return nil
}

// dropOrphans forgets names of nodes no segment points at. Caller holds mu.
func (m *Memory) dropOrphans() {
	used := map[string]struct{}{}
	for _, segs := range m.videos {
		for _, s := range segs {
			for _, k := range s.entities {
				used[NodeID(KindEntity, k)] = struct{}{}
			}
			for _, k := range s.topics {
				used[NodeID(KindTopic, k)] = struct{}{}
			}
		}
	}
	for id := range m.names {
		if _, ok := used[id]; !ok {
			delete(m.names, id)
		}
	}
}

// Entities implements Store.
func (m *Memory) Entities(ctx context.Context) ([]EntityCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := map[string]*EntityCount{}
	videos := map[string]map[string]struct{}{}
	for videoID, segs := range m.videos {
		for _, s := range segs {
			for _, k := range s.entities {
				c, ok := counts[k]
				if !ok {
					c = &EntityCount{Name: m.names[NodeID(KindEntity, k)], Key: k}
					counts[k] = c
					videos[k] = map[string]struct{}{}
				}
				c.Segments++
				videos[k][videoID] = struct{}{}
			}
		}
	}

	out := make([]EntityCount, 0, len(counts))
	for k, c := range counts {
		c.Videos = len(videos[k])
		out = append(out, *c)
	}
	SortEntities(out)
	return out, nil
}

// Graph implements Store.
func (m *Memory) Graph(ctx context.Context) (Graph, error) {
	if err := ctx.Err(); err != nil {
		return Graph{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var g Graph
	for id, name := range m.names {
		kind := KindEntity
		if strings.HasPrefix(id, KindTopic+":") {
			kind = KindTopic
		}
		g.Nodes = append(g.Nodes, Node{ID: id, Kind: kind, Label: name})
	}
	for _, segs := range m.videos {
		for _, s := range segs {
			if len(s.entities) == 0 && len(s.topics) == 0 {
				continue
			}
			from := NodeID(KindSegment, s.id)
			g.Nodes = append(g.Nodes, Node{ID: from, Kind: KindSegment, Label: s.label})
			for _, k := range s.entities {
				g.Edges = append(g.Edges, Edge{From: from, To: NodeID(KindEntity, k), Label: EdgeMentions})
			}
			for _, k := range s.topics {
				g.Edges = append(g.Edges, Edge{From: from, To: NodeID(KindTopic, k), Label: EdgeCovers})
			}
		}
	}
	g.Normalize()
	return g, nil
}
