// Package metrics collects in-memory timing and failure counts for the
// ingestion pipeline and search service.
package metrics

import (
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpEmbedding   = "embedding"
	OpExtraction  = "extraction"
	OpStoreUpsert = "store_upsert"
	OpStoreSearch = "store_search"
	OpSearch      = "search"
	OpIngestVideo = "ingest_video"
)

// OperationSnapshot summarizes the calls of one operation.
type OperationSnapshot struct {
	Count       int64   `json:"count" yaml:"count"`
	Failures    int64   `json:"failures" yaml:"failures"`
	TotalTimeMs int64   `json:"total_time_ms" yaml:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms" yaml:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms" yaml:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms" yaml:"max_time_ms"`
}

// Snapshot is the full set of statistics at a point in time. Operations
// without calls are nil.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds" yaml:"uptime_seconds"`
	Embedding     *OperationSnapshot `json:"embedding,omitempty" yaml:"embedding,omitempty"`
	Extraction    *OperationSnapshot `json:"extraction,omitempty" yaml:"extraction,omitempty"`
	StoreUpsert   *OperationSnapshot `json:"store_upsert,omitempty" yaml:"store_upsert,omitempty"`
	StoreSearch   *OperationSnapshot `json:"store_search,omitempty" yaml:"store_search,omitempty"`
	Search        *OperationSnapshot `json:"search,omitempty" yaml:"search,omitempty"`
	IngestVideo   *OperationSnapshot `json:"ingest_video,omitempty" yaml:"ingest_video,omitempty"`
}

type stat struct {
	count, failures int64
	total, min, max time.Duration
}

func (s *stat) add(d time.Duration, failed bool) {
	if s.count == 0 || d < s.min {
		s.min = d
	}
	s.max = max(s.max, d)
	s.count++
	s.total += d
	if failed {
		s.failures++
	}
}

func (s *stat) snapshot() *OperationSnapshot {
	if s == nil || s.count == 0 {
		return nil
	}
	return &OperationSnapshot{
		Count:       s.count,
		Failures:    s.failures,
		TotalTimeMs: s.total.Milliseconds(),
		AvgTimeMs:   float64(s.total.Milliseconds()) / float64(s.count),
		MinTimeMs:   s.min.Milliseconds(),
		MaxTimeMs:   s.max.Milliseconds(),
	}
}

// Collector aggregates runtime statistics per operation. It is safe for
// concurrent use and a nil *Collector discards everything.
type Collector struct {
	mu      sync.Mutex
	started time.Time
	stats   map[string]*stat
}

// NewCollector creates a collector whose uptime starts now.
func NewCollector() *Collector {
	return &Collector{started: time.Now(), stats: make(map[string]*stat)}
}

// RecordTiming records one successful call of op.
func (c *Collector) RecordTiming(op string, d time.Duration) { c.record(op, d, false) }

// RecordFailure records one failed call of op. Its duration counts toward the
// timing aggregates.
func (c *Collector) RecordFailure(op string, d time.Duration) { c.record(op, d, true) }

// Observe records the outcome of a call started at start.
func (c *Collector) Observe(op string, start time.Time, err error) {
	c.record(op, time.Since(start), err != nil)
}

func (c *Collector) record(op string, d time.Duration, failed bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stats[op]
	if !ok {
		s = &stat{}
		c.stats[op] = s
	}
	s.add(d, failed)
}

// Snapshot returns the current statistics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		UptimeSeconds: time.Since(c.started).Seconds(),
		Embedding:     c.stats[OpEmbedding].snapshot(),
		Extraction:    c.stats[OpExtraction].snapshot(),
		StoreUpsert:   c.stats[OpStoreUpsert].snapshot(),
		StoreSearch:   c.stats[OpStoreSearch].snapshot(),
		Search:        c.stats[OpSearch].snapshot(),
		IngestVideo:   c.stats[OpIngestVideo].snapshot(),
	}
}
