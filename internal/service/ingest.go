// Package service wires segmentation, annotation, embedding and storage into
// the ingestion pipeline, task registry and temporal search service.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/semaphore"

	"github.com/raphaelgruber/vidrag/internal/embedding"
	"github.com/raphaelgruber/vidrag/internal/extract"
	"github.com/raphaelgruber/vidrag/internal/graph"
	"github.com/raphaelgruber/vidrag/internal/metrics"
	"github.com/raphaelgruber/vidrag/internal/models"
	"github.com/raphaelgruber/vidrag/internal/parser"
	"github.com/raphaelgruber/vidrag/internal/store"
)

// IngestRequest is one transcript to ingest.
type IngestRequest struct {
	Transcript models.Transcript
	Metadata   map[string]any
}

// IngestResult summarizes a finished ingestion task.
type IngestResult struct {
	Videos            int `json:"videos"`
	Segments          int `json:"segments"`
	Degraded          int `json:"degraded"`
	FailedExtractions int `json:"failed_extractions"`
	Pruned            int `json:"pruned"`
}

func (r IngestResult) String() string {
	return fmt.Sprintf("Ingested %d video(s): %d segments, %d degraded embeddings, %d failed extractions, %d stale segments removed",
		r.Videos, r.Segments, r.Degraded, r.FailedExtractions, r.Pruned)
}

// PipelineConfig tunes ingestion.
type PipelineConfig struct {
	// SegmentDuration is the window length D in seconds.
	SegmentDuration float64
	// SegmentConcurrency bounds per-video extract+embed workers.
	SegmentConcurrency int
	// MaxConcurrentRuns bounds ingestion tasks running at once.
	MaxConcurrentRuns int
	// CallTimeout bounds each extractor, embedder and store call. Zero disables it.
	CallTimeout time.Duration
}

// DefaultPipelineConfig returns the standard settings.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		SegmentDuration:    parser.DefaultSegmentDuration,
		SegmentConcurrency: 4,
		MaxConcurrentRuns:  2,
		CallTimeout:        30 * time.Second,
	}
}

// Pipeline runs asynchronous ingestion tasks.
type Pipeline struct {
	registry  *TaskRegistry
	store     store.Store
	embedder  embedding.Embedder
	extractor extract.Extractor
	graph     graph.Store
	metrics   *metrics.Collector
	cfg       PipelineConfig

	runs *semaphore.Weighted
	wg   sync.WaitGroup

	mu      sync.Mutex
	results map[string]IngestResult
}

// NewPipeline creates a pipeline. mc may be nil.
func NewPipeline(registry *TaskRegistry, st store.Store, emb embedding.Embedder, ex extract.Extractor, cfg PipelineConfig, mc *metrics.Collector) *Pipeline {
	def := DefaultPipelineConfig()
	if cfg.SegmentDuration <= 0 {
		cfg.SegmentDuration = def.SegmentDuration
	}
	if cfg.SegmentConcurrency <= 0 {
		cfg.SegmentConcurrency = def.SegmentConcurrency
	}
	if cfg.MaxConcurrentRuns <= 0 {
		cfg.MaxConcurrentRuns = def.MaxConcurrentRuns
	}
	return &Pipeline{
		registry:  registry,
		store:     st,
		embedder:  emb,
		extractor: ex,
		metrics:   mc,
		cfg:       cfg,
		runs:      semaphore.NewWeighted(int64(cfg.MaxConcurrentRuns)),
		results:   make(map[string]IngestResult),
	}
}

// WithGraph links the entities and topics of every ingested video into g.
func (p *Pipeline) WithGraph(g graph.Store) *Pipeline {
	p.graph = g
	return p
}

// Registry returns the task registry the pipeline reports into.
func (p *Pipeline) Registry() *TaskRegistry {
	return p.registry
}

// Ingest validates one transcript and starts a background task for it.
func (p *Pipeline) Ingest(ctx context.Context, req IngestRequest) (string, error) {
	return p.IngestBatch(ctx, []IngestRequest{req}, req.Metadata)
}

// IngestBatch validates every transcript and starts one background task
// covering all of them. Videos are processed in order; each video's segments
// are written in a single batch once fully computed.
func (p *Pipeline) IngestBatch(ctx context.Context, reqs []IngestRequest, metadata map[string]any) (string, error) {
	if len(reqs) == 0 {
		return "", fmt.Errorf("%w: no transcripts", ErrInvalidTranscript)
	}
	for _, r := range reqs {
		if r.Transcript.VideoID == "" {
			return "", fmt.Errorf("%w: missing video id", ErrInvalidTranscript)
		}
		if err := parser.ValidateTranscript(r.Transcript); err != nil {
			return "", fmt.Errorf("%w: video %s: %w", ErrInvalidTranscript, r.Transcript.VideoID, err)
		}
	}

	meta := maps.Clone(metadata)
	if meta == nil {
		meta = map[string]any{}
	}
	meta["video_ids"] = lo.Map(reqs, func(r IngestRequest, _ int) string { return r.Transcript.VideoID })
	meta["segment_duration"] = p.cfg.SegmentDuration

	taskID, err := p.registry.Create(ctx, meta)
	if err != nil {
		return "", fmt.Errorf("create task: %w", err)
	}

	p.wg.Add(1)
	go p.run(context.WithoutCancel(ctx), taskID, reqs)

	return taskID, nil
}

// Wait blocks until every started task has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Result returns the summary of a finished task.
func (p *Pipeline) Result(taskID string) (IngestResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, ok := p.results[taskID]
	return r, ok
}

// DeleteVideo removes every stored segment of a video and returns how many
// were removed. Unknown videos return ErrNotFound.
func (p *Pipeline) DeleteVideo(ctx context.Context, videoID string) (int, error) {
	removed, err := p.store.PruneVideo(ctx, videoID, nil)
	if err != nil {
		return 0, fmt.Errorf("delete video %s: %w", videoID, err)
	}
	if removed == 0 {
		return 0, fmt.Errorf("%w: video %s", ErrNotFound, videoID)
	}
	if p.graph != nil {
		if err := p.graph.UnlinkVideo(ctx, videoID); err != nil {
			slog.Warn("failed to unlink video from graph", "video_id", videoID, "error", err)
		}
	}
	slog.Info("video deleted", "video_id", videoID, "segments", removed)
	return removed, nil
}

func (p *Pipeline) run(ctx context.Context, taskID string, reqs []IngestRequest) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("ingest task panicked", "task_id", taskID, "panic", r)
			if err := p.registry.Fail(ctx, taskID, fmt.Errorf("internal panic: %v", r)); err != nil {
				slog.Warn("failed to mark panicked task", "task_id", taskID, "error", err)
			}
		}
	}()

	if err := p.runs.Acquire(ctx, 1); err != nil {
		slog.Warn("ingest task never acquired a run slot", "task_id", taskID, "error", err)
		return
	}
	defer p.runs.Release(1)

	if err := p.registry.Start(ctx, taskID); err != nil {
		// Cancelled while waiting for a slot.
		slog.Info("skipping ingest task", "task_id", taskID, "reason", err)
		return
	}

	var total IngestResult
	for i, req := range reqs {
		videoID := req.Transcript.VideoID
		_ = p.registry.UpdateProgress(ctx, taskID, fmt.Sprintf("Processing video %d/%d: %s", i+1, len(reqs), videoID))

		start := time.Now()
		res, err := p.processVideo(ctx, taskID, req.Transcript)
		p.metrics.Observe(metrics.OpIngestVideo, start, err)
		if err != nil {
			slog.Error("ingest failed", "task_id", taskID, "video_id", videoID, "error", err)
			if ferr := p.registry.Fail(ctx, taskID, fmt.Errorf("video %s: %w", videoID, err)); ferr != nil {
				slog.Warn("failed to mark task failed", "task_id", taskID, "error", ferr)
			}
			p.storeResult(taskID, total)
			return
		}

		total.Videos++
		total.Segments += res.Segments
		total.Degraded += res.Degraded
		total.FailedExtractions += res.FailedExtractions
		total.Pruned += res.Pruned
	}

	p.storeResult(taskID, total)
	if err := p.registry.Complete(ctx, taskID, total.String()); err != nil {
		slog.Warn("failed to mark task completed", "task_id", taskID, "error", err)
		return
	}
	slog.Info("ingest task completed", "task_id", taskID, "videos", total.Videos, "segments", total.Segments, "degraded", total.Degraded)
}

func (p *Pipeline) storeResult(taskID string, r IngestResult) {
	p.mu.Lock()
	p.results[taskID] = r
	p.mu.Unlock()
}

// processVideo segments, annotates and embeds one transcript, then replaces
// the video's stored segments.
func (p *Pipeline) processVideo(ctx context.Context, taskID string, t models.Transcript) (IngestResult, error) {
	segments, err := parser.Segment(t, parser.SegmentConfig{Duration: p.cfg.SegmentDuration})
	if err != nil {
		return IngestResult{}, fmt.Errorf("%w: %w", ErrInvalidTranscript, err)
	}
	for i := range segments {
		segments[i].Title = t.Title
		segments[i].Source = t.Source
	}

	_ = p.registry.UpdateProgress(ctx, taskID, fmt.Sprintf("Annotating %d segments of %s", len(segments), t.VideoID))

	var (
		degraded          atomic.Int32
		failedExtractions atomic.Int32
		panicMu           sync.Mutex
		panicErr          error
	)

	workers := min(p.cfg.SegmentConcurrency, len(segments))
	work := make(chan int, len(segments))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					panicMu.Lock()
					if panicErr == nil {
						panicErr = fmt.Errorf("internal panic: %v", r)
					}
					panicMu.Unlock()
					// Drain so the producer and sibling workers finish.
					for range work {
					}
				}
			}()
			for i := range work {
				seg := &segments[i]

				ann, err := p.annotate(ctx, seg.Text)
				if err != nil {
					slog.Warn("extraction failed, keeping segment without annotations",
						"video_id", seg.VideoID, "start", seg.StartTime, "error", err)
					failedExtractions.Add(1)
				}
				seg.Entities = ann.Entities
				seg.Topics = ann.Topics

				vec, err := p.embed(ctx, seg.Text)
				if err != nil {
					slog.Warn("embedding failed, using zero vector",
						"video_id", seg.VideoID, "start", seg.StartTime, "error", err)
					degraded.Add(1)
					vec = embedding.Zero(p.embedder.Dimension())
					seg.Degraded = true
				}
				seg.Embedding = vec
			}
		}()
	}
	for i := range segments {
		work <- i
	}
	close(work)
	wg.Wait()

	if panicErr != nil {
		return IngestResult{}, panicErr
	}

	if err := p.upsert(ctx, segments); err != nil {
		return IngestResult{}, fmt.Errorf("store segments: %w", err)
	}

	keep := lo.Map(segments, func(s models.VideoSegment, _ int) string { return s.SegmentID })
	pruned, err := p.store.PruneVideo(ctx, t.VideoID, keep)
	if err != nil {
		slog.Warn("failed to prune stale segments", "video_id", t.VideoID, "error", err)
	}

	if p.graph != nil {
		if err := p.graph.LinkVideo(ctx, t.VideoID, segments); err != nil {
			slog.Warn("failed to link video into graph", "video_id", t.VideoID, "error", err)
		}
	}

	return IngestResult{
		Videos:            1,
		Segments:          len(segments),
		Degraded:          int(degraded.Load()),
		FailedExtractions: int(failedExtractions.Load()),
		Pruned:            pruned,
	}, nil
}

func (p *Pipeline) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.CallTimeout)
}

// annotate always returns non-nil sets, empty on error.
func (p *Pipeline) annotate(ctx context.Context, text string) (extract.Annotations, error) {
	empty := extract.Annotations{Entities: []string{}, Topics: []string{}}

	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	start := time.Now()
	ann, err := p.extractor.Extract(callCtx, text)
	p.metrics.Observe(metrics.OpExtraction, start, err)
	if err != nil {
		return empty, err
	}
	return extract.Annotations{
		Entities: models.NormalizeSet(ann.Entities),
		Topics:   models.NormalizeSet(ann.Topics),
	}, nil
}

func (p *Pipeline) embed(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	start := time.Now()
	vec, err := p.embedder.Embed(callCtx, text)
	if err == nil && len(vec) != p.embedder.Dimension() {
		err = fmt.Errorf("embedding has %d dimensions, want %d", len(vec), p.embedder.Dimension())
	}
	p.metrics.Observe(metrics.OpEmbedding, start, err)
	return vec, err
}

func (p *Pipeline) upsert(ctx context.Context, segments []models.VideoSegment) error {
	callCtx, cancel := p.callContext(ctx)
	defer cancel()

	start := time.Now()
	err := p.store.Upsert(callCtx, segments)
	p.metrics.Observe(metrics.OpStoreUpsert, start, err)
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("timed out after %s: %w", p.cfg.CallTimeout, err)
	}
	return err
}
