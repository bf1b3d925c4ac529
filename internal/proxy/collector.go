package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
	"github.com/tjfontaine/threadlog-gateway/internal/storage"
	"github.com/tjfontaine/threadlog-gateway/internal/threads"
)

const defaultCollectTimeout = 30 * time.Second

// RunStepSource fetches run steps and their file outputs from upstream.
type RunStepSource interface {
	ListRunSteps(ctx context.Context, threadID, runID string) ([]domain.RunStepRecord, error)
	FileContent(ctx context.Context, fileID string) (*domain.ArtifactRecord, error)
}

// Collector stores the run steps and generated images of completed runs.
// Each run is collected at most once per process.
type Collector struct {
	source  RunStepSource
	store   storage.Writer
	logger  *slog.Logger
	timeout time.Duration

	correlator threads.Correlator
	wg         sync.WaitGroup
	seenRuns   sync.Map
	seenFiles  sync.Map
}

// CollectorOption configures the collector.
type CollectorOption func(*Collector)

// WithCollectTimeout bounds one background collection.
func WithCollectTimeout(d time.Duration) CollectorOption {
	return func(c *Collector) {
		c.timeout = d
	}
}

// WithCollectorLogger sets the collector logger.
func WithCollectorLogger(logger *slog.Logger) CollectorOption {
	return func(c *Collector) {
		c.logger = logger
	}
}

// NewCollector creates a collector reading from source and writing to store.
func NewCollector(source RunStepSource, store storage.Writer, opts ...CollectorOption) *Collector {
	c := &Collector{
		source:  source,
		store:   store,
		logger:  slog.Default(),
		timeout: defaultCollectTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Observe inspects a relayed response body and, when it is a completed run,
// starts collecting its steps in the background. It reports whether a
// collection was started.
func (c *Collector) Observe(ctx context.Context, path string, body []byte) bool {
	if gjson.GetBytes(body, "object").String() != "thread.run" ||
		gjson.GetBytes(body, "status").String() != "completed" {
		return false
	}

	threadID := gjson.GetBytes(body, "thread_id").String()
	if threadID == "" {
		threadID, _ = c.correlator.ThreadID(path)
	}
	runID := gjson.GetBytes(body, "id").String()
	if runID == "" {
		runID, _ = c.correlator.RunID(path)
	}
	if threadID == "" || runID == "" {
		return false
	}

	if _, loaded := c.seenRuns.LoadOrStore(runID, struct{}{}); loaded {
		return false
	}

	collectCtx, cancel := persistenceContext(ctx, c.timeout)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		if err := c.Collect(collectCtx, threadID, runID); err != nil {
			// Allow a later poll of the same run to retry.
			c.seenRuns.Delete(runID)
			c.logger.Error("run step collection failed",
				slog.String("thread_id", threadID),
				slog.String("run_id", runID),
				slog.String("error", err.Error()),
			)
		}
	}()
	return true
}

// Collect fetches and stores the steps of one run, then every image they
// reference. Individual store failures are logged and skipped.
func (c *Collector) Collect(ctx context.Context, threadID, runID string) error {
	steps, err := c.source.ListRunSteps(ctx, threadID, runID)
	if err != nil {
		return fmt.Errorf("failed to list run steps: %w", err)
	}

	var fileIDs []string
	for i := range steps {
		step := &steps[i]
		if err := c.store.AppendRunStep(ctx, step); err != nil {
			c.logger.Error("failed to store run step",
				slog.String("run_id", runID),
				slog.String("step_id", step.StepID),
				slog.String("error", err.Error()),
			)
		}
		for _, out := range step.CodeOutputs {
			if out.Type == domain.OutputTypeImage && out.ImageFileID != "" {
				fileIDs = append(fileIDs, out.ImageFileID)
			}
		}
	}

	for _, fileID := range fileIDs {
		if _, loaded := c.seenFiles.LoadOrStore(fileID, struct{}{}); loaded {
			continue
		}
		if err := c.storeFile(ctx, fileID); err != nil {
			c.seenFiles.Delete(fileID)
			c.logger.Error("failed to store artifact",
				slog.String("run_id", runID),
				slog.String("file_id", fileID),
				slog.String("error", err.Error()),
			)
		}
	}

	c.logger.Info("collected run steps",
		slog.String("thread_id", threadID),
		slog.String("run_id", runID),
		slog.Int("steps", len(steps)),
		slog.Int("images", len(fileIDs)),
	)
	return nil
}

func (c *Collector) storeFile(ctx context.Context, fileID string) error {
	artifact, err := c.source.FileContent(ctx, fileID)
	if err != nil {
		return err
	}
	return c.store.PutArtifact(ctx, artifact)
}

// Wait blocks until in-flight collections finish.
func (c *Collector) Wait() {
	c.wg.Wait()
}
