package threads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
	"github.com/tjfontaine/threadlog-gateway/internal/storage"
)

var (
	// ErrLogsUnavailable wraps a failure to read the api_logs collection.
	ErrLogsUnavailable = errors.New("threads: logs unavailable")

	// ErrThreadNotFound is returned by GetThread for an unknown thread id.
	ErrThreadNotFound = errors.New("threads: thread not found")
)

const tracerName = "github.com/tjfontaine/threadlog-gateway/internal/threads"

// Service recomputes the thread list from the record store on every call.
type Service struct {
	store     storage.Reader
	assembler *Assembler
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewService creates a thread service reading from store.
func NewService(store storage.Reader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		assembler: NewAssembler(logger),
		logger:    logger,
		tracer:    otel.Tracer(tracerName),
	}
}

// snapshot is one consistent-enough read of the three collections.
type snapshot struct {
	logs      []domain.LogRecord
	steps     []domain.RunStepRecord
	artifacts []domain.ArtifactRecord
}

// GetThreads returns every reconstructed thread, newest first. Only a failure
// to read the logs fails the call; run steps and artifacts degrade to empty.
func (s *Service) GetThreads(ctx context.Context) (*ThreadList, error) {
	ctx, span := s.tracer.Start(ctx, "threads.GetThreads")
	defer span.End()

	snap, err := s.read(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	threads := s.assembler.Assemble(snap.logs, snap.steps, snap.artifacts)
	span.SetAttributes(
		attribute.Int("threads.log_records", len(snap.logs)),
		attribute.Int("threads.run_steps", len(snap.steps)),
		attribute.Int("threads.count", len(threads)),
	)
	return &ThreadList{Threads: threads}, nil
}

// GetThread returns a single reconstructed thread.
func (s *Service) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	list, err := s.GetThreads(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list.Threads {
		if list.Threads[i].ThreadID == threadID {
			return &list.Threads[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrThreadNotFound, threadID)
}

func (s *Service) read(ctx context.Context) (*snapshot, error) {
	snap := &snapshot{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logs, err := s.store.ListLogs(gctx)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrLogsUnavailable, err)
		}
		snap.logs = logs
		return nil
	})

	g.Go(func() error {
		steps, err := s.store.ListRunSteps(gctx)
		if err != nil {
			s.logger.Warn("run steps unavailable, continuing without them",
				slog.String("error", err.Error()),
			)
			return nil
		}
		snap.steps = steps
		return nil
	})

	g.Go(func() error {
		artifacts, err := s.store.ListArtifacts(gctx)
		if err != nil {
			s.logger.Warn("artifacts unavailable, continuing without them",
				slog.String("error", err.Error()),
			)
			return nil
		}
		snap.artifacts = artifacts
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}
