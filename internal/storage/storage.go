// Package storage defines the record store the proxy appends to and the
// thread aggregator reads from. The three collections are append-only: a
// record is written once and never updated.
package storage

import (
	"context"
	"errors"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
)

// ErrNotFound is returned by point lookups when no record matches.
var ErrNotFound = errors.New("storage: record not found")

// LogReader reads the api_logs collection.
type LogReader interface {
	// ListLogs returns every log record in insertion order.
	ListLogs(ctx context.Context) ([]domain.LogRecord, error)
}

// RunStepReader reads the run_steps collection.
type RunStepReader interface {
	// ListRunSteps returns every run step record in insertion order.
	ListRunSteps(ctx context.Context) ([]domain.RunStepRecord, error)
}

// ArtifactReader reads the image_files collection.
type ArtifactReader interface {
	// ListArtifacts returns every stored artifact.
	ListArtifacts(ctx context.Context) ([]domain.ArtifactRecord, error)

	// GetArtifact returns the artifact for fileID or ErrNotFound.
	GetArtifact(ctx context.Context, fileID string) (*domain.ArtifactRecord, error)
}

// Reader is the read-only view the thread aggregator consumes.
type Reader interface {
	LogReader
	RunStepReader
	ArtifactReader
}

// Writer is the append-only side used by the proxy.
type Writer interface {
	// AppendLog stores a log record, assigning an ID when empty.
	AppendLog(ctx context.Context, rec *domain.LogRecord) error

	// AppendRunStep stores a run step record.
	AppendRunStep(ctx context.Context, step *domain.RunStepRecord) error

	// PutArtifact stores an artifact. Storing an id that already exists is a no-op.
	PutArtifact(ctx context.Context, artifact *domain.ArtifactRecord) error
}

// Store combines both sides of the record store.
type Store interface {
	Reader
	Writer

	// Close closes the storage connection
	Close() error
}
