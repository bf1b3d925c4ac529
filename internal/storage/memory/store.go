package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
	"github.com/tjfontaine/threadlog-gateway/internal/storage"
)

// Store is an in-memory implementation of storage.Store
type Store struct {
	mu        sync.RWMutex
	logs      []domain.LogRecord
	runSteps  []domain.RunStepRecord
	artifacts map[string]domain.ArtifactRecord
	order     []string
}

var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		artifacts: make(map[string]domain.ArtifactRecord),
	}
}

func (s *Store) AppendLog(ctx context.Context, rec *domain.LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = domain.Timestamp(time.Now())
	}

	s.logs = append(s.logs, rec.Clone())
	return nil
}

func (s *Store) AppendRunStep(ctx context.Context, step *domain.RunStepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	step.Normalize()
	if step.Timestamp == "" {
		step.Timestamp = domain.Timestamp(time.Now())
	}

	s.runSteps = append(s.runSteps, step.Clone())
	return nil
}

func (s *Store) PutArtifact(ctx context.Context, artifact *domain.ArtifactRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.artifacts[artifact.FileID]; exists {
		return nil
	}
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now()
	}

	s.artifacts[artifact.FileID] = *artifact
	s.order = append(s.order, artifact.FileID)
	return nil
}

func (s *Store) ListLogs(ctx context.Context) ([]domain.LogRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.LogRecord, len(s.logs))
	for i := range s.logs {
		out[i] = s.logs[i].Clone()
	}
	return out, nil
}

func (s *Store) ListRunSteps(ctx context.Context) ([]domain.RunStepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.RunStepRecord, len(s.runSteps))
	for i := range s.runSteps {
		out[i] = s.runSteps[i].Clone()
	}
	return out, nil
}

func (s *Store) ListArtifacts(ctx context.Context) ([]domain.ArtifactRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.ArtifactRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.artifacts[id])
	}
	return out, nil
}

func (s *Store) GetArtifact(ctx context.Context, fileID string) (*domain.ArtifactRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	artifact, exists := s.artifacts[fileID]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return &artifact, nil
}

func (s *Store) Close() error {
	return nil
}
