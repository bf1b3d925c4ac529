package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/tjfontaine/threadlog-gateway/internal/domain"
	"github.com/tjfontaine/threadlog-gateway/internal/storage"
)

// Store is a SQLite implementation of storage.Store. Rows are only ever
// inserted; reads return them in insertion order.
type Store struct {
	db     *sqlx.DB
	codec  *payloadCodec
	logger *slog.Logger
}

var _ storage.Store = (*Store)(nil)

// Option configures the store.
type Option func(*Store)

// WithCompression toggles zstd compression of request and response payloads.
// It is enabled by default. Rows written either way remain readable.
func WithCompression(enabled bool) Option {
	return func(s *Store) {
		s.codec.enabled = enabled
	}
}

// WithLogger sets the logger used to report rows that cannot be decoded.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new SQLite store
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	codec, err := newPayloadCodec()
	if err != nil {
		db.Close()
		return nil, err
	}

	store := &Store{db: db, codec: codec, logger: slog.Default()}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.initSchema(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS api_logs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			timestamp TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL DEFAULT '',
			body BLOB,
			response_data BLOB,
			response_time INTEGER,
			status INTEGER NOT NULL DEFAULT 0,
			response_size INTEGER NOT NULL DEFAULT 0,
			user_agent TEXT NOT NULL DEFAULT '',
			ip TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS run_steps (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			step_id TEXT NOT NULL DEFAULT '',
			run_id TEXT NOT NULL,
			thread_id TEXT NOT NULL,
			tool_type TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL DEFAULT '',
			document BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS image_files (
			file_id TEXT PRIMARY KEY,
			content_type TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL DEFAULT '',
			size INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_api_logs_path ON api_logs(path)`,
		`CREATE INDEX IF NOT EXISTS idx_run_steps_thread ON run_steps(thread_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}

	return nil
}

func (s *Store) AppendLog(ctx context.Context, rec *domain.LogRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp == "" {
		rec.Timestamp = domain.Timestamp(time.Now())
	}

	var responseTime sql.NullInt64
	if rec.ResponseTime != nil {
		responseTime = sql.NullInt64{Int64: *rec.ResponseTime, Valid: true}
	}

	query := `INSERT INTO api_logs (id, timestamp, kind, path, method, body, response_data,
	          response_time, status, response_size, user_agent, ip, error)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Timestamp, string(rec.Kind), rec.Path, rec.Method,
		s.codec.encode(rec.Body), s.codec.encode(rec.ResponseData),
		responseTime, rec.Status, rec.ResponseSize, rec.UserAgent, rec.IP, rec.Error)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}

	return nil
}

type logRow struct {
	ID           string        `db:"id"`
	Timestamp    string        `db:"timestamp"`
	Kind         string        `db:"kind"`
	Path         string        `db:"path"`
	Method       string        `db:"method"`
	Body         []byte        `db:"body"`
	ResponseData []byte        `db:"response_data"`
	ResponseTime sql.NullInt64 `db:"response_time"`
	Status       int           `db:"status"`
	ResponseSize int           `db:"response_size"`
	UserAgent    string        `db:"user_agent"`
	IP           string        `db:"ip"`
	Error        string        `db:"error"`
}

func (s *Store) ListLogs(ctx context.Context) ([]domain.LogRecord, error) {
	query := `SELECT id, timestamp, kind, path, method, body, response_data, response_time,
	          status, response_size, user_agent, ip, error
	          FROM api_logs ORDER BY seq ASC`

	var rows []logRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}

	logs := make([]domain.LogRecord, 0, len(rows))
	for _, row := range rows {
		rec := domain.LogRecord{
			ID:           row.ID,
			Timestamp:    row.Timestamp,
			Kind:         domain.LogKind(row.Kind),
			Path:         row.Path,
			Method:       row.Method,
			Body:         s.decodeColumn(row.ID, "body", row.Body),
			ResponseData: s.decodeColumn(row.ID, "response_data", row.ResponseData),
			Status:       row.Status,
			ResponseSize: row.ResponseSize,
			UserAgent:    row.UserAgent,
			IP:           row.IP,
			Error:        row.Error,
		}
		if row.ResponseTime.Valid {
			ms := row.ResponseTime.Int64
			rec.ResponseTime = &ms
		}
		logs = append(logs, rec)
	}

	return logs, nil
}

// decodeColumn never fails a read: an unmarked payload is returned as stored
// and a corrupt one is dropped.
func (s *Store) decodeColumn(id, column string, stored []byte) string {
	payload, err := s.codec.decode(stored)
	if err == nil {
		return payload
	}
	s.logger.Warn("undecodable log payload",
		slog.String("id", id),
		slog.String("column", column),
		slog.String("error", err.Error()),
	)
	if errors.Is(err, errUnmarked) {
		return string(stored)
	}
	return ""
}

func (s *Store) AppendRunStep(ctx context.Context, step *domain.RunStepRecord) error {
	step.Normalize()
	if step.Timestamp == "" {
		step.Timestamp = domain.Timestamp(time.Now())
	}

	doc, err := json.Marshal(step)
	if err != nil {
		return fmt.Errorf("failed to marshal run step: %w", err)
	}

	query := `INSERT INTO run_steps (step_id, run_id, thread_id, tool_type, timestamp, document)
	          VALUES (?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		step.StepID, step.RunID, step.ThreadID, step.ToolType, step.Timestamp,
		s.codec.encode(string(doc)))
	if err != nil {
		return fmt.Errorf("failed to append run step: %w", err)
	}

	return nil
}

func (s *Store) ListRunSteps(ctx context.Context) ([]domain.RunStepRecord, error) {
	var rows []struct {
		Seq      int64  `db:"seq"`
		Document []byte `db:"document"`
	}
	if err := s.db.SelectContext(ctx, &rows, `SELECT seq, document FROM run_steps ORDER BY seq ASC`); err != nil {
		return nil, fmt.Errorf("failed to query run steps: %w", err)
	}

	steps := make([]domain.RunStepRecord, 0, len(rows))
	for _, row := range rows {
		var step domain.RunStepRecord
		doc, err := s.codec.decode(row.Document)
		if err == nil {
			err = json.Unmarshal([]byte(doc), &step)
		}
		if err != nil {
			s.logger.Warn("skipping undecodable run step",
				slog.Int64("seq", row.Seq),
				slog.String("error", err.Error()),
			)
			continue
		}
		step.Normalize()
		steps = append(steps, step)
	}

	return steps, nil
}

func (s *Store) PutArtifact(ctx context.Context, artifact *domain.ArtifactRecord) error {
	if artifact.CreatedAt.IsZero() {
		artifact.CreatedAt = time.Now()
	}

	query := `INSERT OR IGNORE INTO image_files (file_id, content_type, payload, size, created_at)
	          VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		artifact.FileID, artifact.ContentType, artifact.Payload, artifact.Size, artifact.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store artifact: %w", err)
	}

	return nil
}

func (s *Store) ListArtifacts(ctx context.Context) ([]domain.ArtifactRecord, error) {
	query := `SELECT file_id, content_type, payload, size, created_at
	          FROM image_files ORDER BY created_at ASC`

	var artifacts []domain.ArtifactRecord
	if err := s.db.SelectContext(ctx, &artifacts, query); err != nil {
		return nil, fmt.Errorf("failed to query artifacts: %w", err)
	}

	return artifacts, nil
}

func (s *Store) GetArtifact(ctx context.Context, fileID string) (*domain.ArtifactRecord, error) {
	query := `SELECT file_id, content_type, payload, size, created_at
	          FROM image_files WHERE file_id = ?`

	var artifact domain.ArtifactRecord
	err := s.db.GetContext(ctx, &artifact, query, fileID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}

	return &artifact, nil
}

func (s *Store) Close() error {
	s.codec.close()
	return s.db.Close()
}
