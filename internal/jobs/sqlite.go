package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db    *sql.DB
	ttl   time.Duration
	log   *slog.Logger
	clock func() time.Time
}

// OpenSQLite opens (creating if needed) a job database at path and prunes
// expired rows once on start.
func OpenSQLite(ctx context.Context, path string, ttl time.Duration, log *slog.Logger) (Store, error) {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &sqliteStore{db: db, ttl: ttl, log: log, clock: time.Now}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Prune(ctx); err != nil {
		log.Warn("job store prune on start failed", slog.String("error", err.Error()))
	}
	return s, nil
}

func (s *sqliteStore) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    status TEXT NOT NULL,
    percent INTEGER NOT NULL DEFAULT 0,
    message TEXT,
    error TEXT,
    error_kind TEXT,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status_updated ON jobs(status, updated_at);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("init job schema: %w", err)
	}
	return nil
}

func (s *sqliteStore) Save(ctx context.Context, job Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs(id, kind, status, percent, message, error, error_kind, created_at, updated_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET status=excluded.status, percent=excluded.percent,
		   message=excluded.message, error=excluded.error, error_kind=excluded.error_kind,
		   updated_at=excluded.updated_at`,
		job.ID, job.Kind, string(job.Status), job.Percent, job.Message, job.Error, job.ErrorKind,
		job.CreatedAt.UnixMilli(), job.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, id string) (Job, error) {
	var (
		job              Job
		status           string
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, kind, status, percent, message, error, error_kind, created_at, updated_at
		 FROM jobs WHERE id = ?`, id).
		Scan(&job.ID, &job.Kind, &status, &job.Percent, &job.Message, &job.Error, &job.ErrorKind, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("load job %s: %w", id, err)
	}
	job.Status = Status(status)
	job.CreatedAt = time.UnixMilli(created).UTC()
	job.UpdatedAt = time.UnixMilli(updated).UTC()
	if s.ttl > 0 && job.Status.Done() && s.clock().Sub(job.UpdatedAt) > s.ttl {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// Prune deletes finished jobs whose last update is older than the TTL.
func (s *sqliteStore) Prune(ctx context.Context) error {
	if s.ttl <= 0 {
		return nil
	}
	cutoff := s.clock().Add(-s.ttl).UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE status IN (?, ?) AND updated_at < ?`,
		string(StatusCompleted), string(StatusFailed), cutoff)
	if err != nil {
		return fmt.Errorf("prune jobs: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		s.log.Debug("pruned jobs", slog.Int64("rows", n))
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
