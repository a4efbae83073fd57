// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/difflog/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// FrameStoreConfig controls the Postgres connection pool used for frame rows.
type FrameStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// FrameStore implements store.FrameRepository on a single append-only table:
//
//	CREATE TABLE frames (
//		session_id uuid        NOT NULL,
//		seq        bigint      NOT NULL,
//		level      smallint    NOT NULL,
//		body       text        NOT NULL,
//		created_at timestamptz NOT NULL,
//		PRIMARY KEY (session_id, seq)
//	);
type FrameStore struct {
	pool  pool
	table string
}

var _ store.FrameRepository = (*FrameStore)(nil)

// NewFrameStore connects to Postgres using the provided config.
func NewFrameStore(ctx context.Context, cfg FrameStoreConfig) (*FrameStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &FrameStore{pool: p, table: table}, nil
}

// NewFrameStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewFrameStoreWithPool(p pool, table string) (*FrameStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &FrameStore{pool: p, table: name}, nil
}

func tableName(table string) (string, error) {
	if table == "" {
		table = "frames"
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// Close releases the underlying pool resources.
func (s *FrameStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// AppendFrame inserts one frame row.
func (s *FrameStore) AppendFrame(ctx context.Context, frame store.Frame) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("frame store is not configured")
	}
	if frame.Session == uuid.Nil {
		return fmt.Errorf("frame session is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (session_id, seq, level, body, created_at)
VALUES ($1, $2, $3, $4, $5)`, s.table)
	if _, err := s.pool.Exec(ctx, query, frame.Session, frame.Seq, frame.Level, frame.Text, frame.CreatedAt); err != nil {
		return fmt.Errorf("insert frame %d: %w", frame.Seq, err)
	}
	return nil
}

// ListFrames loads every frame of a session in sequence order.
func (s *FrameStore) ListFrames(ctx context.Context, session uuid.UUID) ([]store.Frame, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("frame store is not configured")
	}
	query := fmt.Sprintf(`
SELECT session_id, seq, level, body, created_at
FROM %s
WHERE session_id = $1
ORDER BY seq`, s.table)
	rows, err := s.pool.Query(ctx, query, session)
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	defer rows.Close()

	var frames []store.Frame
	for rows.Next() {
		var f store.Frame
		if err := rows.Scan(&f.Session, &f.Seq, &f.Level, &f.Text, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate frames: %w", err)
	}
	if len(frames) == 0 {
		return nil, store.ErrNotFound
	}
	return frames, nil
}
