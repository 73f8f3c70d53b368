// Package archive persists finished sessions to PostgreSQL. The averaged
// frequency spectrum is stored as a pgvector column so past sessions can be
// searched by spectral similarity ("find sessions that sounded like this
// one").
//
// The pgvector extension must be available in the target database; [New]
// installs it automatically via CREATE EXTENSION IF NOT EXISTS and runs the
// idempotent schema migration on every start.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/earshot-io/earshot/internal/analysis"
	"github.com/earshot-io/earshot/internal/narrate"
	"github.com/earshot-io/earshot/internal/session"
)

// Compile-time assertion that Store implements session.Archiver.
var _ session.Archiver = (*Store)(nil)

const ddlSessions = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS sessions (
    id             TEXT         PRIMARY KEY,
    started_at     TIMESTAMPTZ  NOT NULL,
    ended_at       TIMESTAMPTZ  NOT NULL,
    frames         INT          NOT NULL DEFAULT 0,
    dropped_frames BIGINT       NOT NULL DEFAULT 0,
    environment    TEXT         NOT NULL DEFAULT '',
    summary        TEXT         NOT NULL DEFAULT '',
    stats          JSONB,
    detections     JSONB        NOT NULL DEFAULT '[]',
    totals         JSONB        NOT NULL DEFAULT '[]',
    spectrum       vector(128)
);

CREATE INDEX IF NOT EXISTS idx_sessions_ended_at
    ON sessions (ended_at);

CREATE INDEX IF NOT EXISTS idx_sessions_spectrum
    ON sessions USING hnsw (spectrum vector_cosine_ops);
`

// Store is the PostgreSQL-backed session archive. All operations are safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn, registers pgvector types on every
// connection, and runs the schema migration.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("archive: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so the spectrum column
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlSessions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping verifies the database connection; used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Save inserts one finished session. Saving the same session ID twice is a
// no-op.
func (s *Store) Save(ctx context.Context, res session.Result) error {
	stats, err := json.Marshal(res.Stats)
	if err != nil {
		return fmt.Errorf("archive: marshal stats: %w", err)
	}
	detections, err := json.Marshal(res.Detections)
	if err != nil {
		return fmt.Errorf("archive: marshal detections: %w", err)
	}
	totals, err := json.Marshal(res.Totals)
	if err != nil {
		return fmt.Errorf("archive: marshal totals: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions
		    (id, started_at, ended_at, frames, dropped_frames,
		     environment, summary, stats, detections, totals, spectrum)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING`,
		res.SessionID,
		res.StartedAt,
		res.EndedAt,
		res.Frames,
		res.DroppedFrames,
		narrate.Environment(res.Stats),
		res.Summary,
		stats,
		detections,
		totals,
		spectrumVector(res.Spectrum),
	)
	if err != nil {
		return fmt.Errorf("archive: insert session %s: %w", res.SessionID, err)
	}
	return nil
}

// Record is one archived session row, without the bulky JSON payloads.
type Record struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"startedAt"`
	EndedAt       time.Time `json:"endedAt"`
	Frames        int       `json:"frames"`
	DroppedFrames int64     `json:"droppedFrames"`
	Environment   string    `json:"environment"`
	Summary       string    `json:"summary"`
}

// Recent returns the most recently ended sessions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, ended_at, frames, dropped_frames, environment, summary
		FROM sessions
		ORDER BY ended_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: query recent: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.StartedAt, &rec.EndedAt, &rec.Frames,
			&rec.DroppedFrames, &rec.Environment, &rec.Summary); err != nil {
			return nil, fmt.Errorf("archive: scan recent: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Similar is an archived session together with its cosine distance from the
// query spectrum (0 = identical shape).
type Similar struct {
	Record
	Distance float64 `json:"distance"`
}

// SimilarSpectrum returns the archived sessions whose averaged spectrum is
// closest to the given one, nearest first. Sessions archived without a full
// spectrum are excluded.
func (s *Store) SimilarSpectrum(ctx context.Context, spectrum []float64, limit int) ([]Similar, error) {
	vec := spectrumVector(spectrum)
	if vec == nil {
		return nil, fmt.Errorf("archive: similarity query needs a %d-bin spectrum, got %d", analysis.SpectrumBins, len(spectrum))
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, started_at, ended_at, frames, dropped_frames, environment, summary,
		       spectrum <=> $1 AS distance
		FROM sessions
		WHERE spectrum IS NOT NULL
		ORDER BY spectrum <=> $1
		LIMIT $2`, *vec, limit)
	if err != nil {
		return nil, fmt.Errorf("archive: similarity query: %w", err)
	}
	defer rows.Close()

	var out []Similar
	for rows.Next() {
		var sim Similar
		if err := rows.Scan(&sim.ID, &sim.StartedAt, &sim.EndedAt, &sim.Frames,
			&sim.DroppedFrames, &sim.Environment, &sim.Summary, &sim.Distance); err != nil {
			return nil, fmt.Errorf("archive: scan similar: %w", err)
		}
		out = append(out, sim)
	}
	return out, rows.Err()
}

// spectrumVector converts a finalized spectrum into a pgvector value, or nil
// when the session produced no full-width spectrum (stored as NULL).
func spectrumVector(spectrum []float64) *pgvector.Vector {
	if len(spectrum) != analysis.SpectrumBins {
		return nil
	}
	f32 := make([]float32, len(spectrum))
	for i, v := range spectrum {
		f32[i] = float32(v)
	}
	vec := pgvector.NewVector(f32)
	return &vec
}
