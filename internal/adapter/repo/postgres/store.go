// Package postgres provides a persistent result store, for deployments that
// want results to outlive the process.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/johnmichaelkuczynski/texteval/internal/domain"
)

// NewPool creates a traced pgx connection pool from the provided DSN.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.ConnConfig.Tracer = otelpgx.NewTracer()
	return pgxpool.NewWithConfig(ctx, cfg)
}

// Store implements domain.ResultRepository on PostgreSQL. The question list
// is stored as JSONB; everything else as plain columns.
type Store struct{ Pool *pgxpool.Pool }

// NewStore constructs a Store and ensures its table exists.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	const ddl = `CREATE TABLE IF NOT EXISTS analysis_results (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		provider TEXT NOT NULL,
		overall_score INT NOT NULL,
		summary TEXT NOT NULL,
		category TEXT NOT NULL,
		questions JSONB NOT NULL,
		final_assessment TEXT NOT NULL,
		raw_response TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return nil, fmt.Errorf("op=postgres.init: %w", err)
	}
	return &Store{Pool: pool}, nil
}

// Put inserts r. Results are immutable, so conflicts keep the first write.
func (s *Store) Put(ctx context.Context, r domain.AnalysisResult) error {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.Put")
	defer span.End()
	qs, err := json.Marshal(r.Questions)
	if err != nil {
		return fmt.Errorf("op=result.put marshal: %w", err)
	}
	const q = `INSERT INTO analysis_results
		(id, mode, provider, overall_score, summary, category, questions, final_assessment, raw_response, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO NOTHING`
	if _, err := s.Pool.Exec(ctx, q, r.ID, string(r.Mode), string(r.Provider), r.OverallScore, r.Summary, r.Category, qs, r.FinalAssessment, r.RawResponse, r.Timestamp); err != nil {
		return fmt.Errorf("op=result.put: %w", err)
	}
	return nil
}

// Get loads the result stored under id.
func (s *Store) Get(ctx context.Context, id string) (domain.AnalysisResult, error) {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.Get")
	defer span.End()
	const q = `SELECT id, mode, provider, overall_score, summary, category, questions, final_assessment, raw_response, created_at
		FROM analysis_results WHERE id=$1`
	var (
		r    domain.AnalysisResult
		mode, provider string
		qs   []byte
	)
	err := s.Pool.QueryRow(ctx, q, id).Scan(&r.ID, &mode, &provider, &r.OverallScore, &r.Summary, &r.Category, &qs, &r.FinalAssessment, &r.RawResponse, &r.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.AnalysisResult{}, fmt.Errorf("%w: result %s", domain.ErrNotFound, id)
		}
		return domain.AnalysisResult{}, fmt.Errorf("op=result.get: %w", err)
	}
	r.Mode = domain.Mode(mode)
	r.Provider = domain.Provider(provider)
	if err := json.Unmarshal(qs, &r.Questions); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("op=result.get unmarshal: %w", err)
	}
	return r, nil
}
