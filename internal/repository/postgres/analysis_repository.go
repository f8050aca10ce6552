package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"resume-matcher/internal/domain"
	"resume-matcher/internal/repository"
)

type AnalysisRepository struct {
	pool *pgxpool.Pool
}

func NewAnalysisRepository(pool *pgxpool.Pool) repository.AnalysisRepository {
	return &AnalysisRepository{pool: pool}
}

func (r *AnalysisRepository) Init(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `SELECT 1 FROM resume_analyses LIMIT 0`); err != nil {
		return fmt.Errorf("resume_analyses table missing, run migrations: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) CreateCharged(ctx context.Context, rec *domain.AnalysisRecord, limit int, window time.Duration, now time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := resetExpired(ctx, tx, rec.UserID, now, window); err != nil {
		return err
	}
	if err := incrementUsage(ctx, tx, rec.UserID, limit, now); err != nil {
		return err
	}

	var id int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO resume_analyses (user_id, match_score, suggestions, keywords_missing, keywords_present, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`,
		rec.UserID,
		rec.MatchScore,
		nonNil(rec.Suggestions),
		nonNil(rec.KeywordsMissing),
		nonNil(rec.KeywordsPresent),
		now.UTC(),
	).Scan(&id); err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = now.UTC()
	return nil
}

func (r *AnalysisRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.AnalysisRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, match_score, suggestions, keywords_missing, keywords_present, created_at
		FROM resume_analyses
		WHERE user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var records []domain.AnalysisRecord
	for rows.Next() {
		var rec domain.AnalysisRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.MatchScore, &rec.Suggestions, &rec.KeywordsMissing, &rec.KeywordsPresent, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
