package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"resume-matcher/internal/domain"
	"resume-matcher/internal/repository"
)

const createAnalysesTable = `
CREATE TABLE IF NOT EXISTS resume_analyses (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	match_score REAL NOT NULL,
	suggestions TEXT NOT NULL DEFAULT '[]',
	keywords_missing TEXT NOT NULL DEFAULT '[]',
	keywords_present TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_resume_analyses_user_id ON resume_analyses(user_id);
`

type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) repository.AnalysisRepository {
	return &AnalysisRepository{db: db}
}

func (r *AnalysisRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createAnalysesTable); err != nil {
		return fmt.Errorf("create resume_analyses table: %w", err)
	}
	return nil
}

func (r *AnalysisRepository) CreateCharged(ctx context.Context, rec *domain.AnalysisRecord, limit int, window time.Duration, now time.Time) error {
	suggestions, missing, present, err := encodeLists(rec)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	if _, err := resetExpired(ctx, tx, rec.UserID, now, window); err != nil {
		return err
	}
	if err := incrementUsage(ctx, tx, rec.UserID, limit, now); err != nil {
		return err
	}

	rec.CreatedAt = now.UTC()
	res, err := tx.ExecContext(ctx, `
INSERT INTO resume_analyses (user_id, match_score, suggestions, keywords_missing, keywords_present, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		rec.UserID,
		rec.MatchScore,
		suggestions,
		missing,
		present,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("analysis last insert id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	rec.ID = id
	return nil
}

func (r *AnalysisRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.AnalysisRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, match_score, suggestions, keywords_missing, keywords_present, created_at
FROM resume_analyses
WHERE user_id = ?
ORDER BY id DESC
LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()

	var records []domain.AnalysisRecord
	for rows.Next() {
		var rec domain.AnalysisRecord
		var suggestions, missing, present string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.MatchScore, &suggestions, &missing, &present, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		if err := decodeLists(&rec, suggestions, missing, present); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

func encodeLists(rec *domain.AnalysisRecord) (string, string, string, error) {
	var out [3]string
	for i, list := range [][]string{rec.Suggestions, rec.KeywordsMissing, rec.KeywordsPresent} {
		if list == nil {
			list = []string{}
		}
		raw, err := json.Marshal(list)
		if err != nil {
			return "", "", "", fmt.Errorf("encode analysis list: %w", err)
		}
		out[i] = string(raw)
	}
	return out[0], out[1], out[2], nil
}

func decodeLists(rec *domain.AnalysisRecord, suggestions, missing, present string) error {
	targets := []*[]string{&rec.Suggestions, &rec.KeywordsMissing, &rec.KeywordsPresent}
	for i, raw := range []string{suggestions, missing, present} {
		if err := json.Unmarshal([]byte(raw), targets[i]); err != nil {
			return fmt.Errorf("decode analysis list: %w", err)
		}
	}
	return nil
}
