package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"resume-matcher/internal/domain"
	"resume-matcher/internal/repository"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	subject TEXT NOT NULL UNIQUE,
	email TEXT NOT NULL DEFAULT '',
	subscription_tier TEXT NOT NULL DEFAULT 'free',
	usage_count INTEGER NOT NULL DEFAULT 0 CHECK (usage_count >= 0),
	usage_reset_at INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// tiers that are never limited; anything else is counted against the free limit
const unlimitedTiers = `('pro', 'career_plus')`

const selectUser = `
SELECT id, subject, email, subscription_tier, usage_count, usage_reset_at, created_at, updated_at
FROM users`

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) repository.UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	return r.ensureUserColumns(ctx)
}

// ensureUserColumns upgrades databases created before usage tracking existed.
func (r *UserRepository) ensureUserColumns(ctx context.Context) error {
	rows, err := r.db.QueryContext(ctx, `PRAGMA table_info(users)`)
	if err != nil {
		return fmt.Errorf("describe users table: %w", err)
	}
	defer rows.Close()

	columns := map[string]struct{}{}
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notnull   int
			dfltValue any
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return fmt.Errorf("scan pragma table info: %w", err)
		}
		columns[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate pragma table info: %w", err)
	}

	addColumn := func(name, statement string) error {
		if _, exists := columns[name]; exists {
			return nil
		}
		if _, err := r.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("add column %s: %w", name, err)
		}
		return nil
	}

	if err := addColumn("email", `ALTER TABLE users ADD COLUMN email TEXT NOT NULL DEFAULT ''`); err != nil {
		return err
	}
	if err := addColumn("subscription_tier", `ALTER TABLE users ADD COLUMN subscription_tier TEXT NOT NULL DEFAULT 'free'`); err != nil {
		return err
	}
	if err := addColumn("usage_count", `ALTER TABLE users ADD COLUMN usage_count INTEGER NOT NULL DEFAULT 0`); err != nil {
		return err
	}
	if err := addColumn("usage_reset_at", `ALTER TABLE users ADD COLUMN usage_reset_at INTEGER NOT NULL DEFAULT 0`); err != nil {
		return err
	}
	return nil
}

func (r *UserRepository) GetOrCreate(ctx context.Context, identity domain.Identity, now time.Time) (*domain.User, bool, error) {
	now = now.UTC()
	res, err := r.db.ExecContext(ctx, `
INSERT INTO users (subject, email, subscription_tier, usage_count, usage_reset_at, created_at, updated_at)
VALUES (?, ?, ?, 0, ?, ?, ?)
ON CONFLICT(subject) DO NOTHING`,
		identity.Subject,
		identity.Email,
		string(domain.TierFree),
		toMillis(now),
		now,
		now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("user rows affected: %w", err)
	}

	user, err := r.GetBySubject(ctx, identity.Subject)
	if err != nil {
		return nil, false, err
	}
	return user, affected == 1, nil
}

func (r *UserRepository) GetBySubject(ctx context.Context, subject string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, selectUser+`
WHERE subject = ?`,
		subject,
	)
	return scanUser(row)
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx, selectUser+`
WHERE id = ?`,
		id,
	)
	return scanUser(row)
}

func (r *UserRepository) ResetExpired(ctx context.Context, id int64, now time.Time, window time.Duration) (bool, error) {
	return resetExpired(ctx, r.db, id, now, window)
}

func (r *UserRepository) ForceReset(ctx context.Context, id int64, tier domain.Tier, now time.Time) error {
	now = now.UTC()
	res, err := r.db.ExecContext(ctx, `
UPDATE users
SET usage_count = 0, usage_reset_at = ?, subscription_tier = ?, updated_at = ?
WHERE id = ?`,
		toMillis(now), string(tier), now, id,
	)
	if err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	return expectRow(res)
}

func (r *UserRepository) IncrementUsage(ctx context.Context, id int64, limit int, now time.Time) error {
	return incrementUsage(ctx, r.db, id, limit, now)
}

func (r *UserRepository) SetTier(ctx context.Context, subject string, tier domain.Tier, now time.Time) (*domain.User, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE users SET subscription_tier = ?, updated_at = ? WHERE subject = ?`,
		string(tier), now.UTC(), subject,
	)
	if err != nil {
		return nil, fmt.Errorf("update tier: %w", err)
	}
	if err := expectRow(res); err != nil {
		return nil, err
	}
	return r.GetBySubject(ctx, subject)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func resetExpired(ctx context.Context, db execer, id int64, now time.Time, window time.Duration) (bool, error) {
	now = now.UTC()
	res, err := db.ExecContext(ctx, `
UPDATE users
SET usage_count = 0, usage_reset_at = ?, updated_at = ?
WHERE id = ? AND usage_reset_at < ?`,
		toMillis(now), now, id, toMillis(now.Add(-window)),
	)
	if err != nil {
		return false, fmt.Errorf("reset expired usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reset rows affected: %w", err)
	}
	return affected == 1, nil
}

func incrementUsage(ctx context.Context, db execer, id int64, limit int, now time.Time) error {
	res, err := db.ExecContext(ctx, `
UPDATE users
SET usage_count = usage_count + 1, updated_at = ?
WHERE id = ? AND (subscription_tier IN `+unlimitedTiers+` OR usage_count < ?)`,
		now.UTC(), id, limit,
	)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrQuotaExceeded
	}
	return nil
}

func expectRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("user %w", domain.ErrNotFound)
	}
	return nil
}

func scanUser(row interface {
	Scan(dest ...any) error
}) (*domain.User, error) {
	var (
		user    domain.User
		tier    string
		resetAt int64
	)
	if err := row.Scan(
		&user.ID,
		&user.Subject,
		&user.Email,
		&tier,
		&user.UsageCount,
		&resetAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.Tier = domain.Tier(tier)
	user.UsageResetAt = fromMillis(resetAt)
	return &user, nil
}
