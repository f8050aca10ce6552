package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"resume-matcher/internal/domain"
	"resume-matcher/internal/repository"
)

const userColumns = `id, subject, email, subscription_tier, usage_count, usage_reset_at, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) repository.UserRepository {
	return &UserRepository{pool: pool}
}

// Init checks that the schema has been migrated.
func (r *UserRepository) Init(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, `SELECT 1 FROM users LIMIT 0`); err != nil {
		return fmt.Errorf("users table missing, run migrations: %w", err)
	}
	return nil
}

func (r *UserRepository) GetOrCreate(ctx context.Context, identity domain.Identity, now time.Time) (*domain.User, bool, error) {
	now = now.UTC()
	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (subject, email, subscription_tier, usage_count, usage_reset_at, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $4, $4)
		ON CONFLICT (subject) DO NOTHING
		RETURNING `+userColumns,
		identity.Subject, identity.Email, string(domain.TierFree), now,
	)
	user, err := scanUser(row)
	if err == nil {
		return user, true, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}

	user, err = r.GetBySubject(ctx, identity.Subject)
	if err != nil {
		return nil, false, err
	}
	return user, false, nil
}

func (r *UserRepository) GetBySubject(ctx context.Context, subject string) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE subject = $1`, subject)
	return scanUser(row)
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (r *UserRepository) ResetExpired(ctx context.Context, id int64, now time.Time, window time.Duration) (bool, error) {
	return resetExpired(ctx, r.pool, id, now, window)
}

func (r *UserRepository) ForceReset(ctx context.Context, id int64, tier domain.Tier, now time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users
		SET usage_count = 0, usage_reset_at = $1, subscription_tier = $2, updated_at = $1
		WHERE id = $3
	`, now.UTC(), string(tier), id)
	if err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %w", domain.ErrNotFound)
	}
	return nil
}

func (r *UserRepository) IncrementUsage(ctx context.Context, id int64, limit int, now time.Time) error {
	return incrementUsage(ctx, r.pool, id, limit, now)
}

func (r *UserRepository) SetTier(ctx context.Context, subject string, tier domain.Tier, now time.Time) (*domain.User, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE users SET subscription_tier = $1, updated_at = $2
		WHERE subject = $3
		RETURNING `+userColumns,
		string(tier), now.UTC(), subject,
	)
	return scanUser(row)
}

func resetExpired(ctx context.Context, db execer, id int64, now time.Time, window time.Duration) (bool, error) {
	now = now.UTC()
	tag, err := db.Exec(ctx, `
		UPDATE users
		SET usage_count = 0, usage_reset_at = $1, updated_at = $1
		WHERE id = $2 AND usage_reset_at < $3
	`, now, id, now.Add(-window))
	if err != nil {
		return false, fmt.Errorf("reset expired usage: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// incrementUsage relies on the row lock taken by UPDATE so concurrent charges
// see each other's increments.
func incrementUsage(ctx context.Context, db execer, id int64, limit int, now time.Time) error {
	tag, err := db.Exec(ctx, `
		UPDATE users
		SET usage_count = usage_count + 1, updated_at = $1
		WHERE id = $2 AND (subscription_tier IN ('pro', 'career_plus') OR usage_count < $3)
	`, now.UTC(), id, limit)
	if err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuotaExceeded
	}
	return nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user domain.User
		tier string
	)
	if err := row.Scan(
		&user.ID,
		&user.Subject,
		&user.Email,
		&tier,
		&user.UsageCount,
		&user.UsageResetAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	user.Tier = domain.Tier(tier)
	user.UsageResetAt = user.UsageResetAt.UTC()
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return &user, nil
}
