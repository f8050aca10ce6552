package repository

import (
	"context"
	"time"

	"resume-matcher/internal/domain"
)

// UserRepository defines persistence operations for User entities and their
// usage counters. Counter mutations are single conditional statements so that
// concurrent requests for the same user cannot overshoot a limit.
type UserRepository interface {
	Init(ctx context.Context) error
	// GetOrCreate returns the user for identity.Subject, inserting a free user
	// anchored at now when none exists.
	GetOrCreate(ctx context.Context, identity domain.Identity, now time.Time) (*domain.User, bool, error)
	GetBySubject(ctx context.Context, subject string) (*domain.User, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	// ResetExpired zeroes the counter and moves the anchor to now when the
	// anchor is older than now minus window. It reports whether a reset happened.
	ResetExpired(ctx context.Context, id int64, now time.Time, window time.Duration) (bool, error)
	// ForceReset zeroes the counter, moves the anchor to now and sets the tier.
	ForceReset(ctx context.Context, id int64, tier domain.Tier, now time.Time) error
	// IncrementUsage adds one to the counter unless the user is on the free
	// tier and already at limit, in which case domain.ErrQuotaExceeded is returned.
	IncrementUsage(ctx context.Context, id int64, limit int, now time.Time) error
	SetTier(ctx context.Context, subject string, tier domain.Tier, now time.Time) (*domain.User, error)
}

// AnalysisRepository stores analysis receipts.
type AnalysisRepository interface {
	Init(ctx context.Context) error
	// CreateCharged applies the reset rule, increments the owner's counter
	// under limit and inserts rec, all in one transaction. When the owner is
	// over the limit nothing is written and domain.ErrQuotaExceeded is returned.
	CreateCharged(ctx context.Context, rec *domain.AnalysisRecord, limit int, window time.Duration, now time.Time) error
	ListByUser(ctx context.Context, userID int64, limit int) ([]domain.AnalysisRecord, error)
}
