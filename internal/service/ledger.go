package service

import (
	"context"
	"fmt"
	"time"

	"resume-matcher/internal/domain"
	"resume-matcher/internal/repository"
)

// QuotaLedger owns the per-user usage counter and its reset window.
//
// Check is advisory: it may persist an expired window's reset but never
// charges. The authoritative limit check happens in Commit, which charges and
// records in a single transaction. Concurrent requests may all pass Check, but
// at most the remaining allowance of them can Commit.
type QuotaLedger interface {
	// Check reports whether a quota-gated operation may proceed, applying the
	// reset rule first for free-tier users.
	Check(ctx context.Context, user *domain.User) (bool, error)
	// Increment charges one use without recording an analysis.
	Increment(ctx context.Context, user *domain.User) error
	Remaining(user *domain.User) domain.Quota
	Evaluate(ctx context.Context, user *domain.User) (domain.Decision, error)
	// Commit charges one use and stores rec atomically.
	Commit(ctx context.Context, user *domain.User, rec *domain.AnalysisRecord) error
	// ApplyReset applies the reset rule regardless of tier.
	ApplyReset(ctx context.Context, user *domain.User) error
	// ForceReset zeroes the counter and sets the tier unconditionally.
	ForceReset(ctx context.Context, user *domain.User, tier domain.Tier) error
}

type quotaLedger struct {
	users    repository.UserRepository
	analyses repository.AnalysisRepository
	now      func() time.Time
}

func NewQuotaLedger(users repository.UserRepository, analyses repository.AnalysisRepository, now func() time.Time) QuotaLedger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &quotaLedger{
		users:    users,
		analyses: analyses,
		now:      now,
	}
}

func (l *quotaLedger) Check(ctx context.Context, user *domain.User) (bool, error) {
	if user == nil {
		return false, fmt.Errorf("%w: nil user", domain.ErrInput)
	}
	limit := domain.UsageLimit(user.Tier)
	if limit.Unlimited {
		return true, nil
	}
	if err := l.ApplyReset(ctx, user); err != nil {
		return false, err
	}
	if err := l.refresh(ctx, user); err != nil {
		return false, err
	}
	return user.UsageCount < limit.Count, nil
}

func (l *quotaLedger) Increment(ctx context.Context, user *domain.User) error {
	if user == nil {
		return fmt.Errorf("%w: nil user", domain.ErrInput)
	}
	if err := l.users.IncrementUsage(ctx, user.ID, domain.FreeUsageLimit, l.now()); err != nil {
		return err
	}
	return l.refresh(ctx, user)
}

func (l *quotaLedger) Remaining(user *domain.User) domain.Quota {
	if user == nil {
		return domain.Limited(0)
	}
	limit := domain.UsageLimit(user.Tier)
	if limit.Unlimited {
		return limit
	}
	return domain.Limited(limit.Count - user.UsageCount)
}

func (l *quotaLedger) Evaluate(ctx context.Context, user *domain.User) (domain.Decision, error) {
	ok, err := l.Check(ctx, user)
	if err != nil {
		return domain.Decision{}, err
	}
	decision := domain.Decision{Allowed: ok, Remaining: l.Remaining(user)}
	if !ok {
		decision.Reason = domain.ErrQuotaExceeded.Error()
	}
	return decision, nil
}

func (l *quotaLedger) Commit(ctx context.Context, user *domain.User, rec *domain.AnalysisRecord) error {
	if user == nil || rec == nil {
		return fmt.Errorf("%w: nil user or record", domain.ErrInput)
	}
	rec.UserID = user.ID
	if err := l.analyses.CreateCharged(ctx, rec, domain.FreeUsageLimit, domain.ResetWindow, l.now()); err != nil {
		return err
	}
	// the charge is stored; a failed reload only leaves the copy stale
	if err := l.refresh(ctx, user); err != nil {
		user.UsageCount++
	}
	return nil
}

func (l *quotaLedger) ApplyReset(ctx context.Context, user *domain.User) error {
	now := l.now()
	reset, err := l.users.ResetExpired(ctx, user.ID, now, domain.ResetWindow)
	if err != nil {
		return err
	}
	if reset {
		user.UsageCount = 0
		user.UsageResetAt = now
	}
	return nil
}

func (l *quotaLedger) ForceReset(ctx context.Context, user *domain.User, tier domain.Tier) error {
	now := l.now()
	if err := l.users.ForceReset(ctx, user.ID, tier, now); err != nil {
		return err
	}
	user.Tier = tier
	user.UsageCount = 0
	user.UsageResetAt = now
	return nil
}

func (l *quotaLedger) refresh(ctx context.Context, user *domain.User) error {
	fresh, err := l.users.GetByID(ctx, user.ID)
	if err != nil {
		return err
	}
	*user = *fresh
	return nil
}
