package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"resume-matcher/internal/domain"
	"resume-matcher/internal/repository"
)

func TestLedgerExhaustsFreeLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "free-a", domain.TierFree, 0, f.clock.Now())

	for n := 0; n < domain.FreeUsageLimit; n++ {
		if got := f.ledger.Remaining(user); got != domain.Limited(domain.FreeUsageLimit-n) {
			t.Fatalf("remaining after %d uses = %v", n, got)
		}
		ok, err := f.ledger.Check(ctx, user)
		if err != nil || !ok {
			t.Fatalf("check %d: ok=%v err=%v", n, ok, err)
		}
		if err := f.ledger.Increment(ctx, user); err != nil {
			t.Fatalf("increment %d: %v", n, err)
		}
	}

	ok, err := f.ledger.Check(ctx, user)
	if err != nil || ok {
		t.Fatalf("expected check to fail at limit, ok=%v err=%v", ok, err)
	}
	if err := f.ledger.Increment(ctx, user); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if got := f.ledger.Remaining(user); got != domain.Limited(0) {
		t.Fatalf("expected 0 remaining, got %v", got)
	}

	f.clock.Advance(29 * 24 * time.Hour)
	if ok, _ := f.ledger.Check(ctx, user); ok {
		t.Fatalf("expected check to stay false inside the window")
	}
	f.clock.Advance(2 * 24 * time.Hour)
	if ok, _ := f.ledger.Check(ctx, user); !ok {
		t.Fatalf("expected check to pass after the window elapsed")
	}
}

func TestLedgerTierChangeLiftsLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "free-b", domain.TierFree, domain.FreeUsageLimit, f.clock.Now())
	if ok, _ := f.ledger.Check(ctx, user); ok {
		t.Fatalf("expected exhausted user to be denied")
	}

	user = f.seedUser(t, "free-b", domain.TierPro, 0, f.clock.Now())
	for i := 0; i < 5; i++ {
		ok, err := f.ledger.Check(ctx, user)
		if err != nil || !ok {
			t.Fatalf("pro check %d: ok=%v err=%v", i, ok, err)
		}
		if err := f.ledger.Increment(ctx, user); err != nil {
			t.Fatalf("pro increment %d: %v", i, err)
		}
		if !f.ledger.Remaining(user).Unlimited {
			t.Fatalf("expected unlimited remaining for pro")
		}
	}
}

func TestLedgerScenarioTenDaysIntoWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	user := f.seedUser(t, "free-c", domain.TierFree, 2, now.Add(-10*24*time.Hour))

	ok, err := f.ledger.Check(ctx, user)
	if err != nil || !ok {
		t.Fatalf("expected check true, ok=%v err=%v", ok, err)
	}
	if got := f.ledger.Remaining(user); got != domain.Limited(1) {
		t.Fatalf("expected remaining 1, got %v", got)
	}

	if err := f.ledger.Increment(ctx, user); err != nil {
		t.Fatalf("increment: %v", err)
	}
	if user.UsageCount != 3 {
		t.Fatalf("expected counter 3, got %d", user.UsageCount)
	}
	if ok, _ := f.ledger.Check(ctx, user); ok {
		t.Fatalf("expected check false after the third use")
	}
	if got := f.ledger.Remaining(user); got != domain.Limited(0) {
		t.Fatalf("expected remaining 0, got %v", got)
	}
}

func TestLedgerScenarioWindowExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := f.clock.Now()
	user := f.seedUser(t, "free-d", domain.TierFree, 3, now.Add(-31*24*time.Hour))

	ok, err := f.ledger.Check(ctx, user)
	if err != nil || !ok {
		t.Fatalf("expected reset then check true, ok=%v err=%v", ok, err)
	}
	if user.UsageCount != 0 || !user.UsageResetAt.Equal(now) {
		t.Fatalf("expected counter 0 anchored now, got %+v", user)
	}
	stored, err := f.users.GetByID(ctx, user.ID)
	if err != nil || stored.UsageCount != 0 || !stored.UsageResetAt.Equal(now) {
		t.Fatalf("check should persist the reset, stored=%+v err=%v", stored, err)
	}
	if got := f.ledger.Remaining(user); got != domain.Limited(3) {
		t.Fatalf("expected remaining 3, got %v", got)
	}
}

func TestLedgerCheckIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	start := f.clock.Now()
	user := f.seedUser(t, "free-e", domain.TierFree, 1, start)

	for i := 0; i < 5; i++ {
		if _, err := f.ledger.Check(ctx, user); err != nil {
			t.Fatalf("check: %v", err)
		}
	}
	if user.UsageCount != 1 || !user.UsageResetAt.Equal(start) {
		t.Fatalf("check changed state inside window: %+v", user)
	}

	f.clock.Advance(domain.ResetWindow + time.Hour)
	firstReset := f.clock.Now()
	for i := 0; i < 5; i++ {
		if _, err := f.ledger.Check(ctx, user); err != nil {
			t.Fatalf("check: %v", err)
		}
		f.clock.Advance(time.Minute)
	}
	if user.UsageCount != 0 || !user.UsageResetAt.Equal(firstReset) {
		t.Fatalf("expected a single reset anchored at %v, got %+v", firstReset, user)
	}
}

func TestLedgerEvaluate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "free-f", domain.TierFree, domain.FreeUsageLimit, f.clock.Now())

	decision, err := f.ledger.Evaluate(ctx, user)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if decision.Allowed || decision.Reason != domain.ErrQuotaExceeded.Error() || decision.Remaining != domain.Limited(0) {
		t.Fatalf("unexpected decision %+v", decision)
	}

	pro := f.seedUser(t, "pro-f", domain.TierCareerPlus, 0, f.clock.Now())
	decision, err = f.ledger.Evaluate(ctx, pro)
	if err != nil || !decision.Allowed || !decision.Remaining.Unlimited || decision.Reason != "" {
		t.Fatalf("unexpected decision %+v err=%v", decision, err)
	}
}

func TestLedgerCommitRecordsAndCharges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "free-g", domain.TierFree, 2, f.clock.Now())

	rec := &domain.AnalysisRecord{MatchScore: 77}
	if err := f.ledger.Commit(ctx, user, rec); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if rec.ID == 0 || rec.UserID != user.ID || user.UsageCount != 3 {
		t.Fatalf("unexpected state rec=%+v user=%+v", rec, user)
	}

	if err := f.ledger.Commit(ctx, user, &domain.AnalysisRecord{MatchScore: 50}); !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	records, err := f.analyses.ListByUser(ctx, user.ID, 10)
	if err != nil || len(records) != 1 {
		t.Fatalf("expected exactly one record, got %d err=%v", len(records), err)
	}
}

type flakyUsers struct {
	repository.UserRepository
	failGet bool
}

func (u *flakyUsers) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if u.failGet {
		return nil, errors.New("connection reset")
	}
	return u.UserRepository.GetByID(ctx, id)
}

func TestLedgerCommitSurvivesReloadFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	user := f.seedUser(t, "free-h", domain.TierFree, 1, f.clock.Now())

	users := &flakyUsers{UserRepository: f.users, failGet: true}
	ledger := NewQuotaLedger(users, f.analyses, f.clock.Now)

	if err := ledger.Commit(ctx, user, &domain.AnalysisRecord{MatchScore: 64}); err != nil {
		t.Fatalf("commit after stored charge should succeed, got %v", err)
	}
	if user.UsageCount != 2 {
		t.Fatalf("usage count = %d", user.UsageCount)
	}

	stored, err := f.users.GetByID(ctx, user.ID)
	if err != nil || stored.UsageCount != 2 {
		t.Fatalf("stored user %+v err=%v", stored, err)
	}
	records, err := f.analyses.ListByUser(ctx, user.ID, 10)
	if err != nil || len(records) != 1 {
		t.Fatalf("expected one record, got %d err=%v", len(records), err)
	}
}
