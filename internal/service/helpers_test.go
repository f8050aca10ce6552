package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"resume-matcher/internal/ai"
	"resume-matcher/internal/domain"
	"resume-matcher/internal/repository"
	"resume-matcher/internal/repository/sqlite"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock(t time.Time) *clock { return &clock{t: t} }

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type stubProvider struct {
	identities map[string]domain.Identity
}

func (p *stubProvider) Verify(_ context.Context, token string) (domain.Identity, error) {
	id, ok := p.identities[token]
	if !ok {
		return domain.Identity{}, errors.New("token rejected")
	}
	return id, nil
}

type stubAssistant struct {
	mu          sync.Mutex
	score       ai.ScoreResult
	rewriteErr  error
	letterErr   error
	rewrites    []string
	scoreCalls  int
	letterInput ai.CoverLetterInput
}

func (a *stubAssistant) Score(context.Context, string, string) ai.ScoreResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scoreCalls++
	return a.score
}

func (a *stubAssistant) Rewrite(_ context.Context, section, _, _ string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rewrites = append(a.rewrites, section)
	if a.rewriteErr != nil {
		return "", a.rewriteErr
	}
	return "REWRITTEN: " + section, nil
}

func (a *stubAssistant) CoverLetter(_ context.Context, in ai.CoverLetterInput) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.letterInput = in
	if a.letterErr != nil {
		return "", a.letterErr
	}
	return "Dear Hiring Manager,", nil
}

type stubScraper struct {
	text string
	err  error
	urls []string
}

func (s *stubScraper) Scrape(_ context.Context, url string) (string, error) {
	s.urls = append(s.urls, url)
	return s.text, s.err
}

type fixture struct {
	users     repository.UserRepository
	analyses  repository.AnalysisRepository
	clock     *clock
	ledger    QuotaLedger
	resolver  IdentityResolver
	assistant *stubAssistant
	scraper   *stubScraper
	analysis  AnalysisService
	logs      *test.Hook
	logger    *logrus.Logger
}

var testIdentities = map[string]domain.Identity{
	"token-free": {Subject: "free-user", Email: "free@example.com"},
	"token-pro":  {Subject: "pro-user", Email: "pro@example.com"},
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "service.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	users := sqlite.NewUserRepository(db)
	analyses := sqlite.NewAnalysisRepository(db)
	ctx := context.Background()
	if err := users.Init(ctx); err != nil {
		t.Fatalf("init users: %v", err)
	}
	if err := analyses.Init(ctx); err != nil {
		t.Fatalf("init analyses: %v", err)
	}

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	clk := newClock(time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC))
	ledger := NewQuotaLedger(users, analyses, clk.Now)
	resolver := NewIdentityResolver(IdentityResolverOptions{
		Users:    users,
		Ledger:   ledger,
		Provider: &stubProvider{identities: testIdentities},
		Demo:     DefaultDemoIdentity(),
		Now:      clk.Now,
		Logger:   logger,
	})
	assistant := &stubAssistant{score: ai.ScoreResult{
		Kind: ai.ScoreOK,
		Match: domain.MatchResult{
			MatchScore:      82,
			KeywordsMissing: []string{"Kubernetes"},
			KeywordsPresent: []string{"Go"},
			Suggestions:     []string{"Mention Kubernetes"},
		},
	}}
	scraper := &stubScraper{text: "Scraped job description"}

	return &fixture{
		users:     users,
		analyses:  analyses,
		clock:     clk,
		ledger:    ledger,
		resolver:  resolver,
		assistant: assistant,
		scraper:   scraper,
		analysis: NewAnalysisService(AnalysisServiceOptions{
			Identities: resolver,
			Ledger:     ledger,
			Assistant:  assistant,
			Scraper:    scraper,
			Logger:     logger,
		}),
		logs:   hook,
		logger: logger,
	}
}

// seedUser creates subject anchored at anchor with count uses already spent.
func (f *fixture) seedUser(t *testing.T, subject string, tier domain.Tier, count int, anchor time.Time) *domain.User {
	t.Helper()
	ctx := context.Background()
	user, _, err := f.users.GetOrCreate(ctx, domain.Identity{Subject: subject}, anchor)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	for i := 0; i < count; i++ {
		if err := f.users.IncrementUsage(ctx, user.ID, count, anchor); err != nil {
			t.Fatalf("seed usage: %v", err)
		}
	}
	if tier != domain.TierFree {
		if _, err := f.users.SetTier(ctx, subject, tier, anchor); err != nil {
			t.Fatalf("seed tier: %v", err)
		}
	}
	user, err = f.users.GetByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return user
}
