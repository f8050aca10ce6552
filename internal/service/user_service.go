package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"resume-matcher/internal/domain"
	"resume-matcher/internal/repository"
)

const (
	DefaultHistoryLimit = 10
	maxHistoryLimit     = 100
)

var (
	// ErrAdminDisabled indicates no admin key hash is configured.
	ErrAdminDisabled = errors.New("admin access is not configured")
)

// Profile is the caller's subscription and usage summary.
type Profile struct {
	Email      string
	Tier       domain.Tier
	UsageCount int
	UsageLimit domain.Quota
	Remaining  domain.Quota
	ResetAt    time.Time
}

// UserService describes account-level operations.
type UserService interface {
	Profile(ctx context.Context, credential string) (*Profile, error)
	History(ctx context.Context, credential string, limit int) ([]domain.AnalysisRecord, error)
	SetTier(ctx context.Context, subject string, tier domain.Tier) (*domain.User, error)
	// ResetUsage zeroes a user's counter and restarts the window. The demo
	// subject is created when missing.
	ResetUsage(ctx context.Context, subject string) (*domain.User, error)
	AuthorizeAdmin(key string) error
}

type userService struct {
	identities   IdentityResolver
	ledger       QuotaLedger
	users        repository.UserRepository
	analyses     repository.AnalysisRepository
	demo         DemoIdentity
	adminKeyHash []byte
	now          func() time.Time
	logger       logrus.FieldLogger
}

type UserServiceOptions struct {
	Identities   IdentityResolver
	Ledger       QuotaLedger
	Users        repository.UserRepository
	Analyses     repository.AnalysisRepository
	Demo         DemoIdentity
	AdminKeyHash string
	Now          func() time.Time
	Logger       logrus.FieldLogger
}

func NewUserService(opts UserServiceOptions) UserService {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &userService{
		identities:   opts.Identities,
		ledger:       opts.Ledger,
		users:        opts.Users,
		analyses:     opts.Analyses,
		demo:         opts.Demo,
		adminKeyHash: []byte(strings.TrimSpace(opts.AdminKeyHash)),
		now:          now,
		logger:       logger,
	}
}

func (s *userService) Profile(ctx context.Context, credential string) (*Profile, error) {
	user, err := s.identities.Resolve(ctx, credential)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Email:      user.Email,
		Tier:       user.Tier,
		UsageCount: user.UsageCount,
		UsageLimit: domain.UsageLimit(user.Tier),
		Remaining:  s.ledger.Remaining(user),
		ResetAt:    user.UsageResetAt.Add(domain.ResetWindow),
	}, nil
}

func (s *userService) History(ctx context.Context, credential string, limit int) ([]domain.AnalysisRecord, error) {
	user, err := s.identities.Resolve(ctx, credential)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	records, err := s.analyses.ListByUser(ctx, user.ID, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.AnalysisRecord{}
	}
	return records, nil
}

func (s *userService) SetTier(ctx context.Context, subject string, tier domain.Tier) (*domain.User, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", domain.ErrInput)
	}
	if _, err := domain.ParseTier(string(tier)); err != nil {
		return nil, err
	}
	user, err := s.users.SetTier(ctx, subject, tier, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"subject": subject, "tier": tier}).Info("subscription tier changed")
	return user, nil
}

func (s *userService) ResetUsage(ctx context.Context, subject string) (*domain.User, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", domain.ErrInput)
	}

	user, err := s.users.GetBySubject(ctx, subject)
	if errors.Is(err, domain.ErrNotFound) && s.demo.Subject != "" && subject == s.demo.Subject {
		user, _, err = s.users.GetOrCreate(ctx, domain.Identity{Subject: s.demo.Subject, Email: s.demo.Email}, s.now())
	}
	if err != nil {
		return nil, err
	}

	if err := s.ledger.ForceReset(ctx, user, user.Tier); err != nil {
		return nil, err
	}
	s.logger.WithField("subject", subject).Info("usage counter reset")
	return user, nil
}

func (s *userService) AuthorizeAdmin(key string) error {
	if len(s.adminKeyHash) == 0 {
		return fmt.Errorf("%w: %w", domain.ErrAuthentication, ErrAdminDisabled)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: missing admin key", domain.ErrAuthentication)
	}
	if err := bcrypt.CompareHashAndPassword(s.adminKeyHash, []byte(key)); err != nil {
		return fmt.Errorf("%w: invalid admin key", domain.ErrAuthentication)
	}
	return nil
}
