package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"resume-matcher/internal/domain"
	"resume-matcher/internal/metrics"
	"resume-matcher/internal/repository"
)

const (
	DefaultDemoToken   = "demo-token-123"
	DefaultDemoSubject = "demo-user-123"
	DefaultDemoEmail   = "demo@example.com"
)

// IdentityProvider verifies a bearer credential with the external identity service.
type IdentityProvider interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// DemoIdentity configures the sentinel credential. Every resolution of Token
// forces its user back to a fresh free window. An empty Token disables it.
type DemoIdentity struct {
	Token   string
	Subject string
	Email   string
}

func DefaultDemoIdentity() DemoIdentity {
	return DemoIdentity{
		Token:   DefaultDemoToken,
		Subject: DefaultDemoSubject,
		Email:   DefaultDemoEmail,
	}
}

// IdentityResolver maps a credential to a persisted user.
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (*domain.User, error)
}

type identityResolver struct {
	users    repository.UserRepository
	ledger   QuotaLedger
	provider IdentityProvider
	demo     DemoIdentity
	now      func() time.Time
	logger   logrus.FieldLogger
	metrics  *metrics.Metrics
}

type IdentityResolverOptions struct {
	Users    repository.UserRepository
	Ledger   QuotaLedger
	Provider IdentityProvider
	Demo     DemoIdentity
	Now      func() time.Time
	Logger   logrus.FieldLogger
	Metrics  *metrics.Metrics
}

func NewIdentityResolver(opts IdentityResolverOptions) IdentityResolver {
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &identityResolver{
		users:    opts.Users,
		ledger:   opts.Ledger,
		provider: opts.Provider,
		demo:     opts.Demo,
		now:      now,
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

func (r *identityResolver) Resolve(ctx context.Context, credential string) (*domain.User, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, fmt.Errorf("%w: missing credential", domain.ErrAuthentication)
	}
	if strings.ContainsAny(credential, " \t\r\n") {
		return nil, fmt.Errorf("%w: malformed credential", domain.ErrAuthentication)
	}

	if r.isDemo(credential) {
		return r.resolveDemo(ctx)
	}

	if r.provider == nil {
		return nil, fmt.Errorf("%w: identity provider not configured", domain.ErrAuthentication)
	}
	identity, err := r.provider.Verify(ctx, credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAuthentication, err)
	}
	if identity.Subject == "" {
		return nil, fmt.Errorf("%w: credential has no subject", domain.ErrAuthentication)
	}

	user, created, err := r.users.GetOrCreate(ctx, identity, r.now())
	if err != nil {
		return nil, err
	}
	if created {
		r.metrics.UserCreated()
		r.logger.WithField("subject", user.Subject).Info("created user")
		return user, nil
	}
	if err := r.ledger.ApplyReset(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (r *identityResolver) isDemo(credential string) bool {
	if r.demo.Token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(credential), []byte(r.demo.Token)) == 1
}

func (r *identityResolver) resolveDemo(ctx context.Context) (*domain.User, error) {
	user, created, err := r.users.GetOrCreate(ctx, domain.Identity{Subject: r.demo.Subject, Email: r.demo.Email}, r.now())
	if err != nil {
		return nil, err
	}
	if created {
		r.metrics.UserCreated()
	}
	if err := r.ledger.ForceReset(ctx, user, domain.TierFree); err != nil {
		return nil, err
	}
	r.logger.WithField("subject", user.Subject).Debug("demo credential reset to a fresh free window")
	return user, nil
}
