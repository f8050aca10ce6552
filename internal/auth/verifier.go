// Package auth verifies bearer ID tokens issued by the external identity provider.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"resume-matcher/internal/domain"
)

const (
	defaultLeeway = 30 * time.Second

	// FirebaseJWKSURL publishes the keys that sign Firebase ID tokens.
	FirebaseJWKSURL      = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	firebaseIssuerPrefix = "https://securetoken.google.com/"
)

// Config selects the signing keys. JWKSURL enables RS256 verification against
// a remote key set; otherwise Secret enables HS256.
type Config struct {
	Issuer   string
	Audience string
	JWKSURL  string
	Secret   string
}

// FirebaseConfig returns the settings that verify Firebase ID tokens for projectID.
func FirebaseConfig(projectID string) Config {
	projectID = strings.TrimSpace(projectID)
	return Config{
		Issuer:   firebaseIssuerPrefix + projectID,
		Audience: projectID,
		JWKSURL:  FirebaseJWKSURL,
	}
}

// Verifier validates ID tokens and extracts the caller identity.
type Verifier struct {
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
}

// NewVerifier builds a verifier. The JWKS refresh goroutine stops when ctx is done.
func NewVerifier(ctx context.Context, cfg Config) (*Verifier, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
	}
	if issuer := strings.TrimSpace(cfg.Issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience := strings.TrimSpace(cfg.Audience); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	var keys jwt.Keyfunc
	switch {
	case strings.TrimSpace(cfg.JWKSURL) != "":
		provider, err := keyfunc.NewDefaultCtx(ctx, []string{strings.TrimSpace(cfg.JWKSURL)})
		if err != nil {
			return nil, fmt.Errorf("init JWKS keyfunc: %w", err)
		}
		keys = provider.Keyfunc
		opts = append(opts, jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Name,
			jwt.SigningMethodRS384.Name,
			jwt.SigningMethodRS512.Name,
		}))
	case cfg.Secret != "":
		secret := []byte(cfg.Secret)
		keys = func(*jwt.Token) (any, error) { return secret, nil }
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	default:
		return nil, errors.New("either a JWKS url or a signing secret is required")
	}

	return &Verifier{
		keyfunc: keys,
		parser:  jwt.NewParser(opts...),
	}, nil
}

// Verify parses and validates token, returning its subject and email.
func (v *Verifier) Verify(_ context.Context, token string) (domain.Identity, error) {
	parsed, err := v.parser.Parse(token, v.keyfunc)
	if err != nil {
		return domain.Identity{}, err
	}
	if !parsed.Valid {
		return domain.Identity{}, errors.New("invalid token")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Identity{}, errors.New("invalid token claims")
	}

	identity := domain.Identity{
		Subject: readString(claims, "sub"),
		Email:   readString(claims, "email"),
	}
	if identity.Subject == "" {
		// firebase tokens also carry the uid as user_id
		identity.Subject = readString(claims, "user_id")
	}
	if identity.Subject == "" {
		return domain.Identity{}, errors.New("token missing sub")
	}
	return identity, nil
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
