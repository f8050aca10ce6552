package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	testIssuer   = "https://securetoken.google.com/resume-test"
	testAudience = "resume-test"
)

func newRSAVerifier(t *testing.T) (*Verifier, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	jwks := newJWKS(key, "test-key")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(jwks)
	}))
	t.Cleanup(server.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	verifier, err := NewVerifier(ctx, Config{Issuer: testIssuer, Audience: testAudience, JWKSURL: server.URL})
	if err != nil {
		t.Fatalf("failed to create verifier: %v", err)
	}
	return verifier, key
}

func testClaims(issuer, audience string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":   issuer,
		"aud":   audience,
		"sub":   "firebase-uid-1",
		"email": "jane@example.com",
		"exp":   now.Add(10 * time.Minute).Unix(),
		"iat":   now.Unix(),
	}
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	tokenString, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tokenString
}

func TestVerifyValidRS256Token(t *testing.T) {
	verifier, key := newRSAVerifier(t)
	token := signRS256(t, key, "test-key", testClaims(testIssuer, testAudience))

	identity, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.Subject != "firebase-uid-1" || identity.Email != "jane@example.com" {
		t.Fatalf("unexpected identity %+v", identity)
	}
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	verifier, key := newRSAVerifier(t)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	expired := testClaims(testIssuer, testAudience)
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	noSubject := testClaims(testIssuer, testAudience)
	delete(noSubject, "sub")

	hsToken := jwt.NewWithClaims(jwt.SigningMethodHS256, testClaims(testIssuer, testAudience))
	hsString, _ := hsToken.SignedString([]byte("secret"))

	cases := map[string]string{
		"wrong key":      signRS256(t, otherKey, "test-key", testClaims(testIssuer, testAudience)),
		"wrong issuer":   signRS256(t, key, "test-key", testClaims("https://evil.example", testAudience)),
		"wrong audience": signRS256(t, key, "test-key", testClaims(testIssuer, "other")),
		"expired":        signRS256(t, key, "test-key", expired),
		"no subject":     signRS256(t, key, "test-key", noSubject),
		"hs256":          hsString,
		"garbage":        "not.a.jwt",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := verifier.Verify(context.Background(), token); err == nil {
				t.Fatalf("expected %s to be rejected", name)
			}
		})
	}
}

func TestVerifyHS256Secret(t *testing.T) {
	verifier, err := NewVerifier(context.Background(), Config{Secret: "local-secret", Issuer: "resumeai-local"})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}

	claims := testClaims("resumeai-local", "")
	delete(claims, "aud")
	delete(claims, "sub")
	claims["user_id"] = "uid-from-user-id"
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("local-secret"))

	identity, err := verifier.Verify(context.Background(), token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.Subject != "uid-from-user-id" {
		t.Fatalf("unexpected identity %+v", identity)
	}

	forged, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	if _, err := verifier.Verify(context.Background(), forged); err == nil {
		t.Fatal("expected forged token to be rejected")
	}
}

func TestNewVerifierRequiresKeys(t *testing.T) {
	if _, err := NewVerifier(context.Background(), Config{Issuer: "x"}); err == nil {
		t.Fatal("expected error without keys")
	}
}

func TestFirebaseConfig(t *testing.T) {
	cfg := FirebaseConfig(" resume-test ")
	if cfg.Issuer != testIssuer || cfg.Audience != testAudience || cfg.JWKSURL != FirebaseJWKSURL {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc")
	if !ok || token != "abc" {
		t.Fatalf("expected token")
	}
	if token, ok := BearerToken("bearer  abc "); !ok || token != "abc" {
		t.Fatalf("expected case-insensitive scheme, got %q", token)
	}
	if _, ok := BearerToken("Bearer"); ok {
		t.Fatalf("expected invalid header")
	}
	if _, ok := BearerToken("Token abc"); ok {
		t.Fatalf("expected invalid scheme")
	}
	if _, ok := BearerToken(""); ok {
		t.Fatalf("expected empty header to be invalid")
	}
}

type jwksPayload struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newJWKS(key *rsa.PrivateKey, kid string) jwksPayload {
	n := base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes())
	return jwksPayload{
		Keys: []jwk{{
			Kty: "RSA",
			Kid: kid,
			Use: "sig",
			Alg: "RS256",
			N:   n,
			E:   e,
		}},
	}
}
