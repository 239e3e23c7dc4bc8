// Package identity turns bearer credentials into an authenticated
// identity.Principal. Two providers exist: HS256 JWTs for people and
// bcrypt-hashed static API keys for service principals.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	domain "github.com/alem-hub/achievement-hub/internal/domain/identity"
	"github.com/alem-hub/achievement-hub/internal/domain/shared"
)

// Provider authenticates a bearer token.
type Provider interface {
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
}

func unauthenticated(message string, err error) error {
	return shared.WrapError("identity", "Authenticate", shared.ErrUnauthenticated, message, err)
}

// ══════════════════════════════════════════════════════════════════════════════
// JWT
// ══════════════════════════════════════════════════════════════════════════════

// Claims carried by access tokens. The subject is the principal id.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTProvider verifies HS256 tokens signed with a shared secret.
type JWTProvider struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

// NewJWTProvider creates a provider. An empty issuer disables the issuer check.
func NewJWTProvider(secret, issuer string) (*JWTProvider, error) {
	if len(secret) < 16 {
		return nil, errors.New("identity: jwt secret must be at least 16 bytes")
	}
	return &JWTProvider{
		secret: []byte(secret),
		issuer: issuer,
		leeway: 30 * time.Second,
		now:    time.Now,
	}, nil
}

// Authenticate implements Provider.
func (p *JWTProvider) Authenticate(_ context.Context, token string) (domain.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(p.leeway),
		jwt.WithTimeFunc(p.now),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return domain.Principal{}, unauthenticated("invalid access token", err)
	}

	role, err := domain.ParseRole(claims.Role)
	if err != nil {
		return domain.Principal{}, unauthenticated("token carries an unknown role", err)
	}
	principal, err := domain.NewPrincipal(claims.Subject, role)
	if err != nil {
		return domain.Principal{}, unauthenticated("token carries no subject", err)
	}
	return principal, nil
}

// Issue signs a token for principal valid for ttl.
func (p *JWTProvider) Issue(principal domain.Principal, ttl time.Duration) (string, error) {
	now := p.now()
	claims := Claims{
		Role: principal.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.ID,
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
}

// ══════════════════════════════════════════════════════════════════════════════
// STATIC API KEYS
// ══════════════════════════════════════════════════════════════════════════════

// APIKey is one configured service principal. Tokens take the form
// "<principal_id>.<secret>"; only the bcrypt hash of the secret is stored.
type APIKey struct {
	PrincipalID string
	Role        domain.Role
	Hash        []byte
}

// ParseAPIKeys parses "principal:role:bcrypt-hash" entries.
func ParseAPIKeys(entries []string) ([]APIKey, error) {
	keys := make([]APIKey, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("identity: api key entry must be principal:role:hash")
		}
		role, err := domain.ParseRole(parts[1])
		if err != nil {
			return nil, err
		}
		if _, err := bcrypt.Cost([]byte(parts[2])); err != nil {
			return nil, fmt.Errorf("identity: api key for %s: %w", parts[0], err)
		}
		keys = append(keys, APIKey{PrincipalID: parts[0], Role: role, Hash: []byte(parts[2])})
	}
	return keys, nil
}

// HashAPISecret returns the bcrypt hash to configure for secret.
func HashAPISecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// APIKeyProvider verifies static API keys.
type APIKeyProvider struct {
	keys map[string]APIKey
}

// NewAPIKeyProvider creates a provider over keys.
func NewAPIKeyProvider(keys []APIKey) *APIKeyProvider {
	m := make(map[string]APIKey, len(keys))
	for _, k := range keys {
		m[k.PrincipalID] = k
	}
	return &APIKeyProvider{keys: m}
}

// Authenticate implements Provider.
func (p *APIKeyProvider) Authenticate(_ context.Context, token string) (domain.Principal, error) {
	id, secret, ok := strings.Cut(token, ".")
	if !ok || id == "" || secret == "" {
		return domain.Principal{}, unauthenticated("malformed api key", nil)
	}
	key, found := p.keys[id]
	if !found {
		return domain.Principal{}, unauthenticated("unknown api key", nil)
	}
	if err := bcrypt.CompareHashAndPassword(key.Hash, []byte(secret)); err != nil {
		return domain.Principal{}, unauthenticated("invalid api key", err)
	}
	return domain.NewPrincipal(key.PrincipalID, key.Role)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// Chain picks the provider by token shape: three dot-separated segments
// are a JWT, anything else is an API key.
type Chain struct {
	JWT     *JWTProvider
	APIKeys *APIKeyProvider
}

// Authenticate implements Provider.
func (c Chain) Authenticate(ctx context.Context, token string) (domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Principal{}, unauthenticated("missing bearer token", nil)
	}
	if strings.Count(token, ".") == 2 {
		if c.JWT == nil {
			return domain.Principal{}, unauthenticated("jwt authentication is disabled", nil)
		}
		return c.JWT.Authenticate(ctx, token)
	}
	if c.APIKeys == nil {
		return domain.Principal{}, unauthenticated("api key authentication is disabled", nil)
	}
	return c.APIKeys.Authenticate(ctx, token)
}
