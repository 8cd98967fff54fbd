package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tasked-labs/tasked/internal/errors"
	"github.com/tasked-labs/tasked/internal/roles"
)

// MinSigningKeyLength is the minimum HMAC key size in bytes.
const MinSigningKeyLength = 32

// Claims are the registered JWT claims plus the tasked identity.
type Claims struct {
	UserID int64      `json:"uid"`
	Role   roles.Role `json:"role"`

	// Generation ties the token to the user's login generation. Logging in
	// again bumps the generation and invalidates every older token.
	Generation uint64 `json:"gen"`

	jwt.RegisteredClaims
}

// TokenConfig configures token issuance.
type TokenConfig struct {
	SigningKey []byte
	Issuer     string
	TTL        time.Duration
}

// JWTAuthenticator issues and validates HS256 bearer tokens.
// Revocation state is held in memory.
type JWTAuthenticator struct {
	cfg TokenConfig
	now func() time.Time

	mu          sync.RWMutex
	revoked     map[string]time.Time // token id → expiry
	generations map[int64]uint64     // user id → current login generation
}

// NewJWTAuthenticator creates a new token authenticator.
func NewJWTAuthenticator(cfg TokenConfig) (*JWTAuthenticator, error) {
	if len(cfg.SigningKey) < MinSigningKeyLength {
		return nil, fmt.Errorf("signing key must be at least %d bytes", MinSigningKeyLength)
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "tasked"
	}
	return &JWTAuthenticator{
		cfg:         cfg,
		now:         time.Now,
		revoked:     make(map[string]time.Time),
		generations: make(map[int64]uint64),
	}, nil
}

// Issue signs a new token for user.
func (a *JWTAuthenticator) Issue(user *User) (string, *Claims, error) {
	if user == nil || user.ID == 0 {
		return "", nil, fmt.Errorf("issue token: user required")
	}

	a.mu.RLock()
	gen := a.generations[user.ID]
	a.mu.RUnlock()

	now := a.now()
	claims := &Claims{
		UserID:     user.ID,
		Role:       user.Role,
		Generation: gen,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    a.cfg.Issuer,
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.cfg.SigningKey)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// ValidateToken validates a signed token.
func (a *JWTAuthenticator) ValidateToken(ctx context.Context, token string) (*Claims, error) {
	if token == "" {
		return nil, errors.NewAuthFailed("token required")
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.cfg.SigningKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		return nil, errors.NewAuthExpired()
	}
	if err != nil {
		return nil, errors.NewAuthFailed("invalid token")
	}
	if claims.UserID == 0 || !claims.Role.IsValid() {
		return nil, errors.NewAuthFailed("invalid token claims")
	}

	a.mu.RLock()
	_, revoked := a.revoked[claims.ID]
	gen := a.generations[claims.UserID]
	a.mu.RUnlock()

	if revoked || claims.Generation != gen {
		return nil, errors.NewAuthExpired()
	}
	return &claims, nil
}

// Revoke invalidates a single token until it would have expired anyway.
func (a *JWTAuthenticator) Revoke(claims *Claims) {
	if claims == nil || claims.ID == "" {
		return
	}
	expiry := a.now().Add(a.cfg.TTL)
	if claims.ExpiresAt != nil {
		expiry = claims.ExpiresAt.Time
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.pruneLocked()
	a.revoked[claims.ID] = expiry
}

// RevokeAll invalidates every token previously issued to userID.
func (a *JWTAuthenticator) RevokeAll(userID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.generations[userID]++
}

// pruneLocked drops revocations whose tokens have expired. Caller holds mu.
func (a *JWTAuthenticator) pruneLocked() {
	now := a.now()
	for id, expiry := range a.revoked {
		if now.After(expiry) {
			delete(a.revoked, id)
		}
	}
}

// Verify JWTAuthenticator implements Authenticator interface.
var _ Authenticator = (*JWTAuthenticator)(nil)
