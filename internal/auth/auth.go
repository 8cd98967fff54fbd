// Package auth provides authentication for the tasked gateway: user identity,
// password hashing and bearer tokens.
//
// Authentication only answers "who is calling". What the caller may do with a
// task is decided by package policy.
package auth

import (
	"context"
	"time"

	"github.com/tasked-labs/tasked/internal/policy"
	"github.com/tasked-labs/tasked/internal/roles"
)

// User represents a registered account.
type User struct {
	// ID is the unique identifier for this user.
	ID int64 `json:"id"`

	// Username is the login name. Unique.
	Username string `json:"username"`

	// Email is the contact address. Unique.
	Email string `json:"email"`

	// Role is fixed at creation: the bootstrap step designates the single boss,
	// everybody else is an employee.
	Role roles.Role `json:"role"`

	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Age         *int   `json:"age,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Actor returns the policy view of the user.
func (u *User) Actor() policy.Actor {
	return policy.Actor{ID: u.ID, Role: u.Role}
}

// IsBoss checks if the user holds the boss role.
func (u *User) IsBoss() bool {
	return u.Role == roles.Boss
}

// Authenticator validates bearer tokens and returns their claims.
type Authenticator interface {
	// ValidateToken validates a token and returns its claims.
	// Returns an error if the token is invalid, expired or revoked.
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	userContextKey   contextKey = "tasked_user"
	claimsContextKey contextKey = "tasked_claims"
)

// ContextWithUser returns a new context with the user attached.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext extracts the user from the context.
// Returns nil if no user is attached.
func UserFromContext(ctx context.Context) *User {
	user, _ := ctx.Value(userContextKey).(*User)
	return user
}

// ContextWithClaims returns a new context with the token claims attached.
func ContextWithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// ClaimsFromContext extracts the token claims from the context.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsContextKey).(*Claims)
	return claims
}
