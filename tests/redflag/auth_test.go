package redflag

import (
	"context"
	stderrors "errors"
	"net/http"
	"testing"
	"time"

	"github.com/tasked-labs/tasked/internal/auth"
	"github.com/tasked-labs/tasked/internal/errors"
	"github.com/tasked-labs/tasked/internal/gateway"
	"github.com/tasked-labs/tasked/internal/roles"
	"github.com/tasked-labs/tasked/pkg/api"
	"github.com/tasked-labs/tasked/pkg/models"
)

func newAuthenticator(t *testing.T, key string) *auth.JWTAuthenticator {
	t.Helper()
	a, err := auth.NewJWTAuthenticator(auth.TokenConfig{
		SigningKey: []byte(key),
		Issuer:     "tasked-test",
		TTL:        time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}
	return a
}

// TestAuth_EmptyToken proves that empty tokens are rejected.
//
// Red-Flag: System MUST reject authentication with empty token.
func TestAuth_EmptyToken(t *testing.T) {
	// Arrange
	authenticator := newAuthenticator(t, gateway.TestSigningKey)

	// Act
	_, err := authenticator.ValidateToken(context.Background(), "")

	// Assert: Error must be ErrAuthFailed
	var authErr *errors.ErrAuthFailed
	if !stderrors.As(err, &authErr) {
		t.Fatalf("expected ErrAuthFailed, got %T: %v", err, err)
	}
}

// TestAuth_ForgedToken proves that a token signed with another key is
// rejected even when its claims are well formed.
//
// Red-Flag: System MUST reject tokens it did not sign.
func TestAuth_ForgedToken(t *testing.T) {
	// Arrange: an attacker signs a boss token with their own key
	forger := newAuthenticator(t, "attacker-controlled-key-0123456789abcdef")
	forged, _, err := forger.Issue(&auth.User{ID: 1, Username: "boss", Role: roles.Boss})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	env := gateway.NewTestEnv(t)
	env.Register(t, "boss")

	// Act
	rec := env.Do(t, http.MethodGet, api.EndpointMe, forged, nil)

	// Assert
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

// TestAuth_GarbageTokens proves that malformed bearer values are rejected.
//
// Red-Flag: System MUST reject anything that is not a valid signed token.
func TestAuth_GarbageTokens(t *testing.T) {
	env := gateway.NewTestEnv(t)
	env.Register(t, "boss")

	for _, token := range []string{"x", "a.b.c", "Bearer", "eyJhbGciOiJub25lIn0.eyJ1aWQiOjF9."} {
		if rec := env.Do(t, http.MethodGet, api.EndpointMyTasks, token, nil); rec.Code != http.StatusUnauthorized {
			t.Errorf("token %q: status = %d, want 401", token, rec.Code)
		}
	}
}

// TestAuth_ExpiredToken proves that expired tokens are rejected.
//
// Red-Flag: System MUST reject authentication with expired tokens.
func TestAuth_ExpiredToken(t *testing.T) {
	// Arrange: a token with a lifetime shorter than its validation delay
	a, err := auth.NewJWTAuthenticator(auth.TokenConfig{
		SigningKey: []byte(gateway.TestSigningKey),
		TTL:        time.Second,
	})
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}
	token, _, err := a.Issue(&auth.User{ID: 7, Username: "alice", Role: roles.Employee})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Act
	time.Sleep(2100 * time.Millisecond)
	_, err = a.ValidateToken(context.Background(), token)

	// Assert
	var authErr *errors.ErrAuthFailed
	if !stderrors.As(err, &authErr) {
		t.Fatalf("expected ErrAuthFailed for expired token, got %v", err)
	}
}

// TestAuth_LoginRevokesEarlierTokens proves a new login invalidates every
// token issued before it.
//
// Red-Flag: System MUST NOT honour a token from a superseded session.
func TestAuth_LoginRevokesEarlierTokens(t *testing.T) {
	// Arrange
	env := gateway.NewTestEnv(t)
	first := env.Register(t, "alice")

	// Act
	rec := env.Do(t, http.MethodPost, api.EndpointLogin, "", models.LoginRequest{
		Username: "alice", Password: "password-alice",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d: %s", rec.Code, rec.Body.String())
	}

	// Assert
	if rec := env.Do(t, http.MethodGet, api.EndpointMe, first.Token, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("registration token after re-login: status = %d, want 401", rec.Code)
	}
}

// TestAuth_LogoutRevokesToken proves a token stops working once logged out.
//
// Red-Flag: System MUST reject a token after logout.
func TestAuth_LogoutRevokesToken(t *testing.T) {
	env := gateway.NewTestEnv(t)
	session := env.Register(t, "alice")

	if rec := env.Do(t, http.MethodPost, api.EndpointLogout, session.Token, nil); rec.Code != http.StatusOK {
		t.Fatalf("logout: status %d", rec.Code)
	}
	if rec := env.Do(t, http.MethodGet, api.EndpointMe, session.Token, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("token after logout: status = %d, want 401", rec.Code)
	}
}

// TestAuth_WrongPasswordLeaksNothing proves unknown users and wrong
// passwords are indistinguishable.
//
// Red-Flag: System MUST NOT reveal which usernames exist.
func TestAuth_WrongPasswordLeaksNothing(t *testing.T) {
	env := gateway.NewTestEnv(t)
	env.Register(t, "alice")

	wrong := env.Do(t, http.MethodPost, api.EndpointLogin, "", models.LoginRequest{Username: "alice", Password: "nope-nope"})
	unknown := env.Do(t, http.MethodPost, api.EndpointLogin, "", models.LoginRequest{Username: "mallory", Password: "nope-nope"})

	if wrong.Code != http.StatusUnauthorized || unknown.Code != http.StatusUnauthorized {
		t.Fatalf("status wrong=%d unknown=%d, want 401 for both", wrong.Code, unknown.Code)
	}
	var a, b models.ErrorResponse
	decodeBody(t, wrong.Body.Bytes(), &a)
	decodeBody(t, unknown.Body.Bytes(), &b)
	if a.Message != b.Message || a.Reason != b.Reason {
		t.Errorf("responses differ: %+v vs %+v", a, b)
	}
}
