package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tasked-labs/tasked/internal/auth"
	"github.com/tasked-labs/tasked/internal/observability"
	"github.com/tasked-labs/tasked/internal/service"
	"github.com/tasked-labs/tasked/internal/status"
	"github.com/tasked-labs/tasked/internal/storage"
	"github.com/tasked-labs/tasked/pkg/api"
	"github.com/tasked-labs/tasked/pkg/models"
)

// TestSigningKey is the token signing key used by test gateways.
const TestSigningKey = "tasked-test-signing-key-0123456789abcdef"

// TestEnv is a gateway over an in-memory repository, for tests.
type TestEnv struct {
	Gateway *Gateway
	Repo    *storage.MockRepository
	Logger  *observability.JSONLogger
}

// NewTestEnv creates a gateway in first-registration mode backed by a mock
// repository.
func NewTestEnv(t testing.TB) *TestEnv {
	t.Helper()
	return NewTestEnvWithMode(t, service.ModeFirstRegistration)
}

// NewTestEnvWithMode creates a test gateway with the given bootstrap mode.
func NewTestEnvWithMode(t testing.TB, mode service.BootstrapMode) *TestEnv {
	t.Helper()

	repo := storage.NewMockRepository()
	logger := observability.NewJSONLogger(io.Discard)

	tokens, err := auth.NewJWTAuthenticator(auth.TokenConfig{
		SigningKey: []byte(TestSigningKey),
		Issuer:     "tasked-test",
		TTL:        time.Hour,
	})
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}

	gw, err := NewGateway(
		service.NewAccountService(repo, tokens, mode),
		service.NewTaskService(repo, logger),
		status.NewChecker(repo, string(mode), "test"),
		Config{Version: "test"},
	)
	if err != nil {
		t.Fatalf("failed to create gateway: %v", err)
	}
	return &TestEnv{Gateway: gw, Repo: repo, Logger: logger}
}

// NewTestGateway creates a test gateway.
func NewTestGateway(t testing.TB) *Gateway {
	t.Helper()
	return NewTestEnv(t).Gateway
}

// Do sends a JSON request through the gateway.
func (e *TestEnv) Do(t testing.TB, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(api.HeaderContentType, api.ContentTypeJSON)
	if token != "" {
		req.Header.Set(api.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.Gateway.ServeHTTP(rec, req)
	return rec
}

// Register creates an account through the API and returns its session.
func (e *TestEnv) Register(t testing.TB, username string) models.AuthResponse {
	t.Helper()

	rec := e.Do(t, http.MethodPost, api.EndpointRegister, "", models.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "password-" + username,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", username, rec.Code, rec.Body.String())
	}
	var resp models.AuthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode register response: %v", err)
	}
	return resp
}

// CreateTask creates a task through the API and returns it.
func (e *TestEnv) CreateTask(t testing.TB, token string, req models.CreateTaskRequest) models.Task {
	t.Helper()

	rec := e.Do(t, http.MethodPost, api.EndpointTasks, token, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task: status %d: %s", rec.Code, rec.Body.String())
	}
	var task models.Task
	if err := json.NewDecoder(rec.Body).Decode(&task); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	return task
}
