package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tasked-labs/tasked/internal/errors"
	"github.com/tasked-labs/tasked/internal/status"
	"github.com/tasked-labs/tasked/pkg/api"
	"github.com/tasked-labs/tasked/pkg/models"
)

// GatewayClient is the HTTP client for communicating with the tasked gateway.
type GatewayClient struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewGatewayClient creates a new gateway client.
func NewGatewayClient(endpoint, token string) *GatewayClient {
	return &GatewayClient{
		endpoint: strings.TrimRight(endpoint, "/"),
		token:    token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Endpoint returns the configured gateway endpoint.
func (c *GatewayClient) Endpoint() string {
	return c.endpoint
}

// Token returns the configured authentication token.
func (c *GatewayClient) Token() string {
	return c.token
}

// Register creates an account. The first account becomes the boss when the
// gateway runs in first-registration mode.
func (c *GatewayClient) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	var result models.AuthResponse
	if err := c.call(ctx, http.MethodPost, api.EndpointRegister, req, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Login exchanges credentials for a bearer token.
func (c *GatewayClient) Login(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	var result models.AuthResponse
	req := models.LoginRequest{Username: username, Password: password}
	if err := c.call(ctx, http.MethodPost, api.EndpointLogin, req, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Logout revokes the current token.
func (c *GatewayClient) Logout(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, api.EndpointLogout, nil, http.StatusOK, nil)
}

// Me returns the authenticated user.
func (c *GatewayClient) Me(ctx context.Context) (*models.User, error) {
	var result models.User
	if err := c.call(ctx, http.MethodGet, api.EndpointMe, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateTask creates a task. Only the boss may do this.
func (c *GatewayClient) CreateTask(ctx context.Context, req models.CreateTaskRequest) (*models.Task, error) {
	var result models.Task
	if err := c.call(ctx, http.MethodPost, api.EndpointTasks, req, http.StatusCreated, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListMyTasks returns the tasks the caller created or is assigned to.
func (c *GatewayClient) ListMyTasks(ctx context.Context) ([]models.Task, error) {
	var result []models.Task
	if err := c.call(ctx, http.MethodGet, api.EndpointMyTasks, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ListAssignedByMe returns the tasks the caller created and assigned.
func (c *GatewayClient) ListAssignedByMe(ctx context.Context) ([]models.Task, error) {
	var result []models.Task
	if err := c.call(ctx, http.MethodGet, api.EndpointTasksAssignedBy, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateStatus sets the status of a task.
func (c *GatewayClient) UpdateStatus(ctx context.Context, id int64, taskStatus string) (*models.Task, error) {
	var result models.Task
	req := models.UpdateStatusRequest{Status: taskStatus}
	if err := c.call(ctx, http.MethodPatch, api.TaskPath(id), req, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// EditTask replaces title and description. The assignment changes only when
// req.AssignedTo is set.
func (c *GatewayClient) EditTask(ctx context.Context, id int64, req models.EditTaskRequest) (*models.Task, error) {
	var result models.Task
	if err := c.call(ctx, http.MethodPut, api.TaskPath(id), req, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// AssignTask sets or clears the assignee. A nil assignee unassigns.
func (c *GatewayClient) AssignTask(ctx context.Context, id int64, assignee *int64) (*models.Task, error) {
	var result models.Task
	req := models.AssignTaskRequest{AssignedTo: assignee}
	if err := c.call(ctx, http.MethodPatch, api.TaskAssignPath(id), req, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteTask deletes a task.
func (c *GatewayClient) DeleteTask(ctx context.Context, id int64) error {
	return c.call(ctx, http.MethodDelete, api.TaskPath(id), nil, http.StatusOK, nil)
}

// ListUsers returns the employees a task can be assigned to.
func (c *GatewayClient) ListUsers(ctx context.Context) ([]models.UserSummary, error) {
	var result []models.UserSummary
	if err := c.call(ctx, http.MethodGet, api.EndpointUsers, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetAuditSummary retrieves the policy decision summary. Boss only.
func (c *GatewayClient) GetAuditSummary(ctx context.Context) (*models.AuditSummary, error) {
	var result models.AuditSummary
	if err := c.call(ctx, http.MethodGet, api.EndpointAuditSummary, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetStatus retrieves system status from the gateway.
func (c *GatewayClient) GetStatus(ctx context.Context) (*status.StatusResult, error) {
	var result status.StatusResult
	if err := c.call(ctx, http.MethodGet, api.EndpointStatus, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetReadiness retrieves the readiness report. A not-ready gateway answers
// 503 with the same body, so both codes decode.
func (c *GatewayClient) GetReadiness(ctx context.Context) (*status.ReadinessResult, error) {
	if c.endpoint == "" {
		return nil, errors.NewGatewayUnavailable("", "no gateway endpoint configured")
	}

	resp, err := c.doRequest(ctx, http.MethodGet, api.EndpointReady, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return nil, c.parseErrorResponse(resp)
	}

	var result status.ReadinessResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

// GetHealthInfo retrieves the gateway health and version.
func (c *GatewayClient) GetHealthInfo(ctx context.Context) (*models.HealthResponse, error) {
	var result models.HealthResponse
	if err := c.call(ctx, http.MethodGet, api.EndpointHealth, nil, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CheckHealth verifies gateway connectivity.
func (c *GatewayClient) CheckHealth(ctx context.Context) (bool, error) {
	if c.endpoint == "" {
		return false, errors.NewGatewayUnavailable("", "no gateway endpoint configured")
	}

	resp, err := c.doRequest(ctx, http.MethodGet, api.EndpointHealth, nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK, nil
}

// call sends body as JSON and decodes the response into out when the gateway
// answers with want.
func (c *GatewayClient) call(ctx context.Context, method, path string, body any, want int, out any) error {
	if c.endpoint == "" {
		return errors.NewGatewayUnavailable("", "no gateway endpoint configured")
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	resp, err := c.doRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return c.parseErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// doRequest performs an HTTP request to the gateway.
func (c *GatewayClient) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	url := c.endpoint + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(api.HeaderContentType, api.ContentTypeJSON)
	if c.token != "" {
		req.Header.Set(api.HeaderAuthorization, "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewGatewayUnavailable(c.endpoint, err.Error())
	}

	return resp, nil
}

// parseErrorResponse turns a gateway error body back into the typed error
// the gateway rendered, so exit codes survive the round trip.
func (c *GatewayClient) parseErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnprocessableEntity {
		var verr models.ValidationErrorResponse
		if err := json.Unmarshal(body, &verr); err == nil && len(verr.Errors) > 0 {
			return validationError(verr)
		}
	}

	var errResp models.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Message == "" {
		return fmt.Errorf("gateway error: %d - %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	base := errors.TaskedError{
		Message:    errResp.Message,
		Reason:     errResp.Reason,
		Suggestion: errResp.Suggestion,
	}
	switch resp.StatusCode {
	case http.StatusBadRequest:
		base.Code = errors.CodeValidation
		return &errors.ErrValidation{TaskedError: base, Detail: errResp.Reason}
	case http.StatusUnauthorized:
		base.Code = errors.CodeAuth
		if base.Suggestion == "" {
			base.Suggestion = "authenticate with 'tasked auth login'"
		}
		return &errors.ErrAuthFailed{TaskedError: base}
	case http.StatusForbidden:
		base.Code = errors.CodeForbidden
		if errResp.Denial != "" {
			base.Reason = fmt.Sprintf("%s (%s)", base.Reason, errResp.Denial)
		}
		return &errors.ErrAccessDenied{TaskedError: base, Denial: errResp.Denial}
	case http.StatusNotFound:
		base.Code = errors.CodeNotFound
		return &errors.ErrNotFound{TaskedError: base}
	case http.StatusConflict:
		base.Code = errors.CodeValidation
		return &errors.ErrBootstrap{TaskedError: base}
	case http.StatusServiceUnavailable:
		base.Code = errors.CodeInternal
		return &errors.ErrDatabaseUnavailable{TaskedError: base}
	default:
		base.Code = errors.CodeInternal
		return &base
	}
}

// validationError folds a field error map into one error. Field is the first
// offending field in name order; Reason lists all of them.
func validationError(resp models.ValidationErrorResponse) *errors.ErrValidation {
	fields := make([]string, 0, len(resp.Errors))
	for field := range resp.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, strings.Join(resp.Errors[field], ", ")))
	}

	first := fields[0]
	verr := errors.NewValidation(first, strings.Join(resp.Errors[first], ", "))
	verr.Message = resp.Message
	verr.Reason = strings.Join(parts, "; ")
	return verr
}
