// Package models provides shared data models for the tasked public API.
//
// Field names follow the wire contract of the mobile client: camelCase,
// with assignedTo carrying an employee id or null.
package models

import (
	"time"
)

// RegisterRequest is the API request for creating an account.
type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Age         *int   `json:"age,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
}

// LoginRequest is the API request for obtaining a token.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is the API representation of an account.
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	FirstName   string `json:"firstName,omitempty"`
	LastName    string `json:"lastName,omitempty"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Age         *int   `json:"age,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
}

// UserSummary is the API representation of an assignable employee.
type UserSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// AuthResponse is the API response for register and login.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// Task is the API representation of a task.
type Task struct {
	ID          int64        `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	AssignedTo  *int64       `json:"assignedTo"`
	Assignee    *string      `json:"assignee"`
	Status      string       `json:"status"`
	CreatedBy   int64        `json:"createdBy"`
	Creator     string       `json:"creator"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
	Permissions *Permissions `json:"permissions,omitempty"`
}

// Permissions tells the client which task actions the caller may take.
type Permissions struct {
	ChangeStatus bool `json:"changeStatus"`
	Edit         bool `json:"edit"`
	Assign       bool `json:"assign"`
	Delete       bool `json:"delete"`
}

// CreateTaskRequest is the API request for creating a task.
type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AssignedTo  *int64 `json:"assignedTo,omitempty"`
}

// UpdateStatusRequest is the API request for changing a task's status.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// EditTaskRequest is the API request for editing a task. An absent
// assignedTo keeps the current assignee; null unassigns.
type EditTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AssignedTo  OptionalID `json:"assignedTo,omitzero"`
}

// AssignTaskRequest is the API request for assigning or unassigning a task.
type AssignTaskRequest struct {
	AssignedTo *int64 `json:"assignedTo"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}

// AuditSummary is the API response for the decision audit summary.
type AuditSummary struct {
	AllowedCount   int             `json:"allowedCount"`
	DeniedCount    int             `json:"deniedCount"`
	ErrorCount     int             `json:"errorCount"`
	TopDenyReasons []ReasonStat    `json:"topDenyReasons"`
	TopOperations  []OperationStat `json:"topOperations"`
}

// ReasonStat counts one deny reason.
type ReasonStat struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// OperationStat counts one operation.
type OperationStat struct {
	Operation string `json:"operation"`
	Count     int    `json:"count"`
}

// HealthResponse is the API response for liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ErrorResponse is the API response for errors.
// Denial carries the policy reason code on 403 responses.
type ErrorResponse struct {
	Message    string `json:"message"`
	Reason     string `json:"reason,omitempty"`
	Denial     string `json:"denial,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
}

// ValidationErrorResponse is the API response for 422 errors: every
// offending field mapped to its messages.
type ValidationErrorResponse struct {
	Message string              `json:"message"`
	Errors  map[string][]string `json:"errors"`
}
