// Package api defines the public API endpoints and headers of the tasked gateway.
package api

import "strconv"

// API version
const Version = "0.1.0"

// Prefix is the versioned API root.
const Prefix = "/api/v1"

// API endpoints
const (
	EndpointRegister        = Prefix + "/auth/register"
	EndpointLogin           = Prefix + "/auth/login"
	EndpointLogout          = Prefix + "/auth/logout"
	EndpointMe              = Prefix + "/auth/me"
	EndpointTasks           = Prefix + "/tasks"
	EndpointMyTasks         = Prefix + "/tasks/my"
	EndpointTasksAssignedBy = Prefix + "/tasks/assigned-by-me"
	EndpointUsers           = Prefix + "/users"
	EndpointAuditSummary    = Prefix + "/audit/summary"
	EndpointHealth          = "/health"
	EndpointReady           = "/readyz"
	EndpointStatus          = "/status"
)

// TaskPath returns the endpoint of a single task.
func TaskPath(id int64) string {
	return EndpointTasks + "/" + strconv.FormatInt(id, 10)
}

// TaskAssignPath returns the assignment endpoint of a single task.
func TaskAssignPath(id int64) string {
	return TaskPath(id) + "/assign"
}

// HTTP headers
const (
	HeaderContentType   = "Content-Type"
	HeaderAuthorization = "Authorization"
	HeaderRequestID     = "X-Request-ID"
)

// Content types
const (
	ContentTypeJSON = "application/json"
)
