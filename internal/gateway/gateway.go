// Package gateway exposes the task and account services over HTTP.
//
// Handlers only translate: they decode the request, call the service and map
// the result or error back to JSON. No handler inspects roles or ownership;
// every access decision is made by the service through the access policy.
package gateway

import (
	"fmt"
	"net/http"

	"github.com/tasked-labs/tasked/internal/service"
	"github.com/tasked-labs/tasked/internal/status"
	"github.com/tasked-labs/tasked/pkg/api"
)

// DefaultMaxBodyBytes caps request bodies.
const DefaultMaxBodyBytes = 1 << 20

// Config configures the gateway.
type Config struct {
	// Version is reported by /health and /status.
	Version string

	// AccessLog writes one log line per request.
	AccessLog bool

	// MaxBodyBytes caps request bodies. Zero uses DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// Gateway is the HTTP front of tasked.
type Gateway struct {
	accounts *service.AccountService
	tasks    *service.TaskService
	checker  *status.Checker
	cfg      Config

	handler http.Handler
}

// NewGateway creates a gateway. All services are mandatory.
func NewGateway(accounts *service.AccountService, tasks *service.TaskService, checker *status.Checker, cfg Config) (*Gateway, error) {
	if accounts == nil {
		return nil, fmt.Errorf("gateway: account service is required")
	}
	if tasks == nil {
		return nil, fmt.Errorf("gateway: task service is required")
	}
	if checker == nil {
		return nil, fmt.Errorf("gateway: status checker is required")
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	g := &Gateway{
		accounts: accounts,
		tasks:    tasks,
		checker:  checker,
		cfg:      cfg,
	}
	g.handler = g.routes()
	return g, nil
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.handler.ServeHTTP(w, r)
}

func (g *Gateway) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+api.EndpointHealth, g.handleHealth)
	mux.HandleFunc("GET "+api.EndpointReady, g.handleReady)
	mux.HandleFunc("GET "+api.EndpointStatus, g.handleStatus)

	mux.HandleFunc("POST "+api.EndpointRegister, g.handleRegister)
	mux.HandleFunc("POST "+api.EndpointLogin, g.handleLogin)
	mux.Handle("POST "+api.EndpointLogout, g.authenticated(g.handleLogout))
	mux.Handle("GET "+api.EndpointMe, g.authenticated(g.handleMe))

	mux.Handle("POST "+api.EndpointTasks, g.authenticated(g.handleCreateTask))
	mux.Handle("GET "+api.EndpointMyTasks, g.authenticated(g.handleMyTasks))
	mux.Handle("GET "+api.EndpointTasksAssignedBy, g.authenticated(g.handleAssignedByMe))
	mux.Handle("PATCH "+api.EndpointTasks+"/{id}", g.authenticated(g.handleUpdateStatus))
	mux.Handle("PUT "+api.EndpointTasks+"/{id}", g.authenticated(g.handleEditTask))
	mux.Handle("PATCH "+api.EndpointTasks+"/{id}/assign", g.authenticated(g.handleAssignTask))
	mux.Handle("DELETE "+api.EndpointTasks+"/{id}", g.authenticated(g.handleDeleteTask))

	mux.Handle("GET "+api.EndpointUsers, g.authenticated(g.handleListUsers))
	mux.Handle("GET "+api.EndpointAuditSummary, g.authenticated(g.handleAuditSummary))

	var h http.Handler = mux
	if g.cfg.AccessLog {
		h = accessLog(h)
	}
	return withRequestID(withRecovery(h))
}
