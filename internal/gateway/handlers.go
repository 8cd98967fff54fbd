package gateway

import (
	"net/http"

	"github.com/tasked-labs/tasked/internal/auth"
	"github.com/tasked-labs/tasked/internal/service"
	"github.com/tasked-labs/tasked/pkg/models"
)

// HealthResponse is returned by /health.
type HealthResponse = models.HealthResponse

// GET /health
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: g.cfg.Version})
}

// GET /readyz
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	readiness := g.checker.Readiness(r.Context())
	code := http.StatusOK
	if !readiness.Ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, readiness)
}

// GET /status
func (g *Gateway) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := g.checker.GetStatus(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// POST /api/v1/auth/register
func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := g.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	in := service.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Phone:       req.Phone,
		Address:     req.Address,
		Age:         req.Age,
		DateOfBirth: req.DateOfBirth,
	}
	if errs := in.ValidationErrors(); len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	session, err := g.accounts.Register(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAuthResponse(session))
}

// POST /api/v1/auth/login
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := g.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	session, err := g.accounts.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuthResponse(session))
}

// POST /api/v1/auth/logout
func (g *Gateway) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := g.accounts.Logout(r.Context(), auth.ClaimsFromContext(r.Context())); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "logged out"})
}

// GET /api/v1/auth/me
func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toUser(auth.UserFromContext(r.Context())))
}

func toAuthResponse(s *service.Session) models.AuthResponse {
	return models.AuthResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		User:      toUser(s.User),
	}
}

// POST /api/v1/tasks
func (g *Gateway) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req models.CreateTaskRequest
	if err := g.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	actor := auth.UserFromContext(r.Context())
	task, err := g.tasks.Create(r.Context(), actor, service.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTask(task, actor))
}

// GET /api/v1/tasks/my
func (g *Gateway) handleMyTasks(w http.ResponseWriter, r *http.Request) {
	actor := auth.UserFromContext(r.Context())
	list, err := g.tasks.ListMine(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTasks(list, actor))
}

// GET /api/v1/tasks/assigned-by-me
func (g *Gateway) handleAssignedByMe(w http.ResponseWriter, r *http.Request) {
	actor := auth.UserFromContext(r.Context())
	list, err := g.tasks.ListAssignedByMe(r.Context(), actor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTasks(list, actor))
}

// PATCH /api/v1/tasks/{id}
func (g *Gateway) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.UpdateStatusRequest
	if err := g.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	actor := auth.UserFromContext(r.Context())
	task, err := g.tasks.UpdateStatus(r.Context(), actor, id, req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTask(task, actor))
}

// PUT /api/v1/tasks/{id}
func (g *Gateway) handleEditTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.EditTaskRequest
	if err := g.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	actor := auth.UserFromContext(r.Context())
	task, err := g.tasks.Edit(r.Context(), actor, id, service.EditTaskInput{
		Title:         req.Title,
		Description:   req.Description,
		AssignmentSet: req.AssignedTo.Set,
		AssignedTo:    req.AssignedTo.Value,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTask(task, actor))
}

// PATCH /api/v1/tasks/{id}/assign
func (g *Gateway) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.AssignTaskRequest
	if err := g.decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	actor := auth.UserFromContext(r.Context())
	task, err := g.tasks.Assign(r.Context(), actor, id, req.AssignedTo)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTask(task, actor))
}

// DELETE /api/v1/tasks/{id}
func (g *Gateway) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	id, err := taskID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := g.tasks.Delete(r.Context(), auth.UserFromContext(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.MessageResponse{Message: "task deleted"})
}

// GET /api/v1/users
func (g *Gateway) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := g.tasks.ListAssignableUsers(r.Context(), auth.UserFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]models.UserSummary, 0, len(users))
	for _, u := range users {
		out = append(out, models.UserSummary{ID: u.ID, Username: u.Username, Email: u.Email})
	}
	writeJSON(w, http.StatusOK, out)
}

// GET /api/v1/audit/summary
func (g *Gateway) handleAuditSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := g.tasks.AuditSummary(r.Context(), auth.UserFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditSummary(summary))
}
