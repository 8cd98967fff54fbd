package gateway

import (
	"github.com/tasked-labs/tasked/internal/auth"
	"github.com/tasked-labs/tasked/internal/observability"
	"github.com/tasked-labs/tasked/internal/policy"
	"github.com/tasked-labs/tasked/internal/tasks"
	"github.com/tasked-labs/tasked/pkg/models"
)

func toUser(u *auth.User) models.User {
	return models.User{
		ID:          u.ID,
		Username:    u.Username,
		Role:        u.Role.String(),
		FirstName:   u.FirstName,
		LastName:    u.LastName,
		Email:       u.Email,
		Phone:       u.Phone,
		Address:     u.Address,
		Age:         u.Age,
		DateOfBirth: u.DateOfBirth,
	}
}

// toTask renders t as seen by viewer, including what viewer may do with it.
func toTask(t *tasks.Task, viewer *auth.User) models.Task {
	out := models.Task{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status.String(),
		CreatedBy:   t.CreatedBy,
		Creator:     t.CreatorName,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
	if t.AssignedTo != nil {
		id := *t.AssignedTo
		out.AssignedTo = &id
		if t.AssigneeName != "" {
			name := t.AssigneeName
			out.Assignee = &name
		}
	}
	if viewer != nil {
		p := policy.PermissionsFor(viewer.Actor(), t)
		out.Permissions = &models.Permissions{
			ChangeStatus: p.ChangeStatus,
			Edit:         p.Edit,
			Assign:       p.Assign,
			Delete:       p.Delete,
		}
	}
	return out
}

func toTasks(list []*tasks.Task, viewer *auth.User) []models.Task {
	out := make([]models.Task, 0, len(list))
	for _, t := range list {
		out = append(out, toTask(t, viewer))
	}
	return out
}

func toAuditSummary(s *observability.AuditSummary) models.AuditSummary {
	out := models.AuditSummary{
		AllowedCount:   s.AllowedCount,
		DeniedCount:    s.DeniedCount,
		ErrorCount:     s.ErrorCount,
		TopDenyReasons: make([]models.ReasonStat, 0, len(s.TopDenyReasons)),
		TopOperations:  make([]models.OperationStat, 0, len(s.TopOperations)),
	}
	for _, r := range s.TopDenyReasons {
		out.TopDenyReasons = append(out.TopDenyReasons, models.ReasonStat{Reason: r.Reason, Count: r.Count})
	}
	for _, o := range s.TopOperations {
		out.TopOperations = append(out.TopOperations, models.OperationStat{Operation: o.Operation, Count: o.Count})
	}
	return out
}
