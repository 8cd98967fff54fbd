package service

import (
	"context"

	"github.com/tasked-labs/tasked/internal/auth"
	"github.com/tasked-labs/tasked/internal/errors"
	"github.com/tasked-labs/tasked/internal/observability"
	"github.com/tasked-labs/tasked/internal/policy"
	"github.com/tasked-labs/tasked/internal/roles"
	"github.com/tasked-labs/tasked/internal/storage"
	"github.com/tasked-labs/tasked/internal/tasks"
)

// CreateTaskInput is a new task as submitted by its creator.
type CreateTaskInput struct {
	Title       string
	Description string

	// AssignedTo is the optional assignee. Only a boss may set it.
	AssignedTo *int64
}

// EditTaskInput is a full edit of a task.
type EditTaskInput struct {
	Title       string
	Description string

	// AssignmentSet is true when the edit carries assignedTo, even as null.
	// When false the current assignment is kept.
	AssignmentSet bool
	AssignedTo    *int64
}

// TaskService implements the task operations.
type TaskService struct {
	repo   storage.Repository
	logger observability.DecisionLogger
}

// NewTaskService creates a task service. A nil logger discards decisions.
func NewTaskService(repo storage.Repository, logger observability.DecisionLogger) *TaskService {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	return &TaskService{repo: repo, logger: logger}
}

// Create creates a task owned by actor.
func (s *TaskService) Create(ctx context.Context, actor *auth.User, in CreateTaskInput) (task *tasks.Task, err error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ctx, c := begin(ctx, s.logger, actor, policy.OpCreate, 0)
	defer func() { c.end(err) }()

	if err := tasks.ValidateContent(in.Title, in.Description); err != nil {
		return nil, err
	}
	if err := c.authorize(policy.Request{
		Change: policy.Change{AssignmentSet: in.AssignedTo != nil, AssignedTo: in.AssignedTo},
	}); err != nil {
		return nil, err
	}
	if err := s.resolveAssignee(ctx, in.AssignedTo); err != nil {
		return nil, err
	}

	task = &tasks.Task{
		Title:       in.Title,
		Description: in.Description,
		CreatedBy:   actor.ID,
		AssignedTo:  in.AssignedTo,
		Status:      tasks.StatusPending,
	}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	c.taskID = task.ID
	return task, nil
}

// ListMine returns the tasks actor created or was assigned.
func (s *TaskService) ListMine(ctx context.Context, actor *auth.User) (list []*tasks.Task, err error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ctx, c := begin(ctx, s.logger, actor, policy.OpViewMine, 0)
	defer func() { c.end(err) }()

	if err := c.authorize(policy.Request{}); err != nil {
		return nil, err
	}
	return s.repo.ListTasksForUser(ctx, actor.ID)
}

// ListAssignedByMe returns the tasks a boss created and assigned away.
func (s *TaskService) ListAssignedByMe(ctx context.Context, actor *auth.User) (list []*tasks.Task, err error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ctx, c := begin(ctx, s.logger, actor, policy.OpViewAssignedByMe, 0)
	defer func() { c.end(err) }()

	if err := c.authorize(policy.Request{}); err != nil {
		return nil, err
	}
	return s.repo.ListTasksAssignedBy(ctx, actor.ID)
}

// UpdateStatus sets the status of a task. Setting the current status again
// succeeds and leaves the task unchanged.
func (s *TaskService) UpdateStatus(ctx context.Context, actor *auth.User, id int64, status string) (task *tasks.Task, err error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ctx, c := begin(ctx, s.logger, actor, policy.OpChangeStatus, id)
	defer func() { c.end(err) }()

	next, err := tasks.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	task, err = s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(policy.Request{Task: task}); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTask(ctx, id, storage.TaskUpdate{Status: &next}); err != nil {
		return nil, err
	}
	return s.reload(ctx, task)
}

// Edit replaces the title and description of a task and, when the input
// carries one, its assignment.
func (s *TaskService) Edit(ctx context.Context, actor *auth.User, id int64, in EditTaskInput) (task *tasks.Task, err error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ctx, c := begin(ctx, s.logger, actor, policy.OpEdit, id)
	defer func() { c.end(err) }()

	if err := tasks.ValidateContent(in.Title, in.Description); err != nil {
		return nil, err
	}
	task, err = s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(policy.Request{
		Task:   task,
		Change: policy.Change{AssignmentSet: in.AssignmentSet, AssignedTo: in.AssignedTo},
	}); err != nil {
		return nil, err
	}

	upd := storage.TaskUpdate{Title: &in.Title, Description: &in.Description}
	if in.AssignmentSet && !tasks.SameAssignee(in.AssignedTo, task.AssignedTo) {
		if err := s.resolveAssignee(ctx, in.AssignedTo); err != nil {
			return nil, err
		}
		upd.AssignmentSet = true
		upd.AssignedTo = in.AssignedTo
	}
	if err := s.repo.UpdateTask(ctx, id, upd); err != nil {
		return nil, err
	}
	return s.reload(ctx, task)
}

// Assign sets or clears the assignee of a task. A nil assignee unassigns.
func (s *TaskService) Assign(ctx context.Context, actor *auth.User, id int64, assignee *int64) (task *tasks.Task, err error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ctx, c := begin(ctx, s.logger, actor, policy.OpAssign, id)
	defer func() { c.end(err) }()

	task, err = s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.authorize(policy.Request{
		Task:   task,
		Change: policy.Change{AssignmentSet: true, AssignedTo: assignee},
	}); err != nil {
		return nil, err
	}
	if err := s.resolveAssignee(ctx, assignee); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateTask(ctx, id, storage.TaskUpdate{AssignmentSet: true, AssignedTo: assignee}); err != nil {
		return nil, err
	}
	return s.reload(ctx, task)
}

// Delete removes a task.
func (s *TaskService) Delete(ctx context.Context, actor *auth.User, id int64) (err error) {
	if err := requireActor(actor); err != nil {
		return err
	}
	ctx, c := begin(ctx, s.logger, actor, policy.OpDelete, id)
	defer func() { c.end(err) }()

	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if err := c.authorize(policy.Request{Task: task}); err != nil {
		return err
	}
	return s.repo.DeleteTask(ctx, id)
}

// ListAssignableUsers returns the employees a boss may assign tasks to.
func (s *TaskService) ListAssignableUsers(ctx context.Context, actor *auth.User) (users []*auth.User, err error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ctx, c := begin(ctx, s.logger, actor, policy.OpListAssignees, 0)
	defer func() { c.end(err) }()

	if err := c.authorize(policy.Request{}); err != nil {
		return nil, err
	}
	return s.repo.ListUsersByRole(ctx, roles.Employee)
}

// AuditSummary returns the aggregated decision statistics.
func (s *TaskService) AuditSummary(ctx context.Context, actor *auth.User) (summary *observability.AuditSummary, err error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	ctx, c := begin(ctx, s.logger, actor, policy.OpViewAudit, 0)
	defer func() { c.end(err) }()

	if err := c.authorize(policy.Request{}); err != nil {
		return nil, err
	}
	return s.logger.GetAuditSummary(ctx), nil
}

// resolveAssignee checks that a proposed assignee exists and is an employee.
// Bosses, the acting boss included, are never valid assignees.
func (s *TaskService) resolveAssignee(ctx context.Context, id *int64) error {
	if id == nil {
		return nil
	}
	user, err := s.repo.GetUser(ctx, *id)
	if err != nil {
		return err
	}
	if user.Role != roles.Employee {
		return errors.NewValidation("assignedTo", "must reference an employee")
	}
	return nil
}

// reload returns the stored task after a write, so callers see the fields
// other operations changed as well as their own.
func (s *TaskService) reload(ctx context.Context, task *tasks.Task) (*tasks.Task, error) {
	fresh, err := s.repo.GetTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

func requireActor(actor *auth.User) error {
	if actor == nil || actor.ID == 0 {
		return errors.NewAuthFailed("authentication required")
	}
	return nil
}
