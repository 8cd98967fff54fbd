package storage

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/tasked-labs/tasked/internal/auth"
	"github.com/tasked-labs/tasked/internal/errors"
	"github.com/tasked-labs/tasked/internal/roles"
	"github.com/tasked-labs/tasked/internal/tasks"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It is thread-safe and respects context cancellation.
type MockRepository struct {
	mu        sync.RWMutex
	users     map[int64]*auth.User
	passwords map[int64]string
	tasks     map[int64]*tasks.Task
	bootstrap BootstrapState
	nextUser  int64
	nextTask  int64

	// Test helper fields for simulating failures
	connectivityFailure     bool
	persistenceFailure      bool
	connectivityCheckCalled bool
}

// NewMockRepository creates a new mock repository.
func NewMockRepository() *MockRepository {
	return &MockRepository{
		users:     make(map[int64]*auth.User),
		passwords: make(map[int64]string),
		tasks:     make(map[int64]*tasks.Task),
	}
}

// checkContext verifies the context is not cancelled or timed out.
func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// CreateUser inserts a user and runs the bootstrap compare-and-set.
func (r *MockRepository) CreateUser(ctx context.Context, user *auth.User, passwordHash string, claim BootstrapClaim) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.persistenceFailure {
		return errors.NewDatabaseUnavailable("persistence failure (simulated)")
	}
	for _, u := range r.users {
		if u.Username == user.Username {
			return errors.NewAlreadyExists("user", "username")
		}
		if u.Email == user.Email {
			return errors.NewAlreadyExists("user", "email")
		}
	}

	role := roles.Employee
	switch {
	case claim != ClaimNone && !r.bootstrap.Claimed:
		role = roles.Boss
	case claim == ClaimRequired:
		return errors.NewBootstrapError(
			"boss already designated",
			"the bootstrap step has already been completed",
			"create additional accounts as employees",
		)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	r.nextUser++
	stored := *user
	stored.ID = r.nextUser
	stored.Role = role
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.users[stored.ID] = &stored
	r.passwords[stored.ID] = passwordHash
	if role == roles.Boss {
		r.bootstrap = BootstrapState{Claimed: true, BossID: stored.ID, ClaimedAt: now}
	}

	*user = stored
	return nil
}

// GetUser retrieves a user by id.
func (r *MockRepository) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, errors.NewNotFound("user", strconv.FormatInt(id, 10))
	}
	cp := *u
	return &cp, nil
}

// GetCredentials retrieves a user and password hash by username.
func (r *MockRepository) GetCredentials(ctx context.Context, username string) (*auth.User, string, error) {
	if err := checkContext(ctx); err != nil {
		return nil, "", err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	for id, u := range r.users {
		if u.Username == username {
			cp := *u
			return &cp, r.passwords[id], nil
		}
	}
	return nil, "", errors.NewNotFound("user", username)
}

// ListUsersByRole returns users holding role, ordered by id.
func (r *MockRepository) ListUsersByRole(ctx context.Context, role roles.Role) ([]*auth.User, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*auth.User, 0)
	for _, u := range r.users {
		if u.Role == role {
			cp := *u
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// BootstrapState reports whether the boss slot has been claimed.
func (r *MockRepository) BootstrapState(ctx context.Context) (BootstrapState, error) {
	if err := checkContext(ctx); err != nil {
		return BootstrapState{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.bootstrap, nil
}

// CreateTask inserts a task.
func (r *MockRepository) CreateTask(ctx context.Context, task *tasks.Task) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if err := task.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.persistenceFailure {
		return errors.NewDatabaseUnavailable("persistence failure (simulated)")
	}
	if _, ok := r.users[task.CreatedBy]; !ok {
		return errors.NewNotFound("user", strconv.FormatInt(task.CreatedBy, 10))
	}
	if task.AssignedTo != nil {
		if _, ok := r.users[*task.AssignedTo]; !ok {
			return errors.NewNotFound("user", strconv.FormatInt(*task.AssignedTo, 10))
		}
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	r.nextTask++
	stored := task.Clone()
	stored.ID = r.nextTask
	if stored.Status == "" {
		stored.Status = tasks.StatusPending
	}
	stored.CreatedAt = now
	stored.UpdatedAt = now
	r.tasks[stored.ID] = stored

	*task = *r.withNames(stored)
	return nil
}

// GetTask retrieves a task by id.
func (r *MockRepository) GetTask(ctx context.Context, id int64) (*tasks.Task, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, errors.NewNotFound("task", strconv.FormatInt(id, 10))
	}
	return r.withNames(t), nil
}

// UpdateTask writes the fields selected by upd.
func (r *MockRepository) UpdateTask(ctx context.Context, id int64, upd TaskUpdate) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	if err := upd.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.persistenceFailure {
		return errors.NewDatabaseUnavailable("persistence failure (simulated)")
	}
	existing, ok := r.tasks[id]
	if !ok {
		return errors.NewNotFound("task", strconv.FormatInt(id, 10))
	}

	updated := existing.Clone()
	if upd.Title != nil {
		updated.Title = *upd.Title
		updated.Description = *upd.Description
	}
	if upd.AssignmentSet {
		updated.AssignedTo = nil
		if upd.AssignedTo != nil {
			assignee := *upd.AssignedTo
			if _, ok := r.users[assignee]; !ok {
				return errors.NewNotFound("user", strconv.FormatInt(assignee, 10))
			}
			updated.AssignedTo = &assignee
		}
	}
	if upd.Status != nil {
		updated.Status = *upd.Status
	}
	updated.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	r.tasks[id] = updated
	return nil
}

// DeleteTask removes a task by id.
func (r *MockRepository) DeleteTask(ctx context.Context, id int64) error {
	if err := checkContext(ctx); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.persistenceFailure {
		return errors.NewDatabaseUnavailable("persistence failure (simulated)")
	}
	if _, ok := r.tasks[id]; !ok {
		return errors.NewNotFound("task", strconv.FormatInt(id, 10))
	}
	delete(r.tasks, id)
	return nil
}

// ListTasksForUser returns tasks created by or assigned to userID.
func (r *MockRepository) ListTasksForUser(ctx context.Context, userID int64) ([]*tasks.Task, error) {
	return r.listTasks(ctx, func(t *tasks.Task) bool {
		return t.CreatedBy == userID || t.IsAssignedTo(userID)
	})
}

// ListTasksAssignedBy returns tasks created by userID that have an assignee.
func (r *MockRepository) ListTasksAssignedBy(ctx context.Context, userID int64) ([]*tasks.Task, error) {
	return r.listTasks(ctx, func(t *tasks.Task) bool {
		return t.CreatedBy == userID && t.AssignedTo != nil
	})
}

func (r *MockRepository) listTasks(ctx context.Context, keep func(*tasks.Task) bool) ([]*tasks.Task, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*tasks.Task, 0)
	for _, t := range r.tasks {
		if keep(t) {
			result = append(result, r.withNames(t))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// withNames returns a copy of t with display names filled in. Caller holds mu.
func (r *MockRepository) withNames(t *tasks.Task) *tasks.Task {
	cp := t.Clone()
	if u, ok := r.users[cp.CreatedBy]; ok {
		cp.CreatorName = u.Username
	}
	cp.AssigneeName = ""
	if cp.AssignedTo != nil {
		if u, ok := r.users[*cp.AssignedTo]; ok {
			cp.AssigneeName = u.Username
		}
	}
	return cp
}

// SetConnectivityFailure configures the mock to simulate connectivity failures.
func (r *MockRepository) SetConnectivityFailure(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectivityFailure = fail
}

// SetPersistenceFailure configures the mock to simulate persistence failures.
func (r *MockRepository) SetPersistenceFailure(fail bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.persistenceFailure = fail
}

// CheckConnectivity verifies database connectivity.
func (r *MockRepository) CheckConnectivity(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectivityCheckCalled = true

	if r.connectivityFailure {
		return errors.NewDatabaseUnavailable("mock connectivity failure")
	}
	return nil
}

// ConnectivityCheckCalled returns whether CheckConnectivity was called.
func (r *MockRepository) ConnectivityCheckCalled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connectivityCheckCalled
}

// Verify MockRepository implements Repository interface.
var _ Repository = (*MockRepository)(nil)
