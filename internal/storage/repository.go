// Package storage provides persistence for users and tasks.
//
// The access policy never touches storage: services load snapshots through
// these interfaces, ask the policy, then write through them again. Each write
// is a single statement touching only the fields its operation changes, so
// two mutations racing on one field resolve as last-write-wins and a write to
// one field never restores another from a stale snapshot.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/tasked-labs/tasked/internal/auth"
	"github.com/tasked-labs/tasked/internal/errors"
	"github.com/tasked-labs/tasked/internal/roles"
	"github.com/tasked-labs/tasked/internal/tasks"
)

// BootstrapClaim controls whether CreateUser tries to become the boss.
type BootstrapClaim int

const (
	// ClaimNone creates an employee.
	ClaimNone BootstrapClaim = iota

	// ClaimIfUnclaimed creates the boss when no boss has been designated yet,
	// an employee otherwise.
	ClaimIfUnclaimed

	// ClaimRequired creates the boss or fails with ErrBootstrap.
	ClaimRequired
)

// BootstrapState describes the single boss slot.
type BootstrapState struct {
	Claimed   bool
	BossID    int64
	ClaimedAt time.Time
}

// UserRepository defines user persistence.
// All implementations must be thread-safe and context-aware.
type UserRepository interface {
	// CreateUser inserts a user and fills in ID, Role and timestamps.
	// The role is never taken from the caller: the user becomes the boss only
	// by winning the bootstrap compare-and-set selected by claim, in the same
	// transaction as the insert.
	// Returns an error if:
	// - Username or email already exists (ErrAlreadyExists)
	// - claim is ClaimRequired and a boss already exists (ErrBootstrap)
	// - Context is cancelled
	CreateUser(ctx context.Context, user *auth.User, passwordHash string, claim BootstrapClaim) error

	// GetUser retrieves a user by id.
	// Returns ErrNotFound if the user does not exist.
	GetUser(ctx context.Context, id int64) (*auth.User, error)

	// GetCredentials retrieves a user and their password hash by username.
	// Returns ErrNotFound if the user does not exist.
	GetCredentials(ctx context.Context, username string) (*auth.User, string, error)

	// ListUsersByRole returns users holding role, ordered by id.
	// Returns empty slice (not nil) if none exist.
	ListUsersByRole(ctx context.Context, role roles.Role) ([]*auth.User, error)

	// BootstrapState reports whether the boss slot has been claimed.
	BootstrapState(ctx context.Context) (BootstrapState, error)
}

// TaskRepository defines task persistence.
// All implementations must be thread-safe and context-aware.
type TaskRepository interface {
	// CreateTask inserts a task and fills in ID, timestamps and the display
	// names. An empty status is stored as pending.
	CreateTask(ctx context.Context, task *tasks.Task) error

	// GetTask retrieves a task by id.
	// Returns ErrNotFound if the task does not exist.
	GetTask(ctx context.Context, id int64) (*tasks.Task, error)

	// UpdateTask writes only the fields selected by upd; every other column
	// keeps its stored value. CreatedBy is never written.
	// Returns ErrNotFound if the task does not exist.
	UpdateTask(ctx context.Context, id int64, upd TaskUpdate) error

	// DeleteTask removes a task by id.
	// Returns ErrNotFound if the task does not exist.
	DeleteTask(ctx context.Context, id int64) error

	// ListTasksForUser returns tasks created by or assigned to userID.
	ListTasksForUser(ctx context.Context, userID int64) ([]*tasks.Task, error)

	// ListTasksAssignedBy returns tasks created by userID that have an assignee.
	ListTasksAssignedBy(ctx context.Context, userID int64) ([]*tasks.Task, error)
}

// TaskUpdate selects the task fields one operation writes. Nil fields are
// left as stored, so concurrent operations on different fields do not undo
// each other.
type TaskUpdate struct {
	Title       *string
	Description *string
	Status      *tasks.Status

	// AssignmentSet writes AssignedTo; a nil AssignedTo then unassigns.
	AssignmentSet bool
	AssignedTo    *int64
}

// IsEmpty reports whether upd writes nothing.
func (u TaskUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil && !u.AssignmentSet
}

func (u TaskUpdate) validate() error {
	if (u.Title == nil) != (u.Description == nil) {
		return fmt.Errorf("storage: title and description are written together")
	}
	if u.Title != nil {
		if err := tasks.ValidateContent(*u.Title, *u.Description); err != nil {
			return err
		}
	}
	if u.Status != nil && !u.Status.IsValid() {
		return errors.NewValidation("status",
			fmt.Sprintf("must be one of %s, %s", tasks.StatusPending, tasks.StatusCompleted))
	}
	return nil
}

// Repository is the full persistence surface used by the services.
type Repository interface {
	UserRepository
	TaskRepository

	// CheckConnectivity verifies database connectivity.
	CheckConnectivity(ctx context.Context) error
}

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis restores millisecond precision and keeps UTC normalization.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}
