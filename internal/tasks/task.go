// Package tasks provides the task model and its status field.
package tasks

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tasked-labs/tasked/internal/errors"
)

// MaxTitleLength is the maximum number of characters in a task title.
const MaxTitleLength = 255

// Status is the completion state of a task.
type Status string

const (
	// StatusPending is the initial status of every task.
	StatusPending Status = "pending"

	// StatusCompleted marks a task as done. It is not terminal.
	StatusCompleted Status = "completed"
)

// AllStatuses returns all valid statuses.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusCompleted}
}

// IsValid checks if the status is a known valid status.
func (s Status) IsValid() bool {
	return s == StatusPending || s == StatusCompleted
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// ParseStatus parses a wire status value. Matching is exact and case-sensitive;
// anything but "pending" or "completed" is a validation error.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", errors.NewValidation("status",
			fmt.Sprintf("must be one of %s, %s", StatusPending, StatusCompleted))
	}
	return status, nil
}

// Task is a unit of work created by one user and optionally assigned to an
// employee.
type Task struct {
	ID          int64
	Title       string
	Description string

	// CreatedBy is the creator's user id. It is set once and never changes.
	CreatedBy int64

	// AssignedTo is the assignee's user id, nil for a personal task.
	AssignedTo *int64

	Status Status

	// CreatorName and AssigneeName are display fields filled by listings.
	CreatorName  string
	AssigneeName string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsPersonal reports whether the task has no assignee.
func (t *Task) IsPersonal() bool {
	return t.AssignedTo == nil
}

// IsAssignedTo reports whether the task is assigned to userID.
func (t *Task) IsAssignedTo(userID int64) bool {
	return t.AssignedTo != nil && *t.AssignedTo == userID
}

// Validate checks the user-supplied fields of a task.
func (t *Task) Validate() error {
	if err := ValidateContent(t.Title, t.Description); err != nil {
		return err
	}
	if t.Status != "" && !t.Status.IsValid() {
		return errors.NewValidation("status",
			fmt.Sprintf("must be one of %s, %s", StatusPending, StatusCompleted))
	}
	return nil
}

// ValidateContent checks a title and description pair.
func ValidateContent(title, description string) error {
	if strings.TrimSpace(title) == "" {
		return errors.NewValidation("title", "is required")
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return errors.NewValidation("title",
			fmt.Sprintf("must not be longer than %d characters", MaxTitleLength))
	}
	if strings.TrimSpace(description) == "" {
		return errors.NewValidation("description", "is required")
	}
	return nil
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	if t.AssignedTo != nil {
		id := *t.AssignedTo
		c.AssignedTo = &id
	}
	return &c
}

// SameAssignee reports whether two optional assignee ids are equal.
func SameAssignee(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
