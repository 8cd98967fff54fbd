// Package policy decides who may do what to which task.
//
// Every rule lives in the single table evaluated by Evaluate. Decisions are a
// pure function of the acting user, the task snapshot and the proposed change:
// no I/O, no shared state, safe for concurrent use. Loading the actor and the
// task, and rejecting malformed input, happen before Evaluate is called.
//
// Ownership (CreatedBy) is the primary anchor and never transfers. Assignment
// grants the assignee one narrow capability: toggling the status.
package policy

import (
	"fmt"

	"github.com/tasked-labs/tasked/internal/errors"
	"github.com/tasked-labs/tasked/internal/roles"
	"github.com/tasked-labs/tasked/internal/tasks"
)

// Operation identifies a policy-gated action.
type Operation string

const (
	OpCreate           Operation = "create_task"
	OpViewMine         Operation = "view_my_tasks"
	OpViewAssignedByMe Operation = "view_assigned_by_me"
	OpChangeStatus     Operation = "change_status"
	OpEdit             Operation = "edit_task"
	OpAssign           Operation = "assign_task"
	OpDelete           Operation = "delete_task"
	OpListAssignees    Operation = "list_assignable_users"
	OpViewAudit        Operation = "view_audit_summary"
)

// Reason is the machine-readable code attached to a denial.
type Reason string

const (
	ReasonNotBoss            Reason = "NOT_BOSS"
	ReasonNotOwner           Reason = "NOT_OWNER"
	ReasonNotOwnerOrAssignee Reason = "NOT_OWNER_OR_ASSIGNEE"
	ReasonNotOwnerOrBoss     Reason = "NOT_OWNER_OR_BOSS"
	ReasonOwnerHasAssignee   Reason = "OWNER_HAS_ASSIGNEE"
	ReasonUnknownOperation   Reason = "UNKNOWN_OPERATION"
)

var reasonText = map[Reason]string{
	ReasonNotBoss:            "only a boss may perform this operation",
	ReasonNotOwner:           "only the creator of the task may perform this operation",
	ReasonNotOwnerOrAssignee: "only the creator or the assignee of the task may change its status",
	ReasonNotOwnerOrBoss:     "only the creator of the task or a boss may delete it",
	ReasonOwnerHasAssignee:   "a boss may only change the status of personal tasks, this one is assigned",
	ReasonUnknownOperation:   "the operation is not recognised",
}

// Describe returns a human-readable explanation of the reason.
func (r Reason) Describe() string {
	if text, ok := reasonText[r]; ok {
		return text
	}
	return string(r)
}

// Actor is the authenticated user a decision is made for.
type Actor struct {
	ID   int64
	Role roles.Role
}

// IsBoss reports whether the actor holds the boss role.
func (a Actor) IsBoss() bool {
	return a.Role == roles.Boss
}

// Change describes the assignment part of a proposed mutation.
type Change struct {
	// AssignmentSet is true when the request carries an assignment field,
	// even an explicit null.
	AssignmentSet bool

	// AssignedTo is the proposed assignee, nil for no assignee.
	AssignedTo *int64
}

// Request is the input to Evaluate.
type Request struct {
	Actor     Actor
	Operation Operation

	// Task is the current snapshot for task-scoped operations
	// (change status, edit, assign, delete). Nil otherwise.
	Task *tasks.Task

	Change Change
}

// Decision is the outcome of Evaluate. The zero value denies.
type Decision struct {
	Allowed bool
	Reason  Reason
}

// Allow returns an allowing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a denying decision with the given reason.
func Deny(reason Reason) Decision {
	return Decision{Reason: reason}
}

func (d Decision) String() string {
	if d.Allowed {
		return "allow"
	}
	return fmt.Sprintf("deny(%s)", d.Reason)
}

// Err converts a denial into an *errors.ErrAccessDenied. It returns nil when
// the decision allows.
func (d Decision) Err(op Operation) error {
	if d.Allowed {
		return nil
	}
	return errors.NewAccessDenied(string(op), string(d.Reason), d.Reason.Describe())
}

// Evaluate applies the access table to req.
//
//	create               assignment requires boss
//	view my tasks        always
//	view assigned by me  boss
//	change status        boss: creator of a personal task
//	                     employee: creator or assignee
//	edit                 creator; changing assignment also requires boss
//	assign               boss and creator
//	delete               creator or boss
//	list assignees       boss
//	view audit           boss
//
// Task-scoped operations with a nil Task are denied.
func Evaluate(req Request) Decision {
	a := req.Actor
	t := req.Task

	switch req.Operation {
	case OpCreate:
		if req.Change.AssignedTo != nil && !a.IsBoss() {
			return Deny(ReasonNotBoss)
		}
		return Allow()

	case OpViewMine:
		return Allow()

	case OpViewAssignedByMe, OpListAssignees, OpViewAudit:
		if !a.IsBoss() {
			return Deny(ReasonNotBoss)
		}
		return Allow()

	case OpChangeStatus:
		if t == nil {
			return Deny(ReasonNotOwnerOrAssignee)
		}
		return changeStatus(a, t)

	case OpEdit:
		if t == nil || t.CreatedBy != a.ID {
			return Deny(ReasonNotOwner)
		}
		if changesAssignment(req.Change, t) && !a.IsBoss() {
			return Deny(ReasonNotBoss)
		}
		return Allow()

	case OpAssign:
		if !a.IsBoss() {
			return Deny(ReasonNotBoss)
		}
		if t == nil || t.CreatedBy != a.ID {
			return Deny(ReasonNotOwner)
		}
		return Allow()

	case OpDelete:
		if t != nil && t.CreatedBy == a.ID {
			return Allow()
		}
		if a.IsBoss() {
			return Allow()
		}
		return Deny(ReasonNotOwnerOrBoss)

	default:
		return Deny(ReasonUnknownOperation)
	}
}

func changeStatus(a Actor, t *tasks.Task) Decision {
	switch a.Role {
	case roles.Boss:
		if t.CreatedBy != a.ID {
			return Deny(ReasonNotOwner)
		}
		if !t.IsPersonal() {
			return Deny(ReasonOwnerHasAssignee)
		}
		return Allow()
	case roles.Employee:
		if t.CreatedBy == a.ID || t.IsAssignedTo(a.ID) {
			return Allow()
		}
		return Deny(ReasonNotOwnerOrAssignee)
	default:
		return Deny(ReasonNotOwnerOrAssignee)
	}
}

// changesAssignment reports whether an edit sets an assignee or moves the
// task away from its current one. An explicit null on a personal task is
// not a change.
func changesAssignment(c Change, t *tasks.Task) bool {
	if !c.AssignmentSet {
		return false
	}
	return c.AssignedTo != nil || !tasks.SameAssignee(c.AssignedTo, t.AssignedTo)
}

// VisibleTo reports whether t belongs in the actor's "my tasks" listing.
func VisibleTo(a Actor, t *tasks.Task) bool {
	return t.CreatedBy == a.ID || t.IsAssignedTo(a.ID)
}

// AssignedBy reports whether t belongs in the actor's "assigned by me" listing.
func AssignedBy(a Actor, t *tasks.Task) bool {
	return t.CreatedBy == a.ID && !t.IsPersonal()
}

// Permissions summarises what an actor may do with one task.
type Permissions struct {
	ChangeStatus bool `json:"changeStatus"`
	Edit         bool `json:"edit"`
	Assign       bool `json:"assign"`
	Delete       bool `json:"delete"`
}

// PermissionsFor evaluates every task-scoped operation for a and t.
// Edit is reported without an assignment change.
func PermissionsFor(a Actor, t *tasks.Task) Permissions {
	eval := func(op Operation) bool {
		return Evaluate(Request{Actor: a, Operation: op, Task: t}).Allowed
	}
	return Permissions{
		ChangeStatus: eval(OpChangeStatus),
		Edit:         eval(OpEdit),
		Assign:       eval(OpAssign),
		Delete:       eval(OpDelete),
	}
}
