package service

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/tasked-labs/tasked/internal/auth"
	"github.com/tasked-labs/tasked/internal/errors"
	"github.com/tasked-labs/tasked/internal/observability"
	"github.com/tasked-labs/tasked/internal/policy"
	"github.com/tasked-labs/tasked/internal/roles"
	"github.com/tasked-labs/tasked/internal/storage"
	"github.com/tasked-labs/tasked/internal/tasks"
)

type fixture struct {
	repo     *storage.MockRepository
	logs     *bytes.Buffer
	logger   *observability.JSONLogger
	tokens   *auth.JWTAuthenticator
	accounts *AccountService
	tasks    *TaskService

	boss, alice, bob *auth.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tokens, err := auth.NewJWTAuthenticator(auth.TokenConfig{
		SigningKey: []byte("0123456789abcdef0123456789abcdef"),
		TTL:        time.Hour,
	})
	if err != nil {
		t.Fatalf("NewJWTAuthenticator: %v", err)
	}

	f := &fixture{
		repo:   storage.NewMockRepository(),
		logs:   &bytes.Buffer{},
		tokens: tokens,
	}
	f.logger = observability.NewJSONLogger(f.logs)
	f.accounts = NewAccountService(f.repo, tokens, ModeFirstRegistration)
	f.tasks = NewTaskService(f.repo, f.logger)

	f.boss = f.register(t, "boss")
	f.alice = f.register(t, "alice")
	f.bob = f.register(t, "bob")
	return f
}

func (f *fixture) register(t *testing.T, username string) *auth.User {
	t.Helper()
	s, err := f.accounts.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret1",
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", username, err)
	}
	return s.User
}

func (f *fixture) create(t *testing.T, actor *auth.User, assignee *int64) *tasks.Task {
	t.Helper()
	task, err := f.tasks.Create(context.Background(), actor, CreateTaskInput{
		Title:       "T1",
		Description: "D1",
		AssignedTo:  assignee,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return task
}

func wantDenied(t *testing.T, err error, reason policy.Reason) {
	t.Helper()
	var denied *errors.ErrAccessDenied
	if !stderrors.As(err, &denied) {
		t.Fatalf("err = %v, want *ErrAccessDenied(%s)", err, reason)
	}
	if denied.Denial != string(reason) {
		t.Fatalf("denial = %s, want %s", denied.Denial, reason)
	}
}

func wantValidation(t *testing.T, err error, field string) {
	t.Helper()
	var verr *errors.ErrValidation
	if !stderrors.As(err, &verr) || verr.Field != field {
		t.Fatalf("err = %v, want validation error on %q", err, field)
	}
}

func wantNotFound(t *testing.T, err error, resource string) {
	t.Helper()
	var nf *errors.ErrNotFound
	if !stderrors.As(err, &nf) || nf.Resource != resource {
		t.Fatalf("err = %v, want not found %q", err, resource)
	}
}

func ptr(v int64) *int64 { return &v }

func TestRegister_FirstAccountIsBoss(t *testing.T) {
	f := newFixture(t)
	if f.boss.Role != roles.Boss || f.alice.Role != roles.Employee || f.bob.Role != roles.Employee {
		t.Fatalf("roles = %s/%s/%s", f.boss.Role, f.alice.Role, f.bob.Role)
	}
}

func TestRegister_ExplicitModeNeverPromotes(t *testing.T) {
	tokens, _ := auth.NewJWTAuthenticator(auth.TokenConfig{SigningKey: bytes.Repeat([]byte("k"), 32), TTL: time.Hour})
	accounts := NewAccountService(storage.NewMockRepository(), tokens, ModeExplicit)

	s, err := accounts.Register(context.Background(), RegisterInput{Username: "first", Email: "first@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if s.User.Role != roles.Employee {
		t.Fatalf("role = %s, want employee", s.User.Role)
	}
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	negative := -1
	tests := []struct {
		field string
		in    RegisterInput
	}{
		{"username", RegisterInput{Email: "x@example.com", Password: "secret1"}},
		{"password", RegisterInput{Username: "x", Email: "x@example.com", Password: "abc"}},
		{"email", RegisterInput{Username: "x", Email: "not-an-email", Password: "secret1"}},
		{"phone", RegisterInput{Username: "x", Email: "x@example.com", Password: "secret1", Phone: strings.Repeat("1", 21)}},
		{"age", RegisterInput{Username: "x", Email: "x@example.com", Password: "secret1", Age: &negative}},
		{"dateOfBirth", RegisterInput{Username: "x", Email: "x@example.com", Password: "secret1", DateOfBirth: "01/02/1990"}},
	}
	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			_, err := f.accounts.Register(context.Background(), tt.in)
			wantValidation(t, err, tt.field)
		})
	}

	all := RegisterInput{Password: "x", Email: "bad"}.ValidationErrors()
	if len(all) != 3 {
		t.Fatalf("ValidationErrors = %d, want 3 (username, password, email)", len(all))
	}
}

func TestRegister_Duplicate(t *testing.T) {
	f := newFixture(t)
	_, err := f.accounts.Register(context.Background(), RegisterInput{Username: "alice", Email: "new@example.com", Password: "secret1"})
	var exists *errors.ErrAlreadyExists
	if !stderrors.As(err, &exists) {
		t.Fatalf("err = %v, want *ErrAlreadyExists", err)
	}
}

func TestLogin_RevokesPreviousTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.accounts.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	second, err := f.accounts.Login(ctx, "alice", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, _, err := f.accounts.Authenticate(ctx, first.Token); err == nil {
		t.Fatal("token from previous login still valid")
	}
	user, claims, err := f.accounts.Authenticate(ctx, second.Token)
	if err != nil || user.ID != f.alice.ID {
		t.Fatalf("Authenticate = %+v, %v", user, err)
	}

	if err := f.accounts.Logout(ctx, claims); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, _, err := f.accounts.Authenticate(ctx, second.Token); err == nil {
		t.Fatal("token still valid after logout")
	}
}

func TestLogin_BadCredentials(t *testing.T) {
	f := newFixture(t)
	for _, tc := range []struct{ user, pass string }{{"alice", "wrong-pw"}, {"nobody", "secret1"}} {
		_, err := f.accounts.Login(context.Background(), tc.user, tc.pass)
		var authErr *errors.ErrAuthFailed
		if !stderrors.As(err, &authErr) {
			t.Fatalf("Login(%s) err = %v, want *ErrAuthFailed", tc.user, err)
		}
	}
	_, err := f.accounts.Login(context.Background(), "", "x")
	wantValidation(t, err, "username")
}

// TestRoundTrip follows a task from a boss to an employee and back.
func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	task := f.create(t, f.boss, &f.alice.ID)
	if task.CreatedBy != f.boss.ID || !task.IsAssignedTo(f.alice.ID) || task.Status != tasks.StatusPending {
		t.Fatalf("created = %+v", task)
	}
	if task.CreatorName != "boss" || task.AssigneeName != "alice" {
		t.Fatalf("names = %q/%q", task.CreatorName, task.AssigneeName)
	}

	updated, err := f.tasks.UpdateStatus(ctx, f.alice, task.ID, "completed")
	if err != nil || updated.Status != tasks.StatusCompleted {
		t.Fatalf("UpdateStatus(alice) = %+v, %v", updated, err)
	}

	_, err = f.tasks.UpdateStatus(ctx, f.boss, task.ID, "completed")
	wantDenied(t, err, policy.ReasonOwnerHasAssignee)
}

func TestCreate_EmployeeCannotAssign(t *testing.T) {
	f := newFixture(t)
	_, err := f.tasks.Create(context.Background(), f.alice, CreateTaskInput{Title: "T", Description: "D", AssignedTo: &f.bob.ID})
	wantDenied(t, err, policy.ReasonNotBoss)

	mine, _ := f.tasks.ListMine(context.Background(), f.alice)
	if len(mine) != 0 {
		t.Fatalf("task was created despite denial: %+v", mine)
	}
}

func TestCreate_AssigneeResolution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tasks.Create(ctx, f.boss, CreateTaskInput{Title: "T", Description: "D", AssignedTo: ptr(999)})
	wantNotFound(t, err, "user")

	// Self-assignment by a boss is rejected rather than normalised.
	_, err = f.tasks.Create(ctx, f.boss, CreateTaskInput{Title: "T", Description: "D", AssignedTo: &f.boss.ID})
	wantValidation(t, err, "assignedTo")
}

func TestCreate_ValidationRunsFirst(t *testing.T) {
	f := newFixture(t)
	_, err := f.tasks.Create(context.Background(), f.alice, CreateTaskInput{Title: "", Description: "D", AssignedTo: &f.bob.ID})
	wantValidation(t, err, "title")
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	personal := f.create(t, f.boss, nil)
	aliceTask := f.create(t, f.alice, nil)

	// Invalid status is a validation error even for an unauthorised actor.
	_, err := f.tasks.UpdateStatus(ctx, f.bob, aliceTask.ID, "Completed")
	wantValidation(t, err, "status")

	_, err = f.tasks.UpdateStatus(ctx, f.bob, aliceTask.ID, "completed")
	wantDenied(t, err, policy.ReasonNotOwnerOrAssignee)

	_, err = f.tasks.UpdateStatus(ctx, f.boss, aliceTask.ID, "completed")
	wantDenied(t, err, policy.ReasonNotOwner)

	_, err = f.tasks.UpdateStatus(ctx, f.bob, 999, "completed")
	wantNotFound(t, err, "task")

	// Idempotent: the same transition twice is allowed and ends completed.
	for i := 0; i < 2; i++ {
		got, err := f.tasks.UpdateStatus(ctx, f.boss, personal.ID, "completed")
		if err != nil || got.Status != tasks.StatusCompleted {
			t.Fatalf("UpdateStatus #%d = %+v, %v", i, got, err)
		}
	}
	back, err := f.tasks.UpdateStatus(ctx, f.boss, personal.ID, "pending")
	if err != nil || back.Status != tasks.StatusPending {
		t.Fatalf("completed -> pending = %+v, %v", back, err)
	}
}

func TestEdit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assigned := f.create(t, f.boss, &f.alice.ID)
	aliceTask := f.create(t, f.alice, nil)

	// Omitting the assignment keeps it.
	got, err := f.tasks.Edit(ctx, f.boss, assigned.ID, EditTaskInput{Title: "New", Description: "Desc"})
	if err != nil || got.Title != "New" || !got.IsAssignedTo(f.alice.ID) {
		t.Fatalf("Edit(keep) = %+v, %v", got, err)
	}

	// Explicit null unassigns.
	got, err = f.tasks.Edit(ctx, f.boss, assigned.ID, EditTaskInput{Title: "New", Description: "Desc", AssignmentSet: true})
	if err != nil || !got.IsPersonal() {
		t.Fatalf("Edit(unassign) = %+v, %v", got, err)
	}

	// The assignee cannot edit.
	_, err = f.tasks.Edit(ctx, f.alice, assigned.ID, EditTaskInput{Title: "x", Description: "y"})
	wantDenied(t, err, policy.ReasonNotOwner)

	// An employee creator may edit but not assign.
	_, err = f.tasks.Edit(ctx, f.alice, aliceTask.ID, EditTaskInput{Title: "x", Description: "y", AssignmentSet: true, AssignedTo: &f.bob.ID})
	wantDenied(t, err, policy.ReasonNotBoss)
	got, err = f.tasks.Edit(ctx, f.alice, aliceTask.ID, EditTaskInput{Title: "x", Description: "y", AssignmentSet: true})
	if err != nil || got.Title != "x" {
		t.Fatalf("Edit(employee, null assignment) = %+v, %v", got, err)
	}

	// A boss cannot edit someone else's task.
	_, err = f.tasks.Edit(ctx, f.boss, aliceTask.ID, EditTaskInput{Title: "x", Description: "y"})
	wantDenied(t, err, policy.ReasonNotOwner)

	_, err = f.tasks.Edit(ctx, f.boss, assigned.ID, EditTaskInput{Title: "x", Description: ""})
	wantValidation(t, err, "description")
}

func TestAssign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.boss, nil)
	aliceTask := f.create(t, f.alice, nil)

	got, err := f.tasks.Assign(ctx, f.boss, task.ID, &f.bob.ID)
	if err != nil || !got.IsAssignedTo(f.bob.ID) || got.AssigneeName != "bob" {
		t.Fatalf("Assign = %+v, %v", got, err)
	}

	got, err = f.tasks.Assign(ctx, f.boss, task.ID, nil)
	if err != nil || !got.IsPersonal() {
		t.Fatalf("Unassign = %+v, %v", got, err)
	}

	_, err = f.tasks.Assign(ctx, f.alice, aliceTask.ID, &f.bob.ID)
	wantDenied(t, err, policy.ReasonNotBoss)

	_, err = f.tasks.Assign(ctx, f.boss, aliceTask.ID, &f.bob.ID)
	wantDenied(t, err, policy.ReasonNotOwner)

	_, err = f.tasks.Assign(ctx, f.boss, task.ID, &f.boss.ID)
	wantValidation(t, err, "assignedTo")
}

// interleavedRepository runs afterGet once, right after the next task
// snapshot is loaded, so another request lands between a read and its write.
type interleavedRepository struct {
	*storage.MockRepository
	afterGet func()
}

func (r *interleavedRepository) GetTask(ctx context.Context, id int64) (*tasks.Task, error) {
	task, err := r.MockRepository.GetTask(ctx, id)
	if hook := r.afterGet; hook != nil {
		r.afterGet = nil
		hook()
	}
	return task, err
}

func TestUpdateStatus_KeepsConcurrentUnassign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.boss, &f.alice.ID)

	repo := &interleavedRepository{MockRepository: f.repo}
	repo.afterGet = func() {
		if _, err := f.tasks.Assign(ctx, f.boss, task.ID, nil); err != nil {
			t.Errorf("Unassign: %v", err)
		}
	}

	// alice read the task while still assigned; the boss unassigns before
	// her status write lands.
	got, err := NewTaskService(repo, f.logger).UpdateStatus(ctx, f.alice, task.ID, "completed")
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if !got.IsPersonal() {
		t.Errorf("returned task assigned to %d after the boss unassigned it", *got.AssignedTo)
	}

	stored, err := f.repo.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if !stored.IsPersonal() {
		t.Fatalf("status write put assignedTo=%d back", *stored.AssignedTo)
	}
	if stored.Status != tasks.StatusCompleted {
		t.Errorf("status = %s, want completed", stored.Status)
	}
}

func TestEdit_KeepsConcurrentStatusChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	task := f.create(t, f.boss, &f.alice.ID)

	repo := &interleavedRepository{MockRepository: f.repo}
	repo.afterGet = func() {
		if _, err := f.tasks.UpdateStatus(ctx, f.alice, task.ID, "completed"); err != nil {
			t.Errorf("UpdateStatus: %v", err)
		}
	}

	got, err := NewTaskService(repo, f.logger).Edit(ctx, f.boss, task.ID, EditTaskInput{Title: "New", Description: "Desc"})
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got.Status != tasks.StatusCompleted || got.Title != "New" || !got.IsAssignedTo(f.alice.ID) {
		t.Fatalf("after racing edit = %+v", got)
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	aliceTask := f.create(t, f.alice, nil)
	other := f.create(t, f.alice, nil)

	wantDenied(t, f.tasks.Delete(ctx, f.bob, aliceTask.ID), policy.ReasonNotOwnerOrBoss)

	if err := f.tasks.Delete(ctx, f.alice, aliceTask.ID); err != nil {
		t.Fatalf("Delete(owner): %v", err)
	}
	if err := f.tasks.Delete(ctx, f.boss, other.ID); err != nil {
		t.Fatalf("Delete(boss): %v", err)
	}
	wantNotFound(t, f.tasks.Delete(ctx, f.boss, other.ID), "task")
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	assigned := f.create(t, f.boss, &f.alice.ID)
	f.create(t, f.boss, nil)
	own := f.create(t, f.alice, nil)

	mine, err := f.tasks.ListMine(ctx, f.alice)
	if err != nil || len(mine) != 2 || mine[0].ID != assigned.ID || mine[1].ID != own.ID {
		t.Fatalf("ListMine(alice) = %+v, %v", mine, err)
	}

	byMe, err := f.tasks.ListAssignedByMe(ctx, f.boss)
	if err != nil || len(byMe) != 1 || byMe[0].ID != assigned.ID {
		t.Fatalf("ListAssignedByMe(boss) = %+v, %v", byMe, err)
	}

	_, err = f.tasks.ListAssignedByMe(ctx, f.alice)
	wantDenied(t, err, policy.ReasonNotBoss)

	users, err := f.tasks.ListAssignableUsers(ctx, f.boss)
	if err != nil || len(users) != 2 {
		t.Fatalf("ListAssignableUsers = %+v, %v", users, err)
	}
	_, err = f.tasks.ListAssignableUsers(ctx, f.bob)
	wantDenied(t, err, policy.ReasonNotBoss)
}

func TestDecisionsAreLogged(t *testing.T) {
	f := newFixture(t)
	ctx := observability.ContextWithRequestID(context.Background(), "req-42")
	task := f.create(t, f.boss, &f.alice.ID)

	_, _ = f.tasks.UpdateStatus(ctx, f.boss, task.ID, "completed")
	_, _ = f.tasks.UpdateStatus(ctx, f.alice, task.ID, "completed")

	out := f.logs.String()
	if !strings.Contains(out, `"request_id":"req-42"`) || !strings.Contains(out, `"reason":"OWNER_HAS_ASSIGNEE"`) {
		t.Fatalf("decision log missing entries:\n%s", out)
	}

	summary, err := f.tasks.AuditSummary(ctx, f.boss)
	if err != nil {
		t.Fatalf("AuditSummary: %v", err)
	}
	if summary.DeniedCount != 1 || summary.AllowedCount != 2 {
		t.Fatalf("summary = %+v", summary)
	}

	_, err = f.tasks.AuditSummary(ctx, f.alice)
	wantDenied(t, err, policy.ReasonNotBoss)
}

func TestStorageErrorsAreLoggedAsErrors(t *testing.T) {
	f := newFixture(t)
	task := f.create(t, f.alice, nil)

	f.repo.SetPersistenceFailure(true)
	_, err := f.tasks.UpdateStatus(context.Background(), f.alice, task.ID, "completed")
	var dbErr *errors.ErrDatabaseUnavailable
	if !stderrors.As(err, &dbErr) {
		t.Fatalf("err = %v, want *ErrDatabaseUnavailable", err)
	}
	if s := f.logger.GetAuditSummary(context.Background()); s.ErrorCount != 1 {
		t.Fatalf("ErrorCount = %d, want 1", s.ErrorCount)
	}
}

func TestRequireActor(t *testing.T) {
	f := newFixture(t)
	_, err := f.tasks.ListMine(context.Background(), nil)
	var authErr *errors.ErrAuthFailed
	if !stderrors.As(err, &authErr) {
		t.Fatalf("err = %v, want *ErrAuthFailed", err)
	}
}

func TestParseBootstrapMode(t *testing.T) {
	for _, s := range []string{"first-registration", "explicit"} {
		if _, err := ParseBootstrapMode(s); err != nil {
			t.Fatalf("ParseBootstrapMode(%q): %v", s, err)
		}
	}
	_, err := ParseBootstrapMode("auto")
	wantValidation(t, err, "bootstrap.mode")
}
