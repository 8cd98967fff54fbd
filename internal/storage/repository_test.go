package storage

import (
	"context"
	stderrors "errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tasked-labs/tasked/internal/auth"
	"github.com/tasked-labs/tasked/internal/errors"
	"github.com/tasked-labs/tasked/internal/roles"
	"github.com/tasked-labs/tasked/internal/tasks"
)

// repositories returns every Repository implementation under test. The
// SQLite repository runs against a real migrated database file.
func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	ctx := context.Background()

	sqliteRepo, err := Open(ctx, SQLite.Name, PostgresConfig{}, filepath.Join(t.TempDir(), "tasked.db"))
	if err != nil {
		t.Fatalf("Open(sqlite): %v", err)
	}
	t.Cleanup(func() { sqliteRepo.DB().Close() })

	return map[string]Repository{
		"sqlite": sqliteRepo,
		"mock":   NewMockRepository(),
	}
}

func forEachRepository(t *testing.T, fn func(t *testing.T, repo Repository)) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) { fn(t, repo) })
	}
}

func mustCreateUser(t *testing.T, repo Repository, username string, claim BootstrapClaim) *auth.User {
	t.Helper()
	u := &auth.User{Username: username, Email: username + "@example.com", FirstName: "First"}
	if err := repo.CreateUser(context.Background(), u, "hash-"+username, claim); err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func mustCreateTask(t *testing.T, repo Repository, creator int64, assignee *int64) *tasks.Task {
	t.Helper()
	task := &tasks.Task{Title: "Write report", Description: "Quarterly numbers", CreatedBy: creator, AssignedTo: assignee}
	if err := repo.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	return task
}

func wantNotFound(t *testing.T, err error) {
	t.Helper()
	var nf *errors.ErrNotFound
	if !stderrors.As(err, &nf) {
		t.Fatalf("err = %v, want *ErrNotFound", err)
	}
}

// TestCreateUser_FirstClaimWinsBoss verifies the bootstrap compare-and-set:
// only the first claiming registration becomes the boss.
func TestCreateUser_FirstClaimWinsBoss(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()

		state, err := repo.BootstrapState(ctx)
		if err != nil || state.Claimed {
			t.Fatalf("BootstrapState = %+v, %v; want unclaimed", state, err)
		}

		boss := mustCreateUser(t, repo, "boss", ClaimIfUnclaimed)
		emp := mustCreateUser(t, repo, "emp", ClaimIfUnclaimed)

		if boss.Role != roles.Boss || emp.Role != roles.Employee {
			t.Fatalf("roles = %s, %s; want boss, employee", boss.Role, emp.Role)
		}
		if boss.ID == 0 || emp.ID == 0 || boss.ID == emp.ID {
			t.Fatalf("ids = %d, %d", boss.ID, emp.ID)
		}

		state, err = repo.BootstrapState(ctx)
		if err != nil || !state.Claimed || state.BossID != boss.ID {
			t.Fatalf("BootstrapState = %+v, %v; want claimed by %d", state, err, boss.ID)
		}

		late := &auth.User{Username: "late", Email: "late@example.com"}
		err = repo.CreateUser(ctx, late, "hash", ClaimRequired)
		var bootErr *errors.ErrBootstrap
		if !stderrors.As(err, &bootErr) {
			t.Fatalf("ClaimRequired after boss err = %v, want *ErrBootstrap", err)
		}
		if _, _, err := repo.GetCredentials(ctx, "late"); err == nil {
			t.Fatal("failed ClaimRequired must not leave a user behind")
		}
	})
}

// TestCreateUser_ClaimNoneNeverBoss verifies registrations without a claim
// never take the boss slot.
func TestCreateUser_ClaimNoneNeverBoss(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		u := mustCreateUser(t, repo, "first", ClaimNone)
		if u.Role != roles.Employee {
			t.Fatalf("role = %s, want employee", u.Role)
		}
		state, _ := repo.BootstrapState(context.Background())
		if state.Claimed {
			t.Fatal("ClaimNone claimed the boss slot")
		}
	})
}

// TestCreateUser_ConcurrentClaims verifies exactly one boss under concurrent
// first registrations.
func TestCreateUser_ConcurrentClaims(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		const n = 8
		var wg sync.WaitGroup
		users := make([]*auth.User, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				name := "user" + string(rune('a'+i))
				u := &auth.User{Username: name, Email: name + "@example.com"}
				if err := repo.CreateUser(context.Background(), u, "hash", ClaimIfUnclaimed); err != nil {
					t.Errorf("CreateUser(%s): %v", name, err)
					return
				}
				users[i] = u
			}(i)
		}
		wg.Wait()

		bosses := 0
		for _, u := range users {
			if u != nil && u.Role == roles.Boss {
				bosses++
			}
		}
		if bosses != 1 {
			t.Fatalf("bosses = %d, want 1", bosses)
		}
	})
}

// TestCreateUser_Duplicates verifies username and email uniqueness.
func TestCreateUser_Duplicates(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		mustCreateUser(t, repo, "alice", ClaimNone)

		for _, u := range []*auth.User{
			{Username: "alice", Email: "other@example.com"},
			{Username: "other", Email: "alice@example.com"},
		} {
			err := repo.CreateUser(context.Background(), u, "hash", ClaimNone)
			var exists *errors.ErrAlreadyExists
			if !stderrors.As(err, &exists) {
				t.Fatalf("CreateUser(%+v) err = %v, want *ErrAlreadyExists", u, err)
			}
		}
	})
}

// TestUsers_Lookup verifies GetUser, GetCredentials and ListUsersByRole.
func TestUsers_Lookup(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		boss := mustCreateUser(t, repo, "boss", ClaimIfUnclaimed)
		e1 := mustCreateUser(t, repo, "e1", ClaimIfUnclaimed)
		e2 := mustCreateUser(t, repo, "e2", ClaimIfUnclaimed)

		got, err := repo.GetUser(ctx, e1.ID)
		if err != nil || got.Username != "e1" || got.FirstName != "First" || got.Role != roles.Employee {
			t.Fatalf("GetUser = %+v, %v", got, err)
		}

		u, hash, err := repo.GetCredentials(ctx, "boss")
		if err != nil || u.ID != boss.ID || hash != "hash-boss" {
			t.Fatalf("GetCredentials = %+v, %q, %v", u, hash, err)
		}

		employees, err := repo.ListUsersByRole(ctx, roles.Employee)
		if err != nil || len(employees) != 2 || employees[0].ID != e1.ID || employees[1].ID != e2.ID {
			t.Fatalf("ListUsersByRole = %+v, %v", employees, err)
		}

		_, err = repo.GetUser(ctx, 9999)
		wantNotFound(t, err)
		_, _, err = repo.GetCredentials(ctx, "nobody")
		wantNotFound(t, err)
	})
}

// TestTasks_CRUD verifies the task lifecycle and display names.
func TestTasks_CRUD(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		boss := mustCreateUser(t, repo, "boss", ClaimIfUnclaimed)
		emp := mustCreateUser(t, repo, "emp", ClaimIfUnclaimed)

		task := mustCreateTask(t, repo, boss.ID, &emp.ID)
		if task.ID == 0 || task.Status != tasks.StatusPending {
			t.Fatalf("created = %+v", task)
		}
		if task.CreatorName != "boss" || task.AssigneeName != "emp" {
			t.Fatalf("names = %q, %q", task.CreatorName, task.AssigneeName)
		}

		completed := tasks.StatusCompleted
		title, description := "Renamed", task.Description
		if err := repo.UpdateTask(ctx, task.ID, TaskUpdate{
			Title:         &title,
			Description:   &description,
			Status:        &completed,
			AssignmentSet: true,
		}); err != nil {
			t.Fatalf("UpdateTask: %v", err)
		}

		got, err := repo.GetTask(ctx, task.ID)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if got.Status != tasks.StatusCompleted || got.AssignedTo != nil || got.Title != "Renamed" || got.AssigneeName != "" {
			t.Fatalf("after update = %+v", got)
		}
		if got.CreatedBy != boss.ID {
			t.Fatalf("CreatedBy changed to %d", got.CreatedBy)
		}

		if err := repo.DeleteTask(ctx, task.ID); err != nil {
			t.Fatalf("DeleteTask: %v", err)
		}
		_, err = repo.GetTask(ctx, task.ID)
		wantNotFound(t, err)
		wantNotFound(t, repo.DeleteTask(ctx, task.ID))
		wantNotFound(t, repo.UpdateTask(ctx, task.ID, TaskUpdate{Status: &completed}))
	})
}

// TestTasks_UpdateWritesOnlySelectedFields verifies a write to one field
// leaves the others as stored, even when they changed after the caller read
// the task.
func TestTasks_UpdateWritesOnlySelectedFields(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		boss := mustCreateUser(t, repo, "boss", ClaimIfUnclaimed)
		emp := mustCreateUser(t, repo, "emp", ClaimIfUnclaimed)
		task := mustCreateTask(t, repo, boss.ID, &emp.ID)

		// Unassign, then write only the status.
		if err := repo.UpdateTask(ctx, task.ID, TaskUpdate{AssignmentSet: true}); err != nil {
			t.Fatalf("unassign: %v", err)
		}
		completed := tasks.StatusCompleted
		if err := repo.UpdateTask(ctx, task.ID, TaskUpdate{Status: &completed}); err != nil {
			t.Fatalf("status: %v", err)
		}

		got, err := repo.GetTask(ctx, task.ID)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if got.AssignedTo != nil {
			t.Errorf("status write restored assignee %d", *got.AssignedTo)
		}
		if got.Status != tasks.StatusCompleted || got.Title != task.Title {
			t.Errorf("after update = %+v", got)
		}
	})
}

// TestTasks_UpdateRejectsInvalidFields verifies the repository refuses
// values the services would never send.
func TestTasks_UpdateRejectsInvalidFields(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		boss := mustCreateUser(t, repo, "boss", ClaimIfUnclaimed)
		task := mustCreateTask(t, repo, boss.ID, nil)

		bogus := tasks.Status("in_progress")
		blank := ""
		for name, upd := range map[string]TaskUpdate{
			"bad status":                {Status: &bogus},
			"blank title":               {Title: &blank, Description: &task.Description},
			"title without description": {Title: &task.Title},
		} {
			if err := repo.UpdateTask(ctx, task.ID, upd); err == nil {
				t.Errorf("%s: expected error, got nil", name)
			}
		}
	})
}

// TestTasks_Listings verifies the "my tasks" and "assigned by me" filters.
func TestTasks_Listings(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		boss := mustCreateUser(t, repo, "boss", ClaimIfUnclaimed)
		e1 := mustCreateUser(t, repo, "e1", ClaimIfUnclaimed)
		e2 := mustCreateUser(t, repo, "e2", ClaimIfUnclaimed)

		assigned := mustCreateTask(t, repo, boss.ID, &e1.ID)
		bossPersonal := mustCreateTask(t, repo, boss.ID, nil)
		e1Personal := mustCreateTask(t, repo, e1.ID, nil)
		mustCreateTask(t, repo, e2.ID, nil)

		ids := func(list []*tasks.Task) []int64 {
			out := make([]int64, 0, len(list))
			for _, task := range list {
				out = append(out, task.ID)
			}
			return out
		}
		equal := func(a, b []int64) bool {
			if len(a) != len(b) {
				return false
			}
			for i := range a {
				if a[i] != b[i] {
					return false
				}
			}
			return true
		}

		mine, err := repo.ListTasksForUser(ctx, e1.ID)
		if err != nil || !equal(ids(mine), []int64{assigned.ID, e1Personal.ID}) {
			t.Fatalf("ListTasksForUser(e1) = %v, %v", ids(mine), err)
		}

		bossMine, err := repo.ListTasksForUser(ctx, boss.ID)
		if err != nil || !equal(ids(bossMine), []int64{assigned.ID, bossPersonal.ID}) {
			t.Fatalf("ListTasksForUser(boss) = %v, %v", ids(bossMine), err)
		}

		byBoss, err := repo.ListTasksAssignedBy(ctx, boss.ID)
		if err != nil || !equal(ids(byBoss), []int64{assigned.ID}) {
			t.Fatalf("ListTasksAssignedBy(boss) = %v, %v", ids(byBoss), err)
		}

		none, err := repo.ListTasksAssignedBy(ctx, e2.ID)
		if err != nil || none == nil || len(none) != 0 {
			t.Fatalf("ListTasksAssignedBy(e2) = %v, %v; want empty non-nil", none, err)
		}
	})
}

// TestCreateTask_Validates verifies invalid tasks never reach storage.
func TestCreateTask_Validates(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		boss := mustCreateUser(t, repo, "boss", ClaimIfUnclaimed)
		err := repo.CreateTask(context.Background(), &tasks.Task{Title: "", Description: "x", CreatedBy: boss.ID})
		var verr *errors.ErrValidation
		if !stderrors.As(err, &verr) || verr.Field != "title" {
			t.Fatalf("err = %v, want title validation error", err)
		}
	})
}

// TestRepository_CancelledContext verifies operations honour cancellation.
func TestRepository_CancelledContext(t *testing.T) {
	forEachRepository(t, func(t *testing.T, repo Repository) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if _, err := repo.GetUser(ctx, 1); err == nil {
			t.Fatal("expected error for cancelled context")
		}
		if _, err := repo.ListTasksForUser(ctx, 1); err == nil {
			t.Fatal("expected error for cancelled context")
		}
	})
}

// TestMockRepository_FailureToggles verifies the simulated failures.
func TestMockRepository_FailureToggles(t *testing.T) {
	repo := NewMockRepository()
	ctx := context.Background()

	repo.SetConnectivityFailure(true)
	var dbErr *errors.ErrDatabaseUnavailable
	if err := repo.CheckConnectivity(ctx); !stderrors.As(err, &dbErr) {
		t.Fatalf("CheckConnectivity err = %v", err)
	}
	if !repo.ConnectivityCheckCalled() {
		t.Fatal("ConnectivityCheckCalled = false")
	}

	repo.SetPersistenceFailure(true)
	err := repo.CreateUser(ctx, &auth.User{Username: "a", Email: "a@example.com"}, "hash", ClaimNone)
	if !stderrors.As(err, &dbErr) {
		t.Fatalf("CreateUser err = %v", err)
	}
}

func TestMigrationRunner_Idempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasked.db")

	repo, err := Open(ctx, SQLite.Name, PostgresConfig{}, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	runner := NewMigrationRunner(repo.DB(), SQLite)
	if err := runner.Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}
	applied, err := runner.Applied(ctx)
	if err != nil {
		t.Fatalf("Applied: %v", err)
	}
	if len(applied) != 2 || applied[0] != "000001" || applied[1] != "000002" {
		t.Fatalf("Applied = %v", applied)
	}
	if err := repo.CheckConnectivity(ctx); err != nil {
		t.Fatalf("CheckConnectivity: %v", err)
	}
	repo.DB().Close()

	if _, err := Open(ctx, SQLite.Name, PostgresConfig{}, path); err != nil {
		t.Fatalf("reopen: %v", err)
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	if _, err := Open(context.Background(), "oracle", PostgresConfig{}, ""); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestDollarPlaceholders(t *testing.T) {
	got := Postgres.Rebind("SELECT * FROM t WHERE a = ? AND b = ?")
	if got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Fatalf("Rebind = %q", got)
	}
	if q := SQLite.Rebind("a = ?"); q != "a = ?" {
		t.Fatalf("SQLite.Rebind = %q", q)
	}
}
