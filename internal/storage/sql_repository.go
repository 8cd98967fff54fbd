package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tasked-labs/tasked/internal/auth"
	"github.com/tasked-labs/tasked/internal/errors"
	"github.com/tasked-labs/tasked/internal/roles"
	"github.com/tasked-labs/tasked/internal/tasks"
)

// SQLRepository implements Repository over database/sql. The same queries
// serve PostgreSQL and SQLite; the Dialect adapts placeholders and error
// detection.
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

// NewSQLRepository creates a repository over an open, migrated database.
func NewSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect, now: time.Now}
}

// DB returns the raw database handle.
func (r *SQLRepository) DB() *sql.DB {
	return r.db
}

// Dialect returns the repository's SQL dialect.
func (r *SQLRepository) Dialect() Dialect {
	return r.dialect
}

// Close closes the underlying database.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

const userColumns = `id, username, email, role, first_name, last_name, phone, address, age, date_of_birth, created_at, updated_at`

const taskSelect = `
SELECT t.id, t.title, t.description, t.created_by, t.assigned_to, t.status,
       t.created_at, t.updated_at, c.username, a.username
FROM tasks t
JOIN users c ON c.id = t.created_by
LEFT JOIN users a ON a.id = t.assigned_to`

type rowScanner interface {
	Scan(dest ...any) error
}

// CheckConnectivity verifies database connectivity.
func (r *SQLRepository) CheckConnectivity(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return errors.NewDatabaseUnavailable(err.Error())
	}
	return nil
}

// CreateUser inserts a user and runs the bootstrap compare-and-set.
func (r *SQLRepository) CreateUser(ctx context.Context, user *auth.User, passwordHash string, claim BootstrapClaim) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, check := range []struct{ field, value string }{
		{"username", user.Username},
		{"email", user.Email},
	} {
		var exists bool
		err := tx.QueryRowContext(ctx,
			r.dialect.Rebind("SELECT EXISTS(SELECT 1 FROM users WHERE "+check.field+" = ?)"),
			check.value,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check %s uniqueness: %w", check.field, err)
		}
		if exists {
			return errors.NewAlreadyExists("user", check.field)
		}
	}

	now := toMillis(r.now())
	var id int64
	err = tx.QueryRowContext(ctx, r.dialect.Rebind(`
		INSERT INTO users (username, email, password_hash, role, first_name, last_name,
		                   phone, address, age, date_of_birth, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		user.Username, user.Email, passwordHash, roles.Employee.String(),
		nullString(user.FirstName), nullString(user.LastName),
		nullString(user.Phone), nullString(user.Address),
		nullInt(user.Age), nullString(user.DateOfBirth),
		now, now,
	).Scan(&id)
	if r.dialect.IsUniqueViolation(err) {
		field := "username"
		if r.dialect.UniqueViolationColumn(err) == "email" {
			field = "email"
		}
		return errors.NewAlreadyExists("user", field)
	}
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	role := roles.Employee
	if claim != ClaimNone {
		res, err := tx.ExecContext(ctx, r.dialect.Rebind(`
			INSERT INTO bootstrap_state (id, boss_user_id, claimed_at)
			VALUES (1, ?, ?)
			ON CONFLICT (id) DO NOTHING`),
			id, now,
		)
		if err != nil {
			return fmt.Errorf("failed to claim bootstrap: %w", err)
		}
		claimed, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}

		switch {
		case claimed == 1:
			if _, err := tx.ExecContext(ctx,
				r.dialect.Rebind("UPDATE users SET role = ? WHERE id = ?"),
				roles.Boss.String(), id,
			); err != nil {
				return fmt.Errorf("failed to promote boss: %w", err)
			}
			role = roles.Boss
		case claim == ClaimRequired:
			return errors.NewBootstrapError(
				"boss already designated",
				"the bootstrap step has already been completed",
				"create additional accounts as employees",
			)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	user.ID = id
	user.Role = role
	user.CreatedAt = fromMillis(now)
	user.UpdatedAt = fromMillis(now)
	return nil
}

// GetUser retrieves a user by id.
func (r *SQLRepository) GetUser(ctx context.Context, id int64) (*auth.User, error) {
	row := r.db.QueryRowContext(ctx,
		r.dialect.Rebind("SELECT "+userColumns+" FROM users WHERE id = ?"), id)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("user", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetCredentials retrieves a user and password hash by username.
func (r *SQLRepository) GetCredentials(ctx context.Context, username string) (*auth.User, string, error) {
	row := r.db.QueryRowContext(ctx,
		r.dialect.Rebind("SELECT "+userColumns+", password_hash FROM users WHERE username = ?"), username)

	var hash string
	user, err := scanUser(row, &hash)
	if err == sql.ErrNoRows {
		return nil, "", errors.NewNotFound("user", username)
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to get credentials: %w", err)
	}
	return user, hash, nil
}

// ListUsersByRole returns users holding role.
func (r *SQLRepository) ListUsersByRole(ctx context.Context, role roles.Role) ([]*auth.User, error) {
	rows, err := r.db.QueryContext(ctx,
		r.dialect.Rebind("SELECT "+userColumns+" FROM users WHERE role = ? ORDER BY id"), role.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	result := make([]*auth.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		result = append(result, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return result, nil
}

// BootstrapState reports whether the boss slot has been claimed.
func (r *SQLRepository) BootstrapState(ctx context.Context) (BootstrapState, error) {
	var bossID, claimedAt int64
	err := r.db.QueryRowContext(ctx,
		"SELECT boss_user_id, claimed_at FROM bootstrap_state WHERE id = 1",
	).Scan(&bossID, &claimedAt)
	if err == sql.ErrNoRows {
		return BootstrapState{}, nil
	}
	if err != nil {
		return BootstrapState{}, fmt.Errorf("failed to read bootstrap state: %w", err)
	}
	return BootstrapState{Claimed: true, BossID: bossID, ClaimedAt: fromMillis(claimedAt)}, nil
}

// CreateTask inserts a task.
func (r *SQLRepository) CreateTask(ctx context.Context, task *tasks.Task) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if task.Status == "" {
		task.Status = tasks.StatusPending
	}

	now := toMillis(r.now())
	var id int64
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(`
		INSERT INTO tasks (title, description, created_by, assigned_to, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		task.Title, task.Description, task.CreatedBy, nullID(task.AssignedTo),
		string(task.Status), now, now,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	created, err := r.GetTask(ctx, id)
	if err != nil {
		return err
	}
	*task = *created
	return nil
}

// GetTask retrieves a task by id.
func (r *SQLRepository) GetTask(ctx context.Context, id int64) (*tasks.Task, error) {
	row := r.db.QueryRowContext(ctx, r.dialect.Rebind(taskSelect+" WHERE t.id = ?"), id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("task", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return task, nil
}

// UpdateTask writes the fields selected by upd in one statement.
func (r *SQLRepository) UpdateTask(ctx context.Context, id int64, upd TaskUpdate) error {
	if err := upd.validate(); err != nil {
		return err
	}

	var (
		sets []string
		args []any
	)
	if upd.Title != nil {
		sets = append(sets, "title = ?", "description = ?")
		args = append(args, *upd.Title, *upd.Description)
	}
	if upd.AssignmentSet {
		sets = append(sets, "assigned_to = ?")
		args = append(args, nullID(upd.AssignedTo))
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*upd.Status))
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, toMillis(r.now()), id)

	result, err := r.db.ExecContext(ctx,
		r.dialect.Rebind("UPDATE tasks SET "+strings.Join(sets, ", ")+" WHERE id = ?"),
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("task", strconv.FormatInt(id, 10))
	}
	return nil
}

// DeleteTask removes a task by id.
func (r *SQLRepository) DeleteTask(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, r.dialect.Rebind("DELETE FROM tasks WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound("task", strconv.FormatInt(id, 10))
	}
	return nil
}

// ListTasksForUser returns tasks created by or assigned to userID.
func (r *SQLRepository) ListTasksForUser(ctx context.Context, userID int64) ([]*tasks.Task, error) {
	return r.listTasks(ctx,
		taskSelect+" WHERE t.created_by = ? OR t.assigned_to = ? ORDER BY t.id",
		userID, userID)
}

// ListTasksAssignedBy returns tasks created by userID that have an assignee.
func (r *SQLRepository) ListTasksAssignedBy(ctx context.Context, userID int64) ([]*tasks.Task, error) {
	return r.listTasks(ctx,
		taskSelect+" WHERE t.created_by = ? AND t.assigned_to IS NOT NULL ORDER BY t.id",
		userID)
}

func (r *SQLRepository) listTasks(ctx context.Context, query string, args ...any) ([]*tasks.Task, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	result := make([]*tasks.Task, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		result = append(result, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}
	return result, nil
}

// scanUser scans userColumns, followed by any extra destinations.
func scanUser(row rowScanner, extra ...any) (*auth.User, error) {
	var (
		user                                auth.User
		role                                string
		firstName, lastName, phone, address sql.NullString
		dateOfBirth                         sql.NullString
		age                                 sql.NullInt64
		createdAt, updatedAt                int64
	)
	dest := []any{
		&user.ID, &user.Username, &user.Email, &role,
		&firstName, &lastName, &phone, &address, &age, &dateOfBirth,
		&createdAt, &updatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	parsed, err := roles.Parse(role)
	if err != nil {
		return nil, fmt.Errorf("user %d: %w", user.ID, err)
	}
	user.Role = parsed
	user.FirstName = firstName.String
	user.LastName = lastName.String
	user.Phone = phone.String
	user.Address = address.String
	user.DateOfBirth = dateOfBirth.String
	if age.Valid {
		v := int(age.Int64)
		user.Age = &v
	}
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return &user, nil
}

func scanTask(row rowScanner) (*tasks.Task, error) {
	var (
		task                 tasks.Task
		assignedTo           sql.NullInt64
		status               string
		createdAt, updatedAt int64
		assigneeName         sql.NullString
	)
	if err := row.Scan(
		&task.ID, &task.Title, &task.Description, &task.CreatedBy, &assignedTo, &status,
		&createdAt, &updatedAt, &task.CreatorName, &assigneeName,
	); err != nil {
		return nil, err
	}

	task.Status = tasks.Status(status)
	if !task.Status.IsValid() {
		return nil, fmt.Errorf("task %d: invalid stored status %q", task.ID, status)
	}
	if assignedTo.Valid {
		id := assignedTo.Int64
		task.AssignedTo = &id
	}
	task.AssigneeName = assigneeName.String
	task.CreatedAt = fromMillis(createdAt)
	task.UpdatedAt = fromMillis(updatedAt)
	return &task, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullID(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// Verify SQLRepository implements Repository interface.
var _ Repository = (*SQLRepository)(nil)
