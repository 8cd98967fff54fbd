package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/tasked-labs/tasked/internal/storage"
)

// PersistentLogger implements DecisionLogger on the decision_log table, so
// the audit summary survives gateway restarts.
type PersistentLogger struct {
	db      *sql.DB
	dialect storage.Dialect

	mu     sync.Mutex
	writer io.Writer // optional: also write JSON lines
}

// NewPersistentLogger creates a logger that persists decisions to db.
func NewPersistentLogger(db *sql.DB, dialect storage.Dialect) (*PersistentLogger, error) {
	return NewPersistentLoggerWithWriter(db, dialect, nil)
}

// NewPersistentLoggerWithWriter creates a logger that persists to both the
// database and a writer.
func NewPersistentLoggerWithWriter(db *sql.DB, dialect storage.Dialect, w io.Writer) (*PersistentLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("observability: database connection is required for persistent logging")
	}
	return &PersistentLogger{db: db, dialect: dialect, writer: w}, nil
}

// LogDecision persists a decision to decision_log.
func (l *PersistentLogger) LogDecision(ctx context.Context, entry DecisionLogEntry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("observability: context error: %w", err)
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	now := time.Now()
	_, err := l.db.ExecContext(ctx, l.dialect.Rebind(`
		INSERT INTO decision_log (
			request_id, username, role, operation, task_id,
			decision, reason, duration_ms, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		entry.RequestID,
		entry.User,
		nullableString(entry.Role),
		entry.Operation,
		nullableID(entry.TaskID),
		entry.Decision,
		nullableString(entry.Reason),
		entry.Duration.Milliseconds(),
		nullableString(entry.Error),
		now.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("observability: failed to persist decision: %w", err)
	}

	if l.writer == nil {
		return nil
	}

	// The row is already stored; an echo failure is still reported.
	data, err := json.Marshal(newJSONLogOutput(entry, now))
	if err != nil {
		return fmt.Errorf("observability: decision persisted, failed to marshal log: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("observability: decision persisted, failed to write log: %w", err)
	}
	return nil
}

// GetAuditSummary aggregates the persisted decisions. Query failures are
// logged and yield a partial summary.
func (l *PersistentLogger) GetAuditSummary(ctx context.Context) *AuditSummary {
	summary := emptySummary()

	err := l.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN error_message IS NULL AND decision = 'allowed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN error_message IS NULL AND decision = 'denied' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN error_message IS NOT NULL THEN 1 ELSE 0 END), 0)
		FROM decision_log`,
	).Scan(&summary.AllowedCount, &summary.DeniedCount, &summary.ErrorCount)
	if err != nil {
		log.Printf("audit summary: counts: %v", err)
	}

	err = l.scanTop(ctx, `
		SELECT reason, COUNT(*) AS cnt
		FROM decision_log
		WHERE decision = 'denied' AND error_message IS NULL AND reason IS NOT NULL
		GROUP BY reason
		ORDER BY cnt DESC, reason
		LIMIT ?`, func(key string, count int) {
		summary.TopDenyReasons = append(summary.TopDenyReasons, ReasonStat{Reason: key, Count: count})
	})
	if err != nil {
		log.Printf("audit summary: reasons: %v", err)
	}

	err = l.scanTop(ctx, `
		SELECT operation, COUNT(*) AS cnt
		FROM decision_log
		GROUP BY operation
		ORDER BY cnt DESC, operation
		LIMIT ?`, func(key string, count int) {
		summary.TopOperations = append(summary.TopOperations, OperationStat{Operation: key, Count: count})
	})
	if err != nil {
		log.Printf("audit summary: operations: %v", err)
	}

	return summary
}

// scanTop runs a (key, count) aggregate limited to topN rows. The rows are
// closed before returning; SQLite runs on a single connection.
func (l *PersistentLogger) scanTop(ctx context.Context, query string, add func(key string, count int)) error {
	rows, err := l.db.QueryContext(ctx, l.dialect.Rebind(query), topN)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key   string
			count int
		)
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		add(key, count)
	}
	return rows.Err()
}

// nullableString converts empty strings to nil for SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

var _ DecisionLogger = (*PersistentLogger)(nil)
