// Package observability provides structured decision logging and tracing for
// the tasked gateway.
//
// Every policy-gated request emits: request_id, user, role, operation, the
// task (if any), the decision, the deny reason and execution time.
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// Decision outcomes.
const (
	DecisionAllowed = "allowed"
	DecisionDenied  = "denied"
	DecisionError   = "error"
)

// DecisionLogEntry contains all required fields for decision logging.
type DecisionLogEntry struct {
	// RequestID is the unique identifier for this request.
	// Required: every request must have an ID.
	RequestID string

	// User is the authenticated username.
	// Required: every decision must be attributed to a user.
	User string

	// Role is the user's role.
	Role string

	// Operation is the policy operation name, e.g. "assign_task".
	// Required.
	Operation string

	// TaskID is the task the operation targets, zero for listings and creates.
	TaskID int64

	// Decision is "allowed", "denied" or "error".
	Decision string

	// Reason is the policy deny reason when Decision is "denied".
	Reason string

	// Duration is how long the operation took.
	// Must be non-negative.
	Duration time.Duration

	// Error contains the error message if the operation failed after the
	// policy allowed it, e.g. a validation or storage error.
	Error string
}

// Validate checks that all required fields are present.
func (e *DecisionLogEntry) Validate() error {
	if e.RequestID == "" {
		return fmt.Errorf("observability: request_id is required")
	}
	if e.User == "" {
		return fmt.Errorf("observability: user is required")
	}
	if e.Operation == "" {
		return fmt.Errorf("observability: operation is required")
	}
	if e.Duration < 0 {
		return fmt.Errorf("observability: duration cannot be negative")
	}
	return nil
}

func (e *DecisionLogEntry) level() string {
	switch {
	case e.Error != "":
		return "error"
	case e.Decision == DecisionDenied:
		return "warn"
	default:
		return "info"
	}
}

// DecisionLogger is the interface for decision logging.
type DecisionLogger interface {
	// LogDecision logs an access decision.
	// Returns an error if logging fails or the entry is invalid.
	LogDecision(ctx context.Context, entry DecisionLogEntry) error

	// GetAuditSummary returns aggregated audit statistics.
	// Only counts leave the logger, never individual entries.
	GetAuditSummary(ctx context.Context) *AuditSummary
}

// AuditSummary represents aggregated audit statistics.
type AuditSummary struct {
	AllowedCount   int             `json:"allowedCount"`
	DeniedCount    int             `json:"deniedCount"`
	ErrorCount     int             `json:"errorCount"`
	TopDenyReasons []ReasonStat    `json:"topDenyReasons"`
	TopOperations  []OperationStat `json:"topOperations"`
}

// ReasonStat represents deny reason statistics.
type ReasonStat struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// OperationStat represents per-operation statistics.
type OperationStat struct {
	Operation string `json:"operation"`
	Count     int    `json:"count"`
}

// topN is how many reasons and operations a summary reports.
const topN = 5

func emptySummary() *AuditSummary {
	return &AuditSummary{
		TopDenyReasons: []ReasonStat{},
		TopOperations:  []OperationStat{},
	}
}

// jsonLogOutput is the structured format for JSON logs.
type jsonLogOutput struct {
	Timestamp  string `json:"timestamp"`
	Level      string `json:"level"`
	RequestID  string `json:"request_id"`
	User       string `json:"user"`
	Role       string `json:"role,omitempty"`
	Operation  string `json:"operation"`
	TaskID     int64  `json:"task_id,omitempty"`
	Decision   string `json:"decision"`
	Reason     string `json:"reason,omitempty"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

func newJSONLogOutput(entry DecisionLogEntry, now time.Time) jsonLogOutput {
	return jsonLogOutput{
		Timestamp:  now.UTC().Format(time.RFC3339),
		Level:      entry.level(),
		RequestID:  entry.RequestID,
		User:       entry.User,
		Role:       entry.Role,
		Operation:  entry.Operation,
		TaskID:     entry.TaskID,
		Decision:   entry.Decision,
		Reason:     entry.Reason,
		DurationMs: entry.Duration.Milliseconds(),
		Error:      entry.Error,
	}
}

// JSONLogger implements DecisionLogger with JSON lines output.
type JSONLogger struct {
	writer io.Writer

	mu        sync.RWMutex
	allowed   int
	denied    int
	errored   int
	reasons   map[string]int
	opsCounts map[string]int
}

// NewJSONLogger creates a new JSON logger writing to the given writer.
func NewJSONLogger(w io.Writer) *JSONLogger {
	return &JSONLogger{
		writer:    w,
		reasons:   make(map[string]int),
		opsCounts: make(map[string]int),
	}
}

// LogDecision logs an access decision as a single JSON line.
func (l *JSONLogger) LogDecision(ctx context.Context, entry DecisionLogEntry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("observability: context error: %w", err)
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(newJSONLogOutput(entry, time.Now()))
	if err != nil {
		return fmt.Errorf("observability: failed to marshal log: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Writes are serialized so lines never interleave.
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("observability: failed to write log: %w", err)
	}

	l.opsCounts[entry.Operation]++
	switch {
	case entry.Error != "":
		l.errored++
	case entry.Decision == DecisionDenied:
		l.denied++
		l.reasons[entry.Reason]++
	default:
		l.allowed++
	}
	return nil
}

// GetAuditSummary returns aggregated audit statistics.
func (l *JSONLogger) GetAuditSummary(ctx context.Context) *AuditSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	summary := emptySummary()
	summary.AllowedCount = l.allowed
	summary.DeniedCount = l.denied
	summary.ErrorCount = l.errored

	for reason, count := range l.reasons {
		summary.TopDenyReasons = append(summary.TopDenyReasons, ReasonStat{Reason: reason, Count: count})
	}
	sort.Slice(summary.TopDenyReasons, func(i, j int) bool {
		a, b := summary.TopDenyReasons[i], summary.TopDenyReasons[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Reason < b.Reason
	})
	if len(summary.TopDenyReasons) > topN {
		summary.TopDenyReasons = summary.TopDenyReasons[:topN]
	}

	for op, count := range l.opsCounts {
		summary.TopOperations = append(summary.TopOperations, OperationStat{Operation: op, Count: count})
	}
	sort.Slice(summary.TopOperations, func(i, j int) bool {
		a, b := summary.TopOperations[i], summary.TopOperations[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Operation < b.Operation
	})
	if len(summary.TopOperations) > topN {
		summary.TopOperations = summary.TopOperations[:topN]
	}

	return summary
}

// NoopLogger is a logger that discards all logs.
// Useful for testing or when logging is disabled.
type NoopLogger struct{}

// NewNoopLogger creates a new no-op logger.
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

// LogDecision does nothing and always succeeds.
func (l *NoopLogger) LogDecision(ctx context.Context, entry DecisionLogEntry) error {
	return nil
}

// GetAuditSummary returns an empty summary for the no-op logger.
func (l *NoopLogger) GetAuditSummary(ctx context.Context) *AuditSummary {
	return emptySummary()
}

var (
	_ DecisionLogger = (*JSONLogger)(nil)
	_ DecisionLogger = (*NoopLogger)(nil)
)
