// Package service runs every task and account operation through the same
// sequence: validate input, load snapshots, ask the access policy, resolve
// referenced users, then write through the repository.
//
// Each policy decision is written to the decision logger and each operation
// runs inside a trace span.
package service

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tasked-labs/tasked/internal/auth"
	"github.com/tasked-labs/tasked/internal/observability"
	"github.com/tasked-labs/tasked/internal/policy"
)

// call tracks one policy-gated operation from start to finish.
type call struct {
	ctx      context.Context
	logger   observability.DecisionLogger
	span     trace.Span
	actor    *auth.User
	op       policy.Operation
	taskID   int64
	start    time.Time
	decision *policy.Decision
}

func begin(ctx context.Context, logger observability.DecisionLogger, actor *auth.User, op policy.Operation, taskID int64) (context.Context, *call) {
	ctx, span := observability.Tracer().Start(ctx, "tasks."+string(op),
		trace.WithAttributes(
			attribute.String("tasked.operation", string(op)),
			attribute.Int64("tasked.actor.id", actor.ID),
			attribute.String("tasked.actor.role", actor.Role.String()),
		),
	)
	if taskID != 0 {
		span.SetAttributes(attribute.Int64("tasked.task.id", taskID))
	}
	return ctx, &call{
		ctx:    ctx,
		logger: logger,
		span:   span,
		actor:  actor,
		op:     op,
		taskID: taskID,
		start:  time.Now(),
	}
}

// authorize evaluates req for the call's actor and operation and returns the
// denial as an error.
func (c *call) authorize(req policy.Request) error {
	req.Actor = c.actor.Actor()
	req.Operation = c.op
	d := policy.Evaluate(req)
	c.decision = &d

	c.span.SetAttributes(attribute.Bool("tasked.allowed", d.Allowed))
	if !d.Allowed {
		c.span.SetAttributes(attribute.String("tasked.deny_reason", string(d.Reason)))
	}
	return d.Err(c.op)
}

// end closes the span and logs the decision. Failures before the policy ran
// (validation, missing task) produce no decision entry.
func (c *call) end(err error) {
	defer c.span.End()
	if err != nil {
		c.span.RecordError(err)
		c.span.SetStatus(codes.Error, err.Error())
	}
	if c.decision == nil {
		return
	}

	entry := observability.DecisionLogEntry{
		RequestID: observability.RequestIDFromContext(c.ctx),
		User:      c.actor.Username,
		Role:      c.actor.Role.String(),
		Operation: string(c.op),
		TaskID:    c.taskID,
		Decision:  observability.DecisionAllowed,
		Duration:  time.Since(c.start),
	}
	if entry.RequestID == "" {
		entry.RequestID = observability.NewRequestID()
	}
	switch {
	case !c.decision.Allowed:
		entry.Decision = observability.DecisionDenied
		entry.Reason = string(c.decision.Reason)
	case err != nil:
		entry.Decision = observability.DecisionError
		entry.Error = err.Error()
	}

	// The caller's context may already be cancelled; the entry is still kept.
	if logErr := c.logger.LogDecision(context.WithoutCancel(c.ctx), entry); logErr != nil {
		log.Printf("decision log: %v", logErr)
	}
}
