package storage

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OperationContext tags the SQL issued for one logical operation so it can
// be traced in database logs (pg_stat_activity, sqlite trace).
type OperationContext struct {
	// OperationID is a unique identifier for this operation
	OperationID string

	// Source identifies the component initiating the operation (cli, sweeper, ...)
	Source string

	// Actor is the user running the operation, if known
	Actor string

	// StartTime is when the operation started
	StartTime time.Time
}

type contextKey int

const operationContextKey contextKey = iota

// NewOperationContext creates a new OperationContext for source.
func NewOperationContext(source string) *OperationContext {
	return &OperationContext{
		OperationID: uuid.NewString(),
		Source:      source,
		StartTime:   time.Now(),
	}
}

// WithActor sets the actor.
func (oc *OperationContext) WithActor(actor string) *OperationContext {
	oc.Actor = actor
	return oc
}

// WithOperationContext attaches an OperationContext to a context.Context.
func WithOperationContext(ctx context.Context, oc *OperationContext) context.Context {
	return context.WithValue(ctx, operationContextKey, oc)
}

// GetOperationContext retrieves the OperationContext from a context.Context.
// Returns nil if no OperationContext is present.
func GetOperationContext(ctx context.Context) *OperationContext {
	oc, _ := ctx.Value(operationContextKey).(*OperationContext)
	return oc
}

// MustGetOperationContext retrieves the OperationContext or creates a default one.
func MustGetOperationContext(ctx context.Context) *OperationContext {
	if oc := GetOperationContext(ctx); oc != nil {
		return oc
	}
	return NewOperationContext("unknown")
}

// QueryComment renders the context as a SQL comment prefix.
func (oc *OperationContext) QueryComment() string {
	var sb strings.Builder
	sb.WriteString("/* op_id:")
	sb.WriteString(sanitizeComment(oc.OperationID))
	sb.WriteString(" source:")
	sb.WriteString(sanitizeComment(oc.Source))
	if oc.Actor != "" {
		sb.WriteString(" actor:")
		sb.WriteString(sanitizeComment(oc.Actor))
	}
	sb.WriteString(" */")
	return sb.String()
}

// sanitizeComment keeps caller-supplied values from closing the comment.
func sanitizeComment(s string) string {
	return strings.NewReplacer("*/", "", "/*", "").Replace(s)
}
