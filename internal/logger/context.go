package logger

import (
	"context"
	"log/slog"
	"os"
	"os/user"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type contextKey string

const (
	runContextKey    contextKey = "run_context"
	loggerContextKey contextKey = "logger"
)

// RunContext describes one CLI invocation or daemon operation. It is attached
// to every record logged for that operation.
type RunContext struct {
	Operation string    `json:"operation"`
	Args      []string  `json:"args,omitempty"`
	User      string    `json:"user"`
	Hostname  string    `json:"hostname"`
	Started   time.Time `json:"started"`
	RequestID string    `json:"request_id"`
}

// NewCommandContext creates a RunContext for a cobra command.
func NewCommandContext(cmd *cobra.Command, args []string) *RunContext {
	rc := newRunContext(cmd.CommandPath())
	rc.Args = args
	return rc
}

// NewDaemonContext creates a RunContext for a daemon operation such as a sweep.
func NewDaemonContext(operation string) *RunContext {
	return newRunContext(operation)
}

func newRunContext(operation string) *RunContext {
	rc := &RunContext{
		Operation: operation,
		Started:   time.Now(),
		RequestID: uuid.NewString(),
	}
	if u, err := user.Current(); err == nil {
		rc.User = u.Username
	}
	if hostname, err := os.Hostname(); err == nil {
		rc.Hostname = hostname
	}
	return rc
}

// WithRunContext stores rc in ctx.
func WithRunContext(ctx context.Context, rc *RunContext) context.Context {
	return context.WithValue(ctx, runContextKey, rc)
}

// RunContextFrom returns the RunContext stored in ctx, or nil.
func RunContextFrom(ctx context.Context) *RunContext {
	if rc, ok := ctx.Value(runContextKey).(*RunContext); ok {
		return rc
	}
	return nil
}

// WithLogger stores a Logger in the context.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, l)
}

// LoggerFrom retrieves the Logger from the context. When the context also
// carries a RunContext its attributes are attached.
func LoggerFrom(ctx context.Context) *Logger {
	l, ok := ctx.Value(loggerContextKey).(*Logger)
	if !ok {
		l = Default()
	}
	if rc := RunContextFrom(ctx); rc != nil {
		return l.With(rc.LogGroup())
	}
	return l
}

// LogAttrs returns the RunContext as slog attributes.
func (rc *RunContext) LogAttrs() []slog.Attr {
	if rc == nil {
		return nil
	}

	attrs := []slog.Attr{
		slog.String("request_id", rc.RequestID),
		slog.String("operation", rc.Operation),
		slog.String("user", rc.User),
		slog.String("hostname", rc.Hostname),
	}
	if len(rc.Args) > 0 {
		attrs = append(attrs, slog.Any("args", rc.Args))
	}
	return attrs
}

// LogGroup returns the RunContext as a grouped slog attribute.
func (rc *RunContext) LogGroup() slog.Attr {
	if rc == nil {
		return slog.Attr{}
	}
	attrs := rc.LogAttrs()
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return slog.Group("run", args...)
}
