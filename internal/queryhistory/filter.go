package queryhistory

import (
	"fmt"

	"qhist/internal/domain"
	"qhist/internal/logger"
	"qhist/internal/storage"

	"github.com/google/cel-go/cel"
)

// Filter selects records.
type Filter struct {
	// Match holds field constraints keyed by document key, for example
	// {"userId": "u1", "rowCount": {"$gt": 100}}. Empty matches everything.
	Match map[string]any

	// Expression is an optional CEL predicate over the variable record,
	// the document form of each candidate, e.g.
	// `has(record.queryName) && record.queryRunTime > 1000`.
	Expression string
}

var celEnv = func() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("record", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		panic(fmt.Sprintf("queryhistory: failed to create CEL environment: %v", err))
	}
	return env
}()

// compileExpression compiles expr, which must evaluate to a bool.
func compileExpression(expr string) (cel.Program, error) {
	ast, issues := celEnv.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile expression: %w", storage.ErrInvalidInput, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: expression must evaluate to bool, got %s", storage.ErrInvalidInput, out)
	}

	prg, err := celEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create program: %w", storage.ErrInvalidInput, err)
	}
	return prg, nil
}

// expressionCursor yields the records of inner that satisfy prg, up to limit.
type expressionCursor struct {
	inner   storage.QueryHistoryCursor
	prg     cel.Program
	limit   int
	n       int
	current *domain.QueryHistory
	log     *logger.Logger
}

func (c *expressionCursor) Next() bool {
	if c.limit > 0 && c.n >= c.limit {
		_ = c.inner.Close()
		return false
	}
	for c.inner.Next() {
		record := c.inner.Record()
		if !c.matches(record) {
			continue
		}
		c.current = record
		c.n++
		return true
	}
	return false
}

// matches treats evaluation errors, such as reading an absent field, as
// no match.
func (c *expressionCursor) matches(record *domain.QueryHistory) bool {
	out, _, err := c.prg.Eval(map[string]any{"record": record.ToDocument()})
	if err != nil {
		c.log.Debug("expression evaluation failed", "id", record.ID, "error", err)
		return false
	}
	matched, ok := out.Value().(bool)
	return ok && matched
}

func (c *expressionCursor) Record() *domain.QueryHistory { return c.current }

func (c *expressionCursor) Err() error { return c.inner.Err() }

func (c *expressionCursor) Close() error { return c.inner.Close() }
