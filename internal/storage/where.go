package storage

import (
	"fmt"
	"strings"
)

// Dialect is the backend specific part of SQL generation.
type Dialect interface {
	// Placeholder returns the bind marker for the n-th argument (1-based).
	Placeholder(n int) string

	// Arg converts a condition value to its driver representation.
	Arg(v any) any

	// Regex returns a predicate matching column against a pattern.
	Regex(column, placeholder string) string

	// Distinct returns a NULL-safe inequality predicate.
	Distinct(column, placeholder string) string
}

// BuildWhere renders conds as " AND ..." clauses to append after "WHERE 1=1".
// Argument numbering starts after the first offset arguments.
func BuildWhere(conds []Condition, d Dialect, offset int) (string, []any, error) {
	var sb strings.Builder
	var args []any

	bind := func(v any) string {
		args = append(args, d.Arg(v))
		return d.Placeholder(offset + len(args))
	}

	for _, c := range conds {
		col, ok := Columns[c.Field]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown field %q", ErrInvalidInput, c.Field)
		}

		sb.WriteString(" AND ")
		switch c.Op {
		case OpEq:
			fmt.Fprintf(&sb, "%s = %s", col, bind(c.Value))
		case OpNe:
			sb.WriteString(d.Distinct(col, bind(c.Value)))
		case OpLt:
			fmt.Fprintf(&sb, "%s < %s", col, bind(c.Value))
		case OpLte:
			fmt.Fprintf(&sb, "%s <= %s", col, bind(c.Value))
		case OpGt:
			fmt.Fprintf(&sb, "%s > %s", col, bind(c.Value))
		case OpGte:
			fmt.Fprintf(&sb, "%s >= %s", col, bind(c.Value))
		case OpExists:
			if c.Value.(bool) {
				fmt.Fprintf(&sb, "%s IS NOT NULL", col)
			} else {
				fmt.Fprintf(&sb, "%s IS NULL", col)
			}
		case OpRegex:
			sb.WriteString(d.Regex(col, bind(c.Value)))
		case OpIn, OpNin:
			values, _ := c.Value.([]any)
			if len(values) == 0 {
				if c.Op == OpIn {
					sb.WriteString("1=0")
				} else {
					sb.WriteString("1=1")
				}
				continue
			}
			marks := make([]string, len(values))
			for i, v := range values {
				marks[i] = bind(v)
			}
			list := strings.Join(marks, ", ")
			if c.Op == OpIn {
				fmt.Fprintf(&sb, "%s IN (%s)", col, list)
			} else {
				fmt.Fprintf(&sb, "(%s IS NULL OR %s NOT IN (%s))", col, col, list)
			}
		default:
			return "", nil, fmt.Errorf("%w: unsupported operator %q", ErrInvalidInput, c.Op)
		}
	}

	return sb.String(), args, nil
}
