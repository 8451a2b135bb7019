package storage

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"qhist/internal/domain"
)

// Operator is a comparison operator of a document filter.
type Operator string

const (
	OpEq     Operator = "$eq"
	OpNe     Operator = "$ne"
	OpLt     Operator = "$lt"
	OpLte    Operator = "$lte"
	OpGt     Operator = "$gt"
	OpGte    Operator = "$gte"
	OpIn     Operator = "$in"
	OpNin    Operator = "$nin"
	OpExists Operator = "$exists"
	OpRegex  Operator = "$regex"
)

var operators = map[Operator]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLte: true, OpGt: true,
	OpGte: true, OpIn: true, OpNin: true, OpExists: true, OpRegex: true,
}

// Condition is one field constraint. Value holds the field's Go type
// (string, time.Time, int64 or bool), a []any of those for $in and $nin,
// a bool for $exists and the pattern string for $regex.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// String renders the condition for logs and errors.
func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value)
}

// ParseFilter translates a document filter such as
//
//	{"userId": "u1", "rowCount": {"$gte": 10}, "queryName": {"$exists": true}}
//
// into conditions. A plain value means equality; an object of operators
// applies each of them. Values are converted to the field's type. Unknown
// fields, unknown operators and unconvertible values return ErrInvalidInput.
func ParseFilter(filter map[string]any) ([]Condition, error) {
	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var conds []Condition
	for _, field := range fields {
		if _, ok := domain.Fields[field]; !ok {
			return nil, fmt.Errorf("%w: unknown filter field %q", ErrInvalidInput, field)
		}

		ops, isOps := operatorMap(filter[field])
		if !isOps {
			c, err := newCondition(field, OpEq, filter[field])
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
			continue
		}

		names := make([]string, 0, len(ops))
		for name := range ops {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			op := Operator(name)
			if !operators[op] {
				return nil, fmt.Errorf("%w: unknown operator %q on %q", ErrInvalidInput, name, field)
			}
			c, err := newCondition(field, op, ops[name])
			if err != nil {
				return nil, err
			}
			conds = append(conds, c)
		}
	}
	return conds, nil
}

// operatorMap reports whether v is an object whose keys all start with "$".
func operatorMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func newCondition(field string, op Operator, raw any) (Condition, error) {
	invalid := func(format string, args ...any) (Condition, error) {
		return Condition{}, fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
	}

	switch op {
	case OpExists:
		b, ok := raw.(bool)
		if !ok {
			return invalid("%s on %q needs a boolean", op, field)
		}
		return Condition{Field: field, Op: op, Value: b}, nil

	case OpRegex:
		if domain.Fields[field] != domain.KindString {
			return invalid("%s is only valid on string fields, not %q", op, field)
		}
		pattern, ok := raw.(string)
		if !ok {
			return invalid("%s on %q needs a string pattern", op, field)
		}
		if _, err := regexp.Compile(pattern); err != nil {
			return invalid("%s on %q: %v", op, field, err)
		}
		return Condition{Field: field, Op: op, Value: pattern}, nil

	case OpIn, OpNin:
		items, ok := toSlice(raw)
		if !ok {
			return invalid("%s on %q needs an array", op, field)
		}
		values := make([]any, 0, len(items))
		for _, item := range items {
			v, err := domain.CoerceValue(field, item)
			if err != nil {
				return invalid("%v", err)
			}
			values = append(values, v)
		}
		return Condition{Field: field, Op: op, Value: values}, nil

	default:
		v, err := domain.CoerceValue(field, raw)
		if err != nil {
			return invalid("%v", err)
		}
		return Condition{Field: field, Op: op, Value: v}, nil
	}
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	}
	return nil, false
}
