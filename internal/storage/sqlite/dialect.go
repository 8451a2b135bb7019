package sqlite

import "time"

// dialect renders conditions for SQLite. Timestamps are stored as Unix
// milliseconds and booleans as 0/1.
type dialect struct{}

func (dialect) Placeholder(int) string { return "?" }

func (dialect) Arg(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.UnixMilli()
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func (dialect) Regex(column, placeholder string) string {
	return column + " REGEXP " + placeholder
}

func (dialect) Distinct(column, placeholder string) string {
	return column + " IS NOT " + placeholder
}
