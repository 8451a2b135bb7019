package postgres

import "strconv"

// dialect renders conditions for PostgreSQL.
type dialect struct{}

func (dialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (dialect) Arg(v any) any { return v }

func (dialect) Regex(column, placeholder string) string {
	return column + " ~ " + placeholder
}

func (dialect) Distinct(column, placeholder string) string {
	return column + " IS DISTINCT FROM " + placeholder
}
