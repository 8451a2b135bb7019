package cmd

import (
	"strconv"
	"strings"
	"time"

	"qhist/internal/cli/output"
	"qhist/internal/domain"
)

const timeLayout = "2006-01-02 15:04:05.000"

// recordView renders a single record as a field/value table.
type recordView domain.QueryHistory

func (r *recordView) Identifier() string { return r.ID }

func (r *recordView) TableData() *output.Table {
	t := output.NewTable("field", "value")
	t.AddRow(domain.FieldID, r.ID)
	t.AddRow(domain.FieldUserID, r.UserID)
	t.AddRow(domain.FieldUserEmail, r.UserEmail)
	t.AddRow(domain.FieldConnectionID, r.ConnectionID)
	t.AddRow(domain.FieldConnectionName, r.ConnectionName)
	t.AddRow(domain.FieldStartTime, formatTime(r.StartTime))
	t.AddRow(domain.FieldStopTime, formatTime(r.StopTime))
	t.AddRow(domain.FieldQueryRunTime, formatInt(r.QueryRunTime))
	t.AddRow(domain.FieldQueryID, formatString(r.QueryID))
	t.AddRow(domain.FieldQueryName, formatString(r.QueryName))
	t.AddRow(domain.FieldQueryText, singleLine(r.QueryText, 0))
	t.AddRow(domain.FieldRowCount, formatInt(r.RowCount))
	t.AddRow(domain.FieldIncomplete, formatBool(r.Incomplete))
	t.AddRow(domain.FieldCreatedDate, r.CreatedDate.Format(timeLayout))
	return t
}

// recordList renders records one per row.
type recordList []*domain.QueryHistory

func (l recordList) Identifiers() []string {
	ids := make([]string, len(l))
	for i, r := range l {
		ids[i] = r.ID
	}
	return ids
}

func (l recordList) TableData() *output.Table {
	t := output.NewTable("id", "user", "connection", "start time", "run ms", "rows", "query")
	for _, r := range l {
		t.AddRow(
			r.ID,
			r.UserID,
			r.ConnectionName,
			formatTime(r.StartTime),
			formatInt(r.QueryRunTime),
			formatInt(r.RowCount),
			singleLine(r.QueryText, 60),
		)
	}
	return t
}

// countResult is the output of count and purge.
type countResult struct {
	Count int64 `json:"count" yaml:"count"`
}

func (c countResult) String() string { return strconv.FormatInt(c.Count, 10) }

func (c countResult) TableData() *output.Table {
	return output.NewTable("count").AddRow(c.String())
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(timeLayout)
}

func formatInt(n *int64) string {
	if n == nil {
		return "-"
	}
	return strconv.FormatInt(*n, 10)
}

func formatString(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func formatBool(b *bool) string {
	if b == nil {
		return "-"
	}
	return strconv.FormatBool(*b)
}

// singleLine collapses whitespace and truncates to max runes when max > 0.
func singleLine(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); max > 0 && len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
