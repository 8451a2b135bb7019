// Package domain holds the query history record and its validation rules.
package domain

import "time"

// Document keys of a query history record.
const (
	FieldID             = "_id"
	FieldUserID         = "userId"
	FieldUserEmail      = "userEmail"
	FieldConnectionID   = "connectionId"
	FieldConnectionName = "connectionName"
	FieldStartTime      = "startTime"
	FieldStopTime       = "stopTime"
	FieldQueryRunTime   = "queryRunTime"
	FieldQueryID        = "queryId"
	FieldQueryName      = "queryName"
	FieldQueryText      = "queryText"
	FieldRowCount       = "rowCount"
	FieldIncomplete     = "incomplete"
	FieldCreatedDate    = "createdDate"
)

// FieldKind is the value type stored under a document key.
type FieldKind int

const (
	KindString FieldKind = iota
	KindTime
	KindInteger
	KindBool
)

// String returns the value type as it appears in validation messages.
func (k FieldKind) String() string {
	switch k {
	case KindTime:
		return "a date"
	case KindInteger:
		return "integer"
	case KindBool:
		return "boolean"
	default:
		return "string"
	}
}

// Fields maps every document key to its value type.
var Fields = map[string]FieldKind{
	FieldID:             KindString,
	FieldUserID:         KindString,
	FieldUserEmail:      KindString,
	FieldConnectionID:   KindString,
	FieldConnectionName: KindString,
	FieldStartTime:      KindTime,
	FieldStopTime:       KindTime,
	FieldQueryRunTime:   KindInteger,
	FieldQueryID:        KindString,
	FieldQueryName:      KindString,
	FieldQueryText:      KindString,
	FieldRowCount:       KindInteger,
	FieldIncomplete:     KindBool,
	FieldCreatedDate:    KindTime,
}

// QueryHistory is one executed query event. Records are immutable once stored.
//
// Optional fields are pointers so an absent value is distinguishable from a
// zero value ("" for queryId/queryName, 0 for rowCount).
type QueryHistory struct {
	ID             string     `json:"_id,omitempty" yaml:"_id,omitempty"`
	UserID         string     `json:"userId" yaml:"userId"`
	UserEmail      string     `json:"userEmail" yaml:"userEmail"`
	ConnectionID   string     `json:"connectionId" yaml:"connectionId"`
	ConnectionName string     `json:"connectionName" yaml:"connectionName"`
	StartTime      *time.Time `json:"startTime,omitempty" yaml:"startTime,omitempty"`
	StopTime       *time.Time `json:"stopTime,omitempty" yaml:"stopTime,omitempty"`
	QueryRunTime   *int64     `json:"queryRunTime,omitempty" yaml:"queryRunTime,omitempty"`
	QueryID        *string    `json:"queryId,omitempty" yaml:"queryId,omitempty"`
	QueryName      *string    `json:"queryName,omitempty" yaml:"queryName,omitempty"`
	QueryText      string     `json:"queryText" yaml:"queryText"`
	RowCount       *int64     `json:"rowCount,omitempty" yaml:"rowCount,omitempty"`
	Incomplete     *bool      `json:"incomplete,omitempty" yaml:"incomplete,omitempty"`
	CreatedDate    time.Time  `json:"createdDate" yaml:"createdDate"`
}

// ToDocument returns the record as a document keyed by field name. Absent
// optional fields are omitted; timestamps stay time.Time.
func (q *QueryHistory) ToDocument() map[string]any {
	doc := map[string]any{
		FieldUserID:         q.UserID,
		FieldUserEmail:      q.UserEmail,
		FieldConnectionID:   q.ConnectionID,
		FieldConnectionName: q.ConnectionName,
		FieldQueryText:      q.QueryText,
	}
	if q.ID != "" {
		doc[FieldID] = q.ID
	}
	if !q.CreatedDate.IsZero() {
		doc[FieldCreatedDate] = q.CreatedDate
	}
	if q.StartTime != nil {
		doc[FieldStartTime] = *q.StartTime
	}
	if q.StopTime != nil {
		doc[FieldStopTime] = *q.StopTime
	}
	if q.QueryRunTime != nil {
		doc[FieldQueryRunTime] = *q.QueryRunTime
	}
	if q.QueryID != nil {
		doc[FieldQueryID] = *q.QueryID
	}
	if q.QueryName != nil {
		doc[FieldQueryName] = *q.QueryName
	}
	if q.RowCount != nil {
		doc[FieldRowCount] = *q.RowCount
	}
	if q.Incomplete != nil {
		doc[FieldIncomplete] = *q.Incomplete
	}
	return doc
}

// NormalizeTime truncates t to millisecond precision in UTC, the resolution
// every backend stores.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
