package domain

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
)

//go:embed query_history.schema.json
var querySchemaJSON []byte

const schemaURL = "query_history.schema.json"

// wireTimeLayout is how timestamps are presented to the schema.
const wireTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// dateLayouts are the string forms accepted for timestamp fields.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(querySchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
})

// Validate checks a candidate document and returns the typed record.
//
// Values are converted before the rules are checked: numeric strings become
// numbers, "true"/"false" become booleans, and timestamps may be given as
// time.Time, RFC 3339, "YYYY-MM-DD", "YYYY-MM-DD HH:MM:SS" or Unix
// milliseconds. A missing createdDate is set to now. On failure the error is
// a *ValidationError naming every violated field.
func Validate(candidate map[string]any, now time.Time) (*QueryHistory, error) {
	schema, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	doc, inexact := coerce(candidate)
	if _, ok := doc[FieldCreatedDate]; !ok {
		doc[FieldCreatedDate] = NormalizeTime(now).Format(wireTimeLayout)
	}

	var found []FieldViolation
	if err := schema.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		found = violations(verr)
	}
	if found = append(inexact, found...); len(found) > 0 {
		return nil, NewValidationError(found...)
	}

	return decode(doc)
}

// coerce returns a copy of candidate with values converted toward their
// field types. Values that cannot be converted are left as-is for the
// schema to reject. Whole numbers that do not fit an int64 exactly are
// dropped from the copy and reported.
func coerce(candidate map[string]any) (map[string]any, []FieldViolation) {
	doc := make(map[string]any, len(candidate)+1)
	var inexact []FieldViolation
	for key, value := range candidate {
		if value == nil {
			doc[key] = nil
			continue
		}
		switch Fields[key] {
		case KindTime:
			if t, ok := toTime(value); ok {
				value = t.Format(wireTimeLayout)
			}
		case KindInteger:
			if n, ok := toInteger(value); ok {
				value = n
			} else if f, ok := toNumber(value); ok {
				if f == math.Trunc(f) {
					inexact = append(inexact, FieldViolation{Field: key, Rule: "integer", Message: "must be an integer that fits 64 bits exactly"})
					continue
				}
				value = f
			}
		case KindBool:
			if s, ok := value.(string); ok {
				switch strings.ToLower(strings.TrimSpace(s)) {
				case "true":
					value = true
				case "false":
					value = false
				}
			}
		}
		doc[key] = value
	}
	return doc, inexact
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return NormalizeTime(t), true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return NormalizeTime(*t), true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return NormalizeTime(parsed), true
			}
		}
		if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.UnixMilli(ms).UTC(), true
		}
		return time.Time{}, false
	}
	if ms, ok := toInteger(v); ok {
		return time.UnixMilli(ms).UTC(), true
	}
	return time.Time{}, false
}

// maxExactFloat is the largest magnitude below which every whole float64
// is an exact integer.
const maxExactFloat = 1 << 53

// toInteger converts v to an int64 without loss. Integer types and decimal
// strings convert when they fit; floats and exponent forms convert only
// when whole and below 2^53 in magnitude.
func toInteger(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), uint64(n) <= math.MaxInt64
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), n <= math.MaxInt64
	case json.Number:
		return parseInteger(string(n))
	case string:
		return parseInteger(strings.TrimSpace(n))
	}
	if f, ok := toNumber(v); ok {
		return exactFloat(f)
	}
	return 0, false
}

func parseInteger(s string) (int64, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return exactFloat(f)
}

func exactFloat(f float64) (int64, bool) {
	if f != math.Trunc(f) || math.Abs(f) >= maxExactFloat {
		return 0, false
	}
	return int64(f), true
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// violations flattens a schema error tree into field violations.
func violations(verr *jsonschema.ValidationError) []FieldViolation {
	if len(verr.Causes) > 0 {
		var out []FieldViolation
		for _, cause := range verr.Causes {
			out = append(out, violations(cause)...)
		}
		return out
	}

	field := strings.Join(verr.InstanceLocation, "/")
	switch k := verr.ErrorKind.(type) {
	case *kind.Required:
		out := make([]FieldViolation, 0, len(k.Missing))
		for _, name := range k.Missing {
			out = append(out, FieldViolation{Field: name, Rule: "required", Message: "is required"})
		}
		return out
	case *kind.AdditionalProperties:
		out := make([]FieldViolation, 0, len(k.Properties))
		for _, name := range k.Properties {
			out = append(out, FieldViolation{Field: name, Rule: "unknown", Message: "is not allowed"})
		}
		return out
	case *kind.Type:
		msg := "must be " + strings.Join(k.Want, " or ")
		if k.Got == "null" {
			msg = "must not be null"
		}
		return []FieldViolation{{Field: field, Rule: "type", Message: msg}}
	case *kind.MinLength:
		return []FieldViolation{{Field: field, Rule: "empty", Message: "must not be empty"}}
	case *kind.Format:
		return []FieldViolation{{Field: field, Rule: "date", Message: "must be a valid date"}}
	case *kind.InvalidJsonValue:
		if fk, ok := Fields[field]; ok {
			return []FieldViolation{{Field: field, Rule: "type", Message: "must be " + fk.String()}}
		}
		return []FieldViolation{{Field: field, Rule: "type", Message: fmt.Sprintf("%T is not a JSON value", k.Value)}}
	default:
		return []FieldViolation{{Field: field, Rule: strings.Join(verr.ErrorKind.KeywordPath(), "/"), Message: "is invalid"}}
	}
}

// decode builds the typed record from a validated document.
func decode(doc map[string]any) (*QueryHistory, error) {
	q := &QueryHistory{
		UserID:         doc[FieldUserID].(string),
		UserEmail:      doc[FieldUserEmail].(string),
		ConnectionID:   doc[FieldConnectionID].(string),
		ConnectionName: doc[FieldConnectionName].(string),
		QueryText:      doc[FieldQueryText].(string),
	}
	if id, ok := doc[FieldID].(string); ok {
		q.ID = id
	}

	created, err := time.Parse(time.RFC3339Nano, doc[FieldCreatedDate].(string))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", FieldCreatedDate, err)
	}
	q.CreatedDate = NormalizeTime(created)

	for key, dst := range map[string]**time.Time{FieldStartTime: &q.StartTime, FieldStopTime: &q.StopTime} {
		if s, ok := doc[key].(string); ok {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return nil, fmt.Errorf("decode %s: %w", key, err)
			}
			t = NormalizeTime(t)
			*dst = &t
		}
	}
	for key, dst := range map[string]**int64{FieldQueryRunTime: &q.QueryRunTime, FieldRowCount: &q.RowCount} {
		if n, ok := doc[key].(int64); ok {
			v := n
			*dst = &v
		}
	}
	for key, dst := range map[string]**string{FieldQueryID: &q.QueryID, FieldQueryName: &q.QueryName} {
		if s, ok := doc[key].(string); ok {
			v := s
			*dst = &v
		}
	}
	if b, ok := doc[FieldIncomplete].(bool); ok {
		q.Incomplete = &b
	}

	return q, nil
}

// CoerceValue converts v to the Go type stored under field: string,
// time.Time, int64 or bool. It applies the same conversions as Validate.
func CoerceValue(field string, v any) (any, error) {
	k, ok := Fields[field]
	if !ok {
		return nil, fmt.Errorf("unknown field %q", field)
	}
	if v == nil {
		return nil, fmt.Errorf("%s: value must not be null", field)
	}

	switch k {
	case KindTime:
		if t, ok := toTime(v); ok {
			return t, nil
		}
		return nil, fmt.Errorf("%s: %v is not a valid date", field, v)
	case KindInteger:
		if n, ok := toInteger(v); ok {
			return n, nil
		}
		return nil, fmt.Errorf("%s: %v is not an exact integer", field, v)
	case KindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true":
				return true, nil
			case "false":
				return false, nil
			}
		}
		return nil, fmt.Errorf("%s: %v is not a boolean", field, v)
	default:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s: %v is not a string", field, v)
		}
		return s, nil
	}
}
