package cmd

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"qhist/internal/domain"
	"qhist/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFilter(t *testing.T) {
	f, err := buildFilter([]string{"userId=u1", "queryText=a=b"}, `{"rowCount":{"$gt":10}}`)
	require.NoError(t, err)

	assert.Equal(t, "u1", f.Match["userId"])
	assert.Equal(t, "a=b", f.Match["queryText"])
	assert.Equal(t, map[string]any{"$gt": json.Number("10")}, f.Match["rowCount"])
}

func TestBuildFilterErrors(t *testing.T) {
	tests := []struct {
		name   string
		where  []string
		filter string
	}{
		{"missing equals", []string{"userId"}, ""},
		{"empty key", []string{"=u1"}, ""},
		{"bad json", nil, `{"userId":`},
		{"duplicate", []string{"userId=u1"}, `{"userId":"u2"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildFilter(tt.where, tt.filter)
			assert.ErrorIs(t, err, storage.ErrInvalidInput)
		})
	}
}

func TestReadDocument(t *testing.T) {
	doc, err := readDocument(strings.NewReader(`{"userId":"u1","rowCount":3}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("3"), doc["rowCount"])

	_, err = readDocument(strings.NewReader(`null`))
	assert.Error(t, err)

	_, err = readDocument(strings.NewReader(`[1]`))
	assert.Error(t, err)
}

func TestSingleLine(t *testing.T) {
	assert.Equal(t, "SELECT * FROM t", singleLine("SELECT *\n  FROM t", 0))
	assert.Equal(t, "abcd…", singleLine("abcdefgh", 5))
}

func TestRecordList(t *testing.T) {
	start := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	rows := int64(7)
	list := recordList{
		{ID: "a", UserID: "u1", ConnectionName: "prod", StartTime: &start, RowCount: &rows, QueryText: "SELECT 1"},
		{ID: "b", UserID: "u2", ConnectionName: "dev", QueryText: "SELECT 2"},
	}

	assert.Equal(t, []string{"a", "b"}, list.Identifiers())

	table := list.TableData()
	require.Len(t, table.Rows, 2)
	assert.Equal(t, []string{"a", "u1", "prod", "2024-06-15 10:00:00.000", "-", "7", "SELECT 1"}, table.Rows[0])
	assert.Equal(t, "-", table.Rows[1][3])
}

func TestRecordView(t *testing.T) {
	r := &domain.QueryHistory{ID: "a", UserID: "u1", QueryText: "SELECT 1"}
	v := (*recordView)(r)

	assert.Equal(t, "a", v.Identifier())
	assert.Len(t, v.TableData().Rows, len(domain.Fields))
}
