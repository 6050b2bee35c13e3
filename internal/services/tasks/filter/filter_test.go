package filter

import (
	"reflect"
	"testing"
	"time"
)

func TestParseTaskFilter(t *testing.T) {
	t.Parallel()

	jan1 := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		name       string
		filter     string
		wantClause string
		wantParams []any
	}{
		{name: "empty", filter: "  ", wantClause: "", wantParams: nil},
		{name: "completed true", filter: "completed = true", wantClause: "completed = ?", wantParams: []any{1}},
		{name: "completed false", filter: "completed != false", wantClause: "completed != ?", wantParams: []any{0}},
		{name: "bare bool", filter: "completed", wantClause: "completed = ?", wantParams: []any{1}},
		{name: "not bool", filter: "NOT completed", wantClause: "NOT (completed = ?)", wantParams: []any{1}},
		{name: "title equals", filter: `title = "Buy milk"`, wantClause: "title = ?", wantParams: []any{"Buy milk"}},
		{name: "title has", filter: `title:"MILK"`, wantClause: "instr(lower(title), lower(?)) > 0", wantParams: []any{"MILK"}},
		{
			name:       "and",
			filter:     `completed = false AND description:"store"`,
			wantClause: "(completed = ? AND instr(lower(description), lower(?)) > 0)",
			wantParams: []any{0, "store"},
		},
		{
			name:       "or",
			filter:     `title = "a" OR title = "b"`,
			wantClause: "(title = ? OR title = ?)",
			wantParams: []any{"a", "b"},
		},
		{
			name:       "timestamp string",
			filter:     `create_time >= "2024-01-01T00:00:00Z"`,
			wantClause: "created_at >= ?",
			wantParams: []any{jan1},
		},
		{
			name:       "timestamp function",
			filter:     `update_time < timestamp("2024-01-01T00:00:00Z")`,
			wantClause: "updated_at < ?",
			wantParams: []any{jan1},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseTaskFilter(tc.filter)
			if err != nil {
				t.Fatalf("ParseTaskFilter(%q) error = %v", tc.filter, err)
			}
			if got.Clause != tc.wantClause {
				t.Fatalf("clause = %q, want %q", got.Clause, tc.wantClause)
			}
			if !reflect.DeepEqual(got.Params, tc.wantParams) {
				t.Fatalf("params = %#v, want %#v", got.Params, tc.wantParams)
			}
		})
	}
}

func TestParseTaskFilterRejectsInvalidExpressions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		filter string
	}{
		{name: "unknown field", filter: `owner = "me"`},
		{name: "syntax error", filter: `title = `},
		{name: "ordering on bool", filter: `completed > true`},
		{name: "string on bool", filter: `completed = "yes"`},
		{name: "bad timestamp", filter: `create_time > "yesterday"`},
		{name: "non bool result", filter: `title`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseTaskFilter(tc.filter); err == nil {
				t.Fatalf("ParseTaskFilter(%q) expected error", tc.filter)
			}
		})
	}
}

func TestSQLConditionEmpty(t *testing.T) {
	t.Parallel()

	if !(SQLCondition{}).Empty() {
		t.Fatal("zero condition should be empty")
	}
	if (SQLCondition{Clause: "completed = ?"}).Empty() {
		t.Fatal("condition with clause should not be empty")
	}
}
