package tools

import (
	"strings"
	"testing"
)

func TestValidateSQL(t *testing.T) {
	cases := []struct {
		name  string
		query string
		want  string
	}{
		{"plain select", "SELECT * FROM provisions", ""},
		{"cte", "WITH recent AS (SELECT * FROM provisions) SELECT * FROM recent", ""},
		{"trailing semicolon", "SELECT 1;", ""},
		{"surrounding whitespace", "  SELECT 1  ", ""},
		{"empty", "", "Empty SQL statement"},
		{"only semicolon", " ; ", "Empty SQL statement"},
		{"insert", "INSERT INTO users VALUES (1)", "Only SELECT queries allowed, got: INSERT"},
		{"lowercase update", "update users set name = 'x'", "Only SELECT queries allowed, got: UPDATE"},
		{"embedded drop", "SELECT 1; DROP TABLE users", "Forbidden SQL keyword: DROP"},
		{"embedded delete", "SELECT * FROM t WHERE EXISTS (DELETE FROM t)", "Forbidden SQL keyword: DELETE"},
		{"column named update_time", "SELECT update_time FROM provisions", ""},
		{"multiple statements", "SELECT 1; SELECT 2", "Multiple statements not allowed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidateSQL(tc.query); got != tc.want {
				t.Fatalf("ValidateSQL(%q) = %q, want %q", tc.query, got, tc.want)
			}
		})
	}
}

func TestCapRows(t *testing.T) {
	cases := []struct {
		name string
		stmt string
		want string
	}{
		{
			"appends limit",
			"SELECT * FROM provisions",
			"SELECT * FROM provisions LIMIT 501",
		},
		{
			"respects existing limit",
			"SELECT * FROM provisions ORDER BY created_at LIMIT 10",
			"SELECT * FROM provisions ORDER BY created_at LIMIT 10",
		},
		{
			"limit only counts after final order",
			"SELECT * FROM (SELECT * FROM p LIMIT 5) sub ORDER BY id",
			"SELECT * FROM (SELECT * FROM p LIMIT 5) sub ORDER BY id LIMIT 501",
		},
		{
			"limit without order",
			"SELECT * FROM provisions LIMIT 10",
			"SELECT * FROM provisions LIMIT 10",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := capRows(tc.stmt, 501); got != tc.want {
				t.Fatalf("capRows = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSerializeValue(t *testing.T) {
	if got := serializeValue([]byte("hello")); got != "hello" {
		t.Fatalf("bytes = %v", got)
	}
	if got := serializeValue(nil); got != nil {
		t.Fatalf("nil = %v", got)
	}
	if got := serializeValue(int64(7)); got != int64(7) {
		t.Fatalf("int64 = %v", got)
	}
}

func TestProvisionsToolDefinitionMentionsTables(t *testing.T) {
	def := defProvisionsDB
	if def.Name != "query_provisions_db" {
		t.Fatalf("name = %s", def.Name)
	}
	props, _ := def.InputSchema["properties"].(map[string]any)
	sqlProp, _ := props["sql"].(map[string]any)
	desc, _ := sqlProp["description"].(string)
	if !strings.Contains(desc, "provision") {
		t.Fatalf("sql description missing table hints: %q", desc)
	}
}
