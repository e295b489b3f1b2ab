package tools

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"
)

// Only SELECT statements reach the provision database: no DDL, DML, or DCL.
var forbiddenSQL = regexp.MustCompile(`(?i)\b(INSERT|UPDATE|DELETE|DROP|CREATE|ALTER|TRUNCATE|GRANT|REVOKE|COPY|EXECUTE|DO|CALL|SET|RESET|DISCARD|LOAD|VACUUM|ANALYZE|CLUSTER|REINDEX|LOCK|PREPARE|DEALLOCATE|LISTEN|NOTIFY|UNLISTEN)\b`)

// ValidateSQL checks that the statement is a single read-only query.
// Returns "" when acceptable, otherwise the reason for rejection.
func ValidateSQL(query string) string {
	stripped := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	if stripped == "" {
		return "Empty SQL statement"
	}
	first := strings.ToUpper(strings.Fields(stripped)[0])
	if first != "SELECT" && first != "WITH" {
		return fmt.Sprintf("Only SELECT queries allowed, got: %s", first)
	}
	if m := forbiddenSQL.FindString(stripped); m != "" {
		return fmt.Sprintf("Forbidden SQL keyword: %s", m)
	}
	if strings.Contains(stripped, ";") {
		return "Multiple statements not allowed"
	}
	return ""
}

// ProvisionsDB backs query_provisions_db: read-only SQL against the
// provision database with a hard row cap and statement timeout.
type ProvisionsDB struct {
	db      *sql.DB
	maxRows int
	timeout time.Duration
	logger  *log.Logger
}

func NewProvisionsDB(db *sql.DB, maxRows int, timeout time.Duration) *ProvisionsDB {
	if maxRows <= 0 {
		maxRows = 500
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ProvisionsDB{
		db:      db,
		maxRows: maxRows,
		timeout: timeout,
		logger:  log.New(log.Writer(), "[DB] ", log.LstdFlags),
	}
}

func (p *ProvisionsDB) Tool() Tool {
	return Tool{
		Def: defProvisionsDB,
		Run: p.run,
	}
}

func (p *ProvisionsDB) run(ctx context.Context, input map[string]any) map[string]any {
	query, _ := input["sql"].(string)
	if reason := ValidateSQL(query); reason != "" {
		return map[string]any{"error": reason}
	}

	stmt := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(query), ";"))
	stmt = capRows(stmt, p.maxRows+1)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, stmt)
	if err != nil {
		p.logger.Printf("query failed: %v", err)
		return map[string]any{"error": fmt.Sprintf("Query execution failed: %v", err)}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Query execution failed: %v", err)}
	}

	var out []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return map[string]any{"error": fmt.Sprintf("Query execution failed: %v", err)}
		}
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = serializeValue(values[i])
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return map[string]any{"error": fmt.Sprintf("Query execution failed: %v", err)}
	}

	truncated := len(out) > p.maxRows
	if truncated {
		out = out[:p.maxRows]
	}
	if out == nil {
		out = []map[string]any{}
	}
	return map[string]any{
		"columns":   columns,
		"rows":      out,
		"row_count": len(out),
		"truncated": truncated,
	}
}

// capRows appends a LIMIT unless the statement already carries one after its
// final ORDER clause.
func capRows(stmt string, limit int) string {
	lower := strings.ToLower(stmt)
	tail := lower
	if i := strings.LastIndex(lower, "order"); i >= 0 {
		tail = lower[i:]
	}
	if strings.Contains(tail, "limit") {
		return stmt
	}
	return fmt.Sprintf("%s LIMIT %d", stmt, limit)
}

func serializeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return val
	}
}

var defProvisionsDB = toolDef("query_provisions_db",
	"Execute a read-only SQL query against the RHDP provision database. "+
		"Use this to look up users, provisions, catalog items, and cloud account mappings. "+
		"Only SELECT queries are allowed. Results are limited to 500 rows.",
	map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sql": map[string]any{
				"type": "string",
				"description": "A SELECT SQL query to execute against the provision DB. " +
					"Available tables: provisions, users, catalog_items, provision_request, catalog_resource. " +
					"See the system prompt for schema details and join patterns.",
			},
		},
		"required": []string{"sql"},
	})
