package tools

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	cloudTrailMaxRows      = 500
	cloudTrailPollInterval = 2 * time.Second
	// Lake scans routinely take 30-90s.
	cloudTrailQueryTimeout = 120 * time.Second
)

// CloudTrail backs query_cloudtrail through the audit-log gateway: start a
// Lake query, poll until it finishes, paginate the rows.
type CloudTrail struct {
	gw       *gateway
	poll     time.Duration
	deadline time.Duration
	logger   *log.Logger
}

func NewCloudTrail(baseURL string) *CloudTrail {
	return &CloudTrail{
		gw:       newGateway(baseURL, 30*time.Second),
		poll:     cloudTrailPollInterval,
		deadline: cloudTrailQueryTimeout,
		logger:   log.New(log.Writer(), "[CLOUDTRAIL] ", log.LstdFlags),
	}
}

func (c *CloudTrail) Tool() Tool {
	return Tool{
		Def:         defCloudTrail,
		Run:         c.run,
		StatusLabel: "Scanning CloudTrail Lake",
	}
}

type ctQueryPage struct {
	QueryID      string           `json:"query_id"`
	Status       string           `json:"status"`
	ErrorMessage string           `json:"error_message"`
	BytesScanned int64            `json:"bytes_scanned"`
	Columns      []string         `json:"columns"`
	Rows         []map[string]any `json:"rows"`
	NextToken    string           `json:"next_token"`
}

func (c *CloudTrail) run(ctx context.Context, input map[string]any) map[string]any {
	query, _ := input["query"].(string)
	if strings.TrimSpace(query) == "" {
		return map[string]any{"error": "Empty CloudTrail Lake query"}
	}
	maxResults := intArg(input, "max_results", 100)
	if maxResults > cloudTrailMaxRows {
		maxResults = cloudTrailMaxRows
	}

	var started ctQueryPage
	if err := c.gw.postJSON(ctx, "/v1/queries", map[string]any{"query": query}, &started); err != nil {
		return map[string]any{"error": fmt.Sprintf("CloudTrail Lake query failed to start: %v", err)}
	}

	page, errPayload := c.await(ctx, started.QueryID, maxResults)
	if errPayload != nil {
		return errPayload
	}

	columns := page.Columns
	rows := page.Rows
	for page.NextToken != "" && len(rows) < maxResults {
		next, err := c.fetchPage(ctx, started.QueryID, maxResults-len(rows), page.NextToken)
		if err != nil {
			return map[string]any{"error": fmt.Sprintf("CloudTrail Lake pagination failed: %v", err)}
		}
		rows = append(rows, next.Rows...)
		page = next
	}

	parsed := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		parsed = append(parsed, parseEventRow(row))
	}
	truncated := len(parsed) > maxResults
	if truncated {
		parsed = parsed[:maxResults]
	}
	if columns == nil {
		columns = []string{}
	}
	return map[string]any{
		"columns":       columns,
		"rows":          parsed,
		"row_count":     len(parsed),
		"bytes_scanned": page.BytesScanned,
		"truncated":     truncated,
	}
}

// await polls the query until it finishes or the scan deadline passes.
func (c *CloudTrail) await(ctx context.Context, queryID string, maxResults int) (*ctQueryPage, map[string]any) {
	started := time.Now()
	for {
		page, err := c.fetchPage(ctx, queryID, maxResults, "")
		if err != nil {
			return nil, map[string]any{"error": fmt.Sprintf("CloudTrail Lake query failed: %v", err)}
		}
		switch page.Status {
		case "FINISHED":
			return page, nil
		case "FAILED", "CANCELLED", "TIMED_OUT":
			msg := page.ErrorMessage
			if msg == "" {
				msg = page.Status
			}
			return nil, map[string]any{"error": fmt.Sprintf("CloudTrail Lake query %s: %s", page.Status, msg)}
		}
		if elapsed := time.Since(started); elapsed >= c.deadline {
			c.logger.Printf("query %s timed out after %s", queryID, elapsed.Round(time.Second))
			return nil, map[string]any{"error": fmt.Sprintf(
				"CloudTrail Lake query timed out after %ds. Try narrowing the eventTime range to reduce data scanned.",
				int(elapsed.Seconds()))}
		}
		select {
		case <-time.After(c.poll):
		case <-ctx.Done():
			return nil, map[string]any{"error": fmt.Sprintf("CloudTrail Lake query aborted: %v", ctx.Err())}
		}
	}
}

func (c *CloudTrail) fetchPage(ctx context.Context, queryID string, maxResults int, nextToken string) (*ctQueryPage, error) {
	q := url.Values{"max_results": []string{strconv.Itoa(maxResults)}}
	if nextToken != "" {
		q.Set("next_token", nextToken)
	}
	var page ctQueryPage
	if err := c.gw.getJSON(ctx, "/v1/queries/"+url.PathEscape(queryID), q, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// parseEventRow expands the Java-style map strings CloudTrail Lake returns
// for request parameters and response elements.
func parseEventRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for key, value := range row {
		s, isString := value.(string)
		if isString && (key == "requestParameters" || key == "responseElements") &&
			strings.HasPrefix(s, "{") && strings.Contains(s, "=") {
			out[key] = parseJavaMap(s)
			continue
		}
		out[key] = value
	}
	return out
}

// parseJavaMap parses '{key=value, key2=value2}' into a map. Lake emits this
// format instead of JSON; only flat top-level pairs are handled.
func parseJavaMap(s string) map[string]any {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	result := map[string]any{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if key, value, found := strings.Cut(pair, "="); found {
			result[strings.TrimSpace(key)] = strings.TrimSpace(value)
		}
	}
	return result
}

var defCloudTrail = toolDef("query_cloudtrail",
	"Query CloudTrail Lake for org-wide AWS API events using SQL. "+
		"Use this to find who launched, stopped, or modified resources, and from where. "+
		"Scans are slow (30-90s); always constrain eventTime to a narrow range.",
	map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type": "string",
				"description": "CloudTrail Lake SQL. Query the event data store for fields like " +
					"eventTime, eventName, eventSource, userIdentity.arn, recipientAccountId, " +
					"sourceIPAddress, requestParameters, responseElements.",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Max rows to return. Default: 100, max: 500.",
			},
		},
		"required": []string{"query"},
	})
