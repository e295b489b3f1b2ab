package tools

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// CostMonitor backs query_cost_monitor: the cost-data service already holds
// aggregated multi-cloud spend, so this is a thin query adapter.
type CostMonitor struct {
	gw           *gateway
	dashboardURL string
}

func NewCostMonitor(baseURL, dashboardURL string) *CostMonitor {
	return &CostMonitor{
		gw:           newGateway(baseURL, 30*time.Second),
		dashboardURL: dashboardURL,
	}
}

func (c *CostMonitor) Tool() Tool {
	return Tool{Def: defCostMonitor, Run: c.run}
}

func (c *CostMonitor) run(ctx context.Context, input map[string]any) map[string]any {
	endpoint := strArg(input, "endpoint", "")
	query := url.Values{
		"start_date": []string{strArg(input, "start_date", "")},
		"end_date":   []string{strArg(input, "end_date", "")},
	}
	// Repeated params for lists: ?providers=aws&providers=gcp
	for _, p := range strings.Split(strArg(input, "providers", ""), ",") {
		if p = strings.TrimSpace(p); p != "" {
			query.Add("providers", p)
		}
	}

	var path string
	switch endpoint {
	case "summary":
		path = "/api/v1/costs/summary"
	case "breakdown":
		path = "/api/v1/costs/aws/breakdown"
		if groupBy := strArg(input, "group_by", ""); groupBy != "" {
			query.Set("group_by", groupBy)
		}
		query.Set("top_n", strconv.Itoa(intArg(input, "top_n", 25)))
	case "drilldown":
		path = "/api/v1/costs/aws/drilldown"
		if t := strArg(input, "drilldown_type", ""); t != "" {
			query.Set("drilldown_type", t)
		}
		if k := strArg(input, "selected_key", ""); k != "" {
			query.Set("selected_key", k)
		}
	case "providers":
		path = "/api/v1/providers"
	default:
		return map[string]any{"error": fmt.Sprintf("Unknown endpoint: %s. Use summary, breakdown, drilldown, or providers.", endpoint)}
	}

	var data map[string]any
	if err := c.gw.getJSON(ctx, path, query, &data); err != nil {
		return map[string]any{"error": fmt.Sprintf("Cost monitor query failed: %v", err)}
	}
	if data == nil {
		data = map[string]any{}
	}
	if c.dashboardURL != "" {
		data["dashboard_url"] = c.dashboardURL
	}
	return data
}

var defCostMonitor = toolDef("query_cost_monitor",
	"Query the cost-monitor data service for pre-aggregated multi-cloud spend. "+
		"Endpoints: summary (totals per provider), breakdown (AWS grouped costs), "+
		"drilldown (one group expanded), providers (available providers).",
	map[string]any{
		"type": "object",
		"properties": map[string]any{
			"endpoint": map[string]any{
				"type":        "string",
				"enum":        []string{"summary", "breakdown", "drilldown", "providers"},
				"description": "Which cost-monitor endpoint to hit.",
			},
			"start_date": map[string]any{"type": "string", "description": "Start date in YYYY-MM-DD format."},
			"end_date":   map[string]any{"type": "string", "description": "End date in YYYY-MM-DD format."},
			"providers": map[string]any{
				"type":        "string",
				"description": "Comma-separated providers to include, e.g. 'aws,gcp'.",
			},
			"group_by":       map[string]any{"type": "string", "description": "Breakdown grouping dimension."},
			"top_n":          map[string]any{"type": "integer", "description": "Max breakdown groups. Default: 25."},
			"drilldown_type": map[string]any{"type": "string", "description": "Drilldown dimension."},
			"selected_key":   map[string]any{"type": "string", "description": "Group key to drill into."},
		},
		"required": []string{"endpoint", "start_date", "end_date"},
	})
