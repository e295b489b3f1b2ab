package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// GCPCosts backs query_gcp_costs through the billing-export query service
// that fronts the BigQuery export dataset.
type GCPCosts struct {
	gw *gateway
}

func NewGCPCosts(baseURL string) *GCPCosts {
	return &GCPCosts{gw: newGateway(baseURL, 60*time.Second)}
}

func (g *GCPCosts) Tool() Tool {
	return Tool{Def: defGCPCosts, Run: g.run}
}

type gcpCostsResponse struct {
	Results []struct {
		Key  string  `json:"key"`
		Cost float64 `json:"cost"`
	} `json:"results"`
	TotalCost float64 `json:"total_cost"`
}

func (g *GCPCosts) run(ctx context.Context, input map[string]any) map[string]any {
	startDate := strArg(input, "start_date", "")
	endDate := strArg(input, "end_date", "")
	groupBy := strings.ToUpper(strArg(input, "group_by", "SERVICE"))
	if groupBy != "SERVICE" && groupBy != "PROJECT" {
		return map[string]any{"error": fmt.Sprintf("Invalid group_by: %s. Must be SERVICE or PROJECT", groupBy)}
	}

	body := map[string]any{
		"start_date": startDate,
		"end_date":   endDate,
		"group_by":   groupBy,
	}
	if services := strSliceArg(input, "filter_services"); len(services) > 0 {
		body["services"] = services
	}
	if projects := strSliceArg(input, "filter_projects"); len(projects) > 0 {
		body["projects"] = projects
	}

	var resp gcpCostsResponse
	if err := g.gw.postJSON(ctx, "/v1/gcp/costs", body, &resp); err != nil {
		return map[string]any{"error": fmt.Sprintf("GCP cost query failed: %v", err)}
	}

	results := make([]map[string]any, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]any{
			"key":  r.Key,
			"cost": round2(r.Cost),
		})
	}
	return map[string]any{
		"results":    results,
		"total_cost": round2(resp.TotalCost),
		"period":     map[string]any{"start": startDate, "end": endDate},
		"group_by":   groupBy,
	}
}

var defGCPCosts = toolDef("query_gcp_costs",
	"Query the GCP BigQuery billing export for cost data. "+
		"Supports grouping by SERVICE or PROJECT and optional service/project filters.",
	map[string]any{
		"type": "object",
		"properties": map[string]any{
			"start_date": map[string]any{"type": "string", "description": "Start date in YYYY-MM-DD format."},
			"end_date":   map[string]any{"type": "string", "description": "End date in YYYY-MM-DD format."},
			"group_by": map[string]any{
				"type":        "string",
				"enum":        []string{"SERVICE", "PROJECT"},
				"description": "Dimension to group costs by. Default: SERVICE.",
			},
			"filter_services": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Optional service names to include.",
			},
			"filter_projects": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Optional project IDs to include.",
			},
		},
		"required": []string{"start_date", "end_date"},
	})
