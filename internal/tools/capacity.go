package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
)

// CapacityManager backs query_aws_capacity_manager through the capacity
// gateway fronting EC2 Capacity Manager on the payer account. The gateway
// returns hourly metric data points; aggregation into per-dimension
// summaries happens here so the model sees reservation waste directly.
type CapacityManager struct {
	gw *gateway
}

func NewCapacityManager(baseURL string) *CapacityManager {
	return &CapacityManager{gw: newGateway(baseURL, 60*time.Second)}
}

func (c *CapacityManager) Tool() Tool {
	return Tool{Def: defCapacityManager, Run: c.run, StatusLabel: "Querying Capacity Manager"}
}

// Metric presets. Utilization pulls the full picture; unused_cost is the
// cheap two-metric variant for "where is the waste" questions.
var capacityUtilizationMetrics = []string{
	"reservation-avg-utilization-inst",
	"reservation-total-capacity-hrs-inst",
	"reservation-unused-total-capacity-hrs-inst",
	"reservation-total-estimated-cost",
	"reservation-unused-total-estimated-cost",
	"reservation-total-count",
}

var capacityUnusedCostMetrics = []string{
	"reservation-unused-total-estimated-cost",
	"reservation-unused-total-capacity-hrs-inst",
}

// Dimensions active for fewer hours than this are provisioning churn, not
// waste, and are excluded from account and reservation groupings.
const capacityMinHours = 24

const capacityMaxHours = 2160

type capacityResponse struct {
	Period struct {
		Start string `json:"start"`
		End   string `json:"end"`
	} `json:"period"`
	Results []struct {
		Dimension    string `json:"dimension"`
		Timestamp    string `json:"timestamp"`
		MetricValues []struct {
			Metric string  `json:"metric"`
			Value  float64 `json:"value"`
		} `json:"metric_values"`
	} `json:"results"`
}

func (c *CapacityManager) run(ctx context.Context, input map[string]any) map[string]any {
	metric := strArg(input, "metric", "utilization")
	switch metric {
	case "utilization", "unused_cost", "inventory":
	default:
		return map[string]any{"error": fmt.Sprintf("Invalid metric: %s. Must be utilization, unused_cost, or inventory", metric)}
	}

	hours := intArg(input, "hours", 168)
	if hours > capacityMaxHours {
		hours = capacityMaxHours
	}
	if hours < 1 {
		hours = 1
	}

	filters := map[string]any{
		"reservation_state": strArg(input, "reservation_state", "active"),
	}
	if s := strArg(input, "instance_type", ""); s != "" {
		filters["instance_type"] = s
	}
	if s := strArg(input, "account_id", ""); s != "" {
		filters["account_id"] = s
	}

	if metric == "inventory" {
		return c.inventory(ctx, filters, hours)
	}

	metricNames := capacityUtilizationMetrics
	if metric == "unused_cost" {
		metricNames = capacityUnusedCostMetrics
	}
	groupBy := strArg(input, "group_by", "account-id")

	var resp capacityResponse
	err := c.gw.postJSON(ctx, "/v1/aws/capacity/metrics", map[string]any{
		"metric_names":   metricNames,
		"group_by":       groupBy,
		"filters":        filters,
		"hours":          hours,
		"period_seconds": 3600,
	}, &resp)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("AWS Capacity Manager query failed: %v", err)}
	}

	results, totals := aggregateCapacity(resp, groupBy)
	return map[string]any{
		"metric":   metric,
		"period":   map[string]any{"start": resp.Period.Start, "end": resp.Period.End},
		"group_by": groupBy,
		"results":  results,
		"totals":   totals,
	}
}

// capacityByDimension folds the flat hourly data points into per-dimension
// metric series, returning the dimensions in sorted order.
func capacityByDimension(resp capacityResponse) (map[string]map[string][]float64, []string) {
	byDim := map[string]map[string][]float64{}
	for _, entry := range resp.Results {
		dim := entry.Dimension
		if dim == "" {
			dim = "unknown"
		}
		if byDim[dim] == nil {
			byDim[dim] = map[string][]float64{}
		}
		for _, mv := range entry.MetricValues {
			byDim[dim][mv.Metric] = append(byDim[dim][mv.Metric], mv.Value)
		}
	}
	dims := make([]string, 0, len(byDim))
	for dim := range byDim {
		dims = append(dims, dim)
	}
	sort.Strings(dims)
	return byDim, dims
}

func aggregateCapacity(resp capacityResponse, groupBy string) ([]map[string]any, map[string]any) {
	byDim, dims := capacityByDimension(resp)

	filterTransient := groupBy == "account-id" || groupBy == "reservation-id"
	transientCount := 0
	transientCost := 0.0

	results := []map[string]any{}
	totalCost, totalUnusedCost := 0.0, 0.0
	totalCapacityHrs, totalUnusedHrs := 0.0, 0.0

	for _, dim := range dims {
		metrics := byDim[dim]
		if filterTransient && len(metrics["reservation-total-count"]) < capacityMinHours {
			transientCount++
			transientCost += sumFloats(metrics["reservation-unused-total-estimated-cost"])
			continue
		}

		entry := map[string]any{"dimension": dim}
		if vals := metrics["reservation-avg-utilization-inst"]; len(vals) > 0 {
			entry["avg_utilization_pct"] = round1(sumFloats(vals) / float64(len(vals)))
		}
		if vals := metrics["reservation-total-capacity-hrs-inst"]; len(vals) > 0 {
			entry["total_capacity_hrs"] = round1(sumFloats(vals))
			totalCapacityHrs += sumFloats(vals)
		}
		if vals := metrics["reservation-unused-total-capacity-hrs-inst"]; len(vals) > 0 {
			entry["unused_capacity_hrs"] = round1(sumFloats(vals))
			totalUnusedHrs += sumFloats(vals)
		}
		if vals := metrics["reservation-total-estimated-cost"]; len(vals) > 0 {
			entry["total_estimated_cost_usd"] = round2(sumFloats(vals))
			totalCost += sumFloats(vals)
		}
		if vals := metrics["reservation-unused-total-estimated-cost"]; len(vals) > 0 {
			entry["unused_estimated_cost_usd"] = round2(sumFloats(vals))
			totalUnusedCost += sumFloats(vals)
		}
		if vals := metrics["reservation-total-count"]; len(vals) > 0 {
			// Peak concurrent reservations over the window.
			entry["reservation_count"] = int(maxFloat(vals))
		}
		results = append(results, entry)
	}

	// Worst offenders first.
	sort.SliceStable(results, func(i, j int) bool {
		return entryUnusedCost(results[i]) > entryUnusedCost(results[j])
	})

	overallUtil := 0.0
	if totalCapacityHrs > 0 {
		overallUtil = round1((1 - totalUnusedHrs/totalCapacityHrs) * 100)
	}

	totals := map[string]any{
		"total_estimated_cost_usd":  round2(totalCost),
		"unused_estimated_cost_usd": round2(totalUnusedCost),
		"overall_utilization_pct":   overallUtil,
		"total_dimensions":          len(results),
	}
	if filterTransient && transientCount > 0 {
		totals["transient_excluded"] = transientCount
		totals["transient_cost_usd"] = round2(transientCost)
	}
	if len(results) > 50 {
		results = results[:50]
		totals["results_truncated"] = true
	}
	return results, totals
}

// inventory lists persistent ODCRs grouped by reservation id. Short-lived
// reservations are counted and costed but not listed.
func (c *CapacityManager) inventory(ctx context.Context, filters map[string]any, hours int) map[string]any {
	var resp capacityResponse
	err := c.gw.postJSON(ctx, "/v1/aws/capacity/metrics", map[string]any{
		"metric_names": []string{
			"reservation-total-count",
			"reservation-avg-utilization-inst",
			"reservation-unused-total-estimated-cost",
		},
		"group_by":       "reservation-id",
		"filters":        filters,
		"hours":          hours,
		"period_seconds": 3600,
	}, &resp)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("AWS Capacity Manager query failed: %v", err)}
	}

	byRes, ids := capacityByDimension(resp)

	persistent := []map[string]any{}
	transientCount := 0
	transientCost := 0.0
	for _, id := range ids {
		metrics := byRes[id]
		hoursActive := len(metrics["reservation-total-count"])
		unusedCost := round2(sumFloats(metrics["reservation-unused-total-estimated-cost"]))
		if hoursActive < capacityMinHours {
			transientCount++
			transientCost += unusedCost
			continue
		}
		entry := map[string]any{
			"reservation_id":            id,
			"unused_estimated_cost_usd": unusedCost,
			"hours_active":              hoursActive,
		}
		if vals := metrics["reservation-avg-utilization-inst"]; len(vals) > 0 {
			entry["avg_utilization_pct"] = round1(sumFloats(vals) / float64(len(vals)))
		}
		persistent = append(persistent, entry)
	}

	sort.SliceStable(persistent, func(i, j int) bool {
		return entryUnusedCost(persistent[i]) > entryUnusedCost(persistent[j])
	})

	totalPersistent := len(persistent)
	truncated := totalPersistent > 100
	if truncated {
		persistent = persistent[:100]
	}

	return map[string]any{
		"metric":                  "inventory",
		"persistent_reservations": totalPersistent,
		"transient_excluded":      transientCount,
		"transient_cost_usd":      round2(transientCost),
		"results_truncated":       truncated,
		"reservations":            persistent,
	}
}

func entryUnusedCost(entry map[string]any) float64 {
	v, _ := entry["unused_estimated_cost_usd"].(float64)
	return v
}

func sumFloats(vals []float64) float64 {
	total := 0.0
	for _, v := range vals {
		total += v
	}
	return total
}

func maxFloat(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

var defCapacityManager = toolDef("query_aws_capacity_manager",
	"Query EC2 Capacity Manager for On-Demand Capacity Reservation (ODCR) "+
		"utilization, unused cost, and inventory. Use this to find reserved "+
		"capacity that is paid for but idle.",
	map[string]any{
		"type": "object",
		"properties": map[string]any{
			"metric": map[string]any{
				"type":        "string",
				"enum":        []string{"utilization", "unused_cost", "inventory"},
				"description": "Metric preset. Default: utilization.",
			},
			"group_by": map[string]any{
				"type": "string",
				"description": "Dimension to group by: account-id, instance-type, " +
					"instance-family, resource-region, availability-zone-id, " +
					"reservation-id, reservation-state, tenancy, or " +
					"instance-platform. Default: account-id.",
			},
			"instance_type": map[string]any{"type": "string", "description": "Filter to a specific instance type, e.g. c5.4xlarge."},
			"account_id":    map[string]any{"type": "string", "description": "Filter to a specific 12-digit AWS account ID."},
			"reservation_state": map[string]any{
				"type":        "string",
				"description": "Filter by reservation state. Default: active.",
			},
			"hours": map[string]any{
				"type":        "integer",
				"description": "Hours of history to aggregate. Default: 168 (7 days). Max: 2160 (90 days).",
			},
		},
	})
