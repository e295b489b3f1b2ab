package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AWSCosts backs query_aws_costs through the cost gateway fronting Cost
// Explorer. The gateway returns daily grouped amounts; aggregation happens
// here so the model sees per-account totals.
type AWSCosts struct {
	gw *gateway
}

func NewAWSCosts(baseURL string) *AWSCosts {
	return &AWSCosts{gw: newGateway(baseURL, 60*time.Second)}
}

func (a *AWSCosts) Tool() Tool {
	return Tool{Def: defAWSCosts, Run: a.run}
}

type awsCostsResponse struct {
	ResultsByTime []struct {
		Start  string `json:"start"`
		Groups []struct {
			Keys   []string `json:"keys"`
			Amount float64  `json:"amount"`
		} `json:"groups"`
	} `json:"results_by_time"`
}

func (a *AWSCosts) run(ctx context.Context, input map[string]any) map[string]any {
	accountIDs := strSliceArg(input, "account_ids")
	if len(accountIDs) == 0 {
		return map[string]any{"error": "account_ids is required"}
	}
	startDate := strArg(input, "start_date", "")
	endDate := strArg(input, "end_date", "")
	groupBy := strings.ToUpper(strArg(input, "group_by", "SERVICE"))
	switch groupBy {
	case "SERVICE", "INSTANCE_TYPE", "LINKED_ACCOUNT":
	default:
		return map[string]any{"error": fmt.Sprintf("Invalid group_by: %s. Must be SERVICE, INSTANCE_TYPE, or LINKED_ACCOUNT", groupBy)}
	}

	var resp awsCostsResponse
	err := a.gw.postJSON(ctx, "/v1/aws/costs", map[string]any{
		"account_ids": accountIDs,
		"start_date":  startDate,
		"end_date":    endDate,
		"group_by":    groupBy,
		"granularity": "DAILY",
		"metric":      "UnblendedCost",
	}, &resp)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("AWS cost query failed: %v", err)}
	}

	// Groups carry [dimension, account] keys, or just [account] when grouping
	// by linked account.
	byAccount := map[string]map[string]float64{}
	total := 0.0
	for _, window := range resp.ResultsByTime {
		for _, group := range window.Groups {
			if len(group.Keys) == 0 {
				continue
			}
			dimension := group.Keys[0]
			account := group.Keys[len(group.Keys)-1]
			if groupBy == "LINKED_ACCOUNT" {
				dimension = "total"
			}
			if byAccount[account] == nil {
				byAccount[account] = map[string]float64{}
			}
			byAccount[account][dimension] += group.Amount
			total += group.Amount
		}
	}

	results := make([]map[string]any, 0, len(byAccount))
	for _, account := range accountIDs {
		costs, ok := byAccount[account]
		if !ok {
			continue
		}
		accountTotal := 0.0
		rounded := map[string]any{}
		for key, amount := range costs {
			rounded[key] = round2(amount)
			accountTotal += amount
		}
		results = append(results, map[string]any{
			"account_id": account,
			"costs":      rounded,
			"total":      round2(accountTotal),
		})
	}

	return map[string]any{
		"results_by_account": results,
		"total_cost":         round2(total),
		"period":             map[string]any{"start": startDate, "end": endDate},
		"group_by":           groupBy,
	}
}

var defAWSCosts = toolDef("query_aws_costs",
	"Query AWS Cost Explorer for cost data across specified AWS accounts. "+
		"Use this after looking up account IDs from the provision DB. "+
		"Supports grouping by SERVICE, INSTANCE_TYPE, or LINKED_ACCOUNT.",
	map[string]any{
		"type": "object",
		"properties": map[string]any{
			"account_ids": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "List of 12-digit AWS account IDs to query.",
			},
			"start_date": map[string]any{"type": "string", "description": "Start date in YYYY-MM-DD format."},
			"end_date":   map[string]any{"type": "string", "description": "End date in YYYY-MM-DD format."},
			"group_by": map[string]any{
				"type":        "string",
				"enum":        []string{"SERVICE", "INSTANCE_TYPE", "LINKED_ACCOUNT"},
				"description": "Dimension to group costs by. Default: SERVICE.",
			},
		},
		"required": []string{"account_ids", "start_date", "end_date"},
	})
