package tools

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	marketplaceMaxResults     = 500
	marketplaceDefaultResults = 100
)

// Marketplace backs query_marketplace_agreements against the agreement
// inventory service. Exact-match and numeric filters run server-side;
// case-insensitive text filters run here.
type Marketplace struct {
	gw *gateway
}

func NewMarketplace(baseURL string) *Marketplace {
	return &Marketplace{gw: newGateway(baseURL, 30*time.Second)}
}

func (m *Marketplace) Tool() Tool {
	return Tool{Def: defMarketplace, Run: m.run}
}

type agreementsResponse struct {
	Agreements []map[string]any `json:"agreements"`
}

func (m *Marketplace) run(ctx context.Context, input map[string]any) map[string]any {
	maxResults := intArg(input, "max_results", marketplaceDefaultResults)
	if maxResults > marketplaceMaxResults {
		maxResults = marketplaceMaxResults
	}

	query := url.Values{}
	if v := strArg(input, "account_id", ""); v != "" {
		query.Set("account_id", v)
	}
	if v := strArg(input, "status", ""); v != "" {
		query.Set("status", v)
	}
	if v := strArg(input, "classification", ""); v != "" {
		query.Set("classification", v)
	}
	if minCost := floatArg(input, "min_cost", -1); minCost >= 0 {
		query.Set("min_cost", strconv.FormatFloat(minCost, 'f', -1, 64))
	}

	var resp agreementsResponse
	if err := m.gw.getJSON(ctx, "/v1/agreements", query, &resp); err != nil {
		return map[string]any{"error": fmt.Sprintf("Marketplace agreement query failed: %v", err)}
	}

	accountName := strings.ToLower(strArg(input, "account_name", ""))
	productName := strings.ToLower(strArg(input, "product_name", ""))
	vendorName := strings.ToLower(strArg(input, "vendor_name", ""))

	matched := make([]map[string]any, 0, len(resp.Agreements))
	for _, item := range resp.Agreements {
		if !containsFold(item, "account_name", accountName) ||
			!containsFold(item, "product_name", productName) ||
			!containsFold(item, "vendor_name", vendorName) {
			continue
		}
		matched = append(matched, item)
	}
	truncated := len(matched) > maxResults
	if truncated {
		matched = matched[:maxResults]
	}
	return map[string]any{
		"agreements":      matched,
		"agreement_count": len(matched),
		"truncated":       truncated,
	}
}

func containsFold(item map[string]any, key, needle string) bool {
	if needle == "" {
		return true
	}
	value, _ := item[key].(string)
	return strings.Contains(strings.ToLower(value), needle)
}

var defMarketplace = toolDef("query_marketplace_agreements",
	"Query the marketplace agreement inventory. Use this to check whether "+
		"marketplace charges on an account are covered by a known agreement. "+
		"status/classification/min_cost filter exactly; name filters match substrings.",
	map[string]any{
		"type": "object",
		"properties": map[string]any{
			"account_id":     map[string]any{"type": "string", "description": "Restrict to one 12-digit AWS account."},
			"account_name":   map[string]any{"type": "string", "description": "Substring match on account name."},
			"status":         map[string]any{"type": "string", "description": "Exact agreement status, e.g. 'ACTIVE'."},
			"classification": map[string]any{"type": "string", "description": "Exact agreement classification."},
			"min_cost":       map[string]any{"type": "number", "description": "Minimum estimated cost in USD."},
			"product_name":   map[string]any{"type": "string", "description": "Substring match on product title."},
			"vendor_name":    map[string]any{"type": "string", "description": "Substring match on vendor name."},
			"max_results":    map[string]any{"type": "integer", "description": "Max agreements to return. Default: 100, max: 500."},
		},
	})
