package tools

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Pricing API locations are human-readable names, not region codes.
var regionLocations = map[string]string{
	"us-east-1":      "US East (N. Virginia)",
	"us-east-2":      "US East (Ohio)",
	"us-west-1":      "US West (N. California)",
	"us-west-2":      "US West (Oregon)",
	"eu-west-1":      "EU (Ireland)",
	"eu-west-2":      "EU (London)",
	"eu-central-1":   "EU (Frankfurt)",
	"ap-southeast-1": "Asia Pacific (Singapore)",
	"ap-southeast-2": "Asia Pacific (Sydney)",
	"ap-northeast-1": "Asia Pacific (Tokyo)",
	"ap-south-1":     "Asia Pacific (Mumbai)",
	"ca-central-1":   "Canada (Central)",
	"sa-east-1":      "South America (Sao Paulo)",
}

// AWSPricing backs query_aws_pricing via the pricing lookup service.
type AWSPricing struct {
	gw *gateway
}

func NewAWSPricing(baseURL string) *AWSPricing {
	return &AWSPricing{gw: newGateway(baseURL, 30*time.Second)}
}

func (p *AWSPricing) Tool() Tool {
	return Tool{Def: defAWSPricing, Run: p.run}
}

type pricingResponse struct {
	HourlyPriceUSD *float64 `json:"hourly_price_usd"`
}

func (p *AWSPricing) run(ctx context.Context, input map[string]any) map[string]any {
	instanceType := strArg(input, "instance_type", "")
	if instanceType == "" {
		return map[string]any{"error": "instance_type is required"}
	}
	region := strArg(input, "region", "us-east-1")
	osType := strArg(input, "os_type", "Linux")

	location, ok := regionLocations[region]
	if !ok {
		location = region
	}

	query := url.Values{
		"instance_type": []string{instanceType},
		"location":      []string{location},
		"os":            []string{osType},
	}
	var resp pricingResponse
	if err := p.gw.getJSON(ctx, "/v1/aws/pricing", query, &resp); err != nil {
		return map[string]any{"error": fmt.Sprintf("AWS Pricing API query failed: %v", err)}
	}
	if resp.HourlyPriceUSD == nil {
		return map[string]any{
			"instance_type": instanceType,
			"region":        region,
			"error":         fmt.Sprintf("No on-demand pricing found for %s in %s", instanceType, location),
		}
	}

	hourly := *resp.HourlyPriceUSD
	return map[string]any{
		"instance_type":     instanceType,
		"region":            region,
		"location":          location,
		"os_type":           osType,
		"hourly_price_usd":  hourly,
		"daily_price_usd":   round2(hourly * 24),
		"monthly_price_usd": round2(hourly * 730),
	}
}

var defAWSPricing = toolDef("query_aws_pricing",
	"Look up on-demand pricing for an EC2 instance type. "+
		"Use this to estimate what sustained usage of an instance should cost.",
	map[string]any{
		"type": "object",
		"properties": map[string]any{
			"instance_type": map[string]any{"type": "string", "description": "EC2 instance type, e.g. 'p4d.24xlarge'."},
			"region":        map[string]any{"type": "string", "description": "AWS region code. Default: us-east-1."},
			"os_type":       map[string]any{"type": "string", "description": "Operating system. Default: Linux."},
		},
		"required": []string{"instance_type"},
	})
