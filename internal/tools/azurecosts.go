package tools

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// AzureCosts backs query_azure_costs: aggregates the monthly billing export
// CSVs Azure drops into a shared directory. There is no cost API to call;
// the exports are the source of truth.
type AzureCosts struct {
	dir    string
	logger *log.Logger
}

func NewAzureCosts(billingDir string) *AzureCosts {
	return &AzureCosts{
		dir:    billingDir,
		logger: log.New(log.Writer(), "[AZURE] ", log.LstdFlags),
	}
}

func (a *AzureCosts) Tool() Tool {
	return Tool{Def: defAzureCosts, Run: a.run}
}

type azureSub struct {
	name     string
	total    float64
	gpuCost  float64
	services map[string]*azureService
}

type azureService struct {
	cost          float64
	subcategories map[string]float64
}

func (a *AzureCosts) run(ctx context.Context, input map[string]any) map[string]any {
	startDate := strArg(input, "start_date", "")
	endDate := strArg(input, "end_date", "")
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Invalid start_date: %v", err)}
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Invalid end_date: %v", err)}
	}

	subs := strSliceArg(input, "subscription_names")
	meterFilter := strings.ToUpper(strArg(input, "meter_filter", ""))
	if len(subs) == 0 && meterFilter == "" {
		return map[string]any{"error": "meter_filter is required when querying all subscriptions. " +
			"Provide subscription_names or a meter_filter to bound the scan."}
	}
	subSet := map[string]struct{}{}
	for _, s := range subs {
		subSet[s] = struct{}{}
	}

	files, err := filepath.Glob(filepath.Join(a.dir, "*.csv"))
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("Billing export scan failed: %v", err)}
	}
	sort.Strings(files)

	bySub := map[string]*azureSub{}
	processed := 0
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return map[string]any{"error": fmt.Sprintf("Azure cost scan aborted: %v", err)}
		}
		if err := a.scanFile(file, subSet, start, end, meterFilter, bySub); err != nil {
			a.logger.Printf("skipping %s: %v", filepath.Base(file), err)
			continue
		}
		processed++
	}

	names := make([]string, 0, len(bySub))
	for name := range bySub {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0.0
	results := make([]map[string]any, 0, len(names))
	for _, name := range names {
		sub := bySub[name]
		total += sub.total
		services := map[string]any{}
		for svcName, svc := range sub.services {
			subcats := map[string]any{}
			for cat, cost := range svc.subcategories {
				subcats[cat] = round2(cost)
			}
			services[svcName] = map[string]any{
				"cost":                round2(svc.cost),
				"meter_subcategories": subcats,
			}
		}
		results = append(results, map[string]any{
			"subscription": sub.name,
			"total":        round2(sub.total),
			"gpu_cost":     round2(sub.gpuCost),
			"services":     services,
		})
	}

	out := map[string]any{
		"period":          map[string]any{"start": startDate, "end": endDate},
		"results":         results,
		"total_cost":      round2(total),
		"files_processed": processed,
	}
	if meterFilter != "" {
		out["meter_filter"] = strArg(input, "meter_filter", "")
	}
	return out
}

func (a *AzureCosts) scanFile(path string, subSet map[string]struct{}, start, end time.Time, meterFilter string, bySub map[string]*azureSub) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		return err
	}
	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	field := func(record []string, names ...string) string {
		for _, n := range names {
			if i, ok := col[n]; ok && i < len(record) {
				return record[i]
			}
		}
		return ""
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		subName := field(record, "subscriptionname")
		if subName == "" {
			continue
		}
		if len(subSet) > 0 {
			if _, ok := subSet[subName]; !ok {
				continue
			}
		}
		category := field(record, "metercategory")
		subcategory := field(record, "metersubcategory")
		if meterFilter != "" &&
			!strings.Contains(strings.ToUpper(category), meterFilter) &&
			!strings.Contains(strings.ToUpper(subcategory), meterFilter) {
			continue
		}
		rowDate, ok := parseBillingDate(field(record, "date", "usagedatetime"))
		if !ok || rowDate.Before(start) || rowDate.After(end) {
			continue
		}
		cost, err := strconv.ParseFloat(field(record, "costinbillingcurrency", "cost"), 64)
		if err != nil {
			cost = 0
		}

		entry := bySub[subName]
		if entry == nil {
			entry = &azureSub{name: subName, services: map[string]*azureService{}}
			bySub[subName] = entry
		}
		entry.total += cost
		svc := entry.services[category]
		if svc == nil {
			svc = &azureService{subcategories: map[string]float64{}}
			entry.services[category] = svc
		}
		svc.cost += cost
		if subcategory != "" {
			svc.subcategories[subcategory] += cost
		}
		if isGPUMeter(subcategory) {
			entry.gpuCost += cost
		}
	}
}

func parseBillingDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if i := strings.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	for _, layout := range []string{"01/02/2006", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// isGPUMeter reports whether the meter subcategory is one of the GPU VM
// series (NC, ND, NV).
func isGPUMeter(subcategory string) bool {
	upper := strings.ToUpper(subcategory)
	for _, series := range []string{"NC", "ND", "NV"} {
		if strings.Contains(upper, series) {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var defAzureCosts = toolDef("query_azure_costs",
	"Query Azure billing export CSVs for subscription costs. "+
		"Filter by subscription names (sandbox_name from the provision DB) or by a meter filter "+
		"matched against MeterCategory and MeterSubCategory. Returns per-subscription totals, "+
		"per-service breakdowns, and GPU VM spend.",
	map[string]any{
		"type": "object",
		"properties": map[string]any{
			"start_date": map[string]any{"type": "string", "description": "Start date in YYYY-MM-DD format."},
			"end_date":   map[string]any{"type": "string", "description": "End date in YYYY-MM-DD format."},
			"subscription_names": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Azure subscription names to include, e.g. 'pool-01-374'. Empty means all (meter_filter required).",
			},
			"meter_filter": map[string]any{
				"type":        "string",
				"description": "Case-insensitive match against MeterCategory/MeterSubCategory, e.g. 'virtual machines'.",
			},
		},
		"required": []string{"start_date", "end_date"},
	})
