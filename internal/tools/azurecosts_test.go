package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const azureExportHeader = "SubscriptionName,MeterCategory,MeterSubCategory,Date,CostInBillingCurrency\n"

func writeExport(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(azureExportHeader+body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestAzureCostsAggregatesBySubscription(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "export-2026-08.csv",
		"pool-01-374,Virtual Machines,NCasT4v3 Series,08/01/2026,10.504\n"+
			"pool-01-374,Virtual Machines,Dv3 Series,08/02/2026,5.25\n"+
			"pool-01-374,Storage,Blob,08/02/2026,1.00\n"+
			"pool-02-111,Virtual Machines,NDv2 Series,08/01/2026,100.00\n")

	a := NewAzureCosts(dir)
	out := a.run(context.Background(), map[string]any{
		"start_date":         "2026-08-01",
		"end_date":           "2026-08-31",
		"subscription_names": []any{"pool-01-374"},
	})
	if errMsg, ok := out["error"]; ok {
		t.Fatalf("unexpected error: %v", errMsg)
	}
	results := out["results"].([]map[string]any)
	if len(results) != 1 {
		t.Fatalf("results = %v", results)
	}
	sub := results[0]
	if sub["subscription"] != "pool-01-374" {
		t.Errorf("subscription = %v", sub["subscription"])
	}
	if sub["total"] != 16.75 {
		t.Errorf("total = %v", sub["total"])
	}
	if sub["gpu_cost"] != 10.5 {
		t.Errorf("gpu_cost = %v", sub["gpu_cost"])
	}
	services := sub["services"].(map[string]any)
	vm := services["Virtual Machines"].(map[string]any)
	if vm["cost"] != 15.75 {
		t.Errorf("vm cost = %v", vm["cost"])
	}
	if out["total_cost"] != 16.75 {
		t.Errorf("total_cost = %v", out["total_cost"])
	}
	if out["files_processed"] != 1 {
		t.Errorf("files_processed = %v", out["files_processed"])
	}
}

func TestAzureCostsMeterFilterAcrossAllSubscriptions(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "export.csv",
		"pool-01-374,Virtual Machines,NVadsA10 v5 Series,2026-08-10,20.00\n"+
			"pool-02-111,Storage,Blob,2026-08-10,99.00\n")

	a := NewAzureCosts(dir)
	out := a.run(context.Background(), map[string]any{
		"start_date":   "2026-08-01",
		"end_date":     "2026-08-31",
		"meter_filter": "virtual machines",
	})
	if errMsg, ok := out["error"]; ok {
		t.Fatalf("unexpected error: %v", errMsg)
	}
	if out["total_cost"] != 20.0 {
		t.Errorf("total_cost = %v", out["total_cost"])
	}
	if out["meter_filter"] != "virtual machines" {
		t.Errorf("meter_filter echo = %v", out["meter_filter"])
	}
}

func TestAzureCostsRequiresScopeBound(t *testing.T) {
	a := NewAzureCosts(t.TempDir())
	out := a.run(context.Background(), map[string]any{
		"start_date": "2026-08-01",
		"end_date":   "2026-08-31",
	})
	msg, _ := out["error"].(string)
	if !strings.Contains(msg, "meter_filter is required") {
		t.Fatalf("error = %q", msg)
	}
}

func TestAzureCostsDateWindow(t *testing.T) {
	dir := t.TempDir()
	writeExport(t, dir, "export.csv",
		"pool-01-374,Virtual Machines,Dv3 Series,07/31/2026,100.00\n"+
			"pool-01-374,Virtual Machines,Dv3 Series,08/01/2026,1.00\n"+
			"pool-01-374,Virtual Machines,Dv3 Series,09/01/2026,100.00\n")

	a := NewAzureCosts(dir)
	out := a.run(context.Background(), map[string]any{
		"start_date":         "2026-08-01",
		"end_date":           "2026-08-31",
		"subscription_names": []any{"pool-01-374"},
	})
	if out["total_cost"] != 1.0 {
		t.Fatalf("total_cost = %v", out["total_cost"])
	}
}

func TestAzureCostsInvalidDates(t *testing.T) {
	a := NewAzureCosts(t.TempDir())
	out := a.run(context.Background(), map[string]any{
		"start_date": "08/01/2026",
		"end_date":   "2026-08-31",
	})
	if _, ok := out["error"]; !ok {
		t.Fatalf("expected error, got %v", out)
	}
}

func TestParseBillingDate(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"08/15/2026", "2026-08-15", true},
		{"2026-08-15", "2026-08-15", true},
		{"08/15/2026 00:00:00", "2026-08-15", true},
		{"", "", false},
		{"yesterday", "", false},
	}
	for _, tc := range cases {
		got, ok := parseBillingDate(tc.in)
		if ok != tc.ok {
			t.Errorf("parseBillingDate(%q) ok = %v", tc.in, ok)
			continue
		}
		if ok && got.Format(time.DateOnly) != tc.want {
			t.Errorf("parseBillingDate(%q) = %s", tc.in, got.Format(time.DateOnly))
		}
	}
}

func TestIsGPUMeter(t *testing.T) {
	for _, sub := range []string{"NCasT4v3 Series", "NDv2 Series", "NVadsA10 v5 Series", "ncast4"} {
		if !isGPUMeter(sub) {
			t.Errorf("isGPUMeter(%q) = false", sub)
		}
	}
	for _, sub := range []string{"Dv3 Series", "", "Blob"} {
		if isGPUMeter(sub) {
			t.Errorf("isGPUMeter(%q) = true", sub)
		}
	}
}
