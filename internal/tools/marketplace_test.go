package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func marketplaceServer(t *testing.T, agreements []map[string]any, onQuery func(r *http.Request)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/agreements" {
			http.NotFound(w, r)
			return
		}
		if onQuery != nil {
			onQuery(r)
		}
		json.NewEncoder(w).Encode(map[string]any{"agreements": agreements})
	}))
}

func TestMarketplaceForwardsExactFilters(t *testing.T) {
	var seen map[string]string
	srv := marketplaceServer(t, nil, func(r *http.Request) {
		q := r.URL.Query()
		seen = map[string]string{
			"account_id": q.Get("account_id"),
			"status":     q.Get("status"),
			"min_cost":   q.Get("min_cost"),
		}
	})
	defer srv.Close()

	m := NewMarketplace(srv.URL)
	m.run(context.Background(), map[string]any{
		"account_id": "123456789012",
		"status":     "ACTIVE",
		"min_cost":   1000.0,
	})
	if seen["account_id"] != "123456789012" || seen["status"] != "ACTIVE" || seen["min_cost"] != "1000" {
		t.Fatalf("server-side params = %v", seen)
	}
}

func TestMarketplaceClientSideNameFilters(t *testing.T) {
	agreements := []map[string]any{
		{"product_name": "Databricks Lakehouse", "vendor_name": "Databricks Inc", "account_name": "sandbox-001"},
		{"product_name": "Snowflake", "vendor_name": "Snowflake Computing", "account_name": "sandbox-002"},
		{"product_name": "databricks serverless", "vendor_name": "Databricks Inc", "account_name": "prod-001"},
	}
	srv := marketplaceServer(t, agreements, nil)
	defer srv.Close()

	m := NewMarketplace(srv.URL)
	out := m.run(context.Background(), map[string]any{"product_name": "DATABRICKS"})
	if out["agreement_count"] != 2 {
		t.Fatalf("agreement_count = %v", out["agreement_count"])
	}

	out = m.run(context.Background(), map[string]any{"product_name": "databricks", "account_name": "sandbox"})
	if out["agreement_count"] != 1 {
		t.Fatalf("combined filter count = %v", out["agreement_count"])
	}
	matched := out["agreements"].([]map[string]any)
	if matched[0]["account_name"] != "sandbox-001" {
		t.Fatalf("matched = %v", matched)
	}
}

func TestMarketplaceCapsResults(t *testing.T) {
	agreements := make([]map[string]any, 5)
	for i := range agreements {
		agreements[i] = map[string]any{"product_name": "p"}
	}
	srv := marketplaceServer(t, agreements, nil)
	defer srv.Close()

	m := NewMarketplace(srv.URL)
	out := m.run(context.Background(), map[string]any{"max_results": 3.0})
	if out["agreement_count"] != 3 || out["truncated"] != true {
		t.Fatalf("out = %v", out)
	}
}

func TestMarketplaceGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	m := NewMarketplace(srv.URL)
	out := m.run(context.Background(), map[string]any{})
	if _, ok := out["error"]; !ok {
		t.Fatalf("expected error payload, got %v", out)
	}
}
