package agent

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestInvestigator(model ModelClient, tools ToolRunner, maxRounds int) *Investigator {
	return NewInvestigator(model, tools, Options{
		MaxRounds: maxRounds,
		Heartbeat: time.Hour,
	})
}

func TestInvestigateRecordsVerdict(t *testing.T) {
	model := &fakeModel{responses: []*MessagesResponse{
		toolResponse("toolu_1", VerdictToolName, map[string]any{
			"should_alert": false,
			"severity":     "low",
			"summary":      "workshop traffic, costs match provision count",
		}),
		textResponse("benign"),
	}}
	inv := newTestInvestigator(model, &fakeTools{}, 5)

	res := inv.Investigate(context.Background(), Alert{Name: "aws-cost-spike", Description: "daily spend doubled"})
	if res.ShouldAlert {
		t.Error("recorded verdict ignored")
	}
	if res.Severity != "low" {
		t.Errorf("severity = %q", res.Severity)
	}
	if res.Summary == "" {
		t.Error("summary lost")
	}
	if res.DurationSeconds < 0 {
		t.Errorf("duration = %f", res.DurationSeconds)
	}
	if len(res.InvestigationLog) == 0 {
		t.Error("empty investigation log")
	}
}

func TestInvestigateRoundExhaustionDefaultsToSuspicious(t *testing.T) {
	model := &fakeModel{responses: []*MessagesResponse{
		toolResponse("toolu_1", "query_provisions_db", map[string]any{"sql": "SELECT 1"}),
	}}
	inv := newTestInvestigator(model, &fakeTools{}, 2)

	res := inv.Investigate(context.Background(), Alert{Name: "gpu-burst"})
	if !res.ShouldAlert {
		t.Fatal("round exhaustion without verdict must alert")
	}
	if res.Severity != "medium" {
		t.Errorf("default severity = %q", res.Severity)
	}
	if model.calls != 2 {
		t.Errorf("model calls = %d, want 2", model.calls)
	}
}

func TestInvestigateModelFailureDefaultsToSuspicious(t *testing.T) {
	model := &fakeModel{err: errors.New("rate limited")}
	inv := newTestInvestigator(model, &fakeTools{}, 5)

	res := inv.Investigate(context.Background(), Alert{Name: "azure-meter-anomaly"})
	if !res.ShouldAlert {
		t.Fatal("model failure without verdict must alert")
	}
}

func TestInvestigateBlocksReportAndChartTools(t *testing.T) {
	model := &fakeModel{responses: []*MessagesResponse{
		toolResponse("toolu_1", "generate_report", map[string]any{"title": "x", "content": "y"}),
		toolResponse("toolu_2", VerdictToolName, map[string]any{"should_alert": true, "severity": "high", "summary": "s"}),
		textResponse("done"),
	}}
	base := &fakeTools{}
	inv := newTestInvestigator(model, base, 5)

	inv.Investigate(context.Background(), Alert{Name: "report-attempt"})
	for _, name := range base.dispatched {
		if name == "generate_report" || name == "render_chart" {
			t.Fatalf("blocked tool %s reached the base registry", name)
		}
	}
}

func TestVerdictRunnerDefinitions(t *testing.T) {
	r := &verdictRunner{base: &fakeTools{}, blocked: map[string]struct{}{"render_chart": {}, "generate_report": {}}}
	defs := r.Definitions()
	names := map[string]bool{}
	for _, d := range defs {
		names[d.Name] = true
	}
	if names["render_chart"] || names["generate_report"] {
		t.Fatalf("blocked tools still declared: %v", names)
	}
	if !names[VerdictToolName] {
		t.Fatal("submit_verdict not declared")
	}
	if !names["query_provisions_db"] {
		t.Fatal("base tool lost from declaration")
	}
}

func TestVerdictRunnerBlockedDispatch(t *testing.T) {
	base := &fakeTools{}
	r := &verdictRunner{base: base, blocked: map[string]struct{}{"generate_report": {}}}
	out := r.Dispatch(context.Background(), "generate_report", nil)
	if out["error"] != "Unknown tool: generate_report" {
		t.Fatalf("blocked dispatch payload = %v", out)
	}
	if len(base.dispatched) != 0 {
		t.Fatal("blocked dispatch leaked to base registry")
	}
}
