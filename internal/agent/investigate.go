package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/parsec/internal/stream"
	"github.com/mohammad-safakhou/parsec/internal/telemetry"
)

// VerdictToolName is the forced terminal action of an investigation run.
const VerdictToolName = "submit_verdict"

// Alert is the inbound description of a cost anomaly to investigate.
type Alert struct {
	Name        string         `json:"alert_name"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
}

// Verdict is the terminal decision of an investigation.
type Verdict struct {
	ShouldAlert bool   `json:"should_alert"`
	Severity    string `json:"severity"`
	Summary     string `json:"summary"`
}

// DefaultVerdict is the safe fallback when an investigation ends without a
// submitted verdict: treat as suspicious rather than stay silent.
func DefaultVerdict() Verdict {
	return Verdict{
		ShouldAlert: true,
		Severity:    "medium",
		Summary:     "Investigation could not reach a verdict; alerting as a precaution.",
	}
}

// InvestigationResult is what the alerting system receives back.
type InvestigationResult struct {
	Verdict
	InvestigationLog []string `json:"investigation_log"`
	DurationSeconds  float64  `json:"duration_seconds"`
}

// Investigator runs the orchestration loop in its unattended configuration:
// no report or chart tools, a smaller round ceiling, and a mandatory
// submit_verdict call before clean termination.
type Investigator struct {
	client  ModelClient
	tools   ToolRunner
	opts    Options
	logger  *log.Logger
	metrics *telemetry.Metrics
}

func NewInvestigator(client ModelClient, tools ToolRunner, opts Options) *Investigator {
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 5
	}
	if opts.System == "" {
		opts.System = InvestigationPrompt()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[ALERT] ", log.LstdFlags)
	}
	return &Investigator{client: client, tools: tools, opts: opts, logger: opts.Logger, metrics: opts.Metrics}
}

// Investigate runs one bounded investigation. It never fails upward: every
// outcome, including model faults and round exhaustion without a verdict,
// resolves to a result, falling back to DefaultVerdict on uncertainty.
func (v *Investigator) Investigate(ctx context.Context, alert Alert) InvestigationResult {
	ctx, span := tracer.Start(ctx, "agent.investigate")
	defer span.End()

	runner := &verdictRunner{
		base:    v.tools,
		blocked: map[string]struct{}{"render_chart": {}, "generate_report": {}},
	}
	opts := v.opts
	opts.Logger = v.logger
	orch := NewOrchestrator(v.client, runner, opts)

	var buf stream.Buffer
	start := time.Now()
	_, err := orch.loopWithContext(ctx, investigationQuestion(alert), &buf)
	elapsed := time.Since(start)
	if v.metrics != nil {
		v.metrics.ObserveRun("investigate", err == nil && runner.recorded() != nil, elapsed)
	}

	verdict := DefaultVerdict()
	if rec := runner.recorded(); rec != nil {
		verdict = *rec
	} else if err != nil {
		v.logger.Printf("investigation of %q failed without verdict: %v", alert.Name, err)
	} else {
		v.logger.Printf("investigation of %q ended without verdict, using default", alert.Name)
	}

	return InvestigationResult{
		Verdict:          verdict,
		InvestigationLog: investigationLog(buf.Events()),
		DurationSeconds:  elapsed.Seconds(),
	}
}

// loopWithContext seeds a fresh conversation with the question and runs the
// shared loop. Split out so the investigator can reuse the exact state
// machine of the interactive path.
func (o *Orchestrator) loopWithContext(ctx context.Context, question string, emit stream.Emitter) ([]Message, error) {
	return o.loop(ctx, []Message{UserText(question)}, emit)
}

func investigationQuestion(alert Alert) string {
	var sb strings.Builder
	sb.WriteString("Investigate this cost alert and decide whether it should page a human.\n\n")
	fmt.Fprintf(&sb, "Alert: %s\n", alert.Name)
	if alert.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", alert.Description)
	}
	if len(alert.Metadata) > 0 {
		if meta, err := json.Marshal(alert.Metadata); err == nil {
			fmt.Fprintf(&sb, "Metadata: %s\n", meta)
		}
	}
	return sb.String()
}

func investigationLog(events []stream.Event) []string {
	var entries []string
	for _, ev := range events {
		data, _ := ev.Data.(map[string]any)
		switch ev.Name {
		case stream.EventText:
			if s, _ := data["content"].(string); strings.TrimSpace(s) != "" {
				entries = append(entries, strings.TrimSpace(s))
			}
		case stream.EventToolStart:
			if name, _ := data["tool"].(string); name != "" {
				entries = append(entries, "tool: "+name)
			}
		case stream.EventError:
			if msg, _ := data["message"].(string); msg != "" {
				entries = append(entries, "error: "+msg)
			}
		}
	}
	return entries
}

// verdictRunner restricts the registry for unattended runs: report and chart
// tools disappear from the declared contract, and submit_verdict is added,
// its handler recording the verdict for the caller.
type verdictRunner struct {
	base    ToolRunner
	blocked map[string]struct{}

	mu      sync.Mutex
	verdict *Verdict
}

func (r *verdictRunner) recorded() *Verdict {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.verdict
}

func (r *verdictRunner) Definitions() []ToolDefinition {
	base := r.base.Definitions()
	defs := make([]ToolDefinition, 0, len(base)+1)
	for _, d := range base {
		if _, off := r.blocked[d.Name]; off {
			continue
		}
		defs = append(defs, d)
	}
	defs = append(defs, ToolDefinition{
		Name:        VerdictToolName,
		Description: "Submit the final verdict of this investigation. Must be called exactly once before answering.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"should_alert": map[string]any{
					"type":        "boolean",
					"description": "Whether a human should be paged about this alert.",
				},
				"severity": map[string]any{
					"type":        "string",
					"enum":        []string{"low", "medium", "high", "critical"},
					"description": "How urgent the finding is.",
				},
				"summary": map[string]any{
					"type":        "string",
					"description": "One-paragraph justification of the verdict.",
				},
			},
			"required": []string{"should_alert", "severity", "summary"},
		},
	})
	return defs
}

func (r *verdictRunner) Dispatch(ctx context.Context, name string, input map[string]any) map[string]any {
	if name == VerdictToolName {
		v := Verdict{ShouldAlert: true, Severity: "medium"}
		if b, ok := input["should_alert"].(bool); ok {
			v.ShouldAlert = b
		}
		if s, ok := input["severity"].(string); ok && s != "" {
			v.Severity = s
		}
		if s, ok := input["summary"].(string); ok {
			v.Summary = s
		}
		r.mu.Lock()
		r.verdict = &v
		r.mu.Unlock()
		return map[string]any{"recorded": true}
	}
	if _, off := r.blocked[name]; off {
		return map[string]any{"error": "Unknown tool: " + name}
	}
	return r.base.Dispatch(ctx, name, input)
}

func (r *verdictRunner) StatusLabel(name string) string {
	if _, off := r.blocked[name]; off || name == VerdictToolName {
		return ""
	}
	return r.base.StatusLabel(name)
}

func (r *verdictRunner) SideEvent(name string, result map[string]any) *stream.Event {
	// Side channels are disabled in unattended runs.
	return nil
}
