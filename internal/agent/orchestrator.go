package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/mohammad-safakhou/parsec/internal/stream"
	"github.com/mohammad-safakhou/parsec/internal/telemetry"
)

var tracer = otel.Tracer("parsec/agent")

// roundsExhaustedNotice closes a run that hit the round ceiling. Not an
// error: the conversation is still handed back for continuation.
const roundsExhaustedNotice = "\n\n_Reached maximum tool call rounds. Please refine your question._"

// ToolRunner is the registry boundary the loop dispatches through. Dispatch
// is total: it must return a payload for every (name, input), converting
// unknown names and downstream failures into {"error": ...}.
type ToolRunner interface {
	Definitions() []ToolDefinition
	Dispatch(ctx context.Context, name string, input map[string]any) map[string]any
	// StatusLabel returns the advisory heartbeat label for a slow tool, or
	// "" when the generic one should be used.
	StatusLabel(name string) string
	// SideEvent maps a successful result to an extra protocol event (report
	// download locator, chart render data), or nil.
	SideEvent(name string, result map[string]any) *stream.Event
}

// Options configures an Orchestrator.
type Options struct {
	Model       string
	MaxTokens   int
	MaxRounds   int
	TokenBudget int
	Heartbeat   time.Duration
	System      string
	Logger      *log.Logger
	Metrics     *telemetry.Metrics
}

// Orchestrator drives the round loop: trim history, call the model, stream
// text, dispatch requested tools, append results, repeat until the model
// stops asking for tools or the round ceiling is hit.
type Orchestrator struct {
	client    ModelClient
	tools     ToolRunner
	model     string
	maxTokens int
	maxRounds int
	budget    int
	heartbeat time.Duration
	system    string
	logger    *log.Logger
	metrics   *telemetry.Metrics
}

func NewOrchestrator(client ModelClient, tools ToolRunner, opts Options) *Orchestrator {
	if opts.Model == "" {
		opts.Model = "claude-sonnet-4-20250514"
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = 10
	}
	if opts.TokenBudget <= 0 {
		opts.TokenBudget = DefaultTokenBudget
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = 10 * time.Second
	}
	if opts.System == "" {
		opts.System = SystemPrompt()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[ORCH] ", log.LstdFlags)
	}
	return &Orchestrator{
		client:    client,
		tools:     tools,
		model:     opts.Model,
		maxTokens: opts.MaxTokens,
		maxRounds: opts.MaxRounds,
		budget:    opts.TokenBudget,
		heartbeat: opts.Heartbeat,
		system:    opts.System,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
	}
}

// Run executes one orchestration over the question, seeded with the caller's
// prior conversation. Events go to emit in production order; the final
// conversation is returned for the caller to persist. The stream always
// terminates with done unless emitting itself failed or ctx was cancelled.
func (o *Orchestrator) Run(ctx context.Context, question string, prior []Message, emit stream.Emitter) ([]Message, error) {
	ctx, span := tracer.Start(ctx, "agent.run")
	defer span.End()
	span.SetAttributes(attribute.Int("history_messages", len(prior)))

	msgs := TrimHistory(prior, o.budget)
	msgs = append(append([]Message{}, msgs...), UserText(question))

	start := time.Now()
	final, err := o.loop(ctx, msgs, emit)
	if o.metrics != nil {
		o.metrics.ObserveRun("query", err == nil, time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return final, err
}

func (o *Orchestrator) loop(ctx context.Context, msgs []Message, emit stream.Emitter) ([]Message, error) {
	for round := 1; round <= o.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return msgs, err
		}
		msgs = TrimHistory(msgs, o.budget)

		resp, err := o.callModel(ctx, msgs, emit)
		if err != nil {
			// Fatal to the run: error then done, no history handoff.
			o.logger.Printf("round %d: model call failed: %v", round, err)
			if eerr := emit.Emit(stream.Error(fmt.Sprintf("Model API error: %v", err))); eerr != nil {
				return msgs, eerr
			}
			if eerr := emit.Emit(stream.Done()); eerr != nil {
				return msgs, eerr
			}
			return msgs, err
		}

		assistant := Message{Role: RoleAssistant}
		var toolUses []ContentBlock
		for _, b := range resp.Content {
			switch b.Type {
			case BlockText:
				if b.Text != "" {
					if err := emit.Emit(stream.Text(b.Text)); err != nil {
						return msgs, err
					}
				}
				assistant.Blocks = append(assistant.Blocks, ContentBlock{Type: BlockText, Text: b.Text})
			case BlockToolUse:
				blk := ContentBlock{Type: BlockToolUse, ID: b.ID, Name: b.Name, Input: b.Input}
				if blk.ID == "" {
					blk.ID = "toolu_" + uuid.NewString()
				}
				assistant.Blocks = append(assistant.Blocks, blk)
				toolUses = append(toolUses, blk)
			}
		}
		msgs = append(msgs, assistant)

		if len(toolUses) == 0 {
			return msgs, o.finish(msgs, emit)
		}

		results := Message{Role: RoleUser}
		for _, tu := range toolUses {
			if err := emit.Emit(stream.ToolStart(tu.Name, tu.Input)); err != nil {
				return msgs, err
			}
			out := o.runTool(ctx, tu.Name, tu.Input, emit)
			if err := emit.Emit(stream.ToolResult(tu.Name, out)); err != nil {
				return msgs, err
			}
			if _, failed := out["error"]; !failed {
				if ev := o.tools.SideEvent(tu.Name, out); ev != nil {
					if err := emit.Emit(*ev); err != nil {
						return msgs, err
					}
				}
			}
			content, merr := json.Marshal(out)
			if merr != nil {
				content = []byte(fmt.Sprintf(`{"error":"unserializable tool result: %v"}`, merr))
			}
			results.Blocks = append(results.Blocks, ContentBlock{
				Type:      BlockToolResult,
				ToolUseID: tu.ID,
				Content:   string(content),
			})
		}
		msgs = append(msgs, results)
	}

	if err := emit.Emit(stream.Text(roundsExhaustedNotice)); err != nil {
		return msgs, err
	}
	return msgs, o.finish(msgs, emit)
}

// finish hands the conversation back and closes the stream: history, then
// done, always in that order.
func (o *Orchestrator) finish(msgs []Message, emit stream.Emitter) error {
	if err := emit.Emit(stream.History(msgs)); err != nil {
		return err
	}
	return emit.Emit(stream.Done())
}

func (o *Orchestrator) callModel(ctx context.Context, msgs []Message, emit stream.Emitter) (*MessagesResponse, error) {
	ctx, span := tracer.Start(ctx, "agent.model_call")
	defer span.End()

	if err := emit.Emit(stream.Status("Analyzing results...")); err != nil {
		return nil, err
	}

	var resp *MessagesResponse
	var err error
	start := time.Now()
	o.withHeartbeat(ctx, emit, func(elapsed int) string {
		return fmt.Sprintf("Analyzing results... (%ds)", elapsed)
	}, func() {
		resp, err = o.client.CreateMessage(ctx, MessagesRequest{
			Model:     o.model,
			MaxTokens: o.maxTokens,
			System:    o.system,
			Tools:     o.tools.Definitions(),
			Messages:  msgs,
		})
	})
	if o.metrics != nil {
		o.metrics.ObserveModelCall(err == nil, time.Since(start))
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return resp, nil
}

func (o *Orchestrator) runTool(ctx context.Context, name string, input map[string]any, emit stream.Emitter) map[string]any {
	ctx, span := tracer.Start(ctx, "agent.tool_dispatch")
	span.SetAttributes(attribute.String("tool", name))
	defer span.End()

	label := o.tools.StatusLabel(name)
	if label == "" {
		label = "Processing " + name
	}

	var out map[string]any
	start := time.Now()
	o.withHeartbeat(ctx, emit, func(elapsed int) string {
		return fmt.Sprintf("%s... (%ds)", label, elapsed)
	}, func() {
		out = o.tools.Dispatch(ctx, name, input)
	})
	_, failed := out["error"]
	if o.metrics != nil {
		o.metrics.ObserveToolDispatch(name, !failed, time.Since(start))
	}
	if failed {
		o.logger.Printf("tool %s failed: %v", name, out["error"])
	}
	return out
}

// withHeartbeat runs op while a ticker emits advisory status events with
// cumulative elapsed seconds. The wait is coordinated, not polled: the
// select blocks on op completion, the tick, or cancellation. On cancel the
// op still gets to observe ctx and return before we do.
func (o *Orchestrator) withHeartbeat(ctx context.Context, emit stream.Emitter, label func(elapsedSeconds int) string, op func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		op()
	}()

	ticker := time.NewTicker(o.heartbeat)
	defer ticker.Stop()
	elapsed := 0
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			elapsed += int(o.heartbeat / time.Second)
			// Best effort: a lost heartbeat is not fatal; the main flow
			// notices a dead consumer on its next emit.
			_ = emit.Emit(stream.Status(label(elapsed)))
		case <-ctx.Done():
			<-done
			return
		}
	}
}
