// Package tools holds the registered capabilities of the orchestration loop
// and the adapters that back them. Every handler is total: failures come
// back as {"error": ...} payloads, never as panics or Go errors.
package tools

import (
	"context"
	"fmt"
	"log"

	"github.com/mohammad-safakhou/parsec/internal/agent"
	"github.com/mohammad-safakhou/parsec/internal/stream"
)

// Handler executes one tool call.
type Handler func(ctx context.Context, input map[string]any) map[string]any

// Tool is one registered capability: its declared contract, its handler, and
// optional protocol hooks.
type Tool struct {
	Def agent.ToolDefinition
	Run Handler

	// StatusLabel replaces the generic "Processing <name>" heartbeat label
	// for tools known to be slow.
	StatusLabel string

	// Side maps a successful result to an extra protocol event, e.g. the
	// report download locator or chart render data.
	Side func(result map[string]any) *stream.Event
}

// Registry is a name-to-capability map. Adding a tool is a map insertion;
// dispatch never needs a per-tool branch.
type Registry struct {
	order  []string
	byName map[string]Tool
	logger *log.Logger
}

func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{
		byName: make(map[string]Tool, len(tools)),
		logger: log.New(log.Writer(), "[TOOLS] ", log.LstdFlags),
	}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool under its declared name.
func (r *Registry) Register(t Tool) {
	if _, exists := r.byName[t.Def.Name]; !exists {
		r.order = append(r.order, t.Def.Name)
	}
	r.byName[t.Def.Name] = t
}

// Definitions returns the declared contracts in registration order.
func (r *Registry) Definitions() []agent.ToolDefinition {
	defs := make([]agent.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.byName[name].Def)
	}
	return defs
}

// Dispatch runs the named tool. It always returns a payload: unknown names
// and recovered panics become error payloads.
func (r *Registry) Dispatch(ctx context.Context, name string, input map[string]any) (out map[string]any) {
	t, ok := r.byName[name]
	if !ok {
		return map[string]any{"error": fmt.Sprintf("Unknown tool: %s", name)}
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Printf("tool %s panicked: %v", name, rec)
			out = map[string]any{"error": fmt.Sprintf("Tool %s failed: %v", name, rec)}
		}
	}()
	out = t.Run(ctx, input)
	if out == nil {
		out = map[string]any{"error": fmt.Sprintf("Tool %s returned no result", name)}
	}
	return out
}

func (r *Registry) StatusLabel(name string) string {
	return r.byName[name].StatusLabel
}

func (r *Registry) SideEvent(name string, result map[string]any) *stream.Event {
	t, ok := r.byName[name]
	if !ok || t.Side == nil {
		return nil
	}
	return t.Side(result)
}
