package tools

import (
	"context"

	"github.com/mohammad-safakhou/parsec/internal/stream"
)

// ChartTool backs render_chart. Charts render client-side, so the handler is
// a pure echo; the chart event carries the render data to the frontend.
func ChartTool() Tool {
	return Tool{
		Def: defRenderChart,
		Run: func(ctx context.Context, input map[string]any) map[string]any {
			if input == nil {
				input = map[string]any{}
			}
			return input
		},
		Side: func(result map[string]any) *stream.Event {
			ev := stream.Chart(result)
			return &ev
		},
	}
}

var defRenderChart = toolDef("render_chart",
	"Render a chart in the client UI. Pass the chart type, labels, and series; "+
		"the frontend draws it. Use after gathering data, not instead of it.",
	map[string]any{
		"type": "object",
		"properties": map[string]any{
			"chart_type": map[string]any{
				"type":        "string",
				"enum":        []string{"bar", "line", "pie"},
				"description": "Kind of chart to draw.",
			},
			"title":  map[string]any{"type": "string", "description": "Chart title."},
			"labels": map[string]any{"type": "array", "items": map[string]any{"type": "string"}, "description": "X-axis labels or slice names."},
			"series": map[string]any{
				"type":        "array",
				"description": "Data series: objects with a name and a numeric values array.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name":   map[string]any{"type": "string"},
						"values": map[string]any{"type": "array", "items": map[string]any{"type": "number"}},
					},
				},
			},
		},
		"required": []string{"chart_type", "labels", "series"},
	})
