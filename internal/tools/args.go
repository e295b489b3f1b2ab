package tools

import "github.com/mohammad-safakhou/parsec/internal/agent"

func toolDef(name, description string, schema map[string]any) agent.ToolDefinition {
	return agent.ToolDefinition{Name: name, Description: description, InputSchema: schema}
}

// Input values arrive as decoded JSON, so numbers are float64 and arrays are
// []any. These helpers coerce with defaults instead of failing.

func strArg(input map[string]any, key, def string) string {
	if s, ok := input[key].(string); ok && s != "" {
		return s
	}
	return def
}

func intArg(input map[string]any, key string, def int) int {
	switch v := input[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func floatArg(input map[string]any, key string, def float64) float64 {
	switch v := input[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return def
}

func strSliceArg(input map[string]any, key string) []string {
	raw, ok := input[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
