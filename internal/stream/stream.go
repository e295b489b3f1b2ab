// Package stream defines the outbound event protocol of an orchestration
// run: a strictly ordered sequence of named events, terminated by exactly
// one "done" event.
package stream

// Event names on the wire.
const (
	EventText       = "text"
	EventToolStart  = "tool_start"
	EventStatus     = "status"
	EventToolResult = "tool_result"
	EventReport     = "report"
	EventChart      = "chart"
	EventError      = "error"
	EventHistory    = "history"
	EventDone       = "done"
)

// Event is one unit of the protocol. Data must marshal to JSON. Events are
// never mutated after emission.
type Event struct {
	Name string
	Data any
}

// Emitter delivers events in production order. Emit returns an error when
// the consumer is gone; the producer should abort the run on that signal.
type Emitter interface {
	Emit(ev Event) error
}

func Text(content string) Event {
	return Event{Name: EventText, Data: map[string]any{"content": content}}
}

func ToolStart(name string, input map[string]any) Event {
	if input == nil {
		input = map[string]any{}
	}
	return Event{Name: EventToolStart, Data: map[string]any{"tool": name, "input": input}}
}

func Status(content string) Event {
	return Event{Name: EventStatus, Data: map[string]any{"content": content}}
}

func ToolResult(name string, result map[string]any) Event {
	return Event{Name: EventToolResult, Data: map[string]any{"tool": name, "result": result}}
}

func Report(filename, format, url string) Event {
	return Event{Name: EventReport, Data: map[string]any{"filename": filename, "format": format, "url": url}}
}

func Chart(data map[string]any) Event {
	return Event{Name: EventChart, Data: data}
}

func Error(message string) Event {
	return Event{Name: EventError, Data: map[string]any{"message": message}}
}

// History carries the full serialized conversation back to the caller for
// multi-turn continuation. Emitted at most once per run, always immediately
// before done.
func History(messages any) Event {
	return Event{Name: EventHistory, Data: map[string]any{"messages": messages}}
}

func Done() Event {
	return Event{Name: EventDone, Data: map[string]any{}}
}
