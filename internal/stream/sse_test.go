package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSSEFrameFormat(t *testing.T) {
	rec := httptest.NewRecorder()
	sse, err := NewSSE(rec)
	if err != nil {
		t.Fatalf("NewSSE: %v", err)
	}

	if err := sse.Emit(Text("hello")); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if err := sse.Emit(Done()); err != nil {
		t.Fatalf("Emit: %v", err)
	}

	body := rec.Body.String()
	want := "event: text\ndata: {\"content\":\"hello\"}\n\nevent: done\ndata: {}\n\n"
	if body != want {
		t.Fatalf("unexpected stream body:\n%q\nwant:\n%q", body, want)
	}
}

func TestSSEHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	if _, err := NewSSE(rec); err != nil {
		t.Fatalf("NewSSE: %v", err)
	}
	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("Cache-Control = %q", got)
	}
}

func TestEventHelpers(t *testing.T) {
	ev := ToolStart("query_provisions_db", nil)
	data, ok := ev.Data.(map[string]any)
	if !ok {
		t.Fatalf("tool_start data is %T", ev.Data)
	}
	if data["tool"] != "query_provisions_db" {
		t.Errorf("tool = %v", data["tool"])
	}
	if _, ok := data["input"].(map[string]any); !ok {
		t.Errorf("nil input not normalized to empty object: %v", data["input"])
	}

	if ev := Error("boom"); ev.Name != EventError {
		t.Errorf("Error event name = %q", ev.Name)
	}
}

func TestBufferCollectsInOrder(t *testing.T) {
	var buf Buffer
	for _, ev := range []Event{Text("a"), Status("working"), Done()} {
		if err := buf.Emit(ev); err != nil {
			t.Fatalf("Emit: %v", err)
		}
	}
	got := buf.Events()
	if len(got) != 3 {
		t.Fatalf("got %d events, want 3", len(got))
	}
	names := []string{got[0].Name, got[1].Name, got[2].Name}
	if strings.Join(names, ",") != "text,status,done" {
		t.Fatalf("unexpected order: %v", names)
	}
}
