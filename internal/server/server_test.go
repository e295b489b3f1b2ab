package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/parsec/internal/agent"
	"github.com/mohammad-safakhou/parsec/internal/stream"
)

type scriptedModel struct {
	responses []*agent.MessagesResponse
	err       error
	calls     int
}

func (m *scriptedModel) CreateMessage(ctx context.Context, req agent.MessagesRequest) (*agent.MessagesResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	i := m.calls
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	m.calls++
	return m.responses[i], nil
}

type noTools struct{}

func (noTools) Definitions() []agent.ToolDefinition { return nil }
func (noTools) Dispatch(ctx context.Context, name string, input map[string]any) map[string]any {
	return map[string]any{"error": "Unknown tool: " + name}
}
func (noTools) StatusLabel(name string) string                                 { return "" }
func (noTools) SideEvent(name string, result map[string]any) *stream.Event     { return nil }

func textModel(text string) *scriptedModel {
	return &scriptedModel{responses: []*agent.MessagesResponse{{
		Role:       agent.RoleAssistant,
		StopReason: "end_turn",
		Content:    []agent.ContentBlock{{Type: agent.BlockText, Text: text}},
	}}}
}

func newTestServer(t *testing.T, opts Options) *httptest.Server {
	t.Helper()
	if opts.Orchestrator == nil {
		opts.Orchestrator = agent.NewOrchestrator(textModel("hello"), noTools{}, agent.Options{Heartbeat: time.Hour})
	}
	if opts.Authorizer == nil {
		opts.Authorizer = NewAuthorizer([]string{"alice@example.com"}, nil, nil)
	}
	srv := httptest.NewServer(New(opts).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, Options{})
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestReadyWithoutBackends(t *testing.T) {
	srv := newTestServer(t, Options{})
	resp, err := http.Get(srv.URL + "/api/health/ready")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	json.NewDecoder(resp.Body).Decode(&body)
	if body["ready"] != true {
		t.Fatalf("body = %v", body)
	}
}

func TestQueryRequiresIdentity(t *testing.T) {
	srv := newTestServer(t, Options{})
	resp, err := http.Post(srv.URL+"/api/query", "application/json", strings.NewReader(`{"question":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestQueryForbiddenForUnlistedUser(t *testing.T) {
	srv := newTestServer(t, Options{})
	req, _ := http.NewRequest("POST", srv.URL+"/api/query", strings.NewReader(`{"question":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-Email", "mallory@example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestQueryRequiresQuestion(t *testing.T) {
	srv := newTestServer(t, Options{})
	req, _ := http.NewRequest("POST", srv.URL+"/api/query", strings.NewReader(`{"question":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-Email", "alice@example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestQueryStreamsEvents(t *testing.T) {
	srv := newTestServer(t, Options{})
	req, _ := http.NewRequest("POST", srv.URL+"/api/query", strings.NewReader(`{"question":"why is spend up"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-User", "alice@example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %s", ct)
	}

	var names []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			name := strings.TrimPrefix(line, "event: ")
			if name != stream.EventStatus {
				names = append(names, name)
			}
		}
	}
	want := []string{stream.EventText, stream.EventHistory, stream.EventDone}
	if len(names) != len(want) {
		t.Fatalf("events = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("events = %v, want %v", names, want)
		}
	}
}

func TestReportDownloadWithToken(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "r.md"), []byte("# report"), 0o644); err != nil {
		t.Fatal(err)
	}
	signer := NewReportSigner([]byte("secret"), time.Minute)
	srv := newTestServer(t, Options{Signer: signer, ReportsDir: dir})

	// no identity, no token
	resp, _ := http.Get(srv.URL + "/api/reports/r.md")
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("anonymous status = %d", resp.StatusCode)
	}

	token, _ := signer.Sign("r.md")
	resp, err := http.Get(srv.URL + "/api/reports/r.md?token=" + token)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token status = %d", resp.StatusCode)
	}

	// token scoped to another file
	other, _ := signer.Sign("other.md")
	resp, _ = http.Get(srv.URL + "/api/reports/r.md?token=" + other)
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("cross-file token status = %d", resp.StatusCode)
	}
}

func TestReportDownloadWithIdentity(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "r.md"), []byte("# report"), 0o644)
	srv := newTestServer(t, Options{ReportsDir: dir})

	req, _ := http.NewRequest("GET", srv.URL+"/api/reports/r.md", nil)
	req.Header.Set("X-Forwarded-Email", "alice@example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	req, _ = http.NewRequest("GET", srv.URL+"/api/reports/missing.md", nil)
	req.Header.Set("X-Forwarded-Email", "alice@example.com")
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing file status = %d", resp.StatusCode)
	}
}

func TestAlertEndpointAuth(t *testing.T) {
	inv := agent.NewInvestigator(textModel("nothing suspicious"), noTools{}, agent.Options{Heartbeat: time.Hour})

	// unconfigured key
	srv := newTestServer(t, Options{Investigator: inv})
	resp, _ := http.Post(srv.URL+"/api/alert/investigate", "application/json", strings.NewReader(`{"alert_name":"x"}`))
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unconfigured status = %d", resp.StatusCode)
	}

	srv = newTestServer(t, Options{Investigator: inv, AlertAPIKey: "k1"})
	req, _ := http.NewRequest("POST", srv.URL+"/api/alert/investigate", strings.NewReader(`{"alert_name":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "wrong")
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong key status = %d", resp.StatusCode)
	}
}

func TestAlertEndpointReturnsVerdict(t *testing.T) {
	// Model never calls submit_verdict, so the investigation falls back to
	// the alert-as-precaution default.
	inv := agent.NewInvestigator(textModel("looks fine"), noTools{}, agent.Options{Heartbeat: time.Hour})
	srv := newTestServer(t, Options{Investigator: inv, AlertAPIKey: "k1"})

	req, _ := http.NewRequest("POST", srv.URL+"/api/alert/investigate",
		strings.NewReader(`{"alert_name":"gpu-spike","description":"p4d fleet in 111111111111"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "k1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var result agent.InvestigationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if !result.ShouldAlert || result.Severity != "medium" {
		t.Fatalf("verdict = %+v", result.Verdict)
	}
	if result.DurationSeconds < 0 {
		t.Fatalf("duration = %v", result.DurationSeconds)
	}
}

func TestAlertEndpointRequiresName(t *testing.T) {
	inv := agent.NewInvestigator(textModel("x"), noTools{}, agent.Options{Heartbeat: time.Hour})
	srv := newTestServer(t, Options{Investigator: inv, AlertAPIKey: "k1"})
	req, _ := http.NewRequest("POST", srv.URL+"/api/alert/investigate", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", "k1")
	resp, _ := http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
