package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/firstlinehq/go-dispatch/pkg/agent"
	"github.com/firstlinehq/go-dispatch/pkg/extract"
	"github.com/firstlinehq/go-dispatch/pkg/hub"
	"github.com/firstlinehq/go-dispatch/pkg/protocol"
	"github.com/firstlinehq/go-dispatch/pkg/session"
	"github.com/firstlinehq/go-dispatch/pkg/stt"
	"github.com/firstlinehq/go-dispatch/pkg/tts"
)

var testFormat = protocol.AudioFormat{Encoding: "pcm16", SampleRate: 16000, Channels: 1}

type testServer struct {
	srv       *Server
	reg       *session.Registry
	bridge    *Bridge
	sttMock   *stt.MockProvider
	agentMock *agent.MockProvider
}

func newTestServer(t *testing.T, checks map[string]HealthCheck) *testServer {
	t.Helper()
	sttMock := &stt.MockProvider{}
	agentMock := &agent.MockProvider{}
	bridge := NewBridge()
	reg := session.NewRegistry(session.Config{
		ExtractDebounce: 20 * time.Millisecond,
		RetentionWindow: time.Minute,
	}, session.Deps{
		STT:       sttMock,
		Agent:     agentMock,
		TTS:       tts.NewMock(),
		Extractor: &extract.Mock{},
		Outbound:  bridge,
	})
	bridge.Bind(reg)
	return &testServer{
		srv:       NewServer("0", reg, bridge, hub.New("observe"), checks),
		reg:       reg,
		bridge:    bridge,
		sttMock:   sttMock,
		agentMock: agentMock,
	}
}

func (ts *testServer) request(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.srv.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, data
}

func TestModeToggle(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.request(t, "GET", "/api/mode", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/mode status = %d", resp.StatusCode)
	}
	var mode ModeResponse
	json.Unmarshal(body, &mode)
	if mode.AgentMode {
		t.Error("agent mode should default to off")
	}

	resp, _ = ts.request(t, "PUT", "/api/mode", `{"agent_mode":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT /api/mode status = %d", resp.StatusCode)
	}
	if !ts.reg.AgentMode() {
		t.Error("toggle did not reach the registry")
	}
}

func TestListAndGetCalls(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.request(t, "GET", "/api/calls", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/calls status = %d", resp.StatusCode)
	}

	if _, err := ts.reg.Open(context.Background(), "call-1", "corr-1", testFormat); err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	resp, body = ts.request(t, "GET", "/api/calls", "")
	var list struct {
		Calls []session.Snapshot `json:"calls"`
	}
	json.Unmarshal(body, &list)
	if len(list.Calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(list.Calls))
	}

	resp, body = ts.request(t, "GET", "/api/calls/call-1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /api/calls/call-1 status = %d", resp.StatusCode)
	}
	var snap session.Snapshot
	json.Unmarshal(body, &snap)
	if snap.ID != "call-1" || snap.CorrelationID != "corr-1" {
		t.Errorf("snapshot = %+v", snap)
	}

	resp, _ = ts.request(t, "GET", "/api/calls/nope", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET unknown call status = %d, want 404", resp.StatusCode)
	}
}

func TestResolveActionEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.reg.SetAgentMode(true)

	s, err := ts.reg.Open(context.Background(), "call-1", "", testFormat)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ts.agentMock.Pipelines()[0].EmitResponse("help is on the way", true)

	actions := s.Actions()
	if len(actions) != 1 {
		t.Fatalf("actions = %d, want 1", len(actions))
	}
	path := "/api/calls/call-1/actions/" + actions[0].ID

	resp, _ := ts.request(t, "POST", path, `{"decision":"maybe"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("invalid decision status = %d, want 400", resp.StatusCode)
	}

	resp, _ = ts.request(t, "POST", path, `{"decision":"approved"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("approve status = %d", resp.StatusCode)
	}
	if s.Actions()[0].Status != session.ActionApproved {
		t.Errorf("action status = %v", s.Actions()[0].Status)
	}

	resp, _ = ts.request(t, "POST", path, `{"decision":"rejected"}`)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("double resolve status = %d, want 409", resp.StatusCode)
	}

	resp, _ = ts.request(t, "POST", "/api/calls/call-1/actions/nope", `{"decision":"approved"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown action status = %d, want 404", resp.StatusCode)
	}
	resp, _ = ts.request(t, "POST", "/api/calls/nope/actions/x", `{"decision":"approved"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown call status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthAggregatesChecks(t *testing.T) {
	healthy := newTestServer(t, map[string]HealthCheck{
		"stt": func(ctx context.Context) error { return nil },
	})
	resp, body := healthy.request(t, "GET", "/api/health", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthy status = %d", resp.StatusCode)
	}
	var health struct {
		Healthy      bool              `json:"healthy"`
		Capabilities map[string]string `json:"capabilities"`
	}
	json.Unmarshal(body, &health)
	if !health.Healthy || health.Capabilities["stt"] != "ok" {
		t.Errorf("health = %+v", health)
	}

	sick := newTestServer(t, map[string]HealthCheck{
		"stt": func(ctx context.Context) error { return nil },
		"tts": func(ctx context.Context) error { return errors.New("vendor down") },
	})
	resp, body = sick.request(t, "GET", "/api/health", "")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("sick status = %d, want 503", resp.StatusCode)
	}
	json.Unmarshal(body, &health)
	if health.Healthy || health.Capabilities["tts"] != "vendor down" {
		t.Errorf("health = %+v", health)
	}
}
