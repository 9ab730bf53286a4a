package extract

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/firstlinehq/go-dispatch/pkg/incident"
)

func completionResponse(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"content": content}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient("http://localhost", ""); !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestExtract(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotPayload)

		update := incident.Update{
			Location:      "123 Oak Street",
			Type:          "Fire",
			Urgency:       incident.UrgencyCritical,
			MissingFields: []string{"injuries"},
			NextQuestion:  "Is anyone hurt?",
		}
		content, _ := json.Marshal(update)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(completionResponse(string(content))))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-key", WithModel("test-model"))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	update, err := client.Extract(context.Background(), &Request{
		CallID:     "call-1",
		Transcript: "caller: there's a fire at 123 Oak Street\n",
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotPayload["model"] != "test-model" {
		t.Errorf("model = %v", gotPayload["model"])
	}
	if update.Location != "123 Oak Street" {
		t.Errorf("location = %q", update.Location)
	}
	if update.Urgency != incident.UrgencyCritical {
		t.Errorf("urgency = %q", update.Urgency)
	}
	if update.NextQuestion != "Is anyone hurt?" {
		t.Errorf("next question = %q", update.NextQuestion)
	}
}

func TestExtractMalformedModelOutput(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionResponse("this is not json")))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-key")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := client.Extract(context.Background(), &Request{}); !errors.Is(err, ErrBadPayload) {
		t.Errorf("expected ErrBadPayload, got %v", err)
	}
}

func TestExtractNoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-key")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	if _, err := client.Extract(context.Background(), &Request{}); !errors.Is(err, ErrNoChoices) {
		t.Errorf("expected ErrNoChoices, got %v", err)
	}
}

func TestExtractAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-key")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.Extract(context.Background(), &Request{})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestMockRecordsRequests(t *testing.T) {
	m := &Mock{}

	m.Extract(context.Background(), &Request{CallID: "call-1"})
	m.Extract(context.Background(), &Request{CallID: "call-2"})

	if m.CallCount() != 2 {
		t.Fatalf("CallCount() = %d, want 2", m.CallCount())
	}
	if reqs := m.Requests(); reqs[1].CallID != "call-2" {
		t.Errorf("second request call id = %q", reqs[1].CallID)
	}
}
