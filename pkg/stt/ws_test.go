package stt

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/firstlinehq/go-dispatch/pkg/protocol"
)

var upgrader = websocket.Upgrader{}

// fakeRecognizer upgrades the connection and echoes every audio frame back
// as a final transcript carrying the frame's byte length.
func fakeRecognizer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("call_id") == "" {
			t.Error("missing call_id query param")
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var msg wsOutbound
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type != "audio" {
				continue
			}
			audio, _ := base64.StdEncoding.DecodeString(msg.Data)
			conn.WriteJSON(wsInbound{
				Type:  "transcript",
				Text:  strings.Repeat("x", len(audio)),
				Final: true,
			})
		}
	})
	return httptest.NewServer(mux)
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestNewWSValidation(t *testing.T) {
	if _, err := NewWS("", "key", nil); !errors.Is(err, ErrMissingURL) {
		t.Errorf("missing url: %v", err)
	}
	if _, err := NewWS("ws://x", "", nil); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("missing key: %v", err)
	}
}

func TestOpenPushAndReceive(t *testing.T) {
	server := fakeRecognizer(t)
	defer server.Close()

	provider, err := NewWS(wsURL(server), "test-key", nil)
	if err != nil {
		t.Fatalf("NewWS() error = %v", err)
	}

	stream, err := provider.Open(context.Background(), "call-1",
		protocol.AudioFormat{Encoding: "pcm16", SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer stream.Close()

	results := make(chan Result, 1)
	stream.OnResult(func(r Result) { results <- r })

	if err := stream.Push([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	select {
	case r := <-results:
		if !r.Final || len(r.Text) != 3 {
			t.Errorf("result = %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no recognition result received")
	}
}

func TestPushAfterCloseFails(t *testing.T) {
	server := fakeRecognizer(t)
	defer server.Close()

	provider, err := NewWS(wsURL(server), "test-key", nil)
	if err != nil {
		t.Fatalf("NewWS() error = %v", err)
	}
	stream, err := provider.Open(context.Background(), "call-1",
		protocol.AudioFormat{Encoding: "pcm16", SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	stream.Close()
	if err := stream.Push([]byte{0x01}); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Push() after close = %v, want ErrStreamClosed", err)
	}
}

func TestHealthUsesHTTPScheme(t *testing.T) {
	server := fakeRecognizer(t)
	defer server.Close()

	provider, err := NewWS(wsURL(server), "test-key", nil)
	if err != nil {
		t.Fatalf("NewWS() error = %v", err)
	}
	if err := provider.Health(context.Background()); err != nil {
		t.Errorf("Health() error = %v", err)
	}

	bad, _ := NewWS(wsURL(server), "wrong-key", nil)
	if err := bad.Health(context.Background()); err == nil {
		t.Error("Health() with bad key should fail")
	}
}
