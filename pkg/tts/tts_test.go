package tts_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/firstlinehq/go-dispatch/pkg/tts"
)

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Synthesize returns audio", func(t *testing.T) {
		result, err := mock.Synthesize(ctx, "Hello world")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Audio) == 0 {
			t.Error("expected audio data")
		}
		if result.Format.SampleRate != 16000 {
			t.Errorf("expected 16000 sample rate, got %d", result.Format.SampleRate)
		}
	})

	t.Run("Stream returns audio stream", func(t *testing.T) {
		stream, err := mock.Stream(ctx, "Test stream")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer stream.Close()

		chunk, err := stream.Read()
		if err != nil {
			t.Fatalf("read error: %v", err)
		}
		if len(chunk) == 0 {
			t.Error("expected audio chunk")
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		if mock.CallCount("Synthesize") != 1 {
			t.Errorf("expected 1 Synthesize call, got %d", mock.CallCount("Synthesize"))
		}
		if mock.CallCount("Stream") != 1 {
			t.Errorf("expected 1 Stream call, got %d", mock.CallCount("Stream"))
		}
	})
}

func TestMockWithError(t *testing.T) {
	testErr := errors.New("test error")
	mock := tts.WithError(testErr)
	ctx := context.Background()

	if _, err := mock.Synthesize(ctx, "Hello"); !errors.Is(err, testErr) {
		t.Errorf("Synthesize error = %v", err)
	}
	if _, err := mock.Stream(ctx, "Hello"); !errors.Is(err, testErr) {
		t.Errorf("Stream error = %v", err)
	}
	if err := mock.Health(ctx); !errors.Is(err, testErr) {
		t.Errorf("Health error = %v", err)
	}
}

func TestBufferStreamStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	stream := &tts.BufferStream{
		Ctx:       ctx,
		Audio:     make([]byte, 10000),
		ChunkSize: 1024,
	}

	chunk, err := stream.Read()
	if err != nil || len(chunk) != 1024 {
		t.Fatalf("first read: %d bytes, err %v", len(chunk), err)
	}

	cancel()
	if _, err := stream.Read(); !errors.Is(err, context.Canceled) {
		t.Errorf("read after cancel = %v, want context.Canceled", err)
	}
}

func TestHTTPSynthesize(t *testing.T) {
	audio := []byte{0x01, 0x02, 0x03, 0x04}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/synthesize" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth = %q", got)
		}
		w.Header().Set("Content-Type", "audio/pcm")
		w.Write(audio)
	}))
	defer server.Close()

	provider, err := tts.NewHTTP(
		tts.WithBaseURL(server.URL),
		tts.WithAPIKey("test-key"),
	)
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	defer provider.Close()

	result, err := provider.Synthesize(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if len(result.Audio) != len(audio) {
		t.Errorf("audio bytes = %d, want %d", len(result.Audio), len(audio))
	}
}

func TestHTTPStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/synthesize/stream" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Write(make([]byte, 10000))
	}))
	defer server.Close()

	provider, err := tts.NewHTTP(
		tts.WithBaseURL(server.URL),
		tts.WithAPIKey("test-key"),
	)
	if err != nil {
		t.Fatalf("NewHTTP() error = %v", err)
	}
	defer provider.Close()

	stream, err := provider.Stream(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	total := 0
	for {
		chunk, err := stream.Read()
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if chunk == nil {
			break
		}
		total += len(chunk)
	}
	if total != 10000 {
		t.Errorf("streamed %d bytes, want 10000", total)
	}
}

func TestHTTPRequiresConfig(t *testing.T) {
	if _, err := tts.NewHTTP(tts.WithAPIKey("k")); !errors.Is(err, tts.ErrNoBaseURL) {
		t.Errorf("missing base url: %v", err)
	}
	if _, err := tts.NewHTTP(tts.WithBaseURL("http://x")); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("missing api key: %v", err)
	}
}
