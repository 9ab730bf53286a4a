package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const providerHTTP = "http"

// HTTP implements Provider against a streaming speech-synthesis HTTP API.
// The endpoint is expected to expose POST {base}/synthesize and
// POST {base}/synthesize/stream accepting {"text","voice_id","format"} and
// returning raw audio bytes.
type HTTP struct {
	config  *Config
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// NewHTTP creates a new HTTP TTS provider.
func NewHTTP(opts ...Option) (*HTTP, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &HTTP{
		config:  cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  cfg.Logger.With("component", "tts.http"),
		baseURL: cfg.BaseURL,
	}, nil
}

// Synthesize converts text to audio, returning the complete audio buffer.
func (h *HTTP) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	start := time.Now()

	req, err := h.newRequest(ctx, h.baseURL+"/synthesize", text)
	if err != nil {
		return nil, err
	}

	resp, err := h.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()

	if resp.StatusCode != http.StatusOK {
		return nil, h.parseError(resp)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, WrapError(providerHTTP, fmt.Errorf("read response: %w", err))
	}

	h.logger.Debug("synthesized audio",
		"chars", len(text),
		"bytes", len(audio),
		"latency_ms", latency,
	)

	return &AudioResult{
		Audio:     audio,
		Format:    h.outputFormat(),
		CharCount: len(text),
		LatencyMs: latency,
		Duration:  h.estimateDuration(len(audio)),
	}, nil
}

// Stream converts text to audio with streaming output for lowest latency.
// The returned stream ends early if ctx is cancelled.
func (h *HTTP) Stream(ctx context.Context, text string) (AudioStream, error) {
	req, err := h.newRequest(ctx, h.baseURL+"/synthesize/stream", text)
	if err != nil {
		return nil, err
	}

	// Use stream timeout for streaming requests
	client := &http.Client{Timeout: h.config.StreamTimeout}

	resp, err := client.Do(req)
	if err != nil {
		return nil, WrapError(providerHTTP, fmt.Errorf("stream request: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, h.parseError(resp)
	}

	return &httpStream{
		body:   resp.Body,
		format: h.outputFormat(),
	}, nil
}

// Health checks API connectivity and API key validity.
func (h *HTTP) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", h.baseURL+"/health", nil)
	if err != nil {
		return WrapError(providerHTTP, err)
	}
	req.Header.Set("Authorization", "Bearer "+h.config.APIKey)

	resp, err := h.client.Do(req)
	if err != nil {
		return WrapError(providerHTTP, fmt.Errorf("health check: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return h.parseError(resp)
	}

	return nil
}

// Close releases resources held by the provider.
func (h *HTTP) Close() error {
	h.client.CloseIdleConnections()
	return nil
}

// newRequest builds a synthesis request for the given endpoint.
func (h *HTTP) newRequest(ctx context.Context, url, text string) (*http.Request, error) {
	body, err := json.Marshal(map[string]interface{}{
		"text":     text,
		"voice_id": h.config.VoiceID,
		"format":   string(h.config.OutputFormat),
	})
	if err != nil {
		return nil, WrapError(providerHTTP, fmt.Errorf("marshal payload: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, WrapError(providerHTTP, fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Authorization", "Bearer "+h.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// doWithRetry performs the request with retry logic.
func (h *HTTP) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	var lastErr error

	body, _ := io.ReadAll(req.Body)

	for attempt := 0; attempt <= h.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(h.config.RetryDelay * time.Duration(attempt)):
			}
		}

		req.Body = io.NopCloser(bytes.NewReader(body))

		resp, err := h.client.Do(req)
		if err != nil {
			lastErr = WrapError(providerHTTP, err)
			continue
		}

		// Check if retryable
		if resp.StatusCode == 429 || resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = h.parseError(resp)
			h.logger.Warn("retrying request",
				"attempt", attempt+1,
				"status", resp.StatusCode,
			)
			continue
		}

		return resp, nil
	}

	return nil, lastErr
}

// parseError reads and parses an error response.
func (h *HTTP) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error string `json:"error"`
	}

	message := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		message = errResp.Error
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Provider:   providerHTTP,
	}
}

// outputFormat returns the audio format configuration.
func (h *HTTP) outputFormat() AudioFormat {
	return AudioFormat{
		Encoding:   h.config.OutputFormat,
		SampleRate: SampleRateFromEncoding(h.config.OutputFormat),
		Channels:   1,
		BitDepth:   16,
	}
}

// estimateDuration estimates audio duration from byte count.
func (h *HTTP) estimateDuration(bytes int) time.Duration {
	sampleRate := SampleRateFromEncoding(h.config.OutputFormat)
	// PCM16 = 2 bytes per sample
	samples := bytes / 2
	seconds := float64(samples) / float64(sampleRate)
	return time.Duration(seconds * float64(time.Second))
}

// httpStream wraps an HTTP response body as AudioStream.
type httpStream struct {
	body   io.ReadCloser
	format AudioFormat
	buf    [4096]byte
}

// Read returns the next audio chunk.
func (s *httpStream) Read() ([]byte, error) {
	n, err := s.body.Read(s.buf[:])
	if err == io.EOF {
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, s.buf[:n])
			return chunk, nil
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	chunk := make([]byte, n)
	copy(chunk, s.buf[:n])
	return chunk, nil
}

// Close stops the stream.
func (s *httpStream) Close() error {
	return s.body.Close()
}

// Format returns the audio format.
func (s *httpStream) Format() AudioFormat {
	return s.format
}

// Verify HTTP implements Provider at compile time.
var _ Provider = (*HTTP)(nil)
