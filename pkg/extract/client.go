package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/firstlinehq/go-dispatch/internal/httpc"
	"github.com/firstlinehq/go-dispatch/pkg/incident"
)

const extractionSystemPrompt = `You analyze emergency call transcripts. From the transcript, the current known incident fields, and the current urgency, return a JSON object with any NEWLY learned values for: location, type, injuries, threat_level, people_count, caller_role. Omit fields you are not confident about. Also return urgency (low|medium|critical) only if the transcript justifies changing it, missing_fields (array of field names still unknown), and next_question (one short question the dispatcher should ask next, or omit).`

// Client is the HTTP-based extractor. It works with any OpenAI-compatible
// chat completions API (OpenAI, Ollama, vLLM, Together, Groq, etc.).
type Client struct {
	baseURL string
	apiKey  string
	model   string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithModel overrides the default model.
func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithTimeout bounds a single extraction call.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// WithLogger sets the logger for diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = logger.With("component", "extract.client") }
}

// NewClient creates a new extraction client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}

	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		model:   "gpt-4o-mini",
		timeout: 15 * time.Second,
		logger:  slog.Default().With("component", "extract.client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.http = httpc.NewClient(c.timeout)
	return c, nil
}

// Extract analyzes the transcript and returns sparse field updates.
func (c *Client) Extract(ctx context.Context, req *Request) (*incident.Update, error) {
	start := time.Now()

	known, _ := json.Marshal(req.Incident)
	user := fmt.Sprintf("Transcript:\n%s\nKnown fields: %s\nCurrent urgency: %s",
		req.Transcript, known, req.Urgency)

	content, err := c.Complete(ctx, extractionSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var update incident.Update
	if err := json.Unmarshal([]byte(content), &update); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	c.logger.Debug("extraction complete",
		"call_id", req.CallID,
		"latency_ms", time.Since(start).Milliseconds(),
		"next_question", update.NextQuestion != "",
	)

	return &update, nil
}

// Complete performs a single JSON-mode chat completion and returns the
// assistant message content. Also used by report generation.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	payload := map[string]interface{}{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": system},
			{"role": "user", "content": user},
		},
		"response_format": map[string]string{"type": "json_object"},
		"temperature":     0,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("extract: marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST",
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("extract: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("extract: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.parseError(resp)
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("extract: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", ErrNoChoices
	}

	return result.Choices[0].Message.Content, nil
}

// parseError reads and parses an error response.
func (c *Client) parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}

	message := string(body)
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		message = errResp.Error.Message
	}

	return fmt.Errorf("extract: API error %d: %s", resp.StatusCode, message)
}

// Verify Client implements Extractor at compile time.
var _ Extractor = (*Client)(nil)
