package agent

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/firstlinehq/go-dispatch/internal/httpc"
)

// WSProvider implements Provider over a conversational-agent websocket API.
type WSProvider struct {
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// NewWS creates a websocket voice-agent provider.
func NewWS(baseURL, apiKey string, logger *slog.Logger) (*WSProvider, error) {
	if baseURL == "" {
		return nil, ErrMissingURL
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WSProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger.With("component", "agent.ws"),
	}, nil
}

// Dial creates a pipeline bound to the given call. The connection is not
// established until Start.
func (p *WSProvider) Dial(ctx context.Context, callID string) (Pipeline, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return nil, fmt.Errorf("agent: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("call_id", callID)
	u.RawQuery = q.Encode()

	return &wsPipeline{
		url:    u.String(),
		apiKey: p.apiKey,
		logger: p.logger.With("call_id", callID),
	}, nil
}

// Health checks connectivity to the agent HTTP surface.
func (p *WSProvider) Health(ctx context.Context) error {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return fmt.Errorf("agent: parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	case "ws":
		u.Scheme = "http"
	}
	u.Path = "/health"

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := httpc.Do(req)
	if err != nil {
		return fmt.Errorf("agent: health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent: health check status %d", resp.StatusCode)
	}
	return nil
}

// Close releases provider resources. Live pipelines stop themselves.
func (p *WSProvider) Close() error {
	return nil
}

// wsPipeline is one live agent conversation over a websocket.
type wsPipeline struct {
	url    string
	apiKey string
	logger *slog.Logger

	mu        sync.RWMutex
	conn      *websocket.Conn
	started   bool
	connected atomic.Bool
	cancelCtx context.CancelFunc

	onAudioOut   func(audio []byte)
	onTranscript func(text string, final bool)
	onResponse   func(text string, final bool)
	onError      func(err error)
}

// agent wire messages
type agentOutbound struct {
	Type string `json:"type"` // "audio", "interrupt"
	Data string `json:"data,omitempty"`
}

type agentInbound struct {
	Type    string `json:"type"` // "audio", "transcript", "response", "error"
	Data    string `json:"data,omitempty"`
	Text    string `json:"text,omitempty"`
	Final   bool   `json:"final,omitempty"`
	Message string `json:"message,omitempty"`
}

// Start establishes the websocket connection and begins the read loop.
func (p *wsPipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return ErrAlreadyStarted
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+p.apiKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.url, header)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("agent: dial: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	p.conn = conn
	p.started = true
	p.cancelCtx = cancel
	p.connected.Store(true)
	p.mu.Unlock()

	go p.readLoop(runCtx)
	return nil
}

// Stop closes the connection.
func (p *wsPipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return nil
	}
	p.started = false
	p.connected.Store(false)
	if p.cancelCtx != nil {
		p.cancelCtx()
	}
	if p.conn != nil {
		p.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return p.conn.Close()
	}
	return nil
}

// IsConnected returns true if the pipeline is connected and ready.
func (p *wsPipeline) IsConnected() bool {
	return p.connected.Load()
}

// SendAudio forwards a caller audio frame to the agent.
func (p *wsPipeline) SendAudio(audio []byte) error {
	p.mu.RLock()
	conn := p.conn
	connected := p.connected.Load()
	p.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteJSON(agentOutbound{
		Type: "audio",
		Data: base64.StdEncoding.EncodeToString(audio),
	})
}

// Interrupt tells the agent to abandon its current response.
func (p *wsPipeline) Interrupt() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected.Load() || p.conn == nil {
		return ErrNotConnected
	}
	p.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return p.conn.WriteJSON(agentOutbound{Type: "interrupt"})
}

// OnAudioOut sets the synthesized audio callback.
func (p *wsPipeline) OnAudioOut(fn func(audio []byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAudioOut = fn
}

// OnTranscript sets the caller transcript callback.
func (p *wsPipeline) OnTranscript(fn func(text string, final bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTranscript = fn
}

// OnResponse sets the agent response text callback.
func (p *wsPipeline) OnResponse(fn func(text string, final bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onResponse = fn
}

// OnError sets the asynchronous error callback.
func (p *wsPipeline) OnError(fn func(err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = fn
}

// readLoop dispatches agent events until the connection closes.
func (p *wsPipeline) readLoop(ctx context.Context) {
	defer func() {
		p.connected.Store(false)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var msg agentInbound
		if err := p.conn.ReadJSON(&msg); err != nil {
			if ctx.Err() == nil {
				p.emitError(fmt.Errorf("agent: read: %w", err))
			}
			return
		}

		switch msg.Type {
		case "audio":
			audio, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				p.emitError(fmt.Errorf("agent: decode audio: %w", err))
				continue
			}
			p.mu.RLock()
			fn := p.onAudioOut
			p.mu.RUnlock()
			if fn != nil {
				fn(audio)
			}
		case "transcript":
			p.mu.RLock()
			fn := p.onTranscript
			p.mu.RUnlock()
			if fn != nil {
				fn(msg.Text, msg.Final)
			}
		case "response":
			p.mu.RLock()
			fn := p.onResponse
			p.mu.RUnlock()
			if fn != nil {
				fn(msg.Text, msg.Final)
			}
		case "error":
			p.emitError(fmt.Errorf("agent: vendor error: %s", msg.Message))
		default:
			p.logger.Debug("ignoring unknown message", "type", msg.Type)
		}
	}
}

func (p *wsPipeline) emitError(err error) {
	p.mu.RLock()
	fn := p.onError
	p.mu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// Verify implementations at compile time.
var (
	_ Provider = (*WSProvider)(nil)
	_ Pipeline = (*wsPipeline)(nil)
)
