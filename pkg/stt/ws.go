package stt

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/firstlinehq/go-dispatch/internal/httpc"
	"github.com/firstlinehq/go-dispatch/pkg/protocol"
)

// WS implements Provider over a streaming websocket recognition API.
// The endpoint accepts {"type":"audio","data":<base64>} messages and emits
// {"type":"transcript","text":...,"final":...,"confidence":...} events.
type WS struct {
	baseURL string
	apiKey  string
	logger  *slog.Logger
}

// NewWS creates a websocket STT provider.
func NewWS(baseURL, apiKey string, logger *slog.Logger) (*WS, error) {
	if baseURL == "" {
		return nil, ErrMissingURL
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WS{
		baseURL: baseURL,
		apiKey:  apiKey,
		logger:  logger.With("component", "stt.ws"),
	}, nil
}

// Open dials the recognizer and starts the read loop for one call.
func (w *WS) Open(ctx context.Context, callID string, format protocol.AudioFormat) (Stream, error) {
	u, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("stt: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("call_id", callID)
	q.Set("encoding", format.Encoding)
	q.Set("sample_rate", fmt.Sprintf("%d", format.SampleRate))
	u.RawQuery = q.Encode()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+w.apiKey)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("stt: dial: %w", err)
	}

	s := &wsStream{
		conn:   conn,
		logger: w.logger.With("call_id", callID),
	}
	go s.readLoop()
	return s, nil
}

// Health checks connectivity to the recognizer HTTP surface.
func (w *WS) Health(ctx context.Context) error {
	u, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("stt: parse endpoint: %w", err)
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
	req.Header.Set("Authorization", "Bearer "+w.apiKey)

	resp, err := httpc.Do(req)
	if err != nil {
		return fmt.Errorf("stt: health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stt: health check status %d", resp.StatusCode)
	}
	return nil
}

// Close releases provider resources. Open streams close themselves.
func (w *WS) Close() error {
	return nil
}

// wsStream is one live recognition websocket.
type wsStream struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu       sync.Mutex
	closed   bool
	onResult func(Result)
	onError  func(err error)
}

// vendor wire messages
type wsOutbound struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

type wsInbound struct {
	Type       string  `json:"type"`
	Text       string  `json:"text,omitempty"`
	Final      bool    `json:"final,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Message    string  `json:"message,omitempty"`
}

// Push sends an audio frame to the recognizer.
func (s *wsStream) Push(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}

	msg := wsOutbound{
		Type: "audio",
		Data: base64.StdEncoding.EncodeToString(audio),
	}
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return s.conn.WriteJSON(msg)
}

// OnResult sets the recognition callback.
func (s *wsStream) OnResult(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

// OnError sets the asynchronous error callback.
func (s *wsStream) OnError(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Close ends the stream.
func (s *wsStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.conn.Close()
}

// readLoop dispatches recognition events until the connection closes.
func (s *wsStream) readLoop() {
	defer s.Close()

	for {
		var msg wsInbound
		if err := s.conn.ReadJSON(&msg); err != nil {
			s.mu.Lock()
			closed := s.closed
			onError := s.onError
			s.mu.Unlock()
			if !closed && onError != nil {
				onError(fmt.Errorf("stt: read: %w", err))
			}
			return
		}

		switch msg.Type {
		case "transcript":
			s.mu.Lock()
			onResult := s.onResult
			s.mu.Unlock()
			if onResult != nil {
				onResult(Result{
					Text:       msg.Text,
					Final:      msg.Final,
					Confidence: msg.Confidence,
				})
			}
		case "error":
			s.mu.Lock()
			onError := s.onError
			s.mu.Unlock()
			if onError != nil {
				onError(fmt.Errorf("stt: vendor error: %s", msg.Message))
			}
		default:
			s.logger.Debug("ignoring unknown message", "type", msg.Type)
		}
	}
}

// Verify implementations at compile time.
var (
	_ Provider = (*WS)(nil)
	_ Stream   = (*wsStream)(nil)
)
