// Package protocol defines the websocket message types for the telephony
// bridge boundary. This package is shared between dispatchd and bridge
// implementations (SIP gateways, the callsim tool, vendor adapters).
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType identifies the type of websocket message
type MessageType string

const (
	// Bridge → Dispatch messages
	TypeSessionStart MessageType = "session_start" // New call
	TypeMedia        MessageType = "media"         // Caller audio frame
	TypeSessionStop  MessageType = "session_stop"  // Call ended

	// Dispatch → Bridge messages
	TypeAudio MessageType = "audio" // Synthesized speech playback
	TypeClear MessageType = "clear" // Flush queued playback (barge-in)
	TypeError MessageType = "error" // Protocol-level error

	// Bidirectional
	TypePing MessageType = "ping" // Health check
	TypePong MessageType = "pong" // Health check response
)

// Message is the base wrapper for all websocket messages
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp int64           `json:"ts,omitempty"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType MessageType, data interface{}) (*Message, error) {
	var rawData json.RawMessage
	if data != nil {
		var err error
		rawData, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal message data: %w", err)
		}
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UnixMilli(),
		Data:      rawData,
	}, nil
}

// ParseData unmarshals the message data into the provided struct
func (m *Message) ParseData(v interface{}) error {
	if m.Data == nil {
		return nil
	}
	return json.Unmarshal(m.Data, v)
}

// Bytes returns the JSON-encoded message
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON message from bytes
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &msg, nil
}

// =============================================================================
// Bridge → Dispatch Message Types
// =============================================================================

// AudioFormat describes the encoding of media payloads for a call.
type AudioFormat struct {
	Encoding   string `json:"encoding"`    // "pcm16", "ulaw", "opus"
	SampleRate int    `json:"sample_rate"` // e.g., 8000, 16000
	Channels   int    `json:"channels"`    // 1 for mono
}

// SessionStartData announces a new call on the bridge.
type SessionStartData struct {
	CallID        string      `json:"call_id"`
	CorrelationID string      `json:"correlation_id,omitempty"`
	Format        AudioFormat `json:"format"`
	From          string      `json:"from,omitempty"` // Caller number, if known
}

// MediaData carries one caller audio frame.
type MediaData struct {
	CallID string `json:"call_id"`
	Seq    uint64 `json:"seq,omitempty"` // Bridge-side frame counter, diagnostics only
	Data   string `json:"data"`          // base64 encoded
}

// SessionStopData announces the end of a call.
type SessionStopData struct {
	CallID string `json:"call_id"`
	Reason string `json:"reason,omitempty"` // "hangup", "transfer", "error"
}

// =============================================================================
// Dispatch → Bridge Message Types
// =============================================================================

// AudioData carries one synthesized audio frame to play to the caller.
type AudioData struct {
	CallID string `json:"call_id"`
	Seq    uint64 `json:"seq"`  // Session-scoped, monotonically increasing
	Data   string `json:"data"` // base64 encoded
}

// ClearData tells the bridge to drop any queued playback immediately.
type ClearData struct {
	CallID string `json:"call_id"`
}

// ErrorData reports a protocol-level problem back to the bridge.
type ErrorData struct {
	Code    string `json:"code"`    // "unknown_session", "duplicate_session", "bad_message"
	Message string `json:"message"`
	CallID  string `json:"call_id,omitempty"`
}

// =============================================================================
// Bidirectional Message Types
// =============================================================================

// PingData contains ping information
type PingData struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"ts"`
}

// PongData contains pong response
type PongData struct {
	ID        string `json:"id"`
	PingTS    int64  `json:"ping_ts"`
	PongTS    int64  `json:"pong_ts"`
	LatencyMs int64  `json:"latency_ms"`
}
