package protocol

import (
	"encoding/base64"
	"time"
)

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewSessionStartMessage creates a session_start message
func NewSessionStartMessage(callID, correlationID string, format AudioFormat) (*Message, error) {
	return NewMessage(TypeSessionStart, SessionStartData{
		CallID:        callID,
		CorrelationID: correlationID,
		Format:        format,
	})
}

// NewMediaMessage creates a media message from raw audio data
func NewMediaMessage(callID string, seq uint64, audio []byte) (*Message, error) {
	return NewMessage(TypeMedia, MediaData{
		CallID: callID,
		Seq:    seq,
		Data:   base64.StdEncoding.EncodeToString(audio),
	})
}

// NewSessionStopMessage creates a session_stop message
func NewSessionStopMessage(callID, reason string) (*Message, error) {
	return NewMessage(TypeSessionStop, SessionStopData{
		CallID: callID,
		Reason: reason,
	})
}

// NewAudioMessage creates an outbound audio message
func NewAudioMessage(callID string, seq uint64, audio []byte) (*Message, error) {
	return NewMessage(TypeAudio, AudioData{
		CallID: callID,
		Seq:    seq,
		Data:   base64.StdEncoding.EncodeToString(audio),
	})
}

// NewClearMessage creates a clear-playback message
func NewClearMessage(callID string) (*Message, error) {
	return NewMessage(TypeClear, ClearData{CallID: callID})
}

// NewErrorMessage creates an error message
func NewErrorMessage(code, message, callID string) (*Message, error) {
	return NewMessage(TypeError, ErrorData{
		Code:    code,
		Message: message,
		CallID:  callID,
	})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
	})
}

// NewPongMessage creates a pong response for the given ping
func NewPongMessage(ping PingData) (*Message, error) {
	now := time.Now().UnixMilli()
	return NewMessage(TypePong, PongData{
		ID:        ping.ID,
		PingTS:    ping.Timestamp,
		PongTS:    now,
		LatencyMs: now - ping.Timestamp,
	})
}

// DecodeAudio decodes the base64 payload of a media or audio message.
func DecodeAudio(data string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(data)
}
