// Package stt provides a unified interface for streaming speech-to-text
// providers. Human-dispatcher calls use this for passive transcription:
// caller audio goes in, partial and final utterance text comes out.
package stt

import (
	"context"
	"errors"

	"github.com/firstlinehq/go-dispatch/pkg/protocol"
)

// Common errors returned by providers.
var (
	ErrNotConnected  = errors.New("stt: stream not connected")
	ErrStreamClosed  = errors.New("stt: stream closed")
	ErrMissingAPIKey = errors.New("stt: missing API key")
	ErrMissingURL    = errors.New("stt: missing endpoint URL")
)

// Result is one recognition event from the provider.
type Result struct {
	// Text is the recognized speech so far.
	Text string

	// Final is true when the utterance is complete and will not be revised.
	Final bool

	// Confidence is the provider's confidence in the text (0.0-1.0),
	// zero when the provider does not report one.
	Confidence float64
}

// Stream is one live recognition stream, bound to a single call.
type Stream interface {
	// Push sends an encoded audio frame to the recognizer.
	// It must not block on recognition; results arrive via OnResult.
	Push(audio []byte) error

	// OnResult sets the callback for recognition events.
	// Call this before pushing audio.
	OnResult(fn func(Result))

	// OnError sets the callback for asynchronous stream errors.
	OnError(fn func(err error))

	// Close ends the stream and releases resources.
	Close() error
}

// Provider opens recognition streams.
type Provider interface {
	// Open starts a recognition stream for a call with the given audio format.
	Open(ctx context.Context, callID string, format protocol.AudioFormat) (Stream, error)

	// Health checks provider connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}
