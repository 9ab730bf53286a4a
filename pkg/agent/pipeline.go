// Package agent provides the bidirectional voice-agent pipeline used for
// automated call handling: caller audio in, synthesized speech out, with
// completed utterance transcripts for both directions.
package agent

import (
	"context"
	"errors"
)

// Common errors returned by pipelines.
var (
	ErrNotConnected   = errors.New("agent: pipeline not connected")
	ErrAlreadyStarted = errors.New("agent: pipeline already started")
	ErrMissingAPIKey  = errors.New("agent: missing API key")
	ErrMissingURL     = errors.New("agent: missing endpoint URL")
)

// Pipeline is the interface for one live voice-agent conversation.
type Pipeline interface {
	// Lifecycle

	// Start establishes the connection and begins processing.
	// Call this after setting up callbacks.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the pipeline.
	Stop() error

	// IsConnected returns true if the pipeline is connected and ready.
	IsConnected() bool

	// Audio I/O

	// SendAudio sends an encoded caller audio frame to the pipeline.
	SendAudio(audio []byte) error

	// OnAudioOut sets the callback for receiving synthesized audio output.
	OnAudioOut(fn func(audio []byte))

	// Events

	// OnTranscript is called with the caller's transcribed speech.
	// final indicates whether this is the final transcript.
	OnTranscript(fn func(text string, final bool))

	// OnResponse is called with the agent's spoken text.
	// final indicates whether the utterance is complete.
	OnResponse(fn func(text string, final bool))

	// OnError is called when an error occurs.
	OnError(fn func(err error))

	// Control

	// Interrupt stops the current agent response (for barge-in).
	Interrupt() error
}

// Provider dials voice-agent pipelines, one per call.
type Provider interface {
	// Dial creates a pipeline bound to the given call.
	Dial(ctx context.Context, callID string) (Pipeline, error)

	// Health checks provider connectivity.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// Callbacks groups all pipeline callbacks for convenience.
// This can be used to set up all callbacks at once.
type Callbacks struct {
	OnAudioOut   func(audio []byte)
	OnTranscript func(text string, final bool)
	OnResponse   func(text string, final bool)
	OnError      func(err error)
}

// Apply sets all callbacks on a pipeline.
func (c *Callbacks) Apply(p Pipeline) {
	if c.OnAudioOut != nil {
		p.OnAudioOut(c.OnAudioOut)
	}
	if c.OnTranscript != nil {
		p.OnTranscript(c.OnTranscript)
	}
	if c.OnResponse != nil {
		p.OnResponse(c.OnResponse)
	}
	if c.OnError != nil {
		p.OnError(c.OnError)
	}
}
