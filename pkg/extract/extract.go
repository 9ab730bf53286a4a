// Package extract provides the structured-extraction capability: it turns a
// call transcript into incident field updates, a missing-fields list, and a
// suggested next question, via an OpenAI-compatible chat completions API.
package extract

import (
	"context"
	"errors"

	"github.com/firstlinehq/go-dispatch/pkg/incident"
)

// Common errors returned by the extractor.
var (
	ErrNoAPIKey   = errors.New("extract: API key required")
	ErrNoChoices  = errors.New("extract: no choices returned")
	ErrBadPayload = errors.New("extract: malformed model output")
)

// Request carries the evolving call context into an extraction pass.
type Request struct {
	// CallID identifies the call, for logging only.
	CallID string

	// Transcript is the rendered final-utterance transcript so far.
	Transcript string

	// Incident is the current structured state.
	Incident incident.Incident

	// Urgency is the current triage level.
	Urgency incident.Urgency
}

// Extractor runs one structured-extraction pass.
type Extractor interface {
	// Extract analyzes the transcript and returns sparse field updates.
	// May fail or time out; callers treat failures as recoverable.
	Extract(ctx context.Context, req *Request) (*incident.Update, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(ctx context.Context, req *Request) (*incident.Update, error)

// Extract calls f(ctx, req).
func (f ExtractorFunc) Extract(ctx context.Context, req *Request) (*incident.Update, error) {
	return f(ctx, req)
}
