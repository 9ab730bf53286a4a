// Package events defines the typed fan-out events the core publishes to
// external observers (dashboards). Delivery is best-effort; no core
// invariant depends on an observer receiving every event.
package events

import (
	"time"

	"github.com/firstlinehq/go-dispatch/pkg/incident"
	"github.com/firstlinehq/go-dispatch/pkg/transcript"
)

// Type identifies a fan-out event kind.
type Type string

const (
	TypeSessionStarted     Type = "session_started"
	TypeTranscriptAppended Type = "transcript_appended"
	TypeIncidentUpdated    Type = "incident_updated"
	TypeApprovalRequired   Type = "approval_required"
	TypeSessionEnded       Type = "session_ended"
)

// Event is the envelope published to observers.
type Event struct {
	Type      Type      `json:"type"`
	CallID    string    `json:"call_id"`
	Timestamp time.Time `json:"ts"`

	// Exactly one of the following is set, matching Type.
	SessionStarted     *SessionStarted      `json:"session_started,omitempty"`
	TranscriptAppended *transcript.Utterance `json:"transcript_appended,omitempty"`
	IncidentUpdated    *IncidentUpdated     `json:"incident_updated,omitempty"`
	ApprovalRequired   *ApprovalRequired    `json:"approval_required,omitempty"`
	SessionEnded       *SessionEnded        `json:"session_ended,omitempty"`
}

// SessionStarted announces a new call session.
type SessionStarted struct {
	Mode string `json:"mode"`
}

// IncidentUpdated carries the incident state after an extraction merge.
type IncidentUpdated struct {
	Incident      incident.Incident `json:"incident"`
	Urgency       incident.Urgency  `json:"urgency,omitempty"`
	MissingFields []string          `json:"missing_fields,omitempty"`
	NextQuestion  string            `json:"next_question,omitempty"`
}

// ApprovalRequired announces a pending dispatch action.
type ApprovalRequired struct {
	ActionID    string `json:"action_id"`
	Description string `json:"description"`
}

// SessionEnded announces call completion.
type SessionEnded struct {
	Status string `json:"status"`
}

// Publisher is the fan-out sink the core publishes into.
type Publisher interface {
	Publish(evt Event)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(evt Event)

// Publish calls f(evt).
func (f PublisherFunc) Publish(evt Event) { f(evt) }

// New creates an event envelope with the current timestamp.
func New(t Type, callID string) Event {
	return Event{Type: t, CallID: callID, Timestamp: time.Now()}
}
