// Package session implements the live call orchestration core: the registry
// of active call sessions, per-call audio routing, voice-agent interruption,
// the debounced extraction scheduler, and the dispatch-action approval gate.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/firstlinehq/go-dispatch/pkg/agent"
	"github.com/firstlinehq/go-dispatch/pkg/incident"
	"github.com/firstlinehq/go-dispatch/pkg/protocol"
	"github.com/firstlinehq/go-dispatch/pkg/stt"
	"github.com/firstlinehq/go-dispatch/pkg/transcript"
)

// Mode is the pipeline assignment for a call, fixed at creation.
type Mode string

const (
	// ModeHumanDispatcher bridges the caller to a human with passive transcription.
	ModeHumanDispatcher Mode = "human_dispatcher"

	// ModeVoiceAgent bridges the caller to the automated voice agent.
	ModeVoiceAgent Mode = "voice_agent"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive           Status = "active"
	StatusAwaitingApproval Status = "awaiting_approval"
	StatusCompleted        Status = "completed"
)

// ActionStatus is the approval state of an action proposal.
type ActionStatus string

const (
	ActionPending  ActionStatus = "pending"
	ActionApproved ActionStatus = "approved"
	ActionRejected ActionStatus = "rejected"
)

// Decision is a human resolution of a pending action.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Action is a detected dispatch intent awaiting human approval.
type Action struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	Status      ActionStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
}

// Session holds all mutable state for one live call. The registry is the
// sole owner; other components receive the handle, never the raw map.
//
// Mutation discipline: the mutex guards every mutable field. Only the
// extraction path merges incident/urgency; only the action gate touches
// pending/approval-derived status; the relay path owns speaking and outSeq.
type Session struct {
	ID            string
	CorrelationID string
	Mode          Mode
	Format        protocol.AudioFormat
	CreatedAt     time.Time

	reg *Registry

	mu        sync.Mutex
	status    Status
	inc       incident.Incident
	urgency   incident.Urgency
	log       *transcript.Log
	pending   []Action
	speaking  bool
	outSeq    uint64
	endedAt   time.Time

	// attached pipeline, exactly one non-nil depending on Mode
	sttStream stt.Stream
	pipeline  agent.Pipeline

	// in-flight synthesis cancellation; nil when no synthesis is running.
	// synthGen distinguishes superseded synthesis runs from the current one.
	synthCancel context.CancelFunc
	synthGen    uint64

	// extraction scheduler state
	debounce          *time.Timer
	extracting        bool
	extractQueued     bool
	lastExtractionKey string
	lastQuestion      string
}

// Snapshot is an immutable copy of a session's state, used for API reads
// and for reporting after teardown.
type Snapshot struct {
	ID            string                 `json:"id"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Mode          Mode                   `json:"mode"`
	Status        Status                 `json:"status"`
	Incident      incident.Incident      `json:"incident"`
	Urgency       incident.Urgency       `json:"urgency,omitempty"`
	Transcript    []transcript.Utterance `json:"transcript"`
	Actions       []Action               `json:"actions"`
	Speaking      bool                   `json:"speaking"`
	StartedAt     time.Time              `json:"started_at"`
	EndedAt       time.Time              `json:"ended_at,omitempty"`
}

// Status returns the session's current lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Speaking reports whether synthesized audio is currently playing to the caller.
func (s *Session) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Incident returns a copy of the current incident state.
func (s *Session) Incident() (incident.Incident, incident.Urgency) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inc, s.urgency
}

// Transcript returns a copy of the utterance log.
func (s *Session) Transcript() []transcript.Utterance {
	return s.log.Snapshot()
}

// Actions returns a copy of the action proposals.
func (s *Session) Actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Action, len(s.pending))
	copy(out, s.pending)
	return out
}

// Snapshot returns an immutable copy of the full session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	actions := make([]Action, len(s.pending))
	copy(actions, s.pending)
	return Snapshot{
		ID:            s.ID,
		CorrelationID: s.CorrelationID,
		Mode:          s.Mode,
		Status:        s.status,
		Incident:      s.inc,
		Urgency:       s.urgency,
		Transcript:    s.log.Snapshot(),
		Actions:       actions,
		Speaking:      s.speaking,
		StartedAt:     s.CreatedAt,
		EndedAt:       s.endedAt,
	}
}
