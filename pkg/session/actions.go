package session

import (
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/firstlinehq/go-dispatch/internal/log"
	"github.com/firstlinehq/go-dispatch/pkg/events"
	"github.com/firstlinehq/go-dispatch/pkg/transcript"
)

// dispatchPatterns are the heuristic triggers for the action gate. Pattern
// matching free text is probabilistic: a false positive merely requests
// human approval, and a false negative does not block approval — operators
// can raise actions through other channels.
var dispatchPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bdispatch(?:ing|ed)?\b`),
	regexp.MustCompile(`(?i)\bhelp is on the way\b`),
	regexp.MustCompile(`(?i)\bsending (?:an? |the )?(?:ambulance|paramedics?|fire|police|officers?|units?|crew)\b`),
	regexp.MustCompile(`(?i)\b(?:units?|officers?|paramedics?|an ambulance|a crew) (?:are|is) (?:on (?:the|their) way|en route)\b`),
}

// Scan inspects a final agent-side utterance for dispatch intents. The first
// matching pattern creates exactly one pending action; one utterance never
// produces more than one action.
func (s *Session) Scan(u transcript.Utterance) {
	if u.Partial || u.Speaker != transcript.SpeakerAgent {
		return
	}

	matched := false
	for _, p := range dispatchPatterns {
		if p.MatchString(u.Text) {
			matched = true
			break
		}
	}
	if !matched {
		return
	}

	action := Action{
		ID:          ulid.Make().String(),
		Description: u.Text,
		Status:      ActionPending,
		CreatedAt:   time.Now(),
	}

	s.mu.Lock()
	if s.status == StatusCompleted {
		s.mu.Unlock()
		return
	}
	// No bound on pendingActions size and no expiry of stale actions over
	// very long calls; a known limitation.
	s.pending = append(s.pending, action)
	s.status = StatusAwaitingApproval
	s.mu.Unlock()

	log.Info("dispatch intent detected", "call_id", s.ID,
		"action_id", action.ID, "text", u.Text)

	s.reg.publish(func(evt *events.Event) {
		evt.Type = events.TypeApprovalRequired
		evt.ApprovalRequired = &events.ApprovalRequired{
			ActionID:    action.ID,
			Description: action.Description,
		}
	}, s.ID)
}

// Resolve applies a human decision to a pending action. Resolving an unknown
// or already-resolved action is an error, never a crash; the session returns
// to Active once no pending actions remain.
func (r *Registry) Resolve(callID, actionID string, decision Decision) error {
	s := r.Get(callID)
	if s == nil {
		return ErrUnknownSession
	}
	return s.resolve(actionID, decision)
}

func (s *Session) resolve(actionID string, decision Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.pending {
		if s.pending[i].ID == actionID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrUnknownAction
	}
	if s.pending[idx].Status != ActionPending {
		return ErrActionResolved
	}

	switch decision {
	case DecisionApproved:
		s.pending[idx].Status = ActionApproved
	default:
		s.pending[idx].Status = ActionRejected
	}

	if s.status == StatusAwaitingApproval && !s.hasPendingLocked() {
		s.status = StatusActive
	}

	log.Info("action resolved", "call_id", s.ID,
		"action_id", actionID, "decision", decision)
	return nil
}

func (s *Session) hasPendingLocked() bool {
	for i := range s.pending {
		if s.pending[i].Status == ActionPending {
			return true
		}
	}
	return false
}
