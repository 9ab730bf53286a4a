package session

import (
	"context"
	"time"

	"github.com/firstlinehq/go-dispatch/internal/log"
	"github.com/firstlinehq/go-dispatch/pkg/events"
	"github.com/firstlinehq/go-dispatch/pkg/extract"
	"github.com/firstlinehq/go-dispatch/pkg/incident"
	"github.com/firstlinehq/go-dispatch/pkg/transcript"
)

// onFinalUtterance feeds the extraction scheduler. Rapid successive finals
// within the debounce window coalesce into a single extraction pass over the
// latest transcript; only one extraction is ever in flight per session.
func (s *Session) onFinalUtterance(u transcript.Utterance) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusCompleted {
		return
	}
	if u.ID == s.lastExtractionKey {
		return
	}
	s.lastExtractionKey = u.ID

	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(s.reg.cfg.ExtractDebounce, s.triggerExtraction)
}

// triggerExtraction starts an extraction pass, or records that one should
// run again as soon as the in-flight pass completes.
func (s *Session) triggerExtraction() {
	s.mu.Lock()
	if s.status == StatusCompleted {
		s.mu.Unlock()
		return
	}
	if s.extracting {
		s.extractQueued = true
		s.mu.Unlock()
		return
	}
	s.extracting = true
	req := &extract.Request{
		CallID:     s.ID,
		Transcript: s.log.Render(),
		Incident:   s.inc,
		Urgency:    s.urgency,
	}
	s.mu.Unlock()

	go s.runExtraction(req)
}

// runExtraction executes one extraction call off the relay path and merges
// the result back into session state. Failures are logged and swallowed:
// the transcript is untouched and the next final utterance retries.
func (s *Session) runExtraction(req *extract.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), s.reg.cfg.ExtractTimeout)
	update, err := s.reg.deps.Extractor.Extract(ctx, req)
	cancel()

	s.mu.Lock()
	s.extracting = false
	queued := s.extractQueued
	s.extractQueued = false

	if s.status == StatusCompleted {
		s.mu.Unlock()
		return
	}
	if err != nil {
		s.mu.Unlock()
		log.Warn("extraction failed", "call_id", s.ID, "error", err)
		if queued {
			s.triggerExtraction()
		}
		return
	}

	incident.Merge(&s.inc, update)
	if update.Urgency != "" {
		s.urgency = update.Urgency
	}

	question := update.NextQuestion
	speakIt := question != "" && question != s.lastQuestion && s.Mode == ModeVoiceAgent
	if question != "" && question != s.lastQuestion {
		s.lastQuestion = question
	}

	inc := s.inc
	urg := s.urgency
	s.mu.Unlock()

	log.Debug("incident merged", "call_id", s.ID, "urgency", urg)

	if speakIt {
		s.speak(question)
	}

	// The fan-out event goes out whether or not synthesis happened.
	s.reg.publish(func(evt *events.Event) {
		evt.Type = events.TypeIncidentUpdated
		evt.IncidentUpdated = &events.IncidentUpdated{
			Incident:      inc,
			Urgency:       urg,
			MissingFields: update.MissingFields,
			NextQuestion:  question,
		}
	}, s.ID)

	if queued {
		s.triggerExtraction()
	}
}
