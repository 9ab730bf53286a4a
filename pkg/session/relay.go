package session

import (
	"context"

	"github.com/firstlinehq/go-dispatch/internal/log"
	"github.com/firstlinehq/go-dispatch/pkg/events"
	"github.com/firstlinehq/go-dispatch/pkg/transcript"
)

// HandleMedia routes one inbound caller audio frame. This is the
// latency-critical path: it never waits on extraction, persistence, or
// reporting. Frames for unknown call ids are dropped with a diagnostic.
func (r *Registry) HandleMedia(callID string, audio []byte) error {
	s := r.Get(callID)
	if s == nil {
		log.Debug("dropping frame for unknown session", "call_id", callID)
		return ErrUnknownSession
	}
	return s.handleMedia(audio)
}

// handleMedia performs the inline barge-in check and forwards the frame to
// the pipeline bound at session creation.
func (s *Session) handleMedia(audio []byte) error {
	s.mu.Lock()
	if s.status == StatusCompleted {
		s.mu.Unlock()
		log.Debug("dropping frame for completed session", "call_id", s.ID)
		return ErrSessionClosed
	}

	// Caller audio while synthesized speech is playing is a barge-in.
	// The check runs on every frame, not on a timer, so the clear signal
	// goes out within one frame period.
	interrupt := s.bargeInLocked()

	stream := s.sttStream
	pipeline := s.pipeline
	s.mu.Unlock()

	if interrupt != nil {
		interrupt()
	}

	// Pure dispatch on the bound mode.
	if pipeline != nil {
		return pipeline.SendAudio(audio)
	}
	if stream != nil {
		return stream.Push(audio)
	}
	return ErrSessionClosed
}

// bargeInLocked stops in-flight playback if the session is speaking.
// It must be called with s.mu held; the returned func (possibly nil) runs
// the I/O side of the interrupt after the lock is released.
func (s *Session) bargeInLocked() func() {
	if !s.speaking {
		return nil
	}
	s.speaking = false
	cancel := s.synthCancel
	s.synthCancel = nil
	pipeline := s.pipeline

	return func() {
		if err := s.reg.deps.Outbound.Clear(s.ID); err != nil {
			log.Warn("clear playback failed", "call_id", s.ID, "error", err)
		}
		if cancel != nil {
			cancel()
		}
		if pipeline != nil {
			if err := pipeline.Interrupt(); err != nil {
				log.Warn("pipeline interrupt failed", "call_id", s.ID, "error", err)
			}
		}
		log.Debug("barge-in", "call_id", s.ID)
	}
}

// playAudio forwards one synthesized audio chunk to the telephony bridge,
// tagged with the session-scoped sequence number.
func (s *Session) playAudio(audio []byte) {
	s.mu.Lock()
	if s.status == StatusCompleted {
		s.mu.Unlock()
		return
	}
	s.speaking = true
	s.outSeq++
	seq := s.outSeq
	s.mu.Unlock()

	if err := s.reg.deps.Outbound.SendAudio(s.ID, seq, audio); err != nil {
		log.Warn("outbound audio failed", "call_id", s.ID, "seq", seq, "error", err)
	}
}

// addCallerUtterance records recognized caller speech. Any recognition
// signal during playback — partial included — triggers barge-in. Final
// utterances feed the extraction scheduler.
func (s *Session) addCallerUtterance(text string, final bool, confidence float64) {
	s.mu.Lock()
	if s.status == StatusCompleted {
		s.mu.Unlock()
		return
	}
	interrupt := s.bargeInLocked()
	s.mu.Unlock()

	if interrupt != nil {
		interrupt()
	}
	if text == "" {
		return
	}

	u := transcript.New(transcript.SpeakerCaller, text, !final)
	u.Confidence = confidence
	s.log.Append(u)
	s.publishUtterance(u)

	if final {
		s.onFinalUtterance(u)
	}
}

// addAgentUtterance records agent/dispatcher speech. Final utterances are
// scanned for dispatch intents by the action gate.
func (s *Session) addAgentUtterance(text string, final bool) {
	if text == "" {
		return
	}
	s.mu.Lock()
	if s.status == StatusCompleted {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	u := transcript.New(transcript.SpeakerAgent, text, !final)
	s.log.Append(u)
	s.publishUtterance(u)

	if final {
		s.Scan(u)
	}
}

func (s *Session) publishUtterance(u transcript.Utterance) {
	s.reg.publish(func(evt *events.Event) {
		evt.Type = events.TypeTranscriptAppended
		evt.TranscriptAppended = &u
	}, s.ID)
}

// speak synthesizes text to the caller with a cancellable stream.
// A new call supersedes any synthesis still in flight.
func (s *Session) speak(text string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.reg.cfg.SynthesisTimeout)

	s.mu.Lock()
	if s.status == StatusCompleted {
		s.mu.Unlock()
		cancel()
		return
	}
	if prev := s.synthCancel; prev != nil {
		prev()
	}
	s.synthCancel = cancel
	s.synthGen++
	gen := s.synthGen
	s.mu.Unlock()

	go s.speakLoop(ctx, cancel, gen, text)
}

func (s *Session) speakLoop(ctx context.Context, cancel context.CancelFunc, gen uint64, text string) {
	defer func() {
		// Only clear state if this synthesis is still the current one;
		// a barge-in or a newer speak call may have replaced it.
		s.mu.Lock()
		if s.synthGen == gen {
			s.synthCancel = nil
			s.speaking = false
		}
		s.mu.Unlock()
		cancel()
	}()

	stream, err := s.reg.deps.TTS.Stream(ctx, text)
	if err != nil {
		log.Warn("synthesis failed", "call_id", s.ID, "error", err)
		return
	}
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		chunk, err := stream.Read()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("synthesis stream error", "call_id", s.ID, "error", err)
			}
			return
		}
		if chunk == nil {
			return
		}
		// A barge-in may land while Read is blocked; never forward a
		// chunk from a cancelled synthesis.
		if ctx.Err() != nil {
			return
		}
		s.playAudio(chunk)
	}
}
