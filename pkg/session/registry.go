package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/firstlinehq/go-dispatch/internal/log"
	"github.com/firstlinehq/go-dispatch/pkg/agent"
	"github.com/firstlinehq/go-dispatch/pkg/events"
	"github.com/firstlinehq/go-dispatch/pkg/extract"
	"github.com/firstlinehq/go-dispatch/pkg/protocol"
	"github.com/firstlinehq/go-dispatch/pkg/stt"
	"github.com/firstlinehq/go-dispatch/pkg/transcript"
	"github.com/firstlinehq/go-dispatch/pkg/tts"
)

// Errors returned by registry operations.
var (
	ErrDuplicateSession = errors.New("session: duplicate session id")
	ErrUnknownSession   = errors.New("session: unknown session id")
	ErrSessionClosed    = errors.New("session: session already completed")
	ErrUnknownAction    = errors.New("session: unknown action id")
	ErrActionResolved   = errors.New("session: action already resolved")
)

// Outbound is the telephony bridge's playback surface.
type Outbound interface {
	// SendAudio forwards one synthesized audio chunk to the caller.
	// seq is session-scoped and monotonically increasing, diagnostics only.
	SendAudio(callID string, seq uint64, audio []byte) error

	// Clear tells the bridge to drop queued playback immediately (barge-in).
	Clear(callID string) error
}

// Reporter generates the final call report after teardown.
// Failures must not affect teardown; the registry calls it fire-and-forget.
type Reporter interface {
	Generate(ctx context.Context, snap Snapshot) error
}

// Config tunes the orchestration core.
type Config struct {
	// ExtractDebounce is the quiescence window after a final utterance
	// before an extraction pass runs.
	ExtractDebounce time.Duration

	// RetentionWindow is how long a completed session stays readable
	// before it is purged.
	RetentionWindow time.Duration

	// ExtractTimeout bounds a single extraction call.
	ExtractTimeout time.Duration

	// SynthesisTimeout bounds a single synthesis stream.
	SynthesisTimeout time.Duration
}

// DefaultConfig returns conservative defaults for the core.
func DefaultConfig() Config {
	return Config{
		ExtractDebounce:  400 * time.Millisecond,
		RetentionWindow:  5 * time.Minute,
		ExtractTimeout:   15 * time.Second,
		SynthesisTimeout: 30 * time.Second,
	}
}

// Deps are the external capabilities the core calls across its boundary.
type Deps struct {
	STT       stt.Provider
	Agent     agent.Provider
	TTS       tts.Provider
	Extractor extract.Extractor
	Reporter  Reporter
	Outbound  Outbound
	Events    events.Publisher
}

// Registry owns all live call sessions, keyed by call id. It is the only
// mutation point for session creation and removal.
type Registry struct {
	cfg  Config
	deps Deps

	// agentMode is the process-wide toggle, read once per Open.
	agentMode atomic.Bool

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates a session registry.
func NewRegistry(cfg Config, deps Deps) *Registry {
	if cfg.ExtractDebounce <= 0 {
		cfg.ExtractDebounce = DefaultConfig().ExtractDebounce
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = DefaultConfig().RetentionWindow
	}
	if cfg.ExtractTimeout <= 0 {
		cfg.ExtractTimeout = DefaultConfig().ExtractTimeout
	}
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = DefaultConfig().SynthesisTimeout
	}
	return &Registry{
		cfg:      cfg,
		deps:     deps,
		sessions: make(map[string]*Session),
	}
}

// SetAgentMode flips the process-wide pipeline toggle for future calls.
// Calls already in progress keep the mode they were created with.
func (r *Registry) SetAgentMode(enabled bool) {
	r.agentMode.Store(enabled)
	log.Info("agent mode changed", "enabled", enabled)
}

// AgentMode returns the current toggle value.
func (r *Registry) AgentMode() bool {
	return r.agentMode.Load()
}

// Open creates a session for a new call. The operating mode is captured from
// the process-wide toggle at this moment and is immutable thereafter.
// A second start for an already-open call id is rejected.
func (r *Registry) Open(ctx context.Context, callID, correlationID string, format protocol.AudioFormat) (*Session, error) {
	mode := ModeHumanDispatcher
	if r.agentMode.Load() {
		mode = ModeVoiceAgent
	}

	s := &Session{
		ID:            callID,
		CorrelationID: correlationID,
		Mode:          mode,
		Format:        format,
		CreatedAt:     time.Now(),
		reg:           r,
		status:        StatusActive,
		log:           &transcript.Log{},
	}

	r.mu.Lock()
	if _, exists := r.sessions[callID]; exists {
		r.mu.Unlock()
		return nil, ErrDuplicateSession
	}
	r.sessions[callID] = s
	r.mu.Unlock()

	if err := r.attach(ctx, s); err != nil {
		r.mu.Lock()
		delete(r.sessions, callID)
		r.mu.Unlock()
		return nil, err
	}

	log.Info("session opened", "call_id", callID, "mode", mode)
	r.publish(func(evt *events.Event) {
		evt.Type = events.TypeSessionStarted
		evt.SessionStarted = &events.SessionStarted{Mode: string(mode)}
	}, callID)

	return s, nil
}

// attach binds the pipeline matching the session's mode.
func (r *Registry) attach(ctx context.Context, s *Session) error {
	switch s.Mode {
	case ModeVoiceAgent:
		p, err := r.deps.Agent.Dial(ctx, s.ID)
		if err != nil {
			return err
		}
		cb := agent.Callbacks{
			OnAudioOut: func(audio []byte) { s.playAudio(audio) },
			OnTranscript: func(text string, final bool) {
				s.addCallerUtterance(text, final, 0)
			},
			OnResponse: func(text string, final bool) {
				s.addAgentUtterance(text, final)
			},
			OnError: func(err error) {
				log.Warn("agent pipeline error", "call_id", s.ID, "error", err)
			},
		}
		cb.Apply(p)
		if err := p.Start(ctx); err != nil {
			return err
		}
		s.mu.Lock()
		s.pipeline = p
		s.mu.Unlock()

	default:
		stream, err := r.deps.STT.Open(ctx, s.ID, s.Format)
		if err != nil {
			return err
		}
		stream.OnResult(func(res stt.Result) {
			s.addCallerUtterance(res.Text, res.Final, res.Confidence)
		})
		stream.OnError(func(err error) {
			log.Warn("stt stream error", "call_id", s.ID, "error", err)
		})
		s.mu.Lock()
		s.sttStream = stream
		s.mu.Unlock()
	}
	return nil
}

// Get returns the session for a call id, or nil.
func (r *Registry) Get(callID string) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[callID]
}

// Count returns the number of sessions currently held, completed-but-retained
// sessions included.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns snapshots of all held sessions.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// Close marks the session Completed, freezes a snapshot for reporting, and
// schedules deferred removal so late observers can still read final state.
// Closing an unknown or already-completed session is a handled error.
func (r *Registry) Close(callID string) (Snapshot, error) {
	s := r.Get(callID)
	if s == nil {
		return Snapshot{}, ErrUnknownSession
	}

	s.mu.Lock()
	if s.status == StatusCompleted {
		s.mu.Unlock()
		return Snapshot{}, ErrSessionClosed
	}
	s.status = StatusCompleted
	s.endedAt = time.Now()
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	cancel := s.synthCancel
	s.synthCancel = nil
	s.speaking = false
	stream := s.sttStream
	pipeline := s.pipeline
	snap := s.snapshotLocked()
	s.mu.Unlock()

	// Teardown shares the barge-in cancellation path.
	if cancel != nil {
		cancel()
	}
	if pipeline != nil {
		if err := pipeline.Stop(); err != nil {
			log.Warn("pipeline stop failed", "call_id", callID, "error", err)
		}
	}
	if stream != nil {
		if err := stream.Close(); err != nil {
			log.Warn("stt close failed", "call_id", callID, "error", err)
		}
	}

	log.Info("session closed", "call_id", callID,
		"utterances", len(snap.Transcript), "urgency", snap.Urgency)
	r.publish(func(evt *events.Event) {
		evt.Type = events.TypeSessionEnded
		evt.SessionEnded = &events.SessionEnded{Status: string(StatusCompleted)}
	}, callID)

	// Report generation is fire-and-forget: its failure must not affect
	// call teardown.
	if r.deps.Reporter != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			if err := r.deps.Reporter.Generate(ctx, snap); err != nil {
				log.Warn("report generation failed", "call_id", callID, "error", err)
			}
		}()
	}

	time.AfterFunc(r.cfg.RetentionWindow, func() { r.purge(callID) })
	return snap, nil
}

// purge removes a completed session from the registry.
func (r *Registry) purge(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[callID]; ok && s.Status() == StatusCompleted {
		delete(r.sessions, callID)
		log.Debug("session purged", "call_id", callID)
	}
}

// Drain closes every non-completed session. Used on server shutdown.
func (r *Registry) Drain() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id, s := range r.sessions {
		if s.Status() != StatusCompleted {
			ids = append(ids, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range ids {
		if _, err := r.Close(id); err != nil && !errors.Is(err, ErrSessionClosed) {
			log.Warn("drain close failed", "call_id", id, "error", err)
		}
	}
}

// publish emits a fan-out event if a publisher is wired.
func (r *Registry) publish(fill func(evt *events.Event), callID string) {
	if r.deps.Events == nil {
		return
	}
	evt := events.New("", callID)
	fill(&evt)
	r.deps.Events.Publish(evt)
}
