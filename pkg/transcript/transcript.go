// Package transcript provides the ordered, append-only utterance log for a call.
package transcript

import (
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Speaker identifies which side of the call produced an utterance.
type Speaker string

const (
	SpeakerCaller Speaker = "caller"
	// SpeakerAgent covers both the human dispatcher and the voice agent.
	SpeakerAgent Speaker = "agent"
)

// Utterance is one recognized fragment of speech.
// A final utterance is immutable; a partial one may be superseded by a later
// final utterance but keeps its position in the log (ordering is by arrival).
type Utterance struct {
	ID         string    `json:"id"`
	Speaker    Speaker   `json:"speaker"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	Partial    bool      `json:"partial"`
	Confidence float64   `json:"confidence,omitempty"`
}

// New creates an utterance with a fresh creation-time-ordered id.
func New(speaker Speaker, text string, partial bool) Utterance {
	return Utterance{
		ID:        ulid.Make().String(),
		Speaker:   speaker,
		Text:      text,
		CreatedAt: time.Now(),
		Partial:   partial,
	}
}

// Log is an arrival-ordered, append-only sequence of utterances.
// Safe for concurrent use.
type Log struct {
	mu         sync.RWMutex
	utterances []Utterance
}

// Append adds an utterance to the end of the log.
func (l *Log) Append(u Utterance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.utterances = append(l.utterances, u)
}

// Len returns the number of utterances in the log.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.utterances)
}

// Last returns the most recent utterance, or false if the log is empty.
func (l *Log) Last() (Utterance, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.utterances) == 0 {
		return Utterance{}, false
	}
	return l.utterances[len(l.utterances)-1], true
}

// Snapshot returns a copy of the log contents.
func (l *Log) Snapshot() []Utterance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Utterance, len(l.utterances))
	copy(out, l.utterances)
	return out
}

// Render formats the final utterances as "speaker: text" lines for
// prompt/context building. Partials are skipped.
func (l *Log) Render() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var b strings.Builder
	for _, u := range l.utterances {
		if u.Partial {
			continue
		}
		b.WriteString(string(u.Speaker))
		b.WriteString(": ")
		b.WriteString(u.Text)
		b.WriteString("\n")
	}
	return b.String()
}
