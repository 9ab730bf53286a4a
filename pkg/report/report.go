// Package report generates the final after-call report: an LLM-written
// summary combined with the frozen session snapshot, written to disk.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	"github.com/firstlinehq/go-dispatch/pkg/session"
)

const summarySystemPrompt = `You write concise after-call reports for emergency dispatch. Given the call transcript and the structured incident record, return a JSON object with: summary (3-5 sentences), outcome (one line), and follow_ups (array of recommended follow-up items).`

// ErrNoDir is returned when the output directory is not configured.
var ErrNoDir = errors.New("report: output directory required")

// Chat is the completion capability the generator calls.
// *extract.Client satisfies it.
type Chat interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Report is the persisted after-call record.
type Report struct {
	CallID      string           `json:"call_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Summary     string           `json:"summary,omitempty"`
	Outcome     string           `json:"outcome,omitempty"`
	FollowUps   []string         `json:"follow_ups,omitempty"`
	Snapshot    session.Snapshot `json:"snapshot"`
}

// Generator writes one report per completed call.
type Generator struct {
	chat   Chat
	dir    string
	logger *slog.Logger
}

// NewGenerator creates a report generator writing into dir.
// chat may be nil; reports are then written without a summary.
func NewGenerator(chat Chat, dir string, logger *slog.Logger) (*Generator, error) {
	if dir == "" {
		return nil, ErrNoDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("report: create dir: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		chat:   chat,
		dir:    dir,
		logger: logger.With("component", "report"),
	}, nil
}

// Generate builds and persists the report for a completed call.
func (g *Generator) Generate(ctx context.Context, snap session.Snapshot) error {
	rep := Report{
		CallID:      snap.ID,
		GeneratedAt: time.Now(),
		Snapshot:    snap,
	}

	if g.chat != nil {
		if err := g.summarize(ctx, snap, &rep); err != nil {
			// A report without a summary is still a report.
			g.logger.Warn("summary failed", "call_id", snap.ID, "error", err)
		}
	}

	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}

	path := filepath.Join(g.dir, snap.ID+".json")
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}

	g.logger.Info("report written", "call_id", snap.ID, "path", path)
	return nil
}

// summarize asks the LLM for the narrative parts of the report.
func (g *Generator) summarize(ctx context.Context, snap session.Snapshot, rep *Report) error {
	var transcript bytes.Buffer
	for _, u := range snap.Transcript {
		if u.Partial {
			continue
		}
		fmt.Fprintf(&transcript, "%s: %s\n", u.Speaker, u.Text)
	}

	inc, _ := json.Marshal(snap.Incident)
	user := fmt.Sprintf("Transcript:\n%s\nIncident: %s\nUrgency: %s",
		transcript.String(), inc, snap.Urgency)

	content, err := g.chat.Complete(ctx, summarySystemPrompt, user)
	if err != nil {
		return err
	}

	var parsed struct {
		Summary   string   `json:"summary"`
		Outcome   string   `json:"outcome"`
		FollowUps []string `json:"follow_ups"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return fmt.Errorf("report: parse summary: %w", err)
	}

	rep.Summary = parsed.Summary
	rep.Outcome = parsed.Outcome
	rep.FollowUps = parsed.FollowUps
	return nil
}

// Verify Generator implements session.Reporter at compile time.
var _ session.Reporter = (*Generator)(nil)
