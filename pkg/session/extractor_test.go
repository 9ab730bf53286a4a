package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/firstlinehq/go-dispatch/pkg/events"
	"github.com/firstlinehq/go-dispatch/pkg/extract"
	"github.com/firstlinehq/go-dispatch/pkg/incident"
)

func TestDebounceCoalescesRapidFinals(t *testing.T) {
	env := newTestEnv(t)

	if _, err := env.reg.Open(context.Background(), "call-1", "", testFormat); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	stream := env.sttMock.Streams()[0]

	// Three finals inside the debounce window collapse into one pass.
	stream.Emit(sttResult("there's a fire", true))
	stream.Emit(sttResult("at 123 Oak Street", true))
	stream.Emit(sttResult("please hurry", true))

	waitFor(t, func() bool { return env.extractor.CallCount() >= 1 })
	time.Sleep(100 * time.Millisecond)

	if n := env.extractor.CallCount(); n != 1 {
		t.Fatalf("extraction count = %d, want 1", n)
	}

	// The single pass sees the full transcript, latest utterance included.
	req := env.extractor.Requests()[0]
	if !strings.Contains(req.Transcript, "please hurry") {
		t.Errorf("transcript missing last utterance: %q", req.Transcript)
	}
	if !strings.Contains(req.Transcript, "there's a fire") {
		t.Errorf("transcript missing first utterance: %q", req.Transcript)
	}
}

func TestPartialsDoNotTriggerExtraction(t *testing.T) {
	env := newTestEnv(t)

	env.reg.Open(context.Background(), "call-1", "", testFormat)
	stream := env.sttMock.Streams()[0]

	stream.Emit(sttResult("there's a", false))
	stream.Emit(sttResult("there's a fi", false))

	time.Sleep(100 * time.Millisecond)
	if n := env.extractor.CallCount(); n != 0 {
		t.Errorf("extraction count = %d, want 0 for partials", n)
	}
}

func TestAtMostOneExtractionInFlight(t *testing.T) {
	env := newTestEnv(t)

	started := make(chan struct{}, 2)
	release := make(chan struct{})
	env.extractor.ExtractFunc = func(ctx context.Context, req *extract.Request) (*incident.Update, error) {
		started <- struct{}{}
		<-release
		return &incident.Update{}, nil
	}

	env.reg.Open(context.Background(), "call-1", "", testFormat)
	stream := env.sttMock.Streams()[0]

	stream.Emit(sttResult("first utterance", true))
	<-started // extraction one is now in flight

	// Finals landing mid-extraction must not start a second pass yet.
	stream.Emit(sttResult("second utterance", true))
	stream.Emit(sttResult("third utterance", true))
	time.Sleep(100 * time.Millisecond)
	if n := env.extractor.CallCount(); n != 1 {
		t.Fatalf("extraction count while in flight = %d, want 1", n)
	}

	// Completion runs exactly one follow-up pass over the newer transcript.
	close(release)
	<-started
	waitFor(t, func() bool { return env.extractor.CallCount() == 2 })
	time.Sleep(100 * time.Millisecond)
	if n := env.extractor.CallCount(); n != 2 {
		t.Fatalf("extraction count after release = %d, want 2", n)
	}

	req := env.extractor.Requests()[1]
	if !strings.Contains(req.Transcript, "third utterance") {
		t.Errorf("follow-up pass should see the newer transcript: %q", req.Transcript)
	}
}

func TestExtractionMergesAndPublishes(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.ExtractFunc = func(ctx context.Context, req *extract.Request) (*incident.Update, error) {
		return &incident.Update{
			Location:      "123 Oak Street",
			Type:          "Fire",
			Urgency:       incident.UrgencyCritical,
			MissingFields: []string{"injuries"},
		}, nil
	}

	s, err := env.reg.Open(context.Background(), "call-1", "", testFormat)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	env.sttMock.Streams()[0].Emit(sttResult("fire at 123 Oak Street", true))

	waitFor(t, func() bool {
		return len(env.recorder.byType(events.TypeIncidentUpdated)) >= 1
	})

	inc, urg := s.Incident()
	if inc.Location != "123 Oak Street" || inc.Type != "Fire" {
		t.Errorf("incident = %+v", inc)
	}
	if urg != incident.UrgencyCritical {
		t.Errorf("urgency = %q, want critical", urg)
	}

	evt := env.recorder.byType(events.TypeIncidentUpdated)[0]
	if evt.IncidentUpdated == nil {
		t.Fatal("incident_updated payload missing")
	}
	if evt.IncidentUpdated.Incident.Location != "123 Oak Street" {
		t.Errorf("event incident = %+v", evt.IncidentUpdated.Incident)
	}
	if len(evt.IncidentUpdated.MissingFields) != 1 {
		t.Errorf("missing fields = %v", evt.IncidentUpdated.MissingFields)
	}
}

func TestExtractionFailureLeavesStateUntouched(t *testing.T) {
	env := newTestEnv(t)

	fail := true
	env.extractor.ExtractFunc = func(ctx context.Context, req *extract.Request) (*incident.Update, error) {
		if fail {
			return nil, errors.New("model unavailable")
		}
		return &incident.Update{Location: "123 Oak Street"}, nil
	}

	s, err := env.reg.Open(context.Background(), "call-1", "", testFormat)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	stream := env.sttMock.Streams()[0]

	stream.Emit(sttResult("fire at 123 Oak Street", true))
	waitFor(t, func() bool { return env.extractor.CallCount() >= 1 })

	inc, _ := s.Incident()
	if inc.Location != "" {
		t.Errorf("failed extraction mutated incident: %+v", inc)
	}
	if s.Transcript()[0].Text != "fire at 123 Oak Street" {
		t.Error("transcript must survive extraction failure")
	}

	// The next final utterance retries cleanly.
	fail = false
	stream.Emit(sttResult("it's spreading", true))
	waitFor(t, func() bool {
		inc, _ := s.Incident()
		return inc.Location == "123 Oak Street"
	})
}

func TestQuestionSpokenOnlyInAgentMode(t *testing.T) {
	env := newTestEnv(t)
	env.reg.SetAgentMode(true)
	env.extractor.ExtractFunc = func(ctx context.Context, req *extract.Request) (*incident.Update, error) {
		return &incident.Update{
			Type:         "Fire",
			NextQuestion: "Is anyone hurt?",
		}, nil
	}

	if _, err := env.reg.Open(context.Background(), "call-1", "", testFormat); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	env.agentMock.Pipelines()[0].EmitTranscript("there's a fire", true)

	// The synthesized question flows out to the bridge.
	waitFor(t, func() bool { return env.outbound.frameCount() > 0 })
	if n := env.ttsMock.CallCount("Stream"); n != 1 {
		t.Errorf("synthesis count = %d, want 1", n)
	}
}

func TestQuestionNotSpokenInHumanMode(t *testing.T) {
	env := newTestEnv(t)
	env.extractor.ExtractFunc = func(ctx context.Context, req *extract.Request) (*incident.Update, error) {
		return &incident.Update{NextQuestion: "Is anyone hurt?"}, nil
	}

	env.reg.Open(context.Background(), "call-1", "", testFormat)
	env.sttMock.Streams()[0].Emit(sttResult("there's a fire", true))

	waitFor(t, func() bool {
		return len(env.recorder.byType(events.TypeIncidentUpdated)) >= 1
	})

	if n := env.ttsMock.CallCount("Stream"); n != 0 {
		t.Errorf("human mode must not synthesize, got %d calls", n)
	}
	// The question still reaches observers as a suggestion.
	evt := env.recorder.byType(events.TypeIncidentUpdated)[0]
	if evt.IncidentUpdated.NextQuestion != "Is anyone hurt?" {
		t.Errorf("event question = %q", evt.IncidentUpdated.NextQuestion)
	}
}

func TestRepeatedQuestionNotResynthesized(t *testing.T) {
	env := newTestEnv(t)
	env.reg.SetAgentMode(true)
	env.extractor.ExtractFunc = func(ctx context.Context, req *extract.Request) (*incident.Update, error) {
		return &incident.Update{Type: "Fire", NextQuestion: "Is anyone hurt?"}, nil
	}

	env.reg.Open(context.Background(), "call-1", "", testFormat)
	p := env.agentMock.Pipelines()[0]

	p.EmitTranscript("there's a fire", true)
	waitFor(t, func() bool { return env.ttsMock.CallCount("Stream") == 1 })

	p.EmitTranscript("a big fire", true)
	waitFor(t, func() bool { return env.extractor.CallCount() >= 2 })
	time.Sleep(100 * time.Millisecond)

	if n := env.ttsMock.CallCount("Stream"); n != 1 {
		t.Errorf("synthesis count = %d, want 1 for an unchanged question", n)
	}
}
