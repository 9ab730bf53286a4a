package transcript

import (
	"sync"
	"testing"
)

func TestAppendAndLast(t *testing.T) {
	var l Log

	if _, ok := l.Last(); ok {
		t.Error("Last() on empty log should report false")
	}

	l.Append(New(SpeakerCaller, "there's a fire", false))
	l.Append(New(SpeakerAgent, "what's the address?", false))

	if l.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", l.Len())
	}

	last, ok := l.Last()
	if !ok {
		t.Fatal("Last() should report true")
	}
	if last.Speaker != SpeakerAgent || last.Text != "what's the address?" {
		t.Errorf("Last() = %+v", last)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	var l Log
	l.Append(New(SpeakerCaller, "hello", false))

	snap := l.Snapshot()
	snap[0].Text = "mutated"

	got, _ := l.Last()
	if got.Text != "hello" {
		t.Errorf("snapshot mutation leaked into log: %q", got.Text)
	}
}

func TestRenderSkipsPartials(t *testing.T) {
	var l Log
	l.Append(New(SpeakerCaller, "there's a", true))
	l.Append(New(SpeakerCaller, "there's a fire on Oak Street", false))
	l.Append(New(SpeakerAgent, "is anyone hurt?", false))

	want := "caller: there's a fire on Oak Street\nagent: is anyone hurt?\n"
	if got := l.Render(); got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestIDsAreOrderedAndUnique(t *testing.T) {
	a := New(SpeakerCaller, "first", false)
	b := New(SpeakerCaller, "second", false)

	if a.ID == b.ID {
		t.Error("consecutive utterances should get distinct ids")
	}
	if a.ID > b.ID {
		t.Errorf("ids should sort by creation: %s > %s", a.ID, b.ID)
	}
}

func TestConcurrentAppend(t *testing.T) {
	var l Log
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.Append(New(SpeakerCaller, "frame", false))
			}
		}()
	}
	wg.Wait()

	if l.Len() != 1000 {
		t.Errorf("Len() = %d, want 1000", l.Len())
	}
}
