package incident

import "testing"

func TestParseUrgency(t *testing.T) {
	tests := []struct {
		in   string
		want Urgency
	}{
		{"low", UrgencyLow},
		{"LOW", UrgencyLow},
		{"medium", UrgencyMedium},
		{"moderate", UrgencyMedium},
		{"critical", UrgencyCritical},
		{"high", UrgencyCritical},
		{" Critical ", UrgencyCritical},
		{"urgent", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ParseUrgency(tt.in); got != tt.want {
			t.Errorf("ParseUrgency(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMergeFillsUnknownFields(t *testing.T) {
	inc := Incident{}
	changed := Merge(&inc, &Update{
		Location: "123 Oak Street",
		Type:     "Fire",
	})

	if !changed {
		t.Error("expected Merge to report a change")
	}
	if inc.Location != "123 Oak Street" {
		t.Errorf("location = %q", inc.Location)
	}
	if inc.Type != "Fire" {
		t.Errorf("type = %q", inc.Type)
	}
}

func TestMergeNeverResetsKnownFields(t *testing.T) {
	inc := Incident{Location: "123 Oak Street", Type: "Fire"}

	// A sparse update must not erase what is already known.
	changed := Merge(&inc, &Update{Injuries: "two people trapped"})

	if !changed {
		t.Error("expected Merge to report a change")
	}
	if inc.Location != "123 Oak Street" {
		t.Errorf("location was reset: %q", inc.Location)
	}
	if inc.Type != "Fire" {
		t.Errorf("type was reset: %q", inc.Type)
	}
	if inc.Injuries != "two people trapped" {
		t.Errorf("injuries = %q", inc.Injuries)
	}
}

func TestMergeRefinesKnownFields(t *testing.T) {
	inc := Incident{Location: "Oak Street"}
	changed := Merge(&inc, &Update{Location: "123 Oak Street, apt 4B"})

	if !changed {
		t.Error("expected Merge to report a change")
	}
	if inc.Location != "123 Oak Street, apt 4B" {
		t.Errorf("location = %q", inc.Location)
	}
}

func TestMergeNoChange(t *testing.T) {
	inc := Incident{Location: "123 Oak Street"}

	if Merge(&inc, &Update{}) {
		t.Error("empty update should not report a change")
	}
	if Merge(&inc, &Update{Location: "123 Oak Street"}) {
		t.Error("identical value should not report a change")
	}
}

func TestUpdateEmpty(t *testing.T) {
	u := Update{}
	if !u.Empty() {
		t.Error("zero update should be empty")
	}

	u = Update{MissingFields: []string{"location"}, NextQuestion: "Where are you?"}
	if !u.Empty() {
		t.Error("advice-only update carries no field information")
	}

	u = Update{Urgency: UrgencyCritical}
	if u.Empty() {
		t.Error("urgency counts as field information")
	}
}

func TestKnown(t *testing.T) {
	inc := Incident{Location: "123 Oak Street", Injuries: "none"}
	known := inc.Known()

	if len(known) != 2 {
		t.Fatalf("expected 2 known fields, got %d: %v", len(known), known)
	}
	if known["location"] != "123 Oak Street" {
		t.Errorf("location = %q", known["location"])
	}
	if known["injuries"] != "none" {
		t.Errorf("injuries = %q", known["injuries"])
	}
	if _, ok := known["type"]; ok {
		t.Error("unknown field should not appear in Known()")
	}
}
