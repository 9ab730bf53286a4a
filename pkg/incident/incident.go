// Package incident defines the structured record extracted from an
// emergency call and the merge semantics that keep it monotonic.
package incident

import "strings"

// Urgency is the triage level of a call.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyCritical Urgency = "critical"
)

// ParseUrgency normalizes a free-form urgency string.
// Unknown values map to the empty Urgency.
func ParseUrgency(s string) Urgency {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return UrgencyLow
	case "medium", "moderate":
		return UrgencyMedium
	case "critical", "high":
		return UrgencyCritical
	default:
		return ""
	}
}

// Incident is the structured state of one call. Empty string means unknown.
// Fields only move unknown→known or known→known; Merge enforces that.
type Incident struct {
	Location    string `json:"location,omitempty"`
	Type        string `json:"type,omitempty"` // "Fire", "Medical", "Crime", ...
	Injuries    string `json:"injuries,omitempty"`
	ThreatLevel string `json:"threat_level,omitempty"`
	PeopleCount string `json:"people_count,omitempty"`
	CallerRole  string `json:"caller_role,omitempty"` // "victim", "witness", "bystander"
}

// Update is a sparse set of field values produced by one extraction pass.
// Empty fields mean "no new information", never "forget".
type Update struct {
	Location    string `json:"location,omitempty"`
	Type        string `json:"type,omitempty"`
	Injuries    string `json:"injuries,omitempty"`
	ThreatLevel string `json:"threat_level,omitempty"`
	PeopleCount string `json:"people_count,omitempty"`
	CallerRole  string `json:"caller_role,omitempty"`

	// Urgency is applied only when non-empty.
	Urgency Urgency `json:"urgency,omitempty"`

	// MissingFields lists what the extractor still wants to know.
	MissingFields []string `json:"missing_fields,omitempty"`

	// NextQuestion is a suggested follow-up for the caller, if any.
	NextQuestion string `json:"next_question,omitempty"`
}

// Empty reports whether the update carries no field information at all.
func (u *Update) Empty() bool {
	return u.Location == "" && u.Type == "" && u.Injuries == "" &&
		u.ThreatLevel == "" && u.PeopleCount == "" && u.CallerRole == "" &&
		u.Urgency == ""
}

// Merge applies an update to an incident. A known field is never reset to
// unknown; a non-empty update value always wins. Returns true if any field
// changed.
func Merge(inc *Incident, u *Update) bool {
	changed := false
	changed = mergeField(&inc.Location, u.Location) || changed
	changed = mergeField(&inc.Type, u.Type) || changed
	changed = mergeField(&inc.Injuries, u.Injuries) || changed
	changed = mergeField(&inc.ThreatLevel, u.ThreatLevel) || changed
	changed = mergeField(&inc.PeopleCount, u.PeopleCount) || changed
	changed = mergeField(&inc.CallerRole, u.CallerRole) || changed
	return changed
}

func mergeField(dst *string, src string) bool {
	if src == "" || src == *dst {
		return false
	}
	*dst = src
	return true
}

// Known returns the fields that currently hold a value, keyed by field name.
func (i *Incident) Known() map[string]string {
	out := make(map[string]string)
	for k, v := range map[string]string{
		"location":     i.Location,
		"type":         i.Type,
		"injuries":     i.Injuries,
		"threat_level": i.ThreatLevel,
		"people_count": i.PeopleCount,
		"caller_role":  i.CallerRole,
	} {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
