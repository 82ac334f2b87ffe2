// Package domain holds the pure rules of the stage engine: lead status
// transitions, attribute bounds and the enums shared by every layer.
package domain

// LeadStatus is the commercial outcome of a lead.
type LeadStatus string

const (
	StatusOpen LeadStatus = "OPEN"
	StatusWon  LeadStatus = "WON"
	StatusLost LeadStatus = "LOST"
)

var allowedTransitions = map[LeadStatus]map[LeadStatus]struct{}{
	StatusOpen: {
		StatusWon:  {},
		StatusLost: {},
	},
}

// CanTransition reports whether a lead may go from one status to another.
// WON and LOST are terminal.
func CanTransition(from, to LeadStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// IsTerminal reports whether no further transitions or moves are allowed.
func (s LeadStatus) IsTerminal() bool {
	return s == StatusWon || s == StatusLost
}

// IsValid reports whether s is a known status.
func (s LeadStatus) IsValid() bool {
	switch s {
	case StatusOpen, StatusWon, StatusLost:
		return true
	}
	return false
}

// ParseLeadStatus returns the status for a raw string, or false when unknown.
func ParseLeadStatus(raw string) (LeadStatus, bool) {
	s := LeadStatus(raw)
	return s, s.IsValid()
}
