package engine

import "slices"

func NewEmptyState() State {
	return State{}
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

func DerivePhase(s State) Phase {
	if s.Winner != nil {
		return PhaseDone
	} else if s.Vote != nil {
		return PhaseVoting
	}
	return PhaseSetup
}

// Equal reports structural equality. Nil and empty Entries or Tally compare
// equal, as do absent counts and zero counts.
func Equal(a, b State) bool {
	if !slices.Equal(a.Entries, b.Entries) {
		return false
	}
	if (a.Winner == nil) != (b.Winner == nil) {
		return false
	}
	if a.Winner != nil && *a.Winner != *b.Winner {
		return false
	}
	if (a.Vote == nil) != (b.Vote == nil) {
		return false
	}
	return a.Vote == nil || a.Vote.Equal(*b.Vote)
}

func (r Round) Equal(o Round) bool {
	if r.Pair != o.Pair {
		return false
	}
	for e, n := range r.Tally {
		if o.Tally[e] != n {
			return false
		}
	}
	for e, n := range o.Tally {
		if r.Tally[e] != n {
			return false
		}
	}
	return true
}
