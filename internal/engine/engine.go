package engine

import (
	"errors"
	"fmt"
)

var ErrInvalidVote = errors.New("invalid vote")
var ErrInvalidStateTransition = errors.New("invalid state transition")
var ErrNoActiveRound = fmt.Errorf("%w: no active round", ErrInvalidVote)
var ErrTournamentStarted = errors.New("tournament already started")
var ErrNoEntries = errors.New("no entries")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseSetup  Phase = "setup"
	PhaseVoting Phase = "voting"
	PhaseDone   Phase = "done"
)

type CommandType string

const (
	CmdSetEntries CommandType = "SetEntries"
	CmdVote       CommandType = "Vote"
	CmdNext       CommandType = "Next"
)

/*
	CmdSetEntries -> EvtEntriesSet
	CmdVote       -> EvtVoteCast
	CmdNext       -> [EvtRoundResolved] -> EvtRoundStarted | EvtWinnerDeclared

	EvtRoundResolved is only emitted when a round was active. Replaying the
	events through Reduce only needs EvtEntriesSet, EvtVoteCast and the
	round-closing events; the payload of the latter is informational.
*/

type Command struct {
	Type    CommandType
	Entries []Entry
	Entry   Entry
}

type EventType string

const (
	EvtEntriesSet     EventType = "EntriesSet"
	EvtVoteCast       EventType = "VoteCast"
	EvtRoundResolved  EventType = "RoundResolved"
	EvtRoundStarted   EventType = "RoundStarted"
	EvtWinnerDeclared EventType = "WinnerDeclared"
)

type Event struct {
	Type    EventType `json:"type"`
	Entries []Entry   `json:"entries,omitempty"`
	Entry   Entry     `json:"entry,omitempty"`
	Pair    [2]Entry  `json:"pair,omitzero"`
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdSetEntries:
		if s.Vote != nil || s.Winner != nil {
			return nil, s, ErrTournamentStarted
		}
		if len(cmd.Entries) == 0 {
			return nil, s, ErrNoEntries
		}

		newState := SetEntries(s, cmd.Entries)
		events := []Event{
			{Type: EvtEntriesSet, Entries: newState.Entries},
		}
		return events, newState, nil

	case CmdVote:
		if s.Vote == nil {
			return nil, s, ErrNoActiveRound
		}

		round, err := Vote(*s.Vote, cmd.Entry)
		if err != nil {
			return nil, s, fmt.Errorf("%w: %q is not in the current pair", err, cmd.Entry)
		}

		newState := s
		newState.Vote = &round
		return []Event{{Type: EvtVoteCast, Entry: cmd.Entry}}, newState, nil

	case CmdNext:
		newState, err := Next(s)
		if err != nil {
			return nil, s, err
		}

		events := []Event{}
		if s.Vote != nil {
			events = append(events, Event{
				Type:    EvtRoundResolved,
				Pair:    s.Vote.Pair,
				Entries: Resolve(*s.Vote),
			})
		}

		// Completion
		if newState.Winner != nil {
			events = append(events, Event{Type: EvtWinnerDeclared, Entry: *newState.Winner})
		} else {
			events = append(events, Event{Type: EvtRoundStarted, Pair: newState.Vote.Pair})
		}
		return events, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// Reduce rebuilds a State from a recorded event stream. Round-closing events
// re-run Next, so a stream that was valid when recorded replays to the same
// State.
func Reduce(events []Event) (State, error) {
	s := NewEmptyState()
	for i, event := range events {
		var err error
		switch event.Type {
		case EvtEntriesSet:
			s = SetEntries(s, event.Entries)
		case EvtVoteCast:
			if s.Vote == nil {
				err = ErrNoActiveRound
				break
			}
			var round Round
			if round, err = Vote(*s.Vote, event.Entry); err == nil {
				s.Vote = &round
			}
		case EvtRoundStarted, EvtWinnerDeclared:
			s, err = Next(s)
		case EvtRoundResolved:
			// informational; the following RoundStarted/WinnerDeclared advances
		default:
			err = ErrUnsupportedCommand
		}
		if err != nil {
			return s, fmt.Errorf("replay event %d (%s): %w", i, event.Type, err)
		}
	}
	return s, nil
}
