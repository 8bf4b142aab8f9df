package types

import (
	"github.com/DoyleJ11/tournament-voting-backend/internal/engine"
	"github.com/DoyleJ11/tournament-voting-backend/internal/lobby"
	public "github.com/DoyleJ11/tournament-voting-backend/pkg/types"
)

// Client -> Server
type ClientMessage struct {
	Type    string   `json:"type"` // "SetEntries" | "Vote" | "Next"
	Entries []string `json:"entries,omitempty"`
	Entry   string   `json:"entry,omitempty"`
}

// Server -> Client
type ServerMessage struct {
	Type       string             `json:"type"` // "StateSnapshot" | "Error"
	Tournament *public.Tournament `json:"tournament,omitempty"`
	Error      string             `json:"error,omitempty"`
}

func ToEngineCommand(m ClientMessage) (engine.Command, bool) {
	switch engine.CommandType(m.Type) {
	case engine.CmdSetEntries:
		return engine.Command{Type: engine.CmdSetEntries, Entries: ToEntries(m.Entries)}, true
	case engine.CmdVote:
		return engine.Command{Type: engine.CmdVote, Entry: engine.Entry(m.Entry)}, true
	case engine.CmdNext:
		return engine.Command{Type: engine.CmdNext}, true
	default:
		return engine.Command{}, false
	}
}

func NewTournament(code string, snap lobby.Snapshot) public.Tournament {
	s := snap.State
	t := public.Tournament{
		Code:    code,
		Version: snap.Version,
		Phase:   string(engine.DerivePhase(s)),
		Entries: make([]string, len(s.Entries)),
	}
	for i, e := range s.Entries {
		t.Entries[i] = string(e)
	}
	if s.Vote != nil {
		v := &public.Vote{Pair: [2]string{string(s.Vote.Pair[0]), string(s.Vote.Pair[1])}}
		if len(s.Vote.Tally) > 0 {
			v.Tally = make(map[string]int, len(s.Vote.Tally))
			for e, n := range s.Vote.Tally {
				v.Tally[string(e)] = n
			}
		}
		t.Vote = v
	}
	if s.Winner != nil {
		w := string(*s.Winner)
		t.Winner = &w
	}
	return t
}

func ToEntries(names []string) []engine.Entry {
	out := make([]engine.Entry, len(names))
	for i, n := range names {
		out[i] = engine.Entry(n)
	}
	return out
}
