package engine

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func entries(names ...string) []Entry {
	out := make([]Entry, len(names))
	for i, n := range names {
		out[i] = Entry(n)
	}
	return out
}

func winner(e Entry) *Entry { return &e }

func assertState(t *testing.T, got, want State) {
	t.Helper()
	if !Equal(got, want) {
		t.Fatalf("state mismatch (-want +got):\n%s", cmp.Diff(want, got, cmpopts.EquateEmpty()))
	}
}

func TestSetEntries(t *testing.T) {
	t.Run("adds the entries to the state", func(t *testing.T) {
		got := SetEntries(NewEmptyState(), entries("Trainspotting", "28 Days Later"))
		assertState(t, got, State{Entries: entries("Trainspotting", "28 Days Later")})
	})

	t.Run("accepts plain strings", func(t *testing.T) {
		got := SetEntries(NewEmptyState(), []string{"Trainspotting", "28 Days Later"})
		assertState(t, got, State{Entries: entries("Trainspotting", "28 Days Later")})
	})

	t.Run("accepts any sequence", func(t *testing.T) {
		seq := slices.Values(entries("Trainspotting", "28 Days Later"))
		got := SetEntriesSeq(NewEmptyState(), seq)
		want := SetEntries(NewEmptyState(), []string{"Trainspotting", "28 Days Later"})
		assertState(t, got, want)
	})

	t.Run("keeps duplicates", func(t *testing.T) {
		got := SetEntries(NewEmptyState(), []string{"Sunshine", "Sunshine"})
		assertState(t, got, State{Entries: entries("Sunshine", "Sunshine")})
	})

	t.Run("does not alias the input", func(t *testing.T) {
		in := []string{"Trainspotting", "28 Days Later"}
		got := SetEntries(NewEmptyState(), in)
		in[0] = "Millions"
		if got.Entries[0] != "Trainspotting" {
			t.Fatalf("state changed with caller's slice: %v", got.Entries)
		}
	})

	t.Run("leaves vote and winner untouched", func(t *testing.T) {
		round := &Round{Pair: [2]Entry{"Sunshine", "Millions"}}
		got := SetEntries(State{Vote: round}, []string{"127 Hours"})
		if got.Vote != round {
			t.Fatalf("vote was replaced: %+v", got.Vote)
		}
	})

	t.Run("nil sequence panics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic")
			}
		}()
		SetEntriesSeq(NewEmptyState(), nil)
	})
}

func TestNext(t *testing.T) {
	cases := []struct {
		name  string
		setup State
		want  State
	}{
		{
			name:  "takes the next two entries under vote",
			setup: State{Entries: entries("Trainspotting", "28 Days Later", "Sunshine")},
			want: State{
				Vote:    &Round{Pair: [2]Entry{"Trainspotting", "28 Days Later"}},
				Entries: entries("Sunshine"),
			},
		},
		{
			name: "puts winner of current vote back to entries",
			setup: State{
				Vote: &Round{
					Pair:  [2]Entry{"Trainspotting", "28 Days Later"},
					Tally: map[Entry]int{"Trainspotting": 4, "28 Days Later": 2},
				},
				Entries: entries("Sunshine", "Millions", "127 Hours"),
			},
			want: State{
				Vote:    &Round{Pair: [2]Entry{"Sunshine", "Millions"}},
				Entries: entries("127 Hours", "Trainspotting"),
			},
		},
		{
			name: "second entry can win",
			setup: State{
				Vote: &Round{
					Pair:  [2]Entry{"Trainspotting", "28 Days Later"},
					Tally: map[Entry]int{"28 Days Later": 1},
				},
				Entries: entries("Sunshine", "Millions"),
			},
			want: State{
				Vote:    &Round{Pair: [2]Entry{"Sunshine", "Millions"}},
				Entries: entries("28 Days Later"),
			},
		},
		{
			name: "puts both from tied vote back to entries",
			setup: State{
				Vote: &Round{
					Pair:  [2]Entry{"Trainspotting", "28 Days Later"},
					Tally: map[Entry]int{"Trainspotting": 3, "28 Days Later": 3},
				},
				Entries: entries("Sunshine", "Millions", "127 Hours"),
			},
			want: State{
				Vote:    &Round{Pair: [2]Entry{"Sunshine", "Millions"}},
				Entries: entries("127 Hours", "Trainspotting", "28 Days Later"),
			},
		},
		{
			name: "untallied round is a tie",
			setup: State{
				Vote:    &Round{Pair: [2]Entry{"Trainspotting", "28 Days Later"}},
				Entries: entries("Sunshine"),
			},
			want: State{
				Vote:    &Round{Pair: [2]Entry{"Sunshine", "Trainspotting"}},
				Entries: entries("28 Days Later"),
			},
		},
		{
			name: "tie with no waiting entries pairs them again",
			setup: State{
				Vote: &Round{
					Pair:  [2]Entry{"Trainspotting", "28 Days Later"},
					Tally: map[Entry]int{"Trainspotting": 2, "28 Days Later": 2},
				},
			},
			want: State{
				Vote: &Round{Pair: [2]Entry{"Trainspotting", "28 Days Later"}},
			},
		},
		{
			name: "marks winner when just one entry left",
			setup: State{
				Vote: &Round{
					Pair:  [2]Entry{"Trainspotting", "28 Days Later"},
					Tally: map[Entry]int{"Trainspotting": 4, "28 Days Later": 2},
				},
				Entries: []Entry{},
			},
			want: State{Winner: winner("Trainspotting")},
		},
		{
			name:  "single entry without a round wins outright",
			setup: State{Entries: entries("Sunshine")},
			want:  State{Winner: winner("Sunshine")},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Next(tc.setup)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			assertState(t, got, tc.want)
			if got.Vote != nil && got.Winner != nil {
				t.Fatalf("vote and winner both set: %+v", got)
			}
		})
	}
}

func TestNext_DoesNotMutateInput(t *testing.T) {
	tally := map[Entry]int{"Trainspotting": 4, "28 Days Later": 2}
	pool := entries("Sunshine", "Millions", "127 Hours")
	s := State{
		Vote:    &Round{Pair: [2]Entry{"Trainspotting", "28 Days Later"}, Tally: tally},
		Entries: pool,
	}

	if _, err := Next(s); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if !slices.Equal(s.Entries, entries("Sunshine", "Millions", "127 Hours")) {
		t.Fatalf("entries mutated: %v", s.Entries)
	}
	if s.Vote.Tally["Trainspotting"] != 4 || len(s.Vote.Tally) != 2 {
		t.Fatalf("tally mutated: %v", s.Vote.Tally)
	}
}

func TestNext_RejectsInvalidTransitions(t *testing.T) {
	cases := []struct {
		name  string
		setup State
	}{
		{name: "empty state", setup: NewEmptyState()},
		{name: "empty entries", setup: State{Entries: []Entry{}}},
		{name: "already finished", setup: State{Winner: winner("Sunshine")}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Next(tc.setup)
			if !errors.Is(err, ErrInvalidStateTransition) {
				t.Fatalf("want ErrInvalidStateTransition, got %v", err)
			}
			assertState(t, got, tc.setup)
		})
	}
}

func TestVote(t *testing.T) {
	t.Run("creates a tally for the voted entry", func(t *testing.T) {
		got, err := Vote(Round{Pair: [2]Entry{"Trainspotting", "28 Days Later"}}, "Trainspotting")
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		want := Round{
			Pair:  [2]Entry{"Trainspotting", "28 Days Later"},
			Tally: map[Entry]int{"Trainspotting": 1},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("round mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("adds to existing tally for the voted entry", func(t *testing.T) {
		in := Round{
			Pair:  [2]Entry{"Trainspotting", "28 Days Later"},
			Tally: map[Entry]int{"Trainspotting": 3, "28 Days Later": 2},
		}
		got, err := Vote(in, "Trainspotting")
		if err != nil {
			t.Fatalf("unexpected err: %v", err)
		}
		want := Round{
			Pair:  [2]Entry{"Trainspotting", "28 Days Later"},
			Tally: map[Entry]int{"Trainspotting": 4, "28 Days Later": 2},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("round mismatch (-want +got):\n%s", diff)
		}
		if in.Tally["Trainspotting"] != 3 {
			t.Fatalf("input tally mutated: %v", in.Tally)
		}
	})

	t.Run("accumulates without touching the other entry", func(t *testing.T) {
		r := Round{Pair: [2]Entry{"Sunshine", "Millions"}}
		for i := 1; i <= 5; i++ {
			var err error
			r, err = Vote(r, "Millions")
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if r.Tally["Millions"] != i {
				t.Fatalf("after %d votes: got %d", i, r.Tally["Millions"])
			}
			if _, ok := r.Tally["Sunshine"]; ok {
				t.Fatalf("other entry got a count: %v", r.Tally)
			}
		}
		if r.Total() != 5 {
			t.Fatalf("total: got %d, want 5", r.Total())
		}
	})

	t.Run("rejects an entry outside the pair", func(t *testing.T) {
		in := Round{Pair: [2]Entry{"Sunshine", "Millions"}}
		got, err := Vote(in, "127 Hours")
		if !errors.Is(err, ErrInvalidVote) {
			t.Fatalf("want ErrInvalidVote, got %v", err)
		}
		if got.Tally != nil {
			t.Fatalf("tally created for non-participant: %v", got.Tally)
		}
	})
}

func TestEqual_TreatsAbsentAndEmptyAlike(t *testing.T) {
	a := State{Vote: &Round{Pair: [2]Entry{"a", "b"}}}
	b := State{Vote: &Round{Pair: [2]Entry{"a", "b"}, Tally: map[Entry]int{}}, Entries: []Entry{}}
	if !Equal(a, b) {
		t.Fatalf("expected equal")
	}

	c := State{Vote: &Round{Pair: [2]Entry{"b", "a"}}}
	if Equal(a, c) {
		t.Fatalf("pair order must matter")
	}
	if Equal(State{Winner: winner("a")}, State{Winner: winner("b")}) {
		t.Fatalf("different winners compared equal")
	}
}

func TestApply_FullTournament(t *testing.T) {
	s := NewEmptyState()
	var log []Event

	apply := func(cmd Command) {
		t.Helper()
		events, next, err := Apply(s, cmd)
		if err != nil {
			t.Fatalf("%s: unexpected err %v", cmd.Type, err)
		}
		log = append(log, events...)
		s = next
	}

	apply(Command{Type: CmdSetEntries, Entries: entries("Trainspotting", "28 Days Later", "Sunshine")})
	if DerivePhase(s) != PhaseSetup {
		t.Fatalf("want setup phase, got %s", DerivePhase(s))
	}

	apply(Command{Type: CmdNext})
	apply(Command{Type: CmdVote, Entry: "Trainspotting"})
	apply(Command{Type: CmdNext})
	// Sunshine vs Trainspotting
	apply(Command{Type: CmdVote, Entry: "Sunshine"})
	apply(Command{Type: CmdVote, Entry: "Sunshine"})
	apply(Command{Type: CmdVote, Entry: "Trainspotting"})
	apply(Command{Type: CmdNext})

	assertState(t, s, State{Winner: winner("Sunshine")})
	if DerivePhase(s) != PhaseDone {
		t.Fatalf("want done phase, got %s", DerivePhase(s))
	}
	if !ContainsEvent(log, EvtWinnerDeclared) {
		t.Fatalf("expected EvtWinnerDeclared in %+v", log)
	}

	replayed, err := Reduce(log)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	assertState(t, replayed, s)
}

func TestApply_Rejections(t *testing.T) {
	voting := State{Vote: &Round{Pair: [2]Entry{"Sunshine", "Millions"}}}

	cases := []struct {
		name  string
		setup State
		cmd   Command
		want  error
	}{
		{
			name:  "vote without a round",
			setup: State{Entries: entries("Sunshine", "Millions")},
			cmd:   Command{Type: CmdVote, Entry: "Sunshine"},
			want:  ErrNoActiveRound,
		},
		{
			name:  "vote for a non-participant",
			setup: voting,
			cmd:   Command{Type: CmdVote, Entry: "127 Hours"},
			want:  ErrInvalidVote,
		},
		{
			name:  "set entries after start",
			setup: voting,
			cmd:   Command{Type: CmdSetEntries, Entries: entries("127 Hours")},
			want:  ErrTournamentStarted,
		},
		{
			name:  "set no entries",
			setup: NewEmptyState(),
			cmd:   Command{Type: CmdSetEntries},
			want:  ErrNoEntries,
		},
		{
			name:  "next after winner",
			setup: State{Winner: winner("Sunshine")},
			cmd:   Command{Type: CmdNext},
			want:  ErrInvalidStateTransition,
		},
		{
			name:  "unknown command",
			setup: voting,
			cmd:   Command{Type: "Shuffle"},
			want:  ErrUnsupportedCommand,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, got, err := Apply(tc.setup, tc.cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
			if events != nil {
				t.Fatalf("expected no events, got %+v", events)
			}
			assertState(t, got, tc.setup)
		})
	}
}

func TestApply_NextEmitsResolution(t *testing.T) {
	s := State{
		Vote: &Round{
			Pair:  [2]Entry{"Trainspotting", "28 Days Later"},
			Tally: map[Entry]int{"Trainspotting": 3, "28 Days Later": 3},
		},
		Entries: entries("Sunshine"),
	}

	events, _, err := Apply(s, Command{Type: CmdNext})
	if err != nil {
		t.Fatalf("unexpected err %v", err)
	}

	want := []Event{
		{Type: EvtRoundResolved, Pair: [2]Entry{"Trainspotting", "28 Days Later"}, Entries: entries("Trainspotting", "28 Days Later")},
		{Type: EvtRoundStarted, Pair: [2]Entry{"Sunshine", "Trainspotting"}},
	}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Fatalf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestReduce_RejectsInconsistentStream(t *testing.T) {
	_, err := Reduce([]Event{{Type: EvtVoteCast, Entry: "Sunshine"}})
	if !errors.Is(err, ErrNoActiveRound) {
		t.Fatalf("want ErrNoActiveRound, got %v", err)
	}
}
