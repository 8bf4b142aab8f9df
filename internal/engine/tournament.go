package engine

import (
	"iter"
	"maps"
	"slices"
)

// Entry names a candidate. Entries are compared by equality only.
type Entry string

// Round is the active head-to-head matchup. Tally is nil until the first vote.
type Round struct {
	Pair  [2]Entry      `json:"pair"`
	Tally map[Entry]int `json:"tally,omitempty"`
}

// State is one immutable snapshot of a tournament. Transitions never modify
// a State in place; they return a new one that shares nothing mutable with
// the input.
//
// At most one of Vote and Winner is set. A State with a Winner has neither
// Entries nor Vote.
type State struct {
	Entries []Entry `json:"entries,omitempty"`
	Vote    *Round  `json:"vote,omitempty"`
	Winner  *Entry  `json:"winner,omitempty"`
}

// SetEntries returns a copy of s whose pool is entries, in order. Vote and
// Winner are carried over untouched. Duplicates are kept as distinct
// positions.
func SetEntries[E ~string](s State, entries []E) State {
	pool := make([]Entry, len(entries))
	for i, e := range entries {
		pool[i] = Entry(e)
	}
	s.Entries = pool
	return s
}

// SetEntriesSeq is SetEntries for any iterable source of entries.
func SetEntriesSeq(s State, seq iter.Seq[Entry]) State {
	if seq == nil {
		panic("engine: SetEntriesSeq called with nil sequence")
	}
	pool := slices.Collect(seq)
	if pool == nil {
		pool = []Entry{}
	}
	s.Entries = pool
	return s
}

// Next closes the active round, if any, and either starts the following
// round or declares the overall winner.
//
// Calling Next on a finished tournament, or on one with nothing to pair,
// returns s unchanged with ErrInvalidStateTransition.
func Next(s State) (State, error) {
	if s.Winner != nil {
		return s, ErrInvalidStateTransition
	}

	var resolved []Entry
	if s.Vote != nil {
		resolved = Resolve(*s.Vote)
	}

	pool := make([]Entry, 0, len(s.Entries)+len(resolved))
	pool = append(pool, s.Entries...)
	pool = append(pool, resolved...)

	switch len(pool) {
	case 0:
		return s, ErrInvalidStateTransition
	case 1:
		winner := pool[0]
		return State{Winner: &winner}, nil
	}

	return State{
		Vote:    &Round{Pair: [2]Entry{pool[0], pool[1]}},
		Entries: pool[2:],
	}, nil
}

// Resolve returns the entries that survive r: the one with more votes, or
// both, in pair order, on a tie. A missing count is zero.
func Resolve(r Round) []Entry {
	a, b := r.Pair[0], r.Pair[1]
	votesA, votesB := r.Tally[a], r.Tally[b]
	switch {
	case votesA > votesB:
		return []Entry{a}
	case votesB > votesA:
		return []Entry{b}
	default:
		return []Entry{a, b}
	}
}

// Vote records one ballot for e. e must be one of the two entries in the
// pair.
func Vote(r Round, e Entry) (Round, error) {
	if !r.Has(e) {
		return r, ErrInvalidVote
	}

	tally := make(map[Entry]int, 2)
	maps.Copy(tally, r.Tally)
	tally[e]++

	return Round{Pair: r.Pair, Tally: tally}, nil
}

// Has reports whether e is part of the matchup.
func (r Round) Has(e Entry) bool {
	return r.Pair[0] == e || r.Pair[1] == e
}

// Total is the number of ballots cast in r.
func (r Round) Total() int {
	n := 0
	for _, v := range r.Tally {
		n += v
	}
	return n
}
