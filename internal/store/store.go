package store

import (
	"context"
	"errors"

	"github.com/DoyleJ11/tournament-voting-backend/internal/engine"
)

var ErrNotFound = errors.New("tournament not found")
var ErrConflict = errors.New("event sequence conflict")

// Stream is the persisted history of one tournament.
type Stream struct {
	Events  []engine.Event
	Version int
}

// EventStore appends and loads tournament event streams. seq is the number
// of events the caller believes are already stored; a mismatch returns
// ErrConflict so two writers cannot interleave one stream.
type EventStore interface {
	Append(ctx context.Context, code string, seq, version int, events []engine.Event) error
	Load(ctx context.Context, code string) (Stream, error)
}
