package lobby

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tournament-voting-backend/internal/engine"
	"github.com/DoyleJ11/tournament-voting-backend/internal/logging"
	"github.com/DoyleJ11/tournament-voting-backend/internal/metrics"
	"github.com/DoyleJ11/tournament-voting-backend/internal/store"
)

var ErrPersist = errors.New("could not persist tournament events")
var ErrClosed = errors.New("lobby closed")

const persistTimeout = 5 * time.Second

type Msg interface{ isLobbyMsg() }

// FromClient applies Cmd. Reply, when set, receives exactly one Result and
// must have room for it.
type FromClient struct {
	Cmd   engine.Command
	Reply chan Result
}

func (FromClient) isLobbyMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Join) isLobbyMsg() {}

// Leave unregisters a client and closes its outbox.
type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

// GetState replies with the current View. Reply must have room for it; a
// full Reply channel gets nothing.
type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

// PrimeTimer arms the round timer for the current round. Used after a lobby
// is rebuilt from storage, when no RoundStarted event went through it.
type PrimeTimer struct{}

func (PrimeTimer) isLobbyMsg() {}

type timerFired struct{ gen int }

func (timerFired) isLobbyMsg() {}

// Rules decide when the lobby closes a round on its own. Zero values
// disable the rule; CmdNext from a client always works.
type Rules struct {
	RoundDuration time.Duration
	VoteThreshold int
}

type Config struct {
	Code    string
	Rules   Rules
	Store   store.EventStore
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	// Seq and Version describe what Store already holds for Code.
	Seq     int
	Version int
}

type Snapshot struct {
	Version int
	State   engine.State
}

type Result struct {
	Snapshot Snapshot
	Err      error
}

type View struct {
	Version    int
	NumClients int
	State      engine.State
}

type Lobby struct {
	code    string
	inbox   chan Msg
	state   engine.State
	version int
	seq     int
	clients map[string]chan Snapshot
	rules   Rules
	store   store.EventStore
	logger  *zap.Logger
	metrics *metrics.Metrics

	timer    *time.Timer
	timerGen int

	ctx    context.Context
	cancel context.CancelFunc
}

func NewLobby(parent context.Context, initial engine.State, cfg Config) *Lobby {
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		code:    cfg.Code,
		inbox:   make(chan Msg, 64),
		state:   initial,
		version: cfg.Version,
		seq:     cfg.Seq,
		clients: make(map[string]chan Snapshot),
		rules:   cfg.Rules,
		store:   cfg.Store,
		logger:  logging.OrNop(cfg.Logger).With(zap.String("code", cfg.Code)),
		metrics: cfg.Metrics,
		ctx:     ctx,
		cancel:  cancel,
	}

	go l.loop()
	return l
}

// Expose the inbox so the transport layer and tests can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Done is closed once the lobby has shut down.
func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

func (l *Lobby) Code() string { return l.code }

// Do sends cmd and waits for its Result.
func (l *Lobby) Do(ctx context.Context, cmd engine.Command) (Snapshot, error) {
	reply := make(chan Result, 1)
	select {
	case l.inbox <- FromClient{Cmd: cmd, Reply: reply}:
	case <-l.ctx.Done():
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.Snapshot, res.Err
	case <-l.ctx.Done():
		return Snapshot{}, ErrClosed
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// View returns the current state without going through a command.
func (l *Lobby) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case l.inbox <- GetState{Reply: reply}:
	case <-l.ctx.Done():
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}

	select {
	case v := <-reply:
		return v, nil
	case <-l.ctx.Done():
		return View{}, ErrClosed
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				// Register client + send current snapshot immediately
				select {
				case msg.Outbox <- Snapshot{Version: l.version, State: l.state}:
					l.clients[msg.ClientID] = msg.Outbox
				default:
					close(msg.Outbox)
				}

			case Leave:
				// A dropped slow client is already closed and gone.
				if ch, ok := l.clients[msg.ClientID]; ok {
					close(ch)
					delete(l.clients, msg.ClientID)
				}

			case FromClient:
				snap, err := l.apply(msg.Cmd)
				if msg.Reply != nil {
					msg.Reply <- Result{Snapshot: snap, Err: err}
				}

			case GetState:
				select {
				case msg.Reply <- View{
					Version:    l.version,
					NumClients: len(l.clients),
					State:      l.state,
				}:
				default:
					l.logger.Warn("state reply channel full, dropping view")
				}

			case PrimeTimer:
				l.armTimer()

			case timerFired:
				if msg.gen != l.timerGen {
					break // superseded by a later round
				}
				l.logger.Debug("round timer fired")
				if _, err := l.apply(engine.Command{Type: engine.CmdNext}); err != nil {
					l.logger.Warn("timed round close failed", zap.Error(err))
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

// apply runs cmd through the engine, persists the events and publishes the
// new state. On any error the current state is kept.
func (l *Lobby) apply(cmd engine.Command) (Snapshot, error) {
	events, newState, err := engine.Apply(l.state, cmd)
	if err != nil {
		l.metrics.Rejected(cmd.Type)
		l.logger.Debug("command rejected", zap.String("command", string(cmd.Type)), zap.Error(err))
		return l.snapshot(), err
	}

	if err := l.persist(events); err != nil {
		return l.snapshot(), err
	}

	l.state = newState
	l.version++
	l.metrics.Observe(events)
	snap := l.snapshot()
	l.broadcast(snap)

	switch {
	case engine.ContainsEvent(events, engine.EvtWinnerDeclared):
		l.stopTimer()
		l.logger.Info("tournament finished", zap.String("winner", string(*newState.Winner)))
	case engine.ContainsEvent(events, engine.EvtRoundStarted):
		l.armTimer()
	case cmd.Type == engine.CmdVote && l.thresholdReached():
		// The vote itself is committed even if closing the round fails.
		closed, err := l.apply(engine.Command{Type: engine.CmdNext})
		if err != nil {
			l.logger.Warn("threshold round close failed", zap.Error(err))
			return snap, nil
		}
		return closed, nil
	}
	return snap, nil
}

func (l *Lobby) persist(events []engine.Event) error {
	if l.store == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(l.ctx, persistTimeout)
	defer cancel()

	if err := l.store.Append(ctx, l.code, l.seq, l.version+1, events); err != nil {
		l.logger.Error("append events", zap.Int("seq", l.seq), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	l.seq += len(events)
	return nil
}

func (l *Lobby) thresholdReached() bool {
	return l.rules.VoteThreshold > 0 && l.state.Vote != nil && l.state.Vote.Total() >= l.rules.VoteThreshold
}

func (l *Lobby) armTimer() {
	l.stopTimer()
	if l.rules.RoundDuration <= 0 || l.state.Vote == nil {
		return
	}

	gen := l.timerGen
	l.timer = time.AfterFunc(l.rules.RoundDuration, func() {
		select {
		case l.inbox <- timerFired{gen: gen}:
		case <-l.ctx.Done():
		}
	})
}

// stopTimer invalidates any pending fire, including one already queued in
// the inbox.
func (l *Lobby) stopTimer() {
	l.timerGen++
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
}

func (l *Lobby) snapshot() Snapshot {
	return Snapshot{Version: l.version, State: l.state}
}

func (l *Lobby) shutdown() {
	l.stopTimer()
	for id, ch := range l.clients {
		close(ch) // Tell client no more snapshots
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(snap Snapshot) {
	for id, ch := range l.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Client is slow/full - drop them.
			l.logger.Debug("dropping slow client", zap.String("client_id", id))
			close(ch)
			delete(l.clients, id)
		}
	}
}
