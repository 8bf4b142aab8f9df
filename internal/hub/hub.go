package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/tournament-voting-backend/internal/engine"
	"github.com/DoyleJ11/tournament-voting-backend/internal/lobby"
	"github.com/DoyleJ11/tournament-voting-backend/internal/logging"
	"github.com/DoyleJ11/tournament-voting-backend/internal/metrics"
	"github.com/DoyleJ11/tournament-voting-backend/internal/store"
)

const loadTimeout = 5 * time.Second

var ErrClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

type CreateLobby struct {
	Code  string
	State engine.State
	Reply chan *lobby.Lobby
}

// GetLobby replies nil when Code is neither in memory nor in the store.
type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type EnsureLobby struct {
	Code  string
	State engine.State // only used if creation happens
	Reply chan *lobby.Lobby
}

type RemoveLobby struct {
	Code string
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (EnsureLobby) isHubMsg() {}
func (RemoveLobby) isHubMsg() {}
func (ShutdownHub) isHubMsg() {}

type Config struct {
	Rules   lobby.Rules
	Store   store.EventStore
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	cfg     Config
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(parent context.Context, cfg Config) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		cfg:     cfg,
		logger:  logging.OrNop(cfg.Logger),
		ctx:     ctx,
		cancel:  cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub has shut down.
func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

// Lookup returns the lobby for code, rebuilding it from the store when
// needed. A nil lobby with a nil error means no such tournament.
func (h *Hub) Lookup(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return h.request(ctx, GetLobby{Code: code, Reply: reply}, reply)
}

// Ensure returns the lobby for code, opening it with state if it does not
// exist yet.
func (h *Hub) Ensure(ctx context.Context, code string, state engine.State) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return h.request(ctx, EnsureLobby{Code: code, State: state, Reply: reply}, reply)
}

func (h *Hub) request(ctx context.Context, msg HubMsg, reply <-chan *lobby.Lobby) (*lobby.Lobby, error) {
	select {
	case h.inbox <- msg:
	case <-h.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case lb := <-reply:
		return lb, nil
	case <-h.ctx.Done():
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				msg.Reply <- h.ensure(msg.Code, msg.State)

			case GetLobby:
				if lb := h.lobbies[msg.Code]; lb != nil {
					msg.Reply <- lb
					break
				}
				msg.Reply <- h.restore(msg.Code) // May be nil

			case EnsureLobby:
				if lb := h.restore(msg.Code); lb != nil {
					msg.Reply <- lb
					break
				}
				msg.Reply <- h.ensure(msg.Code, msg.State)

			case RemoveLobby:
				if lb := h.lobbies[msg.Code]; lb != nil {
					stopLobby(lb)
					delete(h.lobbies, msg.Code)
					h.cfg.Metrics.LobbyClosed()
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) ensure(code string, state engine.State) *lobby.Lobby {
	if lb := h.lobbies[code]; lb != nil {
		return lb
	}
	return h.open(code, state, 0, 0)
}

// restore returns the in-memory lobby for code, or rebuilds it from the
// event store.
func (h *Hub) restore(code string) *lobby.Lobby {
	if lb := h.lobbies[code]; lb != nil {
		return lb
	}
	if h.cfg.Store == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(h.ctx, loadTimeout)
	defer cancel()

	stream, err := h.cfg.Store.Load(ctx, code)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.logger.Error("load tournament", zap.String("code", code), zap.Error(err))
		}
		return nil
	}

	state, err := engine.Reduce(stream.Events)
	if err != nil {
		h.logger.Error("replay tournament", zap.String("code", code), zap.Error(err))
		return nil
	}

	lb := h.open(code, state, len(stream.Events), stream.Version)
	lb.Inbox() <- lobby.PrimeTimer{}
	h.logger.Info("tournament restored", zap.String("code", code), zap.Int("version", stream.Version))
	return lb
}

func (h *Hub) open(code string, state engine.State, seq, version int) *lobby.Lobby {
	lb := lobby.NewLobby(h.ctx, state, lobby.Config{
		Code:    code,
		Rules:   h.cfg.Rules,
		Store:   h.cfg.Store,
		Logger:  h.logger,
		Metrics: h.cfg.Metrics,
		Seq:     seq,
		Version: version,
	})
	h.lobbies[code] = lb
	h.cfg.Metrics.LobbyOpened()
	return lb
}

func (h *Hub) shutdown() {
	for code, lb := range h.lobbies {
		stopLobby(lb)
		delete(h.lobbies, code)
		h.cfg.Metrics.LobbyClosed()
	}
	h.cancel()
}

func stopLobby(lb *lobby.Lobby) {
	select {
	case lb.Inbox() <- lobby.Shutdown{}:
	case <-lb.Done():
	}
}
