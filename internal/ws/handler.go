package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/tournament-voting-backend/internal/hub"
	"github.com/DoyleJ11/tournament-voting-backend/internal/lobby"
	"github.com/DoyleJ11/tournament-voting-backend/internal/logging"
	"github.com/DoyleJ11/tournament-voting-backend/internal/types"
)

const writeTimeout = 3 * time.Second

func Handler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	logger = logging.OrNop(logger)

	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}

		lb, err := h.Lookup(r.Context(), code)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if lb == nil {
			http.Error(w, "tournament not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			logger.Debug("websocket accept", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan lobby.Snapshot, 8)
		clientID := uuid.NewString()
		log := logger.With(zap.String("code", code), zap.String("client_id", clientID))

		select {
		case lb.Inbox() <- lobby.Join{ClientID: clientID, Outbox: out}:
		case <-lb.Done():
			return
		}
		defer func() {
			select {
			case lb.Inbox() <- lobby.Leave{ClientID: clientID}:
			case <-lb.Done():
			}
		}()
		log.Debug("client joined")

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for {
				select {
				case snap, ok := <-out:
					if !ok {
						// Outbox closed: left, dropped as slow, or the lobby shut down.
						conn.Close(websocket.StatusGoingAway, "stream closed")
						return
					}
					t := types.NewTournament(code, snap)
					if err := write(writeCtx, conn, types.ServerMessage{Type: "StateSnapshot", Tournament: &t}); err != nil {
						log.Debug("write snapshot", zap.Error(err))
						return
					}
				case <-writeCtx.Done():
					return
				}
			}
		}()

		// Reader loop
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("read", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				_ = write(r.Context(), conn, types.ServerMessage{Type: "Error", Error: "bad json"})
				continue
			}

			cmd, ok := types.ToEngineCommand(cm)
			if !ok {
				_ = write(r.Context(), conn, types.ServerMessage{Type: "Error", Error: "unknown type"})
				continue
			}

			// Accepted commands come back through the outbox as a snapshot.
			if _, err := lb.Do(r.Context(), cmd); err != nil {
				if errors.Is(err, lobby.ErrClosed) {
					return
				}
				_ = write(r.Context(), conn, types.ServerMessage{Type: "Error", Error: err.Error()})
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg types.ServerMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
