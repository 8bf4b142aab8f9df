package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/tournament-voting-backend/internal/engine"
	"github.com/DoyleJ11/tournament-voting-backend/internal/hub"
	"github.com/DoyleJ11/tournament-voting-backend/internal/lobby"
	"github.com/DoyleJ11/tournament-voting-backend/internal/types"
)

const maxBodyBytes = 1 << 20

type entriesRequest struct {
	Entries []string `json:"entries"`
}

type voteRequest struct {
	Entry string `json:"entry"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func GenerateCode() (string, error) {
	const charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	code := make([]byte, 6)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", err
		}
		code[i] = charset[num.Int64()]
	}
	return string(code), nil
}

// CreateTournament opens a new tournament under a fresh code. A body with
// entries sets them right away.
func CreateTournament(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req entriesRequest
		if err := decode(r, &req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}

		var code string
		for {
			c, err := GenerateCode()
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to generate code")
				return
			}
			existing, err := h.Lookup(r.Context(), c)
			if err != nil {
				writeCommandError(w, err)
				return
			}
			if existing == nil {
				code = c
				break
			}
			// collision on code, regenerate
		}

		lb, err := h.Ensure(r.Context(), code, engine.NewEmptyState())
		if err != nil {
			writeCommandError(w, err)
			return
		}
		if lb == nil {
			writeError(w, http.StatusInternalServerError, "failed to create tournament")
			return
		}

		var snap lobby.Snapshot
		if len(req.Entries) > 0 {
			var err error
			snap, err = lb.Do(r.Context(), engine.Command{Type: engine.CmdSetEntries, Entries: types.ToEntries(req.Entries)})
			if err != nil {
				writeCommandError(w, err)
				return
			}
		} else {
			view, err := lb.View(r.Context())
			if err != nil {
				writeCommandError(w, err)
				return
			}
			snap = lobby.Snapshot{Version: view.Version, State: view.State}
		}

		writeJSON(w, http.StatusCreated, types.NewTournament(code, snap))
	}
}

func GetTournament(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		lb, ok := getLobby(w, r, h, code)
		if !ok {
			return
		}

		view, err := lb.View(r.Context())
		if err != nil {
			writeCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.NewTournament(code, lobby.Snapshot{Version: view.Version, State: view.State}))
	}
}

func SetEntries(h *hub.Hub) http.HandlerFunc {
	return command(h, func(r *http.Request) (engine.Command, error) {
		var req entriesRequest
		if err := decode(r, &req); err != nil {
			return engine.Command{}, err
		}
		return engine.Command{Type: engine.CmdSetEntries, Entries: types.ToEntries(req.Entries)}, nil
	})
}

func CastVote(h *hub.Hub) http.HandlerFunc {
	return command(h, func(r *http.Request) (engine.Command, error) {
		var req voteRequest
		if err := decode(r, &req); err != nil {
			return engine.Command{}, err
		}
		return engine.Command{Type: engine.CmdVote, Entry: engine.Entry(req.Entry)}, nil
	})
}

func Next(h *hub.Hub) http.HandlerFunc {
	return command(h, func(*http.Request) (engine.Command, error) {
		return engine.Command{Type: engine.CmdNext}, nil
	})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// command builds the handler shared by every state-changing endpoint.
func command(h *hub.Hub, parse func(*http.Request) (engine.Command, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		lb, ok := getLobby(w, r, h, code)
		if !ok {
			return
		}

		cmd, err := parse(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}

		snap, err := lb.Do(r.Context(), cmd)
		if err != nil {
			writeCommandError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, types.NewTournament(code, snap))
	}
}

// getLobby looks code up and writes the error response itself when it
// cannot return a lobby.
func getLobby(w http.ResponseWriter, r *http.Request, h *hub.Hub, code string) (*lobby.Lobby, bool) {
	lb, err := h.Lookup(r.Context(), code)
	if err != nil {
		writeCommandError(w, err)
		return nil, false
	}
	if lb == nil {
		writeError(w, http.StatusNotFound, "tournament not found")
		return nil, false
	}
	return lb, true
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrInvalidVote):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrNoEntries):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrInvalidStateTransition), errors.Is(err, engine.ErrTournamentStarted):
		return http.StatusConflict
	case errors.Is(err, lobby.ErrClosed):
		return http.StatusGone
	case errors.Is(err, lobby.ErrPersist), errors.Is(err, hub.ErrClosed), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeCommandError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
