package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"undercover-arena/internal/game"
)

type GameHandlers struct {
	engine *game.Engine
}

func NewGameHandlers(engine *game.Engine) *GameHandlers {
	return &GameHandlers{engine: engine}
}

type rosterEntryRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsAI        bool   `json:"is_ai"`
	Ready       bool   `json:"ready"`
	Personality string `json:"personality"`
	Skill       string `json:"skill"`
	BaseURL     string `json:"api_base_url"`
	APIKey      string `json:"api_key"`
	Model       string `json:"model"`
}

type createGameRequest struct {
	RoomID     string               `json:"room_id"`
	Difficulty int                  `json:"difficulty"`
	Category   string               `json:"category"`
	Roster     []rosterEntryRequest `json:"players"`
}

func (h *GameHandlers) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createGameRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
			return
		}
		if req.RoomID == "" {
			WriteHTTPError(w, http.StatusBadRequest, "missing_room_id")
			return
		}

		roster := make([]game.RosterEntry, 0, len(req.Roster))
		for _, e := range req.Roster {
			roster = append(roster, game.RosterEntry{
				ID:          e.ID,
				Name:        e.Name,
				IsAI:        e.IsAI,
				Ready:       e.Ready,
				Personality: e.Personality,
				Skill:       e.Skill,
				Model:       game.ModelConfig{BaseURL: e.BaseURL, APIKey: e.APIKey, Model: e.Model},
			})
		}

		sess, err := h.engine.CreateGame(r.Context(), game.CreateGameParams{
			RoomID:     req.RoomID,
			Difficulty: req.Difficulty,
			Category:   req.Category,
			Roster:     roster,
		})
		if err != nil {
			writeGameError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(sess.SnapshotFor(actorID(r)))
	}
}

func (h *GameHandlers) Start() http.HandlerFunc {
	return h.sessionAction(func(ctx context.Context, gameID, actor string, _ *http.Request) (*game.Session, error) {
		return h.engine.StartGame(ctx, gameID, actor)
	})
}

func (h *GameHandlers) Speech() http.HandlerFunc {
	return h.sessionAction(func(ctx context.Context, gameID, actor string, r *http.Request) (*game.Session, error) {
		var req struct {
			Content string `json:"content"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, errBadRequest
		}
		return h.engine.SubmitSpeech(ctx, gameID, actor, req.Content)
	})
}

func (h *GameHandlers) SkipSpeech() http.HandlerFunc {
	return h.sessionAction(func(ctx context.Context, gameID, actor string, _ *http.Request) (*game.Session, error) {
		return h.engine.SkipSpeech(ctx, gameID, actor)
	})
}

func (h *GameHandlers) Vote() http.HandlerFunc {
	return h.sessionAction(func(ctx context.Context, gameID, actor string, r *http.Request) (*game.Session, error) {
		var req struct {
			TargetID string `json:"target_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, errBadRequest
		}
		return h.engine.SubmitVote(ctx, gameID, actor, req.TargetID)
	})
}

func (h *GameHandlers) ForceEnd() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "game_id")
		var req struct {
			Reason string `json:"reason"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Reason == "" {
			req.Reason = "terminated by admin"
		}
		sess, err := h.engine.ForceEnd(r.Context(), gameID, req.Reason)
		if err != nil {
			writeGameError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(sess.SnapshotFor(""))
	}
}

func (h *GameHandlers) State() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := h.engine.GetState(r.Context(), chi.URLParam(r, "game_id"), actorID(r))
		if err != nil {
			writeGameError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(snap)
	}
}

type actionFunc func(ctx context.Context, gameID, actor string, r *http.Request) (*game.Session, error)

// sessionAction wraps the shared shape of turn commands: actor header, game
// id from the route, snapshot on success.
func (h *GameHandlers) sessionAction(fn actionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorID(r)
		if actor == "" {
			WriteHTTPError(w, http.StatusBadRequest, "missing_actor")
			return
		}
		sess, err := fn(r.Context(), chi.URLParam(r, "game_id"), actor, r)
		if err != nil {
			writeGameError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(sess.SnapshotFor(actor))
	}
}

var errBadRequest = errors.New("invalid_request")

func WriteHTTPError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": code})
}

func writeGameError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadRequest):
		WriteHTTPError(w, http.StatusBadRequest, "invalid_request")
	case errors.Is(err, game.ErrNotFound):
		WriteHTTPError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, game.ErrConflict):
		WriteHTTPError(w, http.StatusConflict, "version_conflict")
	default:
		if ia, ok := game.AsInvalidAction(err); ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": ia.Code, "reason": ia.Reason})
			return
		}
		WriteHTTPError(w, http.StatusInternalServerError, "internal_error")
	}
}
