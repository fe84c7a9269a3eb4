package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"undercover-arena/internal/config"
	"undercover-arena/internal/game"
)

// Pinger is the liveness probe the health endpoint runs; the postgres store
// satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(engine *game.Engine, wsHandler http.HandlerFunc, db Pinger, cfg config.ServerConfig) *chi.Mux {
	games := NewGameHandlers(engine)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.With(APILogMiddleware()).Get("/healthz", healthHandler(db))
	r.Get("/ws", wsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Use(APILogMiddleware())

		r.Post("/games", games.Create())
		r.Get("/games/{game_id}/state", games.State())
		r.Post("/games/{game_id}/start", games.Start())
		r.Post("/games/{game_id}/speech", games.Speech())
		r.Post("/games/{game_id}/skip-speech", games.SkipSpeech())
		r.Post("/games/{game_id}/vote", games.Vote())

		r.Group(func(r chi.Router) {
			r.Use(AdminAuthMiddleware(cfg.AdminAPIKey))
			r.Post("/games/{game_id}/force-end", games.ForceEnd())
		})
	})

	return r
}

func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.Ping(r.Context()); err != nil {
				WriteHTTPError(w, http.StatusServiceUnavailable, "db_unreachable")
				return
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}
