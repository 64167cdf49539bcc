// server/router.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"card-ladder/ratings"
)

// Store is what the HTTP layer needs from a backend. Both the Postgres
// store and the in-memory store satisfy it.
type Store interface {
	ratings.IdentityStore
	ratings.GameStore
	UpsertIdentity(ctx context.Context, ident *ratings.Identity) (*ratings.Identity, error)
	SaveGame(ctx context.Context, game *ratings.GameOutcome) (*ratings.GameOutcome, error)
	GetGame(ctx context.Context, id string) (*ratings.GameOutcome, error)
}

func Router(st Store, eng *ratings.Engine, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})

	// Register or rename an identity.
	r.Post("/api/identities", func(w http.ResponseWriter, req *http.Request) {
		var in struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayName"`
		}
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		if in.DisplayName == "" {
			http.Error(w, "missing displayName", http.StatusBadRequest)
			return
		}
		ident, err := st.UpsertIdentity(req.Context(), &ratings.Identity{ID: in.ID, DisplayName: in.DisplayName})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, ident)
	})

	// Record a game. Finished games get their ratings applied in the
	// same request, but a rating failure never fails the save.
	r.Post("/api/games", func(w http.ResponseWriter, req *http.Request) {
		var in ratings.GameOutcome
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		if len(in.Participants) == 0 {
			http.Error(w, "missing participants", http.StatusBadRequest)
			return
		}
		game, err := st.SaveGame(req.Context(), &in)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		var updates []ratings.Update
		if game.Finished {
			updates, err = eng.ApplyOutcome(req.Context(), game, game.GameType)
			if err != nil {
				logger.Error("rating update failed, game saved anyway", "game", game.ID, "err", err)
			}
		}
		if updates == nil {
			updates = []ratings.Update{}
		}
		writeJSON(w, map[string]any{"game": game, "updates": updates})
	})

	// Re-apply ratings for a stored game. Idempotent: an already rated
	// game returns an empty update list.
	r.Post("/api/games/{gameID}/ratings", func(w http.ResponseWriter, req *http.Request) {
		game, err := st.GetGame(req.Context(), chi.URLParam(req, "gameID"))
		if err != nil {
			if errors.Is(err, ratings.ErrNotFound) {
				http.Error(w, "no such game", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		updates, err := eng.ApplyOutcome(req.Context(), game, game.GameType)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if updates == nil {
			updates = []ratings.Update{}
		}
		writeJSON(w, map[string]any{"updates": updates})
	})

	// Full chronological rebuild. ?dryRun=true previews without writing;
	// ?gameType=X limits the rebuild to one pool.
	r.Post("/api/recalculate", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		summary, err := eng.Recalculate(req.Context(), ratings.RecalcOptions{
			DryRun:   asBool(q.Get("dryRun")),
			GameType: q.Get("gameType"),
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, summary)
	})

	r.Get("/api/leaderboard/{gameType}", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		page, err := eng.Leaderboard(req.Context(),
			chi.URLParam(req, "gameType"),
			atoiDef(q.Get("page"), 1),
			atoiDef(q.Get("limit"), 20),
			atoiDef(q.Get("minGames"), -1),
		)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, page)
	})

	r.Get("/api/history/{identityID}/{gameType}", func(w http.ResponseWriter, req *http.Request) {
		entries, err := eng.History(req.Context(),
			chi.URLParam(req, "identityID"),
			chi.URLParam(req, "gameType"),
			atoiDef(req.URL.Query().Get("limit"), 0),
		)
		if err != nil {
			if errors.Is(err, ratings.ErrNotFound) {
				http.Error(w, "no such identity", http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"entries": entries})
	})

	return r
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func atoiDef(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
