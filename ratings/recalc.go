package ratings

import (
	"context"
	"errors"
	"sort"
)

// RecalcOptions controls a rebuild run. Zero value means: live run over
// every game type, no progress reporting.
type RecalcOptions struct {
	// DryRun previews the rebuild against scratch copies and leaves the
	// store untouched.
	DryRun bool
	// GameType limits the rebuild to one normalized type when non-empty.
	GameType string
	// OnProgress, when set, is called after each game with (done, total).
	OnProgress func(done, total int)
}

// RecalcError records one game the rebuild could not apply. The run
// continues past it.
type RecalcError struct {
	GameID   string `json:"gameId"`
	GameType string `json:"gameType"`
	Message  string `json:"message"`
}

// RecalcSummary is the outcome of a rebuild run. GamesProcessed counts
// games that produced rating updates; no-op and failed games are
// visited but not counted.
type RecalcSummary struct {
	DryRun         bool           `json:"dryRun"`
	GamesProcessed int            `json:"gamesProcessed"`
	PlayerUpdates  int            `json:"playerUpdates"`
	PerType        map[string]int `json:"perType"`
	Errors         []RecalcError  `json:"errors,omitempty"`
}

// Recalculate rebuilds ratings from scratch by replaying every finished
// game in chronological order (occurrence time, then id). A live run
// first wipes the affected rating records so replay starts from the
// default state; a dry run simulates against copies and writes nothing.
//
// Individual game failures are collected in the summary rather than
// aborting the run. Only store-level failures outside the per-game loop
// abort with an error.
func (e *Engine) Recalculate(ctx context.Context, opts RecalcOptions) (*RecalcSummary, error) {
	filter := ""
	if opts.GameType != "" {
		filter = NormalizeGameType(opts.GameType)
	}

	games, err := e.games.FinishedGames(ctx, filter)
	if err != nil {
		return nil, err
	}
	ordered := make([]*GameOutcome, len(games))
	copy(ordered, games)
	sort.SliceStable(ordered, func(i, j int) bool {
		ti, tj := ordered[i].EffectiveTime(), ordered[j].EffectiveTime()
		if ti.Equal(tj) {
			return ordered[i].ID < ordered[j].ID
		}
		return ti.Before(tj)
	})

	summary := &RecalcSummary{
		DryRun:  opts.DryRun,
		PerType: make(map[string]int),
	}

	if opts.DryRun {
		return e.preview(ctx, ordered, filter, summary, opts.OnProgress)
	}

	if err := e.resetRatings(ctx, filter); err != nil {
		return nil, err
	}

	total := len(ordered)
	for i, game := range ordered {
		updates, err := e.ApplyOutcome(ctx, game, game.GameType)
		switch {
		case err != nil:
			e.log.Error("recalculation skipped game", "game", game.ID, "err", err)
			summary.Errors = append(summary.Errors, RecalcError{
				GameID:   game.ID,
				GameType: NormalizeGameType(game.GameType),
				Message:  err.Error(),
			})
		case len(updates) > 0:
			summary.GamesProcessed++
			summary.PlayerUpdates += len(updates)
			summary.PerType[NormalizeGameType(game.GameType)]++
		}
		if opts.OnProgress != nil {
			opts.OnProgress(i+1, total)
		}
	}
	return summary, nil
}

// preview replays against cloned identities held only in memory.
func (e *Engine) preview(ctx context.Context, ordered []*GameOutcome, filter string, summary *RecalcSummary, onProgress func(done, total int)) (*RecalcSummary, error) {
	idents, err := e.identities.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	scratch := make(map[string]*Identity, len(idents))
	for _, ident := range idents {
		cp := ident.Clone()
		resetIdentity(cp, filter)
		scratch[cp.ID] = cp
	}

	total := len(ordered)
	for i, game := range ordered {
		if game != nil && game.Finished && len(game.Participants) >= 2 {
			gt := NormalizeGameType(game.GameType)
			var present []*Identity
			for _, id := range linkedIDs(game) {
				if ident, ok := scratch[id]; ok {
					present = append(present, ident)
				}
			}
			updates, err := e.mutate(game, gt, present)
			if err != nil && !errors.Is(err, errAlreadyApplied) {
				summary.Errors = append(summary.Errors, RecalcError{
					GameID:   game.ID,
					GameType: gt,
					Message:  err.Error(),
				})
			} else if len(updates) > 0 {
				summary.GamesProcessed++
				summary.PlayerUpdates += len(updates)
				summary.PerType[gt]++
			}
		}
		if onProgress != nil {
			onProgress(i+1, total)
		}
	}
	return summary, nil
}

// resetRatings clears the records replay will rebuild, for every
// tracked identity. With a filter only that game type's record is
// dropped; without one the whole map goes.
func (e *Engine) resetRatings(ctx context.Context, filter string) error {
	idents, err := e.identities.FetchAll(ctx)
	if err != nil {
		return err
	}
	for _, ident := range idents {
		resetIdentity(ident, filter)
		if err := e.identities.Persist(ctx, ident); err != nil {
			return err
		}
	}
	return nil
}

func resetIdentity(ident *Identity, filter string) {
	if filter == "" {
		ident.Ratings = RatingMap{}
		return
	}
	if ident.Ratings != nil {
		delete(ident.Ratings, filter)
	}
}
