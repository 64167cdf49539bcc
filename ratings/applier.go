package ratings

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// errAlreadyApplied aborts an application whose game id is already in
// any participant's history. Swallowed before it reaches callers.
var errAlreadyApplied = errors.New("game already applied")

// Engine applies finished games to persisted rating state and serves
// replay and read queries over it.
type Engine struct {
	identities IdentityStore
	games      GameStore
	atomic     bool
	log        *slog.Logger
	retryBase  time.Duration
	maxRetries uint64
}

type Option func(*Engine)

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithRetry overrides the conflict-retry schedule (base interval,
// doubling per attempt).
func WithRetry(base time.Duration, attempts uint64) Option {
	return func(e *Engine) {
		e.retryBase = base
		e.maxRetries = attempts
	}
}

// NewEngine wires the engine to its stores. The transaction capability
// is resolved here, once, and held for the engine's lifetime.
func NewEngine(identities IdentityStore, games GameStore, opts ...Option) *Engine {
	e := &Engine{
		identities: identities,
		games:      games,
		atomic:     identities.AtomicSupported(),
		log:        slog.Default(),
		retryBase:  100 * time.Millisecond,
		maxRetries: 3,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ApplyOutcome persists rating deltas for every linked participant of a
// finished game, atomically when the store allows it and idempotently
// always. It returns the applied updates, or an empty result for
// unfinished games, games with fewer than two participants, games with
// no linked participants, and games applied before.
//
// Transient write conflicts are retried with exponential backoff; any
// other store failure is returned after retries exhaust. Callers on the
// game-save path must treat that error as log-and-continue: a rating
// failure never invalidates the game record itself.
func (e *Engine) ApplyOutcome(ctx context.Context, game *GameOutcome, gameType string) ([]Update, error) {
	if game == nil || !game.Finished || len(game.Participants) < 2 {
		return nil, nil
	}
	if len(linkedIDs(game)) == 0 {
		return nil, nil
	}
	gt := gameType
	if gt == "" {
		gt = game.GameType
	}
	gt = NormalizeGameType(gt)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.retryBase
	bo.RandomizationFactor = 0
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0

	var updates []Update
	op := func() error {
		ups, err := e.applyOnce(ctx, game, gt)
		if err != nil {
			if errors.Is(err, ErrConflict) {
				e.log.Warn("rating update conflict, retrying", "game", game.ID)
				return err
			}
			return backoff.Permanent(err)
		}
		updates = ups
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, e.maxRetries), ctx))
	if err != nil {
		if errors.Is(err, errAlreadyApplied) {
			e.log.Debug("game already rated, skipping", "game", game.ID)
			return nil, nil
		}
		return nil, err
	}
	return updates, nil
}

// applyOnce runs one attempt end to end: transactional when the store
// capability allows it, otherwise (or on a runtime ErrTxUnsupported)
// sequential writes for the remainder of this attempt.
func (e *Engine) applyOnce(ctx context.Context, game *GameOutcome, gameType string) ([]Update, error) {
	ids := linkedIDs(game)

	if e.atomic {
		var updates []Update
		err := e.identities.UpdateAtomic(ctx, ids, func(idents []*Identity) error {
			ups, err := e.mutate(game, gameType, idents)
			if err != nil {
				return err
			}
			updates = ups
			return nil
		})
		if err == nil {
			return updates, nil
		}
		if !errors.Is(err, ErrTxUnsupported) {
			return nil, err
		}
		e.log.Warn("store lost multi-record transactions, writing sequentially", "game", game.ID)
	}

	idents, err := e.identities.FetchByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	updates, err := e.mutate(game, gameType, idents)
	if err != nil {
		return nil, err
	}
	for _, ident := range idents {
		if err := e.identities.Persist(ctx, ident); err != nil {
			return nil, err
		}
	}
	return updates, nil
}

// mutate checks idempotency against the freshly read records, runs the
// calculator, and applies the results in place. Whole-game granularity:
// one prior application by any participant aborts the lot.
func (e *Engine) mutate(game *GameOutcome, gameType string, idents []*Identity) ([]Update, error) {
	byID := make(map[string]*Identity, len(idents))
	for _, ident := range idents {
		if ident.Ratings == nil {
			ident.Ratings = RatingMap{}
		}
		byID[ident.ID] = ident
	}

	records := make(map[string]*Record)
	for _, p := range game.Participants {
		if p.IdentityID == "" {
			continue
		}
		ident, ok := byID[p.IdentityID]
		if !ok {
			continue
		}
		rec := ident.Ratings.Ensure(gameType)
		for _, h := range rec.History {
			if h.GameID == game.ID {
				return nil, errAlreadyApplied
			}
		}
		records[p.IdentityID] = rec
	}
	if len(records) == 0 {
		return nil, nil
	}

	updates := CalculateUpdates(game, records)
	when := game.EffectiveTime()
	for _, u := range updates {
		rec := records[u.IdentityID]
		rec.GamesPlayed++
		rec.Rating = u.NewRating
		if rec.Rating > rec.Peak {
			rec.Peak = rec.Rating
		}
		if rec.Rating < rec.Floor {
			rec.Floor = rec.Rating
		}
		if u.Won {
			if rec.Streak < 1 {
				rec.Streak = 1
			} else {
				rec.Streak++
			}
		} else {
			if rec.Streak > -1 {
				rec.Streak = -1
			} else {
				rec.Streak--
			}
		}
		rec.LastUpdated = when
		entry := HistoryEntry{
			Rating:    u.NewRating,
			Change:    u.Delta,
			GameID:    game.ID,
			Opponents: u.Opponents,
			Placement: u.Placement,
			Date:      when,
		}
		rec.History = append([]HistoryEntry{entry}, rec.History...)
		if len(rec.History) > HistoryCap {
			rec.History = rec.History[:HistoryCap]
		}
	}
	return updates, nil
}

func linkedIDs(game *GameOutcome) []string {
	seen := make(map[string]struct{}, len(game.Participants))
	ids := make([]string, 0, len(game.Participants))
	for _, p := range game.Participants {
		if p.IdentityID == "" {
			continue
		}
		if _, ok := seen[p.IdentityID]; ok {
			continue
		}
		seen[p.IdentityID] = struct{}{}
		ids = append(ids, p.IdentityID)
	}
	return ids
}
