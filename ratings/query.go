package ratings

import (
	"context"
	"sort"
	"strings"
)

// LeaderboardRow is one ranked line of a leaderboard page.
type LeaderboardRow struct {
	Rank        int    `json:"rank"`
	IdentityID  string `json:"identityId"`
	DisplayName string `json:"displayName"`
	Rating      int    `json:"rating"`
	Peak        int    `json:"peak"`
	Floor       int    `json:"floor"`
	GamesPlayed int    `json:"gamesPlayed"`
	Streak      int    `json:"streak"`
}

// LeaderboardPage is one page of the ranked standings for a game type.
// Total counts every qualifying player, not just the page.
type LeaderboardPage struct {
	GameType string           `json:"gameType"`
	Page     int              `json:"page"`
	Limit    int              `json:"limit"`
	Total    int              `json:"total"`
	Rows     []LeaderboardRow `json:"rows"`
}

// Leaderboard ranks every identity with at least minGames applied games
// of the given type, rating descending. Ties break by games played
// descending, then display name ascending. minGames < 0 selects the
// default qualification threshold; page and limit are clamped to sane
// values.
func (e *Engine) Leaderboard(ctx context.Context, gameType string, page, limit, minGames int) (*LeaderboardPage, error) {
	gt := NormalizeGameType(gameType)
	if minGames < 0 {
		minGames = DefaultMinGames
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	idents, err := e.identities.FetchAll(ctx)
	if err != nil {
		return nil, err
	}

	rows := make([]LeaderboardRow, 0, len(idents))
	for _, ident := range idents {
		rec, ok := ident.Ratings[gt]
		if !ok || rec.GamesPlayed < minGames {
			continue
		}
		rows = append(rows, LeaderboardRow{
			IdentityID:  ident.ID,
			DisplayName: ident.DisplayName,
			Rating:      rec.Rating,
			Peak:        rec.Peak,
			Floor:       rec.Floor,
			GamesPlayed: rec.GamesPlayed,
			Streak:      rec.Streak,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Rating != rows[j].Rating {
			return rows[i].Rating > rows[j].Rating
		}
		if rows[i].GamesPlayed != rows[j].GamesPlayed {
			return rows[i].GamesPlayed > rows[j].GamesPlayed
		}
		return strings.Compare(rows[i].DisplayName, rows[j].DisplayName) < 0
	})

	total := len(rows)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	pageRows := rows[start:end]
	for i := range pageRows {
		pageRows[i].Rank = start + i + 1
	}

	return &LeaderboardPage{
		GameType: gt,
		Page:     page,
		Limit:    limit,
		Total:    total,
		Rows:     pageRows,
	}, nil
}

// History returns the newest-first applied games for one identity and
// game type, at most limit entries (limit <= 0 means all retained).
// Identities never rated in the type get an empty slice, not an error;
// a missing identity is ErrNotFound.
func (e *Engine) History(ctx context.Context, identityID, gameType string, limit int) ([]HistoryEntry, error) {
	idents, err := e.identities.FetchByIDs(ctx, []string{identityID})
	if err != nil {
		return nil, err
	}
	if len(idents) == 0 {
		return nil, ErrNotFound
	}
	rec := idents[0].Ratings.Lookup(NormalizeGameType(gameType))
	entries := rec.History
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return append([]HistoryEntry(nil), entries...), nil
}
