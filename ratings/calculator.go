package ratings

import "math"

// KFactor returns the volatility coefficient for a player, tapering as
// their record matures.
func KFactor(gamesPlayed int) int {
	switch {
	case gamesPlayed < 10:
		return 40
	case gamesPlayed < 30:
		return 32
	case gamesPlayed < 100:
		return 24
	default:
		return 16
	}
}

// marginFactor scales one pairwise result by its score gap. The factor
// amplifies a win (1+step) and dampens a loss (1-step); near-ties inside
// ten points stay neutral.
func marginFactor(score, oppScore int) float64 {
	diff := score - oppScore
	gap := diff
	if gap < 0 {
		gap = -gap
	}
	var step float64
	switch {
	case gap >= 50:
		step = 0.25
	case gap >= 30:
		step = 0.15
	case gap >= 10:
		step = 0.05
	default:
		return 1
	}
	if diff > 0 {
		return 1 + step
	}
	return 1 - step
}

// streakBonus rewards a first-place finish by the streak the player
// carried in, capped at 10. A win streak pays on the extended length,
// a snapped loss streak pays on its magnitude, and streak 0 pays
// nothing, which keeps the plain two-player case between new players
// zero-sum. There is deliberately no mirror penalty for losing.
func streakBonus(streak int) int {
	if streak == 0 {
		return 0
	}
	steps := streak
	if steps < 0 {
		steps = -steps
	} else {
		steps++
	}
	bonus := steps * 2
	if bonus > 10 {
		bonus = 10
	}
	return bonus
}

// expectedScore is the classic logistic expectation of beating an
// opponent at the given rating gap.
func expectedScore(rating, oppRating int) float64 {
	return 1.0 / (1.0 + math.Pow(10, float64(oppRating-rating)/400.0))
}

// CalculateUpdates computes a rating delta for every participant with a
// linked identity present in records (keyed by identity id, holding each
// player's current record for the game type). Participants absent from
// records receive no update; an opponent absent from records is read as
// holding the default record.
//
// For each rated player the actual and expected scores are accumulated
// pairwise against every other linked participant, while the margin
// factor accumulates against every other participant, linked or not;
// the per-opponent factors are combined by geometric mean so the margin
// effect does not grow with table size. Unfinished games and games with
// fewer than two participants yield no updates.
func CalculateUpdates(game *GameOutcome, records map[string]*Record) []Update {
	if game == nil || !game.Finished {
		return nil
	}
	placed, ok := ResolvePlacements(game.Participants)
	if !ok {
		return nil
	}

	recordFor := func(id string) *Record {
		if rec, ok := records[id]; ok && rec != nil {
			return rec
		}
		return NewRecord()
	}

	var updates []Update
	for i, p := range placed {
		if p.IdentityID == "" {
			continue
		}
		if _, ok := records[p.IdentityID]; !ok {
			continue
		}
		rec := recordFor(p.IdentityID)

		var expected, actual float64
		margin := 1.0
		opponents := make([]string, 0, len(placed)-1)
		for j, o := range placed {
			if j == i {
				continue
			}
			opponents = append(opponents, o.DisplayName)
			margin *= marginFactor(p.Score, o.Score)
			if o.IdentityID == "" {
				continue
			}
			expected += expectedScore(rec.Rating, recordFor(o.IdentityID).Rating)
			switch {
			case p.Score > o.Score:
				actual += 1
			case p.Score == o.Score:
				actual += 0.5
			}
		}
		if n := len(opponents); n > 0 {
			margin = math.Pow(margin, 1.0/float64(n))
		}

		delta := float64(KFactor(rec.GamesPlayed)) * (actual - expected) * margin
		won := p.Placement == 1
		if won {
			delta += float64(streakBonus(rec.Streak))
		}

		newRating := rec.Rating + int(math.Round(delta))
		if newRating < MinRating {
			newRating = MinRating
		}
		updates = append(updates, Update{
			IdentityID:  p.IdentityID,
			DisplayName: p.DisplayName,
			Placement:   p.Placement,
			Score:       p.Score,
			OldRating:   rec.Rating,
			NewRating:   newRating,
			Delta:       newRating - rec.Rating,
			Won:         won,
			Opponents:   opponents,
		})
	}
	return updates
}
