package ratings

import "time"

const (
	// StartRating seeds every new record; Peak and Floor start here too.
	StartRating = 1000
	// MinRating is the hard floor a rating can never drop below.
	MinRating = 100
	// HistoryCap bounds the per-record history; oldest entries are evicted.
	HistoryCap = 50
	// DefaultMinGames is the leaderboard qualification threshold.
	DefaultMinGames = 5
)

// HistoryEntry is one applied game from a record's point of view,
// newest first in Record.History. GameID doubles as the idempotency key.
type HistoryEntry struct {
	Rating    int       `json:"rating"`
	Change    int       `json:"change"`
	GameID    string    `json:"gameId"`
	Opponents []string  `json:"opponents"`
	Placement int       `json:"placement"`
	Date      time.Time `json:"date"`
}

// Record is one identity's rating state for one game type.
// Streak is signed: positive counts consecutive wins, negative losses.
type Record struct {
	Rating      int            `json:"rating"`
	Peak        int            `json:"peak"`
	Floor       int            `json:"floor"`
	GamesPlayed int            `json:"gamesPlayed"`
	Streak      int            `json:"streak"`
	LastUpdated time.Time      `json:"lastUpdated"`
	History     []HistoryEntry `json:"history"`
}

// NewRecord returns the default record a player holds before their
// first qualifying game.
func NewRecord() *Record {
	return &Record{Rating: StartRating, Peak: StartRating, Floor: StartRating}
}

// Clone makes a copy whose history is independent of the original.
func (r *Record) Clone() *Record {
	cp := *r
	cp.History = append([]HistoryEntry(nil), r.History...)
	return &cp
}

// RatingMap is the per-identity keyed container of game type → record.
type RatingMap map[string]*Record

// Lookup returns a copy of the record for gameType, or a fresh default
// when absent. The map is never modified.
func (m RatingMap) Lookup(gameType string) *Record {
	if rec, ok := m[gameType]; ok {
		return rec.Clone()
	}
	return NewRecord()
}

// Ensure returns the record for gameType, inserting a default first
// when absent.
func (m RatingMap) Ensure(gameType string) *Record {
	if rec, ok := m[gameType]; ok {
		return rec
	}
	rec := NewRecord()
	m[gameType] = rec
	return rec
}

// Clone deep-copies the map and its records.
func (m RatingMap) Clone() RatingMap {
	cp := make(RatingMap, len(m))
	for k, rec := range m {
		cp[k] = rec.Clone()
	}
	return cp
}

// Identity is a tracked player (registered or guest) owning one rating
// record per game type. The identity itself lives in an external store;
// this engine only mutates its Ratings.
type Identity struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	Ratings     RatingMap `json:"ratings"`
}

// Clone deep-copies the identity including its rating map.
func (id *Identity) Clone() *Identity {
	cp := *id
	cp.Ratings = id.Ratings.Clone()
	return &cp
}

// Participant is one seat in a finished game. IdentityID is empty for
// unlinked guests: they never receive a rating update but still occupy
// a placement slot and shape opponents' margins.
type Participant struct {
	IdentityID  string `json:"identityId,omitempty"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Placement   int    `json:"placement,omitempty"`
}

// GameOutcome is a finished game as delivered by the game store.
// Scores are higher-is-better; game types that score low-wins must be
// inverted upstream before the outcome reaches this engine.
type GameOutcome struct {
	ID           string        `json:"id"`
	GameType     string        `json:"gameType"`
	Finished     bool          `json:"finished"`
	OccurredAt   time.Time     `json:"occurredAt"`
	CreatedAt    time.Time     `json:"createdAt"`
	Participants []Participant `json:"participants"`
}

// EffectiveTime is the timestamp replay orders by: the game's own
// occurrence time when declared, otherwise the storage creation time.
func (g *GameOutcome) EffectiveTime() time.Time {
	if !g.OccurredAt.IsZero() {
		return g.OccurredAt
	}
	return g.CreatedAt
}

// Clone copies the outcome with an independent participant slice.
func (g *GameOutcome) Clone() *GameOutcome {
	cp := *g
	cp.Participants = append([]Participant(nil), g.Participants...)
	return &cp
}

// Update is the calculator's verdict for one linked participant.
type Update struct {
	IdentityID  string   `json:"identityId"`
	DisplayName string   `json:"displayName"`
	Placement   int      `json:"placement"`
	Score       int      `json:"score"`
	OldRating   int      `json:"oldRating"`
	NewRating   int      `json:"newRating"`
	Delta       int      `json:"delta"`
	Won         bool     `json:"won"`
	Opponents   []string `json:"opponents"`
}
