package ratings

import (
	"context"
	"errors"
	"testing"
	"time"
)

func saveGame(t *testing.T, st *MemStore, game *GameOutcome) {
	t.Helper()
	if _, err := st.SaveGame(context.Background(), game); err != nil {
		t.Fatalf("save %s: %v", game.ID, err)
	}
}

func TestRecalculateReplaysChronologically(t *testing.T) {
	st := NewMemStore()
	seedIdentity(t, st, "a", "Alice")
	seedIdentity(t, st, "b", "Bob")
	eng := NewEngine(st, st)

	early := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	late := early.Add(24 * time.Hour)
	// Stored out of order on purpose; replay must go by occurrence time.
	saveGame(t, st, playedGame("g-late", late, 100, 105))
	saveGame(t, st, playedGame("g-early", early, 105, 100))

	summary, err := eng.Recalculate(context.Background(), RecalcOptions{})
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if summary.GamesProcessed != 2 || summary.PlayerUpdates != 4 {
		t.Fatalf("summary %+v, want 2 games and 4 player updates", summary)
	}
	if summary.PerType["hearts"] != 2 {
		t.Fatalf("per-type counts %v, want hearts:2", summary.PerType)
	}

	// Alice wins the early game (+20), then loses the late one while
	// rated 1020 against 980: 40 * -0.557 rounds to -22. Bob's late win
	// snaps a one game skid, so his 22.3 base carries a +2 bonus.
	alice := fetchRecord(t, st, "a", "hearts")
	bob := fetchRecord(t, st, "b", "hearts")
	if alice.Rating != 998 || bob.Rating != 1004 {
		t.Fatalf("ratings %d / %d, want 998 / 1004 from chronological replay", alice.Rating, bob.Rating)
	}
	if alice.GamesPlayed != 2 || bob.GamesPlayed != 2 {
		t.Fatalf("games played %d / %d, want 2 / 2", alice.GamesPlayed, bob.GamesPlayed)
	}
	if alice.History[0].GameID != "g-late" || alice.History[1].GameID != "g-early" {
		t.Fatalf("history order wrong: %+v", alice.History)
	}
}

func TestRecalculateResetsPriorState(t *testing.T) {
	st := NewMemStore()
	seedIdentity(t, st, "a", "Alice")
	seedIdentity(t, st, "b", "Bob")
	eng := NewEngine(st, st)

	when := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	game := playedGame("g1", when, 105, 100)
	saveGame(t, st, game)
	if _, err := eng.ApplyOutcome(context.Background(), game, "hearts"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	// A second apply during replay must not be blocked by the history
	// written above; the rebuild wipes it first.
	summary, err := eng.Recalculate(context.Background(), RecalcOptions{})
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if summary.GamesProcessed != 1 {
		t.Fatalf("processed %d games, want 1", summary.GamesProcessed)
	}
	alice := fetchRecord(t, st, "a", "hearts")
	if alice.GamesPlayed != 1 || len(alice.History) != 1 || alice.Rating != 1020 {
		t.Fatalf("state not rebuilt from scratch: %+v", alice)
	}
}

func TestRecalculateDryRunLeavesStoreAlone(t *testing.T) {
	st := NewMemStore()
	seedIdentity(t, st, "a", "Alice")
	seedIdentity(t, st, "b", "Bob")
	eng := NewEngine(st, st)

	when := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	saveGame(t, st, playedGame("g1", when, 105, 100))

	summary, err := eng.Recalculate(context.Background(), RecalcOptions{DryRun: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !summary.DryRun || summary.GamesProcessed != 1 || summary.PlayerUpdates != 2 {
		t.Fatalf("summary %+v, want dry run with 1 game and 2 updates", summary)
	}
	alice := fetchRecord(t, st, "a", "hearts")
	if alice.Rating != StartRating || alice.GamesPlayed != 0 {
		t.Fatalf("dry run wrote to the store: %+v", alice)
	}
}

func TestRecalculateFiltersByGameType(t *testing.T) {
	st := NewMemStore()
	seedIdentity(t, st, "a", "Alice")
	seedIdentity(t, st, "b", "Bob")
	eng := NewEngine(st, st)
	ctx := context.Background()

	when := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	hearts := playedGame("g-hearts", when, 105, 100)
	spades := playedGame("g-spades", when.Add(time.Hour), 105, 100)
	spades.GameType = "spades"
	saveGame(t, st, hearts)
	saveGame(t, st, spades)
	if _, err := eng.ApplyOutcome(ctx, hearts, "hearts"); err != nil {
		t.Fatalf("apply hearts: %v", err)
	}
	if _, err := eng.ApplyOutcome(ctx, spades, "spades"); err != nil {
		t.Fatalf("apply spades: %v", err)
	}

	summary, err := eng.Recalculate(ctx, RecalcOptions{GameType: "Hearts"})
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if summary.GamesProcessed != 1 || summary.PerType["hearts"] != 1 {
		t.Fatalf("summary %+v, want only the hearts game", summary)
	}
	idents, err := st.FetchByIDs(ctx, []string{"a"})
	if err != nil || len(idents) != 1 {
		t.Fatalf("fetch: %v", err)
	}
	if _, ok := idents[0].Ratings["spades"]; !ok {
		t.Fatal("filtered rebuild must leave other game types untouched")
	}
}

// brokenStore refuses every atomic update so each replayed game fails.
type brokenStore struct {
	*MemStore
}

func (s *brokenStore) UpdateAtomic(ctx context.Context, ids []string, fn func(idents []*Identity) error) error {
	return errors.New("disk on fire")
}

func TestRecalculateCollectsPerGameErrors(t *testing.T) {
	mem := NewMemStore()
	seedIdentity(t, mem, "a", "Alice")
	seedIdentity(t, mem, "b", "Bob")
	st := &brokenStore{MemStore: mem}
	eng := NewEngine(st, mem, WithRetry(time.Millisecond, 1))

	when := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	saveGame(t, mem, playedGame("g1", when, 105, 100))
	saveGame(t, mem, playedGame("g2", when.Add(time.Hour), 100, 105))

	var progress int
	summary, err := eng.Recalculate(context.Background(), RecalcOptions{
		OnProgress: func(done, total int) { progress = done },
	})
	if err != nil {
		t.Fatalf("run must survive per-game failures, got %v", err)
	}
	if progress != 2 {
		t.Fatalf("progress reached %d, failed games must still be reported", progress)
	}
	if len(summary.Errors) != 2 {
		t.Fatalf("got %d errors, want one per game: %+v", len(summary.Errors), summary.Errors)
	}
	if summary.GamesProcessed != 0 {
		t.Fatalf("processed %d, failed games must not count", summary.GamesProcessed)
	}
	if summary.Errors[0].GameID != "g1" || summary.Errors[0].GameType != "hearts" {
		t.Fatalf("error entry wrong: %+v", summary.Errors[0])
	}
}

func TestRecalculateReportsProgress(t *testing.T) {
	st := NewMemStore()
	seedIdentity(t, st, "a", "Alice")
	seedIdentity(t, st, "b", "Bob")
	eng := NewEngine(st, st)

	when := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	saveGame(t, st, playedGame("g1", when, 105, 100))
	saveGame(t, st, playedGame("g2", when.Add(time.Hour), 105, 100))

	var calls [][2]int
	_, err := eng.Recalculate(context.Background(), RecalcOptions{
		OnProgress: func(done, total int) { calls = append(calls, [2]int{done, total}) },
	})
	if err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	if len(calls) != 2 || calls[0] != [2]int{1, 2} || calls[1] != [2]int{2, 2} {
		t.Fatalf("progress calls %v, want (1,2) then (2,2)", calls)
	}
}
