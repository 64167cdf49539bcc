package ratings

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory IdentityStore and GameStore. It backs tests
// and the server's no-database mode. All reads hand out clones, so a
// caller mutating a fetched value cannot corrupt the store.
type MemStore struct {
	mu         sync.Mutex
	identities map[string]*Identity
	games      map[string]*GameOutcome
	noTx       bool
}

func NewMemStore() *MemStore {
	return &MemStore{
		identities: make(map[string]*Identity),
		games:      make(map[string]*GameOutcome),
	}
}

// DisableTransactions makes the store report no multi-record
// transaction support, for exercising the sequential write path.
func (s *MemStore) DisableTransactions() {
	s.mu.Lock()
	s.noTx = true
	s.mu.Unlock()
}

func (s *MemStore) AtomicSupported() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.noTx
}

func (s *MemStore) FetchByIDs(ctx context.Context, ids []string) ([]*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Identity, 0, len(ids))
	for _, id := range ids {
		if ident, ok := s.identities[id]; ok {
			out = append(out, ident.Clone())
		}
	}
	return out, nil
}

func (s *MemStore) FetchAll(ctx context.Context) ([]*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Identity, 0, len(s.identities))
	for _, ident := range s.identities {
		out = append(out, ident.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemStore) Persist(ctx context.Context, ident *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[ident.ID]; !ok {
		return ErrNotFound
	}
	s.identities[ident.ID] = ident.Clone()
	return nil
}

// UpdateAtomic holds the store lock for the whole read-mutate-write
// cycle, which is as atomic as a single process gets.
func (s *MemStore) UpdateAtomic(ctx context.Context, ids []string, fn func(idents []*Identity) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noTx {
		return ErrTxUnsupported
	}
	idents := make([]*Identity, 0, len(ids))
	for _, id := range ids {
		if ident, ok := s.identities[id]; ok {
			idents = append(idents, ident.Clone())
		}
	}
	if err := fn(idents); err != nil {
		return err
	}
	for _, ident := range idents {
		s.identities[ident.ID] = ident
	}
	return nil
}

// UpsertIdentity stores the identity, minting an id when empty, and
// returns the stored copy. A known id only refreshes the display name;
// the rating map already on record survives the upsert.
func (s *MemStore) UpsertIdentity(ctx context.Context, ident *Identity) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := ident.Clone()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if prev, ok := s.identities[cp.ID]; ok {
		cp.Ratings = prev.Ratings.Clone()
	} else if cp.Ratings == nil {
		cp.Ratings = RatingMap{}
	}
	s.identities[cp.ID] = cp
	return cp.Clone(), nil
}

// SaveGame stores the outcome with a normalized game type, minting an
// id when empty, and returns the stored copy.
func (s *MemStore) SaveGame(ctx context.Context, game *GameOutcome) (*GameOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := game.Clone()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.GameType = NormalizeGameType(cp.GameType)
	s.games[cp.ID] = cp
	return cp.Clone(), nil
}

func (s *MemStore) GetGame(ctx context.Context, id string) (*GameOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[id]
	if !ok {
		return nil, ErrNotFound
	}
	return game.Clone(), nil
}

func (s *MemStore) FinishedGames(ctx context.Context, gameType string) ([]*GameOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*GameOutcome, 0, len(s.games))
	for _, game := range s.games {
		if !game.Finished {
			continue
		}
		if gameType != "" && game.GameType != gameType {
			continue
		}
		out = append(out, game.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
