package ratings

import (
	"context"
	"errors"
)

var (
	// ErrTxUnsupported signals a backend without multi-record
	// transactions; the applier downgrades to sequential writes.
	ErrTxUnsupported = errors.New("store does not support multi-record transactions")
	// ErrConflict marks a transient write conflict worth retrying.
	ErrConflict = errors.New("write conflict")
	// ErrNotFound marks a missing identity or game.
	ErrNotFound = errors.New("not found")
)

// IdentityStore is the external home of tracked players and their
// rating maps. Implementations must hand out independent copies: a
// fetched identity mutated by the caller must not leak into the store
// until persisted.
type IdentityStore interface {
	FetchByIDs(ctx context.Context, ids []string) ([]*Identity, error)
	FetchAll(ctx context.Context) ([]*Identity, error)
	Persist(ctx context.Context, ident *Identity) error

	// UpdateAtomic re-reads the identities inside a multi-record
	// transaction, applies fn to them, and commits all writes as one
	// unit. Returns ErrTxUnsupported when the backend cannot, and an
	// error wrapping ErrConflict on serialization failures.
	UpdateAtomic(ctx context.Context, ids []string, fn func(idents []*Identity) error) error

	// AtomicSupported reports the transaction capability; the engine
	// resolves it once at construction.
	AtomicSupported() bool
}

// GameStore is the external source of finished games. gameType filters
// by normalized type when non-empty.
type GameStore interface {
	FinishedGames(ctx context.Context, gameType string) ([]*GameOutcome, error)
}
