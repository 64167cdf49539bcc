package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"card-ladder/ratings"
)

//go:embed schema.sql
var schema embed.FS

type DB struct{ *pgxpool.Pool }

func Open(dsn string) (*DB, error) {
	p, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &DB{p}, nil
}

func (db *DB) Close(ctx context.Context)      { db.Pool.Close() }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

// classify maps serialization failures (40001) and deadlocks (40P01) to
// ratings.ErrConflict so the engine knows they are worth retrying.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "40001" || pgErr.Code == "40P01" {
			return fmt.Errorf("%w: %v", ratings.ErrConflict, err)
		}
	}
	return err
}

/* -----------------------------
   Identities
------------------------------*/

// UpsertIdentity inserts or renames an identity. An existing row keeps
// its ratings; the returned identity reflects the stored state.
func (db *DB) UpsertIdentity(ctx context.Context, ident *ratings.Identity) (*ratings.Identity, error) {
	cp := ident.Clone()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.Ratings == nil {
		cp.Ratings = ratings.RatingMap{}
	}
	err := db.QueryRow(ctx, `
        INSERT INTO identities(id, display_name, ratings)
        VALUES ($1,$2,$3)
        ON CONFLICT (id) DO UPDATE
          SET display_name = EXCLUDED.display_name,
              updated_at = now()
        RETURNING ratings
    `, cp.ID, cp.DisplayName, cp.Ratings).Scan(&cp.Ratings)
	if err != nil {
		return nil, classify(err)
	}
	return cp, nil
}

func (db *DB) FetchByIDs(ctx context.Context, ids []string) ([]*ratings.Identity, error) {
	rows, err := db.Query(ctx, `
		SELECT id, display_name, ratings
		  FROM identities
		 WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return scanIdentities(rows)
}

func (db *DB) FetchAll(ctx context.Context) ([]*ratings.Identity, error) {
	rows, err := db.Query(ctx, `
		SELECT id, display_name, ratings
		  FROM identities
		 ORDER BY id
	`)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	return scanIdentities(rows)
}

func (db *DB) Persist(ctx context.Context, ident *ratings.Identity) error {
	tag, err := db.Exec(ctx, `
		UPDATE identities
		   SET display_name = $2,
		       ratings = $3,
		       updated_at = now()
		 WHERE id = $1
	`, ident.ID, ident.DisplayName, ident.Ratings)
	if err != nil {
		return classify(err)
	}
	if tag.RowsAffected() == 0 {
		return ratings.ErrNotFound
	}
	return nil
}

// UpdateAtomic re-reads the identities under a serializable transaction
// with row locks, applies fn, and commits every write as one unit.
func (db *DB) UpdateAtomic(ctx context.Context, ids []string, fn func(idents []*ratings.Identity) error) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, display_name, ratings
		  FROM identities
		 WHERE id = ANY($1)
		 ORDER BY id
		   FOR UPDATE
	`, ids)
	if err != nil {
		return classify(err)
	}
	idents, err := scanIdentities(rows)
	rows.Close()
	if err != nil {
		return classify(err)
	}

	if err := fn(idents); err != nil {
		return err
	}

	for _, ident := range idents {
		if _, err := tx.Exec(ctx, `
			UPDATE identities
			   SET ratings = $2,
			       updated_at = now()
			 WHERE id = $1
		`, ident.ID, ident.Ratings); err != nil {
			return classify(err)
		}
	}
	return classify(tx.Commit(ctx))
}

func (db *DB) AtomicSupported() bool { return true }

func scanIdentities(rows pgx.Rows) ([]*ratings.Identity, error) {
	var out []*ratings.Identity
	for rows.Next() {
		ident := &ratings.Identity{Ratings: ratings.RatingMap{}}
		if err := rows.Scan(&ident.ID, &ident.DisplayName, &ident.Ratings); err != nil {
			return nil, err
		}
		out = append(out, ident)
	}
	return out, rows.Err()
}

/* -----------------------------
   Games
------------------------------*/

func (db *DB) SaveGame(ctx context.Context, game *ratings.GameOutcome) (*ratings.GameOutcome, error) {
	cp := game.Clone()
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.GameType = ratings.NormalizeGameType(cp.GameType)
	var occurred *time.Time
	if !cp.OccurredAt.IsZero() {
		occurred = &cp.OccurredAt
	}
	err := db.QueryRow(ctx, `
        INSERT INTO games(id, game_type, finished, occurred_at, participants)
        VALUES ($1,$2,$3,$4,$5)
        ON CONFLICT (id) DO UPDATE
          SET game_type = EXCLUDED.game_type,
              finished = EXCLUDED.finished,
              occurred_at = EXCLUDED.occurred_at,
              participants = EXCLUDED.participants
        RETURNING created_at
    `, cp.ID, cp.GameType, cp.Finished, occurred, cp.Participants).Scan(&cp.CreatedAt)
	if err != nil {
		return nil, classify(err)
	}
	return cp, nil
}

func (db *DB) GetGame(ctx context.Context, id string) (*ratings.GameOutcome, error) {
	row := db.QueryRow(ctx, `
		SELECT id, game_type, finished, occurred_at, participants, created_at
		  FROM games
		 WHERE id = $1
	`, id)
	game, err := scanGame(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ratings.ErrNotFound
	}
	return game, err
}

func (db *DB) FinishedGames(ctx context.Context, gameType string) ([]*ratings.GameOutcome, error) {
	q := `
		SELECT id, game_type, finished, occurred_at, participants, created_at
		  FROM games
		 WHERE finished
		 ORDER BY COALESCE(occurred_at, created_at), id
	`
	args := []any{}
	if gameType != "" {
		q = `
		SELECT id, game_type, finished, occurred_at, participants, created_at
		  FROM games
		 WHERE finished AND game_type = $1
		 ORDER BY COALESCE(occurred_at, created_at), id
	`
		args = append(args, gameType)
	}
	rows, err := db.Query(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var out []*ratings.GameOutcome
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, game)
	}
	return out, rows.Err()
}

func scanGame(row pgx.Row) (*ratings.GameOutcome, error) {
	game := &ratings.GameOutcome{}
	var occurred *time.Time
	if err := row.Scan(&game.ID, &game.GameType, &game.Finished, &occurred, &game.Participants, &game.CreatedAt); err != nil {
		return nil, err
	}
	if occurred != nil {
		game.OccurredAt = *occurred
	}
	return game, nil
}
