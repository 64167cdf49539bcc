package store

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"card-ladder/ratings"
)

func TestClassifyRetryableCodes(t *testing.T) {
	for _, code := range []string{"40001", "40P01"} {
		err := classify(&pgconn.PgError{Code: code, Message: "boom"})
		if !errors.Is(err, ratings.ErrConflict) {
			t.Fatalf("code %s: got %v, want ErrConflict", code, err)
		}
	}
}

func TestClassifyPassesOtherErrorsThrough(t *testing.T) {
	unique := &pgconn.PgError{Code: "23505", Message: "duplicate key"}
	if err := classify(unique); !errors.Is(err, unique) {
		t.Fatalf("got %v, want the original error", err)
	}
	plain := errors.New("not a pg error")
	if err := classify(plain); err != plain {
		t.Fatalf("got %v, want identity", err)
	}
	if err := classify(nil); err != nil {
		t.Fatalf("classify(nil) = %v", err)
	}
}
