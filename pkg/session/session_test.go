package session

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/balidesk/oracle/pkg/oerr"
)

// backends returns the stores the contract tests run against. Redis needs
// a live server, so it is covered by integration tests only.
func backends(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(t.TempDir() + "/sessions.db")
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_Contract(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			ctx := context.Background()

			sess, err := store.Create(ctx, "u1", "")
			if err != nil {
				t.Fatal(err)
			}
			if _, err := uuid.Parse(sess.ID); err != nil {
				t.Errorf("generated session id %q is not a UUID", sess.ID)
			}
			if sess.UserID != "u1" {
				t.Errorf("user id = %s", sess.UserID)
			}

			// Create is idempotent on an explicit id.
			again, err := store.Create(ctx, "u1", sess.ID)
			if err != nil {
				t.Fatal(err)
			}
			if again.ID != sess.ID {
				t.Error("create with same id returned different session")
			}

			turns := []*Turn{
				{Role: "user", Content: "How much is a KITAS?"},
				{Role: "assistant", Content: "It depends on the type.", Model: "gemini-2.5-flash"},
				{Role: "user", Content: "Investor KITAS."},
			}
			for _, turn := range turns {
				if err := store.AppendTurn(ctx, sess.ID, turn); err != nil {
					t.Fatal(err)
				}
			}

			recent, err := store.Recent(ctx, sess.ID, 2)
			if err != nil {
				t.Fatal(err)
			}
			if len(recent) != 2 {
				t.Fatalf("got %d recent turns, want 2", len(recent))
			}
			if recent[0].Content != "It depends on the type." || recent[1].Content != "Investor KITAS." {
				t.Errorf("wrong turns or order: %q, %q", recent[0].Content, recent[1].Content)
			}
			if recent[0].Model != "gemini-2.5-flash" {
				t.Errorf("model not persisted: %q", recent[0].Model)
			}

			if err := store.Delete(ctx, sess.ID); err != nil {
				t.Fatal(err)
			}
			if _, err := store.Get(ctx, sess.ID); !oerr.Is(err, oerr.KindNotFound) {
				t.Errorf("get after delete = %v, want not found", err)
			}
		})
	}
}

func TestMemoryStore_ReturnsIndependentCopies(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	sess, err := store.Create(ctx, "u1", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.AppendTurn(ctx, sess.ID, &Turn{Role: "user", Content: "original"}); err != nil {
		t.Fatal(err)
	}

	copy1, err := store.Create(ctx, "u1", sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	copy1.UserID = "tampered"
	copy1.Turns[0].Content = "tampered"

	recent, err := store.Recent(ctx, sess.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if recent[0].Content != "original" {
		t.Errorf("stored turn mutated through a returned copy: %q", recent[0].Content)
	}
	got, err := store.Get(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != "u1" {
		t.Errorf("stored session mutated through a returned copy: %q", got.UserID)
	}
}

func TestStore_AppendToUnknownSession(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			err := store.AppendTurn(context.Background(), "does-not-exist", &Turn{Role: "user", Content: "hi"})
			if name == "sqlite" || name == "memory" {
				if !oerr.Is(err, oerr.KindNotFound) {
					t.Errorf("err = %v, want not found", err)
				}
			}
		})
	}
}
