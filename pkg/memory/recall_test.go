package memory

import (
	"context"
	"testing"

	"github.com/balidesk/oracle/pkg/embedder"
	"github.com/balidesk/oracle/pkg/vector"
)

func TestRecall_StoreAndSearchScopedToUser(t *testing.T) {
	ctx := context.Background()
	r := NewRecall(embedder.NewFakeEmbedder(8), vector.NewMemoryStore())

	if err := r.Store(ctx, "amanda@example.com", []string{
		"Runs a villa rental business in Canggu",
		"Holds an investor KITAS",
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.Store(ctx, "marco@example.com", []string{
		"Opening a restaurant in Ubud",
	}); err != nil {
		t.Fatal(err)
	}

	notes, err := r.Search(ctx, "amanda@example.com", "Holds an investor KITAS", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 1 || notes[0] != "Holds an investor KITAS" {
		t.Fatalf("got %v", notes)
	}

	// The other user's note must never leak across the filter.
	notes, err = r.Search(ctx, "amanda@example.com", "Opening a restaurant in Ubud", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range notes {
		if n == "Opening a restaurant in Ubud" {
			t.Fatal("recall leaked another user's note")
		}
	}
}

func TestRecall_SearchBeforeAnyStoreIsEmpty(t *testing.T) {
	r := NewRecall(embedder.NewFakeEmbedder(8), vector.NewMemoryStore())

	notes, err := r.Search(context.Background(), "amanda@example.com", "who am i", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 0 {
		t.Fatalf("got %v, want nothing", notes)
	}
}

func TestRecall_RepeatedNoteOverwrites(t *testing.T) {
	ctx := context.Background()
	store := vector.NewMemoryStore()
	r := NewRecall(embedder.NewFakeEmbedder(8), store)

	for i := 0; i < 3; i++ {
		if err := r.Store(ctx, "amanda@example.com", []string{"Holds an investor KITAS"}); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := store.Stats(ctx, VectorCollection)
	if err != nil {
		t.Fatal(err)
	}
	if stats.PointCount != 1 {
		t.Fatalf("point count = %d, want 1", stats.PointCount)
	}
}
