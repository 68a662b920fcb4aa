package vector

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/balidesk/oracle/pkg/oerr"
)

func floatPtr(f float64) *float64 { return &f }

func TestFilter_Matches(t *testing.T) {
	payload := map[string]interface{}{
		"tier":      "A",
		"min_level": int64(2),
		"language":  "id",
	}

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"nil filter matches all", nil, true},
		{"equality hit", &Filter{Equals: map[string]interface{}{"language": "id"}}, true},
		{"equality miss", &Filter{Equals: map[string]interface{}{"language": "en"}}, false},
		{"in-set hit", &Filter{InSet: map[string][]string{"tier": {"C", "B", "A"}}}, true},
		{"in-set miss", &Filter{InSet: map[string][]string{"tier": {"S"}}}, false},
		{"range hit", &Filter{Range: map[string]RangeCond{"min_level": {LTE: floatPtr(3)}}}, true},
		{"range miss", &Filter{Range: map[string]RangeCond{"min_level": {GTE: floatPtr(3)}}}, false},
		{
			"conjunction needs all conditions",
			&Filter{
				Equals: map[string]interface{}{"language": "id"},
				InSet:  map[string][]string{"tier": {"S"}},
			},
			false,
		},
		{"missing field misses", &Filter{Equals: map[string]interface{}{"topic": "tax"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(payload); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMemoryStore_SearchWithTierFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.EnsureCollection(ctx, "visa_oracle", 3); err != nil {
		t.Fatal(err)
	}

	idA := uuid.NewString()
	idS := uuid.NewString()
	err := store.Upsert(ctx, "visa_oracle", []Point{
		{ID: idA, Vector: []float32{1, 0, 0}, Payload: map[string]interface{}{"tier": "A"}},
		{ID: idS, Vector: []float32{0.9, 0.1, 0}, Payload: map[string]interface{}{"tier": "S"}},
	})
	if err != nil {
		t.Fatal(err)
	}

	filter := &Filter{InSet: map[string][]string{"tier": {"C", "B", "A"}}}
	results, err := store.Search(ctx, "visa_oracle", []float32{1, 0, 0}, filter, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].ID != idA {
		t.Errorf("result id = %s, want the tier A point", results[0].ID)
	}
}

func TestMemoryStore_OrdersByScore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.EnsureCollection(ctx, "tax_genius", 2)

	near := uuid.NewString()
	far := uuid.NewString()
	store.Upsert(ctx, "tax_genius", []Point{
		{ID: far, Vector: []float32{0, 1}},
		{ID: near, Vector: []float32{1, 0.1}},
	})

	results, err := store.Search(ctx, "tax_genius", []float32{1, 0}, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != near {
		t.Errorf("expected nearest point %s first, got %+v", near, results)
	}
}

func TestValidatePoints(t *testing.T) {
	good := Point{ID: uuid.NewString(), Vector: []float32{1, 2, 3}}

	if err := validatePoints("op", 3, []Point{good}); err != nil {
		t.Errorf("valid point rejected: %v", err)
	}

	err := validatePoints("op", 3, []Point{{ID: "not-a-uuid", Vector: []float32{1, 2, 3}}})
	if !oerr.Is(err, oerr.KindInputInvalid) {
		t.Errorf("non-UUID id: got %v, want InputInvalid", err)
	}

	err = validatePoints("op", 3, []Point{{ID: uuid.NewString(), Vector: []float32{1, 2}}})
	if !oerr.Is(err, oerr.KindDimensionMismatch) {
		t.Errorf("short vector: got %v, want DimensionMismatch", err)
	}

	big := make(map[string]interface{})
	big["text"] = string(make([]byte, MaxPayloadBytes+1))
	err = validatePoints("op", 3, []Point{{ID: uuid.NewString(), Vector: []float32{1, 2, 3}, Payload: big}})
	if !oerr.Is(err, oerr.KindInputInvalid) {
		t.Errorf("oversized payload: got %v, want InputInvalid", err)
	}
}

func TestMemoryStore_MissingCollection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Search(ctx, "nope", []float32{1}, nil, 5)
	if !oerr.Is(err, oerr.KindCollectionMissing) {
		t.Errorf("got %v, want CollectionMissing", err)
	}
}
