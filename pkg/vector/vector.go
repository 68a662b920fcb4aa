// Package vector provides a collection-scoped gateway to the vector store.
//
// Point ids are UUID strings, vectors must match the collection dimension,
// and payloads are capped at 64 KiB per point. Search results omit vectors.
package vector

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/balidesk/oracle/pkg/oerr"
)

// MaxPayloadBytes caps the serialized payload size of a single point.
const MaxPayloadBytes = 64 * 1024

// Point is a vector plus its payload, keyed by a UUID string.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]interface{}
}

// SearchResult is one similarity match. Vectors are intentionally omitted.
type SearchResult struct {
	ID      string
	Score   float32
	Payload map[string]interface{}
}

// CollectionStats describes a collection.
type CollectionStats struct {
	Name       string
	PointCount uint64
	Dimension  int
}

// Store is the vector database gateway.
type Store interface {
	// EnsureCollection creates the collection with the given dimension if it
	// does not already exist.
	EnsureCollection(ctx context.Context, name string, dim int) error

	// Upsert inserts or replaces points. Idempotent for identical ids.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search returns up to limit nearest points, most similar first.
	Search(ctx context.Context, collection string, queryVector []float32, filter *Filter, limit int) ([]SearchResult, error)

	// Delete removes points by id. Unknown ids are not an error.
	Delete(ctx context.Context, collection string, ids []string) error

	// Stats reports the point count and dimension of a collection.
	Stats(ctx context.Context, collection string) (*CollectionStats, error)

	// Close releases the underlying connection.
	Close() error
}

// validatePoints enforces the gateway contract: UUID ids, matching vector
// length and bounded payload size. dim <= 0 skips the dimension check (the
// collection dimension is unknown to this process).
func validatePoints(op string, dim int, points []Point) error {
	for _, p := range points {
		if _, err := uuid.Parse(p.ID); err != nil {
			return oerr.E(oerr.KindInputInvalid, op, fmt.Errorf("point id %q is not a UUID", p.ID))
		}
		if dim > 0 && len(p.Vector) != dim {
			return oerr.E(oerr.KindDimensionMismatch, op,
				fmt.Errorf("point %s has vector length %d, collection dimension is %d", p.ID, len(p.Vector), dim))
		}
		if p.Payload != nil {
			raw, err := json.Marshal(p.Payload)
			if err != nil {
				return oerr.E(oerr.KindInputInvalid, op, fmt.Errorf("point %s payload not serializable: %w", p.ID, err))
			}
			if len(raw) > MaxPayloadBytes {
				return oerr.E(oerr.KindInputInvalid, op,
					fmt.Errorf("point %s payload is %d bytes, limit is %d", p.ID, len(raw), MaxPayloadBytes))
			}
		}
	}
	return nil
}
