package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/balidesk/oracle/pkg/embedder"
	"github.com/balidesk/oracle/pkg/oerr"
	"github.com/balidesk/oracle/pkg/vector"
)

// VectorCollection holds per-user memory notes for similarity recall.
const VectorCollection = "user_memories"

// MaxRecall caps the memory notes pulled into a single prompt.
const MaxRecall = 5

// recallNamespace is the UUIDv5 namespace for memory point ids. A note
// stored twice for the same user overwrites itself.
var recallNamespace = uuid.MustParse("3b6cdd0a-4f58-41c7-9d2e-8c5a71260b14")

// Recall reads and writes user memory notes in the vector store, scoped to
// one user by payload filter.
type Recall struct {
	embed   embedder.Embedder
	vectors vector.Store
}

// NewRecall creates the recall component.
func NewRecall(emb embedder.Embedder, vectors vector.Store) *Recall {
	return &Recall{embed: emb, vectors: vectors}
}

// Search returns the user's memory notes most similar to the query. A
// missing collection (nothing stored yet) is an empty result, not an error.
func (r *Recall) Search(ctx context.Context, email, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = MaxRecall
	}

	vec, err := r.embed.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed memory query: %w", err)
	}

	filter := &vector.Filter{Equals: map[string]interface{}{"user_email": email}}
	hits, err := r.vectors.Search(ctx, VectorCollection, vec, filter, limit)
	if err != nil {
		if oerr.Is(err, oerr.KindCollectionMissing) {
			return nil, nil
		}
		return nil, err
	}

	notes := make([]string, 0, len(hits))
	for _, h := range hits {
		if text, ok := h.Payload["text"].(string); ok && text != "" {
			notes = append(notes, text)
		}
	}
	return notes, nil
}

// Store embeds and upserts memory notes for a user. Ids are deterministic
// per (user, note), so repeated facts overwrite instead of accumulating.
func (r *Recall) Store(ctx context.Context, email string, notes []string) error {
	if len(notes) == 0 {
		return nil
	}

	if err := r.vectors.EnsureCollection(ctx, VectorCollection, r.embed.Dimension()); err != nil {
		return fmt.Errorf("failed to ensure memory collection: %w", err)
	}

	vecs, err := r.embed.EmbedBatch(ctx, notes)
	if err != nil {
		return fmt.Errorf("failed to embed memory notes: %w", err)
	}

	points := make([]vector.Point, len(notes))
	for i, note := range notes {
		points[i] = vector.Point{
			ID:     uuid.NewSHA1(recallNamespace, []byte(email+":"+note)).String(),
			Vector: vecs[i],
			Payload: map[string]interface{}{
				"text":       note,
				"user_email": email,
			},
		}
	}
	if err := r.vectors.Upsert(ctx, VectorCollection, points); err != nil {
		return fmt.Errorf("failed to upsert memory notes: %w", err)
	}
	return nil
}
