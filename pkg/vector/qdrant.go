package vector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/qdrant/go-client/qdrant"

	"github.com/balidesk/oracle/pkg/config"
	"github.com/balidesk/oracle/pkg/oerr"
)

// QdrantStore implements Store against a Qdrant server over gRPC.
type QdrantStore struct {
	client *qdrant.Client

	// Dimensions observed via EnsureCollection, used to reject mismatched
	// vectors before they reach the wire.
	mu   sync.RWMutex
	dims map[string]int
}

// NewQdrantStore creates a Qdrant-backed store from configuration.
func NewQdrantStore(cfg config.VectorConfig) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{
		client: client,
		dims:   make(map[string]int),
	}, nil
}

// EnsureCollection creates the collection with cosine distance if missing.
func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return oerr.E(oerr.KindTransport, "vector.EnsureCollection", err)
	}

	if !exists {
		err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: name,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			// Another ingester may have created it concurrently.
			if !strings.Contains(err.Error(), "already exists") {
				return oerr.E(oerr.KindTransport, "vector.EnsureCollection", err)
			}
		}
		slog.Info("Created vector collection", "collection", name, "dimension", dim)
	}

	s.mu.Lock()
	s.dims[name] = dim
	s.mu.Unlock()
	return nil
}

// Upsert inserts or replaces points in a collection.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.RLock()
	dim := s.dims[collection]
	s.mu.RUnlock()

	if err := validatePoints("vector.Upsert", dim, points); err != nil {
		return err
	}

	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload := make(map[string]*qdrant.Value, len(p.Payload))
		for key, value := range p.Payload {
			val, err := qdrant.NewValue(value)
			if err != nil {
				return oerr.E(oerr.KindInputInvalid, "vector.Upsert",
					fmt.Errorf("failed to convert payload value for key %s: %w", key, err))
			}
			payload[key] = val
		}
		qdrantPoints = append(qdrantPoints, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qdrantPoints,
	})
	if err != nil {
		return s.typed("vector.Upsert", collection, err)
	}
	return nil
}

// Search runs similarity search with an optional payload filter.
func (s *QdrantStore) Search(ctx context.Context, collection string, queryVector []float32, filter *Filter, limit int) ([]SearchResult, error) {
	qFilter, err := filter.toQdrant()
	if err != nil {
		return nil, oerr.E(oerr.KindInputInvalid, "vector.Search", err)
	}

	searchRequest := &qdrant.SearchPoints{
		CollectionName: collection,
		Vector:         queryVector,
		Filter:         qFilter,
		Limit:          uint64(limit),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	searchResult, err := s.client.GetPointsClient().Search(ctx, searchRequest)
	if err != nil {
		return nil, s.typed("vector.Search", collection, err)
	}

	results := make([]SearchResult, 0, len(searchResult.Result))
	for _, point := range searchResult.Result {
		var id string
		if point.Id != nil {
			switch idType := point.Id.PointIdOptions.(type) {
			case *qdrant.PointId_Uuid:
				id = idType.Uuid
			case *qdrant.PointId_Num:
				id = fmt.Sprintf("%d", idType.Num)
			}
		}
		results = append(results, SearchResult{
			ID:      id,
			Score:   point.Score,
			Payload: decodePayload(point.Payload),
		})
	}
	return results, nil
}

// Delete removes points by id.
func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}})
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{Ids: pointIDs},
			},
		},
	})
	if err != nil {
		return s.typed("vector.Delete", collection, err)
	}
	return nil
}

// Stats returns the point count and known dimension of a collection.
func (s *QdrantStore) Stats(ctx context.Context, collection string) (*CollectionStats, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, oerr.E(oerr.KindTransport, "vector.Stats", err)
	}
	if !exists {
		return nil, oerr.E(oerr.KindCollectionMissing, "vector.Stats",
			fmt.Errorf("collection %s does not exist", collection))
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{CollectionName: collection})
	if err != nil {
		return nil, s.typed("vector.Stats", collection, err)
	}

	s.mu.RLock()
	dim := s.dims[collection]
	s.mu.RUnlock()

	return &CollectionStats{
		Name:       collection,
		PointCount: count,
		Dimension:  dim,
	}, nil
}

// Close closes the Qdrant client.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// typed maps transport failures to the error taxonomy. Qdrant reports
// unknown collections as a "not found" / "doesn't exist" status.
func (s *QdrantStore) typed(op, collection string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not found") || strings.Contains(msg, "doesn't exist") || strings.Contains(msg, "does not exist") {
		return oerr.E(oerr.KindCollectionMissing, op, fmt.Errorf("collection %s: %w", collection, err))
	}
	if strings.Contains(msg, "dimension") || strings.Contains(msg, "vector size") {
		return oerr.E(oerr.KindDimensionMismatch, op, err)
	}
	return oerr.E(oerr.KindTransport, op, err)
}

// decodePayload converts Qdrant values back to plain Go values.
func decodePayload(payload map[string]*qdrant.Value) map[string]interface{} {
	if payload == nil {
		return nil
	}
	out := make(map[string]interface{}, len(payload))
	for key, value := range payload {
		out[key] = decodeValue(value)
	}
	return out
}

func decodeValue(value *qdrant.Value) interface{} {
	switch v := value.Kind.(type) {
	case *qdrant.Value_StringValue:
		return v.StringValue
	case *qdrant.Value_IntegerValue:
		return v.IntegerValue
	case *qdrant.Value_DoubleValue:
		return v.DoubleValue
	case *qdrant.Value_BoolValue:
		return v.BoolValue
	case *qdrant.Value_ListValue:
		if v.ListValue == nil {
			return nil
		}
		list := make([]interface{}, len(v.ListValue.Values))
		for i, item := range v.ListValue.Values {
			list[i] = decodeValue(item)
		}
		return list
	default:
		return value
	}
}

// Ensure QdrantStore implements Store.
var _ Store = (*QdrantStore)(nil)
