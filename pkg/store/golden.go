package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
)

// GoldenRoute maps a canonical query to the collections and documents that
// answer it.
type GoldenRoute struct {
	RouteID        string
	CanonicalQuery string
	Collections    []string
	DocumentIDs    []string
	RoutingHints   map[string]interface{}
	UsageCount     int
}

// GoldenAnswer is a curated answer bound to a query cluster.
type GoldenAnswer struct {
	ClusterID         string
	CanonicalQuestion string
	Answer            string
	Sources           []string
	Confidence        float64
	UsageCount        int
}

// QueryCluster maps a normalized query hash to its cluster.
type QueryCluster struct {
	ClusterID string
	QueryHash string
	QueryText string
	Frequency int
}

// LoadGoldenRoutes returns all routes, ordered by route id for a stable
// embedding matrix.
func (s *Store) LoadGoldenRoutes(ctx context.Context) ([]*GoldenRoute, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT route_id, canonical_query, collections, document_ids, routing_hints, usage_count
		FROM golden_routes ORDER BY route_id`)
	if err != nil {
		return nil, s.mapErr("store.LoadGoldenRoutes", err)
	}
	defer rows.Close()

	var routes []*GoldenRoute
	for rows.Next() {
		var r GoldenRoute
		var hints []byte
		if err := rows.Scan(&r.RouteID, &r.CanonicalQuery, pq.Array(&r.Collections),
			pq.Array(&r.DocumentIDs), &hints, &r.UsageCount); err != nil {
			return nil, s.mapErr("store.LoadGoldenRoutes", err)
		}
		if len(hints) > 0 {
			if err := json.Unmarshal(hints, &r.RoutingHints); err != nil {
				return nil, fmt.Errorf("failed to unmarshal routing hints for %s: %w", r.RouteID, err)
			}
		}
		routes = append(routes, &r)
	}
	return routes, s.mapErr("store.LoadGoldenRoutes", rows.Err())
}

// ListGoldenAnswers returns all curated answers, ordered by cluster id for
// a stable embedding matrix.
func (s *Store) ListGoldenAnswers(ctx context.Context) ([]*GoldenAnswer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cluster_id, canonical_question, answer, sources, confidence, usage_count
		FROM golden_answers ORDER BY cluster_id`)
	if err != nil {
		return nil, s.mapErr("store.ListGoldenAnswers", err)
	}
	defer rows.Close()

	var answers []*GoldenAnswer
	for rows.Next() {
		var a GoldenAnswer
		if err := rows.Scan(&a.ClusterID, &a.CanonicalQuestion, &a.Answer,
			pq.Array(&a.Sources), &a.Confidence, &a.UsageCount); err != nil {
			return nil, s.mapErr("store.ListGoldenAnswers", err)
		}
		answers = append(answers, &a)
	}
	return answers, s.mapErr("store.ListGoldenAnswers", rows.Err())
}

// CountGoldenRoutes returns the route count used as the snapshot cache key.
func (s *Store) CountGoldenRoutes(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM golden_routes`).Scan(&n); err != nil {
		return 0, s.mapErr("store.CountGoldenRoutes", err)
	}
	return n, nil
}

// LookupCluster resolves a normalized query hash to its cluster.
func (s *Store) LookupCluster(ctx context.Context, queryHash string) (*QueryCluster, error) {
	var c QueryCluster
	err := s.db.QueryRowContext(ctx, `
		SELECT cluster_id, query_hash, query_text, frequency
		FROM query_clusters WHERE query_hash = $1`, queryHash).
		Scan(&c.ClusterID, &c.QueryHash, &c.QueryText, &c.Frequency)
	if err != nil {
		return nil, s.mapErr("store.LookupCluster", err)
	}
	return &c, nil
}

// GetGoldenAnswer fetches the curated answer for a cluster.
func (s *Store) GetGoldenAnswer(ctx context.Context, clusterID string) (*GoldenAnswer, error) {
	var a GoldenAnswer
	err := s.db.QueryRowContext(ctx, `
		SELECT cluster_id, canonical_question, answer, sources, confidence, usage_count
		FROM golden_answers WHERE cluster_id = $1`, clusterID).
		Scan(&a.ClusterID, &a.CanonicalQuestion, &a.Answer, pq.Array(&a.Sources),
			&a.Confidence, &a.UsageCount)
	if err != nil {
		return nil, s.mapErr("store.GetGoldenAnswer", err)
	}
	return &a, nil
}

// UpsertGoldenAnswer writes or replaces a curated answer.
func (s *Store) UpsertGoldenAnswer(ctx context.Context, a *GoldenAnswer) error {
	return s.withTx(ctx, "store.UpsertGoldenAnswer", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO golden_answers (cluster_id, canonical_question, answer, sources, confidence, usage_count)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (cluster_id) DO UPDATE SET
				canonical_question = excluded.canonical_question,
				answer = excluded.answer,
				sources = excluded.sources,
				confidence = excluded.confidence`,
			a.ClusterID, a.CanonicalQuestion, a.Answer, pq.Array(a.Sources),
			a.Confidence, a.UsageCount)
		return err
	})
}

// UpsertQueryCluster binds a query hash to a cluster, bumping frequency on
// repeat sightings.
func (s *Store) UpsertQueryCluster(ctx context.Context, c *QueryCluster) error {
	return s.withTx(ctx, "store.UpsertQueryCluster", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO query_clusters (cluster_id, query_hash, query_text, frequency)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (query_hash) DO UPDATE SET
				frequency = query_clusters.frequency + 1`,
			c.ClusterID, c.QueryHash, c.QueryText, c.Frequency)
		return err
	})
}

// IncrementGoldenUsage bumps usage counters for an answered cluster. Called
// asynchronously; failures are logged, never surfaced to the reply path.
func (s *Store) IncrementGoldenUsage(ctx context.Context, clusterID string) {
	err := s.withTx(ctx, "store.IncrementGoldenUsage", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE golden_answers SET usage_count = usage_count + 1
			WHERE cluster_id = $1`, clusterID)
		return err
	})
	if err != nil {
		slog.Warn("Failed to increment golden usage", "cluster_id", clusterID, "error", err)
	}
}

// IncrementGoldenRouteUsage bumps the usage counter for a matched route.
// Same fire-and-forget contract as IncrementGoldenUsage.
func (s *Store) IncrementGoldenRouteUsage(ctx context.Context, routeID string) {
	err := s.withTx(ctx, "store.IncrementGoldenRouteUsage", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			UPDATE golden_routes SET usage_count = usage_count + 1
			WHERE route_id = $1`, routeID)
		return err
	})
	if err != nil {
		slog.Warn("Failed to increment golden route usage", "route_id", routeID, "error", err)
	}
}
