package store

import (
	"context"
	"database/sql"
	"fmt"
)

// schemaStatements bootstraps the relational schema. Statements are
// idempotent so EnsureSchema can run on every startup.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS parent_documents (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		type TEXT NOT NULL DEFAULT 'UNKNOWN',
		title TEXT NOT NULL DEFAULT '',
		full_text TEXT NOT NULL DEFAULT '',
		char_count INTEGER NOT NULL DEFAULT 0,
		pasal_count INTEGER NOT NULL DEFAULT 0,
		metadata JSONB NOT NULL DEFAULT '{}',
		text_fingerprint TEXT NOT NULL DEFAULT '',
		is_incomplete BOOLEAN NOT NULL DEFAULT FALSE,
		ocr_quality_score DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		needs_reextract BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_parent_documents_document_id
		ON parent_documents (document_id)`,
	`CREATE INDEX IF NOT EXISTS idx_parent_documents_fingerprint
		ON parent_documents (text_fingerprint)`,

	`CREATE TABLE IF NOT EXISTS golden_routes (
		route_id TEXT PRIMARY KEY,
		canonical_query TEXT NOT NULL,
		collections TEXT[] NOT NULL DEFAULT '{}',
		document_ids TEXT[] NOT NULL DEFAULT '{}',
		routing_hints JSONB NOT NULL DEFAULT '{}',
		usage_count INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS golden_answers (
		cluster_id TEXT PRIMARY KEY,
		canonical_question TEXT NOT NULL,
		answer TEXT NOT NULL,
		sources TEXT[] NOT NULL DEFAULT '{}',
		confidence DOUBLE PRECISION NOT NULL DEFAULT 1.0,
		usage_count INTEGER NOT NULL DEFAULT 0
	)`,

	`CREATE TABLE IF NOT EXISTS query_clusters (
		cluster_id TEXT NOT NULL,
		query_hash TEXT PRIMARY KEY,
		query_text TEXT NOT NULL,
		frequency INTEGER NOT NULL DEFAULT 1
	)`,
	`CREATE INDEX IF NOT EXISTS idx_query_clusters_cluster
		ON query_clusters (cluster_id)`,

	`CREATE TABLE IF NOT EXISTS kg_entities (
		id VARCHAR(64) PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		mention_count INTEGER NOT NULL DEFAULT 1
	)`,

	`CREATE TABLE IF NOT EXISTS kg_relationships (
		source_entity_id VARCHAR(64) NOT NULL REFERENCES kg_entities(id),
		target_entity_id VARCHAR(64) NOT NULL REFERENCES kg_entities(id),
		relationship_type TEXT NOT NULL,
		properties JSONB NOT NULL DEFAULT '{}',
		UNIQUE (source_entity_id, target_entity_id, relationship_type)
	)`,

	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'member',
		preferred_language TEXT NOT NULL DEFAULT 'en',
		level INTEGER NOT NULL DEFAULT 1
	)`,

	`CREATE TABLE IF NOT EXISTS user_memory (
		user_id UUID PRIMARY KEY,
		profile_facts TEXT[] NOT NULL DEFAULT '{}',
		summary TEXT NOT NULL DEFAULT '',
		counters JSONB NOT NULL DEFAULT '{}',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS conversation_ratings (
		rating_id UUID PRIMARY KEY,
		session_id UUID NOT NULL,
		user_id UUID,
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		feedback_type TEXT NOT NULL CHECK (feedback_type IN ('positive', 'negative', 'issue')),
		feedback_text TEXT NOT NULL DEFAULT '',
		turn_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return s.withTx(ctx, "store.EnsureSchema", func(tx *sql.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema statement: %w", err)
			}
		}
		return nil
	})
}
