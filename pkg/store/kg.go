package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
)

// KGEntity is a canonical knowledge-graph node. IDs are slugs, at most 64
// characters, lowercase with underscores.
type KGEntity struct {
	ID           string
	Name         string
	Type         string
	MentionCount int
}

// KGRelationship is a typed edge between two entities.
type KGRelationship struct {
	SourceEntityID   string
	TargetEntityID   string
	RelationshipType string
	Properties       map[string]interface{}
}

// UpsertKGEntities writes entities in one transaction. Re-seen entities
// keep their id and accumulate mention counts, so extraction is idempotent
// at the graph level.
func (s *Store) UpsertKGEntities(ctx context.Context, entities []*KGEntity) error {
	if len(entities) == 0 {
		return nil
	}
	return s.withTx(ctx, "store.UpsertKGEntities", func(tx *sql.Tx) error {
		for _, e := range entities {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO kg_entities (id, name, type, mention_count)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (id) DO UPDATE SET
					name = excluded.name,
					type = excluded.type,
					mention_count = kg_entities.mention_count + 1`,
				e.ID, e.Name, e.Type, max(e.MentionCount, 1))
			if err != nil {
				return fmt.Errorf("failed to upsert entity %s: %w", e.ID, err)
			}
		}
		return nil
	})
}

// UpsertKGRelationships writes edges in one transaction. The unique
// constraint on (source, target, type) makes repeats no-ops with updated
// properties.
func (s *Store) UpsertKGRelationships(ctx context.Context, rels []*KGRelationship) error {
	if len(rels) == 0 {
		return nil
	}
	return s.withTx(ctx, "store.UpsertKGRelationships", func(tx *sql.Tx) error {
		for _, r := range rels {
			props, err := json.Marshal(r.Properties)
			if err != nil {
				return fmt.Errorf("failed to marshal relationship properties: %w", err)
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO kg_relationships (source_entity_id, target_entity_id, relationship_type, properties)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (source_entity_id, target_entity_id, relationship_type)
				DO UPDATE SET properties = excluded.properties`,
				r.SourceEntityID, r.TargetEntityID, r.RelationshipType, props)
			if err != nil {
				return fmt.Errorf("failed to upsert relationship %s-%s: %w",
					r.SourceEntityID, r.TargetEntityID, err)
			}
		}
		return nil
	})
}

// TopEntitiesByMentions returns the most-mentioned entities, used for the
// user-related concepts section of the memory context.
func (s *Store) TopEntitiesByMentions(ctx context.Context, limit int) ([]*KGEntity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, mention_count FROM kg_entities
		ORDER BY mention_count DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, s.mapErr("store.TopEntitiesByMentions", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

// EntitiesByNameMatch returns entities whose name matches any of the given
// terms, most-mentioned first. Terms match case-insensitively as substrings.
func (s *Store) EntitiesByNameMatch(ctx context.Context, terms []string, limit int) ([]*KGEntity, error) {
	if len(terms) == 0 {
		return nil, nil
	}
	pattern := "("
	for i, t := range terms {
		if i > 0 {
			pattern += "|"
		}
		pattern += regexp.QuoteMeta(t)
	}
	pattern += ")"

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, mention_count FROM kg_entities
		WHERE name ~* $1
		ORDER BY mention_count DESC, id LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, s.mapErr("store.EntitiesByNameMatch", err)
	}
	defer rows.Close()
	return scanEntities(rows)
}

func scanEntities(rows *sql.Rows) ([]*KGEntity, error) {
	var entities []*KGEntity
	for rows.Next() {
		var e KGEntity
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &e.MentionCount); err != nil {
			return nil, err
		}
		entities = append(entities, &e)
	}
	return entities, rows.Err()
}
