// Package kg extracts knowledge graph entities and relationships from
// document chunks via LLM and persists them idempotently.
package kg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"unicode"

	"github.com/balidesk/oracle/pkg/llm"
	"github.com/balidesk/oracle/pkg/store"
)

// maxSlugLen caps canonical entity ids.
const maxSlugLen = 64

// Generator is the LLM surface the builder needs.
type Generator interface {
	Generate(ctx context.Context, req *llm.Request) (*llm.Response, error)
}

// GraphStore persists extracted graphs.
type GraphStore interface {
	UpsertKGEntities(ctx context.Context, entities []*store.KGEntity) error
	UpsertKGRelationships(ctx context.Context, rels []*store.KGRelationship) error
}

// Entity is an extracted node before persistence.
type Entity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Relationship is an extracted edge before persistence.
type Relationship struct {
	Source      string `json:"source"`
	Target      string `json:"target"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Graph is an extraction result.
type Graph struct {
	Entities      []Entity       `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// Builder extracts and stores knowledge graphs.
type Builder struct {
	llm   Generator
	store GraphStore
}

// NewBuilder creates a builder.
func NewBuilder(gen Generator, graphStore GraphStore) *Builder {
	return &Builder{llm: gen, store: graphStore}
}

const extractionPrompt = `Extract the entities and relationships from the text below.

Return ONLY a JSON object with this shape, no prose:
{"entities":[{"name":"...","type":"..."}],"relationships":[{"source":"...","target":"...","type":"...","description":"..."}]}

Entity types: regulation, institution, visa_type, tax_type, business_entity, procedure, document, location, person_role.
Relationship types: requires, issued_by, governed_by, part_of, applies_to, replaces, costs.

Text:
`

// Extract asks the LLM for a graph over one chunk of text. LLM failures
// yield an empty graph, never an error: the ingest pipeline treats graph
// extraction as best effort.
func (b *Builder) Extract(ctx context.Context, text string) *Graph {
	resp, err := b.llm.Generate(ctx, &llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: extractionPrompt + text},
		},
		MaxTokens:   2048,
		Temperature: 0.1,
	})
	if err != nil {
		slog.Warn("KG extraction failed, continuing without graph", "error", err)
		return &Graph{}
	}

	graph, err := parseGraph(resp.Text)
	if err != nil {
		slog.Warn("KG extraction returned unparseable JSON", "error", err)
		return &Graph{}
	}
	return graph
}

// ExtractAndStore extracts a graph and upserts it.
func (b *Builder) ExtractAndStore(ctx context.Context, text string) (*Graph, error) {
	graph := b.Extract(ctx, text)
	if err := b.Store(ctx, graph); err != nil {
		return graph, err
	}
	return graph, nil
}

// Store canonicalizes and upserts a graph. Entities referenced only from
// relationship endpoints are synthesized with type "unknown". Upserts are
// idempotent on entity id and on (source, target, type).
func (b *Builder) Store(ctx context.Context, graph *Graph) error {
	if graph == nil || (len(graph.Entities) == 0 && len(graph.Relationships) == 0) {
		return nil
	}

	entities := make(map[string]*store.KGEntity)
	for _, e := range graph.Entities {
		id := Slug(e.Name)
		if id == "" {
			continue
		}
		entities[id] = &store.KGEntity{
			ID:   id,
			Name: e.Name,
			Type: strings.ToLower(e.Type),
		}
	}

	var rels []*store.KGRelationship
	for _, r := range graph.Relationships {
		sourceID, targetID := Slug(r.Source), Slug(r.Target)
		if sourceID == "" || targetID == "" || r.Type == "" {
			continue
		}
		// Implicit entities referenced only by edges.
		if _, ok := entities[sourceID]; !ok {
			entities[sourceID] = &store.KGEntity{ID: sourceID, Name: r.Source, Type: "unknown"}
		}
		if _, ok := entities[targetID]; !ok {
			entities[targetID] = &store.KGEntity{ID: targetID, Name: r.Target, Type: "unknown"}
		}
		rels = append(rels, &store.KGRelationship{
			SourceEntityID:   sourceID,
			TargetEntityID:   targetID,
			RelationshipType: strings.ToLower(r.Type),
			Properties:       map[string]interface{}{"description": r.Description},
		})
	}

	entityList := make([]*store.KGEntity, 0, len(entities))
	for _, e := range entities {
		entityList = append(entityList, e)
	}
	sortEntities(entityList)

	if err := b.store.UpsertKGEntities(ctx, entityList); err != nil {
		return fmt.Errorf("failed to store entities: %w", err)
	}
	if err := b.store.UpsertKGRelationships(ctx, rels); err != nil {
		return fmt.Errorf("failed to store relationships: %w", err)
	}
	return nil
}

// Slug canonicalizes an entity name: lowercase, spaces to underscores,
// other punctuation dropped, at most 64 characters.
func Slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_':
			b.WriteByte('_')
		}
	}
	slug := strings.Trim(b.String(), "_")
	for strings.Contains(slug, "__") {
		slug = strings.ReplaceAll(slug, "__", "_")
	}
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	return slug
}

// parseGraph decodes the LLM reply, tolerating markdown fences around the
// JSON body.
func parseGraph(text string) (*Graph, error) {
	text = strings.TrimSpace(text)
	if idx := strings.Index(text, "{"); idx >= 0 {
		text = text[idx:]
	}
	if idx := strings.LastIndex(text, "}"); idx >= 0 {
		text = text[:idx+1]
	}

	var graph Graph
	if err := json.Unmarshal([]byte(text), &graph); err != nil {
		return nil, fmt.Errorf("failed to decode graph JSON: %w", err)
	}
	return &graph, nil
}

func sortEntities(entities []*store.KGEntity) {
	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
}
