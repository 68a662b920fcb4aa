package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/balidesk/oracle/pkg/embedder"
	"github.com/balidesk/oracle/pkg/llm"
	"github.com/balidesk/oracle/pkg/router"
	"github.com/balidesk/oracle/pkg/store"
	"github.com/balidesk/oracle/pkg/vector"
)

// searchToolLimit is how many chunks the collection-backed tools return.
const searchToolLimit = 5

// collectionSearchTool answers a free-text lookup against one collection.
// pricing_lookup and kbli_lookup are both instances of it.
type collectionSearchTool struct {
	def        llm.ToolDef
	collection string
	argName    string
	emb        embedder.Embedder
	vectors    vector.Store
}

func (t *collectionSearchTool) Def() llm.ToolDef { return t.def }

func (t *collectionSearchTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	query, err := stringArg(args, t.argName)
	if err != nil {
		return "", err
	}

	vec, err := t.emb.Embed(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to embed lookup query: %w", err)
	}
	hits, err := t.vectors.Search(ctx, t.collection, vec, nil, searchToolLimit)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "No matching entries found.", nil
	}

	var sb strings.Builder
	for i, h := range hits {
		text, _ := h.Payload["text"].(string)
		fmt.Fprintf(&sb, "[%d] %s\n", i+1, strings.TrimSpace(text))
	}
	return sb.String(), nil
}

// NewPricingLookup creates the official price list tool.
func NewPricingLookup(emb embedder.Embedder, vectors vector.Store) Tool {
	return &collectionSearchTool{
		def: llm.ToolDef{
			Name:        "pricing_lookup",
			Description: "Look up official service prices (visas, company setup, tax services). Always use this for price questions instead of guessing.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"service": map[string]interface{}{
						"type":        "string",
						"description": "The service to price, e.g. 'investor kitas' or 'pt pma setup'",
					},
				},
				"required": []string{"service"},
			},
		},
		collection: router.CollectionPricing,
		argName:    "service",
		emb:        emb,
		vectors:    vectors,
	}
}

// NewKBLILookup creates the business classification lookup tool.
func NewKBLILookup(emb embedder.Embedder, vectors vector.Store) Tool {
	return &collectionSearchTool{
		def: llm.ToolDef{
			Name:        "kbli_lookup",
			Description: "Look up Indonesian business classification (KBLI) codes and their licensing requirements by business activity or code.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Business activity or KBLI code, e.g. 'villa rental' or '55130'",
					},
				},
				"required": []string{"query"},
			},
		},
		collection: router.CollectionKBLI,
		argName:    "query",
		emb:        emb,
		vectors:    vectors,
	}
}

// DocumentReader is the store slice the parent document tool needs.
type DocumentReader interface {
	GetChapterFullText(ctx context.Context, documentID, chapterID string) (string, error)
	GetParentDocumentsByDocumentID(ctx context.Context, documentID string) ([]*store.ParentDocument, error)
}

// parentDocumentTool fetches full source text when retrieved chunks are
// not enough context.
type parentDocumentTool struct {
	docs DocumentReader
}

// maxToolText caps the text returned to the model in one call.
const maxToolText = 20000

func (t *parentDocumentTool) Def() llm.ToolDef {
	return llm.ToolDef{
		Name:        "parent_document",
		Description: "Fetch the full source text of a document or one of its chapters, identified by the parent_id metadata on retrieved passages.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"document_id": map[string]interface{}{
					"type":        "string",
					"description": "The document id from passage metadata",
				},
				"chapter_id": map[string]interface{}{
					"type":        "string",
					"description": "Optional chapter id to fetch a single chapter",
				},
			},
			"required": []string{"document_id"},
		},
	}
}

func (t *parentDocumentTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	documentID, err := stringArg(args, "document_id")
	if err != nil {
		return "", err
	}

	if chapterID := optionalStringArg(args, "chapter_id"); chapterID != "" {
		text, err := t.docs.GetChapterFullText(ctx, documentID, chapterID)
		if err != nil {
			return "", err
		}
		return clipText(text), nil
	}

	docs, err := t.docs.GetParentDocumentsByDocumentID(ctx, documentID)
	if err != nil {
		return "", err
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("document %s not found", documentID)
	}

	var sb strings.Builder
	for _, d := range docs {
		fmt.Fprintf(&sb, "# %s\n\n%s\n\n", d.Title, d.FullText)
		if sb.Len() > maxToolText {
			break
		}
	}
	return clipText(sb.String()), nil
}

func clipText(s string) string {
	if len(s) <= maxToolText {
		return s
	}
	return s[:maxToolText] + "\n[truncated]"
}

// NewParentDocument creates the full-text fetch tool.
func NewParentDocument(docs DocumentReader) Tool {
	return &parentDocumentTool{docs: docs}
}
