package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// MaxFullTextBytes caps the stored parent full text.
const MaxFullTextBytes = 50 * 1024

// ParentDocument is the full-text row backing every chunk in the vector
// store. Chunks reference it by id.
type ParentDocument struct {
	ID              string
	DocumentID      string
	Type            string
	Title           string
	FullText        string
	CharCount       int
	PasalCount      int
	Metadata        map[string]interface{}
	TextFingerprint string
	IsIncomplete    bool
	OCRQualityScore float64
	NeedsReextract  bool
	CreatedAt       time.Time
}

// ClampFullText truncates an oversized full text to MaxFullTextBytes. A
// truncated row is marked incomplete and flagged in metadata so readers
// know the stored text is partial.
func ClampFullText(doc *ParentDocument) {
	if len(doc.FullText) <= MaxFullTextBytes {
		return
	}
	doc.FullText = doc.FullText[:MaxFullTextBytes]
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]interface{})
	}
	doc.Metadata["full_text_truncated"] = true
	doc.IsIncomplete = true
}

const parentUpsertFull = `
	INSERT INTO parent_documents
		(id, document_id, type, title, full_text, char_count, pasal_count,
		 metadata, text_fingerprint, is_incomplete, ocr_quality_score, needs_reextract)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE SET
		document_id = excluded.document_id,
		type = excluded.type,
		title = excluded.title,
		full_text = excluded.full_text,
		char_count = excluded.char_count,
		pasal_count = excluded.pasal_count,
		metadata = excluded.metadata,
		text_fingerprint = excluded.text_fingerprint,
		is_incomplete = excluded.is_incomplete,
		ocr_quality_score = excluded.ocr_quality_score,
		needs_reextract = excluded.needs_reextract`

// parentUpsertBasic omits the quality metadata columns. Used as a fallback
// against partially migrated schemas that predate those columns.
const parentUpsertBasic = `
	INSERT INTO parent_documents
		(id, document_id, type, title, full_text, char_count, pasal_count,
		 metadata, text_fingerprint)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO UPDATE SET
		document_id = excluded.document_id,
		type = excluded.type,
		title = excluded.title,
		full_text = excluded.full_text,
		char_count = excluded.char_count,
		pasal_count = excluded.pasal_count,
		metadata = excluded.metadata,
		text_fingerprint = excluded.text_fingerprint`

// UpsertParentDocument writes a parent row, retrying without the quality
// columns if the schema does not have them yet.
func (s *Store) UpsertParentDocument(ctx context.Context, doc *ParentDocument) error {
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal document metadata: %w", err)
	}

	return s.withTx(ctx, "store.UpsertParentDocument", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, parentUpsertFull,
			doc.ID, doc.DocumentID, doc.Type, doc.Title, doc.FullText,
			doc.CharCount, doc.PasalCount, metadata, doc.TextFingerprint,
			doc.IsIncomplete, doc.OCRQualityScore, doc.NeedsReextract)
		if err == nil {
			return nil
		}
		if !isMissingColumn(err) {
			return err
		}

		slog.Warn("Quality columns missing, retrying with basic column set",
			"document_id", doc.DocumentID)
		_, err = tx.ExecContext(ctx, parentUpsertBasic,
			doc.ID, doc.DocumentID, doc.Type, doc.Title, doc.FullText,
			doc.CharCount, doc.PasalCount, metadata, doc.TextFingerprint)
		return err
	})
}

const parentSelect = `
	SELECT id, document_id, type, title, full_text, char_count, pasal_count,
	       metadata, text_fingerprint, is_incomplete, ocr_quality_score,
	       needs_reextract, created_at
	FROM parent_documents`

func (s *Store) scanParent(row interface{ Scan(...interface{}) error }) (*ParentDocument, error) {
	var doc ParentDocument
	var metadata []byte
	err := row.Scan(&doc.ID, &doc.DocumentID, &doc.Type, &doc.Title, &doc.FullText,
		&doc.CharCount, &doc.PasalCount, &metadata, &doc.TextFingerprint,
		&doc.IsIncomplete, &doc.OCRQualityScore, &doc.NeedsReextract, &doc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document metadata: %w", err)
		}
	}
	return &doc, nil
}

// GetParentDocument fetches a parent row by primary key.
func (s *Store) GetParentDocument(ctx context.Context, id string) (*ParentDocument, error) {
	row := s.db.QueryRowContext(ctx, parentSelect+` WHERE id = $1`, id)
	doc, err := s.scanParent(row)
	if err != nil {
		return nil, s.mapErr("store.GetParentDocument", err)
	}
	return doc, nil
}

// GetParentDocumentsByDocumentID lists parent rows sharing a document id
// (multi-chapter documents produce one row per chapter).
func (s *Store) GetParentDocumentsByDocumentID(ctx context.Context, documentID string) ([]*ParentDocument, error) {
	rows, err := s.db.QueryContext(ctx, parentSelect+` WHERE document_id = $1 ORDER BY id`, documentID)
	if err != nil {
		return nil, s.mapErr("store.GetParentDocumentsByDocumentID", err)
	}
	defer rows.Close()

	var docs []*ParentDocument
	for rows.Next() {
		doc, err := s.scanParent(rows)
		if err != nil {
			return nil, s.mapErr("store.GetParentDocumentsByDocumentID", err)
		}
		docs = append(docs, doc)
	}
	return docs, s.mapErr("store.GetParentDocumentsByDocumentID", rows.Err())
}

// GetChapterFullText returns the full text of one chapter of a document.
// Chapter rows use the "<document_id>_<chapter_id>" id convention.
func (s *Store) GetChapterFullText(ctx context.Context, documentID, chapterID string) (string, error) {
	id := fmt.Sprintf("%s_%s", documentID, chapterID)
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT full_text FROM parent_documents WHERE id = $1`, id).Scan(&text)
	if err != nil {
		return "", s.mapErr("store.GetChapterFullText", err)
	}
	return text, nil
}

// FindFingerprint returns the stored fingerprint of a parent document, or
// "" when the document has never been ingested. Used by the dedup stage.
func (s *Store) FindFingerprint(ctx context.Context, id string) (string, error) {
	var fp string
	err := s.db.QueryRowContext(ctx,
		`SELECT text_fingerprint FROM parent_documents WHERE id = $1`, id).Scan(&fp)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", s.mapErr("store.FindFingerprint", err)
	}
	return fp, nil
}
