package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/balidesk/oracle/pkg/ingest"
	"github.com/balidesk/oracle/pkg/oerr"
	"github.com/balidesk/oracle/pkg/orchestrator"
	"github.com/balidesk/oracle/pkg/store"
)

type queryRequest struct {
	Query              string `json:"query"`
	UserEmail          string `json:"user_email,omitempty"`
	SessionID          string `json:"session_id,omitempty"`
	LanguageOverride   string `json:"language_override,omitempty"`
	CollectionOverride string `json:"collection_override,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.orch == nil {
		unavailable(w, r, "query pipeline")
		return
	}

	var req queryRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	resp, err := s.orch.ProcessQuery(r.Context(), &orchestrator.QueryRequest{
		Query:              req.Query,
		UserEmail:          req.UserEmail,
		SessionID:          req.SessionID,
		LanguageOverride:   req.LanguageOverride,
		CollectionOverride: req.CollectionOverride,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type feedbackRequest struct {
	SessionID    string `json:"session_id"`
	Rating       int    `json:"rating"`
	FeedbackType string `json:"feedback_type,omitempty"`
	FeedbackText string `json:"feedback_text,omitempty"`
	TurnCount    int    `json:"turn_count,omitempty"`
}

type feedbackResponse struct {
	Success  bool   `json:"success"`
	RatingID string `json:"rating_id"`
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.ratings == nil {
		unavailable(w, r, "feedback store")
		return
	}

	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := uuid.Parse(req.SessionID); err != nil {
		writeError(w, r, oerr.Errorf(oerr.KindInputInvalid, "server.handleFeedback",
			"session_id must be a UUID"))
		return
	}

	rating := &store.ConversationRating{
		RatingID:     newRatingID(),
		SessionID:    req.SessionID,
		Rating:       req.Rating,
		FeedbackType: req.FeedbackType,
		FeedbackText: req.FeedbackText,
		TurnCount:    req.TurnCount,
	}
	if rating.FeedbackType == "" {
		rating.FeedbackType = "positive"
		if req.Rating <= 2 {
			rating.FeedbackType = "negative"
		}
	}

	if err := s.ratings.InsertConversationRating(r.Context(), rating); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, feedbackResponse{Success: true, RatingID: rating.RatingID})
}

type ingestRequest struct {
	FilePath     string `json:"file_path"`
	Title        string `json:"title,omitempty"`
	TierOverride string `json:"tier_override,omitempty"`
	Collection   string `json:"collection_name,omitempty"`
}

type ingestBatchRequest struct {
	FilePaths  []string `json:"file_paths"`
	Collection string   `json:"collection_name,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil {
		unavailable(w, r, "ingestion pipeline")
		return
	}

	var req ingestRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.FilePath == "" {
		writeError(w, r, oerr.Errorf(oerr.KindInputInvalid, "server.handleIngest",
			"file_path is required"))
		return
	}

	res, err := s.ingestor.IngestFile(r.Context(), req.FilePath, &ingest.Options{
		Title:        req.Title,
		TierOverride: req.TierOverride,
		Collection:   req.Collection,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleIngestBatch(w http.ResponseWriter, r *http.Request) {
	if s.ingestor == nil {
		unavailable(w, r, "ingestion pipeline")
		return
	}

	var req ingestBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.FilePaths) == 0 {
		writeError(w, r, oerr.Errorf(oerr.KindInputInvalid, "server.handleIngestBatch",
			"file_paths is required"))
		return
	}

	results := s.ingestor.IngestBatch(r.Context(), req.FilePaths, &ingest.Options{
		Collection: req.Collection,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

type registerDocumentRequest struct {
	ID              string                 `json:"id"`
	DocumentID      string                 `json:"document_id"`
	Type            string                 `json:"type,omitempty"`
	Title           string                 `json:"title,omitempty"`
	FullText        string                 `json:"full_text"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	TextFingerprint string                 `json:"text_fingerprint,omitempty"`
}

func (s *Server) handleRegisterDocument(w http.ResponseWriter, r *http.Request) {
	if s.documents == nil {
		unavailable(w, r, "document store")
		return
	}

	var req registerDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ID == "" || req.DocumentID == "" {
		writeError(w, r, oerr.Errorf(oerr.KindInputInvalid, "server.handleRegisterDocument",
			"id and document_id are required"))
		return
	}

	doc := &store.ParentDocument{
		ID:              req.ID,
		DocumentID:      req.DocumentID,
		Type:            req.Type,
		Title:           req.Title,
		FullText:        req.FullText,
		CharCount:       len(req.FullText),
		Metadata:        req.Metadata,
		TextFingerprint: req.TextFingerprint,
	}
	store.ClampFullText(doc)
	if err := s.documents.UpsertParentDocument(r.Context(), doc); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": doc.ID})
}

func (s *Server) handleGetDocuments(w http.ResponseWriter, r *http.Request) {
	if s.documents == nil {
		unavailable(w, r, "document store")
		return
	}

	documentID := chi.URLParam(r, "documentID")
	docs, err := s.documents.GetParentDocumentsByDocumentID(r.Context(), documentID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	type docSummary struct {
		ID         string `json:"id"`
		Title      string `json:"title"`
		Type       string `json:"type"`
		CharCount  int    `json:"char_count"`
		PasalCount int    `json:"pasal_count"`
	}
	out := make([]docSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, docSummary{
			ID: d.ID, Title: d.Title, Type: d.Type,
			CharCount: d.CharCount, PasalCount: d.PasalCount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"document_id": documentID, "documents": out})
}

func (s *Server) handleGetChapter(w http.ResponseWriter, r *http.Request) {
	if s.documents == nil {
		unavailable(w, r, "document store")
		return
	}

	documentID := chi.URLParam(r, "documentID")
	chapterID := chi.URLParam(r, "chapterID")
	text, err := s.documents.GetChapterFullText(r.Context(), documentID, chapterID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"document_id": documentID,
		"chapter_id":  chapterID,
		"full_text":   text,
	})
}
