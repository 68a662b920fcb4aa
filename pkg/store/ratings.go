package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/balidesk/oracle/pkg/oerr"
)

// Allowed feedback types for a conversation rating.
var feedbackTypes = map[string]bool{
	"positive": true,
	"negative": true,
	"issue":    true,
}

// ConversationRating is end-of-conversation feedback.
type ConversationRating struct {
	RatingID     string
	SessionID    string
	UserID       string
	Rating       int
	FeedbackType string
	FeedbackText string
	TurnCount    int
	CreatedAt    time.Time
}

// InsertConversationRating validates and persists a rating.
func (s *Store) InsertConversationRating(ctx context.Context, r *ConversationRating) error {
	if r.Rating < 1 || r.Rating > 5 {
		return oerr.E(oerr.KindInputInvalid, "store.InsertConversationRating",
			fmt.Errorf("rating %d out of range [1,5]", r.Rating))
	}
	if !feedbackTypes[r.FeedbackType] {
		return oerr.E(oerr.KindInputInvalid, "store.InsertConversationRating",
			fmt.Errorf("unknown feedback type %q", r.FeedbackType))
	}

	return s.withTx(ctx, "store.InsertConversationRating", func(tx *sql.Tx) error {
		var userID interface{}
		if r.UserID != "" {
			userID = r.UserID
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_ratings
				(rating_id, session_id, user_id, rating, feedback_type, feedback_text, turn_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			r.RatingID, r.SessionID, userID, r.Rating, r.FeedbackType,
			r.FeedbackText, r.TurnCount)
		return err
	})
}
