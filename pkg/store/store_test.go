package store

import (
	"context"
	"errors"
	"testing"

	"github.com/balidesk/oracle/pkg/oerr"
)

func TestIsMissingColumn(t *testing.T) {
	if !isMissingColumn(errors.New(`pq: column "ocr_quality_score" of relation "parent_documents" does not exist`)) {
		t.Error("missing column error not detected")
	}
	if isMissingColumn(errors.New("pq: relation does not exist")) {
		t.Error("non-column error misclassified")
	}
	if isMissingColumn(nil) {
		t.Error("nil misclassified")
	}
}

func TestInsertConversationRating_Validation(t *testing.T) {
	s := &Store{}
	ctx := context.Background()

	err := s.InsertConversationRating(ctx, &ConversationRating{
		Rating:       6,
		FeedbackType: "positive",
	})
	if !oerr.Is(err, oerr.KindInputInvalid) {
		t.Errorf("rating 6: got %v, want InputInvalid", err)
	}

	err = s.InsertConversationRating(ctx, &ConversationRating{
		Rating:       3,
		FeedbackType: "meh",
	})
	if !oerr.Is(err, oerr.KindInputInvalid) {
		t.Errorf("bad feedback type: got %v, want InputInvalid", err)
	}
}
