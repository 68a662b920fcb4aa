package oerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := E(KindNotFound, "store.GetParentDocument", errors.New("no rows"))

	assert.Equal(t, KindNotFound, KindOf(base))
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("loading doc: %w", base)))
	assert.Equal(t, KindCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindTimeout, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestIs(t *testing.T) {
	err := Errorf(KindInputInvalid, "server.decodeJSON", "unknown field %q", "foo")

	assert.True(t, Is(err, KindInputInvalid))
	assert.False(t, Is(err, KindNotFound))
}

func TestUnwrapPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := E(KindTransport, "vector.Search", cause)

	assert.True(t, errors.Is(err, cause))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 422, HTTPStatus(KindInputInvalid))
	assert.Equal(t, 404, HTTPStatus(KindNotFound))
	assert.Equal(t, 404, HTTPStatus(KindCollectionMissing))
	assert.Equal(t, 503, HTTPStatus(KindPoolExhausted))
	assert.Equal(t, 504, HTTPStatus(KindTimeout))
	assert.Equal(t, 409, HTTPStatus(KindConflict))
	assert.Equal(t, 500, HTTPStatus(KindLLMUnavailable))
}

func TestFallbackMessage(t *testing.T) {
	assert.Contains(t, FallbackMessage(KindLLMUnavailable, "id"), "model bahasa")
	assert.Contains(t, FallbackMessage(KindLLMUnavailable, "it"), "modelli linguistici")

	// Region suffixes and unknown languages resolve sensibly.
	assert.Equal(t,
		FallbackMessage(KindLLMUnavailable, "id"),
		FallbackMessage(KindLLMUnavailable, "id-ID"))
	assert.Equal(t,
		FallbackMessage(KindLLMUnavailable, "en"),
		FallbackMessage(KindLLMUnavailable, "fr"))

	// Kinds without a dedicated message use the generic one.
	assert.Equal(t,
		FallbackMessage(KindUnknown, "en"),
		FallbackMessage(KindTransport, "en"))
}
