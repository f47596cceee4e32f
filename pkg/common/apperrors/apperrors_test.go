package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errSentinel = errors.New("sentinel")

func TestKindSurvivesWrapping(t *testing.T) {
	err := NotFound("session %s: %w", "abc", errSentinel)
	wrapped := fmt.Errorf("predict: %w", err)

	assert.True(t, Is(wrapped, KindNotFound))
	assert.False(t, Is(wrapped, KindBadRequest))
	assert.ErrorIs(t, wrapped, errSentinel)
	assert.Equal(t, http.StatusNotFound, HTTPStatus(wrapped))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		BadRequest("x"):     http.StatusBadRequest,
		State("x"):          http.StatusConflict,
		External("x"):       http.StatusBadGateway,
		Internal("x"):       http.StatusInternalServerError,
		errors.New("plain"): http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, HTTPStatus(err), err.Error())
	}
	assert.False(t, Is(nil, KindInternal))
	assert.True(t, Is(Internal("write %s", "model.gob"), KindInternal))
}
