package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Kind]int{
		Unauthorized:  http.StatusUnauthorized,
		Forbidden:     http.StatusForbidden,
		NotFound:      http.StatusNotFound,
		Conflict:      http.StatusConflict,
		InvalidInput:  http.StatusBadRequest,
		S3Error:       http.StatusBadGateway,
		Cancelled:     StatusClientClosedRequest,
		Timeout:       http.StatusGatewayTimeout,
		Internal:      http.StatusInternalServerError,
		Configuration: http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatus(New(kind, "x")), string(kind))
	}
}

func TestHTTPStatusUnclassified(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(S3Error, "cannot list objects", cause)

	require.ErrorIs(t, err, cause)
	assert.True(t, Is(err, S3Error))
	assert.Equal(t, "s3_error: cannot list objects: connection reset", err.Error())
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := New(NotFound, "object missing")
	outer := fmt.Errorf("while previewing: %w", inner)

	assert.True(t, Is(outer, NotFound))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(outer))
	assert.Equal(t, "object missing", Message(outer))
}

func TestMessageHidesInternalDetails(t *testing.T) {
	err := Wrap(Internal, "db corrupted at /data/vault.db", errors.New("sqlite: disk I/O"))
	assert.Equal(t, http.StatusText(http.StatusInternalServerError), Message(err))

	assert.Equal(t, http.StatusText(http.StatusInternalServerError), Message(errors.New("raw")))
}

func TestMessageExposesClientKinds(t *testing.T) {
	assert.Equal(t, "key contains a path traversal", Message(New(InvalidInput, "key contains a path traversal")))
}
