package errs

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	err := New(KindNotFound, "store", "session %s not found", "abc")
	require.Equal(t, KindNotFound, KindOf(err))
	require.Equal(t, KindNotFound, KindOf(fmt.Errorf("outer: %w", err)))
	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestWrapPreservesCause(t *testing.T) {
	err := Wrap(io.ErrUnexpectedEOF, KindUnavailable, "assemble", "read part")
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.True(t, Retryable(err))
	require.Contains(t, err.Error(), "UNAVAILABLE")
	require.Contains(t, err.Error(), "assemble")
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindValidation, http.StatusBadRequest},
		{KindIncomplete, http.StatusBadRequest},
		{KindSizeMismatch, http.StatusUnprocessableEntity},
		{KindIntegrity, http.StatusUnprocessableEntity},
		{KindUnavailable, http.StatusServiceUnavailable},
		{KindUnknown, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, HTTPStatus(New(tc.kind, "", "x")), string(tc.kind))
	}
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}
