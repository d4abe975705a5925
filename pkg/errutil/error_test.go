package errutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHelpersWrapCause(t *testing.T) {
	cause := errors.New("row not found")

	err := NotFound("no reputation account for user", cause)
	require.ErrorIs(t, err, cause)

	var be BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, StatusNotFound, be.Status())
	require.Contains(t, err.Error(), "row not found")
}

func TestBadRequestWithoutCause(t *testing.T) {
	err := BadRequest("user_id is required", nil)

	var be BaseError
	require.True(t, errors.As(err, &be))
	require.Equal(t, StatusBadRequest, be.Status())
	require.Nil(t, be.Unwrap())
}

func TestWithDetails(t *testing.T) {
	err := ValidationFailed("invalid payload", nil, WithDetails(Detail{Field: "limit", Message: "must be positive"}))

	var be BaseError
	require.True(t, errors.As(err, &be))
	require.Len(t, be.Details, 1)
	require.Equal(t, "limit", be.Details[0].Field)
}

func TestHTTPCode(t *testing.T) {
	cases := map[CoreStatus]int{
		StatusBadRequest:       400,
		StatusValidationFailed: 400,
		StatusUnauthorized:     401,
		StatusForbidden:        403,
		StatusNotFound:         404,
		StatusConflict:         409,
		StatusTimeout:          408,
		StatusTooManyRequests:  429,
		StatusInternal:         500,
		CoreStatus("made_up"):  500,
	}

	for status, want := range cases {
		require.Equal(t, want, status.HTTPCode(), string(status))
	}
}
