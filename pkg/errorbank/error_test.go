package errorbank

import (
	"errors"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
)

func TestKindsMapToTransportCodes(t *testing.T) {
	cases := []struct {
		err    *AppError
		status int
		code   codes.Code
	}{
		{BadRequest("x"), http.StatusBadRequest, codes.InvalidArgument},
		{Conflict("x"), http.StatusConflict, codes.AlreadyExists},
		{NotFound("x"), http.StatusNotFound, codes.NotFound},
		{Unprocessable("x"), http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{Unavailable("x"), http.StatusServiceUnavailable, codes.Unavailable},
		{Internal("x"), http.StatusInternalServerError, codes.Internal},
	}
	for _, tc := range cases {
		t.Run(string(tc.err.Kind()), func(t *testing.T) {
			assert.Equal(t, tc.status, tc.err.StatusCode())
			assert.Equal(t, tc.code, tc.err.GRPCCode())
		})
	}
}

func TestAppErrorCauseAndDetails(t *testing.T) {
	cause := errors.New("boom")
	err := Internal("failed", WithCause(cause), WithDetail("reason", "x"), WithDetails(map[string]any{"op": "find"}))

	assert.Equal(t, "failed: boom", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, map[string]any{"reason": "x", "op": "find"}, err.Details())
	assert.Equal(t, "not_found", New(KindNotFound, "").Message())
}

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))
	assert.Equal(t, Kind(""), KindOf(nil))

	wrapped := errors.Join(errors.New("ctx"), NotFound("order not found"))
	assert.Equal(t, KindNotFound, KindOf(wrapped))

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))

	httpErr := From(echo.NewHTTPError(http.StatusNotFound, "route missing"))
	assert.Equal(t, KindNotFound, httpErr.Kind())
	assert.Equal(t, "route missing", httpErr.Message())

	assert.Equal(t, KindBadRequest, KindOf(echo.ErrUnsupportedMediaType))
}

func TestNilAppError(t *testing.T) {
	var err *AppError
	assert.Equal(t, KindInternal, err.Kind())
	assert.Equal(t, http.StatusInternalServerError, err.StatusCode())
	assert.Equal(t, "<nil>", err.Error())
}
