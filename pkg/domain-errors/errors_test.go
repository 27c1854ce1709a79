package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapAndHasCode(t *testing.T) {
	cause := errors.New("connection refused")

	t.Run("wrap keeps the cause reachable", func(t *testing.T) {
		err := Wrap(cause, CodeExternalService, "extractor unavailable")
		assert.True(t, HasCode(err, CodeExternalService))
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "extractor unavailable: connection refused", err.Error())
	})

	t.Run("wrapping nil yields nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "unused"))
	})

	t.Run("code survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("start verification: %w", New(CodeConflict, "verification already in progress"))
		assert.Equal(t, CodeConflict, CodeOf(err))
		assert.Equal(t, "verification already in progress", Message(err))
	})

	t.Run("plain errors are internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(cause))
		assert.False(t, HasCode(cause, CodeNotFound))
	})
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:       http.StatusBadRequest,
		CodeNotFound:         http.StatusNotFound,
		CodeConflict:         http.StatusConflict,
		CodeInvalidState:     http.StatusConflict,
		CodeTimeout:          http.StatusGatewayTimeout,
		CodeProcessingFailed: http.StatusUnprocessableEntity,
		CodeExternalService:  http.StatusBadGateway,
		CodeInternal:         http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, HTTPStatus(code), string(code))
	}
}
