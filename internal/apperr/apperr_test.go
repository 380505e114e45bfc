package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindString(t *testing.T) {
	assert.Equal(t, "NOT_FOUND", KindNotFound.String())
	assert.Equal(t, "VALIDATION", KindValidation.String())
	assert.Equal(t, "CONFLICT", KindConflict.String())
	assert.Equal(t, "ALREADY_CLOSED", KindAlreadyClosed.String())
	assert.Equal(t, "INTERNAL", KindInternal.String())
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, NotFound("x").HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, Validation("x").HTTPStatus())
	assert.Equal(t, http.StatusConflict, Conflict(CodeAlreadyOpen, "x").HTTPStatus())
	assert.Equal(t, http.StatusConflict, AlreadyClosed("x").HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, Internal("x", nil).HTTPStatus())
}

func TestGetKindThroughWrapping(t *testing.T) {
	base := Conflict(CodeOtherOpen, "another stoppage is open").WithOp("reopen")
	wrapped := fmt.Errorf("handler: %w", base)

	assert.True(t, Is(wrapped, KindConflict))
	e, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, CodeOtherOpen, e.Code)
	assert.Equal(t, "reopen: another stoppage is open", e.Error())

	assert.Equal(t, KindInternal, GetKind(errors.New("boom")))
	assert.False(t, Is(nil, KindInternal))
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("save stoppage", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}
