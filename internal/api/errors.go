package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"downtime-backend/internal/apperr"
	"downtime-backend/internal/store"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// writeError maps err onto the JSON error envelope. Internal errors are
// logged and replaced by a generic message.
func (h *Handler) writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	if apperr.Is(err, apperr.KindInternal) {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": errorBody{
			Code:    apperr.KindInternal.String(),
			Message: "internal server error",
		}})
		return
	}

	e, _ := apperr.As(err)
	c.AbortWithStatusJSON(e.HTTPStatus(), gin.H{"error": errorBody{
		Code:    e.Kind.String(),
		Message: e.Message,
		Details: e.Details,
	}})
}

// badRequest reports a malformed request body or query.
func (h *Handler) badRequest(c *gin.Context, err error) {
	h.writeError(c, apperr.Validation(err.Error()))
}

// storeError converts a read-model error of the store.
func storeError(err error, notFoundMessage string) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(notFoundMessage)
	}
	return apperr.Internal("storage failure", err)
}
