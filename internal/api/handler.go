package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"downtime-backend/internal/lifecycle"
	"downtime-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	service  *lifecycle.Service
	store    store.Store
	webpush  *webpush.Options
	location *time.Location
	logger   *zap.Logger
}

// NewHandler creates a new API handler. loc is the zone of timestamps
// submitted without an offset; nil means UTC.
func NewHandler(service *lifecycle.Service, s store.Store, webpushOptions *webpush.Options, loc *time.Location, logger *zap.Logger) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:  service,
		store:    s,
		webpush:  webpushOptions,
		location: loc,
		logger:   logger,
	}
}

func (h *Handler) ping(c *gin.Context) error {
	sqlDB, err := h.store.DB().DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(c.Request.Context())
}
