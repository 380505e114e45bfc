package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"downtime-backend/internal/apperr"
	"downtime-backend/internal/lifecycle"
	"downtime-backend/internal/mw"
	"downtime-backend/internal/parse"
	"downtime-backend/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type openStoppageRequest struct {
	MachineID string  `json:"machine_id" binding:"required"`
	Reason    string  `json:"reason"`
	Team      *string `json:"team"`
	Note      *string `json:"note"`
	StartTime *string `json:"start_time"`
	Type      string  `json:"type"`
	Category  string  `json:"category"`
	Override  bool    `json:"override"`
}

// OpenStoppage handles POST /api/stoppages.
func (h *Handler) OpenStoppage(c *gin.Context) {
	var req openStoppageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}
	start, err := parse.OptionalTimestamp(req.StartTime, h.location)
	if err != nil {
		h.writeError(c, err)
		return
	}

	event, err := h.service.Open(c.Request.Context(), mw.Scope(c), lifecycle.OpenInput{
		MachineID: req.MachineID,
		Reason:    req.Reason,
		Team:      req.Team,
		Note:      req.Note,
		StartTime: start,
		Type:      req.Type,
		Category:  req.Category,
		Override:  req.Override || overrideQuery(c),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, event)
}

type closeStoppageRequest struct {
	EndTime *string `json:"end_time"`
}

// CloseStoppage handles POST /api/stoppages/:id/close. The body is optional.
func (h *Handler) CloseStoppage(c *gin.Context) {
	var req closeStoppageRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}
	end, err := parse.OptionalTimestamp(req.EndTime, h.location)
	if err != nil {
		h.writeError(c, err)
		return
	}

	event, err := h.service.Close(c.Request.Context(), mw.Scope(c), c.Param("id"), end)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

type reopenStoppageRequest struct {
	Override bool `json:"override"`
}

// ReopenStoppage handles POST /api/stoppages/:id/reopen. The body is optional.
func (h *Handler) ReopenStoppage(c *gin.Context) {
	var req reopenStoppageRequest
	if !h.bindOptionalJSON(c, &req) {
		return
	}

	event, err := h.service.Reopen(c.Request.Context(), mw.Scope(c), c.Param("id"), req.Override || overrideQuery(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// optionalTime records whether a JSON field was present and whether it was null.
type optionalTime struct {
	Set   bool
	Value *string
}

func (o *optionalTime) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

type editStoppageRequest struct {
	Reason    *string      `json:"reason"`
	Team      *string      `json:"team"`
	Note      *string      `json:"note"`
	StartTime *string      `json:"start_time"`
	EndTime   optionalTime `json:"end_time"`
	Type      *string      `json:"type"`
	Category  *string      `json:"category"`
}

// EditStoppage handles PATCH /api/stoppages/:id. An explicit "end_time": null
// reopens the event; an absent end_time leaves it unchanged.
func (h *Handler) EditStoppage(c *gin.Context) {
	var req editStoppageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	in := lifecycle.EditInput{
		Reason:   req.Reason,
		Team:     req.Team,
		Note:     req.Note,
		Type:     req.Type,
		Category: req.Category,
	}
	var err error
	if in.StartTime, err = parse.OptionalTimestamp(req.StartTime, h.location); err != nil {
		h.writeError(c, err)
		return
	}
	if req.EndTime.Set {
		in.EndTime.Set = true
		if in.EndTime.Value, err = parse.OptionalTimestamp(req.EndTime.Value, h.location); err != nil {
			h.writeError(c, err)
			return
		}
	}

	event, err := h.service.Edit(c.Request.Context(), mw.Scope(c), c.Param("id"), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// DeleteStoppage handles DELETE /api/stoppages/:id.
func (h *Handler) DeleteStoppage(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), mw.Scope(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetStoppage handles GET /api/stoppages/:id.
func (h *Handler) GetStoppage(c *gin.Context) {
	event, err := h.store.GetStoppage(c.Request.Context(), mw.Scope(c), c.Param("id"))
	if err != nil {
		h.writeError(c, storeError(err, "stoppage not found"))
		return
	}
	c.JSON(http.StatusOK, event)
}

// ListStoppages handles GET /api/stoppages?machine_id=&open=&from=&to=&limit=&offset=.
func (h *Handler) ListStoppages(c *gin.Context) {
	filter := store.StoppageFilter{MachineID: c.Query("machine_id"), Limit: defaultListLimit}

	if raw := c.Query("open"); raw != "" {
		open, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(c, apperr.Validation("open must be true or false"))
			return
		}
		filter.Open = &open
	}
	var err error
	if filter.From, err = h.queryTime(c, "from"); err != nil {
		h.writeError(c, err)
		return
	}
	if filter.To, err = h.queryTime(c, "to"); err != nil {
		h.writeError(c, err)
		return
	}
	if filter.Limit, err = queryInt(c, "limit", defaultListLimit); err != nil {
		h.writeError(c, err)
		return
	}
	switch {
	case filter.Limit == 0:
		h.writeError(c, apperr.Validation("limit must be at least 1"))
		return
	case filter.Limit > maxListLimit:
		filter.Limit = maxListLimit
	}
	if filter.Offset, err = queryInt(c, "offset", 0); err != nil {
		h.writeError(c, err)
		return
	}

	events, err := h.store.ListStoppages(c.Request.Context(), mw.Scope(c), filter)
	if err != nil {
		h.writeError(c, storeError(err, ""))
		return
	}
	c.JSON(http.StatusOK, events)
}

func (h *Handler) queryTime(c *gin.Context, key string) (*time.Time, error) {
	raw, ok := c.GetQuery(key)
	if !ok {
		return nil, nil
	}
	return parse.OptionalTimestamp(&raw, h.location)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Validation(key + " must be a non-negative integer")
	}
	return n, nil
}

func overrideQuery(c *gin.Context) bool {
	v, _ := strconv.ParseBool(c.Query("override"))
	return v
}

// bindOptionalJSON binds the body into v when there is one. It writes the
// error response and returns false on malformed input.
func (h *Handler) bindOptionalJSON(c *gin.Context, v any) bool {
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(c, err)
		return false
	}
	return true
}
