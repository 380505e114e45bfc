package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"downtime-backend/internal/apperr"
	"downtime-backend/internal/model"
	"downtime-backend/internal/mw"
	"downtime-backend/internal/store"
)

// machineResponse is a machine with its currently open stoppages.
type machineResponse struct {
	model.Machine
	OpenStoppages []model.StoppageEvent `json:"openStoppages"`
}

// ListMachines handles GET /api/machines?section_id=&status=.
func (h *Handler) ListMachines(c *gin.Context) {
	filter := store.MachineFilter{SectionID: c.Query("section_id")}
	if raw := c.Query("status"); raw != "" {
		status := model.MachineStatus(strings.ToUpper(raw))
		switch status {
		case model.StatusRunning, model.StatusStopped, model.StatusMaintenance:
			filter.Status = status
		default:
			h.writeError(c, apperr.Validation("status must be RUNNING, STOPPED or MAINTENANCE"))
			return
		}
	}

	machines, err := h.store.ListMachines(c.Request.Context(), mw.Scope(c), filter)
	if err != nil {
		h.writeError(c, storeError(err, ""))
		return
	}
	c.JSON(http.StatusOK, machines)
}

// GetMachine handles GET /api/machines/:id.
func (h *Handler) GetMachine(c *gin.Context) {
	ctx := c.Request.Context()
	machine, err := h.store.FindMachine(ctx, mw.Scope(c), c.Param("id"))
	if err != nil {
		h.writeError(c, storeError(err, "machine not found"))
		return
	}

	open, err := h.store.OpenStoppages(ctx, machine.ID, "")
	if err != nil {
		h.writeError(c, storeError(err, ""))
		return
	}
	if open == nil {
		open = []model.StoppageEvent{}
	}
	c.JSON(http.StatusOK, machineResponse{Machine: *machine, OpenStoppages: open})
}
