package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/pkg/capacity"
	"github.com/jakechorley/volunteer-hub/pkg/services"
)

// StaffingHandler serves the capacity dashboard.
type StaffingHandler struct {
	events *services.EventService
	logger *zap.Logger
}

// Report handles GET /api/staffing
func (h *StaffingHandler) Report(c *gin.Context) {
	events, err := h.events.List(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, capacity.BuildReport(events))
}
