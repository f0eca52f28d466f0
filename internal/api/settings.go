package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/pkg/models"
	"github.com/jakechorley/volunteer-hub/pkg/services"
)

type SettingsHandler struct {
	svc    *services.SettingsService
	logger *zap.Logger
}

// Get handles GET /api/settings
func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.svc.Get(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

// Save handles POST /api/settings
func (h *SettingsHandler) Save(c *gin.Context) {
	var settings models.SystemSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		badRequest(c, err)
		return
	}

	saved, err := h.svc.Save(c.Request.Context(), settings)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "settings": saved})
}
