package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/pkg/models"
	"github.com/jakechorley/volunteer-hub/pkg/services"
)

type EventHandler struct {
	svc    *services.EventService
	logger *zap.Logger
}

type signUpRequest struct {
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	Phone       string `json:"phone"`
	Description string `json:"description"`
}

// List handles GET /api/events
func (h *EventHandler) List(c *gin.Context) {
	events, err := h.svc.List(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

// Get handles GET /api/events/:id. A ?slug=1 query treats the id segment as
// a landing-page custom URL instead.
func (h *EventHandler) Get(c *gin.Context) {
	var (
		ev  *models.Event
		err error
	)
	if c.Query("slug") != "" {
		ev, err = h.svc.GetByCustomURL(c.Request.Context(), c.Param("id"))
	} else {
		ev, err = h.svc.Get(c.Request.Context(), c.Param("id"))
	}
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// Create handles POST /api/events
func (h *EventHandler) Create(c *gin.Context) {
	var ev models.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		badRequest(c, err)
		return
	}

	created, err := h.svc.Create(c.Request.Context(), ev)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "event": created})
}

// Update handles PUT /api/events/:id
func (h *EventHandler) Update(c *gin.Context) {
	var ev models.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		badRequest(c, err)
		return
	}

	updated, err := h.svc.Update(c.Request.Context(), c.Param("id"), ev)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "event": updated})
}

// Delete handles DELETE /api/events/:id
func (h *EventHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Occurrences handles GET /api/events/:id/occurrences?count=10
func (h *EventHandler) Occurrences(c *gin.Context) {
	count := 10
	if raw := c.Query("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid 'count' parameter"})
			return
		}
		count = parsed
	}

	ev, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	dates, err := h.svc.Occurrences(ev, count)
	if err != nil {
		fail(c, h.logger, err)
		return
	}

	formatted := make([]string, len(dates))
	for i, d := range dates {
		formatted[i] = d.Format("2006-01-02")
	}
	c.JSON(http.StatusOK, gin.H{"eventId": ev.ID, "occurrences": formatted})
}

// SignUp handles POST /api/events/:id/roles/:roleId/signup
func (h *EventHandler) SignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ev, err := h.svc.SignUp(c.Request.Context(), c.Param("id"), c.Param("roleId"), models.Volunteer{
		Name:        req.Name,
		Email:       req.Email,
		Phone:       req.Phone,
		Description: req.Description,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "event": ev})
}
