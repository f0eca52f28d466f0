// Package api exposes the data services over HTTP. The surface is thin CRUD
// plus the dedicated operations (sign-up, fan-out, inbox visit, unread
// counters); everything interesting happens in the services.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/pkg/services"
	"github.com/jakechorley/volunteer-hub/pkg/storage"
)

// Services bundles the constructed service layer for route registration.
type Services struct {
	Settings *services.SettingsService
	Users    *services.UserService
	Events   *services.EventService
	Messages *services.MessageService
	Fanout   *services.Fanout
	Inbox    *services.Inbox
}

// NewRouter builds the gin engine with all API routes registered.
func NewRouter(svcs Services, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	settings := &SettingsHandler{svc: svcs.Settings, logger: logger}
	users := &UserHandler{svc: svcs.Users, inbox: svcs.Inbox, logger: logger}
	events := &EventHandler{svc: svcs.Events, logger: logger}
	messages := &MessageHandler{svc: svcs.Messages, fanout: svcs.Fanout, logger: logger}
	staffing := &StaffingHandler{events: svcs.Events, logger: logger}

	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/settings", settings.Get)
		apiGroup.POST("/settings", settings.Save)

		apiGroup.GET("/users", users.List)
		apiGroup.POST("/users", users.Create)
		apiGroup.GET("/users/:id", users.Get)
		apiGroup.PATCH("/users/:id", users.Update)
		apiGroup.DELETE("/users/:id", users.Delete)
		apiGroup.PATCH("/users/:id/unread-messages/increment", users.IncrementUnread)
		apiGroup.PATCH("/users/:id/unread-messages/reset", users.ResetUnread)
		apiGroup.POST("/users/:id/transfer-ownership", users.TransferOwnership)
		apiGroup.GET("/users/:id/inbox", users.Inbox)

		apiGroup.GET("/events", events.List)
		apiGroup.POST("/events", events.Create)
		apiGroup.GET("/events/:id", events.Get)
		apiGroup.PUT("/events/:id", events.Update)
		apiGroup.DELETE("/events/:id", events.Delete)
		apiGroup.GET("/events/:id/occurrences", events.Occurrences)
		apiGroup.POST("/events/:id/roles/:roleId/signup", events.SignUp)

		apiGroup.GET("/staffing", staffing.Report)

		apiGroup.GET("/messages", messages.List)
		apiGroup.POST("/messages", messages.Create)
		apiGroup.GET("/messages/:id", messages.Get)
		apiGroup.PATCH("/messages/:id", messages.Update)
		apiGroup.DELETE("/messages/:id", messages.Delete)
		apiGroup.POST("/messages/batch", messages.CreateBatch)
		apiGroup.POST("/messages/send", messages.Send)
	}

	return router
}

// statusFor maps the storage error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrConflict), errors.Is(err, storage.ErrReferential):
		return http.StatusConflict
	case errors.Is(err, storage.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error envelope. Taxonomy errors carry messages safe to
// show; anything unclassified is logged and masked.
func fail(c *gin.Context, logger *zap.Logger, err error) {
	status := statusFor(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		message = "internal error"
	}
	c.JSON(status, gin.H{"success": false, "error": message})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
}
