package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/pkg/models"
	"github.com/jakechorley/volunteer-hub/pkg/services"
)

type UserHandler struct {
	svc    *services.UserService
	inbox  *services.Inbox
	logger *zap.Logger
}

type createUserRequest struct {
	ID                 string `json:"id"`
	Name               string `json:"name" binding:"required"`
	Email              string `json:"email" binding:"required,email"`
	Role               string `json:"role" binding:"omitempty,oneof=manager volunteer"`
	EmailNotifications bool   `json:"emailNotifications"`
	AuthProvider       string `json:"authProvider"`
}

// List handles GET /api/users
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.svc.List(c.Request.Context())
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// Get handles GET /api/users/:id
func (h *UserHandler) Get(c *gin.Context) {
	user, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Create handles POST /api/users. This is the identity collaborator's
// entry point, so first-sign-in semantics apply: the first user ever
// becomes the owner.
func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.svc.EnsureUser(c.Request.Context(), models.User{
		ID:                 req.ID,
		Name:               req.Name,
		Email:              req.Email,
		Role:               models.UserRole(req.Role),
		EmailNotifications: req.EmailNotifications,
		AuthProvider:       req.AuthProvider,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "user": user})
}

// Update handles PATCH /api/users/:id
func (h *UserHandler) Update(c *gin.Context) {
	var user models.User
	if err := c.ShouldBindJSON(&user); err != nil {
		badRequest(c, err)
		return
	}

	updated, err := h.svc.Update(c.Request.Context(), c.Param("id"), user)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": updated})
}

// Delete handles DELETE /api/users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// IncrementUnread handles PATCH /api/users/:id/unread-messages/increment
func (h *UserHandler) IncrementUnread(c *gin.Context) {
	user, err := h.svc.IncrementUnread(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "unreadMessages": user.UnreadMessages})
}

// ResetUnread handles PATCH /api/users/:id/unread-messages/reset
func (h *UserHandler) ResetUnread(c *gin.Context) {
	user, err := h.svc.ResetUnread(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "unreadMessages": user.UnreadMessages})
}

// TransferOwnership handles POST /api/users/:id/transfer-ownership
func (h *UserHandler) TransferOwnership(c *gin.Context) {
	if err := h.svc.TransferOwnership(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Inbox handles GET /api/users/:id/inbox. Opening the inbox marks every
// unread message read and resets the unread counter.
func (h *UserHandler) Inbox(c *gin.Context) {
	msgs, err := h.inbox.Visit(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}
