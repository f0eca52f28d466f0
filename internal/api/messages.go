package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jakechorley/volunteer-hub/pkg/models"
	"github.com/jakechorley/volunteer-hub/pkg/services"
)

type MessageHandler struct {
	svc    *services.MessageService
	fanout *services.Fanout
	logger *zap.Logger
}

type createMessageRequest struct {
	SenderID    string `json:"senderId" binding:"required"`
	RecipientID string `json:"recipientId" binding:"required"`
	Subject     string `json:"subject" binding:"required"`
	Content     string `json:"content" binding:"required"`
}

type batchMessagesRequest struct {
	Messages []createMessageRequest `json:"messages" binding:"required,min=1,dive"`
}

type sendMessageRequest struct {
	SenderID string                   `json:"senderId" binding:"required"`
	Selector models.RecipientSelector `json:"recipient" binding:"required"`
	Subject  string                   `json:"subject" binding:"required"`
	Content  string                   `json:"content" binding:"required"`
}

type updateMessageRequest struct {
	Read bool `json:"read"`
}

// List handles GET /api/messages[?recipientId=...]
func (h *MessageHandler) List(c *gin.Context) {
	var (
		msgs []models.Message
		err  error
	)
	if recipientID := c.Query("recipientId"); recipientID != "" {
		msgs, err = h.svc.ListByRecipient(c.Request.Context(), recipientID)
	} else {
		msgs, err = h.svc.List(c.Request.Context())
	}
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// Get handles GET /api/messages/:id
func (h *MessageHandler) Get(c *gin.Context) {
	msg, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Create handles POST /api/messages
func (h *MessageHandler) Create(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	msg, err := h.svc.Create(c.Request.Context(), models.Message{
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		Subject:     req.Subject,
		Content:     req.Content,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": msg})
}

// CreateBatch handles POST /api/messages/batch
func (h *MessageHandler) CreateBatch(c *gin.Context) {
	var req batchMessagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	batch := make([]models.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		batch = append(batch, models.Message{
			SenderID:    m.SenderID,
			RecipientID: m.RecipientID,
			Subject:     m.Subject,
			Content:     m.Content,
		})
	}

	created, err := h.svc.CreateBatch(c.Request.Context(), batch)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "messages": created})
}

// Send handles POST /api/messages/send: one logical send fanned out to the
// resolved recipients.
func (h *MessageHandler) Send(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.fanout.Send(c.Request.Context(), services.SendInput{
		SenderID: req.SenderID,
		Selector: req.Selector,
		Subject:  req.Subject,
		Content:  req.Content,
	})
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":      true,
		"recipientIds": result.RecipientIDs,
		"count":        len(result.RecipientIDs),
	})
}

// Update handles PATCH /api/messages/:id. The only mutable field is the
// read flag, and it only moves forward.
func (h *MessageHandler) Update(c *gin.Context) {
	var req updateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !req.Read {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "read flag can only be set to true"})
		return
	}

	msg, err := h.svc.MarkRead(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": msg})
}

// Delete handles DELETE /api/messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
