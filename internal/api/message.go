package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/parley/internal/chat"
	"github.com/lalith-99/parley/internal/middleware"
	"github.com/lalith-99/parley/internal/models"
	"github.com/lalith-99/parley/internal/observ"
	"go.uber.org/zap"
)

type MessageHandler struct {
	svc    *chat.Service
	logger *zap.Logger
}

func NewMessageHandler(svc *chat.Service, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, logger: logger}
}

type sendMessageRequest struct {
	Body    string `json:"body" binding:"required"`
	ReplyTo *int64 `json:"reply_to"`
}

// Send handles POST /v1/rooms/:id/messages
func (h *MessageHandler) Send(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return
	}

	identity := middleware.GetIdentity(c)
	msg, err := h.svc.SendToRoom(c.Request.Context(), identity, roomID, req.Body, req.ReplyTo)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	observ.MessagesSent.Inc()
	c.JSON(http.StatusCreated, msg)
}

type sendDirectRequest struct {
	Recipients   []models.Identity `json:"recipients" binding:"required,min=1"`
	Body         string            `json:"body" binding:"required"`
	ForceNewRoom bool              `json:"force_new_room"`
	Room         createRoomRequest `json:"room"`
}

// SendDirect handles POST /v1/messages
//
// Resolve-or-create delivery: the message lands in the room whose
// active participants are exactly the caller plus the recipients,
// creating that room when none exists (or when force_new_room is set).
func (h *MessageHandler) SendDirect(c *gin.Context) {
	var req sendDirectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity := middleware.GetIdentity(c)
	msg, err := h.svc.SendToIdentities(c.Request.Context(), identity, req.Recipients, req.Body, req.ForceNewRoom, chat.RoomConfig{
		Name:        req.Room.Name,
		Description: req.Room.Description,
		Metadata:    req.Room.Metadata,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	observ.MessagesSent.Inc()
	c.JSON(http.StatusCreated, msg)
}

// Delete handles DELETE /v1/messages/:id
//
// Soft delete: the row stays for thread integrity but the body is
// scrubbed and the message disappears from every participant's view.
func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	identity := middleware.GetIdentity(c)
	if err := h.svc.DeleteMessage(c.Request.Context(), identity, messageID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// MarkRead handles POST /v1/messages/:id/read — moves the caller's
// read marker up to this message's timestamp.
func (h *MessageHandler) MarkRead(c *gin.Context) {
	messageID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return
	}

	identity := middleware.GetIdentity(c)
	if err := h.svc.MarkMessageRead(c.Request.Context(), identity, messageID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
