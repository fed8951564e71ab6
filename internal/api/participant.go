package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/parley/internal/chat"
	"github.com/lalith-99/parley/internal/middleware"
	"github.com/lalith-99/parley/internal/models"
	"go.uber.org/zap"
)

type ParticipantHandler struct {
	svc    *chat.Service
	logger *zap.Logger
}

func NewParticipantHandler(svc *chat.Service, logger *zap.Logger) *ParticipantHandler {
	return &ParticipantHandler{svc: svc, logger: logger}
}

// List handles GET /v1/rooms/:id/participants?include_departed=true
func (h *ParticipantHandler) List(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return
	}
	identity := middleware.GetIdentity(c)
	includeDeparted := c.Query("include_departed") == "true"

	members, err := h.svc.Participants(c.Request.Context(), identity, roomID, includeDeparted)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

// requireManager checks that the caller holds an active membership in
// the room with a role allowed to manage participants. Returning the
// core sentinels keeps the error mapping in one place.
func (h *ParticipantHandler) requireManager(c *gin.Context, roomID uuid.UUID) error {
	identity := middleware.GetIdentity(c)
	members, err := h.svc.Participants(c.Request.Context(), identity, roomID, false)
	if err != nil {
		return err
	}
	for i := range members {
		m := &members[i]
		if m.Participant == identity && m.IsActive() && m.CanManageParticipants() {
			return nil
		}
	}
	return chat.ErrNotAllowed
}

type addParticipantRequest struct {
	Kind string      `json:"kind" binding:"required"`
	ID   string      `json:"id" binding:"required"`
	Role models.Role `json:"role"`
}

// Add handles POST /v1/rooms/:id/participants
func (h *ParticipantHandler) Add(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return
	}
	var req addParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.requireManager(c, roomID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	m, err := h.svc.AddParticipant(c.Request.Context(), roomID,
		models.Identity{Kind: req.Kind, ID: req.ID}, req.Role)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// Remove handles DELETE /v1/rooms/:id/participants/:kind/:pid
func (h *ParticipantHandler) Remove(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return
	}
	if err := h.requireManager(c, roomID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	target := models.Identity{Kind: c.Param("kind"), ID: c.Param("pid")}
	m, err := h.svc.RemoveParticipant(c.Request.Context(), roomID, target)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

type syncParticipantsRequest struct {
	Participants []models.Identity `json:"participants" binding:"required"`
	Role         models.Role       `json:"role"`
}

// Sync handles PUT /v1/rooms/:id/participants
//
// Declarative membership: identities missing from the desired set are
// removed, identities not yet active are added, everyone else is left
// untouched.
func (h *ParticipantHandler) Sync(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return
	}
	var req syncParticipantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.requireManager(c, roomID); err != nil {
		respondError(c, h.logger, err)
		return
	}

	added, removed, err := h.svc.SyncParticipants(c.Request.Context(), roomID, req.Participants, req.Role)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added, "removed": removed})
}
