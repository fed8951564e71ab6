package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/parley/internal/chat"
	"github.com/lalith-99/parley/internal/middleware"
	"github.com/lalith-99/parley/internal/observ"
	"go.uber.org/zap"
)

type RoomHandler struct {
	svc    *chat.Service
	logger *zap.Logger
}

func NewRoomHandler(svc *chat.Service, logger *zap.Logger) *RoomHandler {
	return &RoomHandler{svc: svc, logger: logger}
}

type createRoomRequest struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata"`
}

// List handles GET /v1/rooms?include_departed=true
//
// Returns one summary per room the caller belongs to: the room, the
// caller's membership, the unread count, and the latest message the
// caller is allowed to see.
func (h *RoomHandler) List(c *gin.Context) {
	identity := middleware.GetIdentity(c)
	includeDeparted := c.Query("include_departed") == "true"

	summaries, err := h.svc.RoomsFor(c.Request.Context(), identity, includeDeparted)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

// Create handles POST /v1/rooms
func (h *RoomHandler) Create(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	identity := middleware.GetIdentity(c)

	room, err := h.svc.CreateRoom(c.Request.Context(), identity, chat.RoomConfig{
		Name:        req.Name,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	observ.RoomsCreated.Inc()
	c.JSON(http.StatusCreated, room)
}

// Personal handles GET /v1/personal-room — the caller's self-room
// (notes-to-self). Created on first use, returned as-is after that.
func (h *RoomHandler) Personal(c *gin.Context) {
	identity := middleware.GetIdentity(c)

	room, err := h.svc.GetOrCreatePersonalRoom(c.Request.Context(), identity, chat.RoomConfig{})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// Get handles GET /v1/rooms/:id?before=123&limit=50
//
// Cursor-based pagination over the messages visible to the caller:
//   - "before" = message ID, "give me messages older than this".
//     0 = start from latest.
//   - "limit" defaults to 50, capped at 100.
func (h *RoomHandler) Get(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return
	}

	var before int64
	if b := c.Query("before"); b != "" {
		before, err = strconv.ParseInt(b, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'before' parameter"})
			return
		}
	}

	limit := 50
	if l := c.Query("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'limit' parameter"})
			return
		}
		if limit > 100 {
			limit = 100
		}
	}

	identity := middleware.GetIdentity(c)
	messages, err := h.svc.RoomMessages(c.Request.Context(), identity, roomID, before, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// Delete handles DELETE /v1/rooms/:id
//
// Soft delete, admin only. The room disappears from listings and
// resolution; its messages stay in the store but are unreachable.
func (h *RoomHandler) Delete(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return
	}

	identity := middleware.GetIdentity(c)
	if err := h.svc.DeleteRoom(c.Request.Context(), identity, roomID); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type markReadRequest struct {
	// Until moves the read marker to a specific instant instead of
	// "now". Backward moves are ignored either way.
	Until *time.Time `json:"until"`
}

// MarkRead handles POST /v1/rooms/:id/read
func (h *RoomHandler) MarkRead(c *gin.Context) {
	roomID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room ID"})
		return
	}

	var req markReadRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	identity := middleware.GetIdentity(c)
	if req.Until != nil {
		err = h.svc.MarkReadUntil(c.Request.Context(), identity, roomID, *req.Until)
	} else {
		err = h.svc.MarkRoomRead(c.Request.Context(), identity, roomID)
	}
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
