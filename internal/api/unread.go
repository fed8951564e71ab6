package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/parley/internal/chat"
	"github.com/lalith-99/parley/internal/middleware"
	"go.uber.org/zap"
)

type UnreadHandler struct {
	svc    *chat.Service
	logger *zap.Logger
}

func NewUnreadHandler(svc *chat.Service, logger *zap.Logger) *UnreadHandler {
	return &UnreadHandler{svc: svc, logger: logger}
}

// HasUnread handles GET /v1/unread?days=7&include_system=true
//
// Answers "does the caller have anything unread from the last N days"
// across every room they are active in, in a single store query. days=0
// means today only (since midnight).
func (h *UnreadHandler) HasUnread(c *gin.Context) {
	days := 7
	if d := c.Query("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'days' parameter"})
			return
		}
		days = parsed
	}
	includeSystem := c.Query("include_system") == "true"

	identity := middleware.GetIdentity(c)
	unread, err := h.svc.HasUnreadSince(c.Request.Context(), identity, days, includeSystem)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread": unread, "days": days})
}
