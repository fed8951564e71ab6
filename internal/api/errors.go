package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/parley/internal/chat"
	"go.uber.org/zap"
)

// respondError maps messaging-core sentinels to HTTP statuses. Anything
// unrecognized is a store or infrastructure failure: log it and return
// a generic 500 so internals never leak to the client.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, chat.ErrRoomNotFound),
		errors.Is(err, chat.ErrMessageNotFound),
		errors.Is(err, chat.ErrNotAParticipant):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrNotAnActiveMember),
		errors.Is(err, chat.ErrNotAllowed):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrCannotCreateRoomFromMembership),
		errors.Is(err, chat.ErrReplyOutsideRoom),
		errors.Is(err, chat.ErrRestoreUnsupported):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
