package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"habittrack/internal/mq"
	"habittrack/internal/service"
)

// MaintenanceHandler exposes the repair operations. Both are safely
// re-runnable; failures are reported but leave no partial state.
type MaintenanceHandler struct {
	fixer    *service.ConsistencyFixer
	producer service.EventPublisher // nil disables async recompute
	logger   *zap.Logger
}

func NewMaintenanceHandler(fixer *service.ConsistencyFixer, producer service.EventPublisher, logger *zap.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		fixer:    fixer,
		producer: producer,
		logger:   logger,
	}
}

// Backfill handles POST /maintenance/backfill for the calling user.
func (h *MaintenanceHandler) Backfill(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	if err := h.fixer.Backfill(c.Request.Context(), userID); err != nil {
		h.logger.Error("Backfill failed", zap.Int("user_id", userID), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "backfilled"})
}

// Recompute handles POST /maintenance/recompute. It recomputes the
// calling user's streaks synchronously; with ?all=true the sweep over
// every user is queued instead of blocking the request.
func (h *MaintenanceHandler) Recompute(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	if c.Query("all") == "true" {
		if h.producer == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "async recompute unavailable"})
			return
		}
		payload := mq.ProgressRecomputePayload{UserID: 0}
		if err := h.producer.Publish(mq.RoutingKeyProgressRecompute, payload); err != nil {
			h.logger.Error("Failed to queue recompute", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue recompute"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
		return
	}

	if err := h.fixer.RecomputeUser(c.Request.Context(), userID); err != nil {
		h.logger.Error("Recompute failed", zap.Int("user_id", userID), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "recomputed"})
}
