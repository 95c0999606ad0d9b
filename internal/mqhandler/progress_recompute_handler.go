package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"habittrack/internal/mq"
	"habittrack/internal/service"
)

// ProgressRecomputeHandler serves queued repair requests: a full streak
// recomputation for one user, or for everyone when no user is given.
type ProgressRecomputeHandler struct {
	fixer  *service.ConsistencyFixer
	logger *zap.Logger
}

func NewProgressRecomputeHandler(fixer *service.ConsistencyFixer, logger *zap.Logger) *ProgressRecomputeHandler {
	return &ProgressRecomputeHandler{
		fixer:  fixer,
		logger: logger,
	}
}

func (h *ProgressRecomputeHandler) HandleProgressRecompute(ctx context.Context, raw json.RawMessage) error {
	var p mq.ProgressRecomputePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal recompute payload", zap.Error(err))
		return fmt.Errorf("%w: %v", mq.ErrMalformed, err)
	}

	if p.UserID != 0 {
		h.logger.Info("Recomputing streaks", zap.Int("user_id", p.UserID))
		return h.fixer.RecomputeUser(ctx, p.UserID)
	}

	h.logger.Info("Recomputing streaks for all users")
	return h.fixer.RecomputeAll(ctx)
}
