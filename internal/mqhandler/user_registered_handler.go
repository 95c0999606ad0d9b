package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"habittrack/internal/mq"
	"habittrack/internal/service"
	"habittrack/internal/util"
)

// UserRegisteredHandler runs the onboarding backfill when a new user
// signs up, so their history starts complete.
type UserRegisteredHandler struct {
	fixer   *service.ConsistencyFixer
	deduper *util.Deduper
	logger  *zap.Logger
}

func NewUserRegisteredHandler(fixer *service.ConsistencyFixer, deduper *util.Deduper, logger *zap.Logger) *UserRegisteredHandler {
	return &UserRegisteredHandler{
		fixer:   fixer,
		deduper: deduper,
		logger:  logger,
	}
}

func (h *UserRegisteredHandler) HandleUserRegistered(ctx context.Context, raw json.RawMessage) error {
	var p mq.UserRegisteredPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal user registered payload", zap.Error(err))
		return fmt.Errorf("%w: %v", mq.ErrMalformed, err)
	}

	// backfill is idempotent; the dedup just avoids a redundant full
	// scan on redelivery
	if !h.deduper.AcquireOnce(ctx, "onboarding_backfill", p.UserID) {
		h.logger.Debug("Skipping duplicate onboarding backfill", zap.Int("user_id", p.UserID))
		return nil
	}

	h.logger.Info("Running onboarding backfill", zap.Int("user_id", p.UserID))

	if err := h.fixer.Backfill(ctx, p.UserID); err != nil {
		h.logger.Error("Onboarding backfill failed",
			zap.Int("user_id", p.UserID),
			zap.Error(err),
		)
		return err
	}

	return nil
}
