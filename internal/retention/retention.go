// Package retention purges conversations that have gone without updates
// for longer than the configured period. Deletion goes through the chat
// facade so the cascade and the in-memory projection stay consistent.
package retention

import (
	"context"
	"fmt"
	"time"

	"github.com/adhocore/gronx"

	"chatdb/pkg/chat"
	"chatdb/pkg/config"
	"chatdb/pkg/logger"
)

// Start starts the retention scheduler if enabled. Returns a cancel func.
func Start(ctx context.Context, cfg config.RetentionConfig, c *chat.Chat) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("retention_disabled")
		return func() {}, nil
	}

	maxIdle, err := time.ParseDuration(cfg.MaxIdle)
	if err != nil || maxIdle <= 0 {
		return nil, fmt.Errorf("invalid retention max_idle %q", cfg.MaxIdle)
	}

	cronExpr := cfg.Cron
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	if !gronx.IsValid(cronExpr) {
		logger.Error("retention_invalid_cron", "cron", cronExpr)
		return nil, fmt.Errorf("invalid retention cron expression: %s", cronExpr)
	}

	logger.Info("retention_enabled", "cron", cronExpr, "max_idle", maxIdle.String())
	ctx2, cancel := context.WithCancel(ctx)
	go runScheduler(ctx2, cronExpr, maxIdle, c)
	return cancel, nil
}

// runScheduler computes the next cron tick with gronx and sleeps until
// then, running one purge pass per tick.
func runScheduler(ctx context.Context, cronExpr string, maxIdle time.Duration, c *chat.Chat) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		default:
		}

		now := time.Now().UTC()
		next, err := gronx.NextTickAfter(cronExpr, now, false)
		if err != nil {
			logger.Error("retention_nexttick_failed", "cron", cronExpr, "error", err)
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		select {
		case <-time.After(time.Until(next)):
		case <-ctx.Done():
			logger.Info("retention_scheduler_stopping")
			return
		}

		if err := RunOnce(maxIdle, c); err != nil {
			logger.Error("retention_run_error", "error", err)
		}
	}
}

// RunOnce deletes every non-current conversation whose updatedAt is older
// than maxIdle. Exported so tests and admin triggers can run a pass
// on-demand.
func RunOnce(maxIdle time.Duration, c *chat.Chat) error {
	cutoff := time.Now().UnixMilli() - maxIdle.Milliseconds()
	current := c.CurrentConversationID()
	purged := 0
	for _, conv := range c.Conversations() {
		if conv.ID == current || conv.UpdatedAt >= cutoff {
			continue
		}
		if err := c.DeleteConversation(conv.ID); err != nil {
			return err
		}
		purged++
	}
	logger.Info("retention_run_complete", "purged", purged, "cutoff", cutoff)
	return nil
}
