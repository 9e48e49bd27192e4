package server

import (
	"context"
	"time"

	"github.com/dmitrijs2005/gophblog/internal/logging"
	"github.com/dmitrijs2005/gophblog/internal/server/httpapi"
	"github.com/dmitrijs2005/gophblog/internal/server/services"
)

type sweeper interface {
	Sweep(ctx context.Context, now time.Time) (*services.SweepResult, error)
}

type sessionPurger interface {
	PurgeExpiredSessions(ctx context.Context) (int64, error)
}

// cleanupChore periodically sweeps media and drops expired sessions. It is
// an in-process alternative to calling the cron endpoint.
type cleanupChore struct {
	interval time.Duration
	sweeper  sweeper
	sessions sessionPurger
	metrics  *httpapi.Metrics
	logger   logging.Logger
	nowFn    func() time.Time
}

func newCleanupChore(interval time.Duration, sw sweeper, sp sessionPurger, m *httpapi.Metrics, l logging.Logger) *cleanupChore {
	return &cleanupChore{
		interval: interval,
		sweeper:  sw,
		sessions: sp,
		metrics:  m,
		logger:   l.With("module", "cleanup_chore"),
		nowFn:    time.Now,
	}
}

func (c *cleanupChore) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info(ctx, "cleanup chore started", "interval", c.interval.String())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runOnce(ctx)
		}
	}
}

func (c *cleanupChore) runOnce(ctx context.Context) {
	res, err := c.sweeper.Sweep(ctx, c.nowFn())
	if err != nil {
		c.logger.Error(ctx, "sweep failed", "error", err)
	} else {
		c.metrics.ObserveSweep(res)
		if res.Err != nil {
			c.logger.Warn(ctx, "sweep left items behind", "failed", res.Failed, "error", res.Err)
		}
	}

	n, err := c.sessions.PurgeExpiredSessions(ctx)
	if err != nil {
		c.logger.Error(ctx, "session purge failed", "error", err)
		return
	}
	if n > 0 {
		c.logger.Info(ctx, "expired sessions purged", "count", n)
	}
}
