package permission

import (
	"context"
	"time"

	"github.com/teemow/inboxgate/internal/logging"
)

// DefaultSweepInterval is used when RunSweeper gets a non-positive interval.
const DefaultSweepInterval = time.Minute

// RunSweeper expires stale pending actions every interval until ctx is done.
func (l *Ledger) RunSweeper(ctx context.Context, interval time.Duration) {
	if l.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := l.ExpireStale(ctx); err != nil && ctx.Err() == nil {
				l.logger.WarnContext(ctx, "pending action sweep failed", logging.Err(err))
			}
		}
	}
}
