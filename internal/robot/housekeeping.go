package robot

import (
	"context"
	"time"

	"github.com/schlind/karlsruher/internal/brain"
	"github.com/schlind/karlsruher/internal/logging"
	"github.com/schlind/karlsruher/internal/metrics"
)

// Housekeeping imports followers and friends from Twitter under the run
// lock. Due to upstream paging and rate limits this may take up to an
// hour per 1000 followers/friends.
func (r *Robot) Housekeeping(ctx context.Context) error {
	if err := r.lock.Acquire(); err != nil {
		return err
	}
	defer func() { _ = r.lock.Release() }()
	start := time.Now()
	metrics.HousekeepingRuns.Inc()
	logging.Info("housekeeping_start", nil)
	defer func() {
		logging.Info("housekeeping_done", map[string]any{"elapsed": time.Since(start).String()})
		metrics.ObserveDuration(metrics.HousekeepingDuration, start)
	}()
	if err := r.brain.ImportUsers(ctx, brain.Follower, r.twitter.Followers); err != nil {
		metrics.HousekeepingErrors.Inc()
		return err
	}
	if err := r.brain.ImportUsers(ctx, brain.Friend, r.twitter.Friends); err != nil {
		metrics.HousekeepingErrors.Inc()
		return err
	}
	return nil
}
