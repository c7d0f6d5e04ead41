package workspace

import (
	"context"
	"os"
	"time"

	"github.com/brightloom/adcast/internal/retention"
	"github.com/brightloom/adcast/pkg/metrics"
	"github.com/sirupsen/logrus"
)

// DefaultSweepSchedule runs the sweeper every 30 minutes.
const DefaultSweepSchedule = "*/30 * * * *"

// DefaultSessionMaxAge is how long a session may go untouched before it
// is swept.
const DefaultSessionMaxAge = 24 * time.Hour

// StartSweeper launches the session sweeper as a background goroutine. It
// returns immediately; the sweeper runs until ctx is cancelled. maxAge and
// schedule are typically sourced from SESSION_MAX_AGE_HOURS and a fixed
// 30-minute cron schedule.
func StartSweeper(ctx context.Context, log *logrus.Entry, store *Store, maxAge time.Duration, schedule string) {
	policy := retention.Policy{
		Name:     "session",
		Root:     store.Root(),
		MaxAge:   maxAge,
		Schedule: schedule,
	}
	go retention.Run(ctx, log, policy, func(path string) (int, error) {
		n, err := countFiles(path)
		if err != nil && !os.IsNotExist(err) {
			return 0, err
		}
		if rmErr := os.RemoveAll(path); rmErr != nil {
			return 0, rmErr
		}
		return n, nil
	}, func(p retention.Policy, name string, filesRemoved int, err error) {
		if err == nil {
			metrics.SweeperDeletions.WithLabelValues(p.Name).Inc()
		}
	})
}
