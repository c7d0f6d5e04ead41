// Package retention enforces per-directory file TTLs. Instead of a sweeper
// touching a process-wide directory global, a Policy is an explicit value
// describing what to sweep and how often, passed into a cooperative
// background loop.
//
// Both the session sweeper (internal/workspace, 30 min / 24h TTL) and each
// gateway's local output-directory sweeper (1-2h TTL) are instances of the
// same Policy run by the same loop.
package retention

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"
	"github.com/sirupsen/logrus"
)

// Policy describes one directory's retention rule: entries directly under
// Root whose mtime is older than MaxAge are deleted. Schedule is a 5-field
// cron expression (default "*/30 * * * *" — every 30 minutes) controlling
// how often the sweep runs; Name identifies the policy in logs and metrics.
type Policy struct {
	Name     string
	Root     string
	MaxAge   time.Duration
	Schedule string
}

// DeleteFunc removes one entry under a Policy's Root and returns the count
// of files it removed (for directories, a recursive count). Exposed as a
// parameter so workspace.Store and the output-dir sweepers can each supply
// their own removal semantics (recursive directory delete vs. single file).
type DeleteFunc func(path string) (int, error)

// OnSweep is called once per entry a sweep pass decides to delete, after
// the delete attempt, with the error (nil on success) — used for metrics
// and structured logging.
type OnSweep func(policy Policy, name string, filesRemoved int, err error)

// Run starts a cooperative sweep loop for policy. It blocks until ctx is
// cancelled. Each pass lists Root's immediate children, deletes any whose
// mtime exceeds MaxAge using del, and reports the outcome via onSweep (may
// be nil). A failure sweeping one entry is logged and does not abort the
// pass.
func Run(ctx context.Context, log *logrus.Entry, policy Policy, del DeleteFunc, onSweep OnSweep) {
	schedule := policy.Schedule
	if schedule == "" {
		schedule = "*/30 * * * *"
	}

	for {
		next, err := gronx.NextTick(schedule, false)
		wait := 30 * time.Minute
		if err == nil {
			wait = time.Until(next)
		}
		if wait <= 0 {
			wait = time.Minute
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		sweepOnce(log, policy, del, onSweep)
	}
}

// sweepOnce performs a single pass over policy.Root. Exported indirectly via
// Run, but also usable directly from tests as it needs no ticker.
func sweepOnce(log *logrus.Entry, policy Policy, del DeleteFunc, onSweep OnSweep) {
	entries, err := os.ReadDir(policy.Root)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithField("sweeper", policy.Name).WithError(err).Warn("sweep: cannot list root")
		}
		return
	}

	cutoff := time.Now().Add(-policy.MaxAge)
	for _, entry := range entries {
		path := filepath.Join(policy.Root, entry.Name())
		info, err := entry.Info()
		if err != nil {
			log.WithField("sweeper", policy.Name).WithField("path", path).WithError(err).Warn("sweep: stat failed")
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		n, delErr := del(path)
		if delErr != nil {
			log.WithField("sweeper", policy.Name).WithField("path", path).WithError(delErr).Warn("sweep: delete failed")
		} else {
			log.WithField("sweeper", policy.Name).WithField("path", path).WithField("files_removed", n).Info("sweep: removed stale entry")
		}
		if onSweep != nil {
			onSweep(policy, entry.Name(), n, delErr)
		}
	}
}

// SweepNow runs a single pass immediately, outside of the scheduled loop.
// Exposed for tests and for an operator-triggered manual sweep.
func SweepNow(log *logrus.Entry, policy Policy, del DeleteFunc, onSweep OnSweep) {
	sweepOnce(log, policy, del, onSweep)
}
