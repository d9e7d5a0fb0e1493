// Package cleanup schedules the purge of lobbies whose event is long over.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Purger deletes lobbies with an event date before cutoff.
type Purger interface {
	PurgeStale(ctx context.Context, cutoff time.Time) (int64, error)
}

type Job struct {
	purger    Purger
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func NewJob(purger Purger, retention time.Duration, logger *zap.Logger) *Job {
	return &Job{purger: purger, retention: retention, logger: logger, now: time.Now}
}

// Run purges once.
func (j *Job) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := j.now().UTC().Add(-j.retention)
	j.logger.Info("stale lobby cleanup started", zap.Time("cutoff", cutoff))
	n, err := j.purger.PurgeStale(ctx, cutoff)
	if err != nil {
		j.logger.Error("stale lobby cleanup failed", zap.Error(err))
		return
	}
	j.logger.Info("stale lobby cleanup finished", zap.Int64("lobbies_deleted", n))
}

// Start schedules the job on spec and starts the scheduler. The returned
// scheduler must be stopped on shutdown.
func Start(spec string, job *Job) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddJob(spec, job); err != nil {
		return nil, fmt.Errorf("schedule cleanup %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
