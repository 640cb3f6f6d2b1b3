package wizard

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Janitor periodically sweeps idle sessions out of a Store.
type Janitor struct {
	store     Store
	logger    *zap.Logger
	scheduler *cron.Cron
}

// NewJanitor schedules sweeps on spec, a standard cron expression or an
// "@every" descriptor.
func NewJanitor(store Store, spec string, logger *zap.Logger) (*Janitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	j := &Janitor{store: store, logger: logger, scheduler: cron.New()}
	if _, err := j.scheduler.AddFunc(spec, j.sweep); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return j, nil
}

func (j *Janitor) sweep() {
	if n := j.store.Sweep(time.Now()); n > 0 {
		j.logger.Info("expired import sessions removed",
			zap.Int("count", n),
			zap.Int("remaining", j.store.Len()))
	}
}

func (j *Janitor) Start() {
	j.scheduler.Start()
}

// Stop halts the schedule and returns a context that is done once any
// running sweep has finished.
func (j *Janitor) Stop() context.Context {
	return j.scheduler.Stop()
}
