// Package repair schedules the cut-info self-healing pass.
package repair

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kilianp07/haulboard/core/logger"
)

// Repairer runs one repair pass and returns the number of corrected rows.
type Repairer interface {
	Repair(ctx context.Context) (int, error)
}

// Job runs the repair pass on a cron schedule.
type Job struct {
	repairer Repairer
	log      logger.Logger
	timeout  time.Duration
	cron     *cron.Cron
}

// New returns a job whose runs are bounded by timeout.
func New(r Repairer, log logger.Logger, timeout time.Duration) *Job {
	if log == nil {
		log = logger.Nop{}
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Job{
		repairer: r,
		log:      log,
		timeout:  timeout,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}
}

// Start registers the job under spec and starts the scheduler. Runs stop
// when ctx is canceled.
func (j *Job) Start(ctx context.Context, spec string) error {
	if _, err := j.cron.AddFunc(spec, func() { j.Run(ctx) }); err != nil {
		return err
	}
	j.cron.Start()
	j.log.Infof("repair job scheduled: %s", spec)
	return nil
}

// Run executes one pass and logs its outcome.
func (j *Job) Run(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	rctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()
	n, err := j.repairer.Repair(rctx)
	if err != nil {
		j.log.Errorf("repair pass: %v", err)
		return 0
	}
	if n > 0 {
		j.log.Warnf("repair pass corrected %d cut info rows", n)
	} else {
		j.log.Debugf("repair pass: nothing to fix")
	}
	return n
}

// Stop stops the scheduler and waits for a running pass.
func (j *Job) Stop() {
	<-j.cron.Stop().Done()
}
