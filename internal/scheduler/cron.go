package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// Cron provides cron-based registration of recurring jobs, used to hook the
// nightly analysis entry point to its daily cadence.
type Cron struct {
	cron *cron.Cron
}

// NewCron creates and starts a cron scheduler.
func NewCron() *Cron {
	// Standard 5-field cron parser (min, hour, dom, month, dow) with panic recovery.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Cron{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (c *Cron) AddJob(expr string, task func()) error {
	_, err := c.cron.AddFunc(expr, task)
	return err
}

// NextRun returns the earliest upcoming trigger time across all registered
// jobs, or the zero time when nothing is scheduled.
func (c *Cron) NextRun() time.Time {
	var next time.Time
	for _, entry := range c.cron.Entries() {
		if next.IsZero() || entry.Next.Before(next) {
			next = entry.Next
		}
	}
	return next
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (c *Cron) Stop() {
	c.cron.Stop()
}
