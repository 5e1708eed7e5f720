package scheduler

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronParser accepts the standard five-field format.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSpec reports whether spec is a valid five-field cron expression.
func ValidateSpec(spec string) error {
	if _, err := cronParser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// Cron runs named functions on cron schedules. A run is skipped while the
// previous run of the same entry is still going.
type Cron struct {
	c      *cron.Cron
	ctx    context.Context
	logger *slog.Logger
}

// NewCron creates a stopped Cron.
func NewCron(logger *slog.Logger) *Cron {
	logger = logger.With("component", "cron")
	cl := cronLogger{logger}
	return &Cron{
		c: cron.New(
			cron.WithParser(cronParser),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    context.Background(),
		logger: logger,
	}
}

// Add registers fn under name. fn receives the context passed to Start.
func (c *Cron) Add(name, spec string, fn func(ctx context.Context)) error {
	if err := ValidateSpec(spec); err != nil {
		return err
	}
	_, err := c.c.AddFunc(spec, func() {
		c.logger.Info("cron triggered", "entry", name)
		fn(c.ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	c.logger.Info("cron scheduled", "entry", name, "schedule", spec)
	return nil
}

// Len returns the number of registered entries.
func (c *Cron) Len() int {
	return len(c.c.Entries())
}

// Start begins running entries in the background.
func (c *Cron) Start(ctx context.Context) {
	c.ctx = ctx
	c.c.Start()
}

// Stop halts the schedule and waits for running entries to return.
func (c *Cron) Stop() {
	<-c.c.Stop().Done()
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
