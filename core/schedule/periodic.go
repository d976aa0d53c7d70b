package schedule

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/academia/core"
)

// Periodic runs a task on a cron schedule, skipping a tick while the previous run is still going.
type Periodic struct {
	name string
	cron *cron.Cron
}

// NewPeriodic parses spec (standard 5-field cron or a descriptor like "@every 10m").
func NewPeriodic(spec, name string, fn func(ctx context.Context), logger core.Logger) (*Periodic, error) {
	cl := cronLogger{name: name, logger: logger}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	if _, err := c.AddFunc(spec, func() { fn(context.Background()) }); err != nil {
		return nil, errors.Wrapf(err, "scheduling %s (%q)", name, spec)
	}
	return &Periodic{name: name, cron: c}, nil
}

func (p *Periodic) Start() {
	p.cron.Start()
}

// Stop stops the schedule and waits for a running task until ctx expires.
func (p *Periodic) Stop(ctx context.Context) error {
	select {
	case <-p.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "stopping %s", p.name)
	}
}

// cronLogger adapts core.Logger to cron.Logger.
type cronLogger struct {
	name   string
	logger core.Logger
}

func (l cronLogger) fields(keysAndValues []interface{}) map[string]interface{} {
	fields := map[string]interface{}{"task": l.name}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, l.fields(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(fmt.Sprintf("cron: %s: %v", msg, err), err, l.fields(keysAndValues))
}
