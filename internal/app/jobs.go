package app

import (
	"runtime/debug"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() {
	loc, err := time.LoadLocation(a.appConfig.System.Location)
	if err != nil {
		loc = time.Local
	}
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))
	a.sched.Start()
}

// AddJob registers fn under a cron spec. Panics inside fn are logged and
// never stop the scheduler.
func (a *Application) AddJob(spec, name string, fn func()) error {
	if a.sched == nil {
		return errors.New("scheduler not started")
	}
	_, err := a.sched.AddFunc(spec, guardJob(name, fn))
	if err != nil {
		return errors.Wrapf(err, "add job %s", name)
	}
	zap.L().Info("scheduled job", zap.String("job", name), zap.String("spec", spec))
	return nil
}

func guardJob(name string, fn func()) func() {
	return func() {
		defer func() {
			if err := recover(); err != nil {
				zap.S().Errorf("job %s panic: %v\n%s", name, err, debug.Stack())
			}
		}()
		fn()
	}
}

// every renders d as a cron descriptor, at least one second.
func every(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	return "@every " + d.String()
}
