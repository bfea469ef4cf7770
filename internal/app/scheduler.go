package app

import (
	"time"

	"go.uber.org/zap"
)

// Maintenance collects the periodic sweeps of the running services. Nil
// hooks are skipped.
type Maintenance struct {
	// SpamSweep purges stale spam tracker entries.
	SpamSweep func() int
	// DedupeSweep expires passive-handler dedupe keys.
	DedupeSweep func() int
	// RetrySweep expires message retry counters.
	RetrySweep func() int
	// HealthCheck parks reconnecting sessions when the network looks down.
	HealthCheck func() (offline, total int)

	JanitorInterval time.Duration
	HealthInterval  time.Duration
}

// ScheduleMaintenance registers every non-nil hook of m.
func (a *Application) ScheduleMaintenance(m Maintenance) error {
	janitor := every(m.JanitorInterval)
	sweeps := []struct {
		name string
		fn   func() int
	}{
		{"spam_janitor", m.SpamSweep},
		{"dedupe_sweep", m.DedupeSweep},
		{"retry_sweep", m.RetrySweep},
	}
	for _, s := range sweeps {
		if s.fn == nil {
			continue
		}
		name, fn := s.name, s.fn
		if err := a.AddJob(janitor, name, func() {
			if n := fn(); n > 0 {
				zap.L().Debug("sweep finished",
					zap.String("namespace", "jobs"),
					zap.String("job", name),
					zap.Int("removed", n))
			}
		}); err != nil {
			return err
		}
	}

	if m.HealthCheck != nil {
		check := m.HealthCheck
		return a.AddJob(every(m.HealthInterval), "health_check", func() {
			offline, total := check()
			if total > 0 && offline*2 >= total {
				zap.L().Warn("sessions offline",
					zap.String("namespace", "jobs"),
					zap.Int("offline", offline),
					zap.Int("total", total))
			}
		})
	}
	return nil
}
