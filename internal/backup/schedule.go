package backup

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler runs Manager.Create once a day.
type Scheduler struct {
	scheduler *gocron.Scheduler
	manager   *Manager
}

// Schedule starts daily backups at the given HH:MM in loc.
func Schedule(m *Manager, at string, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	s := &Scheduler{scheduler: gocron.NewScheduler(loc), manager: m}
	if _, err := s.scheduler.Every(1).Day().At(at).Do(s.run); err != nil {
		return nil, fmt.Errorf("failed to schedule backups at %q: %w", at, err)
	}
	s.scheduler.StartAsync()
	m.opts.Logger.Info("Scheduled daily backups", "at", at)
	return s, nil
}

// NextRun reports when the next backup will be taken.
func (s *Scheduler) NextRun() time.Time {
	_, next := s.scheduler.NextRun()
	return next
}

// Stop terminates scheduled backups.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
}

func (s *Scheduler) run() {
	if _, err := s.manager.Create(); err != nil {
		s.manager.opts.Logger.Error("Scheduled backup failed", "error", err)
	}
}
