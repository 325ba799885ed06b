package player

import (
	"log/slog"
	"sync"
	"time"
)

// Timer is a cancellable delayed task handle.
type Timer interface {
	// Stop cancels the timer. It reports whether the call prevented the
	// task from firing.
	Stop() bool
}

// TimerFactory starts fn after d and returns a handle to cancel it. Tests
// substitute a manual implementation to control the clock.
type TimerFactory func(d time.Duration, fn func()) Timer

func stdTimer(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}

// Scheduler runs the per-guild idle auto-disconnect tasks. At most one task
// exists per guild: scheduling again cancels and replaces the previous one.
// Cancellation is race-free — a task that fires concurrently with its own
// cancellation runs its effect at most once.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]Timer
	delay  time.Duration
	fire   func(guildID string)
	timers TimerFactory
}

// NewScheduler creates a scheduler that invokes fire after delay. fire must
// tolerate the guild being gone; the scheduler itself never propagates its
// failures.
func NewScheduler(delay time.Duration, fire func(guildID string), timers TimerFactory) *Scheduler {
	if timers == nil {
		timers = stdTimer
	}
	return &Scheduler{
		tasks:  make(map[string]Timer),
		delay:  delay,
		fire:   fire,
		timers: timers,
	}
}

// Schedule installs the guild's auto-disconnect task, replacing any
// outstanding one.
func (s *Scheduler) Schedule(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.tasks[guildID]; ok {
		prev.Stop()
	}
	var t Timer
	t = s.timers(s.delay, func() {
		// Only the task still registered for the guild may run; a replaced
		// or cancelled task finds itself gone and backs off.
		s.mu.Lock()
		if s.tasks[guildID] != t {
			s.mu.Unlock()
			return
		}
		delete(s.tasks, guildID)
		s.mu.Unlock()

		slog.Debug("idle window elapsed, disconnecting", "guild_id", guildID)
		s.fire(guildID)
	})
	s.tasks[guildID] = t
}

// Cancel stops the guild's outstanding task. Safe to call when none exists.
func (s *Scheduler) Cancel(guildID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[guildID]; ok {
		t.Stop()
		delete(s.tasks, guildID)
	}
}

// Pending reports whether the guild has an outstanding task.
func (s *Scheduler) Pending(guildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[guildID]
	return ok
}

// Shutdown cancels every outstanding task.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tasks {
		t.Stop()
		delete(s.tasks, id)
	}
}
