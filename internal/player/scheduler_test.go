package player_test

import (
	"sync"
	"testing"
	"time"

	"github.com/hyeonsong/aria/internal/player"
	"github.com/hyeonsong/aria/internal/player/mock"
)

func newTestScheduler() (*player.Scheduler, *mock.Clock, func() []string) {
	var mu sync.Mutex
	var fired []string
	clock := &mock.Clock{}
	s := player.NewScheduler(5*time.Minute, func(guildID string) {
		mu.Lock()
		defer mu.Unlock()
		fired = append(fired, guildID)
	}, clock.NewTimer)
	return s, clock, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), fired...)
	}
}

func TestScheduler_FiresAfterDelay(t *testing.T) {
	t.Parallel()

	s, clock, fired := newTestScheduler()
	s.Schedule("g1")

	if !s.Pending("g1") {
		t.Fatal("expected pending task after Schedule")
	}
	clock.Last().Fire()

	if got := fired(); len(got) != 1 || got[0] != "g1" {
		t.Errorf("fired = %v, want [g1]", got)
	}
	if s.Pending("g1") {
		t.Error("task should be gone after firing")
	}
}

func TestScheduler_CancelPreventsFiring(t *testing.T) {
	t.Parallel()

	s, clock, fired := newTestScheduler()
	s.Schedule("g1")
	s.Cancel("g1")

	clock.Last().Fire()
	if got := fired(); len(got) != 0 {
		t.Errorf("fired = %v, want none after Cancel", got)
	}

	// Cancelling again, or cancelling an unknown guild, is harmless.
	s.Cancel("g1")
	s.Cancel("never-scheduled")
}

func TestScheduler_RescheduleReplaces(t *testing.T) {
	t.Parallel()

	s, clock, fired := newTestScheduler()
	s.Schedule("g1")
	first := clock.Last()
	s.Schedule("g1")
	second := clock.Last()

	// The replaced timer is dead even if its goroutine still fires.
	first.Fire()
	if got := fired(); len(got) != 0 {
		t.Errorf("fired = %v, want none from the replaced task", got)
	}

	second.Fire()
	if got := fired(); len(got) != 1 || got[0] != "g1" {
		t.Errorf("fired = %v, want [g1]", got)
	}
}

func TestScheduler_GuildsAreIndependent(t *testing.T) {
	t.Parallel()

	s, clock, fired := newTestScheduler()
	s.Schedule("g1")
	g1 := clock.Last()
	s.Schedule("g2")

	s.Cancel("g2")
	g1.Fire()

	if got := fired(); len(got) != 1 || got[0] != "g1" {
		t.Errorf("fired = %v, want [g1]", got)
	}
}

func TestScheduler_Shutdown(t *testing.T) {
	t.Parallel()

	s, clock, fired := newTestScheduler()
	s.Schedule("g1")
	s.Schedule("g2")
	s.Shutdown()

	for _, timer := range clock.Timers {
		timer.Fire()
	}
	if got := fired(); len(got) != 0 {
		t.Errorf("fired = %v, want none after Shutdown", got)
	}
	if s.Pending("g1") || s.Pending("g2") {
		t.Error("no tasks should remain after Shutdown")
	}
}
