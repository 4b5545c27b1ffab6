package scheduler

import (
	"math"
	"testing"
	"time"

	"github.com/jsphweid/harmondrill/model"
	"github.com/stretchr/testify/assert"
)

func TestFiresInTimeOrderWithStableTies(t *testing.T) {
	s := New(DefaultOptions())
	var fired []string
	record := func(name string) Callback {
		return func(ev Event) { fired = append(fired, name) }
	}
	s.Schedule(100, EventNote, record("a@100"))
	s.Schedule(100, EventNote, record("b@100"))
	s.Schedule(50, EventNote, record("c@50"))

	n := s.Tick(150)

	assert := assert.New(t)
	assert.Equal(3, n)
	assert.Equal([]string{"c@50", "a@100", "b@100"}, fired)
	assert.Equal(0, s.Tick(150))
}

func TestDoesNotFireFutureEvents(t *testing.T) {
	s := New(DefaultOptions())
	count := 0
	s.Schedule(200, EventCustom, func(ev Event) { count++ })

	s.Tick(199)
	assert.Equal(t, 0, count)
	s.Tick(200)
	assert.Equal(t, 1, count)
}

func TestCancelledEventsNeverFire(t *testing.T) {
	s := New(DefaultOptions())
	count := 0
	id := s.Schedule(10, EventCustom, func(ev Event) { count++ })

	assert := assert.New(t)
	assert.True(s.Cancel(id))
	assert.False(s.Cancel(id))
	s.Tick(100)
	assert.Equal(0, count)
	assert.Equal(0, s.Pending())
}

func TestReentrantScheduleFiresSameTick(t *testing.T) {
	s := New(DefaultOptions())
	var fired []model.SessionTimeMs
	s.Schedule(10, EventCustom, func(ev Event) {
		fired = append(fired, ev.TimeMs)
		s.Schedule(20, EventCustom, func(ev Event) {
			fired = append(fired, ev.TimeMs)
		})
		s.Schedule(500, EventCustom, func(ev Event) {
			fired = append(fired, ev.TimeMs)
		})
	})

	s.Tick(30)

	assert := assert.New(t)
	assert.Equal([]model.SessionTimeMs{10, 20}, fired)
	assert.Equal(1, s.Pending())
}

func TestSelfReschedulingCallbackIsBoundedPerTick(t *testing.T) {
	s := New(DefaultOptions())
	count := 0
	var again Callback
	again = func(ev Event) {
		count++
		s.Schedule(ev.TimeMs, EventCustom, again)
	}
	s.Schedule(50, EventCustom, again)

	done := make(chan int)
	go func() { done <- s.Tick(100) }()

	var n int
	select {
	case n = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tick did not return")
	}

	assert := assert.New(t)
	assert.Equal(1+reentryBudget, n)
	assert.Equal(n, count)
	// the leftover event waits for the next tick
	assert.Equal(1, s.Pending())
	assert.Equal(1+reentryBudget, s.Tick(100))
}

func TestCallbackPanicDoesNotStopTick(t *testing.T) {
	s := New(DefaultOptions())
	count := 0
	s.Schedule(1, EventCustom, func(ev Event) { panic("boom") })
	s.Schedule(2, EventCustom, func(ev Event) { count++ })

	assert.NotPanics(t, func() { s.Tick(5) })
	assert.Equal(t, 1, count)
}

func TestBadTimesAreClamped(t *testing.T) {
	s := New(DefaultOptions())
	count := 0
	s.Schedule(model.SessionTimeMs(math.NaN()), EventCustom, func(ev Event) { count++ })
	s.Schedule(-40, EventCustom, func(ev Event) { count++ })
	s.Schedule(model.SessionTimeMs(math.Inf(1)), EventCustom, func(ev Event) { count++ })

	s.Tick(0)
	assert.Equal(t, 2, count)
	assert.Equal(t, 1, s.Pending())
}

func TestUpcomingUsesLookahead(t *testing.T) {
	s := New(Options{LookaheadMs: 50})
	s.Schedule(140, EventMetronome, nil)
	s.Schedule(120, EventNote, nil)
	s.Schedule(200, EventNote, nil)

	up := s.Upcoming(100)
	assert := assert.New(t)
	assert.Len(up, 2)
	assert.Equal(model.SessionTimeMs(120), up[0].TimeMs)
	assert.Equal(model.SessionTimeMs(140), up[1].TimeMs)

	s.SetLookahead(200)
	assert.Len(s.Upcoming(100), 3)
	assert.Equal(float64(200), s.Lookahead())
}

func TestClear(t *testing.T) {
	s := New(DefaultOptions())
	count := 0
	s.Schedule(1, EventCustom, func(ev Event) { count++ })
	s.Clear()
	s.Tick(10)

	assert.Equal(t, 0, count)
	assert.Equal(t, float64(16), s.TickIntervalMs())
}
