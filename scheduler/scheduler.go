package scheduler

import (
	"container/heap"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/jsphweid/harmondrill/model"
	"github.com/jsphweid/harmondrill/util"
)

type EventType string

const (
	EventNote      EventType = "note"
	EventMetronome EventType = "metronome"
	EventCustom    EventType = "custom"
)

// Callback receives a copy of the event being fired.
type Callback func(ev Event)

type Event struct {
	ID        model.ScheduledEventID
	TimeMs    model.SessionTimeMs
	Type      EventType
	Callback  Callback
	Fired     bool
	Cancelled bool

	seq uint64
}

type Options struct {
	// how often the host should tick while a session runs
	TickIntervalMs float64 `json:"tickIntervalMs" yaml:"tickIntervalMs"`
	// how far ahead of the current time callers may pre-register events
	LookaheadMs float64 `json:"lookaheadMs" yaml:"lookaheadMs"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func DefaultOptions() Options {
	return Options{
		TickIntervalMs: 16,
		LookaheadMs:    100,
	}
}

type eventHeap []*Event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].TimeMs != h[j].TimeMs {
		return h[i].TimeMs < h[j].TimeMs
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) {
	*h = append(*h, x.(*Event))
}
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// Scheduler fires one-shot events once the current time reaches them. It is
// safe for concurrent use; callbacks run without the scheduler locked, so
// they may schedule or cancel events.
type Scheduler struct {
	mu        sync.Mutex
	queue     eventHeap
	byID      map[model.ScheduledEventID]*Event
	nextID    model.ScheduledEventID
	seq       uint64
	lookahead float64
	interval  float64
	logger    *slog.Logger
}

func New(opts Options) *Scheduler {
	def := DefaultOptions()
	s := &Scheduler{
		byID:      make(map[model.ScheduledEventID]*Event),
		lookahead: util.OrDefault(opts.LookaheadMs, def.LookaheadMs),
		interval:  util.OrDefault(opts.TickIntervalMs, def.TickIntervalMs),
		logger:    opts.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default().With("component", "scheduler")
	}
	return s
}

// Schedule registers cb to fire at timeMs and returns its id. NaN or
// negative times are treated as 0.
func (s *Scheduler) Schedule(timeMs model.SessionTimeMs, typ EventType, cb Callback) model.ScheduledEventID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.seq++
	ev := &Event{
		ID:       s.nextID,
		TimeMs:   timeMs.Sanitize(),
		Type:     typ,
		Callback: cb,
		seq:      s.seq,
	}
	heap.Push(&s.queue, ev)
	s.byID[ev.ID] = ev
	return ev.ID
}

// Cancel reports whether a pending event was cancelled.
func (s *Scheduler) Cancel(id model.ScheduledEventID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.byID[id]
	if !ok || ev.Fired || ev.Cancelled {
		return false
	}
	ev.Cancelled = true
	delete(s.byID, id)
	return true
}

// callbacks may add this many due events to a single Tick beyond those
// pending when it started
const reentryBudget = 1000

// Tick fires every pending event with TimeMs <= now in time order, ties in
// registration order. Events scheduled by a callback for a time <= now fire
// in the same call, up to reentryBudget of them; the rest wait for the next
// Tick.
func (s *Scheduler) Tick(now model.SessionTimeMs) int {
	if math.IsNaN(float64(now)) {
		return 0
	}
	s.mu.Lock()
	limit := s.queue.Len() + reentryBudget
	s.mu.Unlock()

	fired := 0
	for popped := 0; ; popped++ {
		s.mu.Lock()
		if s.queue.Len() == 0 || s.queue[0].TimeMs > now {
			s.mu.Unlock()
			break
		}
		if popped >= limit {
			due := s.queue.Len()
			s.mu.Unlock()
			s.logger.Warn("tick fire limit reached, deferring due events", "now", now, "limit", limit, "queued", due)
			break
		}
		ev := heap.Pop(&s.queue).(*Event)
		if ev.Cancelled {
			s.mu.Unlock()
			continue
		}
		ev.Fired = true
		delete(s.byID, ev.ID)
		snapshot := *ev
		s.mu.Unlock()

		fired++
		s.fire(snapshot)
	}
	return fired
}

// Upcoming returns the pending events due within the lookahead horizon of
// now, in firing order.
func (s *Scheduler) Upcoming(now model.SessionTimeMs) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	horizon := now + model.SessionTimeMs(s.lookahead)
	var res []Event
	for _, ev := range s.queue {
		if !ev.Cancelled && ev.TimeMs <= horizon {
			res = append(res, *ev)
		}
	}
	sortEvents(res)
	return res
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *Scheduler) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.queue {
		ev.Cancelled = true
	}
	s.queue = nil
	s.byID = make(map[model.ScheduledEventID]*Event)
}

func (s *Scheduler) SetLookahead(ms float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookahead = util.Max(util.Finite(ms, 0), 0)
}

func (s *Scheduler) Lookahead() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookahead
}

func (s *Scheduler) TickIntervalMs() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Scheduler) fire(ev Event) {
	if ev.Callback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled callback panicked", "id", ev.ID, "type", ev.Type, "panic", r)
		}
	}()
	ev.Callback(ev)
}

func sortEvents(evs []Event) {
	sort.Slice(evs, func(i, j int) bool {
		if evs[i].TimeMs != evs[j].TimeMs {
			return evs[i].TimeMs < evs[j].TimeMs
		}
		return evs[i].seq < evs[j].seq
	})
}
