package beatwindow

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/jsphweid/harmondrill/model"
	"github.com/jsphweid/harmondrill/util"
)

type Options struct {
	EarlyMarginMs float64 `json:"earlyMarginMs" yaml:"earlyMarginMs"`
	LateMarginMs  float64 `json:"lateMarginMs" yaml:"lateMarginMs"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func DefaultOptions() Options {
	return Options{
		EarlyMarginMs: 60,
		LateMarginMs:  60,
	}
}

// BeatWindow turns the chart's beat list into beat notifications as time
// moves forward. Every beat gets at most one early and one on-beat event
// until Reset or Seek.
type BeatWindow struct {
	mu    sync.Mutex
	early model.SessionTimeMs
	late  model.SessionTimeMs
	beats []model.TimedBeat

	// first beat whose center has not been crossed
	cursor int
	// first beat whose early window has not been announced
	earlyCursor int

	inEarly bool
	inLate  bool

	subs *util.Subscribers[model.BeatEvent]
}

func New(opts Options) *BeatWindow {
	def := DefaultOptions()
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "beatwindow")
	}
	return &BeatWindow{
		early: model.SessionTimeMs(util.OrDefault(opts.EarlyMarginMs, def.EarlyMarginMs)),
		late:  model.SessionTimeMs(util.OrDefault(opts.LateMarginMs, def.LateMarginMs)),
		subs:  util.NewSubscribers[model.BeatEvent]("beat", logger),
	}
}

func (w *BeatWindow) SetBeats(beats []model.TimedBeat) {
	sorted := make([]model.TimedBeat, len(beats))
	copy(sorted, beats)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Index < sorted[j].Index
	})

	w.mu.Lock()
	defer w.mu.Unlock()
	w.beats = sorted
	w.reset()
}

// Reset forgets which beats were announced so a replay from the start fires
// them again.
func (w *BeatWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reset()
}

// Seek makes beats at or after t eligible again and skips earlier ones.
func (w *BeatWindow) Seek(t model.SessionTimeMs) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cursor = sort.Search(len(w.beats), func(i int) bool {
		return w.beats[i].TimeMs >= t
	})
	w.earlyCursor = w.cursor
	w.inEarly, w.inLate = false, false
}

// Tick returns the events for now, after publishing them to subscribers.
func (w *BeatWindow) Tick(now model.SessionTimeMs) []model.BeatEvent {
	w.mu.Lock()
	events := w.advance(now)
	w.mu.Unlock()

	for _, ev := range events {
		w.subs.Publish(ev)
	}
	return events
}

func (w *BeatWindow) SubscribeToBeat(cb func(model.BeatEvent)) func() {
	return w.subs.Subscribe(cb)
}

func (w *BeatWindow) InEarlyWindow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inEarly
}

func (w *BeatWindow) InLateWindow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inLate
}

func (w *BeatWindow) Beats() []model.TimedBeat {
	w.mu.Lock()
	defer w.mu.Unlock()
	res := make([]model.TimedBeat, len(w.beats))
	copy(res, w.beats)
	return res
}

func (w *BeatWindow) Dispose() {
	w.subs.Clear()
}

func (w *BeatWindow) reset() {
	w.cursor = 0
	w.earlyCursor = 0
	w.inEarly, w.inLate = false, false
}

func (w *BeatWindow) advance(now model.SessionTimeMs) []model.BeatEvent {
	var events []model.BeatEvent

	// centers crossed since the last tick; only the latest one still inside
	// its late window is announced
	onBeat := -1
	for w.cursor < len(w.beats) && w.beats[w.cursor].TimeMs <= now {
		if now-w.beats[w.cursor].TimeMs <= w.late {
			onBeat = w.cursor
		}
		w.cursor++
	}
	if w.earlyCursor < w.cursor {
		w.earlyCursor = w.cursor
	}

	for w.earlyCursor < len(w.beats) && w.beats[w.earlyCursor].TimeMs-w.early <= now {
		events = append(events, model.BeatEvent{
			Beat:          w.beats[w.earlyCursor],
			Kind:          model.BeatEarly,
			CurrentTimeMs: now,
			InEarlyWindow: true,
		})
		w.earlyCursor++
	}

	if onBeat >= 0 {
		b := w.beats[onBeat]
		ev := model.BeatEvent{
			Beat:          b,
			Kind:          model.BeatOnBeat,
			CurrentTimeMs: now,
			InLateWindow:  now > b.TimeMs,
		}
		// the on-beat event goes first, it belongs to the older beat
		events = append([]model.BeatEvent{ev}, events...)
	}

	w.inEarly, w.inLate = false, false
	if w.cursor < len(w.beats) && w.beats[w.cursor].TimeMs-w.early <= now {
		w.inEarly = true
	}
	if w.cursor > 0 && now-w.beats[w.cursor-1].TimeMs <= w.late {
		w.inLate = true
	}
	return events
}
