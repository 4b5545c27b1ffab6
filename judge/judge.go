package judge

import (
	"log/slog"
	"math"
	"sync"

	"github.com/jsphweid/harmondrill/model"
	"github.com/jsphweid/harmondrill/util"
)

type Options struct {
	DefaultToleranceCents   float64 `json:"defaultToleranceCents" yaml:"defaultToleranceCents"`
	ShortNoteToleranceCents float64 `json:"shortNoteToleranceCents" yaml:"shortNoteToleranceCents"`
	MinClarityThreshold     float64 `json:"minClarityThreshold" yaml:"minClarityThreshold"`
	OnsetWindowMs           float64 `json:"onsetWindowMs" yaml:"onsetWindowMs"`
	ReleaseWindowMs         float64 `json:"releaseWindowMs" yaml:"releaseWindowMs"`
	// longest silence inside a note that still counts as sustained
	SustainDebounceMs float64 `json:"sustainDebounceMs" yaml:"sustainDebounceMs"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func DefaultOptions() Options {
	return Options{
		DefaultToleranceCents:   50,
		ShortNoteToleranceCents: 75,
		MinClarityThreshold:     0.6,
		OnsetWindowMs:           150,
		ReleaseWindowMs:         150,
		SustainDebounceMs:       120,
	}
}

const maxHistory = 512

// Judge scores pitch input against the notes it is told to judge. One
// JudgmentResult is produced per note when judging of it stops.
type Judge struct {
	mu        sync.Mutex
	opts      Options
	active    map[string]*noteState
	order     []string
	history   []model.PitchSample
	completed []model.JudgmentResult
	subs      *util.Subscribers[model.JudgmentResult]
	logger    *slog.Logger
}

func New(opts Options) *Judge {
	def := DefaultOptions()
	opts.DefaultToleranceCents = util.OrDefault(opts.DefaultToleranceCents, def.DefaultToleranceCents)
	opts.ShortNoteToleranceCents = util.OrDefault(opts.ShortNoteToleranceCents, def.ShortNoteToleranceCents)
	opts.OnsetWindowMs = util.OrDefault(opts.OnsetWindowMs, def.OnsetWindowMs)
	opts.ReleaseWindowMs = util.OrDefault(opts.ReleaseWindowMs, def.ReleaseWindowMs)
	opts.SustainDebounceMs = util.OrDefault(opts.SustainDebounceMs, def.SustainDebounceMs)
	// a zero clarity threshold is a legitimate choice
	opts.MinClarityThreshold = util.Clamp(util.Finite(opts.MinClarityThreshold, def.MinClarityThreshold), 0, 1)

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "judge")
	}
	return &Judge{
		opts:   opts,
		active: make(map[string]*noteState),
		subs:   util.NewSubscribers[model.JudgmentResult]("judgment", logger),
		logger: logger,
	}
}

func (j *Judge) Options() Options {
	return j.opts
}

func (j *Judge) ToleranceFor(note model.TimedNote) float64 {
	if note.IsShortNote {
		return j.opts.ShortNoteToleranceCents
	}
	return j.opts.DefaultToleranceCents
}

// SampleInTolerance reports whether s is voiced, clear enough and within
// the note's tolerance.
func (j *Judge) SampleInTolerance(note model.TimedNote, s model.PitchSample) bool {
	if !s.IsVoiced || s.Clarity < j.opts.MinClarityThreshold {
		return false
	}
	return math.Abs(s.MidiPitch*100-note.MidiPitch*100) <= j.ToleranceFor(note)
}

func (j *Judge) StartJudgingNote(note model.TimedNote) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.active[note.ID]; ok {
		j.logger.Debug("note already being judged", "note", note.ID)
		return
	}
	st := &noteState{note: note}
	j.active[note.ID] = st
	j.order = append(j.order, note.ID)

	// samples slightly ahead of the note count toward its onset
	from := note.StartTimeMs - model.SessionTimeMs(j.opts.OnsetWindowMs)
	for _, s := range j.history {
		if s.TimeMs >= from {
			st.add(s, j.SampleInTolerance(note, s), j.opts)
		}
	}
}

// StopJudgingNote closes the note's window and emits its result.
func (j *Judge) StopJudgingNote(id string) (model.JudgmentResult, bool) {
	j.mu.Lock()
	st, ok := j.active[id]
	if !ok {
		j.mu.Unlock()
		return model.JudgmentResult{}, false
	}
	delete(j.active, id)
	for i, v := range j.order {
		if v == id {
			j.order = append(j.order[:i], j.order[i+1:]...)
			break
		}
	}
	res := st.result(j.opts)
	j.completed = append(j.completed, res)
	j.mu.Unlock()

	j.subs.Publish(res)
	return res, true
}

func (j *Judge) AddPitchSample(s model.PitchSample) {
	s = sanitize(s)

	j.mu.Lock()
	defer j.mu.Unlock()
	j.remember(s)
	for _, id := range j.order {
		st := j.active[id]
		st.add(s, j.SampleInTolerance(st.note, s), j.opts)
	}
}

// IsInTolerance reports whether the latest sample judged against the note
// was in tolerance.
func (j *Judge) IsInTolerance(noteID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	st, ok := j.active[noteID]
	return ok && st.lastInTolerance
}

func (j *Judge) JudgingNoteIDs() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	res := make([]string, len(j.order))
	copy(res, j.order)
	return res
}

func (j *Judge) IsJudging(noteID string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.active[noteID]
	return ok
}

func (j *Judge) GetCompletedJudgments() []model.JudgmentResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	res := make([]model.JudgmentResult, len(j.completed))
	copy(res, j.completed)
	return res
}

func (j *Judge) ClearJudgments() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.completed = nil
}

// DiscardActive drops open notes without emitting results. Completed results
// are kept.
func (j *Judge) DiscardActive() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.active = make(map[string]*noteState)
	j.order = nil
	j.history = nil
}

// Reset drops open notes without emitting results, the sample history and
// completed results.
func (j *Judge) Reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.active = make(map[string]*noteState)
	j.order = nil
	j.history = nil
	j.completed = nil
}

// ForgetSamples drops the sample history so notes started afterwards are
// judged only on input that arrives from then on. Open notes keep what they
// have already scored.
func (j *Judge) ForgetSamples() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.history = nil
}

func (j *Judge) SubscribeToJudgment(cb func(model.JudgmentResult)) func() {
	return j.subs.Subscribe(cb)
}

func (j *Judge) Dispose() {
	j.Reset()
	j.subs.Clear()
}

func (j *Judge) remember(s model.PitchSample) {
	// time went backwards, later samples did not happen on this pass
	keep := len(j.history)
	for keep > 0 && j.history[keep-1].TimeMs > s.TimeMs {
		keep--
	}
	j.history = append(j.history[:keep], s)
	cutoff := s.TimeMs - model.SessionTimeMs(j.opts.OnsetWindowMs)
	drop := 0
	for drop < len(j.history) && j.history[drop].TimeMs < cutoff {
		drop++
	}
	if len(j.history)-drop > maxHistory {
		drop = len(j.history) - maxHistory
	}
	if drop > 0 {
		j.history = append(j.history[:0], j.history[drop:]...)
	}
}

func sanitize(s model.PitchSample) model.PitchSample {
	s.TimeMs = s.TimeMs.Sanitize()
	s.Clarity = util.Clamp(util.Finite(s.Clarity, 0), 0, 1)
	if math.IsNaN(s.MidiPitch) || math.IsInf(s.MidiPitch, 0) {
		s.IsVoiced = false
		s.MidiPitch = 0
	}
	return s
}
