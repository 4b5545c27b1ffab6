package referee

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jsphweid/harmondrill/beatwindow"
	"github.com/jsphweid/harmondrill/chart"
	"github.com/jsphweid/harmondrill/conductor"
	"github.com/jsphweid/harmondrill/constants"
	"github.com/jsphweid/harmondrill/gate"
	"github.com/jsphweid/harmondrill/judge"
	"github.com/jsphweid/harmondrill/model"
	"github.com/jsphweid/harmondrill/scheduler"
	"github.com/jsphweid/harmondrill/util"
	"github.com/pkg/errors"
)

var (
	ErrDisposed     = errors.New("referee disposed")
	ErrInvalidPhase = errors.New("invalid phase")
)

// ChartSource is anything that can produce a snapshot: files, MIDI files,
// the chart table.
type ChartSource interface {
	FetchSnapshot(ctx context.Context) (model.Snapshot, error)
}

type staticSource model.Snapshot

func (s staticSource) FetchSnapshot(ctx context.Context) (model.Snapshot, error) {
	return model.Snapshot(s), nil
}

type noteStatus int

const (
	upcoming noteStatus = iota
	active
	passed
)

type notifications struct {
	beats     []model.BeatEvent
	judgments []model.JudgmentResult
	state     *model.SessionState
}

// Referee owns one practice session. It moves through the phases in
// model.Phase, drives the other components once per frame and fans their
// output out to subscribers.
//
// All methods are safe for concurrent use. Subscriber callbacks run after
// internal locks are released and may call back into the Referee.
type Referee struct {
	mu     sync.Mutex
	cfg    Config
	id     string
	logger *slog.Logger

	conductor *conductor.Conductor
	scheduler *scheduler.Scheduler
	adapter   *chart.Adapter
	beats     *beatwindow.BeatWindow
	judge     *judge.Judge
	gate      *gate.Gate
	driver    FrameDriver

	phase    model.Phase
	disposed bool
	chart    *model.ChartData
	status   map[string]noteStatus

	// bumped whenever time jumps or the session restarts, a tick that sees
	// it change mid-frame abandons the frame
	epoch int

	loadGen    int
	loadCancel context.CancelFunc

	pending notifications

	stateSubs    *util.Subscribers[model.SessionState]
	judgmentSubs *util.Subscribers[model.JudgmentResult]
	beatSubs     *util.Subscribers[model.BeatEvent]
}

func New(cfg Config) *Referee {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	logger = logger.With("session", id)

	withLogger := func(l *slog.Logger, component string) *slog.Logger {
		if l != nil {
			return l
		}
		return logger.With("component", component)
	}
	cfg.Conductor.Logger = withLogger(cfg.Conductor.Logger, "conductor")
	cfg.Scheduler.Logger = withLogger(cfg.Scheduler.Logger, "scheduler")
	cfg.BeatWindow.Logger = withLogger(cfg.BeatWindow.Logger, "beatwindow")
	cfg.Judge.Logger = withLogger(cfg.Judge.Logger, "judge")
	cfg.Gate.Logger = withLogger(cfg.Gate.Logger, "gate")

	r := &Referee{
		cfg:          cfg,
		id:           id,
		logger:       logger.With("component", "referee"),
		conductor:    conductor.New(cfg.Conductor),
		scheduler:    scheduler.New(cfg.Scheduler),
		adapter:      chart.NewAdapter(cfg.ChartAdapter),
		beats:        beatwindow.New(cfg.BeatWindow),
		judge:        judge.New(cfg.Judge),
		gate:         gate.New(cfg.Gate),
		driver:       cfg.Driver,
		phase:        model.PhaseIdle,
		status:       make(map[string]noteStatus),
		stateSubs:    util.NewSubscribers[model.SessionState]("state", logger),
		judgmentSubs: util.NewSubscribers[model.JudgmentResult]("judgment", logger),
		beatSubs:     util.NewSubscribers[model.BeatEvent]("beat", logger),
	}
	if r.driver == nil {
		interval := time.Duration(r.scheduler.TickIntervalMs() * float64(time.Millisecond))
		r.driver = NewTickerDriver(interval)
	}
	return r
}

func (r *Referee) SessionID() string {
	return r.id
}

// LoadChart converts snap and makes it the session's chart.
func (r *Referee) LoadChart(ctx context.Context, snap model.Snapshot) (*model.ChartData, error) {
	return r.LoadChartFrom(ctx, staticSource(snap))
}

// LoadChartFrom fetches a snapshot from src and loads it. Only legal from
// idle or ready. On failure the session returns to idle and any previous
// chart is left as it was.
func (r *Referee) LoadChartFrom(ctx context.Context, src ChartSource) (*model.ChartData, error) {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return nil, ErrDisposed
	}
	if r.phase != model.PhaseIdle && r.phase != model.PhaseReady {
		phase := r.phase
		r.mu.Unlock()
		r.logger.Warn("ignoring chart load", "phase", phase)
		return nil, errors.Wrapf(ErrInvalidPhase, "cannot load a chart while %s", phase)
	}
	r.loadGen++
	gen := r.loadGen
	ctx, cancel := context.WithCancel(ctx)
	r.loadCancel = cancel
	r.setPhase(model.PhaseLoading)
	r.mu.Unlock()
	r.flush()

	snap, err := src.FetchSnapshot(ctx)
	var data *model.ChartData
	if err == nil {
		data, err = r.adapter.LoadSnapshot(snap)
	}

	r.mu.Lock()
	cancel()
	if r.disposed {
		r.mu.Unlock()
		return nil, ErrDisposed
	}
	if gen != r.loadGen {
		r.mu.Unlock()
		return nil, context.Canceled
	}
	r.loadCancel = nil

	if err != nil {
		r.logger.Warn("chart load failed", "error", err)
		r.setPhase(model.PhaseIdle)
		r.mu.Unlock()
		r.flush()
		return nil, err
	}

	r.chart = data
	r.conductor.Stop()
	r.conductor.SetChartTempo(data.Tempo)
	lookahead := util.Max(r.cfg.Scheduler.LookaheadMs, constants.MsPerMicrobeat(data.Tempo))
	r.scheduler.SetLookahead(lookahead)
	r.beats.SetBeats(data.Beats)
	r.resetNotes()
	r.judge.Reset()
	r.gate.Reset()
	r.epoch++
	r.setPhase(model.PhaseReady)
	r.logger.Info("chart loaded", "chart", data.ID, "notes", len(data.Notes), "durationMs", data.TotalDurationMs, "tempo", data.Tempo)
	r.mu.Unlock()
	r.flush()
	return data, nil
}

// Start begins playback. Only legal from ready. A seek made while ready is
// kept as the starting point.
func (r *Referee) Start() {
	r.mu.Lock()
	if !r.expect("start", model.PhaseReady) {
		r.mu.Unlock()
		return
	}
	at := r.conductor.CurrentTimeMs()
	r.judge.Reset()
	r.gate.Reset()
	r.beats.Reset()
	r.resetNotes()

	r.conductor.Start()
	if at > 0 {
		r.conductor.Seek(at)
		r.seekNotes(at)
	}
	r.epoch++
	r.setPhase(model.PhasePlaying)
	r.driver.Start(r.Tick)
	r.mu.Unlock()
	r.flush()
}

func (r *Referee) Pause() {
	r.mu.Lock()
	if !r.expect("pause", model.PhasePlaying) {
		r.mu.Unlock()
		return
	}
	r.driver.Stop()
	r.conductor.Pause()
	r.setPhase(model.PhasePaused)
	r.mu.Unlock()
	r.flush()
}

func (r *Referee) Resume() {
	r.mu.Lock()
	if !r.expect("resume", model.PhasePaused) {
		r.mu.Unlock()
		return
	}
	r.conductor.Resume()
	r.gate.Restart(r.conductor.WallTimeMs())
	r.setPhase(model.PhasePlaying)
	r.driver.Start(r.Tick)
	r.mu.Unlock()
	r.flush()
}

// Seek moves session time to t, clamped to the chart. Notes that end before
// t become passed, the rest become candidates again. Judging continues on
// notes that still contain t.
func (r *Referee) Seek(t model.SessionTimeMs) {
	r.mu.Lock()
	if !r.expect("seek", model.PhaseReady, model.PhasePlaying, model.PhasePaused, model.PhaseGated) {
		r.mu.Unlock()
		return
	}
	t = util.Clamp(t.Sanitize(), 0, r.chart.TotalDurationMs)
	r.conductor.Seek(t)
	r.seekNotes(t)
	r.epoch++
	r.queueState()
	r.logger.Debug("seek", "timeMs", t)
	r.mu.Unlock()
	r.flush()
}

// Stop ends playback and returns to ready, or idle without a chart. Open
// judgments are discarded. Safe to call in any phase.
func (r *Referee) Stop() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	if r.loadCancel != nil {
		r.loadCancel()
		r.loadCancel = nil
		r.loadGen++
	}
	r.driver.Stop()
	r.conductor.Stop()
	r.judge.DiscardActive()
	r.gate.Reset()
	r.beats.Reset()
	r.resetNotes()
	r.epoch++

	next := model.PhaseIdle
	if r.chart != nil {
		next = model.PhaseReady
	}
	r.setPhase(next)
	r.mu.Unlock()
	r.flush()
}

// Dispose releases everything. The Referee stays idle afterwards and ignores
// further calls.
func (r *Referee) Dispose() {
	r.mu.Lock()
	if r.disposed {
		r.mu.Unlock()
		return
	}
	r.disposed = true
	if r.loadCancel != nil {
		r.loadCancel()
		r.loadCancel = nil
	}
	r.driver.Stop()
	r.conductor.Dispose()
	r.scheduler.Clear()
	r.judge.Dispose()
	r.beats.Dispose()
	r.gate.Reset()
	r.phase = model.PhaseIdle
	r.chart = nil
	r.status = make(map[string]noteStatus)
	r.pending = notifications{}
	r.mu.Unlock()

	r.stateSubs.Clear()
	r.judgmentSubs.Clear()
	r.beatSubs.Clear()
	r.logger.Debug("disposed")
}

// Tick runs one frame: scheduler, beats, note activation, gate, completion.
// The frame driver calls it while playing or gated.
func (r *Referee) Tick() {
	r.mu.Lock()
	if r.disposed || !r.phase.Running() {
		r.mu.Unlock()
		return
	}
	now := r.conductor.CurrentTimeMs()
	epoch := r.epoch
	r.mu.Unlock()

	// scheduled callbacks may call back into the referee
	r.scheduler.Tick(now)

	r.mu.Lock()
	if r.disposed || !r.phase.Running() || epoch != r.epoch {
		r.mu.Unlock()
		r.flush()
		return
	}
	r.pending.beats = append(r.pending.beats, r.beats.Tick(now)...)
	changed := r.activate(now)

	d := r.gate.CheckGate(r.conductor.WallTimeMs())
	switch {
	case d.ShouldPause && r.phase == model.PhasePlaying:
		r.conductor.Pause()
		r.setPhase(model.PhaseGated)
		changed = false
	case d.ShouldResume && r.phase == model.PhaseGated:
		r.conductor.Resume()
		r.setPhase(model.PhasePlaying)
		changed = false
	}

	if now >= r.chart.TotalDurationMs {
		r.complete()
		changed = false
	}
	if changed {
		r.queueState()
	}
	r.mu.Unlock()
	r.flush()
}

// OnPitchDetected feeds a detector sample to the judge and tells the gate
// whether any active note is currently in tolerance. Ignored unless playing
// or gated.
func (r *Referee) OnPitchDetected(s model.PitchSample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed || !r.phase.Running() {
		return
	}
	r.judge.AddPitchSample(s)

	accurate, anyActive := false, false
	for _, n := range r.chart.Notes {
		if r.status[n.ID] != active {
			continue
		}
		anyActive = true
		if r.judge.IsInTolerance(n.ID) {
			accurate = true
			break
		}
	}
	r.gate.ReportAccuracy(accurate || !anyActive, r.conductor.WallTimeMs())
}

// SetTempo changes the practice tempo. Chart times are unchanged, session
// time runs faster or slower.
func (r *Referee) SetTempo(bpm float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}
	r.conductor.SetTempo(bpm)
}

func (r *Referee) Tempo() float64 {
	return r.conductor.Tempo()
}

// SetGateEnabled toggles gating. Disabling while gated resumes on the next
// frame.
func (r *Referee) SetGateEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disposed {
		return
	}
	r.gate.SetEnabled(enabled)
}

// ScheduleEvent registers cb with the session scheduler. It fires during the
// frame whose time first reaches timeMs.
func (r *Referee) ScheduleEvent(timeMs model.SessionTimeMs, typ scheduler.EventType, cb scheduler.Callback) model.ScheduledEventID {
	return r.scheduler.Schedule(timeMs, typ, cb)
}

func (r *Referee) CancelEvent(id model.ScheduledEventID) bool {
	return r.scheduler.Cancel(id)
}

func (r *Referee) UpcomingEvents() []scheduler.Event {
	return r.scheduler.Upcoming(r.conductor.CurrentTimeMs())
}

// SubscribeToState calls cb with the current state right away and again on
// every phase or note activation change.
func (r *Referee) SubscribeToState(cb func(model.SessionState)) func() {
	unsubscribe := r.stateSubs.Subscribe(cb)
	st := r.GetState()
	func() {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("subscriber panicked", "channel", "state", "panic", p)
			}
		}()
		cb(st)
	}()
	return unsubscribe
}

func (r *Referee) SubscribeToJudgments(cb func(model.JudgmentResult)) func() {
	return r.judgmentSubs.Subscribe(cb)
}

func (r *Referee) SubscribeToBeat(cb func(model.BeatEvent)) func() {
	return r.beatSubs.Subscribe(cb)
}

func (r *Referee) GetPhase() model.Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Referee) GetState() model.SessionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state()
}

// GetChart returns the loaded chart, or nil. The chart must not be modified.
func (r *Referee) GetChart() *model.ChartData {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chart
}

func (r *Referee) CurrentTimeMs() model.SessionTimeMs {
	return r.conductor.CurrentTimeMs()
}

func (r *Referee) expect(op string, phases ...model.Phase) bool {
	if r.disposed {
		r.logger.Warn("ignoring call on disposed referee", "op", op)
		return false
	}
	for _, p := range phases {
		if r.phase == p {
			return true
		}
	}
	r.logger.Warn("ignoring invalid transition", "op", op, "phase", r.phase)
	return false
}

func (r *Referee) setPhase(p model.Phase) {
	if r.phase != p {
		r.logger.Debug("phase change", "from", r.phase, "to", p)
		r.phase = p
	}
	r.queueState()
}

func (r *Referee) queueState() {
	st := r.state()
	r.pending.state = &st
}

func (r *Referee) resetNotes() {
	r.status = make(map[string]noteStatus)
	if r.chart == nil {
		return
	}
	for _, n := range r.chart.Notes {
		r.status[n.ID] = upcoming
	}
}

// activate moves notes between upcoming, active and passed for now. A note
// entered and left within one frame is still started and stopped.
func (r *Referee) activate(now model.SessionTimeMs) bool {
	changed := false
	for _, n := range r.chart.Notes {
		switch r.status[n.ID] {
		case upcoming:
			if now < n.StartTimeMs {
				continue
			}
			r.judge.StartJudgingNote(n)
			r.status[n.ID] = active
			if now > n.EndTimeMs {
				r.stopJudging(n.ID)
				r.status[n.ID] = passed
			}
			changed = true
		case active:
			if now > n.EndTimeMs {
				r.stopJudging(n.ID)
				r.status[n.ID] = passed
				changed = true
			}
		}
	}
	return changed
}

func (r *Referee) seekNotes(t model.SessionTimeMs) {
	for _, n := range r.chart.Notes {
		switch r.status[n.ID] {
		case upcoming:
			if n.EndTimeMs < t {
				r.status[n.ID] = passed
			}
		case active:
			if n.EndTimeMs < t {
				r.stopJudging(n.ID)
				r.status[n.ID] = passed
			} else if t < n.StartTimeMs {
				r.stopJudging(n.ID)
				r.status[n.ID] = upcoming
			}
		case passed:
			if n.EndTimeMs >= t {
				r.status[n.ID] = upcoming
			}
		}
	}
	r.judge.ForgetSamples()
	r.beats.Seek(t)
}

func (r *Referee) stopJudging(id string) {
	if res, ok := r.judge.StopJudgingNote(id); ok {
		r.pending.judgments = append(r.pending.judgments, res)
	}
}

func (r *Referee) complete() {
	for _, n := range r.chart.Notes {
		if r.status[n.ID] == active {
			r.stopJudging(n.ID)
			r.status[n.ID] = passed
		}
	}
	r.driver.Stop()
	r.conductor.Stop()
	r.setPhase(model.PhaseCompleted)
	r.logger.Info("session completed", "judgments", len(r.judge.GetCompletedJudgments()))
}

func (r *Referee) state() model.SessionState {
	wall := r.conductor.WallTimeMs()
	st := model.SessionState{
		SessionID:          r.id,
		Phase:              r.phase,
		CurrentTimeMs:      r.conductor.CurrentTimeMs(),
		ElapsedTimeMs:      wall,
		CompletedJudgments: r.judge.GetCompletedJudgments(),
		GateState:          r.gate.GetState(wall),
		IsJudging:          len(r.judge.JudgingNoteIDs()) > 0,
		ActiveNotes:        []model.TimedNote{},
		UpcomingNotes:      []model.TimedNote{},
		PassedNotes:        []model.TimedNote{},
	}
	if r.chart == nil {
		return st
	}
	st.TotalDurationMs = r.chart.TotalDurationMs
	if r.phase == model.PhaseCompleted {
		st.CurrentTimeMs = r.chart.TotalDurationMs
	}
	for _, n := range r.chart.Notes {
		switch r.status[n.ID] {
		case active:
			st.ActiveNotes = append(st.ActiveNotes, n)
		case passed:
			st.PassedNotes = append(st.PassedNotes, n)
		default:
			st.UpcomingNotes = append(st.UpcomingNotes, n)
		}
	}
	return st
}

// flush delivers queued notifications in order: beats, judgments, state.
func (r *Referee) flush() {
	r.mu.Lock()
	p := r.pending
	r.pending = notifications{}
	r.mu.Unlock()

	for _, ev := range p.beats {
		r.beatSubs.Publish(ev)
	}
	for _, res := range p.judgments {
		r.judgmentSubs.Publish(res)
	}
	if p.state != nil {
		r.stateSubs.Publish(*p.state)
	}
}
