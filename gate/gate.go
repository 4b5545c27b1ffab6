package gate

import (
	"log/slog"
	"sync"

	"github.com/jsphweid/harmondrill/model"
	"github.com/jsphweid/harmondrill/util"
)

type Options struct {
	// nil means enabled
	Enabled       *bool   `json:"enabled" yaml:"enabled"`
	GracePeriodMs float64 `json:"gracePeriodMs" yaml:"gracePeriodMs"`
	// how long accuracy must hold before a gated session resumes, 0 resumes
	// on the first accurate sample
	ResumeAfterMs float64 `json:"resumeAfterMs" yaml:"resumeAfterMs"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func DefaultOptions() Options {
	enabled := true
	return Options{
		Enabled:       &enabled,
		GracePeriodMs: 500,
		ResumeAfterMs: 200,
	}
}

type Decision struct {
	ShouldPause  bool
	ShouldResume bool
}

// Gate decides when sustained inaccuracy should hold the session and when
// regained accuracy should release it. It works on wall-clock milliseconds
// so it keeps measuring while session time is frozen.
type Gate struct {
	mu      sync.Mutex
	enabled bool
	grace   float64
	resume  float64
	gated   bool

	inaccurateSince *float64
	accurateSince   *float64

	logger *slog.Logger
}

func New(opts Options) *Gate {
	def := DefaultOptions()
	enabled := true
	if opts.Enabled != nil {
		enabled = *opts.Enabled
	}
	resume := util.Finite(opts.ResumeAfterMs, def.ResumeAfterMs)
	if resume < 0 {
		resume = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default().With("component", "gate")
	}
	return &Gate{
		enabled: enabled,
		grace:   util.OrDefault(opts.GracePeriodMs, def.GracePeriodMs),
		resume:  resume,
		logger:  logger,
	}
}

// ReportAccuracy records whether the learner was in tolerance at nowMs.
func (g *Gate) ReportAccuracy(accurate bool, nowMs float64) {
	nowMs = util.Finite(nowMs, 0)

	g.mu.Lock()
	defer g.mu.Unlock()
	if accurate {
		g.inaccurateSince = nil
		if g.accurateSince == nil {
			g.accurateSince = &nowMs
		}
		return
	}
	g.accurateSince = nil
	if g.inaccurateSince == nil {
		g.inaccurateSince = &nowMs
	}
}

// CheckGate evaluates the gate at nowMs and moves between flowing and gated
// when a threshold has been crossed.
func (g *Gate) CheckGate(nowMs float64) Decision {
	nowMs = util.Finite(nowMs, 0)

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.gated {
		if !g.enabled || g.inaccurateSince == nil || nowMs-*g.inaccurateSince < g.grace {
			return Decision{}
		}
		g.gated = true
		g.accurateSince = nil
		g.logger.Debug("gating", "inaccurateSinceMs", *g.inaccurateSince, "nowMs", nowMs)
		return Decision{ShouldPause: true}
	}

	if g.enabled && (g.accurateSince == nil || nowMs-*g.accurateSince < g.resume) {
		return Decision{}
	}
	g.gated = false
	g.inaccurateSince = nil
	g.accurateSince = nil
	g.logger.Debug("releasing gate", "nowMs", nowMs)
	return Decision{ShouldResume: true}
}

// GracePeriodRemainingMs is how much longer the current inaccuracy streak may
// last before the gate closes.
func (g *Gate) GracePeriodRemainingMs(nowMs float64) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining(util.Finite(nowMs, 0))
}

func (g *Gate) GetState(nowMs float64) model.GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	st := model.GateState{
		IsGated:                g.gated,
		GracePeriodRemainingMs: g.remaining(util.Finite(nowMs, 0)),
	}
	if g.inaccurateSince != nil {
		v := *g.inaccurateSince
		st.InaccuracyStartMs = &v
	}
	return st
}

func (g *Gate) IsGated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gated
}

func (g *Gate) IsEnabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// SetEnabled toggles gating. A gate disabled while closed opens on the next
// CheckGate.
func (g *Gate) SetEnabled(enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.enabled = enabled
	if !enabled {
		g.inaccurateSince = nil
	}
}

// Restart moves the start of any running streak to nowMs. Time spent while
// the session was held by the learner does not count toward either threshold.
func (g *Gate) Restart(nowMs float64) {
	nowMs = util.Finite(nowMs, 0)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inaccurateSince != nil {
		g.inaccurateSince = &nowMs
	}
	if g.accurateSince != nil {
		at := nowMs
		g.accurateSince = &at
	}
}

func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gated = false
	g.inaccurateSince = nil
	g.accurateSince = nil
}

func (g *Gate) remaining(nowMs float64) float64 {
	if g.gated {
		return 0
	}
	if g.inaccurateSince == nil {
		return g.grace
	}
	return util.Max(0, g.grace-(nowMs-*g.inaccurateSince))
}
