package conductor

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/jsphweid/harmondrill/model"
)

type Mode string

const (
	// time is elapsed wall clock scaled by tempo
	PlayheadLed Mode = "playhead"
	// time follows an injected audio clock
	AudioLed Mode = "audio"
)

// AudioClock is the clock of the audio output, e.g. an audio context's
// current time.
type AudioClock interface {
	CurrentTime() model.AudioTimeSec
}

type Options struct {
	Mode Mode `json:"mode" yaml:"mode"`

	// Now defaults to time.Now.
	Now        func() time.Time `json:"-" yaml:"-"`
	AudioClock AudioClock       `json:"-" yaml:"-"`
	Logger     *slog.Logger     `json:"-" yaml:"-"`
}

func DefaultOptions() Options {
	return Options{Mode: PlayheadLed}
}

// Conductor is the session clock. The session time it reports is the only
// clock the other components read.
type Conductor struct {
	mu     sync.Mutex
	now    func() time.Time
	audio  AudioClock
	mode   Mode
	logger *slog.Logger

	running  bool
	paused   bool
	disposed bool

	chartTempo float64
	tempo      float64

	// session time at the last anchor
	baseMs      float64
	anchorWall  time.Time
	anchorAudio model.AudioTimeSec
	wallStart   time.Time
}

func New(opts Options) *Conductor {
	c := &Conductor{
		now:    opts.Now,
		audio:  opts.AudioClock,
		mode:   opts.Mode,
		logger: opts.Logger,
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = slog.Default().With("component", "conductor")
	}
	if c.mode == "" {
		c.mode = PlayheadLed
	}
	if c.mode == AudioLed && c.audio == nil {
		c.logger.Warn("audio-led mode without an audio clock, falling back to playhead-led")
		c.mode = PlayheadLed
	}
	return c
}

func (c *Conductor) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// SetAudioClock switches the conductor to follow clock. A nil clock switches
// back to playhead-led.
func (c *Conductor) SetAudioClock(clock AudioClock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebase()
	c.audio = clock
	if clock == nil {
		c.mode = PlayheadLed
	} else {
		c.mode = AudioLed
	}
	c.anchor()
}

func (c *Conductor) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.running = true
	c.paused = false
	c.baseMs = 0
	c.anchor()
	c.wallStart = c.anchorWall
	c.logger.Debug("conductor started", "mode", c.mode, "tempo", c.tempo)
}

func (c *Conductor) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.paused = false
	c.baseMs = 0
	c.wallStart = time.Time{}
}

// Pause freezes session time. It is a no-op unless running and not paused.
func (c *Conductor) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.paused {
		return
	}
	c.baseMs = c.currentMs()
	c.paused = true
}

// Resume is a no-op unless paused.
func (c *Conductor) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || !c.paused {
		return
	}
	c.paused = false
	c.anchor()
}

func (c *Conductor) Seek(t model.SessionTimeMs) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t = t.Sanitize()
	if math.IsInf(float64(t), 1) {
		return
	}
	c.baseMs = float64(t)
	c.anchor()
}

// SetChartTempo sets the tempo the chart's times were computed at. Session
// time runs at tempo/chartTempo relative to the wall clock.
func (c *Conductor) SetChartTempo(bpm float64) {
	if !validTempo(bpm) {
		c.logger.Warn("ignoring invalid chart tempo", "tempo", bpm)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebase()
	c.chartTempo = bpm
	c.tempo = bpm
}

func (c *Conductor) SetTempo(bpm float64) {
	if !validTempo(bpm) {
		c.logger.Warn("ignoring invalid tempo", "tempo", bpm)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebase()
	c.tempo = bpm
	if c.chartTempo == 0 {
		c.chartTempo = bpm
	}
}

func (c *Conductor) Tempo() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tempo
}

func (c *Conductor) CurrentTimeMs() model.SessionTimeMs {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.SessionTimeMs(c.currentMs())
}

// WallTimeMs is the wall clock time since Start. Unlike CurrentTimeMs it
// keeps advancing while paused and is not moved by Seek.
func (c *Conductor) WallTimeMs() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.wallStart.IsZero() {
		return 0
	}
	return float64(c.now().Sub(c.wallStart)) / float64(time.Millisecond)
}

func (c *Conductor) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Conductor) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Dispose stops the clock and drops the audio clock. The conductor cannot
// be started again.
func (c *Conductor) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	c.paused = false
	c.baseMs = 0
	c.audio = nil
	c.disposed = true
}

func (c *Conductor) rate() float64 {
	if c.chartTempo <= 0 || c.tempo <= 0 {
		return 1
	}
	return c.tempo / c.chartTempo
}

func (c *Conductor) elapsedMs() float64 {
	if c.mode == AudioLed && c.audio != nil {
		d := c.audio.CurrentTime().Ms() - c.anchorAudio.Ms()
		if d < 0 || math.IsNaN(d) {
			return 0
		}
		return d
	}
	return float64(c.now().Sub(c.anchorWall)) / float64(time.Millisecond)
}

func (c *Conductor) currentMs() float64 {
	if !c.running {
		return c.baseMs
	}
	if c.paused {
		return c.baseMs
	}
	return c.baseMs + c.elapsedMs()*c.rate()
}

// rebase folds the time elapsed since the last anchor into baseMs.
func (c *Conductor) rebase() {
	c.baseMs = c.currentMs()
	c.anchor()
}

func (c *Conductor) anchor() {
	c.anchorWall = c.now()
	if c.audio != nil {
		c.anchorAudio = c.audio.CurrentTime()
	}
}

func validTempo(bpm float64) bool {
	return bpm > 0 && !math.IsInf(bpm, 0) && !math.IsNaN(bpm)
}
