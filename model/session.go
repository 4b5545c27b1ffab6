package model

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseLoading   Phase = "loading"
	PhaseReady     Phase = "ready"
	PhasePlaying   Phase = "playing"
	PhasePaused    Phase = "paused"
	PhaseGated     Phase = "gated"
	PhaseCompleted Phase = "completed"
)

// Running reports whether the per-frame tick does work in this phase.
func (p Phase) Running() bool {
	return p == PhasePlaying || p == PhaseGated
}

type GateState struct {
	IsGated bool `json:"isGated"`
	// nil exactly when no inaccuracy streak is open
	InaccuracyStartMs      *float64 `json:"inaccuracyStartMs"`
	GracePeriodRemainingMs float64  `json:"gracePeriodRemainingMs"`
}

type SessionState struct {
	SessionID          string           `json:"sessionId"`
	Phase              Phase            `json:"phase"`
	CurrentTimeMs      SessionTimeMs    `json:"currentTimeMs"`
	ElapsedTimeMs      float64          `json:"elapsedTimeMs"`
	TotalDurationMs    SessionTimeMs    `json:"totalDurationMs"`
	ActiveNotes        []TimedNote      `json:"activeNotes"`
	UpcomingNotes      []TimedNote      `json:"upcomingNotes"`
	PassedNotes        []TimedNote      `json:"passedNotes"`
	CompletedJudgments []JudgmentResult `json:"completedJudgments"`
	GateState          GateState        `json:"gateState"`
	IsJudging          bool             `json:"isJudging"`
}

type BeatEventKind string

const (
	// the beat's early window was entered
	BeatEarly BeatEventKind = "early"
	// the beat's center was crossed
	BeatOnBeat BeatEventKind = "onBeat"
)

type BeatEvent struct {
	Beat          TimedBeat     `json:"beat"`
	Kind          BeatEventKind `json:"kind"`
	CurrentTimeMs SessionTimeMs `json:"currentTimeMs"`
	InEarlyWindow bool          `json:"inEarlyWindow"`
	InLateWindow  bool          `json:"inLateWindow"`
}
