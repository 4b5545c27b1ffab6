package model

// PitchSample is one reading from an external pitch detector.
type PitchSample struct {
	TimeMs    SessionTimeMs `json:"timeMs"`
	MidiPitch float64       `json:"midiPitch"`
	Clarity   float64       `json:"clarity"`
	IsVoiced  bool          `json:"isVoiced"`
}

type JudgmentResult struct {
	NoteID    string  `json:"noteId"`
	VoiceID   string  `json:"voiceId"`
	MidiPitch float64 `json:"midiPitch"`

	// percentage of all samples in the note window that were in tolerance
	ContinuousAccuracy float64 `json:"continuousAccuracy"`

	OnsetVoiced      bool `json:"onsetVoiced"`
	OnsetInTolerance bool `json:"onsetInTolerance"`
	OnsetSuccess     bool `json:"onsetSuccess"`
	// nil when nothing voiced was heard around the onset, negative is early
	OnsetTimingErrorMs *float64 `json:"onsetTimingErrorMs"`

	ReleaseVoiced        bool     `json:"releaseVoiced"`
	ReleaseTimely        bool     `json:"releaseTimely"`
	ReleaseSuccess       bool     `json:"releaseSuccess"`
	ReleaseTimingErrorMs *float64 `json:"releaseTimingErrorMs"`

	SustainedThrough      bool    `json:"sustainedThrough"`
	AverageDeviationCents float64 `json:"averageDeviationCents"`

	RawSampleCount      int `json:"rawSampleCount"`
	FilteredSampleCount int `json:"filteredSampleCount"`

	StartTimeMs SessionTimeMs `json:"startTimeMs"`
	EndTimeMs   SessionTimeMs `json:"endTimeMs"`
}
