package model

type TimedNote struct {
	ID          string        `json:"id"`
	MidiPitch   float64       `json:"midiPitch"`
	StartTimeMs SessionTimeMs `json:"startTimeMs"`
	EndTimeMs   SessionTimeMs `json:"endTimeMs"`
	DurationMs  SessionTimeMs `json:"durationMs"`
	VoiceID     string        `json:"voiceId"`
	Color       string        `json:"color"`
	Shape       NoteShape     `json:"shape"`
	IsShortNote bool          `json:"isShortNote"`
	PitchName   string        `json:"pitchName"`
}

// Contains reports whether t falls inside [StartTimeMs, EndTimeMs].
func (n TimedNote) Contains(t SessionTimeMs) bool {
	return t >= n.StartTimeMs && t <= n.EndTimeMs
}

type TimedBeat struct {
	Index          int           `json:"index"`
	TimeMs         SessionTimeMs `json:"timeMs"`
	IsMacrobeat    bool          `json:"isMacrobeat"`
	IsMeasureStart bool          `json:"isMeasureStart"`
	Grouping       int           `json:"grouping"`
	BoundaryStyle  BoundaryStyle `json:"boundaryStyle"`
}

type TonicIndicator struct {
	TimeMs SessionTimeMs `json:"timeMs"`
	Tonic  string        `json:"tonic"`
}

type ChartData struct {
	ID              string           `json:"id"`
	Title           string           `json:"title"`
	Notes           []TimedNote      `json:"notes"`
	Beats           []TimedBeat      `json:"beats"`
	TonicIndicators []TonicIndicator `json:"tonicIndicators"`
	TotalDurationMs SessionTimeMs    `json:"totalDurationMs"`
	Tempo           float64          `json:"tempo"`
	MinPitch        float64          `json:"minPitch"`
	MaxPitch        float64          `json:"maxPitch"`
	VoiceIDs        []string         `json:"voiceIds"`
}

// Note returns the note with the given id.
func (c *ChartData) Note(id string) (TimedNote, bool) {
	for _, n := range c.Notes {
		if n.ID == id {
			return n, true
		}
	}
	return TimedNote{}, false
}
