package model

// BoundaryStyle is the style of the line drawn after a macrobeat.
type BoundaryStyle string

const (
	BoundarySolid     BoundaryStyle = "solid"
	BoundaryDashed    BoundaryStyle = "dashed"
	BoundaryAnacrusis BoundaryStyle = "anacrusis"
)

// NoteShape is how a note is drawn in the chart. Circles are short notes.
type NoteShape string

const (
	ShapeOval   NoteShape = "oval"
	ShapeCircle NoteShape = "circle"
)

// Snapshot is the serialized chart handed over by a chart source. Positions
// are expressed on the microbeat grid, not in absolute time.
type Snapshot struct {
	ID               string            `json:"id" yaml:"id"`
	Title            string            `json:"title" yaml:"title"`
	Tempo            float64           `json:"tempo" yaml:"tempo"`
	TimeGrid         *TimeGrid         `json:"timeGrid" yaml:"timeGrid"`
	Voices           []Voice           `json:"voices" yaml:"voices"`
	PitchRange       *PitchRange       `json:"pitchRange,omitempty" yaml:"pitchRange,omitempty"`
	TonicSigns       []TonicSign       `json:"tonicSigns,omitempty" yaml:"tonicSigns,omitempty"`
	TempoModulations []TempoModulation `json:"tempoModulations,omitempty" yaml:"tempoModulations,omitempty"`
}

type TimeGrid struct {
	// microbeats per macrobeat, usually 2 or 3
	MacrobeatGroupings []int `json:"macrobeatGroupings" yaml:"macrobeatGroupings"`
	// NOTE: shorter than MacrobeatGroupings is fine, missing entries are dashed
	MacrobeatBoundaryStyles []BoundaryStyle `json:"macrobeatBoundaryStyles" yaml:"macrobeatBoundaryStyles"`
}

type Voice struct {
	ID    string         `json:"id" yaml:"id"`
	Color string         `json:"color" yaml:"color"`
	Notes []SnapshotNote `json:"notes" yaml:"notes"`
}

type SnapshotNote struct {
	ID                 string    `json:"id" yaml:"id"`
	MidiPitch          float64   `json:"midiPitch" yaml:"midiPitch"`
	StartMicrobeat     float64   `json:"startMicrobeat" yaml:"startMicrobeat"`
	DurationMicrobeats float64   `json:"durationMicrobeats" yaml:"durationMicrobeats"`
	Shape              NoteShape `json:"shape,omitempty" yaml:"shape,omitempty"`
	PitchName          string    `json:"pitchName,omitempty" yaml:"pitchName,omitempty"`
}

type PitchRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

type TonicSign struct {
	Microbeat float64 `json:"microbeat" yaml:"microbeat"`
	Tonic     string  `json:"tonic" yaml:"tonic"`
}

// TempoModulation scales the microbeat duration from Microbeat onwards.
// Ratios accumulate: two markers of 2 and 0.5 return to the base tempo.
type TempoModulation struct {
	Microbeat float64 `json:"microbeat" yaml:"microbeat"`
	Ratio     float64 `json:"ratio" yaml:"ratio"`
}
