package chart

import (
	"fmt"
	"math"
	"sort"

	"github.com/jsphweid/harmondrill/model"
	"github.com/jsphweid/harmondrill/util"
	"github.com/pkg/errors"
)

var (
	ErrMissingTimeGrid   = errors.New("snapshot has no time grid")
	ErrInvalidGrouping   = errors.New("invalid macrobeat grouping")
	ErrInvalidTempo      = errors.New("invalid tempo")
	ErrInvalidModulation = errors.New("invalid tempo modulation")
	ErrInvalidNote       = errors.New("invalid note")
)

// ChartLoadError is returned for every snapshot that cannot be turned into
// chart data.
type ChartLoadError struct {
	Reason string
	Err    error
}

func (e *ChartLoadError) Error() string {
	return fmt.Sprintf("chart load failed: %s: %v", e.Reason, e.Err)
}

func (e *ChartLoadError) Unwrap() error {
	return e.Err
}

func loadError(err error, format string, args ...any) error {
	return &ChartLoadError{Reason: fmt.Sprintf(format, args...), Err: err}
}

type Options struct {
	// used when the snapshot carries no tempo
	DefaultTempo float64 `json:"defaultTempo" yaml:"defaultTempo"`
	// notes this many microbeats long or shorter are judged as short notes
	ShortNoteMaxMicrobeats float64 `json:"shortNoteMaxMicrobeats" yaml:"shortNoteMaxMicrobeats"`
}

func DefaultOptions() Options {
	return Options{
		DefaultTempo:           90,
		ShortNoteMaxMicrobeats: 1,
	}
}

// Adapter turns snapshots into absolute-time chart data. LoadSnapshot is a
// pure function of its input.
type Adapter struct {
	opts Options
}

func NewAdapter(opts Options) *Adapter {
	def := DefaultOptions()
	opts.DefaultTempo = util.OrDefault(opts.DefaultTempo, def.DefaultTempo)
	opts.ShortNoteMaxMicrobeats = util.OrDefault(opts.ShortNoteMaxMicrobeats, def.ShortNoteMaxMicrobeats)
	return &Adapter{opts: opts}
}

func (a *Adapter) LoadSnapshot(snap model.Snapshot) (*model.ChartData, error) {
	if snap.TimeGrid == nil || len(snap.TimeGrid.MacrobeatGroupings) == 0 {
		return nil, loadError(ErrMissingTimeGrid, "time grid")
	}

	tempo := snap.Tempo
	switch {
	case tempo == 0:
		tempo = a.opts.DefaultTempo
	case tempo < 0 || math.IsNaN(tempo) || math.IsInf(tempo, 0):
		return nil, loadError(ErrInvalidTempo, "tempo %v", snap.Tempo)
	}

	tl, err := newTimeline(tempo, snap.TempoModulations)
	if err != nil {
		return nil, err
	}

	beats, numMicrobeats, err := buildBeats(snap.TimeGrid, tl)
	if err != nil {
		return nil, err
	}

	notes, voiceIDs, err := a.buildNotes(snap.Voices, tl)
	if err != nil {
		return nil, err
	}

	total := tl.timeAt(float64(numMicrobeats))
	for _, n := range notes {
		total = util.Max(total, n.EndTimeMs)
	}

	res := &model.ChartData{
		ID:              snap.ID,
		Title:           snap.Title,
		Notes:           notes,
		Beats:           beats,
		TonicIndicators: buildTonics(snap.TonicSigns, tl),
		TotalDurationMs: total,
		Tempo:           tempo,
		VoiceIDs:        voiceIDs,
	}
	res.MinPitch, res.MaxPitch = pitchBounds(snap.PitchRange, notes)
	return res, nil
}

func buildBeats(grid *model.TimeGrid, tl timeline) ([]model.TimedBeat, int, error) {
	var beats []model.TimedBeat
	index := 0
	measureStart := true
	for m, grouping := range grid.MacrobeatGroupings {
		if grouping < 1 {
			return nil, 0, loadError(ErrInvalidGrouping, "macrobeat %d has grouping %d", m, grouping)
		}
		style := model.BoundaryDashed
		if m < len(grid.MacrobeatBoundaryStyles) && grid.MacrobeatBoundaryStyles[m] != "" {
			style = grid.MacrobeatBoundaryStyles[m]
		}
		for i := 0; i < grouping; i++ {
			beats = append(beats, model.TimedBeat{
				Index:          index,
				TimeMs:         tl.timeAt(float64(index)),
				IsMacrobeat:    i == 0,
				IsMeasureStart: i == 0 && measureStart,
				Grouping:       grouping,
				BoundaryStyle:  style,
			})
			index++
		}
		measureStart = style == model.BoundarySolid
	}
	return beats, index, nil
}

func (a *Adapter) buildNotes(voices []model.Voice, tl timeline) ([]model.TimedNote, []string, error) {
	var notes []model.TimedNote
	var voiceIDs []string
	seen := make(map[string]bool)

	for v, voice := range voices {
		voiceID := voice.ID
		if voiceID == "" {
			voiceID = fmt.Sprintf("voice-%d", v)
		}
		voiceIDs = append(voiceIDs, voiceID)

		for i, sn := range voice.Notes {
			if math.IsNaN(sn.MidiPitch) || math.IsInf(sn.MidiPitch, 0) {
				return nil, nil, loadError(ErrInvalidNote, "note %d of voice %s has pitch %v", i, voiceID, sn.MidiPitch)
			}
			id := sn.ID
			if id == "" {
				id = fmt.Sprintf("%s-%d", voiceID, i)
			}
			if seen[id] {
				return nil, nil, loadError(ErrInvalidNote, "duplicate note id %s", id)
			}
			seen[id] = true

			// zero length rather than an error
			start := util.Max(util.Finite(sn.StartMicrobeat, 0), 0)
			dur := util.Max(util.Finite(sn.DurationMicrobeats, 0), 0)
			startMs := tl.timeAt(start)
			endMs := tl.timeAt(start + dur)

			pitchName := sn.PitchName
			if pitchName == "" {
				pitchName = PitchName(sn.MidiPitch)
			}
			shape := sn.Shape
			if shape == "" {
				shape = model.ShapeOval
			}

			notes = append(notes, model.TimedNote{
				ID:          id,
				MidiPitch:   sn.MidiPitch,
				StartTimeMs: startMs,
				EndTimeMs:   endMs,
				DurationMs:  endMs - startMs,
				VoiceID:     voiceID,
				Color:       voice.Color,
				Shape:       shape,
				IsShortNote: shape == model.ShapeCircle || dur <= a.opts.ShortNoteMaxMicrobeats,
				PitchName:   pitchName,
			})
		}
	}

	sort.SliceStable(notes, func(i, j int) bool {
		return notes[i].StartTimeMs < notes[j].StartTimeMs
	})
	return notes, voiceIDs, nil
}

func buildTonics(signs []model.TonicSign, tl timeline) []model.TonicIndicator {
	res := make([]model.TonicIndicator, 0, len(signs))
	for _, s := range signs {
		mb := util.Max(util.Finite(s.Microbeat, 0), 0)
		res = append(res, model.TonicIndicator{TimeMs: tl.timeAt(mb), Tonic: s.Tonic})
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].TimeMs < res[j].TimeMs
	})
	return res
}

func pitchBounds(r *model.PitchRange, notes []model.TimedNote) (float64, float64) {
	if r != nil {
		return util.Min(r.Min, r.Max), util.Max(r.Min, r.Max)
	}
	if len(notes) == 0 {
		return 0, 0
	}
	lo, hi := notes[0].MidiPitch, notes[0].MidiPitch
	for _, n := range notes[1:] {
		lo = util.Min(lo, n.MidiPitch)
		hi = util.Max(hi, n.MidiPitch)
	}
	return lo, hi
}

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// PitchName names the nearest equal tempered pitch, e.g. 60 -> C4.
func PitchName(midiPitch float64) string {
	p := int(math.Round(midiPitch))
	if p < 0 {
		return fmt.Sprintf("?%d", p)
	}
	return fmt.Sprintf("%s%d", noteNames[p%12], (p/12)-1)
}
