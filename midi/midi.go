package midi

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jsphweid/harmondrill/constants"
	"github.com/jsphweid/harmondrill/model"
	"github.com/jsphweid/harmondrill/util"
	"github.com/pkg/errors"
	"gitlab.com/gomidi/midi/v2/smf"
)

var ErrUnsupportedTimeFormat = errors.New("only metric ticks time format is supported")

// general MIDI percussion, never a singable part
const drumChannel = 9

const defaultTempo = 120

func ReadMidiFile(path string) (s *smf.SMF, e error) {
	// handle panics
	// https://github.com/gomidi/midi/issues/20
	defer func() {
		if r := recover(); r != nil {
			s = nil
			e = errors.Errorf("panic while parsing midi file %s: %v", path, r)
		}
	}()

	dat, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading midi file")
	}
	res, err := smf.ReadFrom(bytes.NewReader(dat))
	if err != nil {
		return nil, errors.Wrap(err, "error parsing midi file")
	}
	return res, nil
}

// FileSource reads a Standard MIDI File as a chart. Each channel becomes a
// voice.
type FileSource struct {
	Path string
}

func (f FileSource) FetchSnapshot(ctx context.Context) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, err
	}
	s, err := ReadMidiFile(f.Path)
	if err != nil {
		return model.Snapshot{}, err
	}
	snap, err := ToSnapshot(s)
	if err != nil {
		return model.Snapshot{}, errors.Wrapf(err, "could not convert %s", f.Path)
	}
	base := filepath.Base(f.Path)
	snap.ID = strings.TrimSuffix(base, filepath.Ext(base))
	snap.Title = snap.ID
	return snap, nil
}

type tempoChange struct {
	tick int64
	bpm  float64
}

type meterChange struct {
	tick       int64
	num, denom uint8
}

type noteKey struct {
	channel, key uint8
}

// ToSnapshot converts metric ticks to microbeats, two per quarter note.
// Tempo changes after the first become tempo modulations and time signatures
// shape the grid.
func ToSnapshot(s *smf.SMF) (model.Snapshot, error) {
	ticks, ok := s.TimeFormat.(smf.MetricTicks)
	if !ok || ticks.Resolution() == 0 {
		return model.Snapshot{}, errors.WithStack(ErrUnsupportedTimeFormat)
	}
	perMicrobeat := float64(ticks.Resolution()) / constants.MicrobeatsPerBeat
	toMicrobeat := func(tick int64) float64 {
		return float64(tick) / perMicrobeat
	}

	var tempos []tempoChange
	var meters []meterChange
	voices := make(map[uint8]*model.Voice)
	lastMicrobeat := 0.0

	addNote := func(ch, key uint8, start, end int64) {
		v, ok := voices[ch]
		if !ok {
			v = &model.Voice{ID: fmt.Sprintf("ch%d", ch+1)}
			voices[ch] = v
		}
		n := model.SnapshotNote{
			MidiPitch:          float64(key),
			StartMicrobeat:     toMicrobeat(start),
			DurationMicrobeats: toMicrobeat(end - start),
		}
		v.Notes = append(v.Notes, n)
		lastMicrobeat = math.Max(lastMicrobeat, n.StartMicrobeat+n.DurationMicrobeats)
	}

	for _, track := range s.Tracks {
		var absTicks int64
		open := make(map[noteKey][]int64)
		for _, ev := range track {
			absTicks += int64(ev.Delta)
			var ch, key, vel, num, denom uint8
			var bpm float64
			switch {
			case ev.Message.GetMetaTempo(&bpm):
				tempos = append(tempos, tempoChange{tick: absTicks, bpm: bpm})
			case ev.Message.GetMetaMeter(&num, &denom):
				meters = append(meters, meterChange{tick: absTicks, num: num, denom: denom})
			case ev.Message.GetNoteOn(&ch, &key, &vel) && vel > 0:
				if ch == drumChannel {
					continue
				}
				k := noteKey{ch, key}
				open[k] = append(open[k], absTicks)
			case ev.Message.GetNoteOff(&ch, &key, &vel), ev.Message.GetNoteOn(&ch, &key, &vel):
				k := noteKey{ch, key}
				starts := open[k]
				if len(starts) == 0 {
					continue
				}
				addNote(ch, key, starts[0], absTicks)
				open[k] = starts[1:]
			}
		}
		// notes left sounding end with their track
		for k, starts := range open {
			for _, start := range starts {
				addNote(k.channel, k.key, start, absTicks)
			}
		}
	}

	var snap model.Snapshot
	snap.Tempo, snap.TempoModulations = tempoMap(tempos, toMicrobeat)
	snap.TimeGrid = grid(meters, toMicrobeat, int(math.Ceil(lastMicrobeat)))

	for _, ch := range util.SortedKeys(voices) {
		v := voices[ch]
		sort.SliceStable(v.Notes, func(i, j int) bool {
			a, b := v.Notes[i], v.Notes[j]
			if a.StartMicrobeat != b.StartMicrobeat {
				return a.StartMicrobeat < b.StartMicrobeat
			}
			return a.MidiPitch < b.MidiPitch
		})
		for i := range v.Notes {
			v.Notes[i].ID = fmt.Sprintf("%s-%d", v.ID, i)
		}
		snap.Voices = append(snap.Voices, *v)
	}
	return snap, nil
}

func tempoMap(tempos []tempoChange, toMicrobeat func(int64) float64) (float64, []model.TempoModulation) {
	sort.SliceStable(tempos, func(i, j int) bool { return tempos[i].tick < tempos[j].tick })

	base := float64(defaultTempo)
	if len(tempos) > 0 && tempos[0].tick == 0 && tempos[0].bpm > 0 {
		base = tempos[0].bpm
		tempos = tempos[1:]
	}

	var mods []model.TempoModulation
	current := base
	for _, t := range tempos {
		if t.bpm <= 0 || t.bpm == current || math.IsInf(t.bpm, 0) || math.IsNaN(t.bpm) {
			continue
		}
		// ratio scales the length of every microbeat from here on
		mods = append(mods, model.TempoModulation{Microbeat: toMicrobeat(t.tick), Ratio: current / t.bpm})
		current = t.bpm
	}
	return base, mods
}

func grid(meters []meterChange, toMicrobeat func(int64) float64, needed int) *model.TimeGrid {
	sort.SliceStable(meters, func(i, j int) bool { return meters[i].tick < meters[j].tick })

	g := &model.TimeGrid{}
	num, denom := uint8(4), uint8(4)
	next := 0
	microbeat := 0
	for microbeat < needed || microbeat == 0 {
		for next < len(meters) && toMicrobeat(meters[next].tick) <= float64(microbeat) {
			num, denom = meters[next].num, meters[next].denom
			next++
		}
		groupings := measureGroupings(num, denom)
		for i, grouping := range groupings {
			style := model.BoundaryDashed
			if i == len(groupings)-1 {
				style = model.BoundarySolid
			}
			g.MacrobeatGroupings = append(g.MacrobeatGroupings, grouping)
			g.MacrobeatBoundaryStyles = append(g.MacrobeatBoundaryStyles, style)
			microbeat += grouping
		}
	}
	return g
}

// measureGroupings splits one measure into macrobeats. Compound meters
// (6/8, 9/8, 12/8) group in threes, everything else in twos.
func measureGroupings(num, denom uint8) []int {
	if num == 0 || denom == 0 || denom&(denom-1) != 0 || denom > 8 {
		num, denom = 4, 4
	}
	microbeats := int(num) * 8 / int(denom)

	if denom == 8 && num > 3 && num%3 == 0 {
		res := make([]int, num/3)
		for i := range res {
			res[i] = 3
		}
		return res
	}

	if microbeats < 2 {
		return []int{microbeats}
	}
	res := make([]int, microbeats/2)
	for i := range res {
		res[i] = 2
	}
	if microbeats%2 == 1 {
		res[len(res)-1]++
	}
	return res
}
