package midi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jsphweid/harmondrill/chart"
	"github.com/jsphweid/harmondrill/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func buildSMF(t *testing.T) *smf.SMF {
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(960)

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(3, 4))
	tempo.Add(0, smf.MetaTempo(100))
	tempo.Add(2880, smf.MetaTempo(50))
	tempo.Close(0)
	require.NoError(t, s.Add(tempo))

	var melody smf.Track
	melody.Add(0, gomidi.NoteOn(0, 60, 100))
	melody.Add(960, gomidi.NoteOff(0, 60))
	melody.Add(0, gomidi.NoteOn(0, 62, 100))
	melody.Add(480, gomidi.NoteOff(0, 62))
	melody.Add(1440, gomidi.NoteOn(0, 64, 100))
	melody.Add(1920, gomidi.NoteOff(0, 64))
	melody.Close(0)
	require.NoError(t, s.Add(melody))

	var harmony smf.Track
	harmony.Add(0, gomidi.NoteOn(1, 67, 90))
	harmony.Add(0, gomidi.NoteOn(9, 36, 90))
	harmony.Add(960, gomidi.NoteOn(1, 67, 0))
	harmony.Add(0, gomidi.NoteOff(9, 36))
	harmony.Close(0)
	require.NoError(t, s.Add(harmony))
	return s
}

func TestToSnapshot(t *testing.T) {
	snap, err := ToSnapshot(buildSMF(t))
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal(float64(100), snap.Tempo)
	assert.Equal([]model.TempoModulation{{Microbeat: 6, Ratio: 2}}, snap.TempoModulations)
	assert.Equal([]int{2, 2, 2, 2, 2, 2}, snap.TimeGrid.MacrobeatGroupings)
	assert.Equal(model.BoundarySolid, snap.TimeGrid.MacrobeatBoundaryStyles[2])
	assert.Equal(model.BoundaryDashed, snap.TimeGrid.MacrobeatBoundaryStyles[3])

	require.Len(t, snap.Voices, 2)
	melody := snap.Voices[0]
	assert.Equal("ch1", melody.ID)
	require.Len(t, melody.Notes, 3)
	cases := []struct {
		id              string
		pitch           float64
		start, duration float64
	}{
		{"ch1-0", 60, 0, 2},
		{"ch1-1", 62, 2, 1},
		{"ch1-2", 64, 6, 4},
	}
	for i, c := range cases {
		n := melody.Notes[i]
		assert.Equal(c.id, n.ID)
		assert.Equal(c.pitch, n.MidiPitch)
		assert.Equal(c.start, n.StartMicrobeat, c.id)
		assert.Equal(c.duration, n.DurationMicrobeats, c.id)
	}

	// drums are dropped, velocity zero note on ends a note
	harmony := snap.Voices[1]
	assert.Equal("ch2", harmony.ID)
	require.Len(t, harmony.Notes, 1)
	assert.Equal(float64(2), harmony.Notes[0].DurationMicrobeats)
}

func TestSnapshotLoadsAsChart(t *testing.T) {
	snap, err := ToSnapshot(buildSMF(t))
	require.NoError(t, err)

	data, err := chart.NewAdapter(chart.DefaultOptions()).LoadSnapshot(snap)
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal(model.SessionTimeMs(5400), data.TotalDurationMs)
	n, ok := data.Note("ch1-2")
	require.True(t, ok)
	assert.Equal(model.SessionTimeMs(1800), n.StartTimeMs)
	assert.Equal(model.SessionTimeMs(4200), n.EndTimeMs)
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mid")
	require.NoError(t, buildSMF(t).WriteFile(path))

	snap, err := FileSource{Path: path}.FetchSnapshot(context.Background())
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal("song", snap.ID)
	assert.Equal(float64(100), snap.Tempo)
	assert.Len(snap.Voices, 2)
}

func TestReadMidiFileErrors(t *testing.T) {
	dir := t.TempDir()
	_, err := ReadMidiFile(filepath.Join(dir, "missing.mid"))
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.mid")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not midi"), 0644))
	_, err = ReadMidiFile(garbage)
	assert.Error(t, err)
}

func TestUnsupportedTimeFormat(t *testing.T) {
	_, err := ToSnapshot(&smf.SMF{})
	assert.True(t, errors.Is(err, ErrUnsupportedTimeFormat))
}

func TestMeasureGroupings(t *testing.T) {
	cases := []struct {
		num, denom uint8
		want       []int
	}{
		{4, 4, []int{2, 2, 2, 2}},
		{3, 4, []int{2, 2, 2}},
		{6, 8, []int{3, 3}},
		{12, 8, []int{3, 3, 3, 3}},
		{5, 8, []int{2, 3}},
		{2, 2, []int{2, 2, 2, 2}},
		{1, 8, []int{1}},
		{0, 0, []int{2, 2, 2, 2}},
	}
	for _, c := range cases {
		t.Run(fmt.Sprintf("%d/%d", c.num, c.denom), func(t *testing.T) {
			assert.Equal(t, c.want, measureGroupings(c.num, c.denom))
		})
	}
}

func TestKeyboardFollowsLastHeldKey(t *testing.T) {
	type change struct {
		pitch  float64
		voiced bool
	}
	var got []change
	k := newKeyboard(func(pitch float64, voiced bool) { got = append(got, change{pitch, voiced}) })

	k.press(60)
	k.press(64)
	k.release(64)
	k.release(61)
	k.release(60)

	assert.Equal(t, []change{{60, true}, {64, true}, {60, true}, {0, false}}, got)
	_, voiced := k.Current()
	assert.False(t, voiced)
}
