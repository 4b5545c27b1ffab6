package judge

import (
	"math"
	"testing"

	"github.com/jsphweid/harmondrill/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func longNote(start, end model.SessionTimeMs) model.TimedNote {
	return model.TimedNote{ID: "n1", VoiceID: "v1", MidiPitch: 60, StartTimeMs: start, EndTimeMs: end, DurationMs: end - start}
}

func feed(j *Judge, from, to model.SessionTimeMs, pitch float64, voiced bool) {
	for t := from; t <= to; t += 50 {
		j.AddPitchSample(model.PitchSample{TimeMs: t, MidiPitch: pitch, Clarity: 0.9, IsVoiced: voiced})
	}
}

func TestSampleInTolerance(t *testing.T) {
	j := New(DefaultOptions())
	note := longNote(0, 1000)
	short := note
	short.IsShortNote = true

	cases := []struct {
		name   string
		note   model.TimedNote
		sample model.PitchSample
		want   bool
	}{
		{"inside", note, model.PitchSample{MidiPitch: 60.49, Clarity: 0.9, IsVoiced: true}, true},
		{"outside", note, model.PitchSample{MidiPitch: 60.51, Clarity: 0.9, IsVoiced: true}, false},
		{"flat inside", note, model.PitchSample{MidiPitch: 59.6, Clarity: 0.9, IsVoiced: true}, true},
		{"unclear", note, model.PitchSample{MidiPitch: 60, Clarity: 0.5, IsVoiced: true}, false},
		{"unvoiced", note, model.PitchSample{MidiPitch: 60, Clarity: 0.9}, false},
		{"short note is wider", short, model.PitchSample{MidiPitch: 60.7, Clarity: 0.9, IsVoiced: true}, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, j.SampleInTolerance(c.note, c.sample), c.name)
	}
}

func TestCleanNote(t *testing.T) {
	j := New(DefaultOptions())
	j.StartJudgingNote(longNote(0, 1000))
	feed(j, 0, 1000, 60, true)
	assert.True(t, j.IsInTolerance("n1"))
	feed(j, 1050, 1100, 0, false)

	res, ok := j.StopJudgingNote("n1")
	require.True(t, ok)

	assert := assert.New(t)
	assert.True(res.OnsetSuccess)
	require.NotNil(t, res.OnsetTimingErrorMs)
	assert.Equal(float64(0), *res.OnsetTimingErrorMs)
	assert.Equal(float64(100), res.ContinuousAccuracy)
	assert.Equal(21, res.RawSampleCount)
	assert.Equal(21, res.FilteredSampleCount)
	assert.True(res.ReleaseVoiced)
	assert.True(res.ReleaseTimely)
	assert.True(res.ReleaseSuccess)
	require.NotNil(t, res.ReleaseTimingErrorMs)
	assert.Equal(float64(50), *res.ReleaseTimingErrorMs)
	assert.True(res.SustainedThrough)
	assert.Equal(float64(0), res.AverageDeviationCents)
	assert.False(j.IsJudging("n1"))
}

func TestLateOnsetCleanRelease(t *testing.T) {
	j := New(DefaultOptions())
	j.StartJudgingNote(longNote(0, 1000))
	feed(j, 0, 250, 0, false)
	feed(j, 300, 1000, 60, true)
	feed(j, 1050, 1050, 0, false)

	res, _ := j.StopJudgingNote("n1")

	assert := assert.New(t)
	assert.False(res.OnsetVoiced)
	assert.False(res.OnsetSuccess)
	assert.Nil(res.OnsetTimingErrorMs)
	assert.True(res.ReleaseSuccess)
	assert.False(res.SustainedThrough)
	assert.InDelta(15.0/21.0*100, res.ContinuousAccuracy, 1e-9)
	assert.Equal(21, res.RawSampleCount)
	assert.Equal(15, res.FilteredSampleCount)
}

func TestEarlySamplesCountTowardOnset(t *testing.T) {
	j := New(DefaultOptions())
	feed(j, 400, 450, 60, true)
	j.StartJudgingNote(longNote(500, 1500))
	feed(j, 500, 600, 60, true)

	res, _ := j.StopJudgingNote("n1")
	require.NotNil(t, res.OnsetTimingErrorMs)
	assert.Equal(t, float64(-100), *res.OnsetTimingErrorMs)
	assert.True(t, res.OnsetSuccess)
	// pre-roll samples are outside the note window
	assert.Equal(t, 3, res.RawSampleCount)
}

func TestOutOfTuneOnsetUsesFirstVoicedSample(t *testing.T) {
	j := New(DefaultOptions())
	j.StartJudgingNote(longNote(0, 1000))
	feed(j, 50, 100, 61, true)

	res, _ := j.StopJudgingNote("n1")
	assert := assert.New(t)
	assert.True(res.OnsetVoiced)
	assert.False(res.OnsetInTolerance)
	assert.False(res.OnsetSuccess)
	require.NotNil(t, res.OnsetTimingErrorMs)
	assert.Equal(float64(50), *res.OnsetTimingErrorMs)
	assert.Equal(float64(100), res.AverageDeviationCents)
}

func TestGapBreaksSustain(t *testing.T) {
	j := New(DefaultOptions())
	j.StartJudgingNote(longNote(0, 1000))
	feed(j, 0, 400, 60, true)
	feed(j, 450, 650, 0, false)
	feed(j, 700, 1000, 60, true)
	feed(j, 1050, 1050, 0, false)

	res, _ := j.StopJudgingNote("n1")
	assert.True(t, res.OnsetSuccess)
	assert.True(t, res.ReleaseSuccess)
	assert.False(t, res.SustainedThrough)
}

func TestShortGapIsDebounced(t *testing.T) {
	j := New(DefaultOptions())
	j.StartJudgingNote(longNote(0, 1000))
	feed(j, 0, 400, 60, true)
	feed(j, 450, 450, 0, false)
	feed(j, 500, 1000, 60, true)

	res, _ := j.StopJudgingNote("n1")
	assert.True(t, res.SustainedThrough)
}

func TestOffPitchRelease(t *testing.T) {
	j := New(DefaultOptions())
	j.StartJudgingNote(longNote(0, 1000))
	feed(j, 0, 900, 60, true)
	feed(j, 950, 1000, 61, true)
	feed(j, 1050, 1050, 0, false)

	res, _ := j.StopJudgingNote("n1")
	assert.True(t, res.ReleaseTimely)
	assert.False(t, res.ReleaseSuccess)
	assert.True(t, res.OnsetSuccess)
}

func TestEarlyRelease(t *testing.T) {
	j := New(DefaultOptions())
	j.StartJudgingNote(longNote(0, 1000))
	feed(j, 0, 500, 60, true)
	feed(j, 550, 1000, 0, false)

	res, _ := j.StopJudgingNote("n1")
	assert.False(t, res.ReleaseTimely)
	assert.False(t, res.ReleaseSuccess)
	require.NotNil(t, res.ReleaseTimingErrorMs)
	assert.Equal(t, float64(-450), *res.ReleaseTimingErrorMs)
}

func TestOnsetAndReleaseAreIndependent(t *testing.T) {
	type span struct {
		from, to model.SessionTimeMs
		voiced   bool
	}
	cases := []struct {
		name        string
		input       []span
		wantOnset   bool
		wantRelease bool
		wantAcc     float64
	}{
		{"late onset clean release", []span{{0, 250, false}, {300, 1000, true}, {1050, 1050, false}}, false, true, 15.0 / 21.0 * 100},
		{"clean onset early release", []span{{0, 500, true}, {550, 1050, false}}, true, false, 11.0 / 21.0 * 100},
		{"silent at both ends", []span{{0, 250, false}, {300, 700, true}, {750, 1050, false}}, false, false, 9.0 / 21.0 * 100},
	}
	for _, c := range cases {
		j := New(DefaultOptions())
		j.StartJudgingNote(longNote(0, 1000))
		for _, sp := range c.input {
			feed(j, sp.from, sp.to, 60, sp.voiced)
		}
		res, ok := j.StopJudgingNote("n1")
		require.True(t, ok, c.name)
		assert.Equal(t, c.wantOnset, res.OnsetSuccess, c.name)
		assert.Equal(t, c.wantRelease, res.ReleaseSuccess, c.name)
		assert.InDelta(t, c.wantAcc, res.ContinuousAccuracy, 1e-9, c.name)
	}
}

func TestHistoryAfterTimeGoesBack(t *testing.T) {
	j := New(DefaultOptions())
	feed(j, 2200, 2350, 62, true)
	// session time jumped back, the later samples are no longer history
	feed(j, 1400, 1450, 0, false)

	note := longNote(1500, 2500)
	note.MidiPitch = 62
	j.StartJudgingNote(note)
	res, _ := j.StopJudgingNote("n1")

	assert := assert.New(t)
	assert.Equal(0, res.RawSampleCount)
	assert.Equal(float64(0), res.ContinuousAccuracy)
	assert.False(res.ReleaseVoiced)
}

func TestForgetSamples(t *testing.T) {
	j := New(DefaultOptions())
	feed(j, 400, 450, 60, true)
	j.ForgetSamples()
	j.StartJudgingNote(longNote(500, 1500))

	res, _ := j.StopJudgingNote("n1")
	assert.False(t, res.OnsetVoiced)
	assert.Nil(t, res.OnsetTimingErrorMs)
}

func TestSilentNote(t *testing.T) {
	j := New(DefaultOptions())
	j.StartJudgingNote(longNote(0, 1000))

	res, ok := j.StopJudgingNote("n1")
	require.True(t, ok)
	assert.Equal(t, float64(0), res.ContinuousAccuracy)
	assert.Nil(t, res.OnsetTimingErrorMs)
	assert.Nil(t, res.ReleaseTimingErrorMs)
	assert.False(t, res.SustainedThrough)
}

func TestNonFiniteSamplesAreUnvoiced(t *testing.T) {
	j := New(DefaultOptions())
	j.StartJudgingNote(longNote(0, 1000))
	j.AddPitchSample(model.PitchSample{TimeMs: 0, MidiPitch: math.NaN(), Clarity: math.Inf(1), IsVoiced: true})

	res, _ := j.StopJudgingNote("n1")
	assert.False(t, res.OnsetVoiced)
	assert.Equal(t, 1, res.RawSampleCount)
	assert.Equal(t, 0, res.FilteredSampleCount)
}

func TestResultsAreRecordedAndPublished(t *testing.T) {
	j := New(DefaultOptions())
	var got []model.JudgmentResult
	j.SubscribeToJudgment(func(r model.JudgmentResult) { panic("bad listener") })
	j.SubscribeToJudgment(func(r model.JudgmentResult) { got = append(got, r) })

	j.StartJudgingNote(longNote(0, 1000))
	j.StartJudgingNote(longNote(0, 1000))
	assert.Equal(t, []string{"n1"}, j.JudgingNoteIDs())

	_, ok := j.StopJudgingNote("n1")
	assert.True(t, ok)
	_, ok = j.StopJudgingNote("n1")
	assert.False(t, ok)

	assert.Len(t, got, 1)
	assert.Len(t, j.GetCompletedJudgments(), 1)
	j.ClearJudgments()
	assert.Empty(t, j.GetCompletedJudgments())
}

func TestResetDiscardsOpenNotes(t *testing.T) {
	j := New(DefaultOptions())
	var got int
	j.SubscribeToJudgment(func(model.JudgmentResult) { got++ })

	j.StartJudgingNote(longNote(0, 1000))
	j.Reset()
	_, ok := j.StopJudgingNote("n1")

	assert.False(t, ok)
	assert.Zero(t, got)
	assert.Empty(t, j.JudgingNoteIDs())
}
