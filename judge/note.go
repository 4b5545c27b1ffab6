package judge

import (
	"math"

	"github.com/jsphweid/harmondrill/model"
)

// noteState accumulates everything needed to score one note. Onset and
// release are tracked independently so a late start never spoils a clean
// release.
type noteState struct {
	note model.TimedNote

	raw, filtered, inTolerance int
	voiced                     int
	deviationSum               float64

	onsetVoiced       bool
	onsetInTolerance  bool
	firstInTolerance  *float64
	firstVoicedOnset  *float64
	sustainStarted    bool
	sustainBroken     bool
	lastVoicedMs      *model.SessionTimeMs
	lastVoicedInTol   bool
	silenceStartMs    *model.SessionTimeMs
	silencePriorInTol bool
	releaseVoiced     bool

	lastInTolerance bool
}

func (st *noteState) add(s model.PitchSample, inTol bool, opts Options) {
	t := s.TimeMs
	start, end := st.note.StartTimeMs, st.note.EndTimeMs
	st.lastInTolerance = inTol

	if t >= start && t <= end {
		st.raw++
		if s.IsVoiced && s.Clarity >= opts.MinClarityThreshold {
			st.filtered++
		}
		if inTol {
			st.inTolerance++
		}
		if s.IsVoiced {
			st.voiced++
			st.deviationSum += math.Abs(s.MidiPitch-st.note.MidiPitch) * 100
		}
	}

	inOnset := math.Abs(float64(t-start)) <= opts.OnsetWindowMs
	if inOnset && s.IsVoiced {
		st.onsetVoiced = true
		if st.firstVoicedOnset == nil {
			st.firstVoicedOnset = ptr(float64(t - start))
		}
	}
	if inOnset && inTol {
		st.onsetInTolerance = true
		if st.firstInTolerance == nil {
			st.firstInTolerance = ptr(float64(t - start))
		}
	}

	if !s.IsVoiced {
		if st.lastVoicedMs != nil && st.silenceStartMs == nil {
			st.silenceStartMs = ptr(t)
			st.silencePriorInTol = st.lastVoicedInTol
		}
		return
	}

	if st.sustainStarted && st.lastVoicedMs != nil && float64(t-*st.lastVoicedMs) > opts.SustainDebounceMs {
		st.sustainBroken = true
	}
	st.silenceStartMs = nil
	st.lastVoicedMs = ptr(t)
	st.lastVoicedInTol = inTol
	if inOnset && inTol {
		st.sustainStarted = true
	}
	if math.Abs(float64(t-end)) <= opts.ReleaseWindowMs {
		st.releaseVoiced = true
	}
}

func (st *noteState) result(opts Options) model.JudgmentResult {
	n := st.note
	res := model.JudgmentResult{
		NoteID:              n.ID,
		VoiceID:             n.VoiceID,
		MidiPitch:           n.MidiPitch,
		OnsetVoiced:         st.onsetVoiced,
		OnsetInTolerance:    st.onsetInTolerance,
		OnsetSuccess:        st.onsetVoiced && st.onsetInTolerance,
		ReleaseVoiced:       st.releaseVoiced,
		RawSampleCount:      st.raw,
		FilteredSampleCount: st.filtered,
		StartTimeMs:         n.StartTimeMs,
		EndTimeMs:           n.EndTimeMs,
	}
	if st.raw > 0 {
		res.ContinuousAccuracy = float64(st.inTolerance) / float64(st.raw) * 100
	}
	if st.voiced > 0 {
		res.AverageDeviationCents = st.deviationSum / float64(st.voiced)
	}

	res.OnsetTimingErrorMs = st.firstInTolerance
	if res.OnsetTimingErrorMs == nil {
		res.OnsetTimingErrorMs = st.firstVoicedOnset
	}

	// release is where voicing stopped, or the last voiced sample when the
	// learner kept singing past the end
	var releaseAt *model.SessionTimeMs
	priorInTol := false
	switch {
	case st.silenceStartMs != nil:
		releaseAt, priorInTol = st.silenceStartMs, st.silencePriorInTol
	case st.lastVoicedMs != nil:
		releaseAt, priorInTol = st.lastVoicedMs, st.lastVoicedInTol
	}
	if releaseAt != nil {
		offset := float64(*releaseAt - n.EndTimeMs)
		res.ReleaseTimingErrorMs = ptr(offset)
		res.ReleaseTimely = math.Abs(offset) <= opts.ReleaseWindowMs
		res.ReleaseSuccess = res.ReleaseTimely && priorInTol
		res.SustainedThrough = res.OnsetSuccess && st.sustainStarted && !st.sustainBroken &&
			float64(*releaseAt) >= float64(n.EndTimeMs)-opts.ReleaseWindowMs
	}
	return res
}

func ptr[T any](v T) *T {
	return &v
}
