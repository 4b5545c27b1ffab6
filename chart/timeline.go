package chart

import (
	"math"
	"sort"

	"github.com/jsphweid/harmondrill/constants"
	"github.com/jsphweid/harmondrill/model"
)

type segment struct {
	startMicrobeat float64
	startMs        float64
	msPerMicrobeat float64
}

// timeline maps microbeat positions to milliseconds, piecewise linear
// between tempo modulation markers.
type timeline struct {
	segments []segment
}

func newTimeline(tempo float64, mods []model.TempoModulation) (timeline, error) {
	sorted := make([]model.TempoModulation, len(mods))
	copy(sorted, mods)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Microbeat < sorted[j].Microbeat
	})

	tl := timeline{segments: []segment{{msPerMicrobeat: constants.MsPerMicrobeat(tempo)}}}
	for i, m := range sorted {
		if !(m.Ratio > 0) || math.IsInf(m.Ratio, 0) {
			return timeline{}, loadError(ErrInvalidModulation, "modulation %d has ratio %v", i, m.Ratio)
		}
		if m.Microbeat < 0 || math.IsNaN(m.Microbeat) || math.IsInf(m.Microbeat, 0) {
			return timeline{}, loadError(ErrInvalidModulation, "modulation %d at microbeat %v", i, m.Microbeat)
		}
		prev := tl.segments[len(tl.segments)-1]
		tl.segments = append(tl.segments, segment{
			startMicrobeat: m.Microbeat,
			startMs:        prev.startMs + (m.Microbeat-prev.startMicrobeat)*prev.msPerMicrobeat,
			msPerMicrobeat: prev.msPerMicrobeat * m.Ratio,
		})
	}
	return tl, nil
}

func (tl timeline) timeAt(microbeat float64) model.SessionTimeMs {
	if microbeat < 0 {
		microbeat = 0
	}
	seg := tl.segments[0]
	for _, s := range tl.segments[1:] {
		if s.startMicrobeat > microbeat {
			break
		}
		seg = s
	}
	return model.SessionTimeMs(seg.startMs + (microbeat-seg.startMicrobeat)*seg.msPerMicrobeat)
}
