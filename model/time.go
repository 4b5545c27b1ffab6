package model

import (
	"math"
	"time"
)

// SessionTimeMs is a time in milliseconds relative to session start.
type SessionTimeMs float64

// AudioTimeSec is a time in seconds read from an audio clock. It is never
// interchangeable with SessionTimeMs without an explicit conversion.
type AudioTimeSec float64

// ScheduledEventID identifies an event registered with the scheduler.
type ScheduledEventID uint64

// Duration converts ms to a time.Duration.
func (ms SessionTimeMs) Duration() time.Duration {
	return time.Duration(float64(ms) * float64(time.Millisecond))
}

// Sanitize clamps non-finite and negative values. NaN and negative times
// become 0; +Inf is kept so that it never becomes due.
func (ms SessionTimeMs) Sanitize() SessionTimeMs {
	f := float64(ms)
	if math.IsNaN(f) || f < 0 {
		return 0
	}
	return ms
}

// Ms converts an audio clock reading to milliseconds.
func (s AudioTimeSec) Ms() float64 {
	return float64(s) * 1000
}
