package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGracePeriod(t *testing.T) {
	g := New(DefaultOptions())
	g.ReportAccuracy(false, 0)

	assert := assert.New(t)
	assert.False(g.CheckGate(499).ShouldPause)
	assert.Equal(float64(1), g.GracePeriodRemainingMs(499))

	d := g.CheckGate(500)
	assert.True(d.ShouldPause)
	assert.True(g.IsGated())
	assert.Equal(float64(0), g.GracePeriodRemainingMs(500))

	// already gated, no second pause
	assert.False(g.CheckGate(600).ShouldPause)
}

func TestAccuracyResetsStreak(t *testing.T) {
	g := New(DefaultOptions())
	g.ReportAccuracy(false, 0)
	g.ReportAccuracy(true, 300)
	g.ReportAccuracy(false, 400)

	assert := assert.New(t)
	assert.False(g.CheckGate(600).ShouldPause)
	st := g.GetState(600)
	require.NotNil(t, st.InaccuracyStartMs)
	assert.Equal(float64(400), *st.InaccuracyStartMs)
	assert.Equal(float64(300), st.GracePeriodRemainingMs)
	assert.True(g.CheckGate(900).ShouldPause)
}

func TestNoStreakNoPause(t *testing.T) {
	g := New(DefaultOptions())
	g.ReportAccuracy(true, 0)

	assert.False(t, g.CheckGate(10_000).ShouldPause)
	st := g.GetState(10_000)
	assert.Nil(t, st.InaccuracyStartMs)
	assert.Equal(t, float64(500), st.GracePeriodRemainingMs)
}

func TestResumeNeedsSustainedAccuracy(t *testing.T) {
	g := New(DefaultOptions())
	g.ReportAccuracy(false, 0)
	require.True(t, g.CheckGate(500).ShouldPause)

	assert := assert.New(t)
	g.ReportAccuracy(true, 600)
	assert.False(g.CheckGate(700).ShouldResume)

	g.ReportAccuracy(false, 750)
	g.ReportAccuracy(true, 800)
	assert.False(g.CheckGate(900).ShouldResume)

	d := g.CheckGate(1000)
	assert.True(d.ShouldResume)
	assert.False(g.IsGated())
	assert.Nil(g.GetState(1000).InaccuracyStartMs)
}

func TestImmediateResume(t *testing.T) {
	opts := DefaultOptions()
	opts.ResumeAfterMs = 0
	g := New(opts)
	g.ReportAccuracy(false, 0)
	require.True(t, g.CheckGate(500).ShouldPause)

	g.ReportAccuracy(true, 510)
	assert.True(t, g.CheckGate(510).ShouldResume)
}

func TestDisabledGate(t *testing.T) {
	off := false
	g := New(Options{Enabled: &off})
	g.ReportAccuracy(false, 0)

	assert := assert.New(t)
	assert.False(g.IsEnabled())
	assert.False(g.CheckGate(5000).ShouldPause)

	g.SetEnabled(true)
	g.ReportAccuracy(false, 5000)
	assert.True(g.CheckGate(5500).ShouldPause)

	g.SetEnabled(false)
	assert.True(g.CheckGate(5600).ShouldResume)
	assert.False(g.IsGated())
}

func TestRestartReanchorsStreak(t *testing.T) {
	g := New(DefaultOptions())
	g.ReportAccuracy(false, 0)
	g.Restart(5000)

	assert := assert.New(t)
	assert.False(g.CheckGate(5100).ShouldPause)
	assert.Equal(float64(400), g.GracePeriodRemainingMs(5100))
	assert.True(g.CheckGate(5500).ShouldPause)

	// no streak, nothing to move
	fresh := New(DefaultOptions())
	fresh.Restart(5000)
	assert.Nil(fresh.GetState(5000).InaccuracyStartMs)
}

func TestReset(t *testing.T) {
	g := New(DefaultOptions())
	g.ReportAccuracy(false, 0)
	g.CheckGate(500)
	g.Reset()

	assert.False(t, g.IsGated())
	assert.Nil(t, g.GetState(0).InaccuracyStartMs)
	assert.False(t, g.CheckGate(10_000).ShouldPause)
}
