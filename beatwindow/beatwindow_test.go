package beatwindow

import (
	"testing"

	"github.com/jsphweid/harmondrill/model"
	"github.com/stretchr/testify/assert"
)

func beatsEvery(step model.SessionTimeMs, n int) []model.TimedBeat {
	var res []model.TimedBeat
	for i := 0; i < n; i++ {
		res = append(res, model.TimedBeat{Index: i, TimeMs: step * model.SessionTimeMs(i), IsMacrobeat: i%2 == 0})
	}
	return res
}

func kinds(evs []model.BeatEvent) []string {
	var res []string
	for _, ev := range evs {
		res = append(res, string(ev.Kind)+"@"+string(rune('0'+ev.Beat.Index)))
	}
	return res
}

func TestEarlyAndOnBeatNotifications(t *testing.T) {
	w := New(DefaultOptions())
	w.SetBeats(beatsEvery(250, 4))

	assert := assert.New(t)
	assert.Equal([]string{"onBeat@0"}, kinds(w.Tick(0)))
	assert.Empty(w.Tick(0))

	evs := w.Tick(200)
	assert.Equal([]string{"early@1"}, kinds(evs))
	assert.True(evs[0].InEarlyWindow)
	assert.True(w.InEarlyWindow())
	assert.False(w.InLateWindow())

	evs = w.Tick(250)
	assert.Equal([]string{"onBeat@1"}, kinds(evs))
	assert.False(evs[0].InLateWindow)

	assert.Empty(w.Tick(260))
	assert.True(w.InLateWindow())
	assert.False(w.InEarlyWindow())
}

func TestOneOnBeatPerTick(t *testing.T) {
	w := New(DefaultOptions())
	w.SetBeats(beatsEvery(100, 3))
	w.Tick(0)

	evs := w.Tick(210)
	assert := assert.New(t)
	assert.Equal([]string{"onBeat@2"}, kinds(evs))
	assert.True(evs[0].InLateWindow)
}

func TestStaleBeatsAreSkipped(t *testing.T) {
	w := New(DefaultOptions())
	w.SetBeats(beatsEvery(250, 4))
	w.Tick(0)
	assert.Empty(t, w.Tick(1000))
}

func TestResetReplaysFromStart(t *testing.T) {
	w := New(DefaultOptions())
	w.SetBeats(beatsEvery(250, 4))
	w.Tick(0)
	w.Tick(250)

	w.Reset()
	assert.Equal(t, []string{"onBeat@0"}, kinds(w.Tick(0)))
}

func TestSeek(t *testing.T) {
	w := New(DefaultOptions())
	w.SetBeats(beatsEvery(250, 4))
	w.Tick(0)

	w.Seek(500)
	assert.Equal(t, []string{"onBeat@2"}, kinds(w.Tick(500)))

	w.Seek(0)
	assert.Equal(t, []string{"onBeat@0"}, kinds(w.Tick(0)))
}

func TestSubscribersAreIsolated(t *testing.T) {
	w := New(DefaultOptions())
	w.SetBeats(beatsEvery(250, 2))

	var got []model.BeatEvent
	w.SubscribeToBeat(func(ev model.BeatEvent) { panic("bad listener") })
	unsubscribe := w.SubscribeToBeat(func(ev model.BeatEvent) { got = append(got, ev) })

	assert.NotPanics(t, func() { w.Tick(0) })
	assert.Len(t, got, 1)

	unsubscribe()
	w.Tick(250)
	assert.Len(t, got, 1)
}
