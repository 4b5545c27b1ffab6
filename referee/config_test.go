package referee

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jsphweid/harmondrill/conductor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "referee.yaml")
	content := `
conductor:
  mode: audio
judge:
  defaultToleranceCents: 30
gate:
  enabled: false
  gracePeriodMs: 800
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal(conductor.AudioLed, cfg.Conductor.Mode)
	assert.Equal(float64(30), cfg.Judge.DefaultToleranceCents)
	assert.Equal(float64(75), cfg.Judge.ShortNoteToleranceCents)
	assert.Equal(float64(150), cfg.Judge.OnsetWindowMs)
	require.NotNil(t, cfg.Gate.Enabled)
	assert.False(*cfg.Gate.Enabled)
	assert.Equal(float64(800), cfg.Gate.GracePeriodMs)
	assert.Equal(float64(200), cfg.Gate.ResumeAfterMs)
	assert.Equal(float64(16), cfg.Scheduler.TickIntervalMs)
	assert.Equal(float64(90), cfg.ChartAdapter.DefaultTempo)
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
	assert.Equal(t, DefaultConfig().Judge, cfg.Judge)
}

func TestZeroConfigUsesDefaults(t *testing.T) {
	r := New(Config{Driver: &ManualDriver{}})
	defer r.Dispose()

	assert.Equal(t, float64(16), r.scheduler.TickIntervalMs())
	assert.Equal(t, float64(50), r.judge.Options().DefaultToleranceCents)
	assert.True(t, r.gate.IsEnabled())
}
