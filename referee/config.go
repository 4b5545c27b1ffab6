package referee

import (
	"log/slog"

	"github.com/jsphweid/harmondrill/beatwindow"
	"github.com/jsphweid/harmondrill/chart"
	"github.com/jsphweid/harmondrill/conductor"
	"github.com/jsphweid/harmondrill/gate"
	"github.com/jsphweid/harmondrill/judge"
	"github.com/jsphweid/harmondrill/scheduler"
	"github.com/jsphweid/harmondrill/util"
)

// Config holds the options of every component a Referee owns. Zero numeric
// fields fall back to the component defaults.
type Config struct {
	Conductor    conductor.Options  `json:"conductor" yaml:"conductor"`
	Scheduler    scheduler.Options  `json:"scheduler" yaml:"scheduler"`
	ChartAdapter chart.Options      `json:"chartAdapter" yaml:"chartAdapter"`
	BeatWindow   beatwindow.Options `json:"beatWindow" yaml:"beatWindow"`
	Judge        judge.Options      `json:"judge" yaml:"judge"`
	Gate         gate.Options       `json:"gate" yaml:"gate"`

	// Driver defaults to a ticker at Scheduler.TickIntervalMs.
	Driver FrameDriver  `json:"-" yaml:"-"`
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		Conductor:    conductor.DefaultOptions(),
		Scheduler:    scheduler.DefaultOptions(),
		ChartAdapter: chart.DefaultOptions(),
		BeatWindow:   beatwindow.DefaultOptions(),
		Judge:        judge.DefaultOptions(),
		Gate:         gate.DefaultOptions(),
	}
}

// LoadConfig reads a YAML or JSON file over DefaultConfig.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := util.LoadFile(path, &cfg); err != nil {
		return DefaultConfig(), err
	}
	return cfg, nil
}
