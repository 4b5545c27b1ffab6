package cmd

import (
	"log/slog"
	"os"

	"github.com/jsphweid/harmondrill/constants"
	"github.com/jsphweid/harmondrill/referee"
	"github.com/spf13/cobra"
)

var (
	debug      bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "harmondrill",
	Short: "Real-time sight-singing practice sessions",
	Long: `harmondrill runs practice sessions over a chart: it keeps the session clock,
judges every note sung against the chart and can hold the chart until the
singer is back on pitch.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger(debug)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", constants.GetConfigPath(), "session config file (yaml or json)")
}

func initLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})))
}

// loadConfig returns the defaults when no config file is set.
func loadConfig() (referee.Config, error) {
	if configPath == "" {
		return referee.DefaultConfig(), nil
	}
	return referee.LoadConfig(configPath)
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}
