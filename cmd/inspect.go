package cmd

import (
	"fmt"
	"time"

	"github.com/hako/durafmt"
	"github.com/jsphweid/harmondrill/chart"
	"github.com/jsphweid/harmondrill/model"
	"github.com/spf13/cobra"
)

var shortUnits, _ = durafmt.DefaultUnitsCoder.Decode("y:yrs,wk:wks,d:d,h:h,m:m,s:s,ms:ms,us:us")

var inspectNotes bool

func init() {
	inspectCmd.Flags().BoolVar(&inspectNotes, "notes", false, "list every note")
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <chart>",
	Short: "Inspects a chart",
	Long: `Loads a chart the way a session would and prints its timing.
<chart> is a .json/.yaml snapshot, a .mid file or dynamo:<id>.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		snap, err := fetchSnapshot(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		data, err := chart.NewAdapter(cfg.ChartAdapter).LoadSnapshot(snap)
		if err != nil {
			return err
		}
		inspect(data, inspectNotes)
		return nil
	},
}

func formatMs(ms model.SessionTimeMs) string {
	if ms < 1 {
		return "0s"
	}
	return durafmt.Parse(ms.Duration().Round(time.Millisecond)).LimitFirstN(2).Format(shortUnits)
}

func inspect(data *model.ChartData, notes bool) {
	measures := 0
	for _, b := range data.Beats {
		if b.IsMeasureStart {
			measures++
		}
	}

	fmt.Printf("id:       %s\n", data.ID)
	fmt.Printf("title:    %s\n", data.Title)
	fmt.Printf("tempo:    %v bpm\n", data.Tempo)
	fmt.Printf("duration: %s\n", formatMs(data.TotalDurationMs))
	fmt.Printf("beats:    %d microbeats in %d measures\n", len(data.Beats), measures)
	fmt.Printf("range:    %s to %s\n", chart.PitchName(data.MinPitch), chart.PitchName(data.MaxPitch))
	for _, t := range data.TonicIndicators {
		fmt.Printf("tonic:    %s at %s\n", t.Tonic, formatMs(t.TimeMs))
	}

	perVoice := make(map[string]int)
	for _, n := range data.Notes {
		perVoice[n.VoiceID]++
	}
	for _, v := range data.VoiceIDs {
		fmt.Printf("voice %s: %d notes\n", v, perVoice[v])
	}

	if !notes {
		return
	}
	for _, n := range data.Notes {
		short := ""
		if n.IsShortNote {
			short = " (short)"
		}
		fmt.Printf("  %-10s %-4s %-4s %8.0fms %8.0fms%s\n", n.ID, n.VoiceID, n.PitchName, float64(n.StartTimeMs), float64(n.DurationMs), short)
	}
}
