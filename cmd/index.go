package cmd

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/jsphweid/harmondrill/chart"
	"github.com/jsphweid/harmondrill/constants"
	"github.com/jsphweid/harmondrill/db"
	"github.com/jsphweid/harmondrill/model"
	"github.com/jsphweid/harmondrill/util"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(indexCmd)
}

var indexCmd = &cobra.Command{
	Use:   "index [maxNum]",
	Short: "Stores the charts under CHART_PATH in the chart table",
	Long: `Reads every chart file under CHART_PATH, checks that it loads and stores it
in the chart table so sessions can load it as dynamo:<id>.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var maxNum int
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Wrap(err, "maxNum must be a number")
			}
			maxNum = n
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := db.NewChartStore()
		if err != nil {
			return err
		}
		paths, err := util.GatherChartPaths(constants.GetChartDir(), maxNum)
		if err != nil {
			return err
		}
		stored := index(cmd.Context(), store, chart.NewAdapter(cfg.ChartAdapter), paths)
		slog.Info("indexed charts", "stored", stored, "found", len(paths))
		return nil
	},
}

// index stores every chart in paths that loads, skipping the rest.
func index(ctx context.Context, store *db.ChartStore, adapter *chart.Adapter, paths []string) int {
	stored := 0
	for _, path := range paths {
		snap, err := fetchSnapshot(ctx, path)
		if err != nil {
			slog.Warn("skipping chart", "path", path, "error", err)
			continue
		}
		if _, err := adapter.LoadSnapshot(snap); err != nil {
			slog.Warn("skipping chart", "path", path, "error", err)
			continue
		}
		if err := store.PutSnapshot(ctx, snap, model.ChartMetadata{}); err != nil {
			slog.Error("could not store chart", "path", path, "error", err)
			continue
		}
		stored++
	}
	return stored
}
