package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jsphweid/harmondrill/constants"
	"github.com/jsphweid/harmondrill/db"
	"github.com/jsphweid/harmondrill/util"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report [id...]",
	Short: "Reports what the chart table holds",
	Long: `Prints the catalogue entry of every id given, or of every chart file under
CHART_PATH when none are.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := args
		if len(ids) == 0 {
			paths, err := util.GatherChartPaths(constants.GetChartDir(), 0)
			if err != nil {
				return err
			}
			for _, p := range paths {
				base := filepath.Base(p)
				ids = append(ids, strings.TrimSuffix(base, filepath.Ext(base)))
			}
		}

		store, err := db.NewChartStore()
		if err != nil {
			return err
		}
		metas, err := store.GetChartMetadatas(cmd.Context(), ids)
		if err != nil {
			return err
		}

		for _, id := range ids {
			m, ok := metas[id]
			if !ok {
				fmt.Printf("%-24s missing\n", id)
				continue
			}
			fmt.Printf("%-24s %-32s %6.1f bpm", id, m.Title, m.Tempo)
			if m.Composer != "" {
				fmt.Printf("  %s", m.Composer)
			}
			if m.Year != 0 {
				fmt.Printf(" (%d)", m.Year)
			}
			fmt.Println()
		}
		fmt.Printf("%d of %d charts stored\n", len(metas), len(ids))
		return nil
	},
}
