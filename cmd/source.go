package cmd

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/jsphweid/harmondrill/chart"
	"github.com/jsphweid/harmondrill/db"
	"github.com/jsphweid/harmondrill/midi"
	"github.com/jsphweid/harmondrill/model"
	"github.com/jsphweid/harmondrill/referee"
	"github.com/jsphweid/harmondrill/util"
	"github.com/pkg/errors"
)

const dynamoPrefix = "dynamo:"

// chartSource picks a source for a chart reference: "dynamo:<id>" reads the
// chart table, .mid/.midi files are read as Standard MIDI Files and anything
// else as a JSON or YAML snapshot.
func chartSource(ref string) (referee.ChartSource, error) {
	if id, ok := strings.CutPrefix(ref, dynamoPrefix); ok {
		if id == "" {
			return nil, errors.New("missing chart id after " + dynamoPrefix)
		}
		store, err := db.NewChartStore()
		if err != nil {
			return nil, err
		}
		return store.Chart(id), nil
	}
	if !util.IsChartFile(ref) {
		return nil, errors.Errorf("%s is not a chart file", ref)
	}
	switch strings.ToLower(filepath.Ext(ref)) {
	case ".mid", ".midi":
		return midi.FileSource{Path: ref}, nil
	default:
		return chart.FileSource{Path: ref}, nil
	}
}

func fetchSnapshot(ctx context.Context, ref string) (model.Snapshot, error) {
	src, err := chartSource(ref)
	if err != nil {
		return model.Snapshot{}, err
	}
	return src.FetchSnapshot(ctx)
}
