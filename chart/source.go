package chart

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/jsphweid/harmondrill/model"
	"github.com/jsphweid/harmondrill/util"
)

// FileSource reads a JSON or YAML snapshot from disk.
type FileSource struct {
	Path string
}

func (f FileSource) FetchSnapshot(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot
	if err := ctx.Err(); err != nil {
		return snap, err
	}
	if err := util.LoadFile(f.Path, &snap); err != nil {
		return model.Snapshot{}, err
	}
	if snap.ID == "" {
		base := filepath.Base(f.Path)
		snap.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return snap, nil
}
