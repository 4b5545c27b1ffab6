package util

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadFile decodes a YAML or JSON file into v. Unknown extensions try YAML
// first, then JSON.
func LoadFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read file %s", path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return errors.Wrap(err, "failed to parse JSON")
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return errors.Wrap(err, "failed to parse YAML")
		}
	default:
		if err := yaml.Unmarshal(data, v); err != nil {
			if err := json.Unmarshal(data, v); err != nil {
				return errors.Wrap(err, "failed to parse file (tried YAML and JSON)")
			}
		}
	}
	return nil
}
