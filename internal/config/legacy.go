package config

import (
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ImportLegacy reads the data.json written by the Obsidian vim-im plugin.
// Keys missing from data keep their value from base.
func ImportLegacy(base Config, data []byte) (Config, error) {
	if !gjson.ValidBytes(data) {
		return Config{}, fmt.Errorf("legacy settings: invalid json")
	}
	cfg := base
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return Config{}, fmt.Errorf("legacy settings: expected an object")
	}
	for _, key := range keys {
		value := root.Get(key)
		if !value.Exists() || value.Type == gjson.Null {
			continue
		}
		if err := cfg.Set(key, value.String()); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

// ExportLegacy writes the settings into a data.json document. Other keys of
// existing are preserved; pass nil to start from an empty object.
func ExportLegacy(cfg Config, existing []byte) ([]byte, error) {
	out := existing
	if len(out) == 0 {
		out = []byte("{}")
	}
	for _, key := range keys {
		value, err := cfg.Get(key)
		if err != nil {
			return nil, err
		}
		out, err = sjson.SetBytes(out, key, value)
		if err != nil {
			return nil, fmt.Errorf("legacy settings: set %s: %w", key, err)
		}
	}
	return out, nil
}
