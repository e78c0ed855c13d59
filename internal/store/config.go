// Package store implements Store, the façade binding every persistent
// artifact of a built collection (spec.md §4.7): the token and docid
// vocabularies, the inverted file, the feature-vector file, and the
// dense idf table, plus Config (config.toml). Grounded on
// _examples/original_source/src/store.rs and
// src/bin/build_mapred.rs's Config{num_docs, num_features} TOML
// output, read/written here with github.com/pelletier/go-toml/v2 the
// way _examples/standardbeagle-lci's
// internal/config/build_artifact_detector.go uses it.
package store

import (
	"os"

	"github.com/pelletier/go-toml/v2"

	"calret/internal/calerr"
)

// Config is the small metadata file written alongside a built
// collection's binary artifacts.
type Config struct {
	NumDocs     int    `toml:"num_docs"`
	NumFeatures int    `toml:"num_features"`
	Tokenizer   string `toml:"tokenizer"`
}

// LoadConfig reads config.toml at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, calerr.NotFoundf(path, "config.toml not found")
		}
		return Config{}, calerr.IOErr(path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, calerr.ConfigBadf(path, "parsing config.toml: %v", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg to path as TOML.
func SaveConfig(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return calerr.ConfigBadf(path, "encoding config.toml: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return calerr.IOErr(path, err)
	}
	return nil
}
