package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"articled/pkg/types"
)

// BackendConfig selects and tunes the model-serving backend.
type BackendConfig struct {
	// Base URL of an OpenAI-compatible completion server.
	URL    string `json:"url" yaml:"url" toml:"url"`
	APIKey string `json:"api_key" yaml:"api_key" toml:"api_key"`
	// Precision hint passed on load: "auto" (reduced when an accelerator is
	// reported by the backend), "f16", or "f32".
	Precision      string   `json:"precision" yaml:"precision" toml:"precision"`
	RequestTimeout Duration `json:"request_timeout" yaml:"request_timeout" toml:"request_timeout"`
	ConnectTimeout Duration `json:"connect_timeout" yaml:"connect_timeout" toml:"connect_timeout"`
}

// LogConfig controls the structured log sink.
type LogConfig struct {
	Level      string `json:"level" yaml:"level" toml:"level"`
	File       string `json:"file" yaml:"file" toml:"file"`
	MaxSizeMB  int    `json:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"`
}

// CORSConfig enables cross-origin access for browser dashboards.
type CORSConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled" toml:"enabled"`
	Origins []string `json:"origins" yaml:"origins" toml:"origins"`
	Methods []string `json:"methods" yaml:"methods" toml:"methods"`
	Headers []string `json:"headers" yaml:"headers" toml:"headers"`
}

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr         string                  `json:"addr" yaml:"addr" toml:"addr"`
	DataDir      string                  `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	DefaultModel string                  `json:"default_model" yaml:"default_model" toml:"default_model"`
	Models       []types.ModelDescriptor `json:"models" yaml:"models" toml:"models"`
	Backend      BackendConfig           `json:"backend" yaml:"backend" toml:"backend"`
	Log          LogConfig               `json:"log" yaml:"log" toml:"log"`
	CORS         CORSConfig              `json:"cors" yaml:"cors" toml:"cors"`

	MaxQueueDepth int      `json:"max_queue_depth" yaml:"max_queue_depth" toml:"max_queue_depth"`
	MaxWait       Duration `json:"max_wait" yaml:"max_wait" toml:"max_wait"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
