package config

import (
	"time"

	"articled/pkg/types"
)

// Defaults applied by ApplyDefaults when the corresponding fields are unset.
const (
	DefaultAddr           = ":8080"
	DefaultDataDir        = "~/.articled"
	DefaultBackendURL     = "http://127.0.0.1:8081"
	DefaultPrecision      = "auto"
	DefaultRequestTimeout = Duration(120 * time.Second)
	DefaultConnectTimeout = Duration(5 * time.Second)
	DefaultLogLevel       = "info"
	DefaultMaxQueueDepth  = 32
	DefaultMaxWait        = Duration(30 * time.Second)
)

// DefaultModels is the built-in catalog used when the config names none.
func DefaultModels() []types.ModelDescriptor {
	return []types.ModelDescriptor{
		{Name: "GPT-Neo 1.3B", BackingID: "EleutherAI/gpt-neo-1.3B", Parameters: "1.3B"},
		{Name: "Bloom-560M", BackingID: "bigscience/bloom-560m", Parameters: "560M"},
		{Name: "OPT-1.3B", BackingID: "facebook/opt-1.3b", Parameters: "1.3B"},
	}
}

// ApplyDefaults fills unset fields in place and returns cfg for chaining.
func ApplyDefaults(cfg Config) Config {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = DefaultBackendURL
	}
	if cfg.Backend.Precision == "" {
		cfg.Backend.Precision = DefaultPrecision
	}
	if cfg.Backend.RequestTimeout <= 0 {
		cfg.Backend.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Backend.ConnectTimeout <= 0 {
		cfg.Backend.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if len(cfg.Models) == 0 {
		cfg.Models = DefaultModels()
	}
	if cfg.MaxQueueDepth <= 0 {
		cfg.MaxQueueDepth = DefaultMaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	return cfg
}
