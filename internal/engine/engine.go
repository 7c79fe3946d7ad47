package engine

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"articled/internal/backend"
	"articled/internal/registry"
)

// Engine owns the name-to-instance cache and drives the backend.
type Engine struct {
	mu        sync.RWMutex
	catalog   *registry.Catalog
	instances map[string]*Instance
	backend   backend.Backend

	defaultModel string
	precision    string // "auto", "f16", "f32"

	maxQueueDepth int
	maxWait       time.Duration

	loadsTotal uint64
	lastError  string
	startTime  time.Time

	log zerolog.Logger
}

// Defaults applied when corresponding Config fields are unset.
const (
	defaultMaxQueueDepth = 32
	defaultMaxWait       = 30 * time.Second
)

// Config encapsulates all tunables for Engine construction.
type Config struct {
	Catalog      *registry.Catalog
	Backend      backend.Backend
	DefaultModel string
	// Precision hint for loads: "auto" resolves against the backend's
	// accelerator probe; "f16"/"f32" force it.
	Precision     string
	MaxQueueDepth int
	MaxWait       time.Duration
	Logger        zerolog.Logger
}

// New constructs an Engine from Config, applying package defaults.
func New(cfg Config) *Engine {
	e := &Engine{
		catalog:      cfg.Catalog,
		instances:    make(map[string]*Instance),
		backend:      cfg.Backend,
		defaultModel: cfg.DefaultModel,
		precision:    cfg.Precision,
		startTime:    time.Now(),
		log:          cfg.Logger,
	}
	if e.precision == "" {
		e.precision = "auto"
	}
	if cfg.MaxQueueDepth <= 0 {
		e.maxQueueDepth = defaultMaxQueueDepth
	} else {
		e.maxQueueDepth = cfg.MaxQueueDepth
	}
	if cfg.MaxWait <= 0 {
		e.maxWait = defaultMaxWait
	} else {
		e.maxWait = cfg.MaxWait
	}
	return e
}

// Catalog exposes the model catalog (for config hot-reload wiring).
func (e *Engine) Catalog() *registry.Catalog { return e.catalog }

// Ready reports whether the engine can serve requests. The engine has no
// warmup phase of its own, so it is ready as soon as it exists.
func (e *Engine) Ready() bool { return true }
