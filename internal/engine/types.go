package engine

import (
	"time"

	"articled/internal/backend"
	"articled/pkg/types"
)

// State represents the lifecycle state of a cached instance.
type State string

const (
	StateLoading State = "loading"
	StateReady   State = "ready"
)

// Sampling policy. These are constants of the design, not request knobs.
const (
	beamWidth           = 2
	earlyStopping       = true
	temperature         = 0.7
	repetitionPenalty   = 1.2
	promptTokenBudget   = 512
	defaultMaxNewTokens = 200
)

// placeholderResponse is returned when decoding yields only the prompt echo.
const placeholderResponse = "I apologize, but I couldn't generate a meaningful response."

// Instance is a live loaded model (one per catalog name).
type Instance struct {
	Descriptor types.ModelDescriptor
	State      State
	LastUsed   time.Time

	handle backend.Handle
	// closed by the loader once the load attempt finished (either way)
	ready   chan struct{}
	loadErr error

	// Queueing primitives
	genCh   chan struct{} // size 1: single in-flight generation
	queueCh chan struct{} // buffered: queue slots
}

func newInstance(desc types.ModelDescriptor, maxQueueDepth int) *Instance {
	return &Instance{
		Descriptor: desc,
		State:      StateLoading,
		LastUsed:   time.Now(),
		ready:      make(chan struct{}),
		genCh:      make(chan struct{}, 1),
		queueCh:    make(chan struct{}, maxQueueDepth),
	}
}
