// Package backend abstracts the model-serving runtime. The engine treats it
// as a black box providing "load model by identifier" and "decode text given
// a prompt and a sampling configuration".
package backend

import "context"

// LoadSpec describes what to load and how.
type LoadSpec struct {
	// BackingID is the identifier understood by the runtime, e.g. a
	// HuggingFace-style repo id or a model name registered on the server.
	BackingID string
	// Precision is the resolved weight precision: "f16" or "f32".
	Precision string
}

// Params is the sampling configuration for one generation call.
type Params struct {
	MaxNewTokens      int
	Temperature       float32
	RepetitionPenalty float32
	BeamWidth         int
	EarlyStopping     bool
	Stop              []string
}

// Backend loads models. Load blocks until the runtime is ready to serve the
// model; implementations must respect ctx for their own I/O but the engine
// treats the load as non-cancelable from the request's point of view.
type Backend interface {
	// Load prepares the model and returns a handle. The handle stays valid
	// until Close.
	Load(ctx context.Context, spec LoadSpec) (Handle, error)
	// AcceleratorAvailable reports whether the runtime has an accelerator,
	// used to choose reduced precision on load.
	AcceleratorAvailable(ctx context.Context) bool
}

// Handle is a loaded, ready-to-use model.
type Handle interface {
	// Generate produces the raw decoded text for prompt. The returned text
	// may still carry a leading prompt echo; stripping is the caller's job.
	Generate(ctx context.Context, prompt string, params Params) (string, error)
	// Close releases runtime resources. Idempotent.
	Close() error
}
