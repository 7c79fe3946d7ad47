//go:build llama

package backend

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// localBackend loads GGUF weights in-process through go-llama.cpp. Built only
// with the 'llama' tag so default builds stay CGO-free.
type localBackend struct {
	ctxSize int
	threads int
	gpu     bool
}

// LocalOptions configures NewLocal.
type LocalOptions struct {
	ContextSize int
	Threads     int
	// GPU requests full GPU offload when the bindings were built with one.
	GPU bool
}

// NewLocal constructs an in-process Backend. BackingID is interpreted as a
// path to a .gguf file.
func NewLocal(opts LocalOptions) Backend {
	return &localBackend{ctxSize: opts.ContextSize, threads: opts.Threads, gpu: opts.GPU}
}

func (b *localBackend) AcceleratorAvailable(ctx context.Context) bool { return b.gpu }

func (b *localBackend) Load(ctx context.Context, spec LoadSpec) (Handle, error) {
	if strings.TrimSpace(spec.BackingID) == "" {
		return nil, errors.New("empty backing id")
	}
	mo := []llama.ModelOption{llama.SetContext(b.ctxSize)}
	if spec.Precision == "f16" {
		mo = append(mo, llama.EnableF16Memory)
	}
	if b.gpu {
		mo = append(mo, llama.SetGPULayers(-1))
	}
	m, err := llama.New(spec.BackingID, mo...)
	if err != nil {
		return nil, err
	}
	return &localHandle{model: m, threads: b.threads}, nil
}

type localHandle struct {
	mu      sync.Mutex
	model   *llama.LLama
	threads int
}

func (h *localHandle) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model == nil {
		return "", errors.New("handle closed")
	}
	// Predict is blocking; bridge the callback to honor cancellation.
	h.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	})
	po := []llama.PredictOption{
		llama.SetTokens(maxInt(1, params.MaxNewTokens)),
		llama.SetThreads(maxInt(1, h.threads)),
		llama.SetTemperature(params.Temperature),
		llama.SetPenalty(params.RepetitionPenalty),
	}
	if len(params.Stop) > 0 {
		po = append(po, llama.SetStopWords(params.Stop...))
	}
	text, err := h.model.Predict(prompt, po...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return text, nil
}

func (h *localHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.model != nil {
		h.model.Free()
		h.model = nil
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
