package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"articled/internal/backend"
	"articled/internal/registry"
	"articled/pkg/types"
)

// fakeBackend records load/generate calls and serves canned outputs.
type fakeBackend struct {
	mu          sync.Mutex
	loadCalls   int32
	loadErr     error
	loadDelay   time.Duration
	accelerator bool

	generate func(prompt string, params backend.Params) (string, error)
	lastSpec backend.LoadSpec
}

func (f *fakeBackend) AcceleratorAvailable(ctx context.Context) bool { return f.accelerator }

func (f *fakeBackend) Load(ctx context.Context, spec backend.LoadSpec) (backend.Handle, error) {
	atomic.AddInt32(&f.loadCalls, 1)
	if f.loadDelay > 0 {
		time.Sleep(f.loadDelay)
	}
	f.mu.Lock()
	f.lastSpec = spec
	err := f.loadErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return &fakeHandle{backend: f}, nil
}

type fakeHandle struct {
	backend *fakeBackend
	closed  atomic.Bool
}

func (h *fakeHandle) Generate(ctx context.Context, prompt string, params backend.Params) (string, error) {
	if h.backend.generate != nil {
		return h.backend.generate(prompt, params)
	}
	return prompt + " and more words follow", nil
}

func (h *fakeHandle) Close() error {
	h.closed.Store(true)
	return nil
}

func testCatalog(t *testing.T) *registry.Catalog {
	t.Helper()
	c, err := registry.New([]types.ModelDescriptor{
		{Name: "Bloom-560M", BackingID: "bigscience/bloom-560m", Parameters: "560M"},
		{Name: "OPT-1.3B", BackingID: "facebook/opt-1.3b", Parameters: "1.3B"},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return c
}

func newTestEngine(t *testing.T, fb *fakeBackend) *Engine {
	t.Helper()
	return New(Config{
		Catalog:      testCatalog(t),
		Backend:      fb,
		DefaultModel: "Bloom-560M",
		Logger:       zerolog.Nop(),
	})
}

func TestAcquireCachesInstance(t *testing.T) {
	fb := &fakeBackend{}
	e := newTestEngine(t, fb)
	ctx := context.Background()

	first, err := e.Acquire(ctx, "Bloom-560M")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	second, err := e.Acquire(ctx, "Bloom-560M")
	if err != nil {
		t.Fatalf("acquire again: %v", err)
	}
	if first != second {
		t.Fatalf("expected the cached instance on the second call")
	}
	if n := atomic.LoadInt32(&fb.loadCalls); n != 1 {
		t.Fatalf("loadCalls=%d, want 1", n)
	}
}

func TestAcquireUnsupportedNoBackendIO(t *testing.T) {
	fb := &fakeBackend{}
	e := newTestEngine(t, fb)
	_, err := e.Acquire(context.Background(), "GPT-5")
	if !IsUnsupportedModel(err) {
		t.Fatalf("expected unsupported model error, got %v", err)
	}
	if n := atomic.LoadInt32(&fb.loadCalls); n != 0 {
		t.Fatalf("backend touched for unsupported name: loadCalls=%d", n)
	}
}

func TestAcquireConcurrentSingleLoad(t *testing.T) {
	fb := &fakeBackend{loadDelay: 30 * time.Millisecond}
	e := newTestEngine(t, fb)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.Acquire(context.Background(), "Bloom-560M")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("goroutine %d: %v", i, err)
		}
	}
	if calls := atomic.LoadInt32(&fb.loadCalls); calls != 1 {
		t.Fatalf("loadCalls=%d, want 1 (loads must be serialized per key)", calls)
	}
}

func TestLoadFailureNotCached(t *testing.T) {
	fb := &fakeBackend{loadErr: errors.New("connection refused")}
	e := newTestEngine(t, fb)

	_, err := e.Acquire(context.Background(), "Bloom-560M")
	if !IsLoadFailure(err) {
		t.Fatalf("expected load failure, got %v", err)
	}

	// A later acquire retries instead of returning the poisoned instance.
	fb.mu.Lock()
	fb.loadErr = nil
	fb.mu.Unlock()
	if _, err := e.Acquire(context.Background(), "Bloom-560M"); err != nil {
		t.Fatalf("retry after failed load: %v", err)
	}
}

func TestReleaseAll(t *testing.T) {
	fb := &fakeBackend{}
	e := newTestEngine(t, fb)
	ctx := context.Background()

	if _, err := e.Acquire(ctx, "Bloom-560M"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := e.Acquire(ctx, "OPT-1.3B"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	e.ReleaseAll()
	for _, info := range e.Describe() {
		if info.Loaded {
			t.Fatalf("model %s still reported loaded after ReleaseAll", info.Name)
		}
	}
	// idempotent on an empty cache
	e.ReleaseAll()

	// next acquire reloads
	if _, err := e.Acquire(ctx, "Bloom-560M"); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if n := atomic.LoadInt32(&fb.loadCalls); n != 3 {
		t.Fatalf("loadCalls=%d, want 3", n)
	}
}

func TestDescribe(t *testing.T) {
	fb := &fakeBackend{}
	e := newTestEngine(t, fb)

	infos := e.Describe()
	if len(infos) != 2 {
		t.Fatalf("len=%d", len(infos))
	}
	for _, info := range infos {
		if info.Loaded {
			t.Fatalf("nothing should be loaded yet: %+v", info)
		}
	}

	if _, err := e.Acquire(context.Background(), "Bloom-560M"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	var loaded int
	for _, info := range e.Describe() {
		if info.Loaded {
			loaded++
			if info.Name != "Bloom-560M" || info.Parameters != "560M" {
				t.Fatalf("unexpected info: %+v", info)
			}
		}
	}
	if loaded != 1 {
		t.Fatalf("loaded=%d, want 1", loaded)
	}
}

func TestPrecisionResolution(t *testing.T) {
	fb := &fakeBackend{accelerator: true}
	e := newTestEngine(t, fb)
	if _, err := e.Acquire(context.Background(), "Bloom-560M"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	fb.mu.Lock()
	prec := fb.lastSpec.Precision
	fb.mu.Unlock()
	if prec != "f16" {
		t.Fatalf("precision=%q, want f16 with accelerator", prec)
	}

	fb2 := &fakeBackend{}
	e2 := newTestEngine(t, fb2)
	if _, err := e2.Acquire(context.Background(), "Bloom-560M"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	fb2.mu.Lock()
	prec2 := fb2.lastSpec.Precision
	fb2.mu.Unlock()
	if prec2 != "f32" {
		t.Fatalf("precision=%q, want f32 without accelerator", prec2)
	}
}
