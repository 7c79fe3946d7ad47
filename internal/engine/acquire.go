package engine

import (
	"context"
	"time"

	"articled/internal/backend"
	"articled/pkg/types"
)

// Acquire returns the ready instance for name, loading it on first use.
// Unknown names fail typed before any backend I/O. Concurrent callers for the
// same unloaded name share one load: the first becomes the loader, the rest
// wait on it.
func (e *Engine) Acquire(ctx context.Context, name string) (*Instance, error) {
	desc, ok := e.catalog.Lookup(name)
	if !ok {
		return nil, ErrUnsupportedModel(name)
	}

	e.mu.Lock()
	inst := e.instances[name]
	isLoader := inst == nil
	if isLoader {
		inst = newInstance(desc, e.maxQueueDepth)
		e.instances[name] = inst
	}
	e.mu.Unlock()

	if isLoader {
		e.load(ctx, inst)
	}

	select {
	case <-inst.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if inst.loadErr != nil {
		return nil, loadFailureError{name: name, err: inst.loadErr}
	}

	e.mu.Lock()
	inst.LastUsed = time.Now()
	e.mu.Unlock()
	return inst, nil
}

// load performs the blocking backend load and publishes the outcome on the
// instance. The load itself is non-cancelable from the requester's point of
// view: a canceled first caller must not poison the shared load for waiters.
func (e *Engine) load(ctx context.Context, inst *Instance) {
	name := inst.Descriptor.Name
	start := time.Now()
	e.log.Info().Str("model", name).Str("backing_id", inst.Descriptor.BackingID).Msg("loading model")

	loadCtx := context.WithoutCancel(ctx)
	spec := backend.LoadSpec{
		BackingID: inst.Descriptor.BackingID,
		Precision: e.resolvePrecision(loadCtx),
	}
	h, err := e.backend.Load(loadCtx, spec)

	e.mu.Lock()
	if err != nil {
		inst.loadErr = err
		e.lastError = err.Error()
		// Failed loads do not stay cached; the next Acquire retries.
		if e.instances[name] == inst {
			delete(e.instances, name)
		}
	} else if e.instances[name] != inst {
		// ReleaseAll raced the load; don't leak the handle.
		e.mu.Unlock()
		_ = h.Close()
		e.mu.Lock()
		inst.loadErr = context.Canceled
	} else {
		inst.handle = h
		inst.State = StateReady
		e.loadsTotal++
	}
	e.mu.Unlock()
	close(inst.ready)

	if err != nil {
		e.log.Error().Err(err).Str("model", name).Msg("model load failed")
		return
	}
	e.log.Info().Str("model", name).Dur("dur", time.Since(start)).Str("precision", spec.Precision).Msg("model loaded")
}

// resolvePrecision turns the configured hint into a concrete precision.
// "auto" picks reduced precision when the backend reports an accelerator.
func (e *Engine) resolvePrecision(ctx context.Context) string {
	switch e.precision {
	case "f16", "f32":
		return e.precision
	}
	if e.backend.AcceleratorAvailable(ctx) {
		return "f16"
	}
	return "f32"
}

// ReleaseAll drops every cached instance and closes its handle. Idempotent
// and side-effect-free when the cache is already empty.
func (e *Engine) ReleaseAll() {
	e.mu.Lock()
	dropped := e.instances
	e.instances = make(map[string]*Instance)
	e.mu.Unlock()

	closed := 0
	for _, inst := range dropped {
		select {
		case <-inst.ready:
			if inst.handle != nil {
				_ = inst.handle.Close()
				closed++
			}
		default:
			// Still loading; the loader notices the cache swap and closes
			// the handle itself.
		}
	}
	if len(dropped) > 0 {
		e.log.Info().Int("released", len(dropped)).Int("closed", closed).Msg("model cache cleared")
	}
}

// Describe reports every catalog entry with its load state. Read-only.
func (e *Engine) Describe() []types.ModelInfo {
	descs := e.catalog.List()
	out := make([]types.ModelInfo, 0, len(descs))
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, d := range descs {
		inst := e.instances[d.Name]
		out = append(out, types.ModelInfo{
			Name:       d.Name,
			BackingID:  d.BackingID,
			Parameters: d.Parameters,
			Loaded:     inst != nil && inst.State == StateReady,
		})
	}
	return out
}
