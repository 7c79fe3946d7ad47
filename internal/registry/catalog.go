package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"articled/pkg/types"
)

// Catalog is the set of selectable models, keyed by display name.
// Descriptors are immutable; Replace swaps the whole set (used by config
// hot-reload), so readers never observe a partial catalog.
type Catalog struct {
	mu    sync.RWMutex
	byKey map[string]types.ModelDescriptor
	order []string
}

// New builds a catalog from descriptors. Names must be non-empty and unique;
// each descriptor needs a backing id.
func New(descriptors []types.ModelDescriptor) (*Catalog, error) {
	c := &Catalog{}
	if err := c.Replace(descriptors); err != nil {
		return nil, err
	}
	return c, nil
}

// Replace swaps the descriptor set atomically. On error the previous set is kept.
func (c *Catalog) Replace(descriptors []types.ModelDescriptor) error {
	byKey := make(map[string]types.ModelDescriptor, len(descriptors))
	order := make([]string, 0, len(descriptors))
	for _, d := range descriptors {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return fmt.Errorf("model descriptor with empty name")
		}
		if strings.TrimSpace(d.BackingID) == "" {
			return fmt.Errorf("model %q: empty backing id", name)
		}
		if _, dup := byKey[name]; dup {
			return fmt.Errorf("duplicate model name %q", name)
		}
		d.Name = name
		byKey[name] = d
		order = append(order, name)
	}
	sort.Strings(order)

	c.mu.Lock()
	c.byKey = byKey
	c.order = order
	c.mu.Unlock()
	return nil
}

// Lookup resolves a display name to its descriptor.
func (c *Catalog) Lookup(name string) (types.ModelDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.byKey[name]
	return d, ok
}

// List returns all descriptors sorted by name.
func (c *Catalog) List() []types.ModelDescriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.ModelDescriptor, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.byKey[name])
	}
	return out
}

// Len reports the number of descriptors.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.byKey)
}
