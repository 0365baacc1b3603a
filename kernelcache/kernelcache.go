// Package kernelcache caches compiled device kernels within the lifetime
// of a single compiler pass. It is deliberately not a package-level
// singleton — a fresh Cache is constructed per Compile call and discarded
// at return.
package kernelcache

import (
	"github.com/google/uuid"

	"github.com/csotherden/luminal/device"
	"github.com/csotherden/luminal/obslog"
)

// Variant names a fused-kernel flavor (e.g. "matmul2d", "batchmatmul2d",
// "attnmatmul2d").
type Variant string

type key struct {
	variant Variant
	dev     device.Kind
}

// Entry is the cached compiled-kernel record. Handle is opaque to the
// cache itself; only the concrete device.Backend that produced it knows
// how to use it. ID gives each distinct compilation a stable identity for
// diagnostics independent of the handle's concrete type.
type Entry struct {
	ID     uuid.UUID
	Handle any
}

// Cache is a simple (variant, device) -> compiled-kernel map. Not safe to
// share across Compile calls. Like graph.Graph, it carries no mutex: a
// Cache is only ever driven by the single synchronous Compile call that
// constructed it via New, never shared across goroutines.
type Cache struct {
	entries map[key]Entry
}

// New returns an empty cache, meant to live for exactly one Compile call.
func New() *Cache {
	return &Cache{entries: make(map[key]Entry)}
}

// GetOrCompile returns the cached entry for (variant, dev), compiling it
// via build on first use and logging the compilation via obslog.
func (c *Cache) GetOrCompile(variant Variant, dev device.Kind, build func() (any, error)) (Entry, error) {
	k := key{variant: variant, dev: dev}
	if e, ok := c.entries[k]; ok {
		return e, nil
	}

	handle, err := build()
	if err != nil {
		return Entry{}, err
	}
	e := Entry{ID: uuid.New(), Handle: handle}
	c.entries[k] = e
	obslog.KernelCompiled(string(variant), string(dev))
	return e, nil
}

// Len reports how many distinct (variant, device) kernels have been
// compiled so far in this pass.
func (c *Cache) Len() int {
	return len(c.entries)
}
