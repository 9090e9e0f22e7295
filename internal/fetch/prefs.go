package fetch

import "sync"

// RenderPrefs remembers which origins needed browser rendering to yield
// usable content. Once an origin is marked, later URLs on the same
// origin skip the plain fetch entirely. The memory is one-directional
// and scoped to a single run: each run builds a fresh store, so
// concurrent runs learn independently and every run re-tests each
// origin.
type RenderPrefs struct {
	mu      sync.RWMutex
	origins map[string]struct{}
}

// NewRenderPrefs returns an empty preference store.
func NewRenderPrefs() *RenderPrefs {
	return &RenderPrefs{origins: make(map[string]struct{})}
}

// Mark records that the origin requires rendering.
func (p *RenderPrefs) Mark(origin string) {
	if origin == "" {
		return
	}
	p.mu.Lock()
	p.origins[origin] = struct{}{}
	p.mu.Unlock()
}

// Requires reports whether the origin is known to need rendering.
func (p *RenderPrefs) Requires(origin string) bool {
	p.mu.RLock()
	_, ok := p.origins[origin]
	p.mu.RUnlock()
	return ok
}

// Len returns the number of marked origins.
func (p *RenderPrefs) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.origins)
}
