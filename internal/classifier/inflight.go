package classifier

import "sync"

// inflightGuard deduplicates concurrent embedding generation. When several
// callers need an embedding for the same name at once, exactly one claims
// it and performs the generation and save; the rest skip instead of
// double-charging the embedding service.
type inflightGuard struct {
	mu    sync.Mutex
	names map[string]struct{}
}

func newInflightGuard() *inflightGuard {
	return &inflightGuard{names: make(map[string]struct{})}
}

// TryClaim atomically inserts name into the in-flight set. Returns false
// when another caller already holds the claim.
func (g *inflightGuard) TryClaim(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, held := g.names[name]; held {
		return false
	}
	g.names[name] = struct{}{}
	return true
}

// Release removes name from the in-flight set. Callers release in a defer
// so both success and failure paths are covered.
func (g *inflightGuard) Release(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.names, name)
}
