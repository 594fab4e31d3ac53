package services

import (
	"sort"
	"sync/atomic"
)

// Registry holds the process-wide compiled policy snapshot. Readers load the
// current snapshot without locks; schema changes install a full replacement
// atomically so in-flight requests keep a consistent view and no partial
// schema is ever observable.
type Registry struct {
	snapshot atomic.Pointer[map[string]*CompiledPolicy]
}

func NewRegistry() *Registry {
	r := &Registry{}
	empty := map[string]*CompiledPolicy{}
	r.snapshot.Store(&empty)
	return r
}

func (r *Registry) Lookup(table string) (*CompiledPolicy, bool) {
	p, ok := (*r.snapshot.Load())[table]
	return p, ok
}

// Replace swaps the whole snapshot. The map must not be mutated afterwards.
func (r *Registry) Replace(policies map[string]*CompiledPolicy) {
	r.snapshot.Store(&policies)
}

func (r *Registry) Tables() []string {
	snap := *r.snapshot.Load()
	names := make([]string, 0, len(snap))
	for name := range snap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Snapshot() map[string]*CompiledPolicy {
	return *r.snapshot.Load()
}
