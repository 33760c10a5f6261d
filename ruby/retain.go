package ruby

import (
	"sync"

	"github.com/michaelsabo/RubyGateway/interp"
)

// retainTable tracks keep-alive registrations per raw handle. Several
// Objects may box the same handle; each registration bumps the count and the
// underlying collector registration happens only on the 0→1 transition, the
// deregistration only on the 1→0 transition.
//
// Mutations happen on the interpreter worker goroutine (the same admission
// discipline that serializes all interpreter access); the mutex exists so
// counts can be inspected from other goroutines.
type retainTable struct {
	mu     sync.Mutex
	counts map[interp.Value]int
}

func newRetainTable() *retainTable {
	return &retainTable{counts: make(map[interp.Value]int)}
}

// retain registers v with the collector's keep-alive table, reference
// counted. Must be called on the interpreter worker goroutine.
func (t *retainTable) retain(vm interp.VM, v interp.Value) {
	t.mu.Lock()
	t.counts[v]++
	first := t.counts[v] == 1
	t.mu.Unlock()

	if first {
		vm.Retain(v)
	}
}

// release drops one registration for v, deregistering from the collector
// when the last one goes. Must be called on the interpreter worker
// goroutine. Releasing an unregistered handle is a no-op.
func (t *retainTable) release(vm interp.VM, v interp.Value) {
	t.mu.Lock()
	c, ok := t.counts[v]
	if ok {
		c--
		if c == 0 {
			delete(t.counts, v)
		} else {
			t.counts[v] = c
		}
	}
	t.mu.Unlock()

	if ok && c == 0 {
		vm.Release(v)
	}
}

// count returns the current registration count for v.
func (t *retainTable) count(v interp.Value) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[v]
}

// size returns the number of distinct retained handles.
func (t *retainTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.counts)
}
