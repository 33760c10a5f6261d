package ruby

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/michaelsabo/RubyGateway/interp"
)

// vmRequest is a unit of work to be executed on the interpreter goroutine.
// A nil done channel marks a fire-and-forget request (used for handle
// release scheduled from cleanup).
type vmRequest struct {
	fn   func(vm interp.VM) any
	done chan vmResult
}

// vmResult holds the return value from an interpreter operation.
type vmResult struct {
	value any
	err   error
}

// vmWorker serializes all interpreter access through a single goroutine
// pinned to one OS thread. The embedded interpreter owns a single logical
// execution context; every operation from every host goroutine must pass
// through the worker, which is the process's one admission point.
type vmWorker struct {
	vm       interp.VM
	requests chan vmRequest
	quit     chan struct{}
	stopOnce sync.Once
}

// newVMWorker creates a vmWorker and starts the processing goroutine.
func newVMWorker(vm interp.VM, queueDepth int) *vmWorker {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	w := &vmWorker{
		vm:       vm,
		requests: make(chan vmRequest, queueDepth),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially. Requests submitted by one caller are
// observed by the interpreter in submission order; there is no batching or
// reordering.
func (w *vmWorker) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for {
		select {
		case req := <-w.requests:
			result := w.execute(req.fn)
			if req.done != nil {
				req.done <- result
			}
		case <-w.quit:
			return
		}
	}
}

// execute runs a function against the interpreter, recovering from host
// panics. Interpreter-level raises never surface here; they are stopped at
// the protected-call boundary inside fn.
func (w *vmWorker) execute(fn func(vm interp.VM) any) vmResult {
	var result vmResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("ruby: interpreter worker panic: %v", r)
			}
		}()
		result.value = fn(w.vm)
	}()
	return result
}

// do submits fn for execution on the interpreter goroutine and blocks until
// it completes. Must not be called from the worker goroutine itself.
func (w *vmWorker) do(fn func(vm interp.VM) any) (any, error) {
	req := vmRequest{
		fn:   fn,
		done: make(chan vmResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, fmt.Errorf("ruby: gateway is closed")
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, fmt.Errorf("ruby: gateway is closed")
	}
}

// post submits fn without waiting for completion. Used to schedule handle
// deregistration back onto the interpreter goroutine from contexts (object
// cleanup) that are not allowed to touch the interpreter directly.
func (w *vmWorker) post(fn func(vm interp.VM)) {
	req := vmRequest{fn: func(vm interp.VM) any { fn(vm); return nil }}
	select {
	case w.requests <- req:
	case <-w.quit:
	}
}

// stop shuts down the worker goroutine. Pending queued requests are dropped.
// Safe to call more than once.
func (w *vmWorker) stop() {
	w.stopOnce.Do(func() { close(w.quit) })
}
