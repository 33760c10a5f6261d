package ruby

import (
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/michaelsabo/RubyGateway/interp"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("rubygateway")

// Gateway is the host-side bridge to one embedded interpreter. It owns the
// worker goroutine that serializes interpreter access, the identifier cache,
// the keep-alive retention table, and the error history. One Gateway per
// interpreter per process; its caches live until the process exits.
//
// A Gateway exposes the same object-access surface as an Object, addressed
// at the top-level receiver (constants resolve from the root scope, method
// calls go to "main"). The variable accessors behave identically on either.
type Gateway struct {
	vm       interp.VM
	worker   *vmWorker
	idents   identCache
	retained *retainTable
	history  *ErrorHistory
	topSelf  *Object
}

// New creates a Gateway over vm with the default configuration.
func New(vm interp.VM) (*Gateway, error) {
	return NewWithConfig(vm, DefaultConfig())
}

// NewWithConfig creates a Gateway, boots the interpreter via its idempotent
// Setup entry point, and wraps the top-level receiver.
func NewWithConfig(vm interp.VM, cfg *Config) (*Gateway, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	commonlog.Configure(cfg.Log.Verbosity, nil)

	g := &Gateway{
		vm:       vm,
		worker:   newVMWorker(vm, cfg.Worker.QueueDepth),
		retained: newRetainTable(),
		history:  newErrorHistory(cfg.History.Capacity),
	}

	res, err := g.worker.do(func(vm interp.VM) any {
		if err := vm.Setup(); err != nil {
			return vmOutcome{err: fmt.Errorf("ruby: interpreter setup: %w", err)}
		}
		return g.newObjectLocked(vm, vm.TopSelf())
	})
	if err != nil {
		g.worker.stop()
		return nil, err
	}
	switch x := res.(type) {
	case vmOutcome:
		g.worker.stop()
		return nil, x.err
	case *Object:
		g.topSelf = x
	}

	log.Info("gateway initialized")
	return g, nil
}

// Close releases the top-level handle and stops the worker goroutine. The
// Gateway must not be used afterwards.
func (g *Gateway) Close() {
	g.topSelf.Close()
	g.worker.stop()
}

// GetID interns name without any shape validation; a thin pass-through to
// the interpreter's symbol table.
func (g *Gateway) GetID(name string) (interp.ID, error) {
	res, err := g.worker.do(func(vm interp.VM) any {
		return vm.Intern(name)
	})
	if err != nil {
		return 0, err
	}
	return res.(interp.ID), nil
}

// TopSelf returns the wrapped top-level receiver.
func (g *Gateway) TopSelf() *Object {
	return g.topSelf
}

// History returns a copy of the captured-exception history, oldest first.
func (g *Gateway) History() []Exception {
	return g.history.All()
}

// HistoryLen returns the number of exceptions currently held in the history.
func (g *Gateway) HistoryLen() int {
	return g.history.Len()
}

// ExportHistoryCBOR serializes the current error history to canonical CBOR
// for external diagnostics tooling.
func (g *Gateway) ExportHistoryCBOR() ([]byte, error) {
	return g.history.MarshalCBOR()
}

// vmOutcome carries a raw handle or an error out of a worker submission.
type vmOutcome struct {
	v   interp.Value
	err error
}

// runValue runs fn on the interpreter goroutine and unwraps its outcome.
func (g *Gateway) runValue(fn func(vm interp.VM) (interp.Value, error)) (interp.Value, error) {
	res, err := g.worker.do(func(vm interp.VM) any {
		v, ferr := fn(vm)
		return vmOutcome{v: v, err: ferr}
	})
	if err != nil {
		return interp.None, err
	}
	out := res.(vmOutcome)
	return out.v, out.err
}

// runObject runs fn on the interpreter goroutine and boxes the produced raw
// handle. The handle is registered with the retention table before the
// submission returns, so there is no window in which the referent is
// unprotected.
func (g *Gateway) runObject(fn func(vm interp.VM) (interp.Value, error)) (*Object, error) {
	res, err := g.worker.do(func(vm interp.VM) any {
		v, ferr := fn(vm)
		if ferr != nil {
			return vmOutcome{err: ferr}
		}
		return g.newObjectLocked(vm, v)
	})
	if err != nil {
		return nil, err
	}
	switch x := res.(type) {
	case vmOutcome:
		return nil, x.err
	case *Object:
		return x, nil
	}
	return nil, fmt.Errorf("ruby: unexpected worker result %T", res)
}
