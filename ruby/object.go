package ruby

import (
	"runtime"
	"sync/atomic"

	"github.com/michaelsabo/RubyGateway/interp"
)

// Object is the owning box around a raw interpreter handle. For the lifetime
// of an Object its referent is registered with the collector's keep-alive
// table, so the interpreter cannot reclaim it. Several Objects may box the
// same handle; each holds its own registration.
//
// Close releases the registration explicitly. An Object that is garbage
// collected without Close has its release scheduled onto the interpreter
// goroutine by a runtime cleanup, but explicit Close gives deterministic
// lifetimes and is preferred.
type Object struct {
	g       *Gateway
	raw     interp.Value
	closed  atomic.Bool
	cleanup runtime.Cleanup
}

// newObjectLocked boxes a raw handle, registering it with the retention
// table. Must be called on the interpreter worker goroutine so registration
// happens before any interpreter call that could trigger collection.
func (g *Gateway) newObjectLocked(vm interp.VM, raw interp.Value) *Object {
	g.retained.retain(vm, raw)
	o := &Object{g: g, raw: raw}

	// The cleanup must not capture o itself, and must not touch the
	// interpreter from the cleanup goroutine.
	worker := g.worker
	retained := g.retained
	o.cleanup = runtime.AddCleanup(&o.raw, func(h interp.Value) {
		worker.post(func(vm interp.VM) {
			retained.release(vm, h)
		})
	}, raw)
	return o
}

// Close drops this Object's keep-alive registration. The release executes on
// the interpreter goroutine before Close returns. Closing an already closed
// Object is a no-op.
func (o *Object) Close() {
	if o.closed.Swap(true) {
		return
	}
	o.cleanup.Stop()
	raw := o.raw
	g := o.g
	g.worker.do(func(vm interp.VM) any {
		g.retained.release(vm, raw)
		return nil
	})
}

// WithRaw borrows the raw handle for the duration of fn, which runs on the
// interpreter goroutine. The borrow is scoped: the Object is guaranteed
// alive (and its referent registered) until fn returns, and the raw handle
// must not escape fn.
func (o *Object) WithRaw(fn func(vm interp.VM, raw interp.Value) error) error {
	if o.closed.Load() {
		return ErrClosed
	}
	defer runtime.KeepAlive(o)

	res, err := o.g.worker.do(func(vm interp.VM) any {
		return fn(vm, o.raw)
	})
	if err != nil {
		return err
	}
	if ferr, ok := res.(error); ok && ferr != nil {
		return ferr
	}
	return nil
}

// runValue is the internal borrow used by operations producing a raw
// outcome.
func (o *Object) runValue(fn func(vm interp.VM, raw interp.Value) (interp.Value, error)) (interp.Value, error) {
	if o.closed.Load() {
		return interp.None, ErrClosed
	}
	defer runtime.KeepAlive(o)
	return o.g.runValue(func(vm interp.VM) (interp.Value, error) {
		return fn(vm, o.raw)
	})
}

// runObject is the internal borrow used by operations producing a new boxed
// handle.
func (o *Object) runObject(fn func(vm interp.VM, raw interp.Value) (interp.Value, error)) (*Object, error) {
	if o.closed.Load() {
		return nil, ErrClosed
	}
	defer runtime.KeepAlive(o)
	return o.g.runObject(func(vm interp.VM) (interp.Value, error) {
		return fn(vm, o.raw)
	})
}

// runAny is the internal borrow for operations producing host-native data.
func (o *Object) runAny(fn func(vm interp.VM, raw interp.Value) any) (any, error) {
	if o.closed.Load() {
		return nil, ErrClosed
	}
	defer runtime.KeepAlive(o)
	return o.g.worker.do(func(vm interp.VM) any {
		return fn(vm, o.raw)
	})
}

// TypeTag queries the allocation tag of the referent. The query is a
// pass-through to the interpreter on every call; tags are not cached.
func (o *Object) TypeTag() (interp.Kind, error) {
	res, err := o.runAny(func(vm interp.VM, raw interp.Value) any {
		return vm.KindOf(raw)
	})
	if err != nil {
		return interp.KindNone, err
	}
	return res.(interp.Kind), nil
}

// Same reports whether both Objects box the identical referent.
func (o *Object) Same(other *Object) (bool, error) {
	if o.closed.Load() || other.closed.Load() {
		return false, ErrClosed
	}
	defer runtime.KeepAlive(o)
	defer runtime.KeepAlive(other)
	a, b := o.raw, other.raw
	res, err := o.g.worker.do(func(vm interp.VM) any {
		return vm.Same(a, b)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// Equal asks the interpreter whether the two referents compare equal via ==.
func (o *Object) Equal(other *Object) (bool, error) {
	if o.closed.Load() || other.closed.Load() {
		return false, ErrClosed
	}
	defer runtime.KeepAlive(o)
	defer runtime.KeepAlive(other)

	mid, err := o.g.resolveID("==", IDMethod)
	if err != nil {
		return false, err
	}
	a, b := o.raw, other.raw
	res, err := o.g.worker.do(func(vm interp.VM) any {
		v, perr := o.g.protectLocked(vm, func() interp.Value {
			return vm.Funcall(a, mid, []interp.Value{b})
		})
		if perr != nil {
			return vmOutcome{err: perr}
		}
		k := vm.KindOf(v)
		return k != interp.KindFalse && k != interp.KindNil
	})
	if err != nil {
		return false, err
	}
	if out, ok := res.(vmOutcome); ok {
		return false, out.err
	}
	return res.(bool), nil
}

// Inspect returns a display string for the referent, via inspect when
// implemented, falling back to to_s, then to the type tag.
func (o *Object) Inspect() (string, error) {
	inspectID, err := o.g.resolveID("inspect", IDMethod)
	if err != nil {
		return "", err
	}
	toSID, err := o.g.resolveID("to_s", IDMethod)
	if err != nil {
		return "", err
	}

	res, err := o.runAny(func(vm interp.VM, raw interp.Value) any {
		for _, mid := range []interp.ID{inspectID, toSID} {
			if !vm.RespondsTo(raw, mid) {
				continue
			}
			v, perr := o.g.protectLocked(vm, func() interp.Value {
				return vm.Funcall(raw, mid, nil)
			})
			if perr != nil {
				return vmOutcome{err: perr}
			}
			if vm.KindOf(v) == interp.KindString {
				b, _ := vm.StringBytes(v)
				return string(b)
			}
		}
		return "#<" + vm.KindOf(raw).String() + ">"
	})
	if err != nil {
		return "", err
	}
	if out, ok := res.(vmOutcome); ok {
		return "", out.err
	}
	return res.(string), nil
}
