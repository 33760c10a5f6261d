package ruby

import "github.com/michaelsabo/RubyGateway/interp"

// protectLocked is the single choke point for interpreter operations that
// can raise. It invokes body through the interpreter's own protected-call
// primitive, so an interpreter-level non-local exit stops here instead of
// unwinding through host frames.
//
// On a raise the raised value's class name and message are copied into an
// Exception, which is appended to the error history and returned as the
// error; the raised handle itself is not kept alive past this call. The
// capture path uses only non-raising introspection, so it never re-enters
// the protected primitive.
//
// Must be called on the interpreter worker goroutine, and body must issue
// exactly one interpreter-level operation.
func (g *Gateway) protectLocked(vm interp.VM, body func() interp.Value) (interp.Value, error) {
	result, raised, ok := vm.Protect(body)
	if ok {
		return result, nil
	}

	class, message := vm.ExceptionInfo(raised)
	exc := &Exception{Class: class, Message: message}
	g.history.append(exc)
	log.Debugf("captured interpreter exception: %s", exc)
	return interp.None, exc
}
