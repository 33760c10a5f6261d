package ruby

import (
	"runtime"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/michaelsabo/RubyGateway/interp"
)

// KwArg is one keyword argument for CallKw. Keyword arguments travel as a
// slice rather than a map so that a repeated name is visible and can be
// rejected before the call is issued.
type KwArg struct {
	Name  string
	Value any
}

// checkKwArgs rejects duplicate keyword names. Runs before any identifier
// resolution or conversion, so a duplicate never causes interpreter work.
func checkKwArgs(kwargs []KwArg) error {
	if len(kwargs) < 2 {
		return nil
	}
	seen := make(map[string]bool, len(kwargs))
	for _, kw := range kwargs {
		if seen[kw.Name] {
			return &DuplicateKwArgError{Name: kw.Name}
		}
		seen[kw.Name] = true
	}
	return nil
}

// ---------------------------------------------------------------------------
// Instance variables
// ---------------------------------------------------------------------------

// GetInstanceVar reads an instance variable on the receiver. An unset name
// yields the interpreter's nil, never an error; only a malformed name fails.
func (o *Object) GetInstanceVar(name string) (*Object, error) {
	id, err := o.g.resolveID(name, IDInstanceVar)
	if err != nil {
		return nil, err
	}
	return o.runObject(func(vm interp.VM, raw interp.Value) (interp.Value, error) {
		return o.g.protectLocked(vm, func() interp.Value {
			return vm.IvarGet(raw, id)
		})
	})
}

// SetInstanceVar writes an instance variable and returns the stored value.
func (o *Object) SetInstanceVar(name string, value any) (*Object, error) {
	id, err := o.g.resolveID(name, IDInstanceVar)
	if err != nil {
		return nil, err
	}
	n, err := o.g.normalize(value)
	if err != nil {
		return nil, err
	}
	return o.runObject(func(vm interp.VM, raw interp.Value) (interp.Value, error) {
		v, cerr := o.g.toValueLocked(vm, n)
		if cerr != nil {
			return interp.None, cerr
		}
		return o.g.protectLocked(vm, func() interp.Value {
			return vm.IvarSet(raw, id, v)
		})
	})
}

// ---------------------------------------------------------------------------
// Class variables
// ---------------------------------------------------------------------------

// GetClassVar reads a class variable; the receiver's type tag must be the
// class kind. Unlike instance variables, reading an unset class variable
// raises a NameError inside the interpreter; that asymmetry belongs to the
// wrapped model and is preserved.
func (o *Object) GetClassVar(name string) (*Object, error) {
	id, err := o.g.resolveID(name, IDClassVar)
	if err != nil {
		return nil, err
	}
	return o.runObject(func(vm interp.VM, raw interp.Value) (interp.Value, error) {
		if vm.KindOf(raw) != interp.KindClass {
			return interp.None, &BadTypeError{Expected: "a class receiver for class variable " + name}
		}
		return o.g.protectLocked(vm, func() interp.Value {
			return vm.CvarGet(raw, id)
		})
	})
}

// SetClassVar writes a class variable on a class receiver and returns the
// stored value.
func (o *Object) SetClassVar(name string, value any) (*Object, error) {
	id, err := o.g.resolveID(name, IDClassVar)
	if err != nil {
		return nil, err
	}
	n, err := o.g.normalize(value)
	if err != nil {
		return nil, err
	}
	return o.runObject(func(vm interp.VM, raw interp.Value) (interp.Value, error) {
		if vm.KindOf(raw) != interp.KindClass {
			return interp.None, &BadTypeError{Expected: "a class receiver for class variable " + name}
		}
		v, cerr := o.g.toValueLocked(vm, n)
		if cerr != nil {
			return interp.None, cerr
		}
		return o.g.protectLocked(vm, func() interp.Value {
			vm.CvarSet(raw, id, v)
			return v
		})
	})
}

// ---------------------------------------------------------------------------
// Global variables
// ---------------------------------------------------------------------------

// GetGlobalVar reads a process-wide global variable slot. Globals are
// unscoped; the same operation is available on any Object for interface
// uniformity.
func (g *Gateway) GetGlobalVar(name string) (*Object, error) {
	id, err := g.resolveID(name, IDGlobalVar)
	if err != nil {
		return nil, err
	}
	return g.runObject(func(vm interp.VM) (interp.Value, error) {
		return g.protectLocked(vm, func() interp.Value {
			return vm.GvarGet(id)
		})
	})
}

// SetGlobalVar writes a global variable slot and returns the stored value.
func (g *Gateway) SetGlobalVar(name string, value any) (*Object, error) {
	id, err := g.resolveID(name, IDGlobalVar)
	if err != nil {
		return nil, err
	}
	n, err := g.normalize(value)
	if err != nil {
		return nil, err
	}
	return g.runObject(func(vm interp.VM) (interp.Value, error) {
		v, cerr := g.toValueLocked(vm, n)
		if cerr != nil {
			return interp.None, cerr
		}
		return g.protectLocked(vm, func() interp.Value {
			return vm.GvarSet(id, v)
		})
	})
}

// GetGlobalVar on an Object ignores the receiver; see Gateway.GetGlobalVar.
func (o *Object) GetGlobalVar(name string) (*Object, error) {
	return o.g.GetGlobalVar(name)
}

// SetGlobalVar on an Object ignores the receiver; see Gateway.SetGlobalVar.
func (o *Object) SetGlobalVar(name string, value any) (*Object, error) {
	return o.g.SetGlobalVar(name, value)
}

// ---------------------------------------------------------------------------
// Constants and classes
// ---------------------------------------------------------------------------

// constPath validates a :: separated constant path and interns its segments.
func (g *Gateway) constPath(path string) ([]interp.ID, error) {
	if !validName(path, IDConstant) {
		return nil, &BadIdentifierError{Name: path, Kind: IDConstant}
	}
	segments := strings.Split(path, "::")
	ids := make([]interp.ID, len(segments))
	for i, seg := range segments {
		id, err := g.resolveID(seg, IDConstant)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// constantLocked walks a constant path from base. The first segment uses the
// interpreter's inheritance-aware lookup (which may trigger autoload or
// const_missing hooks); every later segment resolves strictly at the value
// the previous segment produced, never walking back up an ancestor chain.
func (g *Gateway) constantLocked(vm interp.VM, base interp.Value, ids []interp.ID) (interp.Value, error) {
	v, err := g.protectLocked(vm, func() interp.Value {
		return vm.ConstGet(base, ids[0])
	})
	if err != nil {
		return interp.None, err
	}
	for _, id := range ids[1:] {
		scope := v
		v, err = g.protectLocked(vm, func() interp.Value {
			return vm.ConstGetAt(scope, id)
		})
		if err != nil {
			return interp.None, err
		}
	}
	return v, nil
}

// GetConstant resolves a constant path from the root scope.
func (g *Gateway) GetConstant(path string) (*Object, error) {
	ids, err := g.constPath(path)
	if err != nil {
		return nil, err
	}
	return g.runObject(func(vm interp.VM) (interp.Value, error) {
		return g.constantLocked(vm, vm.ObjectRoot(), ids)
	})
}

// GetConstant resolves a constant path relative to the receiver.
func (o *Object) GetConstant(path string) (*Object, error) {
	ids, err := o.g.constPath(path)
	if err != nil {
		return nil, err
	}
	return o.runObject(func(vm interp.VM, raw interp.Value) (interp.Value, error) {
		return o.g.constantLocked(vm, raw, ids)
	})
}

// classLocked resolves a constant path and requires the result to have the
// class kind.
func (g *Gateway) classLocked(vm interp.VM, base interp.Value, name string, ids []interp.ID) (interp.Value, error) {
	v, err := g.constantLocked(vm, base, ids)
	if err != nil {
		return interp.None, err
	}
	if vm.KindOf(v) != interp.KindClass {
		return interp.None, &BadTypeError{Expected: name + " to be a class"}
	}
	return v, nil
}

// GetClass resolves a constant path from the root scope and requires a
// class.
func (g *Gateway) GetClass(name string) (*Object, error) {
	ids, err := g.constPath(name)
	if err != nil {
		return nil, err
	}
	return g.runObject(func(vm interp.VM) (interp.Value, error) {
		return g.classLocked(vm, vm.ObjectRoot(), name, ids)
	})
}

// GetClass resolves a constant path relative to the receiver and requires a
// class.
func (o *Object) GetClass(name string) (*Object, error) {
	ids, err := o.g.constPath(name)
	if err != nil {
		return nil, err
	}
	return o.runObject(func(vm interp.VM, raw interp.Value) (interp.Value, error) {
		return o.g.classLocked(vm, raw, name, ids)
	})
}

// ---------------------------------------------------------------------------
// Method dispatch
// ---------------------------------------------------------------------------

// callLocked converts arguments, assembles the trailing keyword hash when
// keywords are present, and invokes the method through the boundary.
func (g *Gateway) callLocked(vm interp.VM, recv interp.Value, mid interp.ID, args []any, kwargs []KwArg) (interp.Value, error) {
	vals := make([]interp.Value, 0, len(args)+1)
	for _, a := range args {
		v, err := g.toValueLocked(vm, a)
		if err != nil {
			return interp.None, err
		}
		vals = append(vals, v)
	}

	if len(kwargs) > 0 {
		pairs := make([]interp.HashPair, len(kwargs))
		for i, kw := range kwargs {
			v, err := g.toValueLocked(vm, kw.Value)
			if err != nil {
				return interp.None, err
			}
			pairs[i] = interp.HashPair{
				Key:   vm.SymbolValue(vm.Intern(kw.Name)),
				Value: v,
			}
		}
		hv, err := g.protectLocked(vm, func() interp.Value {
			return vm.NewHash(pairs)
		})
		if err != nil {
			return interp.None, err
		}
		vals = append(vals, hv)
	}

	return g.protectLocked(vm, func() interp.Value {
		return vm.Funcall(recv, mid, vals)
	})
}

// Call invokes a method by name with positional arguments.
func (o *Object) Call(method string, args ...any) (*Object, error) {
	return o.CallKw(method, args, nil)
}

// CallKw invokes a method with positional and keyword arguments. Keyword
// arguments become one trailing hash whose keys are symbols; a repeated
// keyword name fails with DuplicateKwArgError before anything reaches the
// interpreter.
func (o *Object) CallKw(method string, args []any, kwargs []KwArg) (*Object, error) {
	if err := checkKwArgs(kwargs); err != nil {
		return nil, err
	}
	mid, err := o.g.resolveID(method, IDMethod)
	if err != nil {
		return nil, err
	}
	nargs, nkw, err := o.g.normalizeCall(args, kwargs)
	if err != nil {
		return nil, err
	}
	return o.runObject(func(vm interp.VM, raw interp.Value) (interp.Value, error) {
		return o.g.callLocked(vm, raw, mid, nargs, nkw)
	})
}

// CallSymbol invokes a method named by an existing symbol handle.
func (o *Object) CallSymbol(sym *Object, args ...any) (*Object, error) {
	return o.CallSymbolKw(sym, args, nil)
}

// CallSymbolKw invokes a method named by an existing symbol handle, with
// keyword arguments. The handle's type tag must be the symbol kind.
func (o *Object) CallSymbolKw(sym *Object, args []any, kwargs []KwArg) (*Object, error) {
	if err := checkKwArgs(kwargs); err != nil {
		return nil, err
	}
	if o.closed.Load() || sym.closed.Load() {
		return nil, ErrClosed
	}
	nargs, nkw, err := o.g.normalizeCall(args, kwargs)
	if err != nil {
		return nil, err
	}
	defer runtime.KeepAlive(o)
	defer runtime.KeepAlive(sym)
	recv, symRaw := o.raw, sym.raw
	return o.g.runObject(func(vm interp.VM) (interp.Value, error) {
		if vm.KindOf(symRaw) != interp.KindSymbol {
			return interp.None, &BadTypeError{Expected: "a symbol method name"}
		}
		mid := vm.SymbolIDOf(symRaw)
		return o.g.callLocked(vm, recv, mid, nargs, nkw)
	})
}

// normalizeCall pre-resolves Convertible arguments outside the admission
// point.
func (g *Gateway) normalizeCall(args []any, kwargs []KwArg) ([]any, []KwArg, error) {
	nargs := make([]any, len(args))
	for i, a := range args {
		n, err := g.normalize(a)
		if err != nil {
			return nil, nil, err
		}
		nargs[i] = n
	}
	if len(kwargs) == 0 {
		return nargs, nil, nil
	}
	nkw := make([]KwArg, len(kwargs))
	for i, kw := range kwargs {
		n, err := g.normalize(kw.Value)
		if err != nil {
			return nil, nil, err
		}
		nkw[i] = KwArg{Name: kw.Name, Value: n}
	}
	return nargs, nkw, nil
}

// ---------------------------------------------------------------------------
// Attributes
// ---------------------------------------------------------------------------

// GetAttribute reads an attribute: a zero-argument method call.
func (o *Object) GetAttribute(name string) (*Object, error) {
	if !identBody(name) {
		return nil, &BadIdentifierError{Name: name, Kind: IDMethod}
	}
	return o.Call(name)
}

// SetAttribute writes an attribute: a one-argument call to "name=".
func (o *Object) SetAttribute(name string, value any) (*Object, error) {
	if !identBody(name) {
		return nil, &BadIdentifierError{Name: name, Kind: IDMethod}
	}
	return o.Call(name+"=", value)
}

// ---------------------------------------------------------------------------
// Dynamic dispatch
// ---------------------------------------------------------------------------

// Get dispatches on the shape of name: @@name reads a class variable, @name
// an instance variable, $name a global, a capitalized name a constant path,
// and anything else is a zero-argument method call.
func (o *Object) Get(name string) (*Object, error) {
	switch {
	case strings.HasPrefix(name, "@@"):
		return o.GetClassVar(name)
	case strings.HasPrefix(name, "@"):
		return o.GetInstanceVar(name)
	case strings.HasPrefix(name, "$"):
		return o.GetGlobalVar(name)
	}
	if r, _ := utf8.DecodeRuneInString(name); unicode.IsUpper(r) {
		return o.GetConstant(name)
	}
	return o.Call(name)
}

// RespondsTo reports whether the receiver implements the named method,
// without invoking it.
func (o *Object) RespondsTo(method string) (bool, error) {
	mid, err := o.g.resolveID(method, IDMethod)
	if err != nil {
		return false, err
	}
	res, err := o.runAny(func(vm interp.VM, raw interp.Value) any {
		return vm.RespondsTo(raw, mid)
	})
	if err != nil {
		return false, err
	}
	return res.(bool), nil
}

// ---------------------------------------------------------------------------
// Gateway surface (top-level receiver)
// ---------------------------------------------------------------------------

// GetInstanceVar reads an instance variable on the top-level receiver.
func (g *Gateway) GetInstanceVar(name string) (*Object, error) {
	return g.topSelf.GetInstanceVar(name)
}

// SetInstanceVar writes an instance variable on the top-level receiver.
func (g *Gateway) SetInstanceVar(name string, value any) (*Object, error) {
	return g.topSelf.SetInstanceVar(name, value)
}

// GetClassVar behaves exactly like Object.GetClassVar addressed at the
// top-level receiver. The top-level receiver is not a class, so this fails
// with BadTypeError; the operation exists for interface uniformity.
func (g *Gateway) GetClassVar(name string) (*Object, error) {
	return g.topSelf.GetClassVar(name)
}

// SetClassVar behaves exactly like Object.SetClassVar addressed at the
// top-level receiver.
func (g *Gateway) SetClassVar(name string, value any) (*Object, error) {
	return g.topSelf.SetClassVar(name, value)
}

// Call invokes a top-level method.
func (g *Gateway) Call(method string, args ...any) (*Object, error) {
	return g.topSelf.CallKw(method, args, nil)
}

// CallKw invokes a top-level method with keyword arguments.
func (g *Gateway) CallKw(method string, args []any, kwargs []KwArg) (*Object, error) {
	return g.topSelf.CallKw(method, args, kwargs)
}

// CallSymbol invokes a top-level method named by a symbol handle.
func (g *Gateway) CallSymbol(sym *Object, args ...any) (*Object, error) {
	return g.topSelf.CallSymbolKw(sym, args, nil)
}

// CallSymbolKw invokes a top-level method named by a symbol handle, with
// keyword arguments.
func (g *Gateway) CallSymbolKw(sym *Object, args []any, kwargs []KwArg) (*Object, error) {
	return g.topSelf.CallSymbolKw(sym, args, kwargs)
}

// GetAttribute reads an attribute of the top-level receiver.
func (g *Gateway) GetAttribute(name string) (*Object, error) {
	return g.topSelf.GetAttribute(name)
}

// SetAttribute writes an attribute of the top-level receiver.
func (g *Gateway) SetAttribute(name string, value any) (*Object, error) {
	return g.topSelf.SetAttribute(name, value)
}

// Get dispatches on the shape of name from the top level: constants resolve
// from the root scope, everything else behaves as on the top-level receiver.
func (g *Gateway) Get(name string) (*Object, error) {
	switch {
	case strings.HasPrefix(name, "@@"):
		return g.GetClassVar(name)
	case strings.HasPrefix(name, "@"):
		return g.GetInstanceVar(name)
	case strings.HasPrefix(name, "$"):
		return g.GetGlobalVar(name)
	}
	if r, _ := utf8.DecodeRuneInString(name); unicode.IsUpper(r) {
		return g.GetConstant(name)
	}
	return g.Call(name)
}

// RespondsTo reports whether the top-level receiver implements a method.
func (g *Gateway) RespondsTo(method string) (bool, error) {
	return g.topSelf.RespondsTo(method)
}
