package ruby

import (
	"fmt"
	"reflect"
	"runtime"

	"github.com/michaelsabo/RubyGateway/interp"
)

// Convertible is the host→interpreter direction of the conversion protocol.
// A host type that can represent itself as an interpreter value implements
// the single ToRuby operation. The interpreter→host direction is the family
// of As* extractors on Object; the two directions are independent because
// many types only make sense in one of them.
type Convertible interface {
	ToRuby(g *Gateway) (*Object, error)
}

// Pair is one entry of an extracted hash, in insertion order.
type Pair struct {
	Key   *Object
	Value *Object
}

// hostPair is a normalized hash entry awaiting conversion.
type hostPair struct {
	key any
	val any
}

// ---------------------------------------------------------------------------
// Host → interpreter
// ---------------------------------------------------------------------------

// NewObject converts a host value to a boxed interpreter value. Supported
// directly: nil, booleans, all integer and unsigned widths, floats, strings
// (raw bytes preserved, UTF-8 tagged), []byte (binary tagged), existing
// Objects, types implementing Convertible, and slices, arrays, and maps of
// any supported type. String content is carried byte-for-byte: embedded NUL
// bytes and multi-byte sequences survive the round trip exactly.
func (g *Gateway) NewObject(v any) (*Object, error) {
	n, err := g.normalize(v)
	if err != nil {
		return nil, err
	}
	return g.runObject(func(vm interp.VM) (interp.Value, error) {
		return g.toValueLocked(vm, n)
	})
}

// normalize resolves Convertible implementations and flattens typed slices
// and maps into []any and []hostPair. It runs outside the admission point so
// that ToRuby implementations are free to use the public Gateway surface.
func (g *Gateway) normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case Convertible:
		return x.ToRuby(g)
	case *Object, bool, string, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			n, err := g.normalize(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case reflect.Map:
		out := make([]hostPair, 0, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k, err := g.normalize(iter.Key().Interface())
			if err != nil {
				return nil, err
			}
			val, err := g.normalize(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			out = append(out, hostPair{key: k, val: val})
		}
		return out, nil
	}
	return nil, fmt.Errorf("ruby: no conversion for host type %T", v)
}

// toValueLocked maps a normalized host value to a raw handle. Must run on
// the interpreter worker goroutine. Container construction goes through the
// protected boundary; scalar constructors cannot raise.
func (g *Gateway) toValueLocked(vm interp.VM, v any) (interp.Value, error) {
	switch x := v.(type) {
	case nil:
		return vm.NilValue(), nil
	case *Object:
		if x.closed.Load() {
			return interp.None, ErrClosed
		}
		defer runtime.KeepAlive(x)
		return x.raw, nil
	case bool:
		return vm.BoolValue(x), nil
	case int:
		return vm.IntValue(int64(x)), nil
	case int8:
		return vm.IntValue(int64(x)), nil
	case int16:
		return vm.IntValue(int64(x)), nil
	case int32:
		return vm.IntValue(int64(x)), nil
	case int64:
		return vm.IntValue(x), nil
	case uint:
		return vm.UintValue(uint64(x)), nil
	case uint8:
		return vm.IntValue(int64(x)), nil
	case uint16:
		return vm.IntValue(int64(x)), nil
	case uint32:
		return vm.IntValue(int64(x)), nil
	case uint64:
		return vm.UintValue(x), nil
	case float32:
		return vm.FloatValue(float64(x)), nil
	case float64:
		return vm.FloatValue(x), nil
	case string:
		return vm.StringValue([]byte(x), "UTF-8"), nil
	case []byte:
		return vm.StringValue(x, "ASCII-8BIT"), nil
	case []any:
		elems := make([]interp.Value, len(x))
		for i, e := range x {
			ev, err := g.toValueLocked(vm, e)
			if err != nil {
				return interp.None, err
			}
			elems[i] = ev
		}
		return g.protectLocked(vm, func() interp.Value {
			return vm.NewArray(elems)
		})
	case []hostPair:
		pairs := make([]interp.HashPair, len(x))
		for i, p := range x {
			kv, err := g.toValueLocked(vm, p.key)
			if err != nil {
				return interp.None, err
			}
			vv, err := g.toValueLocked(vm, p.val)
			if err != nil {
				return interp.None, err
			}
			pairs[i] = interp.HashPair{Key: kv, Value: vv}
		}
		return g.protectLocked(vm, func() interp.Value {
			return vm.NewHash(pairs)
		})
	}
	return interp.None, fmt.Errorf("ruby: no conversion for host type %T", v)
}

// ---------------------------------------------------------------------------
// Literal fast paths
// ---------------------------------------------------------------------------
//
// These skip protocol dispatch but produce output identical to NewObject.

// NewInt boxes an integer literal.
func (g *Gateway) NewInt(n int64) (*Object, error) {
	return g.runObject(func(vm interp.VM) (interp.Value, error) {
		return vm.IntValue(n), nil
	})
}

// NewUint boxes an unsigned integer literal.
func (g *Gateway) NewUint(n uint64) (*Object, error) {
	return g.runObject(func(vm interp.VM) (interp.Value, error) {
		return vm.UintValue(n), nil
	})
}

// NewFloat boxes a float literal.
func (g *Gateway) NewFloat(f float64) (*Object, error) {
	return g.runObject(func(vm interp.VM) (interp.Value, error) {
		return vm.FloatValue(f), nil
	})
}

// NewBool boxes a boolean literal.
func (g *Gateway) NewBool(b bool) (*Object, error) {
	return g.runObject(func(vm interp.VM) (interp.Value, error) {
		return vm.BoolValue(b), nil
	})
}

// NewString boxes a string literal, UTF-8 tagged, bytes preserved exactly.
func (g *Gateway) NewString(s string) (*Object, error) {
	return g.runObject(func(vm interp.VM) (interp.Value, error) {
		return vm.StringValue([]byte(s), "UTF-8"), nil
	})
}

// NewStringBytes boxes raw bytes with an explicit encoding tag.
func (g *Gateway) NewStringBytes(b []byte, encoding string) (*Object, error) {
	return g.runObject(func(vm interp.VM) (interp.Value, error) {
		return vm.StringValue(b, encoding), nil
	})
}

// NewSymbol interns name and boxes the corresponding symbol.
func (g *Gateway) NewSymbol(name string) (*Object, error) {
	return g.runObject(func(vm interp.VM) (interp.Value, error) {
		return vm.SymbolValue(vm.Intern(name)), nil
	})
}

// ---------------------------------------------------------------------------
// Interpreter → host
// ---------------------------------------------------------------------------
//
// Extractors return (value, ok, err). ok=false with a nil error means the
// referent has no defined conversion, an expected outcome rather than a
// failure.
// A non-nil error means the interpreter raised while a conversion was
// attempted; that is never folded into absence.

type bytesOutcome struct {
	b   []byte
	enc string
	ok  bool
	err error
}

// stringBytesLocked applies the string conversion priority: a native string
// kind copies bytes directly; otherwise the strict coercion method (to_str)
// is tried, then the display method (to_s). A method that is implemented but
// yields a non-string ends the chain with absence; strict coercion always
// wins over display.
func (g *Gateway) stringBytesLocked(vm interp.VM, raw interp.Value, toStr, toS interp.ID) bytesOutcome {
	if vm.KindOf(raw) == interp.KindString {
		b, enc := vm.StringBytes(raw)
		return bytesOutcome{b: b, enc: enc, ok: true}
	}
	for _, mid := range []interp.ID{toStr, toS} {
		if !vm.RespondsTo(raw, mid) {
			continue
		}
		v, err := g.protectLocked(vm, func() interp.Value {
			return vm.Funcall(raw, mid, nil)
		})
		if err != nil {
			return bytesOutcome{err: err}
		}
		if vm.KindOf(v) == interp.KindString {
			b, enc := vm.StringBytes(v)
			return bytesOutcome{b: b, enc: enc, ok: true}
		}
		return bytesOutcome{}
	}
	return bytesOutcome{}
}

// AsBytes extracts the referent's string content as raw bytes plus its
// encoding tag, following the strict-coercion-first priority.
func (o *Object) AsBytes() ([]byte, string, bool, error) {
	toStr, err := o.g.resolveID("to_str", IDMethod)
	if err != nil {
		return nil, "", false, err
	}
	toS, err := o.g.resolveID("to_s", IDMethod)
	if err != nil {
		return nil, "", false, err
	}

	res, err := o.runAny(func(vm interp.VM, raw interp.Value) any {
		return o.g.stringBytesLocked(vm, raw, toStr, toS)
	})
	if err != nil {
		return nil, "", false, err
	}
	out := res.(bytesOutcome)
	return out.b, out.enc, out.ok, out.err
}

// AsString extracts the referent as a host string, bytes carried exactly.
func (o *Object) AsString() (string, bool, error) {
	b, _, ok, err := o.AsBytes()
	return string(b), ok, err
}

type intOutcome struct {
	n   int64
	u   uint64
	f   float64
	ok  bool
	err error
}

// AsInt64 extracts a signed integer. Integer and Float referents convert
// directly (a value outside the int64 range surfaces the interpreter's
// RangeError); otherwise to_int is tried when implemented.
func (o *Object) AsInt64() (int64, bool, error) {
	toInt, err := o.g.resolveID("to_int", IDMethod)
	if err != nil {
		return 0, false, err
	}
	res, err := o.runAny(func(vm interp.VM, raw interp.Value) any {
		v, ok, perr := numericLocked(o.g, vm, raw, toInt)
		if perr != nil || !ok {
			return intOutcome{err: perr}
		}
		n, perr := protectInt64(o.g, vm, v)
		if perr != nil {
			return intOutcome{err: perr}
		}
		return intOutcome{n: n, ok: true}
	})
	if err != nil {
		return 0, false, err
	}
	out := res.(intOutcome)
	return out.n, out.ok, out.err
}

// AsUint64 extracts an unsigned integer; negative referents surface the
// interpreter's RangeError.
func (o *Object) AsUint64() (uint64, bool, error) {
	toInt, err := o.g.resolveID("to_int", IDMethod)
	if err != nil {
		return 0, false, err
	}
	res, err := o.runAny(func(vm interp.VM, raw interp.Value) any {
		v, ok, perr := numericLocked(o.g, vm, raw, toInt)
		if perr != nil || !ok {
			return intOutcome{err: perr}
		}
		var u uint64
		_, perr = o.g.protectLocked(vm, func() interp.Value {
			u = vm.Uint64Of(v)
			return v
		})
		if perr != nil {
			return intOutcome{err: perr}
		}
		return intOutcome{u: u, ok: true}
	})
	if err != nil {
		return 0, false, err
	}
	out := res.(intOutcome)
	return out.u, out.ok, out.err
}

// AsFloat64 extracts a float. Float and Integer referents convert directly.
func (o *Object) AsFloat64() (float64, bool, error) {
	res, err := o.runAny(func(vm interp.VM, raw interp.Value) any {
		switch vm.KindOf(raw) {
		case interp.KindFloat, interp.KindInteger:
			var f float64
			_, perr := o.g.protectLocked(vm, func() interp.Value {
				f = vm.Float64Of(raw)
				return raw
			})
			if perr != nil {
				return intOutcome{err: perr}
			}
			return intOutcome{f: f, ok: true}
		}
		return intOutcome{}
	})
	if err != nil {
		return 0, false, err
	}
	out := res.(intOutcome)
	return out.f, out.ok, out.err
}

// AsBool extracts a boolean. Only the interpreter's true and false convert;
// truthiness of other values is not a conversion.
func (o *Object) AsBool() (bool, bool, error) {
	res, err := o.runAny(func(vm interp.VM, raw interp.Value) any {
		switch vm.KindOf(raw) {
		case interp.KindTrue:
			return intOutcome{n: 1, ok: true}
		case interp.KindFalse:
			return intOutcome{n: 0, ok: true}
		}
		return intOutcome{}
	})
	if err != nil {
		return false, false, err
	}
	out := res.(intOutcome)
	return out.n == 1, out.ok, out.err
}

// AsSymbol extracts the name of a symbol referent.
func (o *Object) AsSymbol() (string, bool, error) {
	res, err := o.runAny(func(vm interp.VM, raw interp.Value) any {
		if vm.KindOf(raw) != interp.KindSymbol {
			return bytesOutcome{}
		}
		return bytesOutcome{b: []byte(vm.IDName(vm.SymbolIDOf(raw))), ok: true}
	})
	if err != nil {
		return "", false, err
	}
	out := res.(bytesOutcome)
	return string(out.b), out.ok, out.err
}

type sliceOutcome struct {
	elems []*Object
	pairs []Pair
	ok    bool
	err   error
}

// AsSlice extracts the elements of an array referent, each boxed. A
// non-array referent implementing to_ary converts through it.
func (o *Object) AsSlice() ([]*Object, bool, error) {
	toAry, err := o.g.resolveID("to_ary", IDMethod)
	if err != nil {
		return nil, false, err
	}
	res, err := o.runAny(func(vm interp.VM, raw interp.Value) any {
		v := raw
		if vm.KindOf(v) != interp.KindArray {
			if !vm.RespondsTo(v, toAry) {
				return sliceOutcome{}
			}
			converted, perr := o.g.protectLocked(vm, func() interp.Value {
				return vm.Funcall(v, toAry, nil)
			})
			if perr != nil {
				return sliceOutcome{err: perr}
			}
			if vm.KindOf(converted) != interp.KindArray {
				return sliceOutcome{}
			}
			v = converted
		}
		raws := vm.ArrayElems(v)
		elems := make([]*Object, len(raws))
		for i, e := range raws {
			elems[i] = o.g.newObjectLocked(vm, e)
		}
		return sliceOutcome{elems: elems, ok: true}
	})
	if err != nil {
		return nil, false, err
	}
	out := res.(sliceOutcome)
	return out.elems, out.ok, out.err
}

// AsMap extracts the entries of a hash referent in insertion order, keys and
// values boxed. A non-hash referent implementing to_hash converts through
// it.
func (o *Object) AsMap() ([]Pair, bool, error) {
	toHash, err := o.g.resolveID("to_hash", IDMethod)
	if err != nil {
		return nil, false, err
	}
	res, err := o.runAny(func(vm interp.VM, raw interp.Value) any {
		v := raw
		if vm.KindOf(v) != interp.KindHash {
			if !vm.RespondsTo(v, toHash) {
				return sliceOutcome{}
			}
			converted, perr := o.g.protectLocked(vm, func() interp.Value {
				return vm.Funcall(v, toHash, nil)
			})
			if perr != nil {
				return sliceOutcome{err: perr}
			}
			if vm.KindOf(converted) != interp.KindHash {
				return sliceOutcome{}
			}
			v = converted
		}
		raws := vm.HashPairs(v)
		pairs := make([]Pair, len(raws))
		for i, p := range raws {
			pairs[i] = Pair{
				Key:   o.g.newObjectLocked(vm, p.Key),
				Value: o.g.newObjectLocked(vm, p.Value),
			}
		}
		return sliceOutcome{pairs: pairs, ok: true}
	})
	if err != nil {
		return nil, false, err
	}
	out := res.(sliceOutcome)
	return out.pairs, out.ok, out.err
}

// numericLocked resolves a referent to an integer-kinded handle, via to_int
// when needed. Absent when no integer representation exists.
func numericLocked(g *Gateway, vm interp.VM, raw interp.Value, toInt interp.ID) (interp.Value, bool, error) {
	switch vm.KindOf(raw) {
	case interp.KindInteger, interp.KindFloat:
		return raw, true, nil
	}
	if !vm.RespondsTo(raw, toInt) {
		return interp.None, false, nil
	}
	v, err := g.protectLocked(vm, func() interp.Value {
		return vm.Funcall(raw, toInt, nil)
	})
	if err != nil {
		return interp.None, false, err
	}
	if vm.KindOf(v) != interp.KindInteger {
		return interp.None, false, nil
	}
	return v, true, nil
}

// protectInt64 runs the raising integer extraction under the boundary.
func protectInt64(g *Gateway, vm interp.VM, v interp.Value) (int64, error) {
	var n int64
	_, err := g.protectLocked(vm, func() interp.Value {
		n = vm.Int64Of(v)
		return v
	})
	return n, err
}
