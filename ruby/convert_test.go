package ruby

import (
	"errors"
	"math"
	"testing"

	"github.com/michaelsabo/RubyGateway/interp"
	"github.com/michaelsabo/RubyGateway/interptest"
)

func TestStringRoundTrip(t *testing.T) {
	g, _ := newTestGateway(t)

	for _, s := range []string{
		"",
		"hello",
		"héllo wörld",
		"日本語",
		"embedded\x00nul",
		"trailing\x00",
	} {
		obj, err := g.NewString(s)
		if err != nil {
			t.Fatalf("NewString(%q) failed: %v", s, err)
		}
		got, ok, err := obj.AsString()
		if err != nil || !ok {
			t.Fatalf("AsString(%q) = (_, %v, %v)", s, ok, err)
		}
		if got != s {
			t.Errorf("round trip of %q = %q", s, got)
		}
	}
}

func TestBytesRoundTrip(t *testing.T) {
	g, _ := newTestGateway(t)

	raw := []byte{0x00, 0xff, 0x7f, 0x80}
	obj, err := g.NewObject(raw)
	if err != nil {
		t.Fatalf("NewObject failed: %v", err)
	}
	b, enc, ok, err := obj.AsBytes()
	if err != nil || !ok {
		t.Fatalf("AsBytes = (_, _, %v, %v)", ok, err)
	}
	if string(b) != string(raw) {
		t.Errorf("bytes = %v, want %v", b, raw)
	}
	if enc != "ASCII-8BIT" {
		t.Errorf("encoding = %q, want ASCII-8BIT", enc)
	}

	str, err := g.NewString("tagged")
	if err != nil {
		t.Fatalf("NewString failed: %v", err)
	}
	_, enc, _, _ = str.AsBytes()
	if enc != "UTF-8" {
		t.Errorf("string encoding = %q, want UTF-8", enc)
	}
}

func TestStringConversionPriority(t *testing.T) {
	g, fake := newTestGateway(t)

	both := fake.DefineClass("Both", interp.None)
	fake.DefineMethod(both, "to_str", func(vm *interptest.VM, recv interp.Value, args []interp.Value) interp.Value {
		return vm.StringValue([]byte("strict"), "UTF-8")
	})
	fake.DefineMethod(both, "to_s", func(vm *interptest.VM, recv interp.Value, args []interp.Value) interp.Value {
		return vm.StringValue([]byte("display"), "UTF-8")
	})

	s, ok, err := wrap(g, fake.NewInstance(both)).AsString()
	if err != nil || !ok {
		t.Fatalf("AsString = (_, %v, %v)", ok, err)
	}
	if s != "strict" {
		t.Errorf("AsString = %q, want the to_str result", s)
	}

	displayOnly := fake.DefineClass("DisplayOnly", interp.None)
	fake.DefineMethod(displayOnly, "to_s", func(vm *interptest.VM, recv interp.Value, args []interp.Value) interp.Value {
		return vm.StringValue([]byte("display"), "UTF-8")
	})
	s, ok, err = wrap(g, fake.NewInstance(displayOnly)).AsString()
	if err != nil || !ok || s != "display" {
		t.Errorf("AsString = (%q, %v, %v), want (display, true, nil)", s, ok, err)
	}
}

func TestStringConversionAbsent(t *testing.T) {
	g, fake := newTestGateway(t)

	mute := wrap(g, fake.NewInstance(fake.DefineClass("Wordless", interp.None)))
	s, ok, err := mute.AsString()
	if err != nil {
		t.Fatalf("absence reported as error: %v", err)
	}
	if ok || s != "" {
		t.Errorf("AsString = (%q, %v), want absent", s, ok)
	}

	// to_str implemented but yielding a non-string ends the chain with
	// absence rather than falling through to to_s.
	liar := fake.DefineClass("Liar", interp.None)
	fake.DefineMethod(liar, "to_str", func(vm *interptest.VM, recv interp.Value, args []interp.Value) interp.Value {
		return vm.IntValue(3)
	})
	fake.DefineMethod(liar, "to_s", func(vm *interptest.VM, recv interp.Value, args []interp.Value) interp.Value {
		return vm.StringValue([]byte("should not be reached"), "UTF-8")
	})
	s, ok, err = wrap(g, fake.NewInstance(liar)).AsString()
	if err != nil || ok {
		t.Errorf("AsString = (%q, %v, %v), want absence", s, ok, err)
	}
}

func TestStringConversionRaisePropagates(t *testing.T) {
	g, fake := newTestGateway(t)

	angry := fake.DefineClass("Angry", interp.None)
	fake.DefineMethod(angry, "to_str", func(vm *interptest.VM, recv interp.Value, args []interp.Value) interp.Value {
		vm.Raise("TypeError", "not today")
		return interp.None
	})

	_, ok, err := wrap(g, fake.NewInstance(angry)).AsString()
	var exc *Exception
	if !errors.As(err, &exc) {
		t.Fatalf("error = %v, want Exception", err)
	}
	if ok {
		t.Error("raise also reported ok")
	}
	if exc.Class != "TypeError" || exc.Message != "not today" {
		t.Errorf("Exception = %+v", exc)
	}
	if g.HistoryLen() != 1 {
		t.Errorf("history length = %d, want 1", g.HistoryLen())
	}
}

func TestNumericRoundTrips(t *testing.T) {
	g, _ := newTestGateway(t)

	obj, err := g.NewObject(int32(-7))
	if err != nil {
		t.Fatalf("NewObject failed: %v", err)
	}
	if n, ok, err := obj.AsInt64(); err != nil || !ok || n != -7 {
		t.Errorf("AsInt64 = (%d, %v, %v), want (-7, true, nil)", n, ok, err)
	}

	obj, err = g.NewUint(math.MaxUint64)
	if err != nil {
		t.Fatalf("NewUint failed: %v", err)
	}
	if u, ok, err := obj.AsUint64(); err != nil || !ok || u != math.MaxUint64 {
		t.Errorf("AsUint64 = (%d, %v, %v)", u, ok, err)
	}

	obj, err = g.NewFloat(2.5)
	if err != nil {
		t.Fatalf("NewFloat failed: %v", err)
	}
	if f, ok, err := obj.AsFloat64(); err != nil || !ok || f != 2.5 {
		t.Errorf("AsFloat64 = (%g, %v, %v), want (2.5, true, nil)", f, ok, err)
	}

	// Integers convert to float, strings do not.
	obj, _ = g.NewInt(3)
	if f, ok, err := obj.AsFloat64(); err != nil || !ok || f != 3 {
		t.Errorf("AsFloat64 = (%g, %v, %v), want (3, true, nil)", f, ok, err)
	}
	obj, _ = g.NewString("3")
	if _, ok, err := obj.AsFloat64(); err != nil || ok {
		t.Errorf("AsFloat64 on string = (_, %v, %v), want absence", ok, err)
	}
}

func TestNumericRangeErrors(t *testing.T) {
	g, _ := newTestGateway(t)

	obj, err := g.NewInt(-5)
	if err != nil {
		t.Fatalf("NewInt failed: %v", err)
	}
	_, ok, err := obj.AsUint64()
	var exc *Exception
	if !errors.As(err, &exc) || exc.Class != "RangeError" {
		t.Errorf("AsUint64(-5) error = %v, want RangeError", err)
	}
	if ok {
		t.Error("out-of-range also reported ok")
	}

	obj, err = g.NewUint(math.MaxUint64)
	if err != nil {
		t.Fatalf("NewUint failed: %v", err)
	}
	_, _, err = obj.AsInt64()
	if !errors.As(err, &exc) || exc.Class != "RangeError" {
		t.Errorf("AsInt64(MaxUint64) error = %v, want RangeError", err)
	}
}

func TestAsInt64ViaToInt(t *testing.T) {
	g, fake := newTestGateway(t)

	cls := fake.DefineClass("Countable", interp.None)
	fake.DefineMethod(cls, "to_int", func(vm *interptest.VM, recv interp.Value, args []interp.Value) interp.Value {
		return vm.IntValue(7)
	})

	n, ok, err := wrap(g, fake.NewInstance(cls)).AsInt64()
	if err != nil || !ok || n != 7 {
		t.Errorf("AsInt64 = (%d, %v, %v), want (7, true, nil)", n, ok, err)
	}

	// No to_int: absence, not an error.
	plain := wrap(g, fake.NewInstance(fake.DefineClass("Uncountable", interp.None)))
	_, ok, err = plain.AsInt64()
	if err != nil || ok {
		t.Errorf("AsInt64 = (_, %v, %v), want absence", ok, err)
	}
}

func TestAsBool(t *testing.T) {
	g, _ := newTestGateway(t)

	obj, _ := g.NewBool(true)
	if b, ok, err := obj.AsBool(); err != nil || !ok || !b {
		t.Errorf("AsBool(true) = (%v, %v, %v)", b, ok, err)
	}
	obj, _ = g.NewBool(false)
	if b, ok, err := obj.AsBool(); err != nil || !ok || b {
		t.Errorf("AsBool(false) = (%v, %v, %v)", b, ok, err)
	}

	// Truthiness is not a conversion.
	obj, _ = g.NewInt(1)
	if _, ok, err := obj.AsBool(); err != nil || ok {
		t.Errorf("AsBool(1) = (_, %v, %v), want absence", ok, err)
	}
}

func TestSymbolRoundTrip(t *testing.T) {
	g, _ := newTestGateway(t)

	obj, err := g.NewSymbol("dispatch")
	if err != nil {
		t.Fatalf("NewSymbol failed: %v", err)
	}
	name, ok, err := obj.AsSymbol()
	if err != nil || !ok || name != "dispatch" {
		t.Errorf("AsSymbol = (%q, %v, %v), want (dispatch, true, nil)", name, ok, err)
	}

	str, _ := g.NewString("dispatch")
	if _, ok, _ := str.AsSymbol(); ok {
		t.Error("AsSymbol on a string reported ok")
	}
}

func TestSliceConversion(t *testing.T) {
	g, _ := newTestGateway(t)

	obj, err := g.NewObject([]int{1, 2, 3})
	if err != nil {
		t.Fatalf("NewObject failed: %v", err)
	}
	elems, ok, err := obj.AsSlice()
	if err != nil || !ok {
		t.Fatalf("AsSlice = (_, %v, %v)", ok, err)
	}
	if len(elems) != 3 {
		t.Fatalf("len = %d, want 3", len(elems))
	}
	for i, want := range []int64{1, 2, 3} {
		n, ok, err := elems[i].AsInt64()
		if err != nil || !ok || n != want {
			t.Errorf("elems[%d] = (%d, %v, %v), want %d", i, n, ok, err, want)
		}
	}

	// Mixed and nested host values.
	obj, err = g.NewObject([]any{"a", 2, []any{true}})
	if err != nil {
		t.Fatalf("NewObject failed: %v", err)
	}
	elems, _, err = obj.AsSlice()
	if err != nil || len(elems) != 3 {
		t.Fatalf("nested AsSlice = (%d elems, %v)", len(elems), err)
	}
	inner, ok, err := elems[2].AsSlice()
	if err != nil || !ok || len(inner) != 1 {
		t.Fatalf("inner AsSlice = (%d elems, %v, %v)", len(inner), ok, err)
	}
	if b, ok, _ := inner[0].AsBool(); !ok || !b {
		t.Errorf("inner[0] = (%v, %v), want true", b, ok)
	}
}

func TestSliceConversionViaToAry(t *testing.T) {
	g, fake := newTestGateway(t)

	cls := fake.DefineClass("Listy", interp.None)
	fake.DefineMethod(cls, "to_ary", func(vm *interptest.VM, recv interp.Value, args []interp.Value) interp.Value {
		return vm.NewArray([]interp.Value{vm.IntValue(10), vm.IntValue(20)})
	})

	elems, ok, err := wrap(g, fake.NewInstance(cls)).AsSlice()
	if err != nil || !ok || len(elems) != 2 {
		t.Fatalf("AsSlice = (%d elems, %v, %v)", len(elems), ok, err)
	}
	if n, _, _ := elems[1].AsInt64(); n != 20 {
		t.Errorf("elems[1] = %d, want 20", n)
	}
}

func TestMapConversion(t *testing.T) {
	g, _ := newTestGateway(t)

	obj, err := g.NewObject(map[string]int{"answer": 42})
	if err != nil {
		t.Fatalf("NewObject failed: %v", err)
	}
	pairs, ok, err := obj.AsMap()
	if err != nil || !ok || len(pairs) != 1 {
		t.Fatalf("AsMap = (%d pairs, %v, %v)", len(pairs), ok, err)
	}
	k, _, _ := pairs[0].Key.AsString()
	v, _, _ := pairs[0].Value.AsInt64()
	if k != "answer" || v != 42 {
		t.Errorf("pair = (%q, %d), want (answer, 42)", k, v)
	}

	// Non-hash referent without to_hash: absence.
	str, _ := g.NewString("not a hash")
	if _, ok, err := str.AsMap(); err != nil || ok {
		t.Errorf("AsMap on string = (_, %v, %v), want absence", ok, err)
	}
}

type temperature struct {
	celsius float64
}

func (tc temperature) ToRuby(g *Gateway) (*Object, error) {
	return g.NewFloat(tc.celsius)
}

func TestConvertibleHostType(t *testing.T) {
	g, _ := newTestGateway(t)

	obj, err := g.NewObject(temperature{celsius: 21.5})
	if err != nil {
		t.Fatalf("NewObject failed: %v", err)
	}
	f, ok, err := obj.AsFloat64()
	if err != nil || !ok || f != 21.5 {
		t.Errorf("AsFloat64 = (%g, %v, %v), want (21.5, true, nil)", f, ok, err)
	}

	// Convertible elements inside containers resolve too.
	obj, err = g.NewObject([]temperature{{1}, {2}})
	if err != nil {
		t.Fatalf("NewObject failed: %v", err)
	}
	elems, ok, err := obj.AsSlice()
	if err != nil || !ok || len(elems) != 2 {
		t.Fatalf("AsSlice = (%d elems, %v, %v)", len(elems), ok, err)
	}
}

func TestNewObjectUnsupportedType(t *testing.T) {
	g, _ := newTestGateway(t)

	if _, err := g.NewObject(make(chan int)); err == nil {
		t.Error("NewObject(chan) succeeded, want error")
	}
}

func TestLiteralFastPathsMatchGeneralPath(t *testing.T) {
	g, _ := newTestGateway(t)

	fast, err := g.NewInt(99)
	if err != nil {
		t.Fatalf("NewInt failed: %v", err)
	}
	general, err := g.NewObject(99)
	if err != nil {
		t.Fatalf("NewObject failed: %v", err)
	}
	a, _, _ := fast.AsInt64()
	b, _, _ := general.AsInt64()
	if a != b {
		t.Errorf("fast path = %d, general path = %d", a, b)
	}

	fk, _ := fast.TypeTag()
	gk, _ := general.TypeTag()
	if fk != gk {
		t.Errorf("kind mismatch: %v vs %v", fk, gk)
	}
}
