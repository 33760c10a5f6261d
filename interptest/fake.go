// Package interptest provides an in-memory scriptable interpreter
// implementing interp.VM, for testing code built on the gateway without a
// real embedded Ruby. Tests can define classes, methods, and constants,
// raise exceptions from method bodies, force collections, and inspect
// keep-alive registration counts and how many primitive operations the
// bridge issued.
package interptest

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/michaelsabo/RubyGateway/interp"
)

// Method is a host-implemented method body. It may raise by calling
// vm.Raise, which unwinds to the nearest Protect.
type Method func(vm *VM, recv interp.Value, args []interp.Value) interp.Value

// slot is one cell of interpreter-managed memory. A handle is an index into
// the slot table.
type slot struct {
	kind interp.Kind
	live bool

	i64      int64
	u64      uint64
	uintRepr bool
	f64      float64
	bytes    []byte
	enc      string
	sym      interp.ID
	elems    []interp.Value
	pairs    []interp.HashPair

	class interp.Value
	ivars map[interp.ID]interp.Value

	// class payload
	name    string
	super   interp.Value
	consts  map[interp.ID]interp.Value
	cvars   map[interp.ID]interp.Value
	methods map[interp.ID]Method
}

// VM is the fake interpreter. It is single-threaded like the real thing:
// the gateway's worker goroutine is the only legal caller once a gateway
// wraps it.
type VM struct {
	setupCalls int

	ops      atomic.Int64
	protects atomic.Int64

	symbols map[string]interp.ID
	names   []string
	symVals map[interp.ID]interp.Value

	slots []slot

	nilVal   interp.Value
	trueVal  interp.Value
	falseVal interp.Value
	topSelf  interp.Value

	objectClass interp.Value
	classes     []interp.Value

	globals  map[interp.ID]interp.Value
	retained map[interp.Value]int

	// ConstMissing, when set, is consulted by the inheritance-aware lookup
	// after the ancestor walk fails, mimicking autoload/const_missing.
	// The strict per-scope lookup never consults it.
	ConstMissing func(scope interp.Value, name string) (interp.Value, bool)
}

// raiseSignal is the interpreter's non-local exit. It unwinds Go frames via
// panic and is stopped only by Protect.
type raiseSignal struct {
	exc interp.Value
}

// New creates a fake interpreter with the core class hierarchy (Object,
// Integer, Float, String, Symbol, Array, Hash, and the standard error
// classes) already defined.
func New() *VM {
	vm := &VM{
		symbols:  make(map[string]interp.ID),
		names:    []string{""}, // ID 0 unused
		symVals:  make(map[interp.ID]interp.Value),
		slots:    make([]slot, 1), // handle 0 is interp.None
		globals:  make(map[interp.ID]interp.Value),
		retained: make(map[interp.Value]int),
	}

	vm.nilVal = vm.alloc(slot{kind: interp.KindNil})
	vm.trueVal = vm.alloc(slot{kind: interp.KindTrue})
	vm.falseVal = vm.alloc(slot{kind: interp.KindFalse})

	vm.objectClass = vm.alloc(slot{
		kind:    interp.KindClass,
		name:    "Object",
		consts:  make(map[interp.ID]interp.Value),
		cvars:   make(map[interp.ID]interp.Value),
		methods: make(map[interp.ID]Method),
	})
	vm.classes = append(vm.classes, vm.objectClass)

	for _, name := range []string{
		"Integer", "Float", "String", "Symbol", "Array", "Hash",
	} {
		vm.DefineClass(name, vm.objectClass)
	}
	std := vm.DefineClass("StandardError", vm.objectClass)
	nameErr := vm.DefineClass("NameError", std)
	vm.DefineClass("NoMethodError", nameErr)
	vm.DefineClass("TypeError", std)
	vm.DefineClass("RangeError", std)
	vm.DefineClass("RuntimeError", std)

	// Default identity equality on Object.
	vm.DefineMethod(vm.objectClass, "==", func(vm *VM, recv interp.Value, args []interp.Value) interp.Value {
		if len(args) == 1 && args[0] == recv {
			return vm.trueVal
		}
		return vm.falseVal
	})

	vm.topSelf = vm.NewInstance(vm.objectClass)
	return vm
}

func (vm *VM) alloc(s slot) interp.Value {
	s.live = true
	vm.slots = append(vm.slots, s)
	return interp.Value(len(vm.slots) - 1)
}

// at returns the slot for a handle, panicking on a dead or invalid handle.
// A dead handle means the test used a value after Collect swept it.
func (vm *VM) at(v interp.Value) *slot {
	i := int(v)
	if i <= 0 || i >= len(vm.slots) {
		panic(fmt.Sprintf("interptest: invalid handle %d", i))
	}
	s := &vm.slots[i]
	if !s.live {
		panic(fmt.Sprintf("interptest: use of collected handle %d", i))
	}
	return s
}

func (vm *VM) touch() {
	vm.ops.Add(1)
}

// ---------------------------------------------------------------------------
// interp.VM implementation
// ---------------------------------------------------------------------------

func (vm *VM) Setup() error {
	vm.setupCalls++
	return nil
}

func (vm *VM) Intern(name string) interp.ID {
	vm.touch()
	if id, ok := vm.symbols[name]; ok {
		return id
	}
	id := interp.ID(len(vm.names))
	vm.symbols[name] = id
	vm.names = append(vm.names, name)
	return id
}

func (vm *VM) IDName(id interp.ID) string {
	if int(id) >= len(vm.names) {
		return ""
	}
	return vm.names[id]
}

func (vm *VM) KindOf(v interp.Value) interp.Kind {
	vm.touch()
	return vm.at(v).kind
}

func (vm *VM) Same(a, b interp.Value) bool {
	vm.touch()
	return a == b
}

func (vm *VM) Retain(v interp.Value) {
	vm.touch()
	vm.retained[v]++
}

func (vm *VM) Release(v interp.Value) {
	vm.touch()
	if vm.retained[v] > 1 {
		vm.retained[v]--
	} else {
		delete(vm.retained, v)
	}
}

func (vm *VM) NilValue() interp.Value   { vm.touch(); return vm.nilVal }
func (vm *VM) BoolValue(b bool) interp.Value {
	vm.touch()
	if b {
		return vm.trueVal
	}
	return vm.falseVal
}

func (vm *VM) IntValue(n int64) interp.Value {
	vm.touch()
	return vm.alloc(slot{kind: interp.KindInteger, i64: n, class: vm.classNamed("Integer")})
}

func (vm *VM) UintValue(n uint64) interp.Value {
	vm.touch()
	return vm.alloc(slot{kind: interp.KindInteger, u64: n, uintRepr: true, class: vm.classNamed("Integer")})
}

func (vm *VM) FloatValue(f float64) interp.Value {
	vm.touch()
	return vm.alloc(slot{kind: interp.KindFloat, f64: f, class: vm.classNamed("Float")})
}

func (vm *VM) StringValue(b []byte, encoding string) interp.Value {
	vm.touch()
	buf := make([]byte, len(b))
	copy(buf, b)
	return vm.alloc(slot{kind: interp.KindString, bytes: buf, enc: encoding, class: vm.classNamed("String")})
}

func (vm *VM) SymbolValue(id interp.ID) interp.Value {
	vm.touch()
	if v, ok := vm.symVals[id]; ok {
		return v
	}
	v := vm.alloc(slot{kind: interp.KindSymbol, sym: id, class: vm.classNamed("Symbol")})
	vm.symVals[id] = v
	return v
}

func (vm *VM) StringBytes(v interp.Value) ([]byte, string) {
	vm.touch()
	s := vm.at(v)
	out := make([]byte, len(s.bytes))
	copy(out, s.bytes)
	return out, s.enc
}

func (vm *VM) SymbolIDOf(v interp.Value) interp.ID {
	vm.touch()
	return vm.at(v).sym
}

func (vm *VM) RespondsTo(recv interp.Value, mid interp.ID) bool {
	vm.touch()
	return vm.findMethod(vm.classOf(recv), mid) != nil
}

func (vm *VM) TopSelf() interp.Value    { vm.touch(); return vm.topSelf }
func (vm *VM) ObjectRoot() interp.Value { vm.touch(); return vm.objectClass }

func (vm *VM) ArrayElems(v interp.Value) []interp.Value {
	vm.touch()
	s := vm.at(v)
	out := make([]interp.Value, len(s.elems))
	copy(out, s.elems)
	return out
}

func (vm *VM) HashPairs(v interp.Value) []interp.HashPair {
	vm.touch()
	s := vm.at(v)
	out := make([]interp.HashPair, len(s.pairs))
	copy(out, s.pairs)
	return out
}

func (vm *VM) Funcall(recv interp.Value, mid interp.ID, args []interp.Value) interp.Value {
	vm.touch()
	m := vm.findMethod(vm.classOf(recv), mid)
	if m == nil {
		vm.Raise("NoMethodError", fmt.Sprintf("undefined method '%s'", vm.IDName(mid)))
	}
	return m(vm, recv, args)
}

func (vm *VM) IvarGet(recv interp.Value, id interp.ID) interp.Value {
	vm.touch()
	s := vm.at(recv)
	if v, ok := s.ivars[id]; ok {
		return v
	}
	return vm.nilVal
}

func (vm *VM) IvarSet(recv interp.Value, id interp.ID, val interp.Value) interp.Value {
	vm.touch()
	s := vm.at(recv)
	if s.ivars == nil {
		s.ivars = make(map[interp.ID]interp.Value)
	}
	s.ivars[id] = val
	return val
}

func (vm *VM) CvarGet(recv interp.Value, id interp.ID) interp.Value {
	vm.touch()
	if vm.at(recv).kind != interp.KindClass {
		vm.Raise("TypeError", "receiver is not a class")
	}
	for c := recv; c != interp.None; c = vm.at(c).super {
		if v, ok := vm.at(c).cvars[id]; ok {
			return v
		}
	}
	vm.Raise("NameError", fmt.Sprintf("uninitialized class variable %s in %s",
		vm.IDName(id), vm.at(recv).name))
	return interp.None
}

func (vm *VM) CvarSet(recv interp.Value, id interp.ID, val interp.Value) {
	vm.touch()
	s := vm.at(recv)
	if s.kind != interp.KindClass {
		vm.Raise("TypeError", "receiver is not a class")
	}
	if s.cvars == nil {
		s.cvars = make(map[interp.ID]interp.Value)
	}
	s.cvars[id] = val
}

func (vm *VM) GvarGet(id interp.ID) interp.Value {
	vm.touch()
	if v, ok := vm.globals[id]; ok {
		return v
	}
	return vm.nilVal
}

func (vm *VM) GvarSet(id interp.ID, val interp.Value) interp.Value {
	vm.touch()
	vm.globals[id] = val
	return val
}

func (vm *VM) ConstGet(scope interp.Value, id interp.ID) interp.Value {
	vm.touch()
	s := vm.at(scope)
	if s.kind != interp.KindClass && s.kind != interp.KindModule {
		vm.Raise("TypeError", "scope is not a class or module")
	}
	for c := scope; c != interp.None; c = vm.at(c).super {
		if v, ok := vm.at(c).consts[id]; ok {
			return v
		}
	}
	if vm.ConstMissing != nil {
		if v, ok := vm.ConstMissing(scope, vm.IDName(id)); ok {
			return v
		}
	}
	vm.Raise("NameError", "uninitialized constant "+vm.IDName(id))
	return interp.None
}

func (vm *VM) ConstGetAt(scope interp.Value, id interp.ID) interp.Value {
	vm.touch()
	s := vm.at(scope)
	if s.kind != interp.KindClass && s.kind != interp.KindModule {
		vm.Raise("TypeError", "scope is not a class or module")
	}
	if v, ok := s.consts[id]; ok {
		return v
	}
	vm.Raise("NameError", fmt.Sprintf("uninitialized constant %s::%s", s.name, vm.IDName(id)))
	return interp.None
}

func (vm *VM) NewArray(elems []interp.Value) interp.Value {
	vm.touch()
	buf := make([]interp.Value, len(elems))
	copy(buf, elems)
	return vm.alloc(slot{kind: interp.KindArray, elems: buf, class: vm.classNamed("Array")})
}

func (vm *VM) NewHash(pairs []interp.HashPair) interp.Value {
	vm.touch()
	var out []interp.HashPair
	for _, p := range pairs {
		replaced := false
		for i := range out {
			if vm.keyEqual(out[i].Key, p.Key) {
				out[i].Value = p.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return vm.alloc(slot{kind: interp.KindHash, pairs: out, class: vm.classNamed("Hash")})
}

func (vm *VM) Int64Of(v interp.Value) int64 {
	vm.touch()
	s := vm.at(v)
	switch s.kind {
	case interp.KindInteger:
		if s.uintRepr {
			if s.u64 > math.MaxInt64 {
				vm.Raise("RangeError", "integer too big to convert")
			}
			return int64(s.u64)
		}
		return s.i64
	case interp.KindFloat:
		return int64(s.f64)
	}
	vm.Raise("TypeError", "not a numeric value")
	return 0
}

func (vm *VM) Uint64Of(v interp.Value) uint64 {
	vm.touch()
	s := vm.at(v)
	switch s.kind {
	case interp.KindInteger:
		if s.uintRepr {
			return s.u64
		}
		if s.i64 < 0 {
			vm.Raise("RangeError", "negative integer cannot convert to unsigned")
		}
		return uint64(s.i64)
	case interp.KindFloat:
		if s.f64 < 0 {
			vm.Raise("RangeError", "negative value cannot convert to unsigned")
		}
		return uint64(s.f64)
	}
	vm.Raise("TypeError", "not a numeric value")
	return 0
}

func (vm *VM) Float64Of(v interp.Value) float64 {
	vm.touch()
	s := vm.at(v)
	switch s.kind {
	case interp.KindFloat:
		return s.f64
	case interp.KindInteger:
		if s.uintRepr {
			return float64(s.u64)
		}
		return float64(s.i64)
	}
	vm.Raise("TypeError", "not a numeric value")
	return 0
}

func (vm *VM) Protect(body func() interp.Value) (result, raised interp.Value, ok bool) {
	vm.protects.Add(1)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		sig, isRaise := r.(raiseSignal)
		if !isRaise {
			panic(r)
		}
		raised = sig.exc
		ok = false
	}()
	result = body()
	ok = true
	return
}

func (vm *VM) ExceptionInfo(raised interp.Value) (class, message string) {
	s := vm.at(raised)
	class = "RuntimeError"
	if s.class != interp.None {
		class = vm.at(s.class).name
	}
	return class, string(s.bytes)
}

// ---------------------------------------------------------------------------
// Scripting surface for tests
// ---------------------------------------------------------------------------

// Raise performs an interpreter-level raise of an exception instance of the
// named class. Unwinds to the nearest Protect; panics through host frames if
// no protected region is active.
func (vm *VM) Raise(className, message string) {
	cls := vm.classNamed(className)
	if cls == interp.None {
		cls = vm.classNamed("RuntimeError")
	}
	exc := vm.alloc(slot{kind: interp.KindObject, class: cls, bytes: []byte(message)})
	panic(raiseSignal{exc: exc})
}

// DefineClass defines a class under the root scope. A super of interp.None
// means Object.
func (vm *VM) DefineClass(name string, super interp.Value) interp.Value {
	return vm.defineClassIn(vm.objectClass, name, super)
}

// DefineClassUnder defines a class namespaced strictly inside scope, so it
// is visible to the strict per-scope constant lookup at that scope only.
func (vm *VM) DefineClassUnder(scope interp.Value, name string, super interp.Value) interp.Value {
	return vm.defineClassIn(scope, name, super)
}

func (vm *VM) defineClassIn(scope interp.Value, name string, super interp.Value) interp.Value {
	if super == interp.None {
		super = vm.objectClass
	}
	cls := vm.alloc(slot{
		kind:    interp.KindClass,
		name:    name,
		super:   super,
		consts:  make(map[interp.ID]interp.Value),
		cvars:   make(map[interp.ID]interp.Value),
		methods: make(map[interp.ID]Method),
	})
	vm.classes = append(vm.classes, cls)
	vm.at(scope).consts[vm.Intern(name)] = cls
	return cls
}

// DefineConst binds a constant strictly inside scope.
func (vm *VM) DefineConst(scope interp.Value, name string, val interp.Value) {
	vm.at(scope).consts[vm.Intern(name)] = val
}

// DefineMethod installs a method on a class.
func (vm *VM) DefineMethod(class interp.Value, name string, m Method) {
	vm.at(class).methods[vm.Intern(name)] = m
}

// NewInstance allocates a plain object of the given class.
func (vm *VM) NewInstance(class interp.Value) interp.Value {
	return vm.alloc(slot{kind: interp.KindObject, class: class})
}

// Ops returns how many interpreter primitives have been issued. Snapshot it
// around an operation to prove the bridge did or did not touch the
// interpreter.
func (vm *VM) Ops() int64 {
	return vm.ops.Load()
}

// ProtectCount returns how many protected regions have been entered.
func (vm *VM) ProtectCount() int64 {
	return vm.protects.Load()
}

// SetupCalls returns how many times Setup ran.
func (vm *VM) SetupCalls() int {
	return vm.setupCalls
}

// RetainCount returns the keep-alive registration count for a handle.
func (vm *VM) RetainCount(v interp.Value) int {
	return vm.retained[v]
}

// Live reports whether a handle's slot has not been swept.
func (vm *VM) Live(v interp.Value) bool {
	i := int(v)
	return i > 0 && i < len(vm.slots) && vm.slots[i].live
}

// Collect runs a mark-and-sweep over the slot table. Roots are the
// singletons, defined classes, globals, interned symbols, and every retained
// handle; anything unreachable is swept and later use of its handle panics.
func (vm *VM) Collect() {
	marked := make(map[interp.Value]bool)
	var mark func(v interp.Value)
	mark = func(v interp.Value) {
		i := int(v)
		if i <= 0 || i >= len(vm.slots) || marked[v] || !vm.slots[i].live {
			return
		}
		marked[v] = true
		s := &vm.slots[i]
		mark(s.class)
		mark(s.super)
		for _, e := range s.elems {
			mark(e)
		}
		for _, p := range s.pairs {
			mark(p.Key)
			mark(p.Value)
		}
		for _, iv := range s.ivars {
			mark(iv)
		}
		for _, c := range s.consts {
			mark(c)
		}
		for _, c := range s.cvars {
			mark(c)
		}
	}

	mark(vm.nilVal)
	mark(vm.trueVal)
	mark(vm.falseVal)
	mark(vm.topSelf)
	for _, c := range vm.classes {
		mark(c)
	}
	for _, g := range vm.globals {
		mark(g)
	}
	for _, s := range vm.symVals {
		mark(s)
	}
	for v := range vm.retained {
		mark(v)
	}

	for i := 1; i < len(vm.slots); i++ {
		if vm.slots[i].live && !marked[interp.Value(i)] {
			vm.slots[i].live = false
		}
	}
}

// ---------------------------------------------------------------------------
// Lookup helpers
// ---------------------------------------------------------------------------

func (vm *VM) classOf(v interp.Value) interp.Value {
	s := vm.at(v)
	if s.kind == interp.KindClass {
		// Methods defined on a class are callable on the class itself;
		// good enough for a test double.
		return v
	}
	if s.class != interp.None {
		return s.class
	}
	return vm.objectClass
}

func (vm *VM) findMethod(class interp.Value, mid interp.ID) Method {
	for c := class; c != interp.None; c = vm.at(c).super {
		if m, ok := vm.at(c).methods[mid]; ok {
			return m
		}
	}
	return nil
}

func (vm *VM) classNamed(name string) interp.Value {
	id, ok := vm.symbols[name]
	if !ok {
		return interp.None
	}
	if v, ok := vm.at(vm.objectClass).consts[id]; ok && vm.at(v).kind == interp.KindClass {
		return v
	}
	return interp.None
}

func (vm *VM) keyEqual(a, b interp.Value) bool {
	if a == b {
		return true
	}
	sa, sb := vm.at(a), vm.at(b)
	if sa.kind != sb.kind {
		return false
	}
	switch sa.kind {
	case interp.KindString:
		return string(sa.bytes) == string(sb.bytes)
	case interp.KindSymbol:
		return sa.sym == sb.sym
	case interp.KindInteger:
		return !sa.uintRepr && !sb.uintRepr && sa.i64 == sb.i64
	}
	return false
}
