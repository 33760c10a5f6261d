// Package interp defines the narrow interface between the gateway and the
// embedded Ruby interpreter. The interpreter is an opaque service: it hands
// out opaque value handles, interns identifiers, exposes get/set primitives
// keyed by interned ID, and offers a single protected-call primitive that is
// the only sanctioned channel for operations that can raise.
//
// The gateway never reimplements interpreter semantics; it only composes the
// primitives below. Implementations of VM are expected to be single-threaded
// reentrant: exactly one goroutine may be executing VM methods at any
// instant, and the gateway enforces that by funneling all access through one
// worker goroutine.
package interp

// VM is the interpreter service consumed by the gateway.
//
// Methods fall into two groups. Raising operations may perform an
// interpreter-level non-local exit and are legal only inside the body passed
// to Protect; calling one outside a protected region leaves the interpreter
// stack in an undefined state. All other methods never raise and may be
// called directly (still under the single-goroutine discipline).
type VM interface {
	// Setup bootstraps the interpreter. Idempotent; must have completed
	// before any other method is used.
	Setup() error

	// Intern returns the interned ID for name, creating it if needed.
	// Interning is irreversible and idempotent. Never raises.
	Intern(name string) ID

	// IDName returns the name an ID was interned from.
	IDName(id ID) string

	// KindOf reports the allocation tag of v's referent. Never raises.
	KindOf(v Value) Kind

	// Same reports whether a and b are the identical referent (identity,
	// not value equality). Never raises.
	Same(a, b Value) bool

	// Retain registers v's referent with the collector's keep-alive table;
	// Release deregisters it. Calls must balance. While retained, the
	// referent is guaranteed reachable.
	Retain(v Value)
	Release(v Value)

	// Value constructors. Never raise.
	NilValue() Value
	BoolValue(b bool) Value
	IntValue(n int64) Value
	UintValue(n uint64) Value
	FloatValue(f float64) Value

	// StringValue builds an interpreter string carrying exactly the given
	// bytes (embedded NULs included) tagged with the named encoding.
	StringValue(b []byte, encoding string) Value

	// SymbolValue returns the symbol for an interned ID. The same ID always
	// yields the same handle.
	SymbolValue(id ID) Value

	// StringBytes returns a copy of the raw byte content and the encoding
	// tag of v, which must have KindString. Never raises.
	StringBytes(v Value) (b []byte, encoding string)

	// SymbolIDOf returns the interned ID of v, which must have KindSymbol.
	SymbolIDOf(v Value) ID

	// RespondsTo reports whether recv implements the method mid, without
	// invoking it. Never raises.
	RespondsTo(recv Value, mid ID) bool

	// TopSelf returns the top-level receiver ("main").
	TopSelf() Value

	// ObjectRoot returns the root class object, the scope from which
	// top-level constant resolution starts.
	ObjectRoot() Value

	// ArrayElems returns the elements of v, which must have KindArray.
	// Never raises.
	ArrayElems(v Value) []Value

	// HashPairs returns the entries of v in insertion order; v must have
	// KindHash. Never raises.
	HashPairs(v Value) []HashPair

	// Funcall invokes method mid on recv with positional args. Raising.
	Funcall(recv Value, mid ID, args []Value) Value

	// IvarGet reads an instance variable; an unset name yields the nil
	// value, not an error. IvarSet writes one and returns the stored value.
	// Both raising (a set on a frozen receiver raises).
	IvarGet(recv Value, id ID) Value
	IvarSet(recv Value, id ID, val Value) Value

	// CvarGet reads a class variable on a class receiver; reading an unset
	// name raises a NameError. This asymmetry with instance variables is
	// inherited from the interpreter and preserved. CvarSet writes one.
	// Both raising.
	CvarGet(recv Value, id ID) Value
	CvarSet(recv Value, id ID, val Value)

	// GvarGet and GvarSet access process-wide global variable slots,
	// unscoped by any receiver. Raising.
	GvarGet(id ID) Value
	GvarSet(id ID, val Value) Value

	// ConstGet resolves a constant at scope using the interpreter's
	// inheritance-aware lookup; it may trigger autoload or const_missing
	// hooks. ConstGetAt resolves strictly in scope's own table, never
	// walking ancestors. Both raise when the name is unresolvable.
	ConstGet(scope Value, id ID) Value
	ConstGetAt(scope Value, id ID) Value

	// NewArray and NewHash build container values from handles. Raising.
	NewArray(elems []Value) Value
	NewHash(pairs []HashPair) Value

	// Numeric extraction. Raising: a value outside the host range raises a
	// RangeError, a non-numeric receiver a TypeError.
	Int64Of(v Value) int64
	Uint64Of(v Value) uint64
	Float64Of(v Value) float64

	// Protect executes body under the interpreter's own protected-call
	// primitive. If body completes, ok is true and result holds its return
	// value. If the interpreter raises, the non-local exit is stopped here:
	// ok is false and raised holds the raised value, which is only
	// guaranteed alive until the next interpreter operation.
	Protect(body func() Value) (result Value, raised Value, ok bool)

	// ExceptionInfo extracts the class name and message of a raised value
	// without invoking interpreter methods that could themselves raise.
	ExceptionInfo(raised Value) (class, message string)
}
