package interp

import "fmt"

// Value is an opaque handle to a value living in interpreter-managed memory.
//
// A Value is minted by the interpreter and is only meaningful to the
// interpreter that produced it. Host code never dereferences it; every
// operation on a Value goes back through the VM interface. Holding a Value
// does not by itself keep its referent alive; the interpreter's collector
// may reclaim the referent unless the handle has been registered via
// VM.Retain.
type Value uint64

// None is the zero Value. It is not a handle to anything; operations that
// fail return None alongside their error.
const None Value = 0

// ID is an interned identifier inside the interpreter's symbol table.
// IDs are immutable once created and interning is idempotent, so IDs may be
// cached for the process lifetime.
type ID uint32

// Kind is the allocation tag of a value's referent. It describes what kind
// of slot the interpreter allocated, which cannot change for the lifetime of
// the referent (unlike its identity, which reassignment can change).
type Kind int

const (
	KindNone Kind = iota
	KindNil
	KindTrue
	KindFalse
	KindInteger
	KindFloat
	KindString
	KindSymbol
	KindArray
	KindHash
	KindRange
	KindRegexp
	KindObject
	KindClass
	KindModule
	KindData
)

var kindNames = [...]string{
	KindNone:    "none",
	KindNil:     "nil",
	KindTrue:    "true",
	KindFalse:   "false",
	KindInteger: "Integer",
	KindFloat:   "Float",
	KindString:  "String",
	KindSymbol:  "Symbol",
	KindArray:   "Array",
	KindHash:    "Hash",
	KindRange:   "Range",
	KindRegexp:  "Regexp",
	KindObject:  "Object",
	KindClass:   "Class",
	KindModule:  "Module",
	KindData:    "Data",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// HashPair is one key/value entry for VM.NewHash. Pairs preserve the order
// they were supplied in; a later pair whose key equals an earlier key
// replaces the earlier entry.
type HashPair struct {
	Key   Value
	Value Value
}
