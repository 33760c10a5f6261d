// Package ruby is an embedding bridge to a separately-running Ruby
// interpreter. Host code creates, inspects, calls into, and destroys
// interpreter-managed values through opaque handles, without ever touching
// interpreter memory directly.
//
// The hard problem the package solves is safe cross-runtime interoperation:
//
//   - Objects box raw handles and keep their referents registered with the
//     interpreter's collector for exactly as long as host code holds them
//     (reference-counted keep-alive, released on Close or by a runtime
//     cleanup scheduled onto the interpreter goroutine).
//
//   - Every operation that can raise inside the interpreter passes through
//     one protected-call boundary, which stops the interpreter's non-local
//     exit, copies the raised value's class and message into a host-native
//     Exception, and appends it to a bounded process-wide error history.
//
//   - A bidirectional conversion protocol maps host types to interpreter
//     values and back. Host→interpreter covers primitives, strings (raw
//     bytes, embedded NULs and multi-byte sequences preserved), slices,
//     maps, and any type implementing Convertible. Interpreter→host
//     extractors return (value, ok, err): absence of a conversion is an
//     expected outcome, distinct from an interpreter raise.
//
//   - The object-access layer provides method dispatch with positional and
//     keyword arguments, attribute, instance/class/global variable access,
//     inheritance-aware constant resolution, and a sigil-sniffing Get
//     dispatcher, uniformly on the Gateway and on every Object.
//
// # Concurrency
//
// The interpreter owns a single logical execution context. The Gateway
// funnels all access through one worker goroutine pinned to an OS thread;
// operations are synchronous, blocking, and observed in submission order.
// There is no cancellation at this layer; a long-running interpreter call
// cannot be preempted.
//
// # Identifiers
//
// Names are validated host-side against the shape their kind requires
// (@ivar, @@cvar, $gvar, Constant::Path, method) before anything reaches the
// interpreter, then interned and memoized for the process lifetime.
package ruby
