package ruby

import (
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// cborEncMode uses canonical mode so history snapshots encode
// deterministically.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("ruby: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// ErrorHistory is the process-wide log of exceptions captured at the
// protected-call boundary. Every caught exception is appended, whether or
// not the immediate caller recovered, so probing callers can still audit
// what the interpreter raised. The log is bounded by capacity (oldest
// entries dropped first) and read-only to clients; it resets only when the
// process restarts.
type ErrorHistory struct {
	mu      sync.Mutex
	cap     int
	entries []Exception
}

const defaultHistoryCapacity = 128

func newErrorHistory(capacity int) *ErrorHistory {
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	return &ErrorHistory{cap: capacity}
}

// append records a captured exception, dropping the oldest entry when the
// capacity is reached.
func (h *ErrorHistory) append(e *Exception) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.entries) == h.cap {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:h.cap-1]
	}
	h.entries = append(h.entries, *e)
}

// All returns a copy of the history, oldest first.
func (h *ErrorHistory) All() []Exception {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Exception, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of recorded exceptions.
func (h *ErrorHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// HistorySnapshot is the serialized form of the error history.
type HistorySnapshot struct {
	Capacity int         `cbor:"capacity"`
	Entries  []Exception `cbor:"entries"`
}

// MarshalCBOR serializes the current history to canonical CBOR bytes.
func (h *ErrorHistory) MarshalCBOR() ([]byte, error) {
	h.mu.Lock()
	snap := HistorySnapshot{
		Capacity: h.cap,
		Entries:  make([]Exception, len(h.entries)),
	}
	copy(snap.Entries, h.entries)
	h.mu.Unlock()

	return cborEncMode.Marshal(&snap)
}

// UnmarshalHistorySnapshot decodes a snapshot produced by MarshalCBOR.
func UnmarshalHistorySnapshot(data []byte) (*HistorySnapshot, error) {
	var snap HistorySnapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("ruby: unmarshal history snapshot: %w", err)
	}
	return &snap, nil
}
