package ir

import "github.com/dolthub/swiss"

// Interner assigns stable, dense indices to strings as they are first
// seen. The assembler (internal/asm) uses one per Program build to
// turn function names into FunctionIdx values, and, per function, one
// for label names (LabelIdx values) and one for variable names
// (Variable ids).
//
// Modeled on lang/machine.Map from the teacher: a single-threaded,
// high-fanout lookup table is exactly what dolthub/swiss is for, and
// an Interner is built fresh per Parse call and never touched
// concurrently, so the non-thread-safe swiss.Map is the right choice
// here (contrast internal/concurrent.ShardedMap, used where multiple
// goroutines actually write concurrently).
type Interner struct {
	m    *swiss.Map[string, uint32]
	strs []string
}

// NewInterner returns an empty Interner.
func NewInterner() *Interner {
	return &Interner{m: swiss.NewMap[string, uint32](16)}
}

// Intern returns the dense index for s, assigning a new one the first
// time s is seen.
func (in *Interner) Intern(s string) uint32 {
	if idx, ok := in.m.Get(s); ok {
		return idx
	}
	idx := uint32(len(in.strs))
	in.strs = append(in.strs, s)
	in.m.Put(s, idx)
	return idx
}

// Lookup returns the dense index for s without assigning one, for
// callers that must distinguish an already-declared name from an
// undeclared reference (Intern would silently mint a new index for
// the latter).
func (in *Interner) Lookup(s string) (uint32, bool) {
	return in.m.Get(s)
}

// String returns the string interned at idx.
func (in *Interner) String(idx uint32) string { return in.strs[idx] }

// Len returns the number of distinct strings interned so far.
func (in *Interner) Len() int { return len(in.strs) }
