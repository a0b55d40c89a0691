// Package dictionary implements the bidirectional string<->id interner
// shared by fields, operators-as-values, and string predicate values across
// the engine. Ids are dense and stable for the lifetime of a Dictionary;
// a Dictionary is built once during compilation and is read-only afterward.
package dictionary

import "sync"

// ID is a dense, zero-based identifier assigned in first-seen order.
type ID uint32

// Invalid is returned by Lookup when a string has never been interned.
const Invalid ID = ^ID(0)

// Dictionary interns strings to dense ids and back. The zero value is not
// usable; construct with New.
type Dictionary struct {
	mu      sync.RWMutex
	toID    map[string]ID
	toValue []string
	frozen  bool
}

// New returns an empty, mutable Dictionary.
func New() *Dictionary {
	return &Dictionary{
		toID: make(map[string]ID),
	}
}

// Intern returns the id for s, assigning a new one if s has not been seen
// before. Intern panics if the Dictionary has been frozen.
func (d *Dictionary) Intern(s string) ID {
	d.mu.Lock()
	defer d.mu.Unlock()

	if id, ok := d.toID[s]; ok {
		return id
	}
	if d.frozen {
		panic("dictionary: Intern called after Freeze")
	}
	id := ID(len(d.toValue))
	d.toID[s] = id
	d.toValue = append(d.toValue, s)
	return id
}

// Lookup returns the id for s without interning it, and false if s is
// unknown.
func (d *Dictionary) Lookup(s string) (ID, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.toID[s]
	if !ok {
		return Invalid, false
	}
	return id, true
}

// Value returns the string for id. It panics if id is out of range, which
// can only happen by misuse since ids are only ever minted by Intern.
func (d *Dictionary) Value(id ID) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.toValue[int(id)]
}

// Len returns the number of distinct strings interned so far.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.toValue)
}

// Freeze marks the Dictionary read-only. Subsequent Intern calls for
// already-known strings still succeed; interning a new string panics.
// A frozen Dictionary is safe for unsynchronized concurrent reads.
func (d *Dictionary) Freeze() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.frozen = true
}

// Frozen reports whether Freeze has been called.
func (d *Dictionary) Frozen() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.frozen
}
