// Package symcache assigns stable array slots to the symbols a generated
// class refers to: strings, classes, methods and fields.
package symcache

import "fmt"

// ---------------------------------------------------------------------------
// Cache: first-seen slot assignment
// ---------------------------------------------------------------------------

// Cache maps keys to slot indices in strict first-seen order. Indices start
// at 0 and are never reused or reordered.
//
// A Cache belongs to exactly one class being generated and is not safe for
// concurrent use.
type Cache[K comparable] struct {
	array string    // name of the generated array, e.g. "cmethods"
	byKey map[K]int // key -> slot
	byID  []K       // slot -> key
}

// New creates an empty cache whose slots live in the generated array named
// array.
func New[K comparable](array string) *Cache[K] {
	return &Cache[K]{
		array: array,
		byKey: make(map[K]int),
	}
}

// Resolve returns the slot for key, allocating the next one if key is new.
func (c *Cache[K]) Resolve(key K) int {
	if id, ok := c.byKey[key]; ok {
		return id
	}
	id := len(c.byID)
	c.byKey[key] = id
	c.byID = append(c.byID, key)
	return id
}

// Lookup returns the slot for key without allocating.
func (c *Cache[K]) Lookup(key K) (int, bool) {
	id, ok := c.byKey[key]
	return id, ok
}

// Pointer returns the generated-code expression naming the slot of key,
// e.g. "cclasses[2]". The key is resolved if needed.
func (c *Cache[K]) Pointer(key K) string {
	return fmt.Sprintf("%s[%d]", c.array, c.Resolve(key))
}

// Array returns the name of the generated array backing the cache.
func (c *Cache[K]) Array() string {
	return c.array
}

// Len returns the number of distinct keys.
func (c *Cache[K]) Len() int {
	return len(c.byID)
}

// IsEmpty reports whether no key has been resolved.
func (c *Cache[K]) IsEmpty() bool {
	return len(c.byID) == 0
}

// Key returns the key stored in slot id.
func (c *Cache[K]) Key(id int) K {
	return c.byID[id]
}

// Entry is one cached key with its slot.
type Entry[K comparable] struct {
	Key K
	ID  int
}

// Entries returns all keys in insertion order.
func (c *Cache[K]) Entries() []Entry[K] {
	out := make([]Entry[K], len(c.byID))
	for id, key := range c.byID {
		out[id] = Entry[K]{Key: key, ID: id}
	}
	return out
}

// ---------------------------------------------------------------------------
// Keys
// ---------------------------------------------------------------------------

// MethodKey identifies a method id cell.
type MethodKey struct {
	Owner  string
	Name   string
	Desc   string
	Static bool
}

// FieldKey identifies a field id cell.
type FieldKey struct {
	Owner  string
	Name   string
	Desc   string
	Static bool
}

// Set is the four per-class caches.
type Set struct {
	Strings *Cache[string]
	Classes *Cache[string]
	Methods *Cache[MethodKey]
	Fields  *Cache[FieldKey]
}

// NewSet creates fresh caches backed by the standard generated arrays.
func NewSet() *Set {
	return &Set{
		Strings: New[string]("cstrings"),
		Classes: New[string]("cclasses"),
		Methods: New[MethodKey]("cmethods"),
		Fields:  New[FieldKey]("cfields"),
	}
}
