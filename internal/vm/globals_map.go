package vm

import (
	"hash/fnv"
	"math/bits"
	"sort"
)

// Globals is the VM's global variable table. It is backed by an immutable
// trie: every write swaps in a new root, so Snapshot is free and a snapshot
// never observes later writes.
type Globals struct {
	m *PersistentMap
}

// NewGlobals creates an empty global table
func NewGlobals() *Globals {
	return &Globals{m: EmptyMap()}
}

// Get returns the value bound to name
func (g *Globals) Get(name string) (Value, bool) {
	return g.m.Get(name)
}

// Define binds name, overwriting any previous binding
func (g *Globals) Define(name string, value Value) {
	g.m = g.m.Put(name, value)
}

// Set rebinds an existing name. It reports false, leaving the table
// unchanged, when name is not defined.
func (g *Globals) Set(name string, value Value) bool {
	if _, ok := g.m.Get(name); !ok {
		return false
	}
	g.m = g.m.Put(name, value)
	return true
}

// Len returns the number of defined globals
func (g *Globals) Len() int {
	return g.m.Len()
}

// Snapshot returns the current immutable contents
func (g *Globals) Snapshot() *PersistentMap {
	return g.m
}

// Each trie level consumes levelBits of the key hash.
const (
	levelBits = 5
	levelMask = 1<<levelBits - 1
	maxShift  = 30 // below this all 32 hash bits are used up
)

// PersistentMap is an immutable hash array mapped trie keyed by string.
// Put copies only the path from the root to the changed slot.
type PersistentMap struct {
	root *trieNode
	size int
}

// trieNode stores one slot per set bit of bitmap, in bit order.
type trieNode struct {
	bitmap uint32
	slots  []trieSlot
}

// trieSlot is either a subtree or a list of bindings. The list has more
// than one element only for full-hash collisions at the deepest level.
type trieSlot struct {
	child    *trieNode
	bindings []binding
}

type binding struct {
	hash  uint32
	key   string
	value Value
}

var emptyMap = &PersistentMap{}

// EmptyMap returns the empty map. It is shared; Put never modifies it.
func EmptyMap() *PersistentMap {
	return emptyMap
}

// Len returns the number of entries
func (m *PersistentMap) Len() int {
	return m.size
}

// Get returns the value for key
func (m *PersistentMap) Get(key string) (Value, bool) {
	h := hashKey(key)
	for n, shift := m.root, uint(0); n != nil; shift += levelBits {
		_, pos, ok := n.locate(h, shift)
		if !ok {
			return Value{}, false
		}
		slot := &n.slots[pos]
		if slot.child == nil {
			return findBinding(slot.bindings, h, key)
		}
		n = slot.child
	}
	return Value{}, false
}

// Put returns a map with key bound to value; m itself is left unchanged
func (m *PersistentMap) Put(key string, value Value) *PersistentMap {
	b := binding{hash: hashKey(key), key: key, value: value}
	root, added := m.root.with(b, 0)
	size := m.size
	if added {
		size++
	}
	return &PersistentMap{root: root, size: size}
}

// Keys returns all keys in sorted order
func (m *PersistentMap) Keys() []string {
	keys := make([]string, 0, m.size)
	m.Range(func(key string, _ Value) bool {
		keys = append(keys, key)
		return true
	})
	sort.Strings(keys)
	return keys
}

// Range calls f for each entry, in no particular order, until f returns false
func (m *PersistentMap) Range(f func(key string, value Value) bool) {
	m.root.walk(f)
}

// locate returns the bit for h at this level, the slot index it maps to
// and whether that slot is occupied.
func (n *trieNode) locate(h uint32, shift uint) (uint32, int, bool) {
	bit := uint32(1) << ((h >> shift) & levelMask)
	pos := bits.OnesCount32(n.bitmap & (bit - 1))
	return bit, pos, n.bitmap&bit != 0
}

// with returns a copy of n that contains b, and whether b's key was new.
// A nil receiver is treated as an empty node.
func (n *trieNode) with(b binding, shift uint) (*trieNode, bool) {
	if n == nil {
		n = &trieNode{}
	}
	bit, pos, occupied := n.locate(b.hash, shift)

	if !occupied {
		slots := make([]trieSlot, 0, len(n.slots)+1)
		slots = append(slots, n.slots[:pos]...)
		slots = append(slots, trieSlot{bindings: []binding{b}})
		slots = append(slots, n.slots[pos:]...)
		return &trieNode{bitmap: n.bitmap | bit, slots: slots}, true
	}

	next := &trieNode{bitmap: n.bitmap, slots: append([]trieSlot(nil), n.slots...)}
	slot := n.slots[pos]

	if slot.child != nil {
		child, added := slot.child.with(b, shift+levelBits)
		next.slots[pos] = trieSlot{child: child}
		return next, added
	}

	for i, old := range slot.bindings {
		if old.hash == b.hash && old.key == b.key {
			bindings := append([]binding(nil), slot.bindings...)
			bindings[i] = b
			next.slots[pos] = trieSlot{bindings: bindings}
			return next, false
		}
	}

	if shift >= maxShift {
		bindings := append(append([]binding(nil), slot.bindings...), b)
		next.slots[pos] = trieSlot{bindings: bindings}
		return next, true
	}

	// Push the resident binding one level down and retry there
	var child *trieNode
	for _, old := range slot.bindings {
		child, _ = child.with(old, shift+levelBits)
	}
	child, added := child.with(b, shift+levelBits)
	next.slots[pos] = trieSlot{child: child}
	return next, added
}

func (n *trieNode) walk(f func(key string, value Value) bool) bool {
	if n == nil {
		return true
	}
	for i := range n.slots {
		slot := &n.slots[i]
		if slot.child != nil {
			if !slot.child.walk(f) {
				return false
			}
			continue
		}
		for _, b := range slot.bindings {
			if !f(b.key, b.value) {
				return false
			}
		}
	}
	return true
}

func findBinding(bindings []binding, h uint32, key string) (Value, bool) {
	for _, b := range bindings {
		if b.hash == h && b.key == key {
			return b.value, true
		}
	}
	return Value{}, false
}

func hashKey(s string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(s))
	return h.Sum32()
}
