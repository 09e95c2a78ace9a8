// Package xlatecache implements the translation cache (TC): a per-row
// slot holding one of {nothing, a parsed expression tree, a fully-
// normalized match set plus its conjunction-id offset}.
package xlatecache

import (
	"container/list"

	"github.com/ovnlocal/lflow/internal/sbmodel"
)

// State is the state a row's TC entry can be in.
type State uint8

// State values.
const (
	Empty State = iota
	Expr
	Matches
)

// ExprTree is an opaque clone of a simplified (not condition-evaluated, not
// normalized) expression tree. The concrete shape is owned by the match-
// grammar collaborator (spec.md §1); the cache only clones, stores, and
// evicts it.
type ExprTree interface {
	// Clone returns a deep copy safe for independent mutation.
	Clone() ExprTree
}

// MatchSet is the opaque, fully expanded set of concrete matches produced
// for a row. Same non-ownership note as ExprTree.
type MatchSet interface{}

// Entry is one row's cached artifact.
type Entry struct {
	State State

	// Valid when State == Expr.
	Expr ExprTree

	// Valid when State == Matches.
	Matches  MatchSet
	ConjBase uint32
	ConjN    uint32

	size int
}

// Cache is the translation cache. It is size-bounded and evicts by a
// least-recently-used policy when Put* pushes total size over the bound;
// memory-pressure eviction policy beyond LRU is opaque to this package
// (spec.md §4.3). It may also be disabled entirely, in which case every
// Put* is a no-op and Get always returns State == Empty.
type Cache struct {
	maxSize     int
	currentSize int
	disabled    bool

	entries map[sbmodel.RowID]*list.Element
	order   *list.List // front = most recently used
}

type node struct {
	row   sbmodel.RowID
	entry Entry
}

// New returns a Cache bounded by maxSize units of the caller-supplied size
// metric (e.g. approximate byte count of the cached artifact).
func New(maxSize int) *Cache {
	return &Cache{
		maxSize: maxSize,
		entries: make(map[sbmodel.RowID]*list.Element),
		order:   list.New(),
	}
}

// Enabled reports whether the cache currently accepts writes.
func (c *Cache) Enabled() bool {
	return !c.disabled
}

// SetEnabled toggles the cache. Disabling clears all entries; a disabled
// cache always reports State == Empty from Get and drops every Put*.
func (c *Cache) SetEnabled(enabled bool) {
	c.disabled = !enabled
	if c.disabled {
		c.clear()
	}
}

// Get returns the current entry for row, or a zero Entry with
// State == Empty if none exists.
func (c *Cache) Get(row sbmodel.RowID) Entry {
	el, ok := c.entries[row]
	if !ok {
		return Entry{State: Empty}
	}
	c.order.MoveToFront(el)
	return el.Value.(*node).entry
}

// PutExpr installs an Expr entry for row, sized at size units.
//
// Placement rule (§4.3): callers must only do this when the row had no
// address-set or port-group references during parse; the cache itself
// does not enforce that precondition.
func (c *Cache) PutExpr(row sbmodel.RowID, expr ExprTree, size int) {
	if c.disabled {
		return
	}
	c.put(row, Entry{State: Expr, Expr: expr, size: size})
}

// PutMatches installs a Matches entry for row.
//
// Placement rule (§4.3): callers must only do this when, additionally, R
// currently has no row→refs entry for this row at all.
func (c *Cache) PutMatches(row sbmodel.RowID, conjBase, n uint32, matches MatchSet, size int) {
	if c.disabled {
		return
	}
	c.put(row, Entry{State: Matches, ConjBase: conjBase, ConjN: n, Matches: matches, size: size})
}

// Delete evicts row's entry, if any.
func (c *Cache) Delete(row sbmodel.RowID) {
	el, ok := c.entries[row]
	if !ok {
		return
	}
	c.removeElement(el)
}

func (c *Cache) put(row sbmodel.RowID, e Entry) {
	if el, ok := c.entries[row]; ok {
		c.removeElement(el)
	}

	el := c.order.PushFront(&node{row: row, entry: e})
	c.entries[row] = el
	c.currentSize += e.size

	c.evictToFit()
}

func (c *Cache) evictToFit() {
	if c.maxSize <= 0 {
		return
	}
	for c.currentSize > c.maxSize {
		back := c.order.Back()
		if back == nil {
			return
		}
		c.removeElement(back)
	}
}

func (c *Cache) removeElement(el *list.Element) {
	n := el.Value.(*node)
	c.currentSize -= n.entry.size
	delete(c.entries, n.row)
	c.order.Remove(el)
}

func (c *Cache) clear() {
	c.entries = make(map[sbmodel.RowID]*list.Element)
	c.order = list.New()
	c.currentSize = 0
}
