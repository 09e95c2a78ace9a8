// Package cidpool implements the conjunction-id allocator (CID): a
// per-row, per-datapath allocation of small contiguous integer ranges used
// as labels in conjunctive matches.
package cidpool

import (
	"fmt"

	"github.com/ovnlocal/lflow/internal/sbmodel"
)

// owner identifies the (row, datapath) pair that owns a slice.
type owner struct {
	Row      sbmodel.RowID
	Datapath sbmodel.DatapathID
}

// slice is a half-open range [Base, Base+N).
type slice struct {
	Base uint32
	N    uint32
}

func (s slice) end() uint64 {
	return uint64(s.Base) + uint64(s.N)
}

func (s slice) overlaps(o slice) bool {
	return uint64(s.Base) < o.end() && uint64(o.Base) < s.end()
}

// Allocator owns the free pool of conjunction ids over [1, 2^32). Id 0
// means "none". It is not internally concurrent; callers consult it under
// the translator's single-threaded discipline.
type Allocator struct {
	used   map[owner]slice
	byOwnerRow map[sbmodel.RowID][]sbmodel.DatapathID
	next   uint64 // next candidate base when scanning for free space
}

// New returns an Allocator with the full [1, 2^32) space free.
func New() *Allocator {
	return &Allocator{
		used:       make(map[owner]slice),
		byOwnerRow: make(map[sbmodel.RowID][]sbmodel.DatapathID),
		next:       1,
	}
}

// Alloc allocates n contiguous ids for (row, datapath) and returns the
// base. It panics if the space is exhausted: per spec.md §7, 32-bit
// conjunction-id exhaustion is operationally impossible under sane inputs
// and is treated as a fatal assertion, never a recoverable error.
func (a *Allocator) Alloc(row sbmodel.RowID, dp sbmodel.DatapathID, n uint32) uint32 {
	if n == 0 {
		return 0
	}

	base, ok := a.findFree(n)
	if !ok {
		panic(fmt.Sprintf("cidpool: conjunction-id space exhausted allocating %d ids", n))
	}

	a.markUsed(row, dp, base, n)
	return base
}

// AllocSpecified attempts to allocate the exact range [base, base+n) for
// (row, datapath). It succeeds only if that range is currently free and
// not associated with any other (row, datapath).
func (a *Allocator) AllocSpecified(row sbmodel.RowID, dp sbmodel.DatapathID, base uint32, n uint32) bool {
	if n == 0 {
		return true
	}
	want := slice{Base: base, N: n}
	if want.end() > (uint64(1) << 32) {
		return false
	}

	o := owner{Row: row, Datapath: dp}
	for existingOwner, s := range a.used {
		if existingOwner == o {
			continue
		}
		if s.overlaps(want) {
			return false
		}
	}

	// The same (row, datapath) re-requesting its own current slice is fine,
	// even if it differs in size; it still must not collide with anyone
	// else's (checked above).
	a.markUsed(row, dp, base, n)
	return true
}

// Find returns the currently allocated base for (row, datapath), or 0 if
// none is allocated.
func (a *Allocator) Find(row sbmodel.RowID, dp sbmodel.DatapathID) uint32 {
	s, ok := a.used[owner{Row: row, Datapath: dp}]
	if !ok {
		return 0
	}
	return s.Base
}

// Free releases every slice owned by row, across all datapaths.
func (a *Allocator) Free(row sbmodel.RowID) {
	dps, ok := a.byOwnerRow[row]
	if !ok {
		return
	}
	for _, dp := range dps {
		delete(a.used, owner{Row: row, Datapath: dp})
	}
	delete(a.byOwnerRow, row)
}

func (a *Allocator) markUsed(row sbmodel.RowID, dp sbmodel.DatapathID, base, n uint32) {
	o := owner{Row: row, Datapath: dp}
	if _, existed := a.used[o]; !existed {
		a.byOwnerRow[row] = append(a.byOwnerRow[row], dp)
	}
	a.used[o] = slice{Base: base, N: n}
	if next := uint64(base) + uint64(n); next > a.next {
		a.next = next
	}
}

// findFree scans forward from the allocator's watermark for n contiguous
// free ids, wrapping once if the space beyond the watermark is exhausted.
// The allocator is free to choose any free slice (design notes §9); this
// bump-pointer-with-wraparound strategy keeps allocation O(used) instead
// of O(2^32).
func (a *Allocator) findFree(n uint32) (uint32, bool) {
	if candidate, ok := a.scanFrom(a.next, n); ok {
		return candidate, true
	}
	return a.scanFrom(1, n)
}

func (a *Allocator) scanFrom(start uint64, n uint32) (uint32, bool) {
	const spaceEnd = uint64(1) << 32

	candidate := start
	if candidate == 0 {
		candidate = 1
	}

	for candidate+uint64(n) <= spaceEnd {
		want := slice{Base: uint32(candidate), N: n}
		conflict, advance := a.firstConflict(want)
		if conflict == nil {
			return uint32(candidate), true
		}
		candidate = conflict.end()
		_ = advance
	}
	return 0, false
}

func (a *Allocator) firstConflict(want slice) (*slice, uint64) {
	var found *slice
	for _, s := range a.used {
		s := s
		if s.overlaps(want) {
			if found == nil || s.Base < found.Base {
				found = &s
			}
		}
	}
	if found == nil {
		return nil, 0
	}
	return found, found.end()
}
