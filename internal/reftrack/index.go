// Package reftrack implements the resource-reference index (R): a
// bidirectional, many-to-many index between logical-row identities and the
// named external entities each row depends on.
package reftrack

import "github.com/ovnlocal/lflow/internal/sbmodel"

// Ref names one external entity a row depends on, along with how many
// times the row's compiled form uses it.
type Ref struct {
	Kind     sbmodel.ResourceKind
	Name     string
	RefCount int
}

type key struct {
	Kind sbmodel.ResourceKind
	Name string
}

// RowRef pairs a row identity with its reference count for one entity.
type RowRef struct {
	Row      sbmodel.RowID
	RefCount int
}

// Index is the bidirectional index. It is not internally concurrent; all
// reads and mutations are sequenced by the caller (the translator's single
// event loop).
type Index struct {
	refToRows map[key]map[sbmodel.RowID]int
	rowToRefs map[sbmodel.RowID]map[key]int
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		refToRows: make(map[key]map[sbmodel.RowID]int),
		rowToRefs: make(map[sbmodel.RowID]map[key]int),
	}
}

// Add records that row references (kind, name) with the given ref_count.
// It is idempotent: if (kind, name, row) is already present, Add returns
// without change.
func (idx *Index) Add(kind sbmodel.ResourceKind, name string, row sbmodel.RowID, refCount int) {
	k := key{Kind: kind, Name: name}

	if rows, ok := idx.rowToRefs[row]; ok {
		if _, exists := rows[k]; exists {
			return
		}
	}

	if idx.refToRows[k] == nil {
		idx.refToRows[k] = make(map[sbmodel.RowID]int)
	}
	idx.refToRows[k][row] = refCount

	if idx.rowToRefs[row] == nil {
		idx.rowToRefs[row] = make(map[key]int)
	}
	idx.rowToRefs[row][k] = refCount
}

// ForgetRow removes every entry mentioning row on both sides. Any
// ref-to-rows bucket that becomes empty is deleted.
func (idx *Index) ForgetRow(row sbmodel.RowID) {
	refs, ok := idx.rowToRefs[row]
	if !ok {
		return
	}

	for k := range refs {
		rows := idx.refToRows[k]
		delete(rows, row)
		if len(rows) == 0 {
			delete(idx.refToRows, k)
		}
	}

	delete(idx.rowToRefs, row)
}

// LookupRows returns the rows referencing (kind, name), each with its
// recorded ref_count. The returned slice is a snapshot; mutating the Index
// afterward does not affect it.
func (idx *Index) LookupRows(kind sbmodel.ResourceKind, name string) []RowRef {
	rows, ok := idx.refToRows[key{Kind: kind, Name: name}]
	if !ok {
		return nil
	}

	out := make([]RowRef, 0, len(rows))
	for row, count := range rows {
		out = append(out, RowRef{Row: row, RefCount: count})
	}
	return out
}

// RefsForRow returns the (kind, name, ref_count) tuples row currently
// holds, or nil when it holds none. (The row compiler's cache placement
// rule tests for any entry at all with HasAny instead.)
func (idx *Index) RefsForRow(row sbmodel.RowID) []Ref {
	refs, ok := idx.rowToRefs[row]
	if !ok {
		return nil
	}

	out := make([]Ref, 0, len(refs))
	for k, count := range refs {
		out = append(out, Ref{Kind: k.Kind, Name: k.Name, RefCount: count})
	}
	return out
}

// HasAny reports whether row holds any reference at all.
func (idx *Index) HasAny(row sbmodel.RowID) bool {
	return len(idx.rowToRefs[row]) > 0
}

// Clear discards everything.
func (idx *Index) Clear() {
	idx.refToRows = make(map[key]map[sbmodel.RowID]int)
	idx.rowToRefs = make(map[sbmodel.RowID]map[key]int)
}
