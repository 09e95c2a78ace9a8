package reftrack

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovnlocal/lflow/internal/sbmodel"
)

func TestAddIsIdempotent(t *testing.T) {
	idx := New()
	row := uuid.New()

	idx.Add(sbmodel.KindAddrSet, "A", row, 3)
	idx.Add(sbmodel.KindAddrSet, "A", row, 99) // must not overwrite

	rows := idx.LookupRows(sbmodel.KindAddrSet, "A")
	require.Len(t, rows, 1)
	assert.Equal(t, row, rows[0].Row)
	assert.Equal(t, 3, rows[0].RefCount)
}

func TestForgetRowRemovesBothSides(t *testing.T) {
	idx := New()
	r1, r2 := uuid.New(), uuid.New()

	idx.Add(sbmodel.KindPortBinding, "p1", r1, 0)
	idx.Add(sbmodel.KindPortBinding, "p1", r2, 0)

	idx.ForgetRow(r1)

	rows := idx.LookupRows(sbmodel.KindPortBinding, "p1")
	require.Len(t, rows, 1)
	assert.Equal(t, r2, rows[0].Row)
	assert.False(t, idx.HasAny(r1))
	assert.True(t, idx.HasAny(r2))
}

func TestForgetRowDeletesEmptyBucket(t *testing.T) {
	idx := New()
	row := uuid.New()

	idx.Add(sbmodel.KindMCGroup, "mc1", row, 0)
	idx.ForgetRow(row)

	assert.Nil(t, idx.LookupRows(sbmodel.KindMCGroup, "mc1"))
}

func TestRefsForRow(t *testing.T) {
	idx := New()
	row := uuid.New()

	idx.Add(sbmodel.KindAddrSet, "A", row, 2)
	idx.Add(sbmodel.KindPortGroup, "pg1", row, 0)

	refs := idx.RefsForRow(row)
	assert.Len(t, refs, 2)
}

func TestClear(t *testing.T) {
	idx := New()
	row := uuid.New()
	idx.Add(sbmodel.KindAddrSet, "A", row, 1)

	idx.Clear()

	assert.Nil(t, idx.LookupRows(sbmodel.KindAddrSet, "A"))
	assert.False(t, idx.HasAny(row))
}

// invariant P1: every (kind,name,row) in the forward map has exactly one
// matching entry in the reverse map, and vice versa, after any sequence of
// operations.
func TestInvariantP1(t *testing.T) {
	idx := New()
	rows := []sbmodel.RowID{uuid.New(), uuid.New(), uuid.New()}

	idx.Add(sbmodel.KindAddrSet, "A", rows[0], 1)
	idx.Add(sbmodel.KindAddrSet, "A", rows[1], 1)
	idx.Add(sbmodel.KindPortGroup, "pg", rows[1], 0)
	idx.ForgetRow(rows[0])
	idx.Add(sbmodel.KindAddrSet, "A", rows[2], 1)

	for k, rowsMap := range idx.refToRows {
		for row := range rowsMap {
			refs := idx.rowToRefs[row]
			_, ok := refs[k]
			assert.True(t, ok, "row %s missing reverse entry for %v", row, k)
		}
	}
	for row, refs := range idx.rowToRefs {
		for k := range refs {
			rowsMap := idx.refToRows[k]
			_, ok := rowsMap[row]
			assert.True(t, ok, "ref %v missing forward entry for row %s", k, row)
		}
	}
}
