package cidpool

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovnlocal/lflow/internal/sbmodel"
)

func TestAllocAndFind(t *testing.T) {
	a := New()
	row := uuid.New()
	dp := sbmodel.DatapathID(1)

	base := a.Alloc(row, dp, 3)
	assert.NotZero(t, base)
	assert.Equal(t, base, a.Find(row, dp))
}

func TestAllocDisjointRanges(t *testing.T) {
	a := New()
	dp := sbmodel.DatapathID(1)
	r1, r2 := uuid.New(), uuid.New()

	b1 := a.Alloc(r1, dp, 5)
	b2 := a.Alloc(r2, dp, 5)

	assert.NotEqual(t, b1, b2)
	// ranges must not overlap
	s1 := slice{Base: b1, N: 5}
	s2 := slice{Base: b2, N: 5}
	assert.False(t, s1.overlaps(s2))
}

func TestAllocSpecifiedSucceedsWhenFree(t *testing.T) {
	a := New()
	row := uuid.New()
	dp := sbmodel.DatapathID(1)

	ok := a.AllocSpecified(row, dp, 1000, 4)
	require.True(t, ok)
	assert.Equal(t, uint32(1000), a.Find(row, dp))
}

func TestAllocSpecifiedFailsOnOverlap(t *testing.T) {
	a := New()
	dp := sbmodel.DatapathID(1)
	r1, r2 := uuid.New(), uuid.New()

	require.True(t, a.AllocSpecified(r1, dp, 100, 10))
	ok := a.AllocSpecified(r2, dp, 105, 10)
	assert.False(t, ok)
	assert.Zero(t, a.Find(r2, dp))
}

func TestAllocSpecifiedAllowsSameOwnerReassign(t *testing.T) {
	a := New()
	row := uuid.New()
	dp := sbmodel.DatapathID(1)

	require.True(t, a.AllocSpecified(row, dp, 50, 2))
	require.True(t, a.AllocSpecified(row, dp, 50, 4))
	assert.Equal(t, uint32(50), a.Find(row, dp))
}

func TestFreeReleasesAllDatapaths(t *testing.T) {
	a := New()
	row := uuid.New()
	dp1, dp2 := sbmodel.DatapathID(1), sbmodel.DatapathID(2)

	a.Alloc(row, dp1, 2)
	a.Alloc(row, dp2, 2)

	a.Free(row)

	assert.Zero(t, a.Find(row, dp1))
	assert.Zero(t, a.Find(row, dp2))
}

// invariant P2 (partial): find must return the same base alloc returned,
// unless a free happened in between.
func TestFindMatchesAllocUntilFree(t *testing.T) {
	a := New()
	row := uuid.New()
	dp := sbmodel.DatapathID(7)

	base := a.Alloc(row, dp, 3)
	assert.Equal(t, base, a.Find(row, dp))

	a.Free(row)
	assert.Zero(t, a.Find(row, dp))
}

func TestAllocZeroReturnsZero(t *testing.T) {
	a := New()
	row := uuid.New()
	dp := sbmodel.DatapathID(1)
	assert.Zero(t, a.Alloc(row, dp, 0))
}
