package xlatecache

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpr struct{ tag string }

func (f *fakeExpr) Clone() ExprTree { return &fakeExpr{tag: f.tag} }

func TestGetEmptyByDefault(t *testing.T) {
	c := New(1024)
	e := c.Get(uuid.New())
	assert.Equal(t, Empty, e.State)
}

func TestPutExprThenGet(t *testing.T) {
	c := New(1024)
	row := uuid.New()

	c.PutExpr(row, &fakeExpr{tag: "x"}, 10)

	e := c.Get(row)
	require.Equal(t, Expr, e.State)
	assert.Equal(t, "x", e.Expr.(*fakeExpr).tag)
}

func TestPutMatchesThenGet(t *testing.T) {
	c := New(1024)
	row := uuid.New()

	c.PutMatches(row, 100, 3, "matchset", 10)

	e := c.Get(row)
	require.Equal(t, Matches, e.State)
	assert.EqualValues(t, 100, e.ConjBase)
	assert.EqualValues(t, 3, e.ConjN)
}

func TestDelete(t *testing.T) {
	c := New(1024)
	row := uuid.New()
	c.PutExpr(row, &fakeExpr{}, 10)

	c.Delete(row)

	assert.Equal(t, Empty, c.Get(row).State)
}

func TestDisabledCacheNoOps(t *testing.T) {
	c := New(1024)
	c.SetEnabled(false)
	row := uuid.New()

	c.PutExpr(row, &fakeExpr{}, 10)

	assert.False(t, c.Enabled())
	assert.Equal(t, Empty, c.Get(row).State)
}

func TestDisablingClearsExistingEntries(t *testing.T) {
	c := New(1024)
	row := uuid.New()
	c.PutExpr(row, &fakeExpr{}, 10)

	c.SetEnabled(false)
	c.SetEnabled(true)

	assert.Equal(t, Empty, c.Get(row).State)
}

func TestLRUEvictsLeastRecentlyUsed(t *testing.T) {
	c := New(20)
	r1, r2, r3 := uuid.New(), uuid.New(), uuid.New()

	c.PutExpr(r1, &fakeExpr{}, 10)
	c.PutExpr(r2, &fakeExpr{}, 10)
	// r1 touched again, making r2 the least recently used
	c.Get(r1)

	// Pushes total size to 30 > 20, forcing an eviction of the LRU entry.
	c.PutExpr(r3, &fakeExpr{}, 10)

	assert.Equal(t, Empty, c.Get(r2).State)
	assert.Equal(t, Expr, c.Get(r1).State)
	assert.Equal(t, Expr, c.Get(r3).State)
}
