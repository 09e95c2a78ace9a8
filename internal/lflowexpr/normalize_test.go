package lflowexpr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeSimpleCmp(t *testing.T) {
	n := &Cmp{Field: "a", Values: []Value{{Literal: "1"}}}
	clauses := Normalize(n)
	require.Len(t, clauses, 1)
	assert.Len(t, clauses[0].Cmps, 1)
}

func TestNormalizeOrProducesTwoClauses(t *testing.T) {
	n := &Or{Terms: []Node{
		&Cmp{Field: "a", Values: []Value{{Literal: "1"}}},
		&Cmp{Field: "b", Values: []Value{{Literal: "1"}}},
	}}
	clauses := Normalize(n)
	assert.Len(t, clauses, 2)
}

func TestNormalizeDistributesAndOverOr(t *testing.T) {
	// a && (b || c)  ==  (a && b) || (a && c)
	n := &And{Terms: []Node{
		&Cmp{Field: "a", Values: []Value{{Literal: "1"}}},
		&Or{Terms: []Node{
			&Cmp{Field: "b", Values: []Value{{Literal: "1"}}},
			&Cmp{Field: "c", Values: []Value{{Literal: "1"}}},
		}},
	}}
	clauses := Normalize(n)
	require.Len(t, clauses, 2)
	for _, c := range clauses {
		assert.Len(t, c.Cmps, 2)
	}
}

func TestNormalizePushesNotThroughAnd(t *testing.T) {
	// !(a && b) == !a || !b
	n := &Not{Term: &And{Terms: []Node{
		&Cmp{Field: "a", Values: []Value{{Literal: "1"}}},
		&Cmp{Field: "b", Values: []Value{{Literal: "1"}}},
	}}}
	clauses := Normalize(n)
	require.Len(t, clauses, 2)
	assert.True(t, clauses[0].Cmps[0].Negate)
	assert.True(t, clauses[1].Cmps[0].Negate)
}

func TestNormalizeConstantFalseYieldsNoClauses(t *testing.T) {
	clauses := Normalize(&BoolLit{Value: false})
	assert.Len(t, clauses, 0)
}

func TestNormalizeConstantTrueYieldsEmptyClause(t *testing.T) {
	clauses := Normalize(&BoolLit{Value: true})
	require.Len(t, clauses, 1)
	assert.Len(t, clauses[0].Cmps, 0)
}
