package actionprog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBareAction(t *testing.T) {
	prog, err := Parse("next;")
	require.NoError(t, err)
	require.Len(t, prog, 1)
	assert.Equal(t, "next", prog[0].Name)
}

func TestParseMultipleActions(t *testing.T) {
	prog, err := Parse("reg0 = 1; next;")
	require.NoError(t, err)
	assert.Len(t, prog, 2)
}

func TestParseCallWithArgs(t *testing.T) {
	prog, err := Parse(`put_arp(inport, arp.spa, eth.src);`)
	require.NoError(t, err)
	require.Len(t, prog, 1)
	assert.Equal(t, "put_arp", prog[0].Name)
	assert.Equal(t, []string{"inport", "arp.spa", "eth.src"}, prog[0].Args)
}

func TestParseNestedParensDoesNotSplitEarly(t *testing.T) {
	prog, err := Parse(`ct_lb(backends=10.0.0.1:80,10.0.0.2:80);`)
	require.NoError(t, err)
	require.Len(t, prog, 1)
	assert.Equal(t, "ct_lb", prog[0].Name)
}

func TestParseUnmatchedParenErrors(t *testing.T) {
	_, err := Parse(`ct_lb(backends=10.0.0.1;`)
	assert.Error(t, err)
}

func TestCompileNextUsesOutputTable(t *testing.T) {
	prog, err := Parse("next;")
	require.NoError(t, err)

	actions, err := DefaultCompiler{}.Compile(prog, CompileContext{OutputTable: 42})
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, "resubmit(,42)", actions[0].Raw)
}

func TestConjunctionActionCarriesLabel(t *testing.T) {
	a := ConjunctionAction(ConjunctionEncoding{ID: 7, Dim: 1, NDims: 2})
	require.NotNil(t, a.Conjunction)
	assert.EqualValues(t, 7, a.Conjunction.ID)
}
