package flowsink

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddFlowThenFlows(t *testing.T) {
	s := NewMemSink()
	s.AddFlow(Flow{Table: 8, Priority: 100, Owner: "o1", Actions: []Action{{Raw: "drop"}}})
	assert.Equal(t, 1, s.Len())
}

func TestAddOrAppendFlowCoalesces(t *testing.T) {
	s := NewMemSink()
	m := Match{Fields: []MatchField{{Name: "ip4.src", Value: "1.1.1.1"}}}

	s.AddOrAppendFlow(Flow{Table: 8, Priority: 100, Owner: "row-a", Match: m, Actions: []Action{{Raw: "conjunction(1,1,2)"}}})
	s.AddOrAppendFlow(Flow{Table: 8, Priority: 100, Owner: "row-b", Match: m, Actions: []Action{{Raw: "conjunction(2,1,2)"}}})

	flows := s.Flows()
	require.Len(t, flows, 1)
	assert.Len(t, flows[0].Actions, 2)
}

func TestRemoveFlowsByOwner(t *testing.T) {
	s := NewMemSink()
	s.AddFlow(Flow{Table: 1, Priority: 1, Owner: "a", Actions: []Action{{Raw: "drop"}}})
	s.AddFlow(Flow{Table: 1, Priority: 2, Owner: "b", Actions: []Action{{Raw: "drop"}}})

	s.RemoveFlows("a")

	assert.Equal(t, 1, s.Len())
	assert.Len(t, s.FlowsForOwner("b"), 1)
}

func TestFloodRemoveMultipleOwners(t *testing.T) {
	s := NewMemSink()
	s.AddFlow(Flow{Table: 1, Priority: 1, Owner: "a", Actions: []Action{{Raw: "drop"}}})
	s.AddFlow(Flow{Table: 1, Priority: 2, Owner: "b", Actions: []Action{{Raw: "drop"}}})
	s.AddFlow(Flow{Table: 1, Priority: 3, Owner: "c", Actions: []Action{{Raw: "drop"}}})

	s.FloodRemove([]string{"a", "b"})

	assert.Equal(t, 1, s.Len())
}

func TestRemoveFlowsForAddrSetIPExactCount(t *testing.T) {
	s := NewMemSink()
	ann := AddrSetAnnotation{Name: "A", IP: "1.1.1.2", Mask: "32"}
	s.AddFlow(Flow{Table: 1, Priority: 1, Owner: "row", Match: Match{Fields: []MatchField{{Name: "ip4.src", Value: "1.1.1.2"}}}, Actions: []Action{{Raw: "next;"}}, AddrSet: &ann})

	err := s.RemoveFlowsForAddrSetIP("row", ann, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
}

func TestRemoveFlowsForAddrSetIPCountMismatch(t *testing.T) {
	s := NewMemSink()
	ann := AddrSetAnnotation{Name: "A", IP: "1.1.1.2", Mask: "32"}

	err := s.RemoveFlowsForAddrSetIP("row", ann, 1)
	require.Error(t, err)
	var mismatch *ErrCountMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 0, mismatch.Actual)
}

func TestFlowValidateRequiresActions(t *testing.T) {
	f := &Flow{}
	err := f.Validate()
	require.Error(t, err)
	var ferr *FlowError
	require.ErrorAs(t, err, &ferr)
}
