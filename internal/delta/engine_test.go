package delta

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovnlocal/lflow/internal/cidpool"
	"github.com/ovnlocal/lflow/internal/flowsink"
	"github.com/ovnlocal/lflow/internal/lflowexpr"
	"github.com/ovnlocal/lflow/internal/reftrack"
	"github.com/ovnlocal/lflow/internal/rowcompile"
	"github.com/ovnlocal/lflow/internal/sbmodel"
	"github.com/ovnlocal/lflow/internal/xlatecache"
)

type stubAdjunct struct {
	ports []string
	lbs   []string
	fdbs  []sbmodel.FDBKey
	macs  []string
}

func (s *stubAdjunct) EmitForPort(name string)      { s.ports = append(s.ports, name) }
func (s *stubAdjunct) EmitForLB(name string)        { s.lbs = append(s.lbs, name) }
func (s *stubAdjunct) EmitForFDB(key sbmodel.FDBKey) { s.fdbs = append(s.fdbs, key) }
func (s *stubAdjunct) EmitForMACBinding(lp string)  { s.macs = append(s.macs, lp) }

func newTestEngine() (*Engine, *sbmodel.Snapshot, *flowsink.MemSink, *stubAdjunct) {
	snap := sbmodel.NewSnapshot()
	snap.AddDatapath(&sbmodel.Datapath{ID: 1, IsRouter: false})

	rt := &sbmodel.RuntimeState{
		ThisChassis:           "chassis-1",
		LocalDatapaths:        map[sbmodel.DatapathID]struct{}{1: {}},
		RelatedLocalPorts:     map[string]struct{}{},
		ActiveHAChassisGroups: map[string]struct{}{},
	}

	idx := reftrack.New()
	cid := cidpool.New()
	cache := xlatecache.New(1 << 20)
	sink := flowsink.NewMemSink()
	symbols := lflowexpr.NewStaticSymbolTable("ip4.dst", "ip4.src", "outport")

	rc := rowcompile.New(snap, rt, idx, cid, cache, sink, symbols, rowcompile.NewMeterTable(8),
		rowcompile.Config{IngressTableBase: 16, EgressTableBase: 48}, nil)

	adj := &stubAdjunct{}
	e := New(snap, rt, idx, cid, cache, sink, rc, adj, nil)
	return e, snap, sink, adj
}

func TestRunFullCompilesEveryRow(t *testing.T) {
	e, snap, sink, _ := newTestEngine()

	row := &sbmodel.LogicalRow{
		UUID: uuid.New(), Match: `ip4.dst == "10.0.0.1"`, Actions: "next;",
		Pipeline: sbmodel.Ingress, TableID: 1, Priority: 100, Datapath: dpPtr(1),
	}
	snap.AddRow(row)

	e.RunFull()
	assert.Equal(t, 1, sink.Len())
}

func TestHandleChangedRowsIsIdempotentWithinCycle(t *testing.T) {
	e, snap, sink, _ := newTestEngine()

	row := &sbmodel.LogicalRow{
		UUID: uuid.New(), Match: `ip4.dst == "10.0.0.1"`, Actions: "next;",
		Pipeline: sbmodel.Ingress, TableID: 1, Priority: 100, Datapath: dpPtr(1),
	}
	snap.AddRow(row)

	e.HandleChangedRows([]sbmodel.RowID{row.UUID})
	require.Equal(t, 1, sink.Len())

	e.HandleChangedRows([]sbmodel.RowID{row.UUID})
	assert.Equal(t, 1, sink.Len())
}

func TestHandleChangedRowsRecompilesAfterResetProcessed(t *testing.T) {
	e, snap, sink, _ := newTestEngine()

	row := &sbmodel.LogicalRow{
		UUID: uuid.New(), Match: `ip4.dst == "10.0.0.1"`, Actions: "next;",
		Pipeline: sbmodel.Ingress, TableID: 1, Priority: 100, Datapath: dpPtr(1),
	}
	snap.AddRow(row)

	e.HandleChangedRows([]sbmodel.RowID{row.UUID})
	require.Equal(t, 1, sink.Len())

	e.ResetProcessed()
	e.HandleChangedRows([]sbmodel.RowID{row.UUID})
	assert.Equal(t, 1, sink.Len())
}

func TestHandleChangedRefNoReferencesReportsHandled(t *testing.T) {
	e, _, _, _ := newTestEngine()
	assert.True(t, e.HandleChangedRef(sbmodel.KindAddrSet, "nonexistent"))
}

func TestHandleAddrSetUpdateRejectsSmallSizes(t *testing.T) {
	e, _, _, _ := newTestEngine()
	ok := e.HandleAddrSetUpdate("as1", nil, nil, 1, 1)
	assert.False(t, ok)
}

func TestHandleAddrSetUpdateRejectsTooLargeDelta(t *testing.T) {
	e, _, _, _ := newTestEngine()
	added := []sbmodel.AddressConstant{{Value: "10.0.0.3"}, {Value: "10.0.0.4"}}
	ok := e.HandleAddrSetUpdate("as1", added, nil, 2, 2)
	assert.False(t, ok)
}

func TestHandleChangedPortsInvokesAdjunctEmitter(t *testing.T) {
	e, _, _, adj := newTestEngine()
	e.HandleChangedPorts([]string{"lsp1"})
	assert.Equal(t, []string{"lsp1"}, adj.ports)
}

func TestHandleChangedMCGroupsReprocessesReferencingRows(t *testing.T) {
	e, snap, sink, _ := newTestEngine()

	row := &sbmodel.LogicalRow{
		UUID: uuid.New(), Match: `outport == flood`, Actions: "output;",
		Pipeline: sbmodel.Ingress, TableID: 1, Priority: 100, Datapath: dpPtr(1),
	}
	snap.AddRow(row)

	e.HandleChangedRows([]sbmodel.RowID{row.UUID})
	require.Equal(t, 1, sink.Len())

	mcKey := sbmodel.MCGroupKey{Datapath: 1, Name: "flood"}
	refs := e.Index.LookupRows(sbmodel.KindMCGroup, mcKey.RefName())
	require.Len(t, refs, 1)
	assert.Equal(t, row.UUID, refs[0].Row)

	e.ResetProcessed()
	e.HandleChangedMCGroups([]sbmodel.MCGroupKey{mcKey})
	assert.Equal(t, 1, sink.Len())
}

func dpPtr(id sbmodel.DatapathID) *sbmodel.DatapathID { return &id }
