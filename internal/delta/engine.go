// Package delta implements the delta engine (DE): the externally-driven
// entry points that turn a tracked-change batch into the minimal set of
// row-compiler invocations, per spec.md §4.5. It owns the processed-row
// set that guarantees idempotence within one translation cycle (spec.md
// §5) and the row->datapaths bookkeeping flood-remove needs for rows that
// have since been deleted from the input snapshot.
package delta

import (
	"fmt"

	"github.com/ovnlocal/lflow/internal/cidpool"
	"github.com/ovnlocal/lflow/internal/flowsink"
	"github.com/ovnlocal/lflow/internal/reflog"
	"github.com/ovnlocal/lflow/internal/reftrack"
	"github.com/ovnlocal/lflow/internal/rowcompile"
	"github.com/ovnlocal/lflow/internal/sbmodel"
	"github.com/ovnlocal/lflow/internal/xlatecache"
)

// AdjunctEmitter is the narrow contract the delta engine needs from the
// adjunct emitters (spec.md §4.6) to re-synthesize entity-keyed rules
// after a changed port/mc-group/lb/fdb/mac-binding. internal/adjunct
// implements this; the delta engine depends only on the interface.
type AdjunctEmitter interface {
	EmitForPort(name string)
	EmitForLB(name string)
	EmitForFDB(key sbmodel.FDBKey)
	EmitForMACBinding(logicalPort string)
}

// Engine is the delta engine (DE).
type Engine struct {
	Snapshot *sbmodel.Snapshot
	Runtime  *sbmodel.RuntimeState
	Index    *reftrack.Index
	CID      *cidpool.Allocator
	Cache    *xlatecache.Cache
	Sink     flowsink.Sink
	RC       *rowcompile.Compiler
	Adjunct  AdjunctEmitter
	Log      *reflog.RateLimited

	processed     map[sbmodel.RowID]struct{}
	rowDatapaths  map[sbmodel.RowID][]sbmodel.DatapathID
}

// New returns an Engine wired to its collaborators.
func New(snap *sbmodel.Snapshot, rt *sbmodel.RuntimeState, idx *reftrack.Index, cid *cidpool.Allocator,
	cache *xlatecache.Cache, sink flowsink.Sink, rc *rowcompile.Compiler, adjunct AdjunctEmitter, log *reflog.RateLimited) *Engine {
	return &Engine{
		Snapshot:     snap,
		Runtime:      rt,
		Index:        idx,
		CID:          cid,
		Cache:        cache,
		Sink:         sink,
		RC:           rc,
		Adjunct:      adjunct,
		Log:          log,
		processed:    make(map[sbmodel.RowID]struct{}),
		rowDatapaths: make(map[sbmodel.RowID][]sbmodel.DatapathID),
	}
}

// ResetProcessed clears the processed-row set, the set that keeps
// HandleChangedRows idempotent within one translation cycle; it belongs at
// the start of a cycle, before that cycle's tracked-change handlers run.
// The controller's translator does not call it.
func (e *Engine) ResetProcessed() {
	e.processed = make(map[sbmodel.RowID]struct{})
}

// RunFull recompiles every row in the snapshot. It does not touch the
// processed-row set, since a full rebuild implies everything is fresh
// regardless of what this cycle already processed.
func (e *Engine) RunFull() {
	for _, row := range e.Snapshot.LogicalRows {
		e.compileRow(row)
	}
}

// HandleChangedRows implements the flood-remove-then-replay sequence for
// a batch of changed row identities.
func (e *Engine) HandleChangedRows(tracked []sbmodel.RowID) {
	var fresh []sbmodel.RowID
	for _, rid := range tracked {
		if _, done := e.processed[rid]; done {
			continue
		}
		fresh = append(fresh, rid)
	}
	if len(fresh) == 0 {
		return
	}

	var owners []string
	for _, rid := range fresh {
		owners = append(owners, e.ownersForRow(rid)...)
	}
	e.Sink.FloodRemove(owners)

	for _, rid := range fresh {
		e.Index.ForgetRow(rid)
		e.CID.Free(rid)
		e.Cache.Delete(rid)
		e.processed[rid] = struct{}{}

		if row, ok := e.Snapshot.LogicalRows[rid]; ok {
			e.compileRow(row)
		} else {
			delete(e.rowDatapaths, rid)
		}
	}
}

// HandleChangedRef implements handle_changed_ref: every row currently
// referencing (kind, name) is scheduled for the same flood-remove-then-
// replay sequence HandleChangedRows performs. Reports true (handled) even
// when the bucket is absent or already fully processed — there is no
// failure mode here that would require a full rebuild, only "nothing to
// do" or "already done this cycle".
func (e *Engine) HandleChangedRef(kind sbmodel.ResourceKind, name string) bool {
	refs := e.Index.LookupRows(kind, name)
	if len(refs) == 0 {
		return true
	}
	rows := make([]sbmodel.RowID, 0, len(refs))
	for _, r := range refs {
		rows = append(rows, r.Row)
	}
	e.HandleChangedRows(rows)
	return true
}

// HandleAddrSetUpdate implements the address-set fast path (spec.md
// §4.5.1/§4.5). Returns false ("unhandled") whenever a precondition fails
// or the per-row synthetic re-translation cannot verify; the caller must
// then fall back to HandleChangedRef(KindAddrSet, name) for a full
// reprocess.
func (e *Engine) HandleAddrSetUpdate(name string, added, deleted []sbmodel.AddressConstant, oldSize, newSize int) bool {
	if oldSize < 2 || newSize < 2 {
		return false
	}
	if len(added)+len(deleted) >= newSize {
		return false
	}

	refs := e.Index.LookupRows(sbmodel.KindAddrSet, name)
	if len(refs) == 0 {
		return true
	}

	addedStrs := make([]string, len(added))
	for i, a := range added {
		addedStrs[i] = a.String()
	}

	for _, ref := range refs {
		row, ok := e.Snapshot.LogicalRows[ref.Row]
		if !ok {
			continue
		}

		for _, dp := range row.Datapaths() {
			if !e.Runtime.IsLocalDatapath(dp) {
				continue
			}
			owner := flowsink.OwnerForRow(ref.Row, dp)

			for _, del := range deleted {
				ann := flowsink.AddrSetAnnotation{Name: name, IP: del.Value, Mask: del.Mask}
				if err := e.Sink.RemoveFlowsForAddrSetIP(owner, ann, ref.RefCount); err != nil {
					e.Log.Warnf("addrset-fastpath", "%s", err)
					return false
				}
			}

			if len(addedStrs) > 0 {
				if ok := e.RC.SyntheticAddrSetTranslate(row, dp, name, addedStrs, ref.RefCount); !ok {
					return false
				}
			}
		}
	}
	return true
}

// HandleChangedPorts, HandleChangedLBs, HandleChangedFDBs, and
// HandleChangedMACBindings all follow the same shape: delete the rules
// tagged with the affected identity and re-emit its replacement from the
// matching adjunct emitter. None of these touch R, CID, or TC (spec.md
// §4.6).

func (e *Engine) HandleChangedPorts(names []string) {
	for _, name := range names {
		e.Sink.RemoveFlows(flowsink.OwnerForAdjunct("portsec", name))
		e.Adjunct.EmitForPort(name)
	}
}

// HandleChangedMCGroups reprocesses every row that references one of keys,
// the same R-driven path HandleChangedRef takes for address sets and port
// groups. A multicast group has no rules of its own for an adjunct emitter
// to own: RC step 6 resolves an outport-named group straight into the
// referencing row's compiled match (mirroring the original's
// lookup_port_cb), so a group's membership changing invalidates whatever
// rows named it, not some separate group-owned rule set.
func (e *Engine) HandleChangedMCGroups(keys []sbmodel.MCGroupKey) {
	for _, k := range keys {
		e.HandleChangedRef(sbmodel.KindMCGroup, k.RefName())
	}
}

func (e *Engine) HandleChangedLBs(names []string) {
	for _, name := range names {
		e.Sink.RemoveFlows(flowsink.OwnerForAdjunct("lb", name))
		e.Adjunct.EmitForLB(name)
	}
}

func (e *Engine) HandleChangedFDBs(keys []sbmodel.FDBKey) {
	for _, k := range keys {
		e.Sink.RemoveFlows(flowsink.OwnerForAdjunct("fdb", fdbKeyString(k)))
		e.Adjunct.EmitForFDB(k)
	}
}

func (e *Engine) HandleChangedMACBindings(logicalPorts []string) {
	for _, lp := range logicalPorts {
		e.Sink.RemoveFlows(flowsink.OwnerForAdjunct("neighbor", lp))
		e.Adjunct.EmitForMACBinding(lp)
	}
}

func (e *Engine) compileRow(row *sbmodel.LogicalRow) {
	e.RC.Compile(row)
	e.rowDatapaths[row.UUID] = append([]sbmodel.DatapathID{}, row.Datapaths()...)
}

func (e *Engine) ownersForRow(rid sbmodel.RowID) []string {
	dps := append([]sbmodel.DatapathID{}, e.rowDatapaths[rid]...)
	if row, ok := e.Snapshot.LogicalRows[rid]; ok {
		dps = unionDatapaths(dps, row.Datapaths())
	}
	owners := make([]string, 0, len(dps))
	for _, dp := range dps {
		owners = append(owners, flowsink.OwnerForRow(rid, dp))
	}
	return owners
}

func unionDatapaths(a, b []sbmodel.DatapathID) []sbmodel.DatapathID {
	seen := make(map[sbmodel.DatapathID]struct{}, len(a)+len(b))
	out := make([]sbmodel.DatapathID, 0, len(a)+len(b))
	for _, list := range [][]sbmodel.DatapathID{a, b} {
		for _, dp := range list {
			if _, ok := seen[dp]; ok {
				continue
			}
			seen[dp] = struct{}{}
			out = append(out, dp)
		}
	}
	return out
}

func fdbKeyString(k sbmodel.FDBKey) string {
	return fmt.Sprintf("%d-%s", k.Datapath, k.MAC)
}
