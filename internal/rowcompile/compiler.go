// Package rowcompile implements the row compiler (RC): the component that
// turns one logical row, for one locally-relevant datapath, into concrete
// flows staged in a flowsink.Sink. It orchestrates every other package in
// this module through narrow interfaces, exactly as spec.md §4.4 describes
// the eleven-step algorithm, without owning the match grammar or the
// action encoding itself (spec.md §1 external collaborators).
package rowcompile

import (
	"fmt"

	"github.com/ovnlocal/lflow/internal/actionprog"
	"github.com/ovnlocal/lflow/internal/cidpool"
	"github.com/ovnlocal/lflow/internal/flowsink"
	"github.com/ovnlocal/lflow/internal/lflowexpr"
	"github.com/ovnlocal/lflow/internal/reflog"
	"github.com/ovnlocal/lflow/internal/reftrack"
	"github.com/ovnlocal/lflow/internal/sbmodel"
	"github.com/ovnlocal/lflow/internal/xlatecache"
)

// exprTree adapts lflowexpr.Node to the cache's ExprTree contract.
type exprTree struct{ node lflowexpr.Node }

func (e exprTree) Clone() xlatecache.ExprTree { return exprTree{node: lflowexpr.Clone(e.node)} }

// CacheObserver receives translation-cache hit/miss events so the ambient
// metrics stack can expose them (SPEC_FULL.md's "cache hit/miss gauges"
// supplement); it is optional and never consulted for correctness.
type CacheObserver interface {
	Hit(state string)
	Miss()
}

// Config bundles the translator-wide constants the row compiler needs.
type Config struct {
	// IngressTableBase and EgressTableBase are the physical table offsets
	// each pipeline's logical table 0 maps to (RC step 3).
	IngressTableBase uint8
	EgressTableBase  uint8
}

// Compiler is the row compiler (RC). Every field beyond Config is a
// narrow collaborator interface or one of the translator's own components;
// RC owns none of their state.
type Compiler struct {
	Snapshot *sbmodel.Snapshot
	Runtime  *sbmodel.RuntimeState
	Index    *reftrack.Index
	CID      *cidpool.Allocator
	Cache    *xlatecache.Cache
	Sink     flowsink.Sink
	Meters   MeterTable

	MatchParser    lflowexpr.Parser
	ActionParser   actionprog.Parser
	ActionCompiler actionprog.Compiler
	Symbols        lflowexpr.SymbolTable

	Config Config
	Log    *reflog.RateLimited

	// CacheObserver is nil by default; callers that want cache hit/miss
	// metrics set it after construction.
	CacheObserver CacheObserver
}

// New builds a Compiler wired with the default collaborator
// implementations (lflowexpr.DefaultParser, actionprog.DefaultParser/
// DefaultCompiler); callers that need a different match grammar or action
// compiler should construct Compiler directly instead.
func New(snap *sbmodel.Snapshot, rt *sbmodel.RuntimeState, idx *reftrack.Index,
	cid *cidpool.Allocator, cache *xlatecache.Cache, sink flowsink.Sink,
	symbols lflowexpr.SymbolTable, meters MeterTable, cfg Config, log *reflog.RateLimited) *Compiler {
	return &Compiler{
		Snapshot:       snap,
		Runtime:        rt,
		Index:          idx,
		CID:            cid,
		Cache:          cache,
		Sink:           sink,
		Meters:         meters,
		MatchParser:    lflowexpr.DefaultParser{},
		ActionParser:   actionprog.DefaultParser{},
		ActionCompiler: actionprog.DefaultCompiler{},
		Symbols:        symbols,
		Config:         cfg,
		Log:            log,
	}
}

// Compile runs the eleven-step algorithm over row for every datapath it is
// relevant to. A datapath-group row (I2) repeats the full algorithm
// independently per member datapath, since locality and port-pinning
// decisions are themselves per-datapath.
func (c *Compiler) Compile(row *sbmodel.LogicalRow) {
	for _, dp := range row.Datapaths() {
		c.compileForDatapath(row, dp)
	}
}

func (c *Compiler) compileForDatapath(row *sbmodel.LogicalRow, dp sbmodel.DatapathID) {
	owner := flowsink.OwnerForRow(row.UUID, dp)

	// Step 1: locality gate.
	if !c.Runtime.IsLocalDatapath(dp) {
		return
	}
	dpObj, ok := c.Snapshot.Datapaths[dp]
	if !ok {
		c.Log.Warnf("missing-datapath", "row %s: datapath %d not in snapshot", row.UUID, dp)
		return
	}

	// Step 2: in/out-port gate.
	if row.InOutPort != "" {
		c.Index.Add(sbmodel.KindPortBinding, row.InOutPort, row.UUID, 1)
		pb, ok := c.Snapshot.PortBindings[row.InOutPort]
		if !ok || pb.Datapath != dp {
			return
		}
		if !c.Runtime.IsRelatedLocalPort(row.InOutPort) {
			return
		}
	}

	// Step 3: pipeline mapping.
	physTable, outputTable := c.physicalTables(row)

	// Step 4: action parse.
	prog, err := c.ActionParser.Parse(row.Actions, c.Symbols, c.actionOptions())
	if err != nil {
		c.Log.Warnf("parse-action", "row %s: action parse failed: %s", row.UUID, err)
		return
	}

	meterID := ""
	if row.ControllerMeter != "" {
		id, ok := c.Meters.Assign(row.ControllerMeter)
		if !ok {
			c.Log.Warnf("meter-exhausted", "row %s: controller meter %q exhausted", row.UUID, row.ControllerMeter)
		} else {
			meterID = id
		}
	}
	actionCtx := actionprog.CompileContext{OutputTable: outputTable, ControllerMeter: meterID}

	// Step 5: cache probe.
	entry := c.Cache.Get(row.UUID)
	if entry.State == xlatecache.Matches && entry.ConjN > 0 {
		if !c.CID.AllocSpecified(row.UUID, dp, entry.ConjBase, entry.ConjN) {
			c.Cache.Delete(row.UUID)
			entry = xlatecache.Entry{State: xlatecache.Empty}
		}
	}
	if entry.State == xlatecache.Matches {
		if c.CacheObserver != nil {
			c.CacheObserver.Hit("matches")
		}
		c.reemitCachedMatches(entry, owner)
		return
	}
	if c.CacheObserver != nil {
		if entry.State == xlatecache.Expr {
			c.CacheObserver.Hit("expr")
		} else {
			c.CacheObserver.Miss()
		}
	}

	// Step 6: expression.
	var tree lflowexpr.Node
	hasAddrOrPGRefs := false
	switch entry.State {
	case xlatecache.Expr:
		tree = lflowexpr.Clone(entry.Expr.(exprTree).node)
	default: // Empty
		res, err := c.MatchParser.Parse(row.Match, c.Symbols, addrSetNameSet(c.Snapshot), portGroupNameSet(c.Snapshot))
		if err != nil {
			c.Log.Warnf("parse-match", "row %s: match parse failed: %s", row.UUID, err)
			return
		}
		for name, n := range res.AddrSetRefs {
			c.Index.Add(sbmodel.KindAddrSet, name, row.UUID, n)
		}
		for name, n := range res.PortGroupRefs {
			c.Index.Add(sbmodel.KindPortGroup, name, row.UUID, n)
		}
		for name, n := range res.PortRefs {
			c.resolvePortRef(dp, name, row.UUID, n)
		}
		hasAddrOrPGRefs = len(res.AddrSetRefs) > 0 || len(res.PortGroupRefs) > 0
		tree = lflowexpr.Simplify(res.Tree)
	}

	// Step 7: save for possible caching.
	var clonedForCache lflowexpr.Node
	if c.Cache.Enabled() && !hasAddrOrPGRefs {
		clonedForCache = lflowexpr.Clone(tree)
	}

	// Step 8: condition evaluation and normalization.
	resolver := &chassisResolver{compiler: c, row: row}
	evaluated := lflowexpr.EvaluateConditions(tree, resolver)
	clauses := lflowexpr.Normalize(evaluated)

	// Steps 9-10: match expansion and emission.
	isSwitch := !dpObj.IsRouter
	emitted, base, n := c.expandAndEmit(row, dp, owner, physTable, actionCtx, prog, clauses, isSwitch)

	// Step 11: cache write.
	if !c.Cache.Enabled() {
		return
	}
	switch {
	case !c.Index.HasAny(row.UUID) && len(emitted) > 0:
		c.Cache.PutMatches(row.UUID, base, n, emitted, cacheSizeMatches(emitted))
	case !hasAddrOrPGRefs && clonedForCache != nil:
		c.Cache.PutExpr(row.UUID, exprTree{node: clonedForCache}, cacheSizeExpr(clonedForCache))
	}
}

// reemitCachedMatches re-adds a MATCHES-cached row's previously compiled
// flows. Sub-matches that carry a conjunction action must go back through
// AddOrAppendFlow so they keep coalescing with whatever other rows'
// clauses currently share their (table, priority, match); the final
// conj_id match (no Conjunction label) is re-added as an ordinary flow.
func (c *Compiler) reemitCachedMatches(entry xlatecache.Entry, owner string) {
	flows, ok := entry.Matches.([]flowsink.Flow)
	if !ok {
		return
	}
	for _, f := range flows {
		f.Owner = owner
		if len(f.Actions) == 1 && f.Actions[0].Conjunction != nil {
			c.Sink.AddOrAppendFlow(f)
		} else {
			c.Sink.AddFlow(f)
		}
	}
}

// resolvePortRef records name's tunnel-key binding for an inport/outport
// match comparison, mirroring the original's lookup_port_cb: a port
// binding is tried first, and the reference is recorded regardless of
// whether it currently exists, so that row's later creation reprocesses
// row. If no port binding on dp answers to name, the same name is recorded
// as a multicast-group reference on dp instead, again regardless of
// whether the group currently exists.
func (c *Compiler) resolvePortRef(dp sbmodel.DatapathID, name string, row sbmodel.RowID, n int) {
	c.Index.Add(sbmodel.KindPortBinding, name, row, n)

	if pb, ok := c.Snapshot.PortBindings[name]; ok && pb.Datapath == dp {
		return
	}

	key := sbmodel.MCGroupKey{Datapath: dp, Name: name}
	c.Index.Add(sbmodel.KindMCGroup, key.RefName(), row, n)

	if _, ok := c.Snapshot.MulticastGroupLookup(dp, name); !ok {
		c.Log.Warnf("resolve-port-ref", "row %s references undefined multicast group %s on datapath %d", row, name, dp)
	}
}

func (c *Compiler) physicalTables(row *sbmodel.LogicalRow) (phys, output uint8) {
	base := c.Config.IngressTableBase
	if row.Pipeline == sbmodel.Egress {
		base = c.Config.EgressTableBase
	}
	phys = base + row.TableID
	return phys, phys + 1
}

func (c *Compiler) actionOptions() actionprog.Options {
	return actionprog.Options{
		DHCPv4:           c.Snapshot.DHCPv4,
		DHCPv6:           c.Snapshot.DHCPv6,
		NDRA:             c.Snapshot.NDRA,
		ControllerEvents: c.Snapshot.ControllerEvents,
	}
}

func (c *Compiler) addrSetResolver() lflowexpr.AddrSetResolver {
	return func(name string) ([]string, bool) {
		as, ok := c.Snapshot.AddressSets[name]
		if !ok {
			return nil, false
		}
		members := make([]string, len(as.Members))
		for i, m := range as.Members {
			members[i] = m.String()
		}
		return members, true
	}
}

// expandAndEmit runs step 9 (expansion, with conjunction-id allocation)
// and step 10 (emission, with the switch port-pin drop rule) over clauses,
// returning every flow it staged plus the conjunction-id base/count it
// used so the caller can decide a cache entry.
func (c *Compiler) expandAndEmit(row *sbmodel.LogicalRow, dp sbmodel.DatapathID, owner string,
	physTable uint8, actionCtx actionprog.CompileContext, prog actionprog.Program,
	clauses []lflowexpr.Clause, isSwitch bool) (flows []flowsink.Flow, base, n uint32) {

	var expanded []lflowexpr.ExpandedClause
	var conjCount uint32
	for _, cl := range clauses {
		ex, err := lflowexpr.Expand(cl, c.addrSetResolver())
		if err != nil {
			c.Log.Warnf("expand-match", "row %s: match expansion failed: %s", row.UUID, err)
			continue
		}
		expanded = append(expanded, ex)
		if ex.Conjunctive {
			conjCount++
		}
	}
	if conjCount > 0 {
		base = c.CID.Alloc(row.UUID, dp, conjCount)
		n = conjCount
	}

	realActions, err := c.ActionCompiler.Compile(prog, actionCtx)
	if err != nil {
		c.Log.Warnf("compile-action", "row %s: action compile failed: %s", row.UUID, err)
		return nil, base, n
	}

	var conjIdx uint32
	for _, ex := range expanded {
		if !ex.Conjunctive {
			for _, m := range ex.Matches {
				fields, ann, pinned := c.buildFields(m.Fields, dp, isSwitch)
				if pinned {
					continue
				}
				f := flowsink.Flow{
					Table: physTable, Priority: row.Priority, Owner: owner,
					Match: flowsink.Match{Fields: fields}, Actions: realActions,
					Meter: actionCtx.ControllerMeter, AddrSet: ann,
				}
				c.Sink.AddFlow(f)
				flows = append(flows, f)
			}
			continue
		}

		conjID := base + conjIdx
		conjIdx++
		nDims := uint32(len(ex.Dims))
		for dimIdx, dim := range ex.Dims {
			for _, v := range dim.Values {
				allFields := append(append([]lflowexpr.FieldValue{}, ex.Fixed...), v)
				fields, ann, pinned := c.buildFields(allFields, dp, isSwitch)
				if pinned {
					continue
				}
				action := actionprog.ConjunctionAction(actionprog.ConjunctionEncoding{
					ID: conjID, Dim: uint32(dimIdx + 1), NDims: nDims,
				})
				f := flowsink.Flow{
					Table: physTable, Priority: row.Priority, Owner: owner,
					Match: flowsink.Match{Fields: fields}, Actions: []flowsink.Action{action},
					Meter: actionCtx.ControllerMeter, AddrSet: ann,
				}
				c.Sink.AddOrAppendFlow(f)
				flows = append(flows, f)
			}
		}

		finalFields, _, pinned := c.buildFields(ex.Fixed, dp, isSwitch)
		if pinned {
			continue
		}
		finalFields = append(finalFields, flowsink.MatchField{Name: "conj_id", Value: fmt.Sprintf("%d", conjID)})
		f := flowsink.Flow{
			Table: physTable, Priority: row.Priority, Owner: owner,
			Match: flowsink.Match{Fields: finalFields}, Actions: realActions,
			Meter: actionCtx.ControllerMeter,
		}
		c.Sink.AddFlow(f)
		flows = append(flows, f)
	}

	return flows, base, n
}

// buildFields renders a clause's resolved fields into concrete match
// fields, always stamping the datapath metadata field (spec.md §4.4 step
// 10), and applies the switch port-pin drop rule: a match pinning
// inport/outport on a switch datapath is dropped unless that logical port
// is in the related-local-ports set.
func (c *Compiler) buildFields(fvs []lflowexpr.FieldValue, dp sbmodel.DatapathID, isSwitch bool) (fields []flowsink.MatchField, ann *flowsink.AddrSetAnnotation, pinned bool) {
	fields = append(fields, flowsink.MatchField{Name: "metadata", Value: fmt.Sprintf("0x%x", uint32(dp))})

	for _, fv := range fvs {
		if isSwitch && (fv.Field == "inport" || fv.Field == "outport") && !c.Runtime.IsRelatedLocalPort(fv.Value) {
			return nil, nil, true
		}

		val := fv.Value
		if fv.Negate {
			val = "!" + val
		}
		fields = append(fields, flowsink.MatchField{Name: fv.Field, Value: val})

		if fv.AddrSetName != "" {
			ann = &flowsink.AddrSetAnnotation{Name: fv.AddrSetName, IP: fv.AddrSetValue}
		}
	}
	return fields, ann, false
}

// chassisResolver evaluates is_chassis_resident(name) calls (RC step 8),
// recording a PORTBINDING reference as a side effect the same way the
// in/out-port gate does in step 2.
type chassisResolver struct {
	compiler *Compiler
	row      *sbmodel.LogicalRow
}

func (r *chassisResolver) Resolve(name, arg string) bool {
	if name != "is_chassis_resident" {
		return false
	}
	r.compiler.Index.Add(sbmodel.KindPortBinding, arg, r.row.UUID, 1)
	pb, ok := r.compiler.Snapshot.PortBindings[arg]
	if !ok {
		return false
	}
	return r.compiler.Runtime.IsChassisResident(arg, pb)
}

func addrSetNameSet(s *sbmodel.Snapshot) map[string]struct{} {
	out := make(map[string]struct{}, len(s.AddressSets))
	for name := range s.AddressSets {
		out[name] = struct{}{}
	}
	return out
}

func portGroupNameSet(s *sbmodel.Snapshot) map[string]struct{} {
	out := make(map[string]struct{}, len(s.PortGroups))
	for name := range s.PortGroups {
		out[name] = struct{}{}
	}
	return out
}

// cacheSizeMatches and cacheSizeExpr are approximate size metrics fed to
// the cache's LRU bound; the exact unit is opaque to callers (xlatecache
// doc comment), so a flow/byte-proportional count is enough.
func cacheSizeMatches(flows []flowsink.Flow) int {
	total := 32
	for _, f := range flows {
		total += 16 * (len(f.Match.Fields) + len(f.Actions))
	}
	return total
}

func cacheSizeExpr(n lflowexpr.Node) int {
	return len(n.String()) + 16
}
