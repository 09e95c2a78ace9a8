package rowcompile

import (
	"net"

	"github.com/ovnlocal/lflow/internal/actionprog"
	"github.com/ovnlocal/lflow/internal/flowsink"
	"github.com/ovnlocal/lflow/internal/lflowexpr"
	"github.com/ovnlocal/lflow/internal/sbmodel"
)

// synthCandidate is one surviving produced match from a synthetic
// re-translation, deferred until after verification (spec.md §4.5.1 step
// 3) so a failed verification never partially emits.
type synthCandidate struct {
	fields      []flowsink.MatchField
	annotation  *flowsink.AddrSetAnnotation
	conjunctive bool
	dimIdx      int
	nDims       uint32
}

// SyntheticAddrSetTranslate implements spec.md §4.5.1: the address-set
// fast path's per-(row, datapath) synthetic re-translation. It repeats RC
// steps 1-8 with addrSetName temporarily rebound to a fake set containing
// only added (padded to two elements if needed), discards every produced
// match not attributable to one of the added values, verifies the
// survivor count against refCount*len(added), reuses the row's existing
// CID base, and only then emits. Returns false ("unhandled") whenever any
// of that fails, per the delta engine's handled/fallback contract.
func (c *Compiler) SyntheticAddrSetTranslate(row *sbmodel.LogicalRow, dp sbmodel.DatapathID, addrSetName string, added []string, refCount int) bool {
	if !c.Runtime.IsLocalDatapath(dp) {
		return true // not locally relevant here; nothing to do, not a failure
	}
	dpObj, ok := c.Snapshot.Datapaths[dp]
	if !ok {
		return true
	}

	if row.InOutPort != "" {
		pb, ok := c.Snapshot.PortBindings[row.InOutPort]
		if !ok || pb.Datapath != dp || !c.Runtime.IsRelatedLocalPort(row.InOutPort) {
			return true
		}
	}

	physTable, outputTable := c.physicalTables(row)

	prog, err := c.ActionParser.Parse(row.Actions, c.Symbols, c.actionOptions())
	if err != nil {
		c.Log.Warnf("addrset-fastpath", "row %s: action parse failed during fast path: %s", row.UUID, err)
		return false
	}
	meterID := ""
	if row.ControllerMeter != "" {
		if id, ok := c.Meters.Assign(row.ControllerMeter); ok {
			meterID = id
		}
	}
	actionCtx := actionprog.CompileContext{OutputTable: outputTable, ControllerMeter: meterID}

	fakeValues := append([]string{}, added...)
	synthPad := ""
	if len(fakeValues) == 1 {
		synthPad = padValue(fakeValues[0])
		fakeValues = append(fakeValues, synthPad)
	}

	fakeResolver := func(name string) ([]string, bool) {
		if name == addrSetName {
			return fakeValues, true
		}
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

	res, err := c.MatchParser.Parse(row.Match, c.Symbols, addrSetNameSet(c.Snapshot), portGroupNameSet(c.Snapshot))
	if err != nil {
		c.Log.Warnf("addrset-fastpath", "row %s: match parse failed during fast path: %s", row.UUID, err)
		return false
	}
	tree := lflowexpr.Simplify(res.Tree)

	evaluated := lflowexpr.EvaluateConditions(tree, &chassisResolver{compiler: c, row: row})
	clauses := lflowexpr.Normalize(evaluated)

	isSwitch := !dpObj.IsRouter

	var survivors []synthCandidate
	for _, cl := range clauses {
		ex, err := lflowexpr.Expand(cl, fakeResolver)
		if err != nil {
			c.Log.Warnf("addrset-fastpath", "row %s: expansion failed during fast path: %s", row.UUID, err)
			return false
		}

		if !ex.Conjunctive {
			for _, m := range ex.Matches {
				val, matched := matchAddrValue(m.Fields, addrSetName)
				if !matched || val == synthPad {
					continue
				}
				fields, ann, pinned := c.buildFields(m.Fields, dp, isSwitch)
				if pinned {
					continue
				}
				survivors = append(survivors, synthCandidate{fields: fields, annotation: ann})
			}
			continue
		}

		nDims := uint32(len(ex.Dims))
		for dimIdx, dim := range ex.Dims {
			for _, v := range dim.Values {
				if v.AddrSetName != addrSetName || v.Value == synthPad {
					continue
				}
				allFields := append(append([]lflowexpr.FieldValue{}, ex.Fixed...), v)
				fields, ann, pinned := c.buildFields(allFields, dp, isSwitch)
				if pinned {
					continue
				}
				survivors = append(survivors, synthCandidate{
					fields: fields, annotation: ann, conjunctive: true, dimIdx: dimIdx, nDims: nDims,
				})
			}
		}
	}

	// Step 3: verification.
	if len(survivors) != refCount*len(added) {
		c.Log.Warnf("addrset-fastpath", "row %s: addr set %s fast path survivor count mismatch: got %d want %d",
			row.UUID, addrSetName, len(survivors), refCount*len(added))
		return false
	}
	if len(survivors) == 0 {
		return true
	}

	// Step 4: reuse the existing CID base.
	needsBase := false
	for _, s := range survivors {
		if s.conjunctive {
			needsBase = true
			break
		}
	}
	base := uint32(0)
	if needsBase {
		base = c.CID.Find(row.UUID, dp)
		if base == 0 {
			c.Log.Warnf("addrset-fastpath", "row %s: no existing conjunction base to reuse", row.UUID)
			return false
		}
	}

	realActions, err := c.ActionCompiler.Compile(prog, actionCtx)
	if err != nil {
		c.Log.Warnf("addrset-fastpath", "row %s: action compile failed during fast path: %s", row.UUID, err)
		return false
	}

	owner := flowsink.OwnerForRow(row.UUID, dp)

	// Step 5: emit.
	for _, s := range survivors {
		if !s.conjunctive {
			f := flowsink.Flow{
				Table: physTable, Priority: row.Priority, Owner: owner,
				Match: flowsink.Match{Fields: s.fields}, Actions: realActions,
				Meter: meterID, AddrSet: s.annotation,
			}
			c.Sink.AddFlow(f)
			continue
		}
		action := actionprog.ConjunctionAction(actionprog.ConjunctionEncoding{ID: base, Dim: uint32(s.dimIdx + 1), NDims: s.nDims})
		f := flowsink.Flow{
			Table: physTable, Priority: row.Priority, Owner: owner,
			Match: flowsink.Match{Fields: s.fields}, Actions: []flowsink.Action{action},
			Meter: meterID, AddrSet: s.annotation,
		}
		c.Sink.AddOrAppendFlow(f)
	}

	return true
}

// matchAddrValue reports the address-set member value substituted for
// addrSetName among fields, if any.
func matchAddrValue(fields []lflowexpr.FieldValue, addrSetName string) (string, bool) {
	for _, fv := range fields {
		if fv.AddrSetName == addrSetName {
			return fv.Value, true
		}
	}
	return "", false
}

// padValue synthesizes a second, distinct element for a singleton added
// set so the match-expansion template still sees a multi-element
// dimension (spec.md §4.5.1 step 1). For a parseable IPv4/IPv6 address it
// flips the low bit of the last byte; otherwise it appends a marker
// suffix that cannot collide with a real address literal.
func padValue(v string) string {
	ip := net.ParseIP(v)
	if ip == nil {
		return v + "#synthetic"
	}
	cp := append(net.IP{}, ip...)
	last := len(cp) - 1
	cp[last] ^= 0x01
	return cp.String()
}
