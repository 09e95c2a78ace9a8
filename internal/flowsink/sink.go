package flowsink

import "fmt"

// Sink is the flow-sink contract of spec.md §6: add_flow,
// add_or_append_flow, remove_flows, remove_flows_for_addr_set_ip, and
// flood_remove. The translator owns a Sink for the duration of one cycle;
// the action compiler is invoked re-entrantly on a local buffer supplied
// by the row compiler (spec.md §5), never touching the Sink directly.
type Sink interface {
	AddFlow(f Flow)
	AddOrAppendFlow(f Flow)
	RemoveFlows(owner string)
	RemoveFlowsForAddrSetIP(owner string, info AddrSetAnnotation, expectedCount int) error
	FloodRemove(owners []string)
}

// ErrCountMismatch is returned by RemoveFlowsForAddrSetIP when the number
// of matching flows does not equal expectedCount; per spec.md §4.5, this
// signals the caller must report the address-set fast path as unhandled.
type ErrCountMismatch struct {
	Owner    string
	Expected int
	Actual   int
}

func (e *ErrCountMismatch) Error() string {
	return fmt.Sprintf("flowsink: owner %s: expected to remove %d flows, found %d",
		e.Owner, e.Expected, e.Actual)
}

type flowKey struct {
	Table    uint8
	Priority uint16
	MatchKey string
	Owner    string
}

// MemSink is an in-memory implementation of Sink, keyed by
// (table, priority, match, owner) per spec.md §5 ("the flow sink is a set
// keyed by (table, priority, match, owner-id)"). It is the default sink
// used by tests and by cmd/lflow-controller before handing the table to a
// forwarding-plane transport (out of scope, spec.md §1).
type MemSink struct {
	flows map[flowKey]*Flow
}

// NewMemSink returns an empty MemSink.
func NewMemSink() *MemSink {
	return &MemSink{flows: make(map[flowKey]*Flow)}
}

func keyOf(f Flow) flowKey {
	return flowKey{Table: f.Table, Priority: f.Priority, MatchKey: f.Match.Key(), Owner: f.Owner}
}

// AddFlow installs f, replacing any existing flow with the same key.
func (s *MemSink) AddFlow(f Flow) {
	cp := f
	s.flows[keyOf(f)] = &cp
}

// AddOrAppendFlow installs f, or if a flow already exists at the same
// (table, priority, match) for a different owner, appends f's actions to
// it — coalescing conjunction clauses per spec.md §4.4 step 10. A flow
// already present under the same owner is appended to as well, not
// replaced.
func (s *MemSink) AddOrAppendFlow(f Flow) {
	k := keyOf(f)
	if existing, ok := s.flows[k]; ok {
		existing.Actions = append(existing.Actions, f.Actions...)
		return
	}

	for _, existing := range s.flows {
		if existing.Table == f.Table && existing.Priority == f.Priority && existing.Match.Key() == f.Match.Key() {
			existing.Actions = append(existing.Actions, f.Actions...)
			return
		}
	}

	cp := f
	s.flows[k] = &cp
}

// RemoveFlows deletes every flow owned by owner.
func (s *MemSink) RemoveFlows(owner string) {
	for k := range s.flows {
		if k.Owner == owner {
			delete(s.flows, k)
		}
	}
}

// RemoveFlowsForAddrSetIP deletes every flow owned by owner whose
// AddrSet annotation matches info, and verifies exactly expectedCount were
// removed.
func (s *MemSink) RemoveFlowsForAddrSetIP(owner string, info AddrSetAnnotation, expectedCount int) error {
	var removed int
	for k, f := range s.flows {
		if k.Owner != owner || f.AddrSet == nil {
			continue
		}
		if f.AddrSet.Name == info.Name && f.AddrSet.IP == info.IP && f.AddrSet.Mask == info.Mask {
			delete(s.flows, k)
			removed++
		}
	}
	if removed != expectedCount {
		return &ErrCountMismatch{Owner: owner, Expected: expectedCount, Actual: removed}
	}
	return nil
}

// FloodRemove deletes every flow owned by any of owners.
func (s *MemSink) FloodRemove(owners []string) {
	set := make(map[string]struct{}, len(owners))
	for _, o := range owners {
		set[o] = struct{}{}
	}
	for k := range s.flows {
		if _, ok := set[k.Owner]; ok {
			delete(s.flows, k)
		}
	}
}

// Flows returns a snapshot slice of every flow currently staged, for tests
// and for handing off to a forwarding-plane transport.
func (s *MemSink) Flows() []Flow {
	out := make([]Flow, 0, len(s.flows))
	for _, f := range s.flows {
		out = append(out, *f)
	}
	return out
}

// Len reports how many flows are currently staged.
func (s *MemSink) Len() int {
	return len(s.flows)
}

// FlowsForOwner returns the flows currently staged for owner.
func (s *MemSink) FlowsForOwner(owner string) []Flow {
	var out []Flow
	for k, f := range s.flows {
		if k.Owner == owner {
			out = append(out, *f)
		}
	}
	return out
}
