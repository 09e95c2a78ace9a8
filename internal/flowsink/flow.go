// Package flowsink implements the forwarding-plane staging table that the
// translator treats as an opaque sink (spec.md §1 non-goals, §6 External
// interfaces). Its Flow/Match/Action shapes follow the same conventions as
// the teacher's ovs.Flow (a struct of match fields plus an ordered action
// list, MarshalText'd for inspection) and ovs.Error (a sentinel-error-
// producing custom error type), generalized to the logical-flow domain:
// metadata/register matches, conjunction ids, and an owning row identity
// instead of raw ofctl flow syntax.
package flowsink

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ovnlocal/lflow/internal/sbmodel"
)

// ErrNoActions is returned when a Flow has no actions; mirrors the
// teacher's errNoActions check in ovs.Flow.MarshalText.
var ErrNoActions = errors.New("flowsink: flow has no actions")

// A FlowError wraps a Flow-level validation failure, following ovs.Error's
// shape of "carry the failing value plus the underlying error".
type FlowError struct {
	Flow *Flow
	Err  error
}

func (e *FlowError) Error() string {
	return fmt.Sprintf("flowsink: invalid flow: %s", e.Err)
}

func (e *FlowError) Unwrap() error { return e.Err }

// MatchField is one concrete field=value pair in a Match, e.g.
// metadata=0x2 or reg14=0x1.
type MatchField struct {
	Name  string
	Value string
}

// AddrSetAnnotation records that a Match was produced by expanding an
// address-set member, so the address-set fast path (spec.md §4.5.1) and
// RemoveFlowsForAddrSetIP can find it again later.
type AddrSetAnnotation struct {
	Name string
	IP   string
	Mask string
}

// Match is a concrete match: a set of fields. A logical inport/outport pin
// is one of those fields; the optional address-set annotation is carried
// on the Flow (Flow.AddrSet), not here.
type Match struct {
	Fields []MatchField
}

// Key returns a stable, comparable string for use as a dedup key in
// AddOrAppendFlow and the in-memory sink's flow table.
func (m Match) Key() string {
	fields := append([]MatchField{}, m.Fields...)
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })

	var b strings.Builder
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Name)
		b.WriteByte('=')
		b.WriteString(f.Value)
	}
	return b.String()
}

// Action is a single action in a flow's action list. Raw carries the
// action's already-encoded textual form (the action compiler's job,
// spec.md §1 non-goal); Conjunction, when non-nil, marks this action as a
// conjunction() clause so AddOrAppendFlow knows to coalesce rather than
// overwrite.
type Action struct {
	Raw        string
	Conjunction *ConjunctionLabel
}

// ConjunctionLabel is the (id, dim, n_dims) tuple a conjunction() action
// carries.
type ConjunctionLabel struct {
	ID     uint32
	Dim    uint32
	NDims  uint32
}

// Flow is one desired concrete rule.
type Flow struct {
	Table    uint8
	Priority uint16
	Cookie   uint64
	Match    Match
	Actions  []Action
	Owner    string // owning row identity (+datapath), used as flood-remove key
	Meter    string
	AddrSet  *AddrSetAnnotation
}

// Validate checks the invariants the teacher's ovs.Flow.MarshalText
// enforces on actions: a flow must carry at least one action.
func (f *Flow) Validate() error {
	if len(f.Actions) == 0 {
		return &FlowError{Flow: f, Err: ErrNoActions}
	}
	return nil
}

// String renders f in an ovs-ofctl-like textual form, for logging and
// tests; not used for wire transport (the forwarding-plane transport is
// out of scope, spec.md §1).
func (f *Flow) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "table=%d,priority=%d,cookie=0x%x", f.Table, f.Priority, f.Cookie)
	if f.Meter != "" {
		fmt.Fprintf(&b, ",meter=%s", f.Meter)
	}
	if mk := f.Match.Key(); mk != "" {
		fmt.Fprintf(&b, ",%s", mk)
	}
	b.WriteString(",actions=")
	for i, a := range f.Actions {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.Raw)
	}
	return b.String()
}

// OwnerForRow builds the owner-id for an ordinary row flow: one owner per
// (row, datapath) pair, so flood-remove can target exactly the rules a
// changed row produced.
func OwnerForRow(row sbmodel.RowID, dp sbmodel.DatapathID) string {
	return fmt.Sprintf("lflow-%s-dp%d", row, dp)
}

// OwnerForAdjunct builds an owner-id for adjunct emitters (§4.6), which
// key by the entity they translate rather than by row.
func OwnerForAdjunct(kind, id string) string {
	return fmt.Sprintf("adjunct-%s-%s", kind, id)
}
