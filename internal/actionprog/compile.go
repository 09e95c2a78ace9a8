package actionprog

import (
	"fmt"

	"github.com/ovnlocal/lflow/internal/flowsink"
	"github.com/ovnlocal/lflow/internal/lflowexpr"
	"github.com/ovnlocal/lflow/internal/sbmodel"
)

// Options bundles the option bags the action parser consults (spec.md
// §4.4 step 4): DHCPv4/v6, ND-RA, and controller-event options, each
// keyed by the name referenced from action text (e.g. "put_dhcpv4_opts(
// ..., myoptions)").
type Options struct {
	DHCPv4           map[string]sbmodel.DHCPv4Options
	DHCPv6           map[string]sbmodel.DHCPv6Options
	NDRA             map[string]sbmodel.NDRAOptions
	ControllerEvents map[string]sbmodel.ControllerEventOptions
}

// Parser parses action text into a Program using the symbol table and the
// option bags. This is the exact contract spec.md §1 calls out as an
// external collaborator.
type Parser interface {
	Parse(text string, symbols lflowexpr.SymbolTable, opts Options) (Program, error)
}

// DefaultParser is the concrete Parser used when no other collaborator is
// wired in. It only tokenizes with Parse: the symbol table and options are
// ignored, so bare identifiers are not checked against known symbols and
// option-bag references are not resolved here.
type DefaultParser struct{}

// Parse implements Parser.
func (DefaultParser) Parse(text string, _ lflowexpr.SymbolTable, _ Options) (Program, error) {
	return Parse(text)
}

// ConjunctionEncoding is the (id, dim, n_dims) label a conjunction-bearing
// clause attaches to its per-dimension sub-matches (spec.md §4.4 step 9).
type ConjunctionEncoding struct {
	ID    uint32
	Dim   uint32
	NDims uint32
}

// CompileContext carries what the action compiler needs beyond the raw
// program: which physical table "next;" resolves to, the controller meter
// id (already resolved by the row compiler, §4.4 "Controller meter"). It
// has no field for a conjunction label.
type CompileContext struct {
	OutputTable     uint8
	ControllerMeter string
}

// Compiler turns a parsed Program into concrete forwarding-plane
// instructions. This is the exact contract spec.md §1 calls out as an
// external collaborator ("the action compiler that encodes a parsed
// action program into concrete forwarding-plane instructions"); RC only
// ever calls this interface.
type Compiler interface {
	Compile(prog Program, ctx CompileContext) ([]flowsink.Action, error)
}

// DefaultCompiler is the concrete Compiler used when no other collaborator
// is wired in. It recognizes a useful subset of OVN's action vocabulary
// and renders everything else through verbatim as a best-effort fallback,
// since the real encoding table belongs to the forwarding-plane agent, not
// to this translator (spec.md §1).
type DefaultCompiler struct{}

// Compile implements Compiler.
func (DefaultCompiler) Compile(prog Program, ctx CompileContext) ([]flowsink.Action, error) {
	actions := make([]flowsink.Action, 0, len(prog))
	for _, call := range prog {
		a, err := compileCall(call, ctx)
		if err != nil {
			return nil, err
		}
		actions = append(actions, a)
	}
	return actions, nil
}

func compileCall(call Call, ctx CompileContext) (flowsink.Action, error) {
	switch call.Name {
	case "next":
		return flowsink.Action{Raw: fmt.Sprintf("resubmit(,%d)", ctx.OutputTable)}, nil
	case "output":
		return flowsink.Action{Raw: "output"}, nil
	case "drop":
		return flowsink.Action{Raw: "drop"}, nil
	case "ct_next":
		return flowsink.Action{Raw: fmt.Sprintf("ct(table=%d)", ctx.OutputTable)}, nil
	case "ct_commit":
		return flowsink.Action{Raw: "ct(commit)"}, nil
	default:
		return flowsink.Action{Raw: call.Raw}, nil
	}
}

// ConjunctionAction builds the flowsink.Action for one conjunction
// dimension clause (spec.md §4.4 step 9/10).
func ConjunctionAction(enc ConjunctionEncoding) flowsink.Action {
	return flowsink.Action{
		Raw:         fmt.Sprintf("conjunction(%d,%d/%d)", enc.ID, enc.Dim, enc.NDims),
		Conjunction: &flowsink.ConjunctionLabel{ID: enc.ID, Dim: enc.Dim, NDims: enc.NDims},
	}
}
