package lflowexpr

import "fmt"

// FieldValue is one resolved (field, value) pair in a concrete match, with
// an optional address-set provenance annotation used by the address-set
// fast path (spec.md §4.5.1) to identify which matches came from which
// address-set member.
type FieldValue struct {
	Field      string
	Value      string
	Negate     bool
	AddrSetName  string // non-empty if Value came from an address-set member
	AddrSetValue string
}

// Dimension is one field of a clause whose resolved values number more
// than one — a candidate axis for either fan-out or conjunctive expansion.
type Dimension struct {
	Field  string
	Values []FieldValue
}

// ExpandedClause is the expansion of one normalized Clause.
//
// When Conjunctive is false, Matches holds the final, ready-to-emit
// matches directly (at most one fan-out dimension was present).
//
// When Conjunctive is true, Dims holds the per-dimension value lists; the
// caller (internal/rowcompile) allocates one conjunction id from CID,
// emits one sub-match per (dimension, value) pair carrying a conjunction
// action labeled (id, dim_index, n_dims), and one final match on the
// allocated conj_id carrying the row's real actions. This split exists
// because conjunction-id allocation is CID's job, not the expression
// engine's (spec.md §4.2/§4.4 step 9).
type ExpandedClause struct {
	Fixed       []FieldValue
	Conjunctive bool
	Matches     []FieldValue2D // valid when !Conjunctive: one match's full field list per entry
	Dims        []Dimension    // valid when Conjunctive
}

// FieldValue2D is a fully-resolved set of fields for one concrete match.
type FieldValue2D struct {
	Fields []FieldValue
}

// AddrSetResolver resolves a named address set to its member values,
// wired by internal/rowcompile from the current address-set snapshot (or
// a synthetic fake set during §4.5.1's re-translation).
type AddrSetResolver func(name string) (members []string, ok bool)

// Expand resolves every Cmp in clause against resolve and splits the
// result into fixed fields and fan-out/conjunctive dimensions.
func Expand(clause Clause, resolve AddrSetResolver) (ExpandedClause, error) {
	var fixed []FieldValue
	var dims []Dimension

	for _, cmp := range clause.Cmps {
		values, err := resolveValues(cmp, resolve)
		if err != nil {
			return ExpandedClause{}, err
		}

		if len(values) == 1 {
			fixed = append(fixed, values[0])
			continue
		}
		if cmp.Negate {
			return ExpandedClause{}, fmt.Errorf("lflowexpr: negated comparison %q cannot expand a multi-valued set", cmp.Field)
		}
		dims = append(dims, Dimension{Field: cmp.Field, Values: values})
	}

	switch len(dims) {
	case 0:
		return ExpandedClause{Fixed: fixed, Matches: []FieldValue2D{{Fields: append([]FieldValue{}, fixed...)}}}, nil
	case 1:
		var matches []FieldValue2D
		for _, v := range dims[0].Values {
			fields := append(append([]FieldValue{}, fixed...), v)
			matches = append(matches, FieldValue2D{Fields: fields})
		}
		return ExpandedClause{Fixed: fixed, Matches: matches}, nil
	default:
		return ExpandedClause{Fixed: fixed, Conjunctive: true, Dims: dims}, nil
	}
}

func resolveValues(cmp *Cmp, resolve AddrSetResolver) ([]FieldValue, error) {
	var out []FieldValue
	for _, v := range cmp.Values {
		if v.AddrSetRef == "" {
			out = append(out, FieldValue{Field: cmp.Field, Value: v.Literal, Negate: cmp.Negate})
			continue
		}

		members, ok := resolve(v.AddrSetRef)
		if !ok {
			return nil, fmt.Errorf("lflowexpr: address set %q has no binding", v.AddrSetRef)
		}
		for _, m := range members {
			out = append(out, FieldValue{
				Field:        cmp.Field,
				Value:        m,
				Negate:       cmp.Negate,
				AddrSetName:  v.AddrSetRef,
				AddrSetValue: m,
			})
		}
	}
	return out, nil
}
