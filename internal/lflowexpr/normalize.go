package lflowexpr

// Clause is one AND-clause of comparisons produced by normalizing an
// expression into disjunctive form (RC step 8: "normalize into a
// disjunctive form"). The row is satisfied when any one Clause's every Cmp
// matches.
type Clause struct {
	Cmps []*Cmp
}

// Normalize converts n (already condition-evaluated, with every Call
// substituted away) into a list of Clauses in disjunctive normal form.
// Negations are pushed to the leaves first (flipping Cmp.Negate), so the
// returned Cmps never need a separate "not" wrapper.
func Normalize(n Node) []Clause {
	pushed := pushNot(n, false)
	return toDNF(pushed)
}

// pushNot recursively eliminates Not nodes via De Morgan's laws, so that
// only (possibly negated) Cmp leaves and BoolLit remain negated in place.
// invert tracks whether the current subtree is under an odd number of
// enclosing Not wrappers.
func pushNot(n Node, invert bool) Node {
	switch t := n.(type) {
	case *BoolLit:
		if invert {
			return &BoolLit{Value: !t.Value}
		}
		return t
	case *Cmp:
		if invert {
			c := t.clone().(*Cmp)
			c.Negate = !c.Negate
			return c
		}
		return t
	case *Not:
		return pushNot(t.Term, !invert)
	case *And:
		terms := make([]Node, len(t.Terms))
		for i, sub := range t.Terms {
			terms[i] = pushNot(sub, invert)
		}
		if invert {
			// De Morgan: !(a && b) == !a || !b
			return &Or{Terms: terms}
		}
		return &And{Terms: terms}
	case *Or:
		terms := make([]Node, len(t.Terms))
		for i, sub := range t.Terms {
			terms[i] = pushNot(sub, invert)
		}
		if invert {
			// De Morgan: !(a || b) == !a && !b
			return &And{Terms: terms}
		}
		return &Or{Terms: terms}
	default:
		return n
	}
}

func toDNF(n Node) []Clause {
	switch t := n.(type) {
	case *BoolLit:
		if t.Value {
			return []Clause{{}}
		}
		return nil
	case *Cmp:
		return []Clause{{Cmps: []*Cmp{t}}}
	case *Or:
		var out []Clause
		for _, sub := range t.Terms {
			out = append(out, toDNF(sub)...)
		}
		return out
	case *And:
		clauses := []Clause{{}}
		for _, sub := range t.Terms {
			subClauses := toDNF(sub)
			var next []Clause
			for _, c := range clauses {
				for _, sc := range subClauses {
					merged := Clause{Cmps: append(append([]*Cmp{}, c.Cmps...), sc.Cmps...)}
					next = append(next, merged)
				}
			}
			clauses = next
			if len(clauses) == 0 {
				return nil
			}
		}
		return clauses
	default:
		return nil
	}
}
