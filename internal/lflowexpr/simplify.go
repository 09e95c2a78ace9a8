package lflowexpr

// Simplify performs constant folding: And/Or terms that are constant
// BoolLit are folded away, Not of a BoolLit is folded, and singleton
// And/Or nodes collapse to their one term. It never fails.
func Simplify(n Node) Node {
	switch t := n.(type) {
	case *And:
		var terms []Node
		for _, sub := range t.Terms {
			s := Simplify(sub)
			if b, ok := s.(*BoolLit); ok {
				if !b.Value {
					return &BoolLit{Value: false}
				}
				continue // drop constant-true term
			}
			terms = append(terms, s)
		}
		switch len(terms) {
		case 0:
			return &BoolLit{Value: true}
		case 1:
			return terms[0]
		default:
			return &And{Terms: terms}
		}
	case *Or:
		var terms []Node
		for _, sub := range t.Terms {
			s := Simplify(sub)
			if b, ok := s.(*BoolLit); ok {
				if b.Value {
					return &BoolLit{Value: true}
				}
				continue // drop constant-false term
			}
			terms = append(terms, s)
		}
		switch len(terms) {
		case 0:
			return &BoolLit{Value: false}
		case 1:
			return terms[0]
		default:
			return &Or{Terms: terms}
		}
	case *Not:
		s := Simplify(t.Term)
		if b, ok := s.(*BoolLit); ok {
			return &BoolLit{Value: !b.Value}
		}
		return &Not{Term: s}
	default:
		return n
	}
}

// WithPrerequisite combines expr with a prerequisite constraint using a
// logical AND, per RC step 6. A nil or always-true prerequisite is
// dropped.
func WithPrerequisite(expr Node, prereq Node) Node {
	if prereq == nil {
		return expr
	}
	if b, ok := Simplify(prereq).(*BoolLit); ok && b.Value {
		return expr
	}
	return &And{Terms: []Node{prereq, expr}}
}
