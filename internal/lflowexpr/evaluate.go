package lflowexpr

// ConditionResolver evaluates a named boolean condition such as
// is_chassis_resident(name). Resolving a condition is also expected by the
// caller to record a reference into the resource-reference index (RC step
// 8); this package only calls Resolve and substitutes its result, it does
// not touch the index itself.
type ConditionResolver interface {
	Resolve(name, arg string) bool
}

// EvaluateConditions walks n, replacing every Call with a BoolLit holding
// the resolver's answer for it, then re-simplifies. No Call is left in
// place: the resolver decides the value of every call name it is given.
func EvaluateConditions(n Node, resolve ConditionResolver) Node {
	substituted := substituteCalls(n, resolve)
	return Simplify(substituted)
}

func substituteCalls(n Node, resolve ConditionResolver) Node {
	switch t := n.(type) {
	case *Call:
		return &BoolLit{Value: resolve.Resolve(t.Name, t.Arg)}
	case *And:
		terms := make([]Node, len(t.Terms))
		for i, sub := range t.Terms {
			terms[i] = substituteCalls(sub, resolve)
		}
		return &And{Terms: terms}
	case *Or:
		terms := make([]Node, len(t.Terms))
		for i, sub := range t.Terms {
			terms[i] = substituteCalls(sub, resolve)
		}
		return &Or{Terms: terms}
	case *Not:
		return &Not{Term: substituteCalls(t.Term, resolve)}
	default:
		return n
	}
}
