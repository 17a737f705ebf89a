package flow

import "sort"

// Condition selects the outgoing edge label at a branching state.
//
// A condition reads the payload and returns exactly one label per call;
// collection-valued conditions are not part of the contract. Conditions
// should be pure: deterministic and free of side effects, so that
// repeated runs over equal payloads follow identical paths.
type Condition func(p Payload) string

// FieldCondition returns a condition that reads the named payload field
// as a string and returns it as the label. Missing or non-string fields
// yield the empty label.
//
// This covers the common routing pattern where an upstream agent writes
// its decision into a well-known field.
func FieldCondition(field string) Condition {
	return func(p Payload) string {
		s, _ := p.GetString(field)
		return s
	}
}

// transition is the outgoing routing rule attached to a state.
//
// Exactly one of the two variants is populated:
//   - unconditional: target set, cond nil
//   - conditional: cond set, labels (and optionally defaultTarget) set
type transition struct {
	target string

	cond          Condition
	labels        map[string]string
	defaultTarget string
	hasDefault    bool
}

// resolve returns the next state for the given payload.
//
// Unconditional entries return their target directly. Conditional entries
// evaluate the condition, look the label up in the label map, fall back
// to the default target, and otherwise fail with an
// UnresolvedConditionError naming the state and the offending label.
func (t *transition) resolve(state string, p Payload) (string, error) {
	if t.cond == nil {
		return t.target, nil
	}

	label := t.cond(p)
	if next, ok := t.labels[label]; ok {
		return next, nil
	}
	if t.hasDefault {
		return t.defaultTarget, nil
	}

	return "", &UnresolvedConditionError{State: state, Label: label}
}

// targets returns every state this entry can route to, in deterministic
// order: the unconditional target, then conditional targets by label,
// then the default. Used by reachability analysis.
func (t *transition) targets() []string {
	if t.cond == nil {
		return []string{t.target}
	}

	labels := make([]string, 0, len(t.labels))
	for label := range t.labels {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	out := make([]string, 0, len(labels)+1)
	for _, label := range labels {
		out = append(out, t.labels[label])
	}
	if t.hasDefault {
		out = append(out, t.defaultTarget)
	}
	return out
}
