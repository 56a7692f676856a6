package schema

import "sort"

// Order returns ops in execution order. The input slice is not modified.
//
// Creates and replaces run first, by kind precedence:
//
//	SEQUENCE, TYPE, TABLE, INDEX, VIEW, PACKAGE, PACKAGE BODY, PROCEDURE, FUNCTION, TRIGGER
//
// followed by drops in the reverse precedence, so dependents are removed before
// what they depend on. Within a kind, ops are sorted by qualified name. Unknown
// kinds are created last and dropped first.
//
// One exception keeps kind changes executable: a drop whose qualified name is
// also being created (under a different kind) runs before all creates.
//
// The ordering is a fixed approximation of dependencies; object bodies are not
// inspected for references.
func Order(ops []*ChangeOp) []*ChangeOp {
	created := make(map[string]bool)
	for _, op := range ops {
		if op.Type == OpCreate {
			created[op.Identity.QualifiedName()] = true
		}
	}

	phase := func(op *ChangeOp) int {
		switch op.Type {
		case OpDrop:
			if created[op.Identity.QualifiedName()] {
				return 0
			}
			return 2
		default:
			return 1
		}
	}

	rank := func(op *ChangeOp) int {
		p := op.Identity.Kind.precedence()
		if op.Type == OpDrop {
			return len(creationOrder) - p
		}
		return p
	}

	ordered := append([]*ChangeOp(nil), ops...)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if pa, pb := phase(a), phase(b); pa != pb {
			return pa < pb
		}
		if ra, rb := rank(a), rank(b); ra != rb {
			return ra < rb
		}
		return a.Identity.QualifiedName() < b.Identity.QualifiedName()
	})

	return ordered
}
