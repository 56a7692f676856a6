package schema

import "strings"

// ObjectKind identifies the type of a database object. Known kinds participate
// in diffing and ordering; any other value is carried through as an opaque kind
// and excluded from diffs unless a RuleSet opts in.
type ObjectKind string

const (
	KindTable       ObjectKind = "TABLE"
	KindView        ObjectKind = "VIEW"
	KindIndex       ObjectKind = "INDEX"
	KindSequence    ObjectKind = "SEQUENCE"
	KindType        ObjectKind = "TYPE"
	KindProcedure   ObjectKind = "PROCEDURE"
	KindFunction    ObjectKind = "FUNCTION"
	KindPackage     ObjectKind = "PACKAGE"
	KindPackageBody ObjectKind = "PACKAGE BODY"
	KindTrigger     ObjectKind = "TRIGGER"
)

// creationOrder is the static precedence used when creating or replacing
// objects. Drops use the reverse.
var creationOrder = []ObjectKind{
	KindSequence,
	KindType,
	KindTable,
	KindIndex,
	KindView,
	KindPackage,
	KindPackageBody,
	KindProcedure,
	KindFunction,
	KindTrigger,
}

// ParseObjectKind normalizes s into an ObjectKind. Case is ignored and
// underscores or repeated whitespace are treated as single spaces, so
// "package_body" and "Package  Body" both yield KindPackageBody.
func ParseObjectKind(s string) ObjectKind {
	s = strings.ReplaceAll(s, "_", " ")
	return ObjectKind(strings.ToUpper(strings.Join(strings.Fields(s), " ")))
}

// ParseObjectKinds applies ParseObjectKind to every element, dropping blanks.
func ParseObjectKinds(values []string) []ObjectKind {
	kinds := make([]ObjectKind, 0, len(values))
	for _, v := range values {
		if k := ParseObjectKind(v); k != "" {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// KnownKinds returns the kinds that have a defined ordering precedence, in
// creation order.
func KnownKinds() []ObjectKind {
	return append([]ObjectKind(nil), creationOrder...)
}

// Known reports whether k is one of the predefined kinds.
func (k ObjectKind) Known() bool {
	return k.precedence() < len(creationOrder)
}

// precedence returns k's position in creationOrder. Unknown kinds sort after
// every known kind.
func (k ObjectKind) precedence() int {
	for i, known := range creationOrder {
		if k == known {
			return i
		}
	}
	return len(creationOrder)
}

func (k ObjectKind) String() string {
	return string(k)
}
