package schema

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/utils"
)

// OpType tags the variant of a ChangeOp.
type OpType string

const (
	OpCreate  OpType = "CREATE"
	OpReplace OpType = "REPLACE"
	OpDrop    OpType = "DROP"
)

var (
	// ErrObjectExists is returned by Snapshot.Apply when creating an object that is already present.
	ErrObjectExists = errors.New("object already exists")

	// ErrObjectMissing is returned by Snapshot.Apply when replacing or dropping an absent object.
	ErrObjectMissing = errors.New("object does not exist")
)

type (
	// ChangeOp is one object-level change and the change that undoes it.
	//
	// The variant is selected by Type:
	//   - OpCreate: New is set, Old is nil
	//   - OpReplace: Old is the current definition, New the desired one
	//   - OpDrop: Old is set, New is nil
	//
	// Statements are rendered when the op is built, so a persisted op can be
	// executed (or undone through Inverse) without re-diffing. Inverse has the
	// same shape and a nil Inverse of its own.
	ChangeOp struct {
		Type       OpType            `json:"type"`
		Identity   ObjectIdentity    `json:"identity"`
		Old        *ObjectDefinition `json:"old,omitempty"`
		New        *ObjectDefinition `json:"new,omitempty"`
		Statements []string          `json:"statements"`
		Warning    string            `json:"warning,omitempty"`
		Inverse    *ChangeOp         `json:"inverse,omitempty"`
	}

	// ChangeSet is an ordered list of ChangeOps plus the rules and snapshot
	// times it was computed from.
	ChangeSet struct {
		Ops              []*ChangeOp `json:"ops"`
		Rules            RuleSet     `json:"rules"`
		SourceCapturedAt time.Time   `json:"source_captured_at"`
		TargetCapturedAt time.Time   `json:"target_captured_at"`
	}

	// Summary counts the ops in a ChangeSet by type.
	Summary struct {
		Creates  int
		Replaces int
		Drops    int
	}
)

// NewCreate builds a Create op for def. Its inverse drops def.
func NewCreate(def *ObjectDefinition) *ChangeOp {
	op := &ChangeOp{
		Type:       OpCreate,
		Identity:   def.Identity,
		New:        def,
		Statements: []string{createStatement(def)},
	}
	op.Inverse = &ChangeOp{
		Type:       OpDrop,
		Identity:   def.Identity,
		Old:        def,
		Statements: []string{dropStatement(def)},
	}
	return op
}

// NewDrop builds a Drop op for def. Its inverse recreates def from the
// definition known at diff time.
func NewDrop(def *ObjectDefinition) *ChangeOp {
	op := &ChangeOp{
		Type:       OpDrop,
		Identity:   def.Identity,
		Old:        def,
		Statements: []string{dropStatement(def)},
	}
	op.Inverse = &ChangeOp{
		Type:       OpCreate,
		Identity:   def.Identity,
		New:        def,
		Statements: []string{createStatement(def)},
	}
	return op
}

// NewReplace builds a Replace op turning old into new. Tables are changed
// column by column using syntax; other kinds are recreated. suppressDrops omits
// column drops from table alters.
func NewReplace(old, new *ObjectDefinition, syntax AlterSyntax, suppressDrops bool) *ChangeOp {
	var forward, inverse []string
	var warning string

	if new.Identity.Kind == KindTable {
		forward, inverse, warning = tableAlters(old, new, syntax, suppressDrops)
	} else {
		forward = recreateStatements(old, new)
		inverse = recreateStatements(new, old)
	}

	return &ChangeOp{
		Type:       OpReplace,
		Identity:   new.Identity,
		Old:        old,
		New:        new,
		Statements: forward,
		Warning:    warning,
		Inverse: &ChangeOp{
			Type:       OpReplace,
			Identity:   new.Identity,
			Old:        new,
			New:        old,
			Statements: inverse,
			Warning:    warning,
		},
	}
}

// Script joins the op's statements into a single script, each statement
// terminated by ";".
func (op *ChangeOp) Script() string {
	parts := make([]string, 0, len(op.Statements))
	for _, stmt := range op.Statements {
		parts = append(parts, terminate(stmt))
	}
	return strings.Join(parts, "\n")
}

// String returns a short description such as "CREATE TABLE HR.EMP".
func (op *ChangeOp) String() string {
	return string(op.Type) + " " + op.Identity.String()
}

// Summary counts the ops by type.
func (cs *ChangeSet) Summary() Summary {
	var s Summary
	for _, op := range cs.Ops {
		switch op.Type {
		case OpCreate:
			s.Creates++
		case OpReplace:
			s.Replaces++
		case OpDrop:
			s.Drops++
		}
	}
	return s
}

// Empty reports whether the change set has no ops.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Ops) == 0
}

// Inverses returns the inverse of every op in reverse order, which is the
// sequence that undoes the whole change set.
func (cs *ChangeSet) Inverses() []*ChangeOp {
	inverses := make([]*ChangeOp, 0, len(cs.Ops))
	for i := len(cs.Ops) - 1; i >= 0; i-- {
		inverses = append(inverses, cs.Ops[i].Inverse)
	}
	return inverses
}

// Apply returns a new Snapshot reflecting op. The receiver is unchanged.
func (s *Snapshot) Apply(op *ChangeOp) (*Snapshot, error) {
	c := s.copy()
	id := NewIdentity(op.Identity.Schema, op.Identity.Name, op.Identity.Kind)
	_, exists := c.objects[id]

	switch op.Type {
	case OpCreate:
		if exists {
			return nil, errors.Wrapf(ErrObjectExists, "%s", id)
		}
		c.objects[id] = op.New.clone()
	case OpReplace:
		if !exists {
			return nil, errors.Wrapf(ErrObjectMissing, "%s", id)
		}
		c.objects[id] = op.New.clone()
	case OpDrop:
		if !exists {
			return nil, errors.Wrapf(ErrObjectMissing, "%s", id)
		}
		delete(c.objects, id)
	default:
		return nil, errors.Errorf("unknown op type %q", op.Type)
	}

	return c, nil
}

func createStatement(def *ObjectDefinition) string {
	return strings.TrimSpace(def.Body)
}

func dropStatement(def *ObjectDefinition) string {
	if def.DropStatement != "" {
		return def.DropStatement
	}
	return utils.NewSQLBuilder().Drop(string(def.Identity.Kind)).Name(def.Name()).String()
}

// recreateStatements replaces from with to. Bodies that replace in place
// (CREATE OR REPLACE) are executed directly; anything else is dropped first.
func recreateStatements(from, to *ObjectDefinition) []string {
	if replacesInPlace(to.Body) {
		return []string{createStatement(to)}
	}
	return []string{dropStatement(from), createStatement(to)}
}

func replacesInPlace(body string) bool {
	fields := strings.Fields(strings.ToUpper(Normalize(body)))
	return len(fields) >= 3 && fields[0] == "CREATE" && fields[1] == "OR" && fields[2] == "REPLACE"
}

func terminate(stmt string) string {
	stmt = strings.TrimRight(stmt, " \t\r\n")
	if strings.HasSuffix(stmt, ";") {
		return stmt
	}
	return utils.NewSQLBuilder().Raw(stmt).Terminated()
}
