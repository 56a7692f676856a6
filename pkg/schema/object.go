package schema

import (
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/compare"
)

// ErrDuplicateIdentity is returned when a snapshot would contain the same
// identity twice.
var ErrDuplicateIdentity = errors.New("duplicate object identity")

type (
	// ObjectIdentity is the (schema, name, kind) key of a database object.
	// Schema and Name are stored uppercase so that comparisons are
	// case-insensitive; use NewIdentity to construct one.
	ObjectIdentity struct {
		Schema string     `json:"schema"`
		Name   string     `json:"name"`
		Kind   ObjectKind `json:"kind"`
	}

	// ObjectDefinition is one object as observed in a database.
	ObjectDefinition struct {
		Identity ObjectIdentity `json:"identity"`

		// Body is the DDL that creates the object, exactly as captured. It is
		// compared through Normalized and executed verbatim on creation.
		Body string `json:"body"`

		// LastModified is when the object last changed. Nil means the source
		// does not track it and the object is always considered current.
		LastModified *time.Time `json:"last_modified,omitempty"`

		// SQLName is the vendor-quoted qualified name used in generated DDL.
		// When empty, SCHEMA.NAME from the identity is used.
		SQLName string `json:"sql_name,omitempty"`

		// DropStatement overrides the generated DROP for vendors whose syntax
		// differs (e.g. MySQL's DROP INDEX ... ON table).
		DropStatement string `json:"drop_statement,omitempty"`
	}

	// Snapshot is an immutable inventory of objects captured at a point in time.
	//
	// Snapshots are built by vendor sessions with NewSnapshot and are never
	// modified afterwards; Apply returns a new Snapshot.
	Snapshot struct {
		// CapturedAt is when the inventory was taken.
		CapturedAt time.Time

		// Schemas are the schemas the snapshot covers, uppercased.
		Schemas []string

		// AlterSyntax selects how column-level table changes are written for
		// this database.
		AlterSyntax AlterSyntax

		objects map[ObjectIdentity]*ObjectDefinition
	}
)

// NewIdentity returns an ObjectIdentity with canonical (uppercase, trimmed)
// schema and name. The kind is run through ParseObjectKind.
func NewIdentity(schema, name string, kind ObjectKind) ObjectIdentity {
	return ObjectIdentity{
		Schema: strings.ToUpper(strings.TrimSpace(schema)),
		Name:   strings.ToUpper(strings.TrimSpace(name)),
		Kind:   ParseObjectKind(string(kind)),
	}
}

// QualifiedName returns SCHEMA.NAME.
func (i ObjectIdentity) QualifiedName() string {
	if i.Schema == "" {
		return i.Name
	}
	return i.Schema + "." + i.Name
}

// String returns "KIND SCHEMA.NAME".
func (i ObjectIdentity) String() string {
	return string(i.Kind) + " " + i.QualifiedName()
}

func (i ObjectIdentity) less(other ObjectIdentity) bool {
	if a, b := i.QualifiedName(), other.QualifiedName(); a != b {
		return a < b
	}
	return i.Kind < other.Kind
}

// Normalized returns the body with comments and insignificant whitespace
// removed. Two definitions with equal normalized bodies are considered equal.
func (d *ObjectDefinition) Normalized() string {
	return Normalize(d.Body)
}

// Name returns the name used in generated DDL.
func (d *ObjectDefinition) Name() string {
	if d.SQLName != "" {
		return d.SQLName
	}
	return d.Identity.QualifiedName()
}

// Equal reports whether both definitions have the same identity, normalized
// body and last-modified time.
func (d *ObjectDefinition) Equal(other *ObjectDefinition) bool {
	if eq, needsMoreChecks := compare.NilCheck(d, other); !needsMoreChecks {
		return eq
	}

	return d.Identity == other.Identity &&
		d.Normalized() == other.Normalized() &&
		compare.PointersWithEqual(d.LastModified, other.LastModified, func(a, b *time.Time) bool {
			return a.Equal(*b)
		})
}

func (d *ObjectDefinition) clone() *ObjectDefinition {
	c := *d
	if d.LastModified != nil {
		t := *d.LastModified
		c.LastModified = &t
	}
	return &c
}

// NewSnapshot builds a Snapshot from defs. Identities are canonicalized; a
// repeated identity yields ErrDuplicateIdentity. Definitions are copied, so
// later changes to defs do not affect the snapshot.
//
// Example:
//
//	snap, err := schema.NewSnapshot(time.Now(), []string{"hr"},
//		&schema.ObjectDefinition{
//			Identity: schema.NewIdentity("hr", "employees", schema.KindTable),
//			Body:     "CREATE TABLE HR.EMPLOYEES (ID NUMBER)",
//		},
//	)
func NewSnapshot(capturedAt time.Time, schemas []string, defs ...*ObjectDefinition) (*Snapshot, error) {
	s := &Snapshot{
		CapturedAt: capturedAt,
		Schemas:    make([]string, 0, len(schemas)),
		objects:    make(map[ObjectIdentity]*ObjectDefinition, len(defs)),
	}

	for _, name := range schemas {
		s.Schemas = append(s.Schemas, strings.ToUpper(strings.TrimSpace(name)))
	}

	for _, def := range defs {
		c := def.clone()
		c.Identity = NewIdentity(def.Identity.Schema, def.Identity.Name, def.Identity.Kind)
		if _, ok := s.objects[c.Identity]; ok {
			return nil, errors.Wrapf(ErrDuplicateIdentity, "%s", c.Identity)
		}
		s.objects[c.Identity] = c
	}

	return s, nil
}

// WithAlterSyntax returns a copy of s that renders table alters with syntax.
func (s *Snapshot) WithAlterSyntax(syntax AlterSyntax) *Snapshot {
	c := s.copy()
	c.AlterSyntax = syntax
	return c
}

// Len returns the number of objects in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.objects)
}

// Get returns the definition for id. The returned value must not be modified.
func (s *Snapshot) Get(id ObjectIdentity) (*ObjectDefinition, bool) {
	def, ok := s.objects[NewIdentity(id.Schema, id.Name, id.Kind)]
	return def, ok
}

// Identities returns every identity in the snapshot sorted by qualified name,
// then kind.
func (s *Snapshot) Identities() []ObjectIdentity {
	ids := make([]ObjectIdentity, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].less(ids[j]) })
	return ids
}

// Equal reports whether both snapshots cover the same schemas and hold equal
// definitions. Capture times are ignored.
func (s *Snapshot) Equal(other *Snapshot) bool {
	if eq, needsMoreChecks := compare.NilCheck(s, other); !needsMoreChecks {
		return eq
	}

	return compare.SlicesUnordered(s.Schemas, other.Schemas, strings.EqualFold) &&
		compare.MapsWithEqual(s.objects, other.objects, func(a, b *ObjectDefinition) bool {
			return a.Identity == b.Identity && a.Normalized() == b.Normalized()
		})
}

func (s *Snapshot) copy() *Snapshot {
	c := &Snapshot{
		CapturedAt:  s.CapturedAt,
		Schemas:     append([]string(nil), s.Schemas...),
		AlterSyntax: s.AlterSyntax,
		objects:     make(map[ObjectIdentity]*ObjectDefinition, len(s.objects)),
	}
	for id, def := range s.objects {
		c.objects[id] = def
	}
	return c
}
