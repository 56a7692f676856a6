// Package schema models database object inventories and computes the ordered,
// reversible changes that bring one inventory in line with another.
//
// # Model
//
//   - ObjectKind: TABLE, VIEW, INDEX, SEQUENCE, TYPE, PROCEDURE, FUNCTION,
//     PACKAGE, PACKAGE BODY, TRIGGER, or an opaque vendor kind
//   - ObjectIdentity: (schema, name, kind), uppercased for case-insensitive matching
//   - ObjectDefinition: identity, DDL body and optional last-modified time
//   - Snapshot: immutable map of identity to definition plus capture metadata
//   - ChangeOp: Create, Replace or Drop with rendered statements and an inverse
//   - ChangeSet: ordered ops with the RuleSet and snapshot times they came from
//
// # Diffing
//
// Diff compares a source snapshot (desired) against a target snapshot
// (current). Bodies are compared after Normalize strips comments and collapses
// whitespace, so formatting changes never produce ops. The RuleSet excludes
// kinds and names, suppresses drops, and applies a strict cutoff on source
// modification times.
//
// Table replacements become column-level ALTER statements derived from the
// CREATE TABLE column lists (parsed with participle); other kinds are
// recreated. Every op carries its inverse, rendered at the same time:
//
//	Create(def)        <-> Drop(def)
//	Replace(old, new)  <-> Replace(new, old)
//
// Drop's inverse recreates the object from the definition known at diff time;
// anything the target held outside that definition (data, grants) is not
// recoverable.
//
// # Ordering
//
// Order sorts ops by a fixed kind precedence, creates and replaces before
// drops, and drops in reverse precedence:
//
//	cs, err := schema.Compute(source, target, rules)
//	if err != nil {
//		return err
//	}
//
//	for _, op := range cs.Ops {
//		fmt.Println(op.Script())
//	}
package schema
