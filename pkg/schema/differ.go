package schema

import (
	"log/slog"

	"github.com/pkg/errors"
)

// Diff compares source (the desired state) with target (the current state)
// under rules and returns the unordered change set that brings target in line
// with source.
//
// Rules are applied as follows:
//   - identities excluded by kind or name are ignored on both sides
//   - objects only in source become Create ops when modified after the cutoff
//   - objects in both with different normalized bodies become Replace ops when
//     the source side was modified after the cutoff
//   - objects only in target become Drop ops unless drops of their kind are
//     disabled, in which case they are skipped silently
//
// Identities include the kind, so an object whose kind changed under the same
// name yields a Drop of the old kind and a Create of the new one.
//
// Example:
//
//	cs, err := schema.Diff(source, target, rules)
//	if err != nil {
//		return err
//	}
//
//	for _, op := range schema.Order(cs.Ops) {
//		fmt.Println(op)
//	}
func Diff(source, target *Snapshot, rules RuleSet) (*ChangeSet, error) {
	if source == nil || target == nil {
		return nil, errors.New("both source and target snapshots are required")
	}

	if err := rules.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid rules")
	}

	cs := &ChangeSet{
		Ops:              make([]*ChangeOp, 0),
		Rules:            rules,
		SourceCapturedAt: source.CapturedAt,
		TargetCapturedAt: target.CapturedAt,
	}

	for _, id := range source.Identities() {
		if rules.Excludes(id) {
			continue
		}

		src, _ := source.Get(id)
		if !rules.AfterCutoff(src) {
			continue
		}

		tgt, ok := target.Get(id)
		switch {
		case !ok:
			cs.Ops = append(cs.Ops, NewCreate(src))
		case src.Normalized() != tgt.Normalized():
			cs.Ops = append(cs.Ops, NewReplace(tgt, src, target.AlterSyntax, rules.DisableAllDrops))
		}
	}

	for _, id := range target.Identities() {
		if rules.Excludes(id) {
			continue
		}

		if _, ok := source.Get(id); ok {
			continue
		}

		if rules.DropDisabled(id.Kind) {
			slog.Debug("Drop disabled, skipping", "object", id.String())
			continue
		}

		tgt, _ := target.Get(id)
		cs.Ops = append(cs.Ops, NewDrop(tgt))
	}

	return cs, nil
}

// Compute runs Diff and orders the result with Order.
func Compute(source, target *Snapshot, rules RuleSet) (*ChangeSet, error) {
	cs, err := Diff(source, target, rules)
	if err != nil {
		return nil, err
	}

	cs.Ops = Order(cs.Ops)
	return cs, nil
}
