package deploy

import (
	"crypto/sha256"
	"encoding/base64"

	"github.com/pkg/errors"
	"github.com/pseudomuto/leaf/pkg/schema"
	"github.com/pseudomuto/leaf/pkg/store"
)

// Hash returns the h1 hash of script: "h1:" followed by the base64 encoded
// SHA256 digest.
func Hash(script string) string {
	sum := sha256.Sum256([]byte(script))
	return "h1:" + base64.StdEncoding.EncodeToString(sum[:])
}

// newChanges builds the change records persisted alongside a change set.
func newChanges(cs *schema.ChangeSet) []*store.Change {
	changes := make([]*store.Change, len(cs.Ops))
	for i, op := range cs.Ops {
		script := op.Script()
		rollback := op.Inverse.Script()

		changes[i] = &store.Change{
			Position:       i,
			Op:             op.Type,
			Identity:       op.Identity,
			Script:         script,
			ScriptHash:     Hash(script),
			RollbackScript: rollback,
			RollbackHash:   Hash(rollback),
			Warning:        op.Warning,
			Status:         store.ChangePending,
		}
	}
	return changes
}

// verify checks that every change row still matches both its hash and the op
// stored in the deployment's change set.
func verify(cs *schema.ChangeSet, changes []*store.Change) error {
	if len(cs.Ops) != len(changes) {
		return errors.Wrapf(ErrHashMismatch, "change set has %d ops, %d changes recorded", len(cs.Ops), len(changes))
	}

	for i, c := range changes {
		if c.Position != i {
			return errors.Wrapf(ErrHashMismatch, "change %d recorded at position %d", i, c.Position)
		}

		op := cs.Ops[i]
		switch {
		case Hash(c.Script) != c.ScriptHash || c.Script != op.Script():
			return errors.Wrapf(ErrHashMismatch, "script of %s", c.Identity)
		case Hash(c.RollbackScript) != c.RollbackHash || c.RollbackScript != op.Inverse.Script():
			return errors.Wrapf(ErrHashMismatch, "rollback script of %s", c.Identity)
		}
	}

	return nil
}
