// Package compare provides generic helpers for writing Equal methods.
//
// The schema model uses these to compare snapshots and object definitions
// without repeating nil checks and length checks in every method:
//
//	func (s *Snapshot) Equal(other *Snapshot) bool {
//	    if eq, needsMoreChecks := compare.NilCheck(s, other); !needsMoreChecks {
//	        return eq
//	    }
//
//	    return compare.SlicesUnordered(s.Schemas, other.Schemas, strings.EqualFold) &&
//	        compare.MapsWithEqual(s.Objects, other.Objects,
//	            func(a, b *ObjectDefinition) bool { return a.Equal(b) })
//	}
package compare
