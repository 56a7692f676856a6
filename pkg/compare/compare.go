package compare

// NilCheck reports whether two pointers settle an equality check on their own.
//
// Returns (equal, needsMoreChecks):
//   - both nil: (true, false)
//   - exactly one nil: (false, false)
//   - both non-nil: (false, true), the caller compares the values
//
// Example:
//
//	func (d *ObjectDefinition) Equal(other *ObjectDefinition) bool {
//	    if eq, needsMoreChecks := compare.NilCheck(d, other); !needsMoreChecks {
//	        return eq
//	    }
//	    return d.Identity == other.Identity && d.Normalized() == other.Normalized()
//	}
func NilCheck[T any](a, b *T) (equal bool, needsMoreChecks bool) {
	if a == nil && b == nil {
		return true, false
	}
	if a == nil || b == nil {
		return false, false
	}
	return false, true
}

// PointersWithEqual compares two pointers using a custom equality function.
// Returns true if both are nil, or both are non-nil and equalFunc returns true.
//
// Example:
//
//	sameTime := compare.PointersWithEqual(a.LastModified, b.LastModified,
//	    func(x, y *time.Time) bool { return x.Equal(*y) })
func PointersWithEqual[T any](a, b *T, equalFunc func(*T, *T) bool) bool {
	if eq, needsMoreChecks := NilCheck(a, b); !needsMoreChecks {
		return eq
	}
	return equalFunc(a, b)
}

// SlicesUnordered compares two slices as multisets using equalFunc.
//
// Example:
//
//	sameSchemas := compare.SlicesUnordered(a.Schemas, b.Schemas,
//	    func(x, y string) bool { return strings.EqualFold(x, y) })
func SlicesUnordered[T any](a, b []T, equalFunc func(T, T) bool) bool {
	if len(a) != len(b) {
		return false
	}

	matched := make([]bool, len(b))
	for _, aElem := range a {
		found := false
		for j, bElem := range b {
			if !matched[j] && equalFunc(aElem, bElem) {
				matched[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// MapsWithEqual compares two maps using a custom equality function for values.
// Returns true if both maps have the same keys and every pair of values is equal
// according to equalFunc.
//
// Example:
//
//	func (s *Snapshot) Equal(other *Snapshot) bool {
//	    return compare.MapsWithEqual(s.Objects, other.Objects,
//	        func(a, b *ObjectDefinition) bool { return a.Equal(b) })
//	}
func MapsWithEqual[K comparable, V any](a, b map[K]V, equalFunc func(V, V) bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok || !equalFunc(v, bv) {
			return false
		}
	}
	return true
}
