// Package unordered implements swap-and-truncate removal for slices whose
// order carries no meaning.
//
// Removal is O(1): the element at i is overwritten by the last element and
// the slice shrinks by one. Positions are not stable across removals, so a
// forward scan that removes while iterating must re-examine index i after a
// removal instead of advancing (see RemoveWhere).
package unordered

// RemoveAt removes s[i] by moving the last element into position i and
// truncating. The vacated tail slot is zeroed so pointers in it can be
// collected. It panics if i is out of range, like a slice index would.
func RemoveAt[T any](s []T, i int) []T {
	last := len(s) - 1
	if i != last {
		s[i] = s[last]
	}
	var zero T
	s[last] = zero
	return s[:last]
}

// RemoveWhere makes a single pass over s and removes every element for which
// match returns true, calling onRemove (if non-nil) with each removed element
// before it is overwritten. It returns the shortened slice and the number of
// elements removed.
func RemoveWhere[T any](s []T, match func(T) bool, onRemove func(T)) ([]T, int) {
	removed := 0
	for i := 0; i < len(s); {
		if !match(s[i]) {
			i++
			continue
		}
		if onRemove != nil {
			onRemove(s[i])
		}
		s = RemoveAt(s, i)
		removed++
		// s[i] now holds the former tail element; examine it before moving on.
	}
	return s, removed
}

// IndexOf returns the position of the first element equal to v, or -1.
func IndexOf[T comparable](s []T, v T) int {
	for i := range s {
		if s[i] == v {
			return i
		}
	}
	return -1
}
