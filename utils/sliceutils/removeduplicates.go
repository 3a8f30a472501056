package sliceutils

// RemoveDuplicates returns the entries of in with any repeats removed.  The
// first occurrence of each entry is kept and the input order is preserved.
func RemoveDuplicates[T comparable](in []T) []T {
	if in == nil {
		return nil
	}

	seen := make(map[T]struct{}, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
