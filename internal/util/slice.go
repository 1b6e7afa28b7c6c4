package util

/**
 * Generic shared utilities
 */

// SliceMap returns fn applied to every element of s
func SliceMap[T, U any](s []T, fn func(T) U) []U {
	out := make([]U, 0, len(s))

	for _, v := range s {
		out = append(out, fn(v))
	}

	return out
}
