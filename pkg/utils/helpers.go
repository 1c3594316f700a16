package utils

import (
	"cmp"
	"os"
	"slices"
	"strconv"
)

// DefaultSemaphoreLimit bounds concurrent remote calls.
const DefaultSemaphoreLimit = 20

// GetSemaphoreLimit returns the semaphore limit from environment variable or default
func GetSemaphoreLimit() int {
	val := os.Getenv("SEMAPHORE_LIMIT")
	if val == "" {
		return DefaultSemaphoreLimit
	}
	limit, err := strconv.Atoi(val)
	if err != nil || limit <= 0 {
		return DefaultSemaphoreLimit
	}
	return limit
}

// ChunkSlice splits s into consecutive chunks of at most size elements.
func ChunkSlice[T any](s []T, size int) [][]T {
	if size <= 0 {
		size = 1
	}
	var out [][]T
	for len(s) > 0 {
		n := min(size, len(s))
		out = append(out, s[:n:n])
		s = s[n:]
	}
	return out
}

// SortedUnique returns the distinct values of s in ascending order.
func SortedUnique[T cmp.Ordered](s []T) []T {
	out := slices.Clone(s)
	slices.Sort(out)
	return slices.Compact(out)
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
