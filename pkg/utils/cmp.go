package utils

import "strings"

// CompareFn defines a three-way comparison for keys of type T.
// It must return a negative value if x < y, 0 if x == y, and a positive value if x > y.
type CompareFn[T any] func(x, y T) int

// CompareKeys orders cache keys lexicographically.
var CompareKeys CompareFn[string] = strings.Compare
