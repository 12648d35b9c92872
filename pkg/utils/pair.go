// Nothing to see here in this module. Couldn't find a better place for Pair.

package utils

// Pair couples a key with its value, e.g. when streaming store entries.
type Pair[K any, V any] struct {
	Key   K
	Value V
}
