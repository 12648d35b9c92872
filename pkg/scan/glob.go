// Clients list cache keys by glob patterns (`KEYS user:*`); the following module implements glob matching.
// Keys are opaque, so wildcards match any character including `/` and `:`.

package scan

import (
	"fmt"
	"iter"

	"github.com/gobwas/glob"
)

// MatchGlob yields the `keys` that match the given glob `pattern`.
func MatchGlob(pattern string, keys iter.Seq[string]) (iter.Seq[string], error) {
	matcher, err := glob.Compile(pattern) // No separators.
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}
	return func(yield func(string) bool) {
		for key := range keys {
			if matcher.Match(key) && !yield(key) {
				return
			}
		}
	}, nil
}
