package scan

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchGlob(t *testing.T) {
	keys := []string{"key1", "key2", "anotherkey", "user:42", "user/42", "https://example.com/a?b=1"}

	for _, testCase := range []struct {
		name     string
		glob     string
		expected []string
	}{
		{name: "match all", glob: "*",
			expected: []string{"key1", "key2", "anotherkey", "user:42", "user/42", "https://example.com/a?b=1"}},
		{name: "match with ?", glob: "key?", expected: []string{"key1", "key2"}},
		{name: "match with * at the end", glob: "key*", expected: []string{"key1", "key2"}},
		{name: "match with * at the beginning", glob: "*key", expected: []string{"anotherkey"}},
		{name: "match with multiple *", glob: "*key*", expected: []string{"key1", "key2", "anotherkey"}},
		{name: "match with prefix and colon", glob: "user:*", expected: []string{"user:42"}},
		{name: "match across slash", glob: "user/*", expected: []string{"user/42"}},
		{name: "prefix spans slash and colon", glob: "user*", expected: []string{"user:42", "user/42"}},
		{name: "? matches slash", glob: "user?42", expected: []string{"user:42", "user/42"}},
		{name: "url prefix", glob: "https://example.com/*", expected: []string{"https://example.com/a?b=1"}},
		{name: "character class", glob: "key[12]", expected: []string{"key1", "key2"}},
		{name: "exact match", glob: "key2", expected: []string{"key2"}},
		{name: "no match", glob: "nomatch", expected: nil},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			seq, err := MatchGlob(testCase.glob, slices.Values(keys))
			require.NoError(t, err)
			assert.Equal(t, testCase.expected, slices.Collect(seq))
		})
	}
}

func TestMatchGlob_InvalidPattern(t *testing.T) {
	_, err := MatchGlob("key[", slices.Values([]string{"key1"}))
	assert.Error(t, err)
}

func TestMatchGlob_EarlyStop(t *testing.T) {
	seq, err := MatchGlob("key*", slices.Values([]string{"key1", "key2", "key3"}))
	require.NoError(t, err)
	for key := range seq {
		assert.Equal(t, "key1", key)
		break
	}
}
