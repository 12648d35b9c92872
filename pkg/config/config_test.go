package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// testFlagSet registers a few flags of every supported type.
type testFlagSet struct {
	fs           *flag.FlagSet
	policy       *string
	capacity     *int
	bloomCap     *uint
	fpRate       *float64
	useSSL       *bool
	writeTimeout *time.Duration
}

func newTestFlagSet() *testFlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	return &testFlagSet{
		fs:           fs,
		policy:       fs.String("cache_policy", "lru", ""),
		capacity:     fs.Int("cache_capacity", 1024, ""),
		bloomCap:     fs.Uint("store_bloom_capacity", 100, ""),
		fpRate:       fs.Float64("store_bloom_fp_rate", 0.01, ""),
		useSSL:       fs.Bool("object_use_ssl", false, ""),
		writeTimeout: fs.Duration("redis_write_timeout", time.Second, ""),
	}
}

func TestBuildSchema(t *testing.T) {
	schema, err := buildSchema(newTestFlagSet().fs)
	require.NoError(t, err)
	assert.Equal(t, protoreflect.FullName("policache.config.Config"), schema.FullName())

	cache := schema.Fields().ByName("cache")
	require.NotNil(t, cache)
	require.Equal(t, protoreflect.MessageKind, cache.Kind())
	for _, testCase := range []struct {
		section, field string
		kind           protoreflect.Kind
	}{
		{section: "cache", field: "cache_policy", kind: protoreflect.StringKind},
		{section: "cache", field: "cache_capacity", kind: protoreflect.Int64Kind},
		{section: "store", field: "store_bloom_capacity", kind: protoreflect.Uint64Kind},
		{section: "store", field: "store_bloom_fp_rate", kind: protoreflect.DoubleKind},
		{section: "store", field: "object_use_ssl", kind: protoreflect.BoolKind},
		{section: "server", field: "redis_write_timeout", kind: protoreflect.StringKind},
	} {
		t.Run(testCase.field, func(t *testing.T) {
			fd := schema.Fields().ByName(protoreflect.Name(testCase.section)).Message().Fields().
				ByName(protoreflect.Name(testCase.field))
			require.NotNil(t, fd)
			assert.Equal(t, testCase.kind, fd.Kind())
			assert.True(t, fd.HasPresence())
		})
	}
	// Flags missing from the set have no field.
	assert.Nil(t, schema.Fields().ByName("store").Message().Fields().ByName("sqlite_path"))
}

func TestApply(t *testing.T) {
	flags := newTestFlagSet()
	err := Apply(flags.fs, []byte(`
		cache { cache_policy: "lfu" cache_capacity: 42 }
		store {
			store_bloom_capacity: 5000
			store_bloom_fp_rate: 0.001
			object_use_ssl: true
		}
		server { redis_write_timeout: "250ms" }
	`))
	require.NoError(t, err)
	assert.Equal(t, "lfu", *flags.policy)
	assert.Equal(t, 42, *flags.capacity)
	assert.Equal(t, uint(5000), *flags.bloomCap)
	assert.Equal(t, 0.001, *flags.fpRate)
	assert.True(t, *flags.useSSL)
	assert.Equal(t, 250*time.Millisecond, *flags.writeTimeout)
}

func TestApply_CommandLineWins(t *testing.T) {
	flags := newTestFlagSet()
	require.NoError(t, flags.fs.Parse([]string{"--cache_capacity=7"}))
	require.NoError(t, Apply(flags.fs, []byte(`cache { cache_policy: "fifo" cache_capacity: 42 }`)))
	assert.Equal(t, 7, *flags.capacity)
	assert.Equal(t, "fifo", *flags.policy)
}

func TestApply_Errors(t *testing.T) {
	for _, testCase := range []struct {
		name   string
		config string
	}{
		{name: "unknown_section", config: `database { size: 1 }`},
		{name: "unknown_field", config: `cache { cache_size: 1 }`},
		{name: "wrong_type", config: `cache { cache_capacity: "many" }`},
		{name: "invalid_duration", config: `server { redis_write_timeout: "soon" }`},
	} {
		t.Run(testCase.name, func(t *testing.T) {
			assert.Error(t, Apply(newTestFlagSet().fs, []byte(testCase.config)))
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Run("missing_file", func(t *testing.T) {
		flags := newTestFlagSet()
		assert.NoError(t, LoadFile(flags.fs, filepath.Join(t.TempDir(), "absent.txtpb")))
		assert.Equal(t, 1024, *flags.capacity)
	})
	t.Run("empty_path", func(t *testing.T) {
		assert.NoError(t, LoadFile(newTestFlagSet().fs, ""))
	})
	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.txtpb")
		require.NoError(t, os.WriteFile(path, []byte(`cache { cache_capacity: 9 }`), 0o600))
		flags := newTestFlagSet()
		require.NoError(t, LoadFile(flags.fs, path))
		assert.Equal(t, 9, *flags.capacity)
	})
}

func TestCollectUnregisteredFlags(t *testing.T) {
	flags := newTestFlagSet()
	assert.Empty(t, collectUnregisteredFlags(flags.fs))

	flags.fs.String("mystery_knob", "", "")
	flags.fs.Bool("print_version", false, "")
	errs := collectUnregisteredFlags(flags.fs)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "mystery_knob")
}

func TestSections_NoDuplicates(t *testing.T) {
	_, err := sectionFlags()
	assert.NoError(t, err)
}
