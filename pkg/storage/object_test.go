package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestObjectStore connects to the storage named by MINIO_ENDPOINT; tests are skipped when it's unset.
func newTestObjectStore(t *testing.T) *ObjectStore {
	t.Helper()
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" || testing.Short() {
		t.Skip("MINIO_ENDPOINT is not set; skipping object store test")
	}
	accessKey, secretKey := os.Getenv("MINIO_ACCESS_KEY"), os.Getenv("MINIO_SECRET_KEY")
	if accessKey == "" {
		accessKey, secretKey = "minioadmin", "minioadmin"
	}
	store, err := NewObjectStore(context.Background(), ObjectStoreConfig{
		Endpoint:  endpoint,
		Bucket:    "policache-test",
		AccessKey: accessKey,
		SecretKey: secretKey,
		Prefix:    fmt.Sprintf("%s-%d/", t.Name(), time.Now().UnixNano()),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.RemoveAll(context.Background())
		_ = store.Close()
	})
	return store
}

func TestNewObjectStore_ValidatesConfig(t *testing.T) {
	_, err := NewObjectStore(context.Background(), ObjectStoreConfig{Bucket: "b"})
	assert.Error(t, err)
	_, err = NewObjectStore(context.Background(), ObjectStoreConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestObjectStore_Integration(t *testing.T) {
	ctx := context.Background()
	store := newTestObjectStore(t)

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, store.Set(ctx, "a", []byte("1")))
	require.NoError(t, store.Set(ctx, "b", []byte("2")))
	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), got)

	require.NoError(t, store.Remove(ctx, "a"))
	_, err = store.Get(ctx, "a")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, store.RemoveAll(ctx))
	_, err = store.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
