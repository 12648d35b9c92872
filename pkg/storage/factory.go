package storage

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
)

var (
	storeBackend = flag.String("store_backend", "memory",
		"Backing store of the cache; one of `memory`, `sqlite` or `object`.")
	sqlitePath      = flag.String("sqlite_path", "./data/policache.db", "Database file of the sqlite store.")
	objectEndpoint  = flag.String("object_endpoint", "localhost:9000", "Endpoint of the S3 compatible object store.")
	objectBucket    = flag.String("object_bucket", "policache", "Bucket holding cache entries.")
	objectAccessKey = flag.String("object_access_key", "", "Access key of the object store.")
	objectSecretKey = flag.String("object_secret_key", "", "Secret key of the object store.")
	objectUseSSL    = flag.Bool("object_use_ssl", false, "Whether to talk to the object store over TLS.")
	objectPrefix    = flag.String("object_prefix", "", "Object name prefix of every cache entry.")
)

// NewStoreFromFlags opens the store selected by --store_backend.
func NewStoreFromFlags(ctx context.Context) (Store[[]byte], error) {
	slog.Info("Opening store.", "backend", *storeBackend)
	switch *storeBackend {
	case "memory":
		return NewMemoryStore[[]byte](), nil
	case "sqlite":
		store, err := NewSQLiteStore(ctx, *sqlitePath)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "object":
		store, err := NewObjectStore(ctx, ObjectStoreConfig{
			Endpoint:  *objectEndpoint,
			Bucket:    *objectBucket,
			AccessKey: *objectAccessKey,
			SecretKey: *objectSecretKey,
			UseSSL:    *objectUseSSL,
			Prefix:    *objectPrefix,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown store backend: %q", *storeBackend)
	}
}
