// The object store keeps every cache entry as one object in an S3 compatible bucket. Keys map to object names under
// an optional prefix; values are stored verbatim.

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStoreConfig holds the connection settings of an ObjectStore.
type ObjectStoreConfig struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string // Prepended to every key; lets several caches share a bucket.
}

// ObjectStore is a Store backed by an S3 compatible object storage.
type ObjectStore struct { // Implements Store.
	client *minio.Client
	bucket string
	prefix string
	filter *keyFilter // Keys that may exist under the prefix.
}

var _ Store[[]byte] = (*ObjectStore)(nil)

// NewObjectStore connects to the bucket (creating it if missing) and loads existing keys into the lookup filter.
func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("expected a non-empty object store endpoint")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("expected a non-empty object store bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
		slog.Info("Created object store bucket.", "bucket", cfg.Bucket)
	}

	store := &ObjectStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, filter: newKeyFilter()}
	loaded := 0
	for object := range client.ListObjects(ctx, cfg.Bucket, minio.ListObjectsOptions{Prefix: cfg.Prefix, Recursive: true}) {
		if object.Err != nil {
			return nil, fmt.Errorf("failed to list bucket %s: %w", cfg.Bucket, object.Err)
		}
		store.filter.add(strings.TrimPrefix(object.Key, cfg.Prefix))
		loaded++
	}
	slog.Info("Opened object store.", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket, "prefix", cfg.Prefix,
		"keys", loaded)
	return store, nil
}

func (o *ObjectStore) objectName(key string) string {
	return o.prefix + key
}

// isNoSuchKey reports whether `err` is the object storage's "not found" answer.
func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func (o *ObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	if !o.filter.mayContain(key) {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	object, err := o.client.GetObject(ctx, o.bucket, o.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	defer func() { _ = object.Close() }()

	// GetObject is lazy; missing objects only surface on the first read.
	value, err := io.ReadAll(object)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
		}
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return value, nil
}

func (o *ObjectStore) Set(ctx context.Context, key string, value []byte) error {
	o.filter.add(key)
	_, err := o.client.PutObject(ctx, o.bucket, o.objectName(key), bytes.NewReader(value), int64(len(value)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	return nil
}

func (o *ObjectStore) Remove(ctx context.Context, key string) error {
	if !o.filter.mayContain(key) {
		return nil
	}
	// Removing a missing object succeeds on S3 compatible storages.
	if err := o.client.RemoveObject(ctx, o.bucket, o.objectName(key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %s: %w", key, err)
	}
	return nil
}

func (o *ObjectStore) RemoveAll(ctx context.Context) error {
	listCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var listErr error
	objects := make(chan minio.ObjectInfo)
	go func() {
		defer close(objects)
		for object := range o.client.ListObjects(listCtx, o.bucket,
			minio.ListObjectsOptions{Prefix: o.prefix, Recursive: true}) {
			if object.Err != nil {
				listErr = object.Err
				return
			}
			select {
			case objects <- object:
			case <-listCtx.Done():
				return
			}
		}
	}()

	var errs []error
	for removeErr := range o.client.RemoveObjects(ctx, o.bucket, objects, minio.RemoveObjectsOptions{}) {
		errs = append(errs, fmt.Errorf("failed to remove object %s: %w", removeErr.ObjectName, removeErr.Err))
	}
	// RemoveObjects closes its result channel only after draining `objects`, so listErr is settled here.
	if listErr != nil {
		errs = append(errs, fmt.Errorf("failed to list bucket %s: %w", o.bucket, listErr))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	o.filter.reset()
	return nil
}

func (o *ObjectStore) Close() error {
	slog.Info("Closing object store.", "bucket", o.bucket)
	return nil
}
