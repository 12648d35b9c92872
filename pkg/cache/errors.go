package cache

import "errors"

var (
	// ErrStoreWrite is returned through Pending when the store rejects a Set.
	ErrStoreWrite = errors.New("store write failed")
	// ErrStoreRemove is returned through Pending when the store rejects a Remove or RemoveAll.
	ErrStoreRemove = errors.New("store remove failed")
	// ErrStoreRead wraps read-through failures other than a missing key.
	ErrStoreRead = errors.New("store read failed")
)
