// internal/app/system/offline/registry.go
package offline

import (
	"context"
	"errors"
)

var (
	// ErrNotCacheable is returned when a non-GET request is written to a partition.
	ErrNotCacheable = errors.New("offline: only GET requests can be cached")

	// ErrPartitionDeleted is returned when writing through a handle whose
	// partition has since been deleted. Nothing is written.
	ErrPartitionDeleted = errors.New("offline: partition was deleted")
)

// Entry is one request/response pair for a bulk insert.
type Entry struct {
	Key      RequestKey
	Response Response
}

// Registry is the set of named cache partitions.
//
// Implementations must be safe for concurrent use; each individual
// operation is atomic from the caller's point of view.
type Registry interface {
	// Open returns the named partition, creating it if needed.
	Open(ctx context.Context, name string) (Partition, error)
	// Delete removes the partition and every entry in it.
	// It reports whether the partition existed.
	Delete(ctx context.Context, name string) (bool, error)
	// Keys lists partition names in ascending order.
	Keys(ctx context.Context) ([]string, error)
}

// Partition is a handle on one named cache.
type Partition interface {
	Name() string
	// Match returns the stored response for key. A missing entry is
	// reported with ok == false and a nil error.
	Match(ctx context.Context, key RequestKey) (resp Response, ok bool, err error)
	// Put stores one entry. After the partition is deleted it returns
	// ErrPartitionDeleted and writes nothing.
	Put(ctx context.Context, key RequestKey, resp Response) error
	// PutAll stores every entry or none of them.
	PutAll(ctx context.Context, entries []Entry) error
	Len(ctx context.Context) (int, error)
}

// CheckKey rejects keys that must never reach a partition. Registry
// implementations call it before every write.
func CheckKey(key RequestKey) error {
	if key.Method != "GET" {
		return ErrNotCacheable
	}
	return nil
}
