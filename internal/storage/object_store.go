package storage

import (
	"context"
	"errors"
)

// ErrObjectNotFound is returned by ObjectStore.Get for a missing key.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the S3 surface the pipeline relies on.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string, metadata map[string]string) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	// List returns up to limit keys under prefix in lexical order, starting
	// after startAfter. An empty result means the listing is exhausted.
	List(ctx context.Context, bucket, prefix, startAfter string, limit int) ([]string, error)
	Ping(ctx context.Context, bucket string) error
}
