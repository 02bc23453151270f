package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrObjectNotFound reports a key with no object behind it, e.g. a
// manifest whose presigned upload never happened.
var ErrObjectNotFound = errors.New("object not found")

// Store is the read-and-presign surface the vault needs for manifest
// objects. Uploads go through presigned URLs, never through the
// service itself.
type Store interface {
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, ObjectInfo, error)
	PresignPut(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
	PresignGet(ctx context.Context, bucket, key string, ttl time.Duration) (string, error)
}

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}
