// Package storage keeps media bytes in an S3-compatible object store.
package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// ObjectStore is the backing-object contract used by media services.
//
// Get returns common.ErrorNotFound when the key is absent. Delete treats an
// absent key as success. Put wraps common.ErrUploadBody when the body itself
// could not be read. Every other failure, including timeouts, wraps
// common.ErrStorageUnavailable.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// nowFn is a seam for tests.
var nowFn = time.Now

// RandomKey returns a fresh object key partitioned by upload date.
func RandomKey(id uuid.UUID) string {
	d := nowFn().UTC()
	return fmt.Sprintf("media/%d/%02d/%02d/%v", d.Year(), d.Month(), d.Day(), id)
}
