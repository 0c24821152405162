// Package artifact reads finished ZIP archives out of object storage. The
// runner owns the objects; this service only streams them back to clients.
package artifact

import (
	"context"
	"io"
)

// Store fetches an archive by key. A missing object is a normal outcome and
// is reported as domain.ErrNotFound, never as a transport failure.
type Store interface {
	Get(ctx context.Context, key string) (io.ReadCloser, error)
}
