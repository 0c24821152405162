// Package limit enforces the 25 MiB ceiling on inbound bodies and remote
// images, aborting streams as soon as the running byte count goes over.
package limit

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
)

// ReadAll drains r into memory, stopping the moment the running total exceeds
// limit. On overflow it returns (nil, true, nil) and the partial bytes are
// discarded; callers must not touch the buffer. Peak memory is O(limit) plus
// one chunk regardless of the true stream size.
func ReadAll(r io.Reader, limit int64) ([]byte, bool, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	var total int64
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			total += int64(n)
			if total > limit {
				return nil, true, nil
			}
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			return buf.Bytes(), false, nil
		}
		if err != nil {
			return nil, false, errors.Wrap(err, "read body")
		}
	}
}
