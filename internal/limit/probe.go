package limit

import (
	"context"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// ErrTooLarge reports that a body or remote resource exceeds the size ceiling.
var ErrTooLarge = errors.New("resource exceeds size limit")

// Prober checks whether a remote resource fits under the ceiling before the
// runner is ever invoked. It prefers a HEAD probe and only falls back to a
// counting GET when the remote declares no length or refuses HEAD.
type Prober struct {
	client *http.Client
	max    int64
}

func NewProber(client *http.Client, max int64) *Prober {
	if client == nil {
		client = http.DefaultClient
	}
	return &Prober{client: client, max: max}
}

// CheckSize returns ErrTooLarge when url is known or observed to exceed the
// ceiling, nil when it fits (or exhausted without excess), and any network
// failure as a plain error so the caller can record a clean job error.
func (p *Prober) CheckSize(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return errors.Wrap(err, "build probe request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "probe remote image")
	}
	resp.Body.Close()

	if resp.StatusCode < 400 && resp.ContentLength >= 0 {
		if resp.ContentLength > p.max {
			return ErrTooLarge
		}
		return nil
	}
	// No declared length, or the remote refused HEAD.
	return p.countStream(ctx, url)
}

func (p *Prober) countStream(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.Wrap(err, "build fetch request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "fetch remote image")
	}
	defer resp.Body.Close()

	if resp.ContentLength > p.max {
		return ErrTooLarge
	}
	chunk := make([]byte, 32*1024)
	var total int64
	for {
		n, err := resp.Body.Read(chunk)
		total += int64(n)
		if total > p.max {
			// Closing the body (deferred) aborts the transfer early.
			return ErrTooLarge
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read remote image")
		}
	}
}
