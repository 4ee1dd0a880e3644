package webdav

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/studio-b12/gowebdav"
)

// Transport is the set of WebDAV primitives the adapter needs. Exists must
// report a missing path as (false, nil) and every other failure as an error.
type Transport interface {
	Exists(ctx context.Context, path string) (bool, error)
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte, overwrite bool) error
	List(ctx context.Context, path string) ([]string, error)
}

// DAVTransport talks to a WebDAV server through gowebdav.
type DAVTransport struct {
	client *gowebdav.Client
}

// NewDAVTransport creates a transport authenticated with basic credentials.
// A non-positive timeout keeps the HTTP client default.
func NewDAVTransport(serverURL, username, password string, timeout time.Duration) *DAVTransport {
	c := gowebdav.NewClient(serverURL, username, password)
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return &DAVTransport{client: c}
}

// SetRoundTripper replaces the HTTP transport, mostly for tests and proxies.
func (t *DAVTransport) SetRoundTripper(rt http.RoundTripper) {
	t.client.SetTransport(rt)
}

// Exists implements Transport.
func (t *DAVTransport) Exists(ctx context.Context, path string) (bool, error) {
	var found bool
	err := call(ctx, func() error {
		_, err := t.client.Stat(path)
		if err == nil {
			found = true
			return nil
		}
		if gowebdav.IsErrNotFound(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return found, nil
}

// Get implements Transport.
func (t *DAVTransport) Get(ctx context.Context, path string) ([]byte, error) {
	var data []byte
	err := call(ctx, func() error {
		var err error
		data, err = t.client.Read(path)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Put implements Transport. gowebdav always overwrites, so a non-overwriting
// put checks for the file first.
func (t *DAVTransport) Put(ctx context.Context, path string, data []byte, overwrite bool) error {
	if !overwrite {
		exists, err := t.Exists(ctx, path)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("write %s: %w", path, errAlreadyExists)
		}
	}
	err := call(ctx, func() error {
		return t.client.Write(path, data, 0o644)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// List implements Transport and returns the entry names under path.
func (t *DAVTransport) List(ctx context.Context, path string) ([]string, error) {
	var names []string
	err := call(ctx, func() error {
		infos, err := t.client.ReadDir(path)
		if err != nil {
			return err
		}
		names = make([]string, 0, len(infos))
		for _, info := range infos {
			names = append(names, info.Name())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	return names, nil
}

var errAlreadyExists = errors.New("file already exists")

// call runs fn and gives up when ctx ends first. gowebdav has no context
// support; the abandoned request is still bounded by the client timeout.
func call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
