// Package webdav stores a user's whole task collection as one JSON document
// on a WebDAV server.
package webdav

import (
	"context"
	"fmt"
	"strings"
	"time"

	"davtodo/internal/models"
)

const (
	// DocumentName is the remote file holding the task collection.
	DocumentName = "tasks.json"

	// DefaultTimeout bounds every remote operation.
	DefaultTimeout = 30 * time.Second
)

// Client is the remote store adapter. It is built from one configuration
// snapshot and never reconfigured; build a new Client when settings change.
// The zero value is not configured and every method returns ErrNotConfigured.
type Client struct {
	transport Transport
	document  string
	timeout   time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithTransport replaces the gowebdav transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		c.transport = t
	}
}

// WithTimeout sets the per-operation timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithDocument stores the collection under a different file name.
func WithDocument(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.document = name
		}
	}
}

// New validates cfg and returns a configured client. It fails with
// ErrConfiguration, before any network access, when the server URL, username
// or password is empty.
func New(cfg models.SyncConfig, opts ...Option) (*Client, error) {
	var missing []string
	if strings.TrimSpace(cfg.ServerURL) == "" {
		missing = append(missing, "server URL")
	}
	if strings.TrimSpace(cfg.Username) == "" {
		missing = append(missing, "username")
	}
	if cfg.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing %s", ErrConfiguration, strings.Join(missing, ", "))
	}

	c := &Client{
		document: DocumentName,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewDAVTransport(strings.TrimSpace(cfg.ServerURL), strings.TrimSpace(cfg.Username), cfg.Password, c.timeout)
	}
	return c, nil
}

// SaveTasks overwrites the remote document with tasks.
func (c *Client) SaveTasks(ctx context.Context, tasks []models.Task) error {
	if c == nil || c.transport == nil {
		return ErrNotConfigured
	}
	data, err := Encode(tasks)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteWrite, err)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.transport.Put(ctx, c.document, data, true); err != nil {
		return fmt.Errorf("%w: %w", ErrRemoteWrite, err)
	}
	return nil
}

// LoadTasks fetches the remote collection. A missing document is a normal
// first-sync case and yields an empty collection.
func (c *Client) LoadTasks(ctx context.Context) ([]models.Task, error) {
	if c == nil || c.transport == nil {
		return nil, ErrNotConfigured
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	exists, err := c.transport.Exists(ctx, c.document)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteRead, err)
	}
	if !exists {
		return []models.Task{}, nil
	}

	data, err := c.transport.Get(ctx, c.document)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRemoteRead, err)
	}
	return Decode(data)
}

// TestConnection lists the store root and reports whether it answered.
// Transport failures are reported as false, not as an error.
func (c *Client) TestConnection(ctx context.Context) (bool, error) {
	if c == nil || c.transport == nil {
		return false, ErrNotConfigured
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.transport.List(ctx, "/"); err != nil {
		return false, nil
	}
	return true, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}
