package webdav

import "errors"

// Errors returned by the remote store adapter. Callers check them with
// errors.Is; the underlying transport or parse failure stays in the chain.
var (
	// ErrConfiguration is returned by New when the server URL, username or
	// password is missing. No network call is attempted.
	ErrConfiguration = errors.New("webdav configuration is incomplete")

	// ErrNotConfigured is returned when a zero-value Client is used.
	ErrNotConfigured = errors.New("webdav client not configured")

	// ErrRemoteRead wraps transport and server failures while loading.
	ErrRemoteRead = errors.New("failed to load tasks")

	// ErrRemoteWrite wraps transport and server failures while saving.
	ErrRemoteWrite = errors.New("failed to save tasks")

	// ErrMalformedData is returned when the tasks document exists but is not
	// a valid JSON array of tasks.
	ErrMalformedData = errors.New("malformed tasks document")
)
