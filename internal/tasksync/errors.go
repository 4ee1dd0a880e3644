package tasksync

import "errors"

var (
	// ErrSyncInProgress is returned when a cycle is requested for a user whose
	// previous cycle has not finished. No new cycle is started.
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrSyncDisabled is returned when a cycle is requested while the user's
	// sync settings are incomplete. The status is left unchanged.
	ErrSyncDisabled = errors.New("sync is disabled")
)
