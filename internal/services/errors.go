package services

import "errors"

var (
	ErrAlreadyRunning = errors.New("service is already running")
	ErrNotRunning     = errors.New("service is not running")

	// ErrTransport means the request never produced an HTTP response.
	ErrTransport = errors.New("transport error")
	// ErrServerRejected means the endpoint answered with a non-success status.
	ErrServerRejected = errors.New("server rejected heartbeats")
	// ErrSyncFailed is returned by Flush when the batch was not delivered.
	ErrSyncFailed = errors.New("heartbeat sync failed")
)

// ErrCapabilityNotGranted stops sampling when the host revoked background execution.
var ErrCapabilityNotGranted = errors.New("background capability not granted")
