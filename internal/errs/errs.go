// Package errs defines the pipeline error taxonomy. Callers classify
// failures with errors.Is and never match on message text.
package errs

import "errors"

var (
	// ErrValidation marks a malformed reference or payload. Rejected
	// immediately, never retried.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a geofence or task that no longer exists. Races
	// with deletion are expected, so intake records these as suppressed
	// rather than failing the request.
	ErrNotFound = errors.New("not found")

	// ErrTransient marks an unavailable dependency (store, push). Work is
	// retried with backoff or routed to the offline queue.
	ErrTransient = errors.New("transient dependency failure")

	// ErrCapacity means the registry cannot admit a new geofence without
	// evicting a higher-priority one. Surfaced as a soft failure.
	ErrCapacity = errors.New("geofence capacity exhausted")

	// ErrTerminalDelivery means push retries are exhausted. Logged and
	// exposed in stats, never retried further.
	ErrTerminalDelivery = errors.New("delivery retries exhausted")

	// ErrConflict marks an action against an already-terminal notification
	// so the client can reconcile its local state.
	ErrConflict = errors.New("conflict with terminal state")
)
