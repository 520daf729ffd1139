package relay

import "errors"

var (
	// ErrNoSession means a send was attempted with no active cloud session.
	ErrNoSession = errors.New("relay: no active cloud session")

	// ErrBusy means the in-flight submission limit has been reached and the
	// message was dropped rather than queued.
	ErrBusy = errors.New("relay: in-flight submission limit reached")
)
