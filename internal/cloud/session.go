package cloud

import (
	"context"
	"errors"
)

// Disposition is the router's verdict on an inbound cloud message. A
// rejected message is left unconsumed from the transport's point of view;
// whether it is redelivered is the transport's policy.
type Disposition int

const (
	Rejected Disposition = iota
	Accepted
)

func (d Disposition) String() string {
	if d == Accepted {
		return "accepted"
	}
	return "rejected"
}

// CompletionFunc is invoked exactly once when an asynchronous submission
// settles. A nil error means the endpoint acknowledged the message. The
// callback may run on a transport goroutine and must not block.
type CompletionFunc func(err error)

// ReceiveHandler is invoked for every message pushed from the cloud. It may
// run on a transport goroutine.
type ReceiveHandler func(msg *Message) Disposition

// ErrNotConnected is returned by Submit when the session has no live
// connection to the endpoint.
var ErrNotConnected = errors.New("cloud: session not connected")

// Session is the narrow contract the relay holds against the cloud
// transport. Everything else about the transport (framing, keep-alives,
// reconnection) is its own business.
type Session interface {
	// Submit queues msg for asynchronous delivery. done is invoked once
	// the transport settles the submission. Ownership of msg transfers to
	// the session until done fires.
	Submit(ctx context.Context, msg *Message, done CompletionFunc) error

	// SetReceiveHandler installs the handler for cloud-pushed messages.
	// Must be called before messages are expected; replacing a handler
	// mid-stream is not supported.
	SetReceiveHandler(h ReceiveHandler) error

	// Close tears down the connection. In-flight submissions are abandoned.
	Close() error
}
