// Package wire defines the local mailbox wire format.
//
// A control message received on the relay's inbound mailbox is laid out as:
//
//	preamble(4, "IOTC") | sender-id(4, uint32 LE) | header-text(NUL-terminated)
//
// The sender id names the side-channel resource the message body is read
// from; the header text is a property block in the key:value grammar of
// package props. Serialized inbound messages (cloud → local mailbox) use
// the flat layout produced by Serialize.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
)

// Preamble opens every control message.
const Preamble = "IOTC"

// headerOffset is where the NUL-terminated header text begins.
const headerOffset = 8

var (
	// ErrShortFrame means the control message is smaller than the fixed
	// preamble + sender-id prefix.
	ErrShortFrame = errors.New("wire: control message shorter than fixed prefix")
	// ErrBadPreamble means the first four bytes are not the preamble.
	ErrBadPreamble = errors.New("wire: control message preamble mismatch")
	// ErrInsufficientSpace means a serialized message would exceed the
	// destination's maximum message size.
	ErrInsufficientSpace = errors.New("wire: message does not fit destination size budget")
)

// Control is a parsed control message. The body travels separately, over
// the sender's side channel.
type Control struct {
	// SenderID identifies the producing process; it keys the side-channel
	// resource the body is read from.
	SenderID uint32
	// Header is the property block text, up to but excluding the first NUL.
	Header string
}

// ParseControl validates and decodes a raw control message.
func ParseControl(b []byte) (Control, error) {
	if len(b) < headerOffset {
		return Control{}, ErrShortFrame
	}
	if string(b[:len(Preamble)]) != Preamble {
		return Control{}, ErrBadPreamble
	}
	id := binary.LittleEndian.Uint32(b[4:headerOffset])
	h := b[headerOffset:]
	if i := bytes.IndexByte(h, 0); i >= 0 {
		h = h[:i]
	}
	return Control{SenderID: id, Header: string(h)}, nil
}

// BodyPath returns the side-channel path for a sender: a FIFO named by the
// sender's numeric id under dir.
func BodyPath(dir string, senderID uint32) string {
	return filepath.Join(dir, fmt.Sprintf("iotrelay_%d", senderID))
}
