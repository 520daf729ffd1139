// Package mailbox provides named local mailboxes with datagram semantics:
// create a mailbox to receive whole messages, open one by name to send to
// it, and query its maximum message size. Mailboxes are unix datagram
// sockets under a shared root directory, with the configured maximum
// message size recorded in a sidecar attribute file so that writers can
// discover a destination's budget before serializing into it.
package mailbox

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultMaxMsgSize mirrors the POSIX mqueue default message size.
const DefaultMaxMsgSize = 8192

// attrSuffix names the sidecar file carrying a mailbox's maximum message
// size attribute.
const attrSuffix = ".attr"

var (
	// ErrBadName means the mailbox name is not "/name".
	ErrBadName = errors.New("mailbox: name must be \"/\" followed by a single path segment")
	// ErrTooLarge means a message exceeds the mailbox's maximum message size.
	ErrTooLarge = errors.New("mailbox: message exceeds maximum message size")
	// ErrReadOnly / ErrWriteOnly guard direction misuse.
	ErrReadOnly  = errors.New("mailbox: created mailboxes are receive-only")
	ErrWriteOnly = errors.New("mailbox: opened mailboxes are send-only")
)

// Mailbox is one endpoint of a named local mailbox. Created mailboxes
// receive; opened mailboxes send.
type Mailbox struct {
	name   string
	path   string
	conn   *net.UnixConn
	maxMsg int
	owner  bool
}

// socketPath maps a mailbox name like "/iotrelay" to its socket path.
func socketPath(dir, name string) (string, error) {
	if len(name) < 2 || name[0] != '/' || strings.ContainsRune(name[1:], '/') {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return filepath.Join(dir, name[1:]+".sock"), nil
}

// Create makes (or replaces) the named mailbox for receiving, with the
// given maximum message size attribute (DefaultMaxMsgSize if <= 0).
func Create(dir, name string, maxMsgSize int) (*Mailbox, error) {
	path, err := socketPath(dir, name)
	if err != nil {
		return nil, err
	}
	if maxMsgSize <= 0 {
		maxMsgSize = DefaultMaxMsgSize
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mailbox: create %s: %w", name, err)
	}
	// Replace any stale socket left by an unclean shutdown.
	_ = os.Remove(path)

	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return nil, fmt.Errorf("mailbox: create %s: %w", name, err)
	}
	// Make sure the kernel will buffer at least one full message.
	_ = conn.SetReadBuffer(maxMsgSize)

	if err := os.WriteFile(path+attrSuffix, []byte(strconv.Itoa(maxMsgSize)), 0o644); err != nil {
		conn.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("mailbox: create %s: %w", name, err)
	}
	return &Mailbox{name: name, path: path, conn: conn, maxMsg: maxMsgSize, owner: true}, nil
}

// Open connects to an existing named mailbox for sending. The destination's
// maximum message size is read from its attribute; a missing attribute
// falls back to DefaultMaxMsgSize.
func Open(dir, name string) (*Mailbox, error) {
	path, err := socketPath(dir, name)
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: path, Net: "unixgram"})
	if err != nil {
		return nil, fmt.Errorf("mailbox: open %s: %w", name, err)
	}

	maxMsg := DefaultMaxMsgSize
	if b, err := os.ReadFile(path + attrSuffix); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(string(b))); err == nil && v > 0 {
			maxMsg = v
		}
	}
	_ = conn.SetWriteBuffer(maxMsg)
	return &Mailbox{name: name, path: path, conn: conn, maxMsg: maxMsg}, nil
}

// Name returns the mailbox name, e.g. "/iotrelay".
func (m *Mailbox) Name() string { return m.name }

// MaxMsgSize returns the mailbox's maximum message size attribute.
func (m *Mailbox) MaxMsgSize() int { return m.maxMsg }

// Receive blocks until a message arrives and copies it into buf, returning
// its length. buf should be at least MaxMsgSize bytes; longer messages are
// truncated by datagram semantics. Close unblocks a pending Receive.
func (m *Mailbox) Receive(buf []byte) (int, error) {
	if !m.owner {
		return 0, ErrWriteOnly
	}
	n, err := m.conn.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("mailbox: receive %s: %w", m.name, err)
	}
	return n, nil
}

// Send delivers one message to the mailbox.
func (m *Mailbox) Send(b []byte) error {
	if m.owner {
		return ErrReadOnly
	}
	if len(b) > m.maxMsg {
		return fmt.Errorf("%w: %d > %d", ErrTooLarge, len(b), m.maxMsg)
	}
	if _, err := m.conn.Write(b); err != nil {
		return fmt.Errorf("mailbox: send %s: %w", m.name, err)
	}
	return nil
}

// Close releases the endpoint. The mailbox itself stays in the filesystem;
// use Destroy to remove it.
func (m *Mailbox) Close() error {
	return m.conn.Close()
}

// Destroy closes the endpoint and removes the mailbox from the system.
// Only meaningful on the created (receive) side.
func (m *Mailbox) Destroy() error {
	err := m.conn.Close()
	if m.owner {
		_ = os.Remove(m.path + attrSuffix)
		if rmErr := os.Remove(m.path); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return err
}
