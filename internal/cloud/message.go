// Package cloud defines the message model and session contract for the
// remote messaging endpoint, plus an Azure IoT Hub device implementation
// over MQTT.
//
// The relay engine only depends on the Session interface: submit a message
// for asynchronous delivery and receive a completion callback, or receive
// messages pushed from the cloud and report a disposition.
package cloud

import (
	"errors"
	"fmt"
	"strings"
)

// MaxBodySize is the largest message body the endpoint accepts (256 KiB,
// the IoT Hub device-to-cloud limit).
const MaxBodySize = 256 * 1024

// ContentKind describes what a message body holds.
type ContentKind int

const (
	// ContentNone means the message carries no body.
	ContentNone ContentKind = iota
	// ContentBytes is an opaque binary body.
	ContentBytes
	// ContentText is a UTF-8 text body.
	ContentText
)

var (
	// ErrEmptyBody is returned when constructing a message with no payload.
	ErrEmptyBody = errors.New("cloud: message body is empty")
	// ErrBodyTooLarge is returned when a payload exceeds MaxBodySize.
	ErrBodyTooLarge = errors.New("cloud: message body exceeds maximum size")
	// ErrBadProperty is returned by the property setters for keys or values
	// that cannot survive the key:value wire grammar.
	ErrBadProperty = errors.New("cloud: invalid property")
)

// Message is a single message crossing the cloud boundary: a body, an
// optional identity and correlation id, and free-form string properties.
// Once submitted to a Session (outbound) or delivered by one (inbound) a
// Message must not be modified, except for identity assignment before
// submission.
type Message struct {
	id    string
	cid   string
	kind  ContentKind
	body  []byte
	props map[string]string
}

// NewBytesMessage constructs a message from an opaque binary body.
// The body is copied.
func NewBytesMessage(body []byte) (*Message, error) {
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	if len(body) > MaxBodySize {
		return nil, ErrBodyTooLarge
	}
	b := make([]byte, len(body))
	copy(b, body)
	return &Message{kind: ContentBytes, body: b}, nil
}

// NewTextMessage constructs a message from a UTF-8 text body.
func NewTextMessage(text string) (*Message, error) {
	if text == "" {
		return nil, ErrEmptyBody
	}
	if len(text) > MaxBodySize {
		return nil, ErrBodyTooLarge
	}
	return &Message{kind: ContentText, body: []byte(text)}, nil
}

// NewEmptyMessage constructs a message with no body. Inbound messages that
// arrive without a payload take this form.
func NewEmptyMessage() *Message {
	return &Message{kind: ContentNone}
}

// MessageID returns the message identity, or "" if none is assigned.
func (m *Message) MessageID() string { return m.id }

// CorrelationID returns the correlation id, or "" if none is assigned.
func (m *Message) CorrelationID() string { return m.cid }

// Kind reports what the body holds.
func (m *Message) Kind() ContentKind { return m.kind }

// Body returns the raw body bytes. For ContentText the bytes are the UTF-8
// encoding of the text; for ContentNone the result is nil. Callers must not
// modify the returned slice.
func (m *Message) Body() []byte { return m.body }

// SetMessageID assigns the message identity.
func (m *Message) SetMessageID(id string) error {
	if strings.ContainsAny(id, "\n\x00") {
		return fmt.Errorf("%w: message id contains control characters", ErrBadProperty)
	}
	m.id = id
	return nil
}

// SetCorrelationID assigns the correlation id.
func (m *Message) SetCorrelationID(id string) error {
	if strings.ContainsAny(id, "\n\x00") {
		return fmt.Errorf("%w: correlation id contains control characters", ErrBadProperty)
	}
	m.cid = id
	return nil
}

// SetProperty inserts or updates a free-form property. Keys must be
// non-empty and must not contain ':' or newline; values must not contain
// newline. These are the constraints of the key:value wire grammar the
// properties eventually travel over.
func (m *Message) SetProperty(key, value string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrBadProperty)
	}
	if strings.ContainsAny(key, ":\n\x00") {
		return fmt.Errorf("%w: key %q", ErrBadProperty, key)
	}
	if strings.ContainsAny(value, "\n\x00") {
		return fmt.Errorf("%w: value for key %q", ErrBadProperty, key)
	}
	if m.props == nil {
		m.props = make(map[string]string)
	}
	m.props[key] = value
	return nil
}

// Property returns the value of a free-form property and whether it is set.
func (m *Message) Property(key string) (string, bool) {
	v, ok := m.props[key]
	return v, ok
}

// Properties returns the free-form property map. Iteration order is
// unspecified. Callers must treat the map as read-only.
func (m *Message) Properties() map[string]string { return m.props }

// newInbound builds a message from a raw cloud payload: an empty payload
// becomes ContentNone, anything else an owned ContentBytes body.
func newInbound(payload []byte) *Message {
	if len(payload) == 0 {
		return NewEmptyMessage()
	}
	b := make([]byte, len(payload))
	copy(b, payload)
	return &Message{kind: ContentBytes, body: b}
}
