// Package props implements the key:value property mini-language used to
// tag relayed messages.
//
// The grammar is line-oriented: zero or more "key:value" lines, each
// terminated by a newline. The property block ends at the first empty line,
// at the first line with no colon, or at the end of input. There is no
// escaping; keys cannot contain ':' or newline, values cannot contain
// newline.
package props

// Reserved property keys. messageId and correlationId map to the message's
// identity fields rather than its generic property map; service names the
// local destination mailbox when routing inbound messages.
const (
	KeyMessageID     = "messageId"
	KeyCorrelationID = "correlationId"
	KeyService       = "service"
)

// Property is one decoded key/value pair.
type Property struct {
	Key   string
	Value string
}

// List is an ordered sequence of properties. It is intended to be reused
// across messages: Decode truncates to the new count each time, so stale
// entries from a previous, longer header can never leak through. Duplicate
// keys are kept in order; consumers decide their semantics.
//
// The zero value is an empty list ready for use. A List is not safe for
// concurrent use.
type List struct {
	items []Property
}

// Len returns the number of decoded properties.
func (l *List) Len() int { return len(l.items) }

// Items returns the decoded properties in order. The slice is valid until
// the next Decode or Reset.
func (l *List) Items() []Property { return l.items }

// Reset clears the list, retaining capacity.
func (l *List) Reset() { l.items = l.items[:0] }

// Decode scans header and replaces the list contents with the properties
// found. The scan has two states: collecting a key until ':', then
// collecting a value until newline or end of input.
//
// A line with no colon terminates the scan — this covers both the
// empty-line block terminator and malformed input, whose trailing fragment
// is dropped silently rather than reported. An embedded NUL also
// terminates, matching the wire frame's text convention.
//
// Decode returns the number of properties in the list. Key and value
// strings are independent of the header's backing storage.
func (l *List) Decode(header string) int {
	l.items = l.items[:0]

	var key string
	start := 0
	inValue := false

	// One iteration past the end acts as the implicit terminator.
	for i := 0; i <= len(header); i++ {
		var c byte
		if i < len(header) {
			c = header[i]
		}
		if !inValue {
			switch c {
			case ':':
				key = header[start:i]
				start = i + 1
				inValue = true
			case '\n', 0:
				return len(l.items)
			}
			continue
		}
		if c == '\n' || c == 0 {
			l.items = append(l.items, Property{Key: key, Value: header[start:i]})
			start = i + 1
			inValue = false
			if c == 0 {
				return len(l.items)
			}
		}
	}
	return len(l.items)
}
