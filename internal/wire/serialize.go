package wire

import (
	"github.com/philsphicas/iotrelay/internal/cloud"
	"github.com/philsphicas/iotrelay/internal/props"
)

// emptyBody is substituted when a cloud message carries no body, so local
// consumers always see a parseable payload.
var emptyBody = []byte("{}")

// Serialize flattens an inbound cloud message into the local mailbox wire
// layout, refusing to produce more than maxlen bytes:
//
//	messageId:<id>\n
//	correlationId:<id>\n
//	<key>:<value>\n ...
//	\n
//	<body bytes> NUL
//
// The two reserved lines are always emitted, with an empty value when the
// message has no identity or correlation id. User properties follow in map
// iteration order, except the service routing property, which is consumed
// by the router and stripped here. The body is copied verbatim for binary
// content, as UTF-8 for text, and replaced by "{}" when absent. A single
// NUL terminator makes the result C-string friendly for local consumers.
//
// Space is checked before every append; the first property that does not
// fit, or a body+separator+terminator that does not fit, aborts with
// ErrInsufficientSpace and no bytes produced.
func Serialize(msg *cloud.Message, maxlen int) ([]byte, error) {
	if maxlen <= 0 {
		return nil, ErrInsufficientSpace
	}
	buf := make([]byte, 0, maxlen)
	left := maxlen
	ok := false

	if buf, ok = appendProperty(buf, props.KeyMessageID, msg.MessageID(), &left); !ok {
		return nil, ErrInsufficientSpace
	}
	if buf, ok = appendProperty(buf, props.KeyCorrelationID, msg.CorrelationID(), &left); !ok {
		return nil, ErrInsufficientSpace
	}
	for k, v := range msg.Properties() {
		if k == props.KeyService {
			continue
		}
		if buf, ok = appendProperty(buf, k, v, &left); !ok {
			return nil, ErrInsufficientSpace
		}
	}

	body := msg.Body()
	if msg.Kind() == cloud.ContentNone {
		body = emptyBody
	}

	// Separator, body, and NUL terminator together need len(body)+2.
	if left <= len(body)+1 {
		return nil, ErrInsufficientSpace
	}
	buf = append(buf, '\n')
	buf = append(buf, body...)
	buf = append(buf, 0)
	return buf, nil
}

// appendProperty appends "key:value\n" if it fits in the remaining budget,
// reporting whether it did.
func appendProperty(buf []byte, key, value string, left *int) ([]byte, bool) {
	n := len(key) + len(value) + 2
	if *left <= n {
		return buf, false
	}
	buf = append(buf, key...)
	buf = append(buf, ':')
	buf = append(buf, value...)
	buf = append(buf, '\n')
	*left -= n
	return buf, true
}
