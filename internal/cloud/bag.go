package cloud

import (
	"fmt"
	"net/url"
	"strings"
)

// IoT Hub carries message metadata in a URL-encoded "property bag" appended
// to the MQTT topic. System properties use reserved "$."-prefixed keys;
// everything else is an application property.
const (
	sysMessageID     = "$.mid"
	sysCorrelationID = "$.cid"

	deviceboundMarker = "/messages/devicebound/"
)

// encodePropertyBag renders the identity, correlation id, and application
// properties of msg as a topic property bag segment.
func encodePropertyBag(m *Message) string {
	v := url.Values{}
	if m.id != "" {
		v.Set(sysMessageID, m.id)
	}
	if m.cid != "" {
		v.Set(sysCorrelationID, m.cid)
	}
	for k, val := range m.props {
		v.Set(k, val)
	}
	return v.Encode()
}

// decodePropertyBag applies a topic property bag segment to msg. The
// "$.mid" and "$.cid" system properties become the message identity and
// correlation id; other system ("$."-prefixed) and hub-internal ("iothub-")
// keys are dropped; the rest become application properties.
func decodePropertyBag(bag string, msg *Message) error {
	if bag == "" {
		return nil
	}
	vals, err := url.ParseQuery(bag)
	if err != nil {
		return fmt.Errorf("cloud: malformed property bag: %w", err)
	}
	for k, vs := range vals {
		var v string
		if len(vs) > 0 {
			v = vs[len(vs)-1]
		}
		switch {
		case k == sysMessageID:
			err = msg.SetMessageID(v)
		case k == sysCorrelationID:
			err = msg.SetCorrelationID(v)
		case strings.HasPrefix(k, "$.") || strings.HasPrefix(k, "iothub-"):
			continue
		default:
			err = msg.SetProperty(k, v)
		}
		if err != nil {
			return fmt.Errorf("cloud: property bag key %q: %w", k, err)
		}
	}
	return nil
}

// topicBag extracts the property bag segment from a cloud-to-device topic,
// or "" if the topic carries none.
func topicBag(topic string) string {
	i := strings.Index(topic, deviceboundMarker)
	if i == -1 {
		return ""
	}
	return topic[i+len(deviceboundMarker):]
}
