package props

import (
	"fmt"

	"github.com/philsphicas/iotrelay/internal/cloud"
)

// Apply copies the decoded properties onto an outbound cloud message.
// KeyMessageID and KeyCorrelationID set the message's identity fields;
// every other key goes to the generic property map, later occurrences
// overwriting earlier ones.
//
// The first setter failure stops processing and is returned; properties
// already applied stay applied.
func Apply(msg *cloud.Message, l *List) error {
	for _, p := range l.Items() {
		var err error
		switch p.Key {
		case KeyMessageID:
			err = msg.SetMessageID(p.Value)
		case KeyCorrelationID:
			err = msg.SetCorrelationID(p.Value)
		default:
			err = msg.SetProperty(p.Key, p.Value)
		}
		if err != nil {
			return fmt.Errorf("apply property %q: %w", p.Key, err)
		}
	}
	return nil
}
