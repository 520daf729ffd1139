package relay

import (
	"github.com/philsphicas/iotrelay/internal/cloud"
	"github.com/philsphicas/iotrelay/internal/mailbox"
	"github.com/philsphicas/iotrelay/internal/metrics"
	"github.com/philsphicas/iotrelay/internal/props"
	"github.com/philsphicas/iotrelay/internal/wire"
)

// Route delivers one cloud message to the local mailbox named by its
// service property. It is installed as the session's receive handler and
// runs on the transport's goroutine, so it must not touch the relay's
// working buffers. Each rejection is terminal: the message is never
// retried locally.
func (r *Relay) Route(msg *cloud.Message) cloud.Disposition {
	service, ok := msg.Property(props.KeyService)
	if !ok || service == "" {
		r.logger.Warn("inbound message has no service property", "messageId", msg.MessageID())
		r.metrics.InboundRejected("", metrics.ReasonNoService)
		return cloud.Rejected
	}

	dest, err := mailbox.Open(r.cfg.MailboxDir, "/"+service)
	if err != nil {
		r.logger.Warn("inbound destination unavailable",
			"service", service, "messageId", msg.MessageID(), "error", err)
		r.metrics.InboundRejected(service, metrics.ReasonNoDestination)
		return cloud.Rejected
	}
	defer dest.Close()

	buf, err := wire.Serialize(msg, dest.MaxMsgSize())
	if err != nil {
		r.logger.Warn("inbound message does not fit destination",
			"service", service, "messageId", msg.MessageID(),
			"maxMsgSize", dest.MaxMsgSize(), "error", err)
		r.metrics.InboundRejected(service, metrics.ReasonTooLarge)
		return cloud.Rejected
	}

	if err := dest.Send(buf); err != nil {
		r.logger.Warn("inbound delivery failed",
			"service", service, "messageId", msg.MessageID(), "error", err)
		r.metrics.InboundRejected(service, metrics.ReasonSendFailed)
		return cloud.Rejected
	}

	r.metrics.InboundAccepted(service)
	r.logger.Debug("routed inbound message",
		"service", service, "messageId", msg.MessageID(), "bytes", len(buf))
	return cloud.Accepted
}
