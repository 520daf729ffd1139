package relay

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/philsphicas/iotrelay/internal/cloud"
	"github.com/philsphicas/iotrelay/internal/metrics"
	"github.com/philsphicas/iotrelay/internal/props"
	"github.com/philsphicas/iotrelay/internal/wire"
)

// process handles one control message end to end: parse the frame, collect
// the body from the sender's side channel, and hand it to send. The returned
// error describes why the message was dropped; delivery outcomes are
// reported asynchronously through the completion callback.
func (r *Relay) process(ctx context.Context, frame []byte) error {
	ctl, err := wire.ParseControl(frame)
	if err != nil {
		r.metrics.SendDropped(metrics.ReasonBadFrame, false)
		return fmt.Errorf("parse control message: %w", err)
	}

	if r.cfg.Verbose {
		r.notef(colorNone, "sender %d headers:\n%s", ctl.SenderID, ctl.Header)
	}

	body, err := r.fetchBody(ctl.SenderID)
	if err != nil {
		r.metrics.SendDropped(metrics.ReasonBodyUnavailable, false)
		return err
	}

	if r.cfg.Verbose {
		r.notef(colorNone, "sender %d body (%d bytes): %s", ctl.SenderID, len(body), preview(body))
	}

	return r.send(ctx, body, ctl.Header)
}

// fetchBody opens the sender's side channel and drains it into the relay's
// body buffer. The returned slice aliases the buffer and is only valid
// until the next control message is processed.
func (r *Relay) fetchBody(senderID uint32) ([]byte, error) {
	path := wire.BodyPath(r.cfg.SideChannelDir, senderID)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open side channel %s: %w", path, err)
	}
	defer f.Close()

	if r.cfg.BodyTimeout > 0 {
		// Deadlines apply to FIFOs; plain files ignore them.
		_ = f.SetReadDeadline(time.Now().Add(r.cfg.BodyTimeout))
	}

	n, err := wire.ReadBody(f, r.body)
	if err != nil {
		return nil, fmt.Errorf("read side channel %s: %w", path, err)
	}
	return r.body[:n], nil
}

// send turns a body and its property header into a cloud message and
// submits it. Submission is asynchronous: a nil return means the message is
// in flight and pendingSend.complete will settle the outcome.
func (r *Relay) send(ctx context.Context, body []byte, header string) error {
	if r.session == nil {
		r.metrics.SendDropped(metrics.ReasonNoSession, false)
		return ErrNoSession
	}

	msg, err := cloud.NewBytesMessage(body)
	if err != nil {
		r.metrics.SendDropped(metrics.ReasonBadBody, false)
		return fmt.Errorf("construct message: %w", err)
	}

	if header != "" {
		r.list.Decode(header)
		if err := props.Apply(msg, &r.list); err != nil {
			r.metrics.SendDropped(metrics.ReasonProperties, false)
			return err
		}
	}

	if msg.MessageID() == "" {
		if err := msg.SetMessageID(uuid.NewString()); err != nil {
			r.metrics.SendDropped(metrics.ReasonProperties, false)
			return fmt.Errorf("assign message id: %w", err)
		}
	}

	if !r.inflight.tryAcquire() {
		r.metrics.SendDropped(metrics.ReasonInflightFull, false)
		return fmt.Errorf("%w (max %d)", ErrBusy, r.cfg.MaxInflight)
	}

	if r.cfg.Verbose {
		r.notef(colorYellow, "sending message %s", msg.MessageID())
	}

	p := &pendingSend{relay: r, msg: msg}
	r.txTotal.Add(1)
	r.metrics.SendStarted(len(body))

	if err := r.session.Submit(ctx, msg, p.complete); err != nil {
		r.txErr.Add(1)
		r.metrics.SendDropped(metrics.ReasonSubmit, true)
		r.inflight.release()
		return fmt.Errorf("submit: %w", err)
	}
	return nil
}

// pendingSend pairs a submitted message with the relay that owns the
// counters. It lives from submission until the completion callback fires.
type pendingSend struct {
	relay *Relay
	msg   *cloud.Message
}

// complete is invoked by the transport, possibly on its own goroutine. It
// must not block and must not touch the relay's working buffers.
func (p *pendingSend) complete(err error) {
	r := p.relay
	id := p.msg.MessageID()
	if id == "" {
		id = "unknown"
	}

	if err != nil {
		r.txErr.Add(1)
		r.logger.Error("message delivery failed", "messageId", id, "error", err)
		r.notef(colorRed, "message %s failed: %v", id, err)
	} else {
		r.txOK.Add(1)
		r.logger.Debug("message delivered", "messageId", id)
		r.notef(colorGreen, "message %s delivered", id)
	}

	r.metrics.SendCompleted(err)
	r.inflight.release()
}

const (
	colorNone   = ""
	colorRed    = "\x1b[31m"
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorReset  = "\x1b[0m"
)

// notef prints a verbose-mode notice to stdout, optionally colored.
func (r *Relay) notef(color, format string, args ...any) {
	if !r.cfg.Verbose {
		return
	}
	if color == colorNone {
		fmt.Printf(format+"\n", args...)
		return
	}
	fmt.Printf(color+format+colorReset+"\n", args...)
}

// preview truncates a body for verbose echoing.
func preview(b []byte) string {
	const max = 256
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
