// Package relay implements the bidirectional routing engine between local
// process mailboxes and the cloud session: the outbound pipeline (control
// message → side-channel body → property decode → asynchronous submission)
// and the inbound router (cloud message → service mailbox).
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/philsphicas/iotrelay/internal/cloud"
	"github.com/philsphicas/iotrelay/internal/mailbox"
	"github.com/philsphicas/iotrelay/internal/metrics"
	"github.com/philsphicas/iotrelay/internal/props"
)

const (
	DefaultMailboxDir     = "/tmp/iotrelay"
	DefaultMailboxName    = "/iotrelay"
	DefaultSideChannelDir = "/tmp"
	DefaultBodyTimeout    = 30 * time.Second
)

// Config holds relay configuration.
type Config struct {
	// MailboxDir is the root directory for local mailboxes.
	MailboxDir string
	// MailboxName is the relay's inbound control mailbox.
	MailboxName string
	// ControlMsgSize is the inbound mailbox's maximum control message size.
	// Zero selects the mailbox default.
	ControlMsgSize int
	// SideChannelDir is where sender body FIFOs live.
	SideChannelDir string
	// BodyTimeout bounds each side-channel body read so a stalled sender
	// cannot wedge the loop. Zero disables the bound.
	BodyTimeout time.Duration
	// MaxInflight caps concurrent outstanding submissions (0 = unlimited).
	MaxInflight int
	// Verbose echoes message identities, headers, and body previews to
	// stdout with color-coded delivery notices.
	Verbose bool

	Logger  *slog.Logger
	Metrics *metrics.Metrics // optional; nil disables metrics
}

// Relay binds the local mailbox, the cloud session, the reusable working
// buffers, and the delivery counters. The working buffers (property list,
// body buffer, control buffer) belong exclusively to the single-threaded
// Run loop; the completion callback and the inbound router only touch the
// counters and metrics.
type Relay struct {
	cfg      Config
	mbox     *mailbox.Mailbox
	session  cloud.Session
	list     props.List
	body     []byte
	ctl      []byte
	inflight *inflightGate
	logger   *slog.Logger
	metrics  *metrics.Metrics

	txTotal atomic.Uint64
	txOK    atomic.Uint64
	txErr   atomic.Uint64
}

// Stats is a snapshot of the outbound delivery counters.
type Stats struct {
	Attempted uint64
	Succeeded uint64
	Failed    uint64
}

// New creates the relay's inbound mailbox and wires the inbound router to
// the session. Mailbox creation failure is fatal: without it the relay has
// no reason to exist.
func New(cfg Config, session cloud.Session) (*Relay, error) {
	if cfg.MailboxDir == "" {
		cfg.MailboxDir = DefaultMailboxDir
	}
	if cfg.MailboxName == "" {
		cfg.MailboxName = DefaultMailboxName
	}
	if cfg.SideChannelDir == "" {
		cfg.SideChannelDir = DefaultSideChannelDir
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mbox, err := mailbox.Create(cfg.MailboxDir, cfg.MailboxName, cfg.ControlMsgSize)
	if err != nil {
		return nil, fmt.Errorf("create control mailbox: %w", err)
	}

	r := &Relay{
		cfg:      cfg,
		mbox:     mbox,
		session:  session,
		body:     make([]byte, cloud.MaxBodySize),
		ctl:      make([]byte, mbox.MaxMsgSize()),
		inflight: newInflightGate(cfg.MaxInflight),
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}

	if session != nil {
		if err := session.SetReceiveHandler(r.Route); err != nil {
			_ = mbox.Destroy()
			return nil, fmt.Errorf("install receive handler: %w", err)
		}
	}
	return r, nil
}

// Run is the relay's main loop: block on the control mailbox, process each
// message synchronously to completion, loop. Per-message failures are
// logged and the loop continues. Run returns ctx.Err() after the mailbox is
// unblocked by cancellation.
//
// A Receive failure on the mailbox itself is fatal to the loop: a unix
// datagram socket has no transient read errors worth retrying, so a failed
// Receive means the mailbox is gone and the relay cannot make progress.
func (r *Relay) Run(ctx context.Context) error {
	// Closing the mailbox is what unblocks a pending Receive.
	stop := context.AfterFunc(ctx, func() { _ = r.mbox.Close() })
	defer stop()

	r.logger.Info("relay running",
		"mailbox", r.mbox.Name(),
		"controlMsgSize", r.mbox.MaxMsgSize(),
		"sideChannelDir", r.cfg.SideChannelDir)

	for {
		n, err := r.mbox.Receive(r.ctl)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("control mailbox receive: %w", err)
		}
		if err := r.process(ctx, r.ctl[:n]); err != nil {
			r.logger.Error("message dropped", "error", err)
		}
	}
}

// Stats returns a snapshot of the outbound counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Attempted: r.txTotal.Load(),
		Succeeded: r.txOK.Load(),
		Failed:    r.txErr.Load(),
	}
}

// Close destroys the control mailbox. The cloud session is owned by the
// caller and closed separately; in-flight submissions are abandoned.
func (r *Relay) Close() error {
	return r.mbox.Destroy()
}

// inflightGate caps concurrent outstanding submissions. A nil channel
// (from newInflightGate(0)) imposes no limit.
type inflightGate struct {
	ch chan struct{}
}

func newInflightGate(max int) *inflightGate {
	if max <= 0 {
		return &inflightGate{}
	}
	return &inflightGate{ch: make(chan struct{}, max)}
}

func (g *inflightGate) tryAcquire() bool {
	if g.ch == nil {
		return true
	}
	select {
	case g.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (g *inflightGate) release() {
	if g.ch == nil {
		return
	}
	<-g.ch
}
