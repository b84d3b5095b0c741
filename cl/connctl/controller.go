/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package connctl

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/dtnme-go/bpcore/bplog"
	"github.com/dtnme-go/bpcore/bundle"
	"github.com/dtnme-go/bpcore/cl"
)

// CommandKind enumerates the controller's bounded command queue
// messages, per spec.md §4.7.
type CommandKind int

const (
	CmdBundlesQueued CommandKind = iota
	CmdCancelBundle
	CmdBreakContact
)

// Command is one entry on a Controller's command queue.
type Command struct {
	Kind   CommandKind
	Bundle *bundle.Bundle
	Reason cl.BreakReason
}

// InFlightBundle tracks an outbound bundle's transmit/ack progress, per
// spec.md §3.
type InFlightBundle struct {
	Bundle             *bundle.Bundle
	TotalLength        int64
	SentData           SparseBitmap
	AckData            SparseBitmap
	SendComplete       bool
	TransmitEventPosted bool
}

// IncomingBundle tracks an inbound bundle's partial-reception state.
type IncomingBundle struct {
	Bundle               *bundle.Bundle
	TotalLength          int64
	RcvdData             SparseBitmap
	AckData              SparseBitmap
	AckedLength          int64
	BundleComplete       bool
	BundleAccepted       bool
	PayloadBytesReserved int64
}

// Transport is the minimal socket-like surface the controller drives;
// concrete CL engines (tcpclv3, tcpclv4, stcp, mtcp) supply an
// implementation wrapping a net.Conn plus their own framing.
type Transport interface {
	// SendPendingData flushes as much of any in-progress segment as
	// possible without blocking, reporting whether it made forward
	// progress (so the controller loops again before polling, per
	// spec.md §4.7 step 3).
	SendPendingData() (progressed bool, err error)

	// ProcessReadable is invoked when the transport has bytes available;
	// implementations read into their recv buffer and advance the block
	// framework / segment parser.
	ProcessReadable() error

	// Close tears down the underlying connection.
	Close() error
}

// Controller is the shared connection lifecycle controller of spec.md
// §4.7: one per open contact, running its own goroutine in place of the
// original poll-loop thread (Go's scheduler multiplexes goroutines onto
// OS threads, so a goroutine-per-contact is the idiomatic equivalent of
// "one worker thread per open contact").
type Controller struct {
	Link      *cl.Link
	Store     *bundle.Store
	Events    chan<- cl.Event
	Log       *bplog.Logger
	Transport Transport

	DataTimeout       time.Duration
	KeepaliveInterval time.Duration
	ReliableLink      bool
	ReactiveFragOK    bool

	// BreakOnKeepaliveFault gates checkDeadlines' idle-timeout contact
	// break on the link being configured for it (spec.md §4.8's
	// break_contact_on_keepalive_fault): when false, data silence past
	// DataTimeout is logged but does not tear down the contact.
	BreakOnKeepaliveFault bool

	// SendLimiter paces outbound segment writes when set, bounding a
	// link to its configured send_rate_limit (segments/second). nil
	// leaves sends unpaced.
	SendLimiter *rate.Limiter

	commands chan Command

	mtx             sync.Mutex
	inflight        []*InFlightBundle
	incoming        []*IncomingBundle
	delayReadsUntil time.Time

	contactUp     atomic.Bool
	contactBroken atomic.Bool

	lastDataSent time.Time
	lastDataRcvd time.Time
	lastKeepalive time.Time
}

// NewController constructs a controller with a bounded command queue.
func NewController(link *cl.Link, store *bundle.Store, events chan<- cl.Event, log *bplog.Logger, t Transport) *Controller {
	if log == nil {
		log = bplog.NewDiscard()
	}
	return &Controller{
		Link:                  link,
		Store:                 store,
		Events:                events,
		Log:                   log,
		Transport:             t,
		DataTimeout:           30 * time.Second,
		KeepaliveInterval:     10 * time.Second,
		BreakOnKeepaliveFault: true,
		commands:              make(chan Command, 64),
	}
}

// PostCommand enqueues a command; it blocks if the queue is full, which
// is an intentional backstop against a runaway producer rather than a
// design the daemon is expected to hit under normal load.
func (c *Controller) PostCommand(cmd Command) {
	c.commands <- cmd
}

// PollTimeout is min(data_timeout, keepalive_interval), per spec.md §5.
// The "×1000" there converts seconds to milliseconds for a literal
// poll(2) call; Go's time.Timer already operates in nanoseconds so this
// core expresses the same minimum directly as a time.Duration.
func (c *Controller) PollTimeout() time.Duration {
	if c.KeepaliveInterval > 0 && c.KeepaliveInterval < c.DataTimeout {
		return c.KeepaliveInterval
	}
	return c.DataTimeout
}

// MarkContactUp latches contact-up exactly once and posts ContactUp.
func (c *Controller) MarkContactUp() {
	if c.contactUp.CompareAndSwap(false, true) {
		now := time.Now()
		c.lastDataSent, c.lastDataRcvd, c.lastKeepalive = now, now, now
		c.postEvent(cl.Event{Kind: cl.EventContactUp, Link: c.Link.Name})
	}
}

// BreakContact latches contact-broken exactly once, idempotently, and
// runs the §4.7 inflight-cleanup pass before posting ContactBroken. A
// second call with any reason is a no-op, matching spec.md §8's
// "contact break is idempotent" law.
func (c *Controller) BreakContact(reason cl.BreakReason) {
	if !c.contactBroken.CompareAndSwap(false, true) {
		return
	}
	c.Transport.Close()
	c.drainInflightOnBreak()
	c.postEvent(cl.Event{Kind: cl.EventContactBroken, Link: c.Link.Name, Reason: reason})
}

// drainInflightOnBreak implements spec.md §4.7's contact-broken salvage
// rule for every still-open InFlightBundle.
func (c *Controller) drainInflightOnBreak() {
	c.mtx.Lock()
	pending := c.inflight
	c.inflight = nil
	c.mtx.Unlock()

	for _, ifb := range pending {
		switch {
		case ifb.SentData.Empty():
			c.Link.Requeue(ifb.Bundle)
		case ifb.AckData.Empty() && c.ReliableLink && !c.ReactiveFragOK:
			c.Link.Requeue(ifb.Bundle)
		default:
			if !ifb.TransmitEventPosted {
				ifb.TransmitEventPosted = true
				c.Link.CompleteInflight(ifb.Bundle)
				c.postEvent(cl.Event{
					Kind:       cl.EventBundleTransmitted,
					Link:       c.Link.Name,
					Bundle:     ifb.Bundle,
					SentBytes:  ifb.SentData.NumContiguous(),
					AckedBytes: ifb.AckData.LastEnd(),
				})
			}
		}
	}

	// Symmetric handling for a partially-received bundle at the rear of
	// incoming, per spec.md §4.7's reactive-fragmentation reception rule.
	c.mtx.Lock()
	var rear *IncomingBundle
	if n := len(c.incoming); n > 0 {
		rear = c.incoming[n-1]
	}
	c.mtx.Unlock()
	if rear != nil && !rear.RcvdData.Empty() && rear.TotalLength == 0 && c.ReactiveFragOK {
		c.postEvent(cl.Event{
			Kind:    cl.EventBundleReceived,
			Link:    c.Link.Name,
			Bundle:  rear.Bundle,
			RcvdLen: rear.RcvdData.NumContiguous(),
		})
	}
}

func (c *Controller) postEvent(e cl.Event) {
	select {
	case c.Events <- e:
	default:
		c.Log.Warnf("connctl[%s]: event channel full, dropping %v", c.Link.Name, e.Kind)
	}
}

// AddInflight registers a newly-dequeued bundle as inflight.
func (c *Controller) AddInflight(ifb *InFlightBundle) {
	c.mtx.Lock()
	c.inflight = append(c.inflight, ifb)
	c.mtx.Unlock()
}

// CompleteInflight removes ifb once fully acked/transmitted.
func (c *Controller) CompleteInflight(ifb *InFlightBundle) {
	c.mtx.Lock()
	for i, x := range c.inflight {
		if x == ifb {
			c.inflight = append(c.inflight[:i], c.inflight[i+1:]...)
			break
		}
	}
	c.mtx.Unlock()
	c.Link.CompleteInflight(ifb.Bundle)
}

// AddIncoming registers a newly-started inbound bundle.
func (c *Controller) AddIncoming(ib *IncomingBundle) {
	c.mtx.Lock()
	c.incoming = append(c.incoming, ib)
	c.mtx.Unlock()
}

// CompleteIncoming removes ib once fully received and handed off.
func (c *Controller) CompleteIncoming(ib *IncomingBundle) {
	c.mtx.Lock()
	for i, x := range c.incoming {
		if x == ib {
			c.incoming = append(c.incoming[:i], c.incoming[i+1:]...)
			break
		}
	}
	c.mtx.Unlock()
}

// TryReserve attempts to reserve n bytes of payload storage. On failure
// it latches delay-reads for 2 seconds, per spec.md §5.
func (c *Controller) TryReserve(n int64) bool {
	if c.Store.TryReservePayloadSpace(n) {
		return true
	}
	c.mtx.Lock()
	c.delayReadsUntil = time.Now().Add(2 * time.Second)
	c.mtx.Unlock()
	return false
}

// DelayingReads reports whether the controller is presently latched off
// POLLIN handling pending a retry.
func (c *Controller) DelayingReads() bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return time.Now().Before(c.delayReadsUntil)
}

// trySend calls Transport.SendPendingData, first checking SendLimiter if
// one is configured; a denied send reports no progress without touching
// the transport, so the caller's poll loop retries on its usual cadence.
func (c *Controller) trySend() (bool, error) {
	if c.SendLimiter != nil && !c.SendLimiter.Allow() {
		return false, nil
	}
	return c.Transport.SendPendingData()
}

// Run drives the per-contact goroutine loop: drain one command, check
// shutdown, flush pending sends, wait for I/O or timeout, handle
// keepalive/idle deadlines. It returns once contact-broken is latched
// and the transport observes shutdown.
func (c *Controller) Run(readable <-chan struct{}, writable <-chan struct{}) {
	for {
		select {
		case cmd := <-c.commands:
			c.handleCommand(cmd)
			if c.contactBroken.Load() {
				return
			}
		default:
		}

		if progressed, err := c.trySend(); err != nil {
			c.BreakContact(cl.BreakIOError)
			return
		} else if progressed {
			continue
		}

		timer := time.NewTimer(c.PollTimeout())
		select {
		case cmd := <-c.commands:
			timer.Stop()
			c.handleCommand(cmd)
		case <-readable:
			timer.Stop()
			if err := c.Transport.ProcessReadable(); err != nil {
				c.BreakContact(cl.BreakIOError)
				return
			}
			c.mtx.Lock()
			c.lastDataRcvd = time.Now()
			c.mtx.Unlock()
		case <-writable:
			timer.Stop()
		case <-timer.C:
		}

		if c.contactBroken.Load() {
			return
		}
		c.checkDeadlines()
	}
}

func (c *Controller) handleCommand(cmd Command) {
	switch cmd.Kind {
	case CmdCancelBundle:
		if !c.Link.Cancel(cmd.Bundle) {
			c.Log.Warnf("connctl[%s]: cancel rejected, bundle %d already on the wire", c.Link.Name, cmd.Bundle.ID)
		}
	case CmdBreakContact:
		c.BreakContact(cmd.Reason)
	case CmdBundlesQueued:
		// No-op at this layer: the CL engine's send loop polls Link.queue
		// directly via DequeueNext; this command only wakes the poll wait.
	}
}

func (c *Controller) checkDeadlines() {
	c.mtx.Lock()
	now := time.Now()
	sinceData := now.Sub(c.lastDataRcvd)
	sinceKeepalive := now.Sub(c.lastKeepalive)
	dataTimeout := c.DataTimeout
	keepaliveInterval := c.KeepaliveInterval
	c.mtx.Unlock()

	if keepaliveInterval > 0 && sinceKeepalive >= keepaliveInterval {
		if err := c.sendKeepaliveIfTransportSupportsIt(); err == nil {
			c.mtx.Lock()
			c.lastKeepalive = now
			c.mtx.Unlock()
		}
	}
	if dataTimeout > 0 && sinceData > dataTimeout {
		if !c.BreakOnKeepaliveFault {
			c.Log.Warnf("connctl[%s]: data idle for %s past timeout, not breaking contact (break_contact_on_keepalive_fault disabled)", c.Link.Name, sinceData)
			return
		}
		c.BreakContact(cl.BreakIdleTimeout)
	}
}

// KeepaliveSender is implemented by transports that can emit a bare
// keepalive frame (stream CLs); stcp/mtcp transports do not implement it
// and keepalive enforcement is then a no-op.
type KeepaliveSender interface {
	SendKeepalive() error
}

func (c *Controller) sendKeepaliveIfTransportSupportsIt() error {
	if ks, ok := c.Transport.(KeepaliveSender); ok {
		return ks.SendKeepalive()
	}
	return nil
}
