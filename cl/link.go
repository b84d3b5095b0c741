/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package cl defines the convergence-layer contracts shared by every CL
// engine (tcpclv3, tcpclv4, stcp, mtcp): link state, queued/inflight
// bundle bookkeeping, and the name→engine registry used when a link or
// interface is created from configuration or console text commands.
package cl

import (
	"sync"

	"github.com/dtnme-go/bpcore/bundle"
)

// LinkType is the scheduling class of a link, per spec.md §3.
type LinkType int

const (
	LinkAlwaysOn LinkType = iota
	LinkOnDemand
	LinkOpportunistic
	LinkScheduled
)

// LinkState is a link's lifecycle state.
type LinkState int

const (
	StateUnavailable LinkState = iota
	StateAvailable
	StateOpening
	StateOpen
	StateClosing
	StateClosed
)

func (s LinkState) String() string {
	switch s {
	case StateUnavailable:
		return "unavailable"
	case StateAvailable:
		return "available"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Engine is the capability record a convergence layer registers with the
// Registry: it knows how to dial an active contact and how to accept a
// passive one. Each concrete CL (tcpclv3, tcpclv4, stcp, mtcp) implements
// this against its own session type embedding *connctl.Controller.
type Engine interface {
	Name() string
	Dial(link *Link) error
	Listen(iface *Interface) error
}

// Link is the persistent next-hop configuration and queue state of
// spec.md §3; its live contact (if any) is owned by the CL engine.
type Link struct {
	Name       string
	Type       LinkType
	Nexthop    string
	RemoteEID  string
	CLName     string
	Options    map[string]string

	MaxInflightBundles int
	QlimitBytesHigh    int64
	QlimitBytesLow     int64

	mtx      sync.Mutex
	state    LinkState
	queue    []*bundle.Bundle
	inflight []*bundle.Bundle
	busy     bool
}

// NewLink returns a link in state unavailable with default watermarks.
func NewLink(name, clName, nexthop string) *Link {
	return &Link{
		Name:               name,
		CLName:             clName,
		Nexthop:            nexthop,
		Options:            make(map[string]string),
		MaxInflightBundles: 8,
		QlimitBytesHigh:    4 << 20,
		QlimitBytesLow:     1 << 20,
		state:              StateUnavailable,
	}
}

func (l *Link) State() LinkState {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.state
}

func (l *Link) SetState(s LinkState) {
	l.mtx.Lock()
	l.state = s
	l.mtx.Unlock()
}

// Enqueue appends b to the link's send queue, then recomputes busy state.
func (l *Link) Enqueue(b *bundle.Bundle) {
	l.mtx.Lock()
	l.queue = append(l.queue, b)
	l.recomputeBusyLocked()
	l.mtx.Unlock()
}

// DequeueNext pops the front of the queue for the CL worker to transmit.
func (l *Link) DequeueNext() (*bundle.Bundle, bool) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	b := l.queue[0]
	l.queue = l.queue[1:]
	l.inflight = append(l.inflight, b)
	l.recomputeBusyLocked()
	return b, true
}

// Requeue moves a bundle from inflight back to the front of queue,
// per spec.md §4.7's contact-broken salvage rule for bundles with no
// bytes sent (or no ack, on a reliable link with reactive frag off).
func (l *Link) Requeue(b *bundle.Bundle) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.removeInflightLocked(b)
	l.queue = append([]*bundle.Bundle{b}, l.queue...)
	l.recomputeBusyLocked()
}

// CompleteInflight removes b from inflight once it has been fully
// transmitted/acked or given up on via a BundleTransmitted event.
func (l *Link) CompleteInflight(b *bundle.Bundle) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.removeInflightLocked(b)
	l.recomputeBusyLocked()
}

func (l *Link) removeInflightLocked(b *bundle.Bundle) {
	for i, x := range l.inflight {
		if x == b {
			l.inflight = append(l.inflight[:i], l.inflight[i+1:]...)
			return
		}
	}
}

// Cancel removes b from queue only (never from inflight), returning
// true on success, per spec.md §5's CANCEL_BUNDLE rule: cancellation
// succeeds only if no byte of the bundle has gone out on the wire.
func (l *Link) Cancel(b *bundle.Bundle) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	for i, x := range l.queue {
		if x == b {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			l.recomputeBusyLocked()
			return true
		}
	}
	return false
}

// CancelByID removes the queued bundle with the given id, returning true
// on success. Like Cancel, it never touches inflight.
func (l *Link) CancelByID(id uint64) bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	for i, x := range l.queue {
		if x.ID == id {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			l.recomputeBusyLocked()
			return true
		}
	}
	return false
}

func (l *Link) recomputeBusyLocked() {
	if l.busy {
		if len(l.inflight) < l.MaxInflightBundles && l.queueBytesLocked() <= l.QlimitBytesLow {
			l.busy = false
		}
		return
	}
	if len(l.inflight) >= l.MaxInflightBundles || l.queueBytesLocked() > l.QlimitBytesHigh {
		l.busy = true
	}
}

func (l *Link) queueBytesLocked() int64 {
	var total int64
	for _, b := range l.queue {
		total += b.PayloadLength()
	}
	return total
}

// Busy reports whether the link is presently refusing new offers, per
// spec.md §5's backpressure rule.
func (l *Link) Busy() bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.busy
}

// QueueLen and InflightLen expose queue sizes for the console `link dump`
// command and for tests.
func (l *Link) QueueLen() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return len(l.queue)
}

func (l *Link) InflightLen() int {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return len(l.inflight)
}

// Interface is a passive listener for a convergence layer, accepting
// inbound contacts that are not associated with a pre-configured Link.
type Interface struct {
	Name    string
	CLName  string
	Options map[string]string
}

// NewInterface returns an interface ready to be handed to Engine.Listen.
func NewInterface(name, clName string) *Interface {
	return &Interface{Name: name, CLName: clName, Options: make(map[string]string)}
}
