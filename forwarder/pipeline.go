/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package forwarder implements the bundle pipeline of spec.md §4: the
// daemon-facing edges that accept newly-arrived bundles, route them onto
// outbound links, and surface link-level and bundle-level events,
// grounded on IngestMuxer's event-channel pair (eChan/bChan) and its
// connFailed/goHot/goDead link-state bookkeeping.
package forwarder

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dtnme-go/bpcore/bplog"
	"github.com/dtnme-go/bpcore/bundle"
	"github.com/dtnme-go/bpcore/cl"
	"github.com/dtnme-go/bpcore/route"
)

var (
	ErrUnknownLink  = errors.New("forwarder: unknown link")
	ErrPipelineFull = errors.New("forwarder: accept queue is full")
)

// EventKind enumerates the events a Pipeline surfaces to the daemon.
type EventKind int

const (
	EventQueued EventKind = iota
	EventNoRoute
	EventDeleted
	EventLinkEvent
)

// Event is one pipeline-level notification.
type Event struct {
	Kind      EventKind
	Bundle    *bundle.Bundle
	Link      string
	Reason    bundle.DeletionReason
	LinkEvent cl.Event
}

// Pipeline is the bundle forwarding core: route lookups and link
// enqueuing happen on a small worker pool (golang.org/x/sync/errgroup)
// fed by Accept, so a slow route lookup never blocks the CL engine
// goroutine that produced the bundle.
type Pipeline struct {
	Store  *bundle.Store
	Routes *route.Table
	Log    *bplog.Logger

	mtx   sync.RWMutex
	links map[string]*cl.Link

	accept     chan *bundle.Bundle
	events     chan Event
	linkEvents chan cl.Event

	workers int
}

// NewPipeline returns a Pipeline with workers concurrent accept-path
// goroutines; callers start them with Run.
func NewPipeline(routes *route.Table, store *bundle.Store, log *bplog.Logger, workers int) *Pipeline {
	if log == nil {
		log = bplog.NewDiscard()
	}
	if workers < 1 {
		workers = 1
	}
	return &Pipeline{
		Store:      store,
		Routes:     routes,
		Log:        log,
		links:      make(map[string]*cl.Link),
		accept:     make(chan *bundle.Bundle, 256),
		events:     make(chan Event, 256),
		linkEvents: make(chan cl.Event, 256),
		workers:    workers,
	}
}

// LinkEvents is the channel every convergence-layer Controller should be
// constructed with as its Events sink; the pipeline relays each cl.Event
// onward as a forwarder.Event of kind EventLinkEvent.
func (p *Pipeline) LinkEvents() chan<- cl.Event { return p.linkEvents }

// Events returns the channel the daemon should drain for pipeline
// notifications.
func (p *Pipeline) Events() <-chan Event { return p.events }

// RegisterLink makes link a routable next hop and a target for Queued/
// Cancel by name.
func (p *Pipeline) RegisterLink(link *cl.Link) {
	p.mtx.Lock()
	p.links[link.Name] = link
	p.mtx.Unlock()
}

// UnregisterLink removes a link, e.g. after `link del`.
func (p *Pipeline) UnregisterLink(name string) {
	p.mtx.Lock()
	delete(p.links, name)
	p.mtx.Unlock()
}

func (p *Pipeline) getLink(name string) (*cl.Link, bool) {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	l, ok := p.links[name]
	return l, ok
}

// Accept hands a newly-arrived or locally-originated bundle to the
// pipeline for route resolution and enqueuing. It returns
// ErrPipelineFull if the internal accept queue is saturated, matching
// spec.md §5's backpressure posture (callers should treat that as
// transient congestion, not a permanent rejection).
func (p *Pipeline) Accept(b *bundle.Bundle) error {
	select {
	case p.accept <- b:
		return nil
	default:
		return ErrPipelineFull
	}
}

// Queued enqueues b directly onto the named link, bypassing route
// resolution: used for console-driven manual routing (`link dump`'s
// counterpart write path) and retransmission after a salvage requeue.
func (p *Pipeline) Queued(linkName string, b *bundle.Bundle) error {
	link, ok := p.getLink(linkName)
	if !ok {
		return ErrUnknownLink
	}
	link.Enqueue(b)
	p.postEvent(Event{Kind: EventQueued, Bundle: b, Link: linkName})
	return nil
}

// Cancel removes bundleID from the named link's send queue if it has
// not yet gone out on the wire.
func (p *Pipeline) Cancel(linkName string, bundleID uint64) error {
	link, ok := p.getLink(linkName)
	if !ok {
		return ErrUnknownLink
	}
	if !link.CancelByID(bundleID) {
		p.Log.Warnf("forwarder: cancel rejected, bundle %d not queued on %s", bundleID, linkName)
	}
	return nil
}

// Run starts the worker pool and the link-event relay; it blocks until
// ctx is cancelled or a worker returns a non-nil error.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			return p.acceptLoop(gctx)
		})
	}
	g.Go(func() error {
		return p.relayLoop(gctx)
	})

	return g.Wait()
}

func (p *Pipeline) acceptLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-p.accept:
			if !ok {
				return nil
			}
			p.route(b)
		}
	}
}

func (p *Pipeline) relayLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-p.linkEvents:
			if !ok {
				return nil
			}
			p.postEvent(Event{Kind: EventLinkEvent, LinkEvent: ev, Link: ev.Link, Bundle: ev.Bundle})
		}
	}
}

// route resolves b's destination against the route table and enqueues
// it on the first matching link still registered with the pipeline,
// posting EventNoRoute (and the §7 deletion reason) when nothing
// matches or the chosen link is no longer known.
func (p *Pipeline) route(b *bundle.Bundle) {
	if err := b.Validate(); err != nil {
		p.postEvent(Event{Kind: EventDeleted, Bundle: b, Reason: bundle.DeletionBlockUnintel})
		return
	}
	matches := p.Routes.GetMatching(b.Dest)
	for _, m := range matches {
		if link, ok := p.getLink(m.NextHopLink); ok {
			link.Enqueue(b)
			p.postEvent(Event{Kind: EventQueued, Bundle: b, Link: m.NextHopLink})
			return
		}
	}
	p.postEvent(Event{Kind: EventNoRoute, Bundle: b, Reason: bundle.DeletionNoRoute})
}

func (p *Pipeline) postEvent(e Event) {
	select {
	case p.events <- e:
	default:
		p.Log.Warnf("forwarder: event channel full, dropping %v for bundle", e.Kind)
	}
}
