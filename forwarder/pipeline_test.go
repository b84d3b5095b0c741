/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package forwarder

import (
	"context"
	"testing"
	"time"

	"github.com/dtnme-go/bpcore/bplog"
	"github.com/dtnme-go/bpcore/bundle"
	"github.com/dtnme-go/bpcore/cl"
	"github.com/dtnme-go/bpcore/eid"
	"github.com/dtnme-go/bpcore/route"
)

func samplePattern(t *testing.T, s string) eid.Pattern {
	t.Helper()
	p, err := eid.CompilePattern(s)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestAcceptRoutesToMatchingLink(t *testing.T) {
	rt := route.NewTable(bplog.NewDiscard())
	rt.AddEntry(&route.Entry{DestPattern: samplePattern(t, "ipn:2.*"), Action: route.ActionForward, NextHopLink: "r1"})

	p := NewPipeline(rt, bundle.NewStore(0), bplog.NewDiscard(), 2)
	link := cl.NewLink("r1", "tcp", "10.0.0.1:4556")
	p.RegisterLink(link)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	src, _ := eid.Parse("ipn:1.1")
	dst, _ := eid.Parse("ipn:2.1")
	b := bundle.New()
	b.Source, b.Dest = src, dst
	b.Lifetime = 3600

	if err := p.Accept(b); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-p.Events():
		if ev.Kind != EventQueued || ev.Link != "r1" {
			t.Fatalf("got event %+v, want EventQueued on r1", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for EventQueued")
	}
	if n := link.QueueLen(); n != 1 {
		t.Fatalf("link queue length = %d, want 1", n)
	}
}

func TestAcceptNoRoutePostsNoRouteEvent(t *testing.T) {
	rt := route.NewTable(bplog.NewDiscard())
	p := NewPipeline(rt, bundle.NewStore(0), bplog.NewDiscard(), 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	src, _ := eid.Parse("ipn:1.1")
	dst, _ := eid.Parse("ipn:9.9")
	b := bundle.New()
	b.Source, b.Dest = src, dst
	b.Lifetime = 3600

	if err := p.Accept(b); err != nil {
		t.Fatal(err)
	}
	select {
	case ev := <-p.Events():
		if ev.Kind != EventNoRoute {
			t.Fatalf("got event kind %v, want EventNoRoute", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for EventNoRoute")
	}
}

func TestQueuedDirectToUnknownLinkFails(t *testing.T) {
	rt := route.NewTable(bplog.NewDiscard())
	p := NewPipeline(rt, bundle.NewStore(0), bplog.NewDiscard(), 1)
	b := bundle.New()
	if err := p.Queued("nope", b); err != ErrUnknownLink {
		t.Fatalf("expected ErrUnknownLink, got %v", err)
	}
}

func TestCancelUnknownLink(t *testing.T) {
	rt := route.NewTable(bplog.NewDiscard())
	p := NewPipeline(rt, bundle.NewStore(0), bplog.NewDiscard(), 1)
	if err := p.Cancel("nope", 1); err != ErrUnknownLink {
		t.Fatalf("expected ErrUnknownLink, got %v", err)
	}
}
