/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package mtcp

import (
	"net"
	"testing"
	"time"

	"github.com/dtnme-go/bpcore/bplog"
	"github.com/dtnme-go/bpcore/bundle"
	"github.com/dtnme-go/bpcore/cl"
	"github.com/dtnme-go/bpcore/eid"
)

func TestSendDequeuesAndCompletesInflight(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	defer srvConn.Close()
	defer cliConn.Close()

	srvEvents := make(chan cl.Event, 4)
	srvEngine := &Engine{Store: bundle.NewStore(0), Events: srvEvents, Log: bplog.NewDiscard()}
	srvLink := cl.NewLink("peer", Name, "peer:0")
	if err := srvEngine.startSession(srvLink, srvConn); err != nil {
		t.Fatal(err)
	}

	cliEvents := make(chan cl.Event, 4)
	cliEngine := &Engine{Store: bundle.NewStore(0), Events: cliEvents, Log: bplog.NewDiscard()}
	cliLink := cl.NewLink("r1", Name, "r1:0")
	if err := cliEngine.startSession(cliLink, cliConn); err != nil {
		t.Fatal(err)
	}

	src, _ := eid.Parse("ipn:1.1")
	dst, _ := eid.Parse("ipn:2.1")
	b := bundle.New()
	b.Source = src
	b.Dest = dst
	b.Lifetime = 3600
	b.Payload = bundle.NewMemoryPayload([]byte("mtcp payload"))
	cliLink.Enqueue(b)

	time.Sleep(200 * time.Millisecond)
	if n := cliLink.QueueLen(); n != 0 {
		t.Fatalf("client link queue = %d, want 0", n)
	}
	if n := cliLink.InflightLen(); n != 0 {
		t.Fatalf("client link inflight = %d, want 0", n)
	}
}
