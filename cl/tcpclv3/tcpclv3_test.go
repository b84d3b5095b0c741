/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package tcpclv3

import (
	"net"
	"testing"
	"time"

	"github.com/dtnme-go/bpcore/bplog"
	"github.com/dtnme-go/bpcore/bpv6"
	"github.com/dtnme-go/bpcore/bundle"
	"github.com/dtnme-go/bpcore/cl"
	"github.com/dtnme-go/bpcore/cl/stream"
	"github.com/dtnme-go/bpcore/eid"
)

func TestContactHeaderExchangeNegotiatesMinimumKeepalive(t *testing.T) {
	srvConn, cliConn := net.Pipe()
	defer srvConn.Close()
	defer cliConn.Close()

	done := make(chan stream.ContactHeader, 1)
	go func() {
		buf := make([]byte, 256)
		n, err := srvConn.Read(buf)
		if err != nil {
			t.Error(err)
			return
		}
		hdr, _, err := stream.DecodeContactHeader(buf[:n])
		if err != nil {
			t.Error(err)
			return
		}
		reply := stream.ContactHeader{Version: 3, Flags: stream.FlagSegmentAckEnabled, KeepaliveInterval: 5, LocalEID: "dtn://far/"}
		srvConn.Write(reply.Encode())
		done <- hdr
	}()

	e := &Engine{LocalEID: "dtn://near/", Store: bundle.NewStore(0), Events: make(chan cl.Event, 4), Log: bplog.NewDiscard()}
	link := cl.NewLink("r1", Name, "far:4556")
	link.Options = map[string]string{"keepalive_interval": "30"}

	if err := e.startSession(link, cliConn, true); err != nil {
		t.Fatal(err)
	}

	hdr := <-done
	if hdr.LocalEID != "dtn://near/" {
		t.Fatalf("server saw local EID %q", hdr.LocalEID)
	}
	time.Sleep(20 * time.Millisecond)
	if link.RemoteEID != "dtn://far/" {
		t.Fatalf("link.RemoteEID = %q, want dtn://far/", link.RemoteEID)
	}
}

func TestSerializeDeserializeBundleRoundTrip(t *testing.T) {
	src, _ := eid.Parse("ipn:1.1")
	dst, _ := eid.Parse("ipn:2.1")
	b := bundle.New()
	b.Source = src
	b.Dest = dst
	b.Lifetime = 3600
	b.Payload = bundle.NewMemoryPayload([]byte("hello"))

	reg := bpv6.DefaultRegistry()
	wire, err := bundle.Encode(b, reg, "r1")
	if err != nil {
		t.Fatal(err)
	}
	got, err := bundle.Decode(reg, wire)
	if err != nil {
		t.Fatal(err)
	}
	if got.Dest != b.Dest || got.Source != b.Source {
		t.Fatalf("EID mismatch after round trip: %+v", got)
	}
	payload, err := got.Payload.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != "hello" {
		t.Fatalf("payload = %q, want hello", payload)
	}
}

// TestDecodeForwardsUnknownBlockVerbatim exercises spec.md §4.5's
// discard/forward rule for block types this core does not register a
// handler for: one flagged BLOCK_FLAG_DISCARD_IF_UNKNOWN is dropped,
// one without it survives in RecvBlocks flagged BlockFlagForwardedUnproc.
func TestDecodeForwardsUnknownBlockVerbatim(t *testing.T) {
	src, _ := eid.Parse("ipn:1.1")
	dst, _ := eid.Parse("ipn:2.1")
	b := bundle.New()
	b.Source = src
	b.Dest = dst
	b.Lifetime = 3600
	b.Payload = bundle.NewMemoryPayload([]byte("hello"))

	reg := bpv6.DefaultRegistry()
	primary := bpv6.EncodePrimary(b.ToPrimaryHeader(), nil)

	unknownKeep := &bpv6.BlockInfo{Type: 200, Contents: []byte("carrier")}
	unknownDrop := &bpv6.BlockInfo{Type: 201, Flags: bpv6.BlockFlagDiscardIfUnknown, Contents: []byte("scratch")}
	payloadBlock := &bpv6.BlockInfo{Type: bpv6.BlockTypePayload, Flags: bpv6.BlockFlagLastBlock, Contents: []byte("hello")}
	wire := append(primary, bpv6.EncodeBlockList([]*bpv6.BlockInfo{unknownKeep, unknownDrop, payloadBlock})...)

	got, err := bundle.Decode(reg, wire)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.RecvBlocks) != 3 {
		t.Fatalf("RecvBlocks = %d entries, want 3 (primary, kept unknown, payload)", len(got.RecvBlocks))
	}
	kept := got.RecvBlocks[1]
	if kept.Type != 200 || kept.Flags&bpv6.BlockFlagForwardedUnproc == 0 {
		t.Fatalf("kept block = %+v, want type 200 flagged ForwardedUnproc", kept)
	}
	if string(kept.Contents) != "carrier" {
		t.Fatalf("kept block contents = %q, want carrier", kept.Contents)
	}
	payload, err := got.Payload.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	if string(payload) != "hello" {
		t.Fatalf("payload = %q, want hello", payload)
	}
}
