/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package tcpclv4

import "testing"

func TestSessInitRoundTrip(t *testing.T) {
	s := SessInit{KeepaliveInterval: 15, SegmentMRU: 4096, TransferMRU: 1 << 20, NodeID: "dtn://node1/"}
	wire := EncodeSessInit(s)

	got, n, err := DecodeSessInit(wire[1:])
	if err != nil {
		t.Fatal(err)
	}
	if n != len(wire)-1 {
		t.Fatalf("consumed %d, want %d", n, len(wire)-1)
	}
	if got.KeepaliveInterval != s.KeepaliveInterval || got.SegmentMRU != s.SegmentMRU ||
		got.TransferMRU != s.TransferMRU || got.NodeID != s.NodeID {
		t.Fatalf("got %+v, want %+v", got, s)
	}
}

func TestTransferLengthItemRoundTrip(t *testing.T) {
	item := EncodeTransferLengthItem(12345)
	length, ok := DecodeTransferLengthItem(item)
	if !ok {
		t.Fatal("expected TRANSFER_LENGTH item to be present")
	}
	if length != 12345 {
		t.Fatalf("length = %d, want 12345", length)
	}
}

func TestTransferLengthItemAbsent(t *testing.T) {
	if _, ok := DecodeTransferLengthItem(nil); ok {
		t.Fatal("expected no TRANSFER_LENGTH item in an empty extension blob")
	}
}

func TestXferSegmentHeaderRoundTripWithStart(t *testing.T) {
	ext := EncodeTransferLengthItem(999)
	data := []byte("segment payload")
	wire := EncodeXferSegment(7, XferFlagStart, ext, data)

	transferID, flags, extItems, dataLen, n, err := DecodeXferSegmentHeader(wire[1:])
	if err != nil {
		t.Fatal(err)
	}
	if transferID != 7 || flags != XferFlagStart {
		t.Fatalf("transferID=%d flags=%x", transferID, flags)
	}
	if int(dataLen) != len(data) {
		t.Fatalf("dataLen = %d, want %d", dataLen, len(data))
	}
	length, ok := DecodeTransferLengthItem(extItems)
	if !ok || length != 999 {
		t.Fatalf("extItems round trip failed: %v %v", length, ok)
	}
	got := wire[1+n:]
	if string(got) != string(data) {
		t.Fatalf("data mismatch: %q", got)
	}
}

func TestXferAckRoundTrip(t *testing.T) {
	wire := EncodeXferAck(3, XferFlagEnd, 2048)
	transferID, flags, acked, _, err := DecodeXferAck(wire[1:])
	if err != nil {
		t.Fatal(err)
	}
	if transferID != 3 || flags != XferFlagEnd || acked != 2048 {
		t.Fatalf("got id=%d flags=%x acked=%d", transferID, flags, acked)
	}
}

func TestXferRefuseRoundTrip(t *testing.T) {
	wire := EncodeXferRefuse(RefuseNoResources, 9)
	reason, transferID, _, err := DecodeXferRefuse(wire[1:])
	if err != nil {
		t.Fatal(err)
	}
	if reason != RefuseNoResources || transferID != 9 {
		t.Fatalf("got reason=%d id=%d", reason, transferID)
	}
}

func TestSessTermRoundTrip(t *testing.T) {
	wire := EncodeSessTerm(0, 1)
	flags, reason, _, err := DecodeSessTerm(wire[1:])
	if err != nil {
		t.Fatal(err)
	}
	if flags != 0 || reason != 1 {
		t.Fatalf("got flags=%d reason=%d", flags, reason)
	}
}
