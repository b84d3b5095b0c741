/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package bpv6

import "testing"

func TestBuildXmitBlocksPayloadOnly(t *testing.T) {
	reg := DefaultRegistry()
	ctx := &GenerateContext{SourceBlock: &BlockInfo{Contents: []byte("hello")}, LinkName: "l1"}

	blocks, err := BuildXmitBlocks(reg, ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 {
		t.Fatalf("len(blocks) = %d, want 1", len(blocks))
	}
	b := blocks[0]
	if b.Type != BlockTypePayload {
		t.Fatalf("block type = %v, want BlockTypePayload", b.Type)
	}
	if b.Flags&BlockFlagLastBlock == 0 {
		t.Fatal("payload block must carry BlockFlagLastBlock")
	}
	if string(b.Contents) != "hello" {
		t.Fatalf("contents = %q, want %q", b.Contents, "hello")
	}
}

func TestEncodeDecodeBlockListRoundTrip(t *testing.T) {
	reg := DefaultRegistry()
	ctx := &GenerateContext{SourceBlock: &BlockInfo{Contents: []byte("payload data")}}
	blocks, err := BuildXmitBlocks(reg, ctx)
	if err != nil {
		t.Fatal(err)
	}

	wire := EncodeBlockList(blocks)
	got, err := DecodeBlockList(reg, wire)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Type != BlockTypePayload {
		t.Fatalf("got = %+v, want a single payload block", got)
	}
	if string(got[0].Contents) != "payload data" {
		t.Fatalf("contents = %q, want %q", got[0].Contents, "payload data")
	}
}

func TestDecodeBlockListDiscardsUnknownFlaggedBlock(t *testing.T) {
	reg := DefaultRegistry()

	var wire []byte
	// unknown block, flagged discard-if-unknown, not last
	wire = append(wire, 200, byte(BlockFlagDiscardIfUnknown), 3, 'x', 'y', 'z')
	// payload block, last
	payload := []byte("body")
	wire = append(wire, byte(BlockTypePayload), byte(BlockFlagLastBlock), byte(len(payload)))
	wire = append(wire, payload...)

	got, err := DecodeBlockList(reg, wire)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("len(got) = %d, want 1 (unknown discard-flagged block dropped)", len(got))
	}
	if got[0].Type != BlockTypePayload || string(got[0].Contents) != "body" {
		t.Fatalf("got = %+v, want the payload block", got[0])
	}
}

func TestDecodeBlockListKeepsUnknownUnflaggedBlockForForwarding(t *testing.T) {
	reg := DefaultRegistry()

	var wire []byte
	// unknown block, no discard flag, not last
	wire = append(wire, 201, 0, 3, 'a', 'b', 'c')
	payload := []byte("body")
	wire = append(wire, byte(BlockTypePayload), byte(BlockFlagLastBlock), byte(len(payload)))
	wire = append(wire, payload...)

	got, err := DecodeBlockList(reg, wire)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len(got) = %d, want 2 (unknown block kept for forwarding)", len(got))
	}
	kept := got[0]
	if kept.Flags&BlockFlagForwardedUnproc == 0 {
		t.Fatal("kept unknown block should be flagged BlockFlagForwardedUnproc")
	}
	if string(kept.Contents) != "abc" {
		t.Fatalf("kept contents = %q, want %q", kept.Contents, "abc")
	}
}

func TestDecodeBlockListTruncated(t *testing.T) {
	reg := DefaultRegistry()
	wire := []byte{byte(BlockTypePayload), byte(BlockFlagLastBlock), 5, 'a', 'b'} // declares 5 bytes, has 2
	if _, err := DecodeBlockList(reg, wire); err != ErrTruncatedBlock {
		t.Fatalf("err = %v, want ErrTruncatedBlock", err)
	}
}
