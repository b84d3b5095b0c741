/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package bundle

import "github.com/dtnme-go/bpcore/bpv6"

// Encode renders b for transmission on linkName: the primary block
// followed by the extension block list reg's handlers build from
// b.Payload, driving the Prepare/Generate phases of spec.md §4.5. The
// built list is also recorded on b.XmitBlocks[linkName] so Validate can
// check its shape. Every CL engine in this core shares this codec rather
// than hand-rolling its own primary+payload framing.
func Encode(b *Bundle, reg *bpv6.Registry, linkName string) ([]byte, error) {
	var payload []byte
	if b.Payload != nil {
		p, err := b.Payload.Bytes()
		if err != nil {
			return nil, err
		}
		payload = p
	}

	ctx := &bpv6.GenerateContext{
		SourceBlock: &bpv6.BlockInfo{Contents: payload},
		LinkName:    linkName,
	}
	blocks, err := bpv6.BuildXmitBlocks(reg, ctx)
	if err != nil {
		return nil, err
	}
	b.XmitBlocks[linkName] = append([]*bpv6.BlockInfo{{Type: bpv6.BlockTypePrimary}}, blocks...)

	wire := bpv6.EncodePrimary(b.ToPrimaryHeader(), nil)
	wire = append(wire, bpv6.EncodeBlockList(blocks)...)
	return wire, nil
}

// Decode is Encode's inverse: it parses the primary block, then drives
// reg's Consume/Validate chain over the remaining extension block list
// (spec.md §4.5), filling b.RecvBlocks and the payload block's bytes into
// b.Payload. An unknown block type without BLOCK_FLAG_DISCARD_IF_UNKNOWN
// survives in RecvBlocks flagged BlockFlagForwardedUnproc for verbatim
// relaying; one with the flag set is silently dropped.
func Decode(reg *bpv6.Registry, buf []byte) (*Bundle, error) {
	h, _, n, err := bpv6.DecodePrimary(buf)
	if err != nil {
		return nil, err
	}
	b := FromPrimaryHeader(h)

	blocks, err := bpv6.DecodeBlockList(reg, buf[n:])
	if err != nil {
		return nil, err
	}
	b.RecvBlocks = append([]*bpv6.BlockInfo{{Type: bpv6.BlockTypePrimary}}, blocks...)

	for _, blk := range blocks {
		if blk.Type == bpv6.BlockTypePayload {
			b.Payload = NewMemoryPayload(append([]byte(nil), blk.Contents...))
		}
	}
	if b.Payload == nil {
		return nil, bpv6.ErrNoPayloadBlock
	}
	return b, nil
}
