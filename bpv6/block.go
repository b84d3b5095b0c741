/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package bpv6

import (
	"errors"

	"github.com/dtnme-go/bpcore/sdnv"
)

// Block type codes (BPv6 extension block identifiers relevant to the core;
// spec.md §1 scopes security-block processing out, so only the primary and
// payload codes are pinned here).
const (
	BlockTypePrimary BlockType = 0x00 // not a real wire type code; used internally to tag the synthetic primary BlockInfo
	BlockTypePayload BlockType = 0x01
)

type BlockType uint8

// Block flag bits relevant to the framework (spec.md §3/§4.5).
const (
	BlockFlagLastBlock        BlockFlags = 1 << 0
	BlockFlagDiscardIfUnknown BlockFlags = 1 << 1
	BlockFlagForwardedUnproc  BlockFlags = 1 << 2
)

type BlockFlags uint8

var (
	ErrNoPayloadBlock        = errors.New("bpv6: block list has no payload block")
	ErrPrimaryNotFirst       = errors.New("bpv6: primary block must be first")
	ErrPayloadNotLast        = errors.New("bpv6: payload block must be last and carry BLOCK_FLAG_LAST_BLOCK")
	ErrMultiplePrimaryBlocks = errors.New("bpv6: more than one primary block in list")
	ErrUnknownCriticalBlock  = errors.New("bpv6: unknown block type without discard-if-unprocessed flag")
	ErrTruncatedBlock        = errors.New("bpv6: truncated extension block")
)

// BlockInfo is a typed segment of a bundle in flight, per spec.md §3/§4.5.
type BlockInfo struct {
	Type     BlockType
	Flags    BlockFlags
	EIDs     []uint64 // dictionary offsets or ipn-equivalent EID references carried by the block, when applicable
	Contents []byte
	Complete bool
}

// DataLength is the length of the block's serialized contents.
func (b *BlockInfo) DataLength() int { return len(b.Contents) }

// Handler is the capability record a block type registers with the
// framework: prepare/generate/consume/validate, per spec.md §4.5.
type Handler interface {
	// Prepare is invoked while the outgoing block list for a link is being
	// built; implementations append their BlockInfo to xmitBlocks.
	Prepare(ctx *GenerateContext, xmitBlocks *[]*BlockInfo) error

	// Generate produces the block's wire bytes into block.Contents.
	// isLast is true only for the payload block. The primary block has
	// no Handler: EncodePrimary serializes it outside this interface.
	Generate(ctx *GenerateContext, xmitBlocks []*BlockInfo, block *BlockInfo, isLast bool) error

	// Consume is fed incoming stream bytes; it sets block.Complete once
	// the block's data has been fully read, and may consume fewer than
	// len(buf) bytes if more data is needed.
	Consume(block *BlockInfo, buf []byte) (consumed int, err error)

	// Validate runs after a block is fully consumed.
	Validate(blockList []*BlockInfo, block *BlockInfo) (receptionReason, deletionReason Reason, ok bool)
}

// GenerateContext carries the caller-supplied parameters a handler's
// Prepare/Generate phase needs without binding the bpv6 package to the
// bundle or cl packages (avoids an import cycle; bundle.Bundle and
// cl.Link satisfy this via small adapter structs at the call site).
type GenerateContext struct {
	SourceBlock *BlockInfo
	LinkName    string
}

// Reason enumerates the deletion/reception reason codes referenced by
// spec.md §4.4/§4.5/§7. The full vocabulary is supplemented from
// original_source's BundleProtocol::status_report_reason_t, since spec.md
// names only a subset by string.
type Reason uint8

const (
	ReasonNoInfo               Reason = 0
	ReasonLifetimeExpired      Reason = 1
	ReasonForwardedUnidirLink  Reason = 2
	ReasonTransmissionCanceled Reason = 3
	ReasonDepletedStorage      Reason = 4
	ReasonEndpointIDUnintel    Reason = 5
	ReasonNoRoute              Reason = 6
	ReasonNoTimelyContact      Reason = 7
	ReasonBlockUnintelligible  Reason = 8
	ReasonDuplicateBundle      Reason = 9
)

// Registry is a process-wide name→Handler table, the "capability record"
// of DESIGN NOTES / spec.md §9, keyed by BlockType the way the route-table
// CL registry is keyed by CL name.
type Registry struct {
	handlers map[BlockType]Handler
	unknown  Handler // handler for block types with no registered entry
}

// NewRegistry returns an empty block-handler registry with a default
// unknown-block handler (discard-if-flagged, else forward verbatim).
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[BlockType]Handler), unknown: unknownBlockHandler{}}
}

// Register installs the handler for a given block type.
func (r *Registry) Register(t BlockType, h Handler) {
	r.handlers[t] = h
}

// HandlerFor returns the handler for t, falling back to the unknown-block
// handler if none was registered.
func (r *Registry) HandlerFor(t BlockType) Handler {
	if h, ok := r.handlers[t]; ok {
		return h
	}
	return r.unknown
}

// unknownBlockHandler implements the "unknown blocks with the discard
// flag are dropped on receive; unknown blocks without it are forwarded
// verbatim" rule of spec.md §4.5. It has no Prepare/Generate phase of its
// own: unknown block types are never originated by this core, only
// relayed, so those methods are no-ops returning success.
type unknownBlockHandler struct{}

func (unknownBlockHandler) Prepare(*GenerateContext, *[]*BlockInfo) error { return nil }

func (unknownBlockHandler) Generate(*GenerateContext, []*BlockInfo, *BlockInfo, bool) error {
	return nil
}

func (unknownBlockHandler) Consume(block *BlockInfo, buf []byte) (int, error) {
	block.Contents = append(block.Contents[:0:0], buf...)
	block.Complete = true
	return len(buf), nil
}

func (unknownBlockHandler) Validate(blockList []*BlockInfo, block *BlockInfo) (Reason, Reason, bool) {
	return ReasonNoInfo, ReasonNoInfo, true
}

// ShouldDiscard reports whether an unprocessed (unrecognized) block should
// be dropped on receive rather than forwarded verbatim.
func (b *BlockInfo) ShouldDiscard() bool {
	return b.Flags&BlockFlagDiscardIfUnknown != 0
}

// ValidateBlockShape enforces the structural invariant of spec.md §4.5:
// exactly one primary, primary first, exactly one payload block, payload
// last and flagged BLOCK_FLAG_LAST_BLOCK.
func ValidateBlockShape(blocks []*BlockInfo) error {
	if len(blocks) == 0 {
		return ErrNoPayloadBlock
	}
	if blocks[0].Type != BlockTypePrimary {
		return ErrPrimaryNotFirst
	}
	primaries := 0
	payloadIdx := -1
	for i, b := range blocks {
		if b.Type == BlockTypePrimary {
			primaries++
			if i != 0 {
				return ErrPrimaryNotFirst
			}
		}
		if b.Type == BlockTypePayload {
			payloadIdx = i
		}
	}
	if primaries != 1 {
		return ErrMultiplePrimaryBlocks
	}
	if payloadIdx == -1 {
		return ErrNoPayloadBlock
	}
	if payloadIdx != len(blocks)-1 || blocks[payloadIdx].Flags&BlockFlagLastBlock == 0 {
		return ErrPayloadNotLast
	}
	return nil
}

// PayloadHandler is the Handler this core registers for BlockTypePayload.
// Prepare appends a single block flagged BLOCK_FLAG_LAST_BLOCK; Generate
// copies ctx.SourceBlock's bytes into it verbatim, since the payload block's
// contents are the bundle's application data with no further framing.
type PayloadHandler struct{}

func (PayloadHandler) Prepare(ctx *GenerateContext, xmitBlocks *[]*BlockInfo) error {
	*xmitBlocks = append(*xmitBlocks, &BlockInfo{Type: BlockTypePayload, Flags: BlockFlagLastBlock})
	return nil
}

func (PayloadHandler) Generate(ctx *GenerateContext, xmitBlocks []*BlockInfo, block *BlockInfo, isLast bool) error {
	if !isLast {
		return ErrPayloadNotLast
	}
	block.Contents = ctx.SourceBlock.Contents
	block.Complete = true
	return nil
}

func (PayloadHandler) Consume(block *BlockInfo, buf []byte) (int, error) {
	block.Contents = append(block.Contents[:0:0], buf...)
	block.Complete = true
	return len(buf), nil
}

func (PayloadHandler) Validate(blockList []*BlockInfo, block *BlockInfo) (Reason, Reason, bool) {
	return ReasonNoInfo, ReasonNoInfo, true
}

// DefaultRegistry returns a Registry with PayloadHandler installed for
// BlockTypePayload, the minimum wiring every CL engine in this core shares.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(BlockTypePayload, PayloadHandler{})
	return r
}

// BuildXmitBlocks drives the Prepare/Generate phases of spec.md §4.5 for a
// bundle whose only originated extension block is the payload: ctx carries
// the payload bytes in ctx.SourceBlock.Contents, and reg's registered
// handlers do the framing. The returned list holds only the non-primary
// blocks; callers prepend the primary block themselves.
func BuildXmitBlocks(reg *Registry, ctx *GenerateContext) ([]*BlockInfo, error) {
	var blocks []*BlockInfo
	if err := reg.HandlerFor(BlockTypePayload).Prepare(ctx, &blocks); err != nil {
		return nil, err
	}
	for i, blk := range blocks {
		isLast := i == len(blocks)-1
		if err := reg.HandlerFor(blk.Type).Generate(ctx, blocks, blk, isLast); err != nil {
			return nil, err
		}
	}
	return blocks, nil
}

// EncodeBlockList renders the non-primary blocks of a bundle (as built by
// BuildXmitBlocks, or forwarded verbatim from a received block list) as a
// sequence of [type][flags][SDNV length][contents] frames.
func EncodeBlockList(blocks []*BlockInfo) []byte {
	var out []byte
	for _, b := range blocks {
		out = append(out, byte(b.Type), byte(b.Flags))
		out = sdnv.Append(out, uint64(len(b.Contents)))
		out = append(out, b.Contents...)
	}
	return out
}

// DecodeBlockList parses a wire-encoded extension block list, driving each
// block through reg's Consume and Validate phases. A block of a type not
// registered with reg falls back to the unknown-block handler: per
// spec.md §4.5, BlockInfo.ShouldDiscard reports whether that block is
// dropped from the returned list or kept (flagged BlockFlagForwardedUnproc)
// for verbatim forwarding. Parsing stops once the block flagged
// BlockFlagLastBlock has been consumed.
func DecodeBlockList(reg *Registry, buf []byte) ([]*BlockInfo, error) {
	var out []*BlockInfo
	pos := 0
	for pos < len(buf) {
		if pos+2 > len(buf) {
			return nil, ErrTruncatedBlock
		}
		block := &BlockInfo{Type: BlockType(buf[pos]), Flags: BlockFlags(buf[pos+1])}
		pos += 2

		length, n, err := sdnv.Decode(buf[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		if uint64(len(buf)-pos) < length {
			return nil, ErrTruncatedBlock
		}
		data := buf[pos : pos+int(length)]
		pos += int(length)

		handler, registered := reg.handlers[block.Type]
		if !registered {
			handler = reg.unknown
		}
		if _, err := handler.Consume(block, data); err != nil {
			return nil, err
		}
		isLast := block.Flags&BlockFlagLastBlock != 0
		if _, _, ok := handler.Validate(out, block); !ok {
			return nil, ErrUnknownCriticalBlock
		}
		if !registered {
			if block.ShouldDiscard() {
				if isLast {
					return nil, ErrNoPayloadBlock
				}
				continue
			}
			block.Flags |= BlockFlagForwardedUnproc
		}
		out = append(out, block)
		if isLast {
			break
		}
	}
	return out, nil
}
