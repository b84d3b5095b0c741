/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package stream

import (
	"errors"

	"github.com/dtnme-go/bpcore/sdnv"
)

// MsgType is the high nibble of a TCPCLv3 message's first byte.
type MsgType byte

const (
	MsgDataSegment MsgType = 0x1
	MsgAckSegment  MsgType = 0x2
	MsgRefuseBundle MsgType = 0x3
	MsgKeepalive   MsgType = 0x4
	MsgShutdown    MsgType = 0x5
)

// DATA_SEGMENT low-nibble flags.
const (
	DataFlagBundleEnd   byte = 0x01
	DataFlagBundleStart byte = 0x02
)

// SHUTDOWN low-nibble flags.
const (
	ShutdownFlagHasDelay  byte = 0x01
	ShutdownFlagHasReason byte = 0x02
)

// Shutdown reason codes.
const (
	ShutdownIdleTimeout     byte = 0
	ShutdownVersionMismatch byte = 1
	ShutdownBusy            byte = 2
)

var ErrUnknownMessageType = errors.New("stream: unrecognized message type nibble")

// TypeByte packs t into the high nibble and flags into the low nibble of
// a message's leading byte.
func TypeByte(t MsgType, flags byte) byte {
	return byte(t)<<4 | (flags & 0x0f)
}

// SplitTypeByte extracts the type and flags from a message's leading byte.
func SplitTypeByte(b byte) (MsgType, byte) {
	return MsgType(b >> 4), b & 0x0f
}

// EncodeDataSegment produces DATA_SEGMENT|flags, SDNV(len(payload)), payload.
func EncodeDataSegment(flags byte, payload []byte) []byte {
	out := make([]byte, 0, 1+sdnv.MaxEncodedLen+len(payload))
	out = append(out, TypeByte(MsgDataSegment, flags))
	out = sdnv.Append(out, uint64(len(payload)))
	out = append(out, payload...)
	return out
}

// EncodeAckSegment produces ACK_SEGMENT, SDNV(cumulative bytes acked).
func EncodeAckSegment(cumulative uint64) []byte {
	out := []byte{TypeByte(MsgAckSegment, 0)}
	return sdnv.Append(out, cumulative)
}

// EncodeRefuseBundle produces the single-byte REFUSE_BUNDLE message.
func EncodeRefuseBundle() []byte {
	return []byte{TypeByte(MsgRefuseBundle, 0)}
}

// EncodeKeepalive produces the single-byte KEEPALIVE message.
func EncodeKeepalive() []byte {
	return []byte{TypeByte(MsgKeepalive, 0)}
}

// EncodeShutdown produces SHUTDOWN with an optional reason byte (when
// reason != nil) and an optional SDNV reconnect delay (when delay != nil).
func EncodeShutdown(reason *byte, delaySeconds *uint64) []byte {
	var flags byte
	if reason != nil {
		flags |= ShutdownFlagHasReason
	}
	if delaySeconds != nil {
		flags |= ShutdownFlagHasDelay
	}
	out := []byte{TypeByte(MsgShutdown, flags)}
	if reason != nil {
		out = append(out, *reason)
	}
	if delaySeconds != nil {
		out = sdnv.Append(out, *delaySeconds)
	}
	return out
}

// DecodeDataSegmentHeader parses the SDNV length following a
// DATA_SEGMENT type byte (the caller has already consumed and
// interpreted buf[0]); it returns the segment length and the number of
// header bytes consumed (not including the type byte).
func DecodeDataSegmentHeader(buf []byte) (length uint64, consumed int, err error) {
	return sdnv.Decode(buf)
}

// DecodeAckSegment parses the cumulative-byte-count SDNV following an
// ACK_SEGMENT type byte.
func DecodeAckSegment(buf []byte) (cumulative uint64, consumed int, err error) {
	return sdnv.Decode(buf)
}

// DecodeShutdown parses the optional reason/delay fields following a
// SHUTDOWN type byte, given its flags (as returned by SplitTypeByte).
func DecodeShutdown(flags byte, buf []byte) (reason *byte, delaySeconds *uint64, consumed int, err error) {
	pos := 0
	if flags&ShutdownFlagHasReason != 0 {
		if pos >= len(buf) {
			return nil, nil, 0, ErrTruncatedHdr
		}
		r := buf[pos]
		reason = &r
		pos++
	}
	if flags&ShutdownFlagHasDelay != 0 {
		d, n, derr := sdnv.Decode(buf[pos:])
		if derr != nil {
			return nil, nil, 0, derr
		}
		delaySeconds = &d
		pos += n
	}
	return reason, delaySeconds, pos, nil
}
