/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package stream implements the shared TCPCLv3/v4 stream engine:
// contact-header negotiation and message framing (spec.md §4.8), reused
// by cl/tcpclv3 and cl/tcpclv4 the way a single framed-protocol core
// can back several writer variants.
package stream

import (
	"encoding/binary"
	"errors"

	"github.com/dtnme-go/bpcore/sdnv"
)

// ContactHeaderMagic is the 4-byte "dtn!" magic that opens every TCPCL
// connection (spec.md §6).
var ContactHeaderMagic = [4]byte{0x64, 0x74, 0x6E, 0x21}

// Contact-header flag bits (TCPCLv3; TCPCLv4 negotiates its own set via
// SESS_INIT but the magic/version/length framing is identical).
const (
	FlagSegmentAckEnabled  byte = 1 << 0
	FlagReactiveFragEnabled byte = 1 << 1
	FlagNegativeAckEnabled  byte = 1 << 2
)

var (
	ErrBadMagic       = errors.New("stream: contact header magic mismatch")
	ErrTruncatedHdr   = errors.New("stream: contact header truncated")
)

// ContactHeader is the four-field v3 contact header, or the subset of a
// v4 header shared across both versions (magic/version/flags/keepalive
// are byte-identical; v4's EID announcement moves into SESS_INIT, so
// LocalEID is only populated/consumed for v3).
type ContactHeader struct {
	Version           uint8
	Flags             byte
	KeepaliveInterval uint16
	LocalEID          string // v3 only; empty and ignored for v4
}

// Encode serializes h. For v4 callers, pass LocalEID == "" so no EID
// segment is appended.
func (h ContactHeader) Encode() []byte {
	out := make([]byte, 0, 8+len(h.LocalEID))
	out = append(out, ContactHeaderMagic[:]...)
	out = append(out, h.Version, h.Flags)
	var kaBuf [2]byte
	binary.BigEndian.PutUint16(kaBuf[:], h.KeepaliveInterval)
	out = append(out, kaBuf[:]...)
	if h.Version == 3 {
		out = sdnv.Append(out, uint64(len(h.LocalEID)))
		out = append(out, h.LocalEID...)
	}
	return out
}

// DecodeContactHeader parses the fixed fields (magic/version/flags/
// keepalive) plus, when version==3, the SDNV-length-prefixed EID.
// Returns the number of bytes consumed.
func DecodeContactHeader(buf []byte) (ContactHeader, int, error) {
	if len(buf) < 8 {
		return ContactHeader{}, 0, ErrTruncatedHdr
	}
	if buf[0] != ContactHeaderMagic[0] || buf[1] != ContactHeaderMagic[1] ||
		buf[2] != ContactHeaderMagic[2] || buf[3] != ContactHeaderMagic[3] {
		return ContactHeader{}, 0, ErrBadMagic
	}
	h := ContactHeader{
		Version:           buf[4],
		Flags:             buf[5],
		KeepaliveInterval: binary.BigEndian.Uint16(buf[6:8]),
	}
	pos := 8
	if h.Version == 3 {
		eidLen, n, err := sdnv.Decode(buf[pos:])
		if err != nil {
			return ContactHeader{}, 0, err
		}
		pos += n
		if uint64(len(buf)-pos) < eidLen {
			return ContactHeader{}, 0, ErrTruncatedHdr
		}
		h.LocalEID = string(buf[pos : pos+int(eidLen)])
		pos += int(eidLen)
	}
	return h, pos, nil
}

// NegotiateKeepalive returns the minimum of the two sides' advertised
// keepalive intervals, per spec.md §4.8.
func NegotiateKeepalive(ours, theirs uint16) uint16 {
	if ours < theirs {
		return ours
	}
	return theirs
}

// NegotiateFlags returns the intersection (bitwise AND) of two sides'
// advertised feature flags, per spec.md §4.8 ("the union of features is
// the intersection of both sides' advertisement"): a feature is active
// only when both sides offered it.
func NegotiateFlags(ours, theirs byte) byte {
	return ours & theirs
}
