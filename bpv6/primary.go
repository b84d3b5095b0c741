/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package bpv6

import (
	"errors"

	"github.com/dtnme-go/bpcore/eid"
	"github.com/dtnme-go/bpcore/sdnv"
)

// CurrentVersion is the BPv6 primary-block version byte this codec
// produces and the only version it accepts on parse.
const CurrentVersion uint8 = 6

var (
	ErrVersionMismatch  = errors.New("bpv6: primary block version mismatch")
	ErrTruncatedPrimary = errors.New("bpv6: primary block truncated")
	ErrBadBlockLength   = errors.New("bpv6: primary block advertised incorrect length")
	ErrDictionaryNoNul  = errors.New("bpv6: embedded dictionary does not end with NUL")
	ErrFragmentTooLarge = errors.New("bpv6: fragment offset or length exceeds 32 bits")
)

// PrimaryHeader is the decoded/encodable shape of a BPv6 primary block,
// independent of the richer bundle.Bundle type that owns it. This keeps
// the wire codec free of any dependency on bundle state beyond what is
// serialized. bundle.Bundle converts to/from this type.
type PrimaryHeader struct {
	ProcessingFlags ProcessingFlags

	Dest, Source, ReplyTo, Custodian eid.EndpointID

	CreationSeconds  uint64
	CreationSeqno    uint64
	Lifetime         uint64

	IsFragment bool
	FragOffset uint64
	OrigLength uint64
}

// cbheEligible reports whether all four EIDs are ipn-scheme, or null for
// replyto/custodian. spec.md states "all four EIDs are in the ipn
// scheme" but PrimaryBlockProcessor::prepare special-cases the null EID
// for replyto/custodian ("replyto == NULL_EID || replyto.scheme == ipn"),
// which this codec follows since dtn:none has no scheme-specific part to
// encode as ipn node/service anyway.
func cbheEligible(h PrimaryHeader) bool {
	if _, _, ok := eid.ParseIPN(h.Custodian); !ok && !h.Custodian.IsNull() {
		return false
	}
	if _, _, ok := eid.ParseIPN(h.Dest); !ok {
		return false
	}
	if _, _, ok := eid.ParseIPN(h.Source); !ok {
		return false
	}
	if _, _, ok := eid.ParseIPN(h.ReplyTo); !ok && !h.ReplyTo.IsNull() {
		return false
	}
	return true
}

func ipnOffsets(e eid.EndpointID) (node, service uint64) {
	if e.IsNull() {
		return 0, 0
	}
	node, service, _ = eid.ParseIPN(e)
	return
}

// EncodePrimary serializes h (and, when CBHE does not apply, dict's
// contents) into the canonical BPv6 primary-block wire form described in
// spec.md §4.4.
func EncodePrimary(h PrimaryHeader, dict *Dictionary) []byte {
	var destSchemeOff, destSSPOff uint64
	var srcSchemeOff, srcSSPOff uint64
	var rtSchemeOff, rtSSPOff uint64
	var custSchemeOff, custSSPOff uint64
	var dictLen uint64

	if cbheEligible(h) {
		destSchemeOff, destSSPOff = ipnOffsets(h.Dest)
		srcSchemeOff, srcSSPOff = ipnOffsets(h.Source)
		rtSchemeOff, rtSSPOff = ipnOffsets(h.ReplyTo)
		custSchemeOff, custSSPOff = ipnOffsets(h.Custodian)
		dictLen = 0
	} else {
		d := NewDictionary()
		destSchemeOff = uint64(d.AddStr(h.Dest.Scheme))
		destSSPOff = uint64(d.AddStr(h.Dest.SSP))
		srcSchemeOff = uint64(d.AddStr(h.Source.Scheme))
		srcSSPOff = uint64(d.AddStr(h.Source.SSP))
		rtSchemeOff = uint64(d.AddStr(h.ReplyTo.Scheme))
		rtSSPOff = uint64(d.AddStr(h.ReplyTo.SSP))
		custSchemeOff = uint64(d.AddStr(h.Custodian.Scheme))
		custSSPOff = uint64(d.AddStr(h.Custodian.SSP))
		dictLen = uint64(d.Len())
		if dict != nil {
			dict.SetBytes(d.Bytes())
		} else {
			dict = d
		}
	}

	blockLen := sdnv.EncodingLen(destSchemeOff) + sdnv.EncodingLen(destSSPOff) +
		sdnv.EncodingLen(srcSchemeOff) + sdnv.EncodingLen(srcSSPOff) +
		sdnv.EncodingLen(rtSchemeOff) + sdnv.EncodingLen(rtSSPOff) +
		sdnv.EncodingLen(custSchemeOff) + sdnv.EncodingLen(custSSPOff) +
		sdnv.EncodingLen(h.CreationSeconds) + sdnv.EncodingLen(h.CreationSeqno) +
		sdnv.EncodingLen(h.Lifetime) + sdnv.EncodingLen(dictLen) + int(dictLen)
	if h.IsFragment {
		blockLen += sdnv.EncodingLen(h.FragOffset) + sdnv.EncodingLen(h.OrigLength)
	}

	out := make([]byte, 0, 1+sdnv.MaxEncodedLen*2+blockLen)
	out = append(out, CurrentVersion)
	out = sdnv.Append(out, uint64(h.ProcessingFlags))
	out = sdnv.Append(out, uint64(blockLen))
	out = sdnv.Append(out, destSchemeOff)
	out = sdnv.Append(out, destSSPOff)
	out = sdnv.Append(out, srcSchemeOff)
	out = sdnv.Append(out, srcSSPOff)
	out = sdnv.Append(out, rtSchemeOff)
	out = sdnv.Append(out, rtSSPOff)
	out = sdnv.Append(out, custSchemeOff)
	out = sdnv.Append(out, custSSPOff)
	out = sdnv.Append(out, h.CreationSeconds)
	out = sdnv.Append(out, h.CreationSeqno)
	out = sdnv.Append(out, h.Lifetime)
	out = sdnv.Append(out, dictLen)
	if dictLen > 0 {
		out = append(out, dict.Bytes()...)
	}
	if h.IsFragment {
		out = sdnv.Append(out, h.FragOffset)
		out = sdnv.Append(out, h.OrigLength)
	}
	return out
}

// DecodePrimary parses a serialized primary block, returning the decoded
// header, the embedded dictionary (nil when CBHE applied), and the number
// of bytes consumed.
func DecodePrimary(buf []byte) (h PrimaryHeader, dict *Dictionary, consumed int, err error) {
	if len(buf) < 1 {
		return PrimaryHeader{}, nil, 0, ErrTruncatedPrimary
	}
	version := buf[0]
	if version != CurrentVersion {
		return PrimaryHeader{}, nil, 0, ErrVersionMismatch
	}
	pos := 1

	flags, n, err := sdnv.Decode(buf[pos:])
	if err != nil {
		return PrimaryHeader{}, nil, 0, err
	}
	pos += n
	h.ProcessingFlags = ProcessingFlags(flags)

	blockLen, n, err := sdnv.Decode(buf[pos:])
	if err != nil {
		return PrimaryHeader{}, nil, 0, err
	}
	pos += n

	if uint64(len(buf)-pos) < blockLen {
		return PrimaryHeader{}, nil, 0, ErrBadBlockLength
	}

	var offs [8]uint64
	for i := range offs {
		v, n, err := sdnv.Decode(buf[pos:])
		if err != nil {
			return PrimaryHeader{}, nil, 0, err
		}
		offs[i] = v
		pos += n
	}
	destSchemeOff, destSSPOff := offs[0], offs[1]
	srcSchemeOff, srcSSPOff := offs[2], offs[3]
	rtSchemeOff, rtSSPOff := offs[4], offs[5]
	custSchemeOff, custSSPOff := offs[6], offs[7]

	h.CreationSeconds, n, err = sdnv.Decode(buf[pos:])
	if err != nil {
		return PrimaryHeader{}, nil, 0, err
	}
	pos += n
	h.CreationSeqno, n, err = sdnv.Decode(buf[pos:])
	if err != nil {
		return PrimaryHeader{}, nil, 0, err
	}
	pos += n
	h.Lifetime, n, err = sdnv.Decode(buf[pos:])
	if err != nil {
		return PrimaryHeader{}, nil, 0, err
	}
	pos += n

	dictLen, n, err := sdnv.Decode(buf[pos:])
	if err != nil {
		return PrimaryHeader{}, nil, 0, err
	}
	pos += n

	if uint64(len(buf)-pos) < dictLen {
		return PrimaryHeader{}, nil, 0, ErrBadBlockLength
	}

	if dictLen == 0 {
		// CBHE: the "offset" SDNVs directly carry ipn node/service pairs.
		h.Dest = eid.IPN(destSchemeOff, destSSPOff)
		h.Source = eid.IPN(srcSchemeOff, srcSSPOff)
		h.ReplyTo = eid.IPN(rtSchemeOff, rtSSPOff)
		h.Custodian = eid.IPN(custSchemeOff, custSSPOff)
	} else {
		dictBytes := buf[pos : pos+int(dictLen)]
		if dictBytes[dictLen-1] != 0 {
			return PrimaryHeader{}, nil, 0, ErrDictionaryNoNul
		}
		dict = NewDictionary()
		dict.SetBytes(dictBytes)
		pos += int(dictLen)

		if h.Dest, err = dict.ExtractEID(int(destSchemeOff), int(destSSPOff)); err != nil {
			return PrimaryHeader{}, nil, 0, err
		}
		if h.Source, err = dict.ExtractEID(int(srcSchemeOff), int(srcSSPOff)); err != nil {
			return PrimaryHeader{}, nil, 0, err
		}
		if h.ReplyTo, err = dict.ExtractEID(int(rtSchemeOff), int(rtSSPOff)); err != nil {
			return PrimaryHeader{}, nil, 0, err
		}
		if h.Custodian, err = dict.ExtractEID(int(custSchemeOff), int(custSSPOff)); err != nil {
			return PrimaryHeader{}, nil, 0, err
		}
	}

	h.IsFragment = h.ProcessingFlags.Has(FlagIsFragment)
	if h.IsFragment {
		fo, n, err := sdnv.Decode(buf[pos:])
		if err != nil {
			return PrimaryHeader{}, nil, 0, err
		}
		if fo > 0xffffffff {
			return PrimaryHeader{}, nil, 0, ErrFragmentTooLarge
		}
		pos += n
		h.FragOffset = fo

		ol, n, err := sdnv.Decode(buf[pos:])
		if err != nil {
			return PrimaryHeader{}, nil, 0, err
		}
		if ol > 0xffffffff {
			return PrimaryHeader{}, nil, 0, ErrFragmentTooLarge
		}
		pos += n
		h.OrigLength = ol
	}

	return h, dict, pos, nil
}
