/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package tcpclv4

import (
	"encoding/binary"
	"errors"
)

// MsgType is the single message-header byte of spec.md §4.9.
type MsgType byte

const (
	MsgXferSegment MsgType = 1
	MsgXferAck     MsgType = 2
	MsgXferRefuse  MsgType = 3
	MsgKeepalive   MsgType = 4
	MsgSessTerm    MsgType = 5
	MsgMsgReject   MsgType = 6
	MsgSessInit    MsgType = 7
)

// XFER_SEGMENT flags.
const (
	XferFlagEnd   byte = 0x01
	XferFlagStart byte = 0x02
)

// XFER_REFUSE reason codes.
const (
	RefuseUnknown        byte = 0
	RefuseCompleted      byte = 1
	RefuseNoResources    byte = 2
	RefuseRetransmit     byte = 3
	RefuseNotAcceptable  byte = 4
	RefuseExtensionFault byte = 5
)

// MSG_REJECT reason codes.
const (
	RejectUnknownMessage byte = 1
	RejectUnsupported    byte = 2
	RejectUnexpected     byte = 3
)

// Transfer extension item types.
const TransferExtTransferLength uint16 = 0x0001

const ExtItemCritical byte = 0x01

var (
	ErrUnknownMessageType = errors.New("tcpclv4: unrecognized message header byte")
	ErrTruncated          = errors.New("tcpclv4: message truncated")
)

// SessInit is the SESS_INIT message body negotiated immediately after the
// shared contact header.
type SessInit struct {
	KeepaliveInterval uint16
	SegmentMRU        uint64
	TransferMRU       uint64
	NodeID            string
	// ExtensionItems is carried opaquely: this core neither emits nor
	// consumes session extension items beyond the empty list.
	ExtensionItems []byte
}

func EncodeSessInit(s SessInit) []byte {
	out := []byte{byte(MsgSessInit)}
	var ka [2]byte
	binary.BigEndian.PutUint16(ka[:], s.KeepaliveInterval)
	out = append(out, ka[:]...)
	out = appendU64(out, s.SegmentMRU)
	out = appendU64(out, s.TransferMRU)
	out = appendU16(out, uint16(len(s.NodeID)))
	out = append(out, s.NodeID...)
	out = appendU32(out, uint32(len(s.ExtensionItems)))
	out = append(out, s.ExtensionItems...)
	return out
}

// DecodeSessInit parses a SESS_INIT body (buf excludes the message header
// byte, which the caller has already consumed).
func DecodeSessInit(buf []byte) (SessInit, int, error) {
	pos := 0
	need := func(n int) error {
		if len(buf)-pos < n {
			return ErrTruncated
		}
		return nil
	}
	if err := need(2 + 8 + 8 + 2); err != nil {
		return SessInit{}, 0, err
	}
	var s SessInit
	s.KeepaliveInterval = binary.BigEndian.Uint16(buf[pos:])
	pos += 2
	s.SegmentMRU = binary.BigEndian.Uint64(buf[pos:])
	pos += 8
	s.TransferMRU = binary.BigEndian.Uint64(buf[pos:])
	pos += 8
	nodeLen := int(binary.BigEndian.Uint16(buf[pos:]))
	pos += 2
	if err := need(nodeLen + 4); err != nil {
		return SessInit{}, 0, err
	}
	s.NodeID = string(buf[pos : pos+nodeLen])
	pos += nodeLen
	extLen := int(binary.BigEndian.Uint32(buf[pos:]))
	pos += 4
	if err := need(extLen); err != nil {
		return SessInit{}, 0, err
	}
	s.ExtensionItems = append([]byte(nil), buf[pos:pos+extLen]...)
	pos += extLen
	return s, pos, nil
}

// EncodeTransferLengthItem builds a single critical TRANSFER_LENGTH
// transfer-extension item carrying length.
func EncodeTransferLengthItem(length uint64) []byte {
	out := []byte{ExtItemCritical}
	out = appendU16(out, TransferExtTransferLength)
	out = appendU16(out, 8)
	out = appendU64(out, length)
	return out
}

// DecodeTransferLengthItem extracts the TRANSFER_LENGTH value from a
// transfer-extension-items blob, if present.
func DecodeTransferLengthItem(items []byte) (length uint64, present bool) {
	pos := 0
	for pos+5 <= len(items) {
		pos++ // flags
		typ := binary.BigEndian.Uint16(items[pos:])
		pos += 2
		l := int(binary.BigEndian.Uint16(items[pos:]))
		pos += 2
		if pos+l > len(items) {
			return 0, false
		}
		if typ == TransferExtTransferLength && l == 8 {
			return binary.BigEndian.Uint64(items[pos:]), true
		}
		pos += l
	}
	return 0, false
}

// EncodeXferSegment produces XFER_SEGMENT for transferID with flags,
// optional extItems (only meaningful when XferFlagStart is set), and
// data.
func EncodeXferSegment(transferID uint64, flags byte, extItems []byte, data []byte) []byte {
	out := []byte{byte(MsgXferSegment)}
	out = appendU64(out, transferID)
	out = append(out, flags)
	if flags&XferFlagStart != 0 {
		out = appendU32(out, uint32(len(extItems)))
		out = append(out, extItems...)
	}
	out = appendU64(out, uint64(len(data)))
	out = append(out, data...)
	return out
}

// DecodeXferSegmentHeader parses everything up to (not including) the
// data bytes, returning the data length and bytes consumed.
func DecodeXferSegmentHeader(buf []byte) (transferID uint64, flags byte, extItems []byte, dataLen uint64, consumed int, err error) {
	pos := 0
	if len(buf) < 9 {
		return 0, 0, nil, 0, 0, ErrTruncated
	}
	transferID = binary.BigEndian.Uint64(buf[pos:])
	pos += 8
	flags = buf[pos]
	pos++
	if flags&XferFlagStart != 0 {
		if len(buf)-pos < 4 {
			return 0, 0, nil, 0, 0, ErrTruncated
		}
		extLen := int(binary.BigEndian.Uint32(buf[pos:]))
		pos += 4
		if len(buf)-pos < extLen {
			return 0, 0, nil, 0, 0, ErrTruncated
		}
		extItems = append([]byte(nil), buf[pos:pos+extLen]...)
		pos += extLen
	}
	if len(buf)-pos < 8 {
		return 0, 0, nil, 0, 0, ErrTruncated
	}
	dataLen = binary.BigEndian.Uint64(buf[pos:])
	pos += 8
	return transferID, flags, extItems, dataLen, pos, nil
}

// EncodeXferAck produces XFER_ACK for transferID acknowledging
// ackedLength bytes.
func EncodeXferAck(transferID uint64, flags byte, ackedLength uint64) []byte {
	out := []byte{byte(MsgXferAck)}
	out = appendU64(out, transferID)
	out = append(out, flags)
	out = appendU64(out, ackedLength)
	return out
}

func DecodeXferAck(buf []byte) (transferID uint64, flags byte, ackedLength uint64, consumed int, err error) {
	if len(buf) < 17 {
		return 0, 0, 0, 0, ErrTruncated
	}
	transferID = binary.BigEndian.Uint64(buf)
	flags = buf[8]
	ackedLength = binary.BigEndian.Uint64(buf[9:])
	return transferID, flags, ackedLength, 17, nil
}

func EncodeXferRefuse(reason byte, transferID uint64) []byte {
	out := []byte{byte(MsgXferRefuse), reason}
	return appendU64(out, transferID)
}

func DecodeXferRefuse(buf []byte) (reason byte, transferID uint64, consumed int, err error) {
	if len(buf) < 9 {
		return 0, 0, 0, ErrTruncated
	}
	return buf[0], binary.BigEndian.Uint64(buf[1:]), 9, nil
}

func EncodeKeepalive() []byte { return []byte{byte(MsgKeepalive)} }

func EncodeSessTerm(flags, reason byte) []byte {
	return []byte{byte(MsgSessTerm), flags, reason}
}

func DecodeSessTerm(buf []byte) (flags, reason byte, consumed int, err error) {
	if len(buf) < 2 {
		return 0, 0, 0, ErrTruncated
	}
	return buf[0], buf[1], 2, nil
}

func EncodeMsgReject(reason byte, rejectedHeader byte) []byte {
	return []byte{byte(MsgMsgReject), reason, rejectedHeader}
}

func DecodeMsgReject(buf []byte) (reason, rejectedHeader byte, consumed int, err error) {
	if len(buf) < 2 {
		return 0, 0, 0, ErrTruncated
	}
	return buf[0], buf[1], 2, nil
}

func appendU16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}
