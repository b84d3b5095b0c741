/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package bpv6 implements the BPv6 wire codec: the dictionary, the
// primary-block processor (including the Compressed Bundle Header
// Encoding shortcut), and the typed extension-block framework.
package bpv6

import (
	"bytes"
	"errors"

	"github.com/dtnme-go/bpcore/eid"
)

var (
	ErrDictOffsetOutOfRange = errors.New("bpv6: dictionary offset out of range")
	ErrDictNotTerminated    = errors.New("bpv6: dictionary entry is not NUL-terminated")
	ErrDictInvalidEID       = errors.New("bpv6: extracted eid failed validation")
)

// Dictionary is the packed NUL-terminated-string buffer used by the BPv6
// primary block to avoid repeating EID text. It doubles from 64 bytes as
// needed, mirroring the realloc-doubling growth of
// servlib/bundling/Dictionary.cc add_str.
type Dictionary struct {
	buf []byte
}

// NewDictionary returns an empty dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{}
}

// Bytes returns the packed dictionary buffer.
func (d *Dictionary) Bytes() []byte { return d.buf }

// Len returns the number of bytes currently used in the dictionary.
func (d *Dictionary) Len() int { return len(d.buf) }

// SetBytes installs buf as the dictionary's backing store verbatim; used
// when parsing an incoming primary block's embedded dictionary.
func (d *Dictionary) SetBytes(buf []byte) {
	d.buf = append([]byte(nil), buf...)
}

// GetOffset returns the offset of s if it is already present as a whole
// entry (not merely a prefix of a longer entry).
func (d *Dictionary) GetOffset(s string) (offset int, ok bool) {
	off := 0
	for off < len(d.buf) {
		nul := bytes.IndexByte(d.buf[off:], 0)
		if nul < 0 {
			// Malformed buffer (shouldn't happen for buffers we built
			// ourselves); treat the remainder as one final entry.
			nul = len(d.buf) - off
		}
		entry := d.buf[off : off+nul]
		if len(entry) == len(s) && string(entry) == s {
			return off, true
		}
		off += nul + 1
	}
	return 0, false
}

// AddStr appends s as a new NUL-terminated entry, unless it is already
// present as a whole entry, in which case it is idempotent and returns the
// existing offset.
func (d *Dictionary) AddStr(s string) int {
	if off, ok := d.GetOffset(s); ok {
		return off
	}
	off := len(d.buf)
	if need := off + len(s) + 1; need > cap(d.buf) {
		newCap := cap(d.buf)
		if newCap < 64 {
			newCap = 64
		}
		for newCap < need {
			newCap *= 2
		}
		grown := make([]byte, off, newCap)
		copy(grown, d.buf)
		d.buf = grown
	}
	d.buf = append(d.buf, s...)
	d.buf = append(d.buf, 0)
	return off
}

// ExtractEID rebuilds scheme:ssp from two dictionary offsets. Both offsets
// must lie strictly within len(buf)-1 and must address NUL-terminated
// entries; the resulting EID must itself be Valid() or extraction fails.
func (d *Dictionary) ExtractEID(schemeOff, sspOff int) (eid.EndpointID, error) {
	if len(d.buf) == 0 {
		return eid.EndpointID{}, ErrDictOffsetOutOfRange
	}
	scheme, err := d.entryAt(schemeOff)
	if err != nil {
		return eid.EndpointID{}, err
	}
	ssp, err := d.entryAt(sspOff)
	if err != nil {
		return eid.EndpointID{}, err
	}
	e := eid.Assign(scheme, ssp)
	if !e.Valid() {
		return eid.EndpointID{}, ErrDictInvalidEID
	}
	return e, nil
}

// entryAt reads the NUL-terminated string starting at off.
func (d *Dictionary) entryAt(off int) (string, error) {
	if off < 0 || off >= len(d.buf)-1 {
		return "", ErrDictOffsetOutOfRange
	}
	nul := bytes.IndexByte(d.buf[off:], 0)
	if nul < 0 {
		return "", ErrDictNotTerminated
	}
	return string(d.buf[off : off+nul]), nil
}
