/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package bpv6

import (
	"testing"

	"github.com/dtnme-go/bpcore/eid"
)

func sampleHeader() PrimaryHeader {
	src, _ := eid.Parse("dtn://sender/app")
	dst, _ := eid.Parse("dtn://receiver/app")
	return PrimaryHeader{
		ProcessingFlags: ProcessingFlags(0).
			With(FlagSingletonDest, true).
			WithPriority(PriorityExpedited).
			WithStatusReportRequest(SRRDelivered | SRRReceived),
		Dest:            dst,
		Source:          src,
		ReplyTo:         eid.Null(),
		Custodian:       eid.Null(),
		CreationSeconds: 700000000,
		CreationSeqno:   1,
		Lifetime:        3600,
	}
}

func TestPrimaryRoundTripDictionary(t *testing.T) {
	h := sampleHeader()
	wire := EncodePrimary(h, nil)

	got, _, n, err := DecodePrimary(wire)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(wire) {
		t.Fatalf("consumed %d, want %d", n, len(wire))
	}
	if !got.Dest.Equal(h.Dest) || !got.Source.Equal(h.Source) {
		t.Fatalf("eid mismatch: %+v", got)
	}
	if got.ProcessingFlags != h.ProcessingFlags {
		t.Fatalf("flags mismatch: got %x want %x", got.ProcessingFlags, h.ProcessingFlags)
	}
	if got.CreationSeconds != h.CreationSeconds || got.CreationSeqno != h.CreationSeqno || got.Lifetime != h.Lifetime {
		t.Fatalf("timestamp/lifetime mismatch: %+v", got)
	}
}

func TestPrimaryReservedFlagBitsSurviveRoundTrip(t *testing.T) {
	h := sampleHeader()
	// Bit 6 and bits 9-13 are reserved/unused by this codec; set one and
	// confirm it survives serialize/parse untouched.
	h.ProcessingFlags |= 1 << 6
	wire := EncodePrimary(h, nil)
	got, _, _, err := DecodePrimary(wire)
	if err != nil {
		t.Fatal(err)
	}
	if !got.ProcessingFlags.Has(1 << 6) {
		t.Fatal("reserved bit 6 did not survive round trip")
	}
}

func TestPrimaryFragmentFields(t *testing.T) {
	h := sampleHeader()
	h.IsFragment = true
	h.ProcessingFlags = h.ProcessingFlags.With(FlagIsFragment, true)
	h.FragOffset = 4096
	h.OrigLength = 1 << 20

	wire := EncodePrimary(h, nil)
	got, _, _, err := DecodePrimary(wire)
	if err != nil {
		t.Fatal(err)
	}
	if !got.IsFragment || got.FragOffset != h.FragOffset || got.OrigLength != h.OrigLength {
		t.Fatalf("fragment fields mismatch: %+v", got)
	}
}

func TestCBHEEquivalence(t *testing.T) {
	h := PrimaryHeader{
		Dest:            eid.IPN(2, 1),
		Source:          eid.IPN(1, 0),
		ReplyTo:         eid.Null(),
		Custodian:       eid.Null(),
		CreationSeconds: 1,
		CreationSeqno:   1,
		Lifetime:        60,
	}

	cbheWire := EncodePrimary(h, nil)
	cbheGot, dict, _, err := DecodePrimary(cbheWire)
	if err != nil {
		t.Fatal(err)
	}
	if dict != nil {
		t.Fatal("CBHE-eligible bundle should not carry a dictionary")
	}

	// Force the dictionary-based path by using a custodian outside the
	// ipn scheme so CBHE cannot apply, then compare against a
	// dictionary-free bundle with the same ipn EIDs and a null custodian.
	h2 := h
	h2.Custodian, _ = eid.Parse("dtn://custodian")
	d := NewDictionary()
	wire2 := EncodePrimary(h2, d)
	dictGot, dict2, _, err := DecodePrimary(wire2)
	if err != nil {
		t.Fatal(err)
	}
	if dict2 == nil {
		t.Fatal("a non-ipn custodian should force the dictionary-based encoding")
	}

	if !cbheGot.Dest.Equal(dictGot.Dest) || !cbheGot.Source.Equal(dictGot.Source) {
		t.Fatalf("CBHE and dictionary encodings disagree: %+v vs %+v", cbheGot, dictGot)
	}
}

func TestDecodePrimaryVersionMismatch(t *testing.T) {
	wire := EncodePrimary(sampleHeader(), nil)
	wire[0] = 5
	if _, _, _, err := DecodePrimary(wire); err != ErrVersionMismatch {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestDecodePrimaryTruncated(t *testing.T) {
	wire := EncodePrimary(sampleHeader(), nil)
	if _, _, _, err := DecodePrimary(wire[:3]); err == nil {
		t.Fatal("expected an error decoding a truncated primary block")
	}
}

func TestDictionaryNoTrailingNUL(t *testing.T) {
	h := sampleHeader()
	d := NewDictionary()
	wire := EncodePrimary(h, d)
	// Corrupt the dictionary's final NUL terminator, which is also the
	// bundle's final byte since h has no fragment fields.
	wire[len(wire)-1] = 'x'
	if _, _, _, err := DecodePrimary(wire); err != ErrDictionaryNoNul {
		t.Fatalf("expected ErrDictionaryNoNul, got %v", err)
	}
}
