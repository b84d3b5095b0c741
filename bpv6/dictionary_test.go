/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package bpv6

import "testing"

func TestDictionaryAddStrIdempotent(t *testing.T) {
	d := NewDictionary()
	off1 := d.AddStr("dtn://host")
	before := append([]byte(nil), d.Bytes()...)
	off2 := d.AddStr("dtn://host")
	if off1 != off2 {
		t.Fatalf("AddStr not idempotent: %d != %d", off1, off2)
	}
	if string(before) != string(d.Bytes()) {
		t.Fatal("dictionary bytes changed on duplicate AddStr")
	}
}

func TestDictionaryPrefixDoesNotCollide(t *testing.T) {
	d := NewDictionary()
	off := d.AddStr("dtn")
	_, ok := d.GetOffset("dtn://host")
	if ok {
		t.Fatal("GetOffset should not match a whole string against a prefix entry")
	}
	if got, ok := d.GetOffset("dtn"); !ok || got != off {
		t.Fatalf("GetOffset(dtn) = (%d, %v), want (%d, true)", got, ok, off)
	}
}

func TestDictionaryExtractEID(t *testing.T) {
	d := NewDictionary()
	schemeOff := d.AddStr("dtn")
	sspOff := d.AddStr("//host/app")

	e, err := d.ExtractEID(schemeOff, sspOff)
	if err != nil {
		t.Fatal(err)
	}
	if e.String() != "dtn://host/app" {
		t.Fatalf("ExtractEID = %q", e.String())
	}
}

func TestDictionaryExtractEIDBoundaries(t *testing.T) {
	d := NewDictionary()
	d.AddStr("dtn")
	d.AddStr("//host")
	last := d.Len() - 1 // the trailing NUL byte of the last entry

	if _, err := d.ExtractEID(0, last); err != ErrDictOffsetOutOfRange {
		t.Fatalf("expected ErrDictOffsetOutOfRange at length-1, got %v", err)
	}
	if _, err := d.ExtractEID(0, last-len("//host")); err != nil {
		t.Fatalf("expected the last valid offset to succeed, got %v", err)
	}
}

func TestDictionaryExtractEIDInvalidResult(t *testing.T) {
	d := NewDictionary()
	// An empty-string scheme entry makes the reconstructed EID invalid
	// (no scheme), even though both offsets are individually in range.
	emptySchemeOff := d.AddStr("")
	sspOff := d.AddStr("something")
	if _, err := d.ExtractEID(emptySchemeOff, sspOff); err != ErrDictInvalidEID {
		t.Fatalf("expected ErrDictInvalidEID, got %v", err)
	}
}
