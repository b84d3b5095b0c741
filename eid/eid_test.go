/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package eid

import "testing"

func TestParse(t *testing.T) {
	e, err := Parse("dtn://host/app")
	if err != nil {
		t.Fatal(err)
	}
	if e.Scheme != "dtn" || e.SSP != "//host/app" {
		t.Fatalf("unexpected parse: %+v", e)
	}
	if !e.Valid() {
		t.Fatal("expected valid")
	}
}

func TestParseMissingColon(t *testing.T) {
	if _, err := Parse("nocolonhere"); err != ErrMissingColon {
		t.Fatalf("expected ErrMissingColon, got %v", err)
	}
}

func TestNullEID(t *testing.T) {
	n := Null()
	if n.String() != NullEID {
		t.Fatalf("Null() = %q, want %q", n.String(), NullEID)
	}
	if !n.IsNull() {
		t.Fatal("expected IsNull")
	}
	other, _ := Parse("dtn:none2")
	if other.Equal(n) {
		t.Fatal("dtn:none2 must not equal dtn:none")
	}
}

func TestIPNRoundTrip(t *testing.T) {
	e := IPN(12, 34)
	if e.String() != "ipn:12.34" {
		t.Fatalf("IPN string = %q", e.String())
	}
	node, svc, ok := ParseIPN(e)
	if !ok || node != 12 || svc != 34 {
		t.Fatalf("ParseIPN = (%d, %d, %v)", node, svc, ok)
	}
}

func TestParseIPNFailureLeavesNoPartialState(t *testing.T) {
	bad, _ := Parse("ipn:notanumber")
	if _, _, ok := ParseIPN(bad); ok {
		t.Fatal("expected ParseIPN to fail on malformed ssp")
	}
	bad2, _ := Parse("ipn:12")
	if _, _, ok := ParseIPN(bad2); ok {
		t.Fatal("expected ParseIPN to fail without a '.'")
	}
}

func TestPatternWildcards(t *testing.T) {
	any := MustCompilePattern("*:*")
	d1, _ := Parse("dtn://d1")
	if !any.Match(d1) {
		t.Fatal("*:* should match anything")
	}

	schemeOnly := MustCompilePattern("dtn:*")
	ipnE := IPN(1, 2)
	if schemeOnly.Match(ipnE) {
		t.Fatal("dtn:* must not match an ipn EID")
	}
	if !schemeOnly.Match(d1) {
		t.Fatal("dtn:* should match dtn://d1")
	}

	pathExt := MustCompilePattern("dtn://d2/*")
	base, _ := Parse("dtn://d2")
	child, _ := Parse("dtn://d2/sub")
	if !pathExt.Match(base) {
		t.Fatal("dtn://d2/* should also match the bare dtn://d2")
	}
	if !pathExt.Match(child) {
		t.Fatal("dtn://d2/* should match dtn://d2/sub")
	}
}

func TestPatternExactEquality(t *testing.T) {
	a := MustCompilePattern("dtn://d1")
	b := MustCompilePattern("dtn://d1")
	c := MustCompilePattern("dtn://d2")
	if !a.Equal(b) {
		t.Fatal("identical pattern text should be Equal")
	}
	if a.Equal(c) {
		t.Fatal("different pattern text should not be Equal")
	}
}
