/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package connctl

import "testing"

func TestSparseBitmapContiguous(t *testing.T) {
	var b SparseBitmap
	b.Add(0, 100)
	if b.NumContiguous() != 100 {
		t.Fatalf("NumContiguous = %d, want 100", b.NumContiguous())
	}
	b.Add(200, 50)
	if b.NumContiguous() != 100 {
		t.Fatalf("out-of-order ack should not extend contiguous prefix: %d", b.NumContiguous())
	}
	b.Add(100, 100)
	if b.NumContiguous() != 250 {
		t.Fatalf("filling the gap should merge ranges: %d", b.NumContiguous())
	}
}

func TestSparseBitmapOutOfOrderArrival(t *testing.T) {
	var b SparseBitmap
	b.Add(50, 50)
	b.Add(0, 50)
	if b.NumContiguous() != 100 {
		t.Fatalf("ack arrival order should not affect correctness: %d", b.NumContiguous())
	}
}

func TestSparseBitmapEmpty(t *testing.T) {
	var b SparseBitmap
	if !b.Empty() || b.NumContiguous() != 0 {
		t.Fatal("zero-value bitmap should be empty with zero contiguous bytes")
	}
}

func TestSparseBitmapCovered(t *testing.T) {
	var b SparseBitmap
	b.Add(0, 10)
	b.Add(20, 10)
	if !b.Covered(0, 10) {
		t.Fatal("expected [0,10) covered")
	}
	if b.Covered(5, 10) {
		t.Fatal("expected [5,15) not covered due to the gap")
	}
}
