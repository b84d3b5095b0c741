/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package connctl implements the connection lifecycle controller shared
// by every stream-oriented convergence layer (spec.md §4.7): a command
// queue, inflight/incoming bookkeeping with sparse ack/receive bitmaps,
// contact-up/contact-broken one-way latches, and reactive-fragmentation
// salvage on teardown.
package connctl

import "sort"

// SparseBitmap tracks disjoint byte ranges acknowledged or received out
// of order, as spec.md §3 requires for InFlightBundle.ack_data and
// IncomingBundle.rcvd_data. Ranges are stored merged and sorted so
// NumContiguous is O(log n) amortized rather than O(total bytes).
type SparseBitmap struct {
	ranges []byteRange // sorted, merged, non-adjacent, non-overlapping
}

type byteRange struct {
	start, end int64 // [start, end)
}

// Add records [offset, offset+length) as covered, merging with any
// adjacent or overlapping ranges.
func (s *SparseBitmap) Add(offset, length int64) {
	if length <= 0 {
		return
	}
	nr := byteRange{offset, offset + length}
	idx := sort.Search(len(s.ranges), func(i int) bool { return s.ranges[i].start >= nr.start })

	merged := append([]byteRange{}, s.ranges[:idx]...)
	merged = append(merged, nr)
	merged = append(merged, s.ranges[idx:]...)

	out := merged[:1]
	for _, r := range merged[1:] {
		last := &out[len(out)-1]
		if r.start <= last.end {
			if r.end > last.end {
				last.end = r.end
			}
			continue
		}
		out = append(out, r)
	}
	s.ranges = out
}

// NumContiguous returns the number of bytes covered starting from
// offset 0 with no gap, i.e. the largest n such that [0, n) is fully
// covered. This is "sent_data.num_contiguous()" / the acked-prefix
// length spec.md §8 refers to.
func (s *SparseBitmap) NumContiguous() int64 {
	if len(s.ranges) == 0 || s.ranges[0].start != 0 {
		return 0
	}
	return s.ranges[0].end
}

// Covered reports whether every byte in [offset, offset+length) has been
// recorded.
func (s *SparseBitmap) Covered(offset, length int64) bool {
	end := offset + length
	for _, r := range s.ranges {
		if r.start <= offset && r.end >= end {
			return true
		}
	}
	return false
}

// Empty reports whether any bytes at all have been recorded.
func (s *SparseBitmap) Empty() bool { return len(s.ranges) == 0 }

// LastEnd returns the end offset of the last (highest) range, or 0 if
// the bitmap is empty: the "acked_length"/high-water mark.
func (s *SparseBitmap) LastEnd() int64 {
	if len(s.ranges) == 0 {
		return 0
	}
	return s.ranges[len(s.ranges)-1].end
}
