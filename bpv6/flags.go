/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package bpv6

// ProcessingFlags is the BPv6 primary-block processing-flags word, packed
// per spec.md §4.4: fragment (bit 0), admin (bit 1), do-not-fragment
// (bit 2), custody-requested (bit 3), singleton-dest (bit 4), app-ack
// (bit 5), priority (bits 7-8), status-report-requests (bits 14-18).
// Reserved bits (6, 9-13, 19+) are preserved verbatim across parse and
// re-serialize.
type ProcessingFlags uint64

const (
	FlagIsFragment        ProcessingFlags = 1 << 0
	FlagIsAdminRecord     ProcessingFlags = 1 << 1
	FlagDoNotFragment     ProcessingFlags = 1 << 2
	FlagCustodyRequested  ProcessingFlags = 1 << 3
	FlagSingletonDest     ProcessingFlags = 1 << 4
	FlagAppAcked          ProcessingFlags = 1 << 5

	priorityShift = 7
	priorityMask  ProcessingFlags = 0x3 << priorityShift

	srrShift = 14
	srrMask  ProcessingFlags = 0x1f << srrShift
)

// Priority is the 2-bit class-of-service field.
type Priority uint8

const (
	PriorityBulk      Priority = 0
	PriorityNormal    Priority = 1
	PriorityExpedited Priority = 2
)

// StatusReportRequest is the 5-bit status-report-request bitset.
type StatusReportRequest uint8

const (
	SRRReceived        StatusReportRequest = 1 << 0
	SRRCustodyAccepted StatusReportRequest = 1 << 1
	SRRForwarded       StatusReportRequest = 1 << 2
	SRRDelivered       StatusReportRequest = 1 << 3
	SRRDeleted         StatusReportRequest = 1 << 4
)

// Priority extracts the class-of-service bits.
func (f ProcessingFlags) Priority() Priority {
	return Priority((f & priorityMask) >> priorityShift)
}

// WithPriority returns f with its priority bits replaced, all other bits
// (including reserved ones) preserved.
func (f ProcessingFlags) WithPriority(p Priority) ProcessingFlags {
	return (f &^ priorityMask) | (ProcessingFlags(p&0x3) << priorityShift)
}

// StatusReportRequest extracts the status-report-request bits.
func (f ProcessingFlags) StatusReportRequest() StatusReportRequest {
	return StatusReportRequest((f & srrMask) >> srrShift)
}

// WithStatusReportRequest returns f with its SRR bits replaced.
func (f ProcessingFlags) WithStatusReportRequest(s StatusReportRequest) ProcessingFlags {
	return (f &^ srrMask) | (ProcessingFlags(s&0x1f) << srrShift)
}

func (f ProcessingFlags) Has(bit ProcessingFlags) bool { return f&bit != 0 }

func (f ProcessingFlags) With(bit ProcessingFlags, set bool) ProcessingFlags {
	if set {
		return f | bit
	}
	return f &^ bit
}
