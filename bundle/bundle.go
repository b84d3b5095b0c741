/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package bundle

import (
	"errors"
	"sync/atomic"

	"github.com/dtnme-go/bpcore/bpv6"
	"github.com/dtnme-go/bpcore/eid"
)

var (
	ErrNullSourceMustNotFragment = errors.New("bundle: a bundle with null source must set do_not_fragment")
	ErrNullSourceNoStatusReport  = errors.New("bundle: a bundle with null source must not request a status report")
	ErrNullSourceNoCustody       = errors.New("bundle: a bundle with null source must not request custody")
	ErrAdminNoCustody            = errors.New("bundle: an admin-record bundle must not request custody")
)

// DeletionReason enumerates why a bundle left the system undelivered, per
// spec.md §7 and the BPv6 status-report reason-code vocabulary
// (bpv6.Reason carries the same values so the wire codec and the
// daemon-facing API agree).
type DeletionReason = bpv6.Reason

const (
	DeletionNoInfo          = bpv6.ReasonNoInfo
	DeletionLifetimeExpired = bpv6.ReasonLifetimeExpired
	DeletionNoRoute         = bpv6.ReasonNoRoute
	DeletionBlockUnintel    = bpv6.ReasonBlockUnintelligible
	DeletionDuplicate       = bpv6.ReasonDuplicateBundle
	DeletionDepletedStorage = bpv6.ReasonDepletedStorage
)

// ReceptionReason enumerates why an incoming bundle was rejected before
// it became a full Bundle (e.g. refused mid-segment, or the block
// framework rejected a block during Validate).
type ReceptionReason int

const (
	ReceptionAccepted ReceptionReason = iota
	ReceptionRefused
	ReceptionDuplicate
	ReceptionBlockUnintelligible
)

var nextBundleID uint64

// nextID assigns process-unique, monotonically increasing bundle ids;
// atomic because bundles may be created concurrently by several CL
// workers receiving on different links.
func nextID() uint64 {
	return atomic.AddUint64(&nextBundleID, 1)
}

// CreationTimestamp is the (seconds-since-dtn-epoch, sequence-number)
// pair spec.md §3 requires for every bundle.
type CreationTimestamp struct {
	Seconds  uint64
	Sequence uint64
}

// Bundle is the in-memory representation of a bundle protocol data unit.
type Bundle struct {
	ID uint64

	Source, Dest, ReplyTo, Custodian eid.EndpointID

	Creation CreationTimestamp
	Lifetime uint64 // seconds

	Flags bpv6.ProcessingFlags

	IsFragment bool
	FragOffset uint64
	OrigLength uint64

	Payload *Payload

	RecvBlocks []*bpv6.BlockInfo
	XmitBlocks map[string][]*bpv6.BlockInfo // keyed by outgoing link name
}

// New creates a bundle with a freshly assigned id and an empty xmit-block
// map; callers fill in EIDs, flags, and payload before validating.
func New() *Bundle {
	return &Bundle{ID: nextID(), XmitBlocks: make(map[string][]*bpv6.BlockInfo)}
}

// IsAdminRecord reports whether the admin-record processing flag is set.
func (b *Bundle) IsAdminRecord() bool { return b.Flags.Has(bpv6.FlagIsAdminRecord) }

// RequestsCustody reports whether custody transfer was requested.
func (b *Bundle) RequestsCustody() bool { return b.Flags.Has(bpv6.FlagCustodyRequested) }

// Expired reports whether the bundle's lifetime has elapsed as of now
// (seconds since the DTN epoch).
func (b *Bundle) Expired(now uint64) bool {
	return now > b.Creation.Seconds && now-b.Creation.Seconds > b.Lifetime
}

// Validate enforces the structural invariants of spec.md §3: a
// null-source bundle must not fragment, request a status report, or
// request custody; an admin-record bundle must not request custody; the
// recv/xmit block vectors must each have a well-formed primary-first,
// payload-last shape when non-empty.
func (b *Bundle) Validate() error {
	if b.Source.IsNull() {
		if !b.Flags.Has(bpv6.FlagDoNotFragment) {
			return ErrNullSourceMustNotFragment
		}
		if b.Flags.StatusReportRequest() != 0 {
			return ErrNullSourceNoStatusReport
		}
		if b.RequestsCustody() {
			return ErrNullSourceNoCustody
		}
	}
	if b.IsAdminRecord() && b.RequestsCustody() {
		return ErrAdminNoCustody
	}
	if len(b.RecvBlocks) > 0 {
		if err := bpv6.ValidateBlockShape(b.RecvBlocks); err != nil {
			return err
		}
	}
	for _, blocks := range b.XmitBlocks {
		if len(blocks) > 0 {
			if err := bpv6.ValidateBlockShape(blocks); err != nil {
				return err
			}
		}
	}
	return nil
}

// ToPrimaryHeader projects the fields EncodePrimary/DecodePrimary need
// out of the richer Bundle type.
func (b *Bundle) ToPrimaryHeader() bpv6.PrimaryHeader {
	return bpv6.PrimaryHeader{
		ProcessingFlags: b.Flags,
		Dest:            b.Dest,
		Source:          b.Source,
		ReplyTo:         b.ReplyTo,
		Custodian:       b.Custodian,
		CreationSeconds: b.Creation.Seconds,
		CreationSeqno:   b.Creation.Sequence,
		Lifetime:        b.Lifetime,
		IsFragment:      b.IsFragment,
		FragOffset:      b.FragOffset,
		OrigLength:      b.OrigLength,
	}
}

// FromPrimaryHeader populates a Bundle's primary-block fields from a
// decoded PrimaryHeader; the payload and extension blocks are filled in
// separately as the block framework consumes the rest of the stream.
func FromPrimaryHeader(h bpv6.PrimaryHeader) *Bundle {
	b := New()
	b.Flags = h.ProcessingFlags
	b.Dest, b.Source, b.ReplyTo, b.Custodian = h.Dest, h.Source, h.ReplyTo, h.Custodian
	b.Creation = CreationTimestamp{Seconds: h.CreationSeconds, Sequence: h.CreationSeqno}
	b.Lifetime = h.Lifetime
	b.IsFragment = h.IsFragment
	b.FragOffset = h.FragOffset
	b.OrigLength = h.OrigLength
	return b
}

// PayloadLength returns the length of the bundle's payload, or the
// fragment's original total length if IsFragment and no payload has been
// attached yet (e.g. a primary block decoded ahead of its payload block).
func (b *Bundle) PayloadLength() int64 {
	if b.Payload != nil {
		return b.Payload.Length()
	}
	if b.IsFragment {
		return int64(b.OrigLength)
	}
	return 0
}
