/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package bundle

import (
	"testing"

	"github.com/dtnme-go/bpcore/bpv6"
	"github.com/dtnme-go/bpcore/eid"
)

func sample() *Bundle {
	src, _ := eid.Parse("dtn://a/app")
	dst, _ := eid.Parse("dtn://b/app")
	b := New()
	b.Source, b.Dest = src, dst
	b.ReplyTo, b.Custodian = eid.Null(), eid.Null()
	b.Lifetime = 3600
	b.Flags = b.Flags.With(bpv6.FlagSingletonDest, true)
	return b
}

func TestValidateOK(t *testing.T) {
	if err := sample().Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestValidateNullSourceRequiresDoNotFragment(t *testing.T) {
	b := sample()
	b.Source = eid.Null()
	if err := b.Validate(); err != ErrNullSourceMustNotFragment {
		t.Fatalf("expected ErrNullSourceMustNotFragment, got %v", err)
	}
	b.Flags = b.Flags.With(bpv6.FlagDoNotFragment, true)
	if err := b.Validate(); err != nil {
		t.Fatalf("expected ok once do_not_fragment is set, got %v", err)
	}
}

func TestValidateNullSourceNoCustody(t *testing.T) {
	b := sample()
	b.Source = eid.Null()
	b.Flags = b.Flags.With(bpv6.FlagDoNotFragment, true).With(bpv6.FlagCustodyRequested, true)
	if err := b.Validate(); err != ErrNullSourceNoCustody {
		t.Fatalf("expected ErrNullSourceNoCustody, got %v", err)
	}
}

func TestValidateAdminNoCustody(t *testing.T) {
	b := sample()
	b.Flags = b.Flags.With(bpv6.FlagIsAdminRecord, true).With(bpv6.FlagCustodyRequested, true)
	if err := b.Validate(); err != ErrAdminNoCustody {
		t.Fatalf("expected ErrAdminNoCustody, got %v", err)
	}
}

func TestPrimaryHeaderRoundTrip(t *testing.T) {
	b := sample()
	b.Creation = CreationTimestamp{Seconds: 1234, Sequence: 5}
	h := b.ToPrimaryHeader()
	b2 := FromPrimaryHeader(h)
	if !b2.Dest.Equal(b.Dest) || !b2.Source.Equal(b.Source) {
		t.Fatalf("eid mismatch after round trip: %+v", b2)
	}
	if b2.Creation != b.Creation || b2.Lifetime != b.Lifetime {
		t.Fatalf("timestamp/lifetime mismatch: %+v", b2)
	}
}

func TestExpired(t *testing.T) {
	b := sample()
	b.Creation = CreationTimestamp{Seconds: 1000}
	b.Lifetime = 60
	if b.Expired(1030) {
		t.Fatal("bundle should not be expired yet")
	}
	if !b.Expired(1100) {
		t.Fatal("bundle should be expired")
	}
}

func TestStoreQuota(t *testing.T) {
	s := NewStore(100)
	if !s.TryReservePayloadSpace(60) {
		t.Fatal("first reservation should succeed")
	}
	if s.TryReservePayloadSpace(60) {
		t.Fatal("second reservation should exceed quota")
	}
	s.ReleasePayloadSpace(60)
	if !s.TryReservePayloadSpace(60) {
		t.Fatal("reservation should succeed after release")
	}
}

func TestStorePutGetRemove(t *testing.T) {
	s := NewStore(0)
	b := sample()
	b.Payload = NewMemoryPayload([]byte("hello"))
	s.Put(b)

	got, ok := s.Get(b.ID)
	if !ok || got != b {
		t.Fatal("Get did not return the stored bundle")
	}
	s.Remove(b.ID)
	if _, ok := s.Get(b.ID); ok {
		t.Fatal("bundle should be gone after Remove")
	}
}
