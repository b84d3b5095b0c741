/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package bundle

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

var ErrQuotaExceeded = errors.New("bundle: payload storage quota exceeded")

// Store is the process-wide bundle arena: it owns every live Bundle by
// id and gates payload storage behind a byte quota, per spec.md §5
// ("the process-wide bundle store exposes try_reserve_payload_space(n)
// and release_payload_space(n)"). A Bundle is only removed from the
// store once no link holds it and its payload has been released
// (spec.md §3 destruction invariant); callers are responsible for not
// calling Remove early.
type Store struct {
	// ID tags this store instance for log correlation: a daemon restart
	// gets a fresh one, so grepping a log by ID isolates one process
	// lifetime even across overlapping deployments on the same host.
	ID uuid.UUID

	mu       sync.Mutex
	bundles  map[uint64]*Bundle
	quota    int64
	reserved int64
}

// NewStore creates a store with the given payload-storage quota in
// bytes. A quota of 0 means unlimited.
func NewStore(quotaBytes int64) *Store {
	return &Store{ID: uuid.New(), bundles: make(map[uint64]*Bundle), quota: quotaBytes}
}

// TryReservePayloadSpace attempts to reserve n bytes against the quota,
// returning false without reserving anything if doing so would exceed
// it. The CL receive path calls this before accepting a segment.
func (s *Store) TryReservePayloadSpace(n int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quota > 0 && s.reserved+n > s.quota {
		return false
	}
	s.reserved += n
	return true
}

// ReleasePayloadSpace gives back n bytes previously reserved.
func (s *Store) ReleasePayloadSpace(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserved -= n
	if s.reserved < 0 {
		s.reserved = 0
	}
}

// Reserved returns the currently reserved byte count.
func (s *Store) Reserved() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserved
}

// Put registers b under its id.
func (s *Store) Put(b *Bundle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bundles[b.ID] = b
}

// Get looks up a bundle by id.
func (s *Store) Get(id uint64) (*Bundle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[id]
	return b, ok
}

// Remove drops a bundle from the store and releases its payload's
// reservation, satisfying the destruction invariant's storage-release
// clause. It is the caller's responsibility to have already confirmed no
// link queue or inflight list still references the bundle.
func (s *Store) Remove(id uint64) {
	s.mu.Lock()
	b, ok := s.bundles[id]
	if ok {
		delete(s.bundles, id)
	}
	s.mu.Unlock()
	if ok && b.Payload != nil {
		s.ReleasePayloadSpace(b.Payload.Length())
		b.Payload.Close()
	}
}

// Len returns the number of bundles currently owned by the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bundles)
}
