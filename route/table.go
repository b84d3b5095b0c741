/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package route implements the ordered route table and lookup engine of
// spec.md §4.6: pattern-to-next-hop entries with recursive alias
// resolution and cycle detection, guarded by a single writer lock in the
// same *sync.RWMutex-protected registry style as IngestMuxer's connection
// table.
package route

import (
	"sync"

	"github.com/dtnme-go/bpcore/bplog"
	"github.com/dtnme-go/bpcore/eid"
)

// Action distinguishes a terminal (link-bearing) entry from an alias
// that rewrites to another pattern.
type Action int

const (
	ActionForward Action = iota // terminal: NextHopLink names a link
	ActionAlias                 // rewrites to NextHopPattern
)

// Entry is one route-table row, per spec.md §3 RouteEntry.
type Entry struct {
	DestPattern    eid.Pattern
	Action         Action
	NextHopLink    string     // valid when Action == ActionForward
	NextHopPattern eid.Pattern // valid when Action == ActionAlias
	Priority       int
}

// Table is the ordered, insertion-stable route table.
type Table struct {
	mtx     sync.RWMutex
	entries []*Entry
	log     *bplog.Logger
}

// NewTable returns an empty table. A nil logger is replaced with a
// discard logger so callers need not special-case it.
func NewTable(log *bplog.Logger) *Table {
	if log == nil {
		log = bplog.NewDiscard()
	}
	return &Table{log: log}
}

// sameEntry reports (dest_pattern, next_hop) equality per spec.md's
// add_entry duplicate rule.
func sameEntry(a, b *Entry) bool {
	if a.DestPattern.String() != b.DestPattern.String() || a.Action != b.Action {
		return false
	}
	if a.Action == ActionForward {
		return a.NextHopLink == b.NextHopLink
	}
	return a.NextHopPattern.String() == b.NextHopPattern.String()
}

// AddEntry appends e unless an equal (dest_pattern, next_hop) entry
// already exists, in which case it reports false ("duplicate") and
// leaves the table unchanged.
func (t *Table) AddEntry(e *Entry) bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	for _, existing := range t.entries {
		if sameEntry(existing, e) {
			return false
		}
	}
	t.entries = append(t.entries, e)
	return true
}

// DelEntry removes entries whose (dest_pattern, next_hop-link) match
// pattern and link exactly, returning the count removed. Per spec.md
// §8's commutativity invariant, calling this on a table with no such
// entry returns 0 and leaves the table unchanged.
func (t *Table) DelEntry(pattern eid.Pattern, link string) int {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.deleteWhere(func(e *Entry) bool {
		return e.DestPattern.String() == pattern.String() && e.Action == ActionForward && e.NextHopLink == link
	})
}

// DelEntries removes every entry whose dest_pattern equals pattern,
// regardless of next hop, returning the count removed.
func (t *Table) DelEntries(pattern eid.Pattern) int {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.deleteWhere(func(e *Entry) bool {
		return e.DestPattern.String() == pattern.String()
	})
}

// DelEntriesForNexthop removes every terminal entry whose next-hop link
// is link, returning the count removed.
func (t *Table) DelEntriesForNexthop(link string) int {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.deleteWhere(func(e *Entry) bool {
		return e.Action == ActionForward && e.NextHopLink == link
	})
}

// deleteWhere must be called with t.mtx held for writing.
func (t *Table) deleteWhere(match func(*Entry) bool) int {
	kept := t.entries[:0]
	removed := 0
	for _, e := range t.entries {
		if match(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	t.entries = kept
	return removed
}

// GetMatching returns every entry that matches destEID, expanding alias
// chains recursively until terminal (forwarding) entries are reached.
// The directly-matching entry (if terminal) is first, followed by alias
// expansions in table insertion order. A cycle among aliases yields zero
// matches from that branch plus a single logged diagnostic; it neither
// removes nor retains the offending entries (spec.md §4.6, §7).
func (t *Table) GetMatching(destEID eid.EndpointID) []*Entry {
	t.mtx.RLock()
	defer t.mtx.RUnlock()

	visited := make(map[string]bool)
	return t.resolve(destEID, visited)
}

func (t *Table) resolve(destEID eid.EndpointID, visited map[string]bool) []*Entry {
	var out, expanded []*Entry
	for _, e := range t.entries {
		if !e.DestPattern.Match(destEID) {
			continue
		}
		switch e.Action {
		case ActionForward:
			out = append(out, e)
		case ActionAlias:
			key := e.DestPattern.String() + "->" + e.NextHopPattern.String()
			if visited[key] {
				t.log.Warnf("route: alias cycle detected resolving %s through %s", destEID.String(), key)
				continue
			}
			visited[key] = true
			// The alias rewrites the lookup key to its next-hop pattern's
			// literal EID form when the pattern is an exact (non-wildcard)
			// pattern; a wildcard alias target cannot be resolved further
			// and is dropped, matching the original's "alias must name a
			// concrete next hop" requirement.
			aliasEID, ok := e.NextHopPattern.AsEID()
			if !ok {
				continue
			}
			expanded = append(expanded, t.resolve(aliasEID, visited)...)
		}
	}
	return append(out, expanded...)
}

// Len returns the number of entries currently in the table.
func (t *Table) Len() int {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	return len(t.entries)
}

// Entries returns a snapshot copy of the table's entries in insertion
// order, for the `link dump`/console commands.
func (t *Table) Entries() []*Entry {
	t.mtx.RLock()
	defer t.mtx.RUnlock()
	out := make([]*Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
