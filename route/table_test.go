/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package route

import (
	"testing"

	"github.com/dtnme-go/bpcore/eid"
)

func pat(t *testing.T, s string) eid.Pattern {
	t.Helper()
	p, err := eid.CompilePattern(s)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSimpleLookup(t *testing.T) {
	tbl := NewTable(nil)
	e := &Entry{DestPattern: pat(t, "dtn://b/app"), Action: ActionForward, NextHopLink: "link1"}
	if !tbl.AddEntry(e) {
		t.Fatal("AddEntry should succeed")
	}

	dest, _ := eid.Parse("dtn://b/app")
	matches := tbl.GetMatching(dest)
	if len(matches) != 1 || matches[0].NextHopLink != "link1" {
		t.Fatalf("matches = %+v", matches)
	}
}

func TestWildcardLookup(t *testing.T) {
	tbl := NewTable(nil)
	tbl.AddEntry(&Entry{DestPattern: pat(t, "dtn:*"), Action: ActionForward, NextHopLink: "default"})

	dest, _ := eid.Parse("dtn://anything/here")
	matches := tbl.GetMatching(dest)
	if len(matches) != 1 || matches[0].NextHopLink != "default" {
		t.Fatalf("matches = %+v", matches)
	}
}

func TestRecursiveAliasResolution(t *testing.T) {
	tbl := NewTable(nil)
	tbl.AddEntry(&Entry{DestPattern: pat(t, "dtn://b/app"), Action: ActionAlias, NextHopPattern: pat(t, "dtn://gateway/relay")})
	tbl.AddEntry(&Entry{DestPattern: pat(t, "dtn://gateway/relay"), Action: ActionForward, NextHopLink: "uplink"})

	dest, _ := eid.Parse("dtn://b/app")
	matches := tbl.GetMatching(dest)
	if len(matches) != 1 || matches[0].NextHopLink != "uplink" {
		t.Fatalf("matches = %+v", matches)
	}
}

func TestAliasCycleYieldsNoMatches(t *testing.T) {
	tbl := NewTable(nil)
	tbl.AddEntry(&Entry{DestPattern: pat(t, "dtn://a/app"), Action: ActionAlias, NextHopPattern: pat(t, "dtn://b/app")})
	tbl.AddEntry(&Entry{DestPattern: pat(t, "dtn://b/app"), Action: ActionAlias, NextHopPattern: pat(t, "dtn://a/app")})

	dest, _ := eid.Parse("dtn://a/app")
	matches := tbl.GetMatching(dest)
	if len(matches) != 0 {
		t.Fatalf("expected zero matches on a cycle, got %+v", matches)
	}
	// the cycle must not have mutated the table
	if tbl.Len() != 2 {
		t.Fatalf("table length changed after cycle detection: %d", tbl.Len())
	}
}

func TestDelEntryCommutativityOnEmptyTable(t *testing.T) {
	tbl := NewTable(nil)
	n := tbl.DelEntry(pat(t, "dtn://x/y"), "link1")
	if n != 0 || tbl.Len() != 0 {
		t.Fatalf("DelEntry on an empty table should be a no-op, got n=%d len=%d", n, tbl.Len())
	}
}

func TestDelEntriesForNexthop(t *testing.T) {
	tbl := NewTable(nil)
	tbl.AddEntry(&Entry{DestPattern: pat(t, "dtn://a/app"), Action: ActionForward, NextHopLink: "l1"})
	tbl.AddEntry(&Entry{DestPattern: pat(t, "dtn://b/app"), Action: ActionForward, NextHopLink: "l1"})
	tbl.AddEntry(&Entry{DestPattern: pat(t, "dtn://c/app"), Action: ActionForward, NextHopLink: "l2"})

	if n := tbl.DelEntriesForNexthop("l1"); n != 2 {
		t.Fatalf("expected 2 removed, got %d", n)
	}
	if tbl.Len() != 1 {
		t.Fatalf("expected 1 entry remaining, got %d", tbl.Len())
	}
}

// TestTrailingWildcardAlsoMatchesBareSSP is spec.md §8 scenario 2:
// inserting (*:*, L1), (dtn://d2/*, L2), (dtn://d2, L2) and looking up
// dtn://d2 must yield all three entries, since a trailing "/*" pattern
// matches the SSP-less prefix as well as anything under it.
func TestTrailingWildcardAlsoMatchesBareSSP(t *testing.T) {
	tbl := NewTable(nil)
	tbl.AddEntry(&Entry{DestPattern: pat(t, "*:*"), Action: ActionForward, NextHopLink: "L1"})
	tbl.AddEntry(&Entry{DestPattern: pat(t, "dtn://d2/*"), Action: ActionForward, NextHopLink: "L2"})
	tbl.AddEntry(&Entry{DestPattern: pat(t, "dtn://d2"), Action: ActionForward, NextHopLink: "L2"})

	dest, _ := eid.Parse("dtn://d2")
	matches := tbl.GetMatching(dest)
	if len(matches) != 3 {
		t.Fatalf("matches = %+v, want 3", matches)
	}
}

func TestAddEntryDuplicateRejected(t *testing.T) {
	tbl := NewTable(nil)
	e := &Entry{DestPattern: pat(t, "dtn://a/app"), Action: ActionForward, NextHopLink: "l1"}
	if !tbl.AddEntry(e) {
		t.Fatal("first add should succeed")
	}
	dup := &Entry{DestPattern: pat(t, "dtn://a/app"), Action: ActionForward, NextHopLink: "l1"}
	if tbl.AddEntry(dup) {
		t.Fatal("duplicate (pattern, next-hop) add should be rejected")
	}
	if tbl.Len() != 1 {
		t.Fatalf("table should still have 1 entry, got %d", tbl.Len())
	}
}
