/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package eid implements Bundle Protocol endpoint identifiers: URIs of the
// form scheme:ssp, the "dtn:none" null endpoint, the specialized "ipn"
// scheme used by Compressed Bundle Header Encoding, and the wildcard
// pattern language used by the route table.
package eid

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

// NullEID is the distinguished "absent" endpoint. It compares equal only
// to itself.
const NullEID = "dtn:none"

var (
	ErrMissingColon  = errors.New("eid: missing ':' separator")
	ErrEmptyScheme   = errors.New("eid: empty scheme")
	ErrInvalidIPN    = errors.New("eid: malformed ipn scheme-specific part")
	ErrInvalidGlob   = errors.New("eid: invalid wildcard pattern")
)

// EndpointID is a parsed scheme:ssp URI.
type EndpointID struct {
	Scheme string
	SSP    string
}

// Parse splits s into scheme and scheme-specific part. It does not require
// the scheme to be a known one; "valid" only means non-empty scheme plus a
// colon, per spec.md §4.2.
func Parse(s string) (EndpointID, error) {
	idx := strings.IndexByte(s, ':')
	if idx < 0 {
		return EndpointID{}, ErrMissingColon
	}
	scheme := s[:idx]
	if scheme == "" {
		return EndpointID{}, ErrEmptyScheme
	}
	return EndpointID{Scheme: scheme, SSP: s[idx+1:]}, nil
}

// Assign builds an EndpointID directly from its parts.
func Assign(scheme, ssp string) EndpointID {
	return EndpointID{Scheme: scheme, SSP: ssp}
}

// Valid reports whether e has a non-empty scheme. A zero-value EndpointID
// ({}) is invalid.
func (e EndpointID) Valid() bool {
	return e.Scheme != ""
}

// String renders the canonical scheme:ssp form.
func (e EndpointID) String() string {
	if e.Scheme == "" && e.SSP == "" {
		return ""
	}
	return e.Scheme + ":" + e.SSP
}

// IsNull reports whether e is the null endpoint dtn:none.
func (e EndpointID) IsNull() bool {
	return e.String() == NullEID
}

// Equal compares two EndpointIDs by their normalized byte representation,
// per spec.md §3 ("Two EIDs compare equal iff their byte representations
// are equal after normalization"). Normalization here is the canonical
// String() form; callers that need case-insensitive scheme comparison
// should normalize scheme case themselves before construction, as the
// wire format never folds case for them.
func (e EndpointID) Equal(o EndpointID) bool {
	return e.String() == o.String()
}

// Null returns the well-known dtn:none endpoint.
func Null() EndpointID {
	eid, _ := Parse(NullEID)
	return eid
}

// ParseIPN parses an "ipn:NODE.SERVICE" endpoint into its two u64 parts.
// On any failure it returns ok=false without partial state, per spec.md
// §4.2.
func ParseIPN(e EndpointID) (node, service uint64, ok bool) {
	if e.Scheme != "ipn" {
		return 0, 0, false
	}
	dot := strings.IndexByte(e.SSP, '.')
	if dot < 0 {
		return 0, 0, false
	}
	n, err := strconv.ParseUint(e.SSP[:dot], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	s, err := strconv.ParseUint(e.SSP[dot+1:], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return n, s, true
}

// IPN builds the canonical ipn:NODE.SERVICE endpoint.
func IPN(node, service uint64) EndpointID {
	return EndpointID{Scheme: "ipn", SSP: strconv.FormatUint(node, 10) + "." + strconv.FormatUint(service, 10)}
}

// IsIPN reports whether e lies in the ipn scheme and parses cleanly.
func IsIPN(e EndpointID) bool {
	_, _, ok := ParseIPN(e)
	return ok
}

// Pattern is a compiled EndpointIDPattern: a textual EID with wildcards as
// described in spec.md §3 ("*:*", "scheme:*", trailing "/*" on the SSP).
// Patterns are compiled once (at RouteEntry insertion) via gobwas/glob
// rather than re-parsed on every lookup.
type Pattern struct {
	raw     string
	g       glob.Glob
	exact   string // non-empty when the pattern has no wildcard at all
	bareSSP string // non-empty for a trailing "/*" pattern: the SSP-less prefix it also matches
}

// CompilePattern compiles a wildcard EndpointID pattern. A pattern ending
// in "/*" additionally matches the bare prefix with the trailing slash
// stripped (e.g. "dtn://d2/*" also matches "dtn://d2"): gobwas/glob's
// literal "/" in the compiled pattern can never match the empty string,
// so that case is special-cased here rather than left to the glob engine.
func CompilePattern(pattern string) (Pattern, error) {
	if !strings.ContainsAny(pattern, "*?[") {
		return Pattern{raw: pattern, exact: pattern}, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return Pattern{}, ErrInvalidGlob
	}
	p := Pattern{raw: pattern, g: g}
	if strings.HasSuffix(pattern, "/*") {
		p.bareSSP = strings.TrimSuffix(pattern, "/*")
	}
	return p, nil
}

// MustCompilePattern is CompilePattern but panics on error; useful for
// package-level pattern constants.
func MustCompilePattern(pattern string) Pattern {
	p, err := CompilePattern(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the original pattern text.
func (p Pattern) String() string { return p.raw }

// Match reports whether eid matches the pattern.
func (p Pattern) Match(e EndpointID) bool {
	s := e.String()
	if p.exact != "" {
		return p.exact == s
	}
	if p.g == nil {
		return false
	}
	if p.bareSSP != "" && s == p.bareSSP {
		return true
	}
	return p.g.Match(s)
}

// Equal compares two patterns by their source text, matching spec.md
// §4.6's duplicate-entry rule: "(dest_pattern, next_hop) pair equality".
func (p Pattern) Equal(o Pattern) bool { return p.raw == o.raw }

// AsEID returns the pattern's text as a concrete EndpointID when the
// pattern carries no wildcard, so an alias route-table entry can rewrite
// a lookup key to its next-hop pattern and recurse. A wildcard pattern
// has no single concrete EID and ok is false.
func (p Pattern) AsEID() (EndpointID, bool) {
	if p.exact == "" {
		return EndpointID{}, false
	}
	e, err := Parse(p.exact)
	if err != nil {
		return EndpointID{}, false
	}
	return e, true
}
