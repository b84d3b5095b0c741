/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package cl

import "github.com/dtnme-go/bpcore/bundle"

// EventKind enumerates the daemon-facing events a contact worker posts,
// per spec.md §4.7/§8.
type EventKind int

const (
	EventContactUp EventKind = iota
	EventContactBroken
	EventBundleTransmitted
	EventBundleReceived
)

// BreakReason names why a contact transitioned to broken, per spec.md §7.
type BreakReason int

const (
	BreakNone BreakReason = iota
	BreakCLError
	BreakIdleTimeout
	BreakResourceExhaustion
	BreakIOError
	BreakShutdown
)

func (r BreakReason) String() string {
	switch r {
	case BreakCLError:
		return "cl_error"
	case BreakIdleTimeout:
		return "idle_timeout"
	case BreakResourceExhaustion:
		return "resource_exhaustion"
	case BreakIOError:
		return "broken"
	case BreakShutdown:
		return "shutdown"
	}
	return "none"
}

// Event is posted by a contact worker to the daemon-facing event channel.
type Event struct {
	Kind   EventKind
	Link   string
	Reason BreakReason

	Bundle     *bundle.Bundle
	SentBytes  int64
	AckedBytes int64
	RcvdLen    int64
}
