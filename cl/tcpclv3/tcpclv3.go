/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package tcpclv3 implements the TCPCLv3 convergence layer atop the
// shared cl/stream framing and cl/connctl lifecycle controller.
package tcpclv3

import (
	"bufio"
	"net"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/dtnme-go/bpcore/bplog"
	"github.com/dtnme-go/bpcore/bpv6"
	"github.com/dtnme-go/bpcore/bundle"
	"github.com/dtnme-go/bpcore/cl"
	"github.com/dtnme-go/bpcore/cl/connctl"
	"github.com/dtnme-go/bpcore/cl/stream"
)

const Name = "tcp"

// Engine implements cl.Engine for TCPCLv3.
type Engine struct {
	LocalEID string
	Store    *bundle.Store
	Events   chan<- cl.Event
	Log      *bplog.Logger

	// Blocks is the block-framework registry (spec.md §4.5) used to
	// build and parse every bundle this engine sends or receives;
	// nil defaults to bpv6.DefaultRegistry().
	Blocks *bpv6.Registry
}

func (e *Engine) Name() string { return Name }

// Dial actively opens a TCPCLv3 contact to link.Nexthop, exchanges
// contact headers, and starts the connection controller's goroutine.
func (e *Engine) Dial(link *cl.Link) error {
	conn, err := net.DialTimeout("tcp", link.Nexthop, 10*time.Second)
	if err != nil {
		return err
	}
	return e.startSession(link, conn, true)
}

// Listen runs an accept loop for iface, spawning a session per inbound
// connection; the link is resolved by matching the peer's announced EID
// against configuration after the contact header is read (the daemon's
// responsibility; this core only exposes the negotiated header).
func (e *Engine) Listen(iface *cl.Interface) error {
	addr := iface.Options["listen"]
	if addr == "" {
		addr = ":4556"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go e.acceptSession(iface, conn)
		}
	}()
	return nil
}

func (e *Engine) acceptSession(iface *cl.Interface, conn net.Conn) {
	link := cl.NewLink(conn.RemoteAddr().String(), Name, conn.RemoteAddr().String())
	if err := e.startSession(link, conn, false); err != nil {
		e.Log.Warnf("tcpclv3[%s]: inbound session setup failed: %v", iface.Name, err)
		conn.Close()
	}
}

func (e *Engine) startSession(link *cl.Link, conn net.Conn, active bool) error {
	keepalive := uint16(optInt(link.Options, "keepalive_interval", 10))
	localHdr := stream.ContactHeader{
		Version:           3,
		Flags:             stream.FlagSegmentAckEnabled | stream.FlagReactiveFragEnabled,
		KeepaliveInterval: keepalive,
		LocalEID:          e.LocalEID,
	}
	if _, err := conn.Write(localHdr.Encode()); err != nil {
		conn.Close()
		return err
	}

	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		conn.Close()
		return err
	}
	peerHdr, _, err := stream.DecodeContactHeader(buf[:n])
	if err != nil {
		conn.Close()
		return err
	}
	link.RemoteEID = peerHdr.LocalEID

	reg := e.Blocks
	if reg == nil {
		reg = bpv6.DefaultRegistry()
	}

	br := bufio.NewReader(conn)
	t := &transport{conn: conn, br: br, log: e.Log, segmentLen: optInt(link.Options, "segment_length", 4096), reg: reg, linkName: link.Name}
	ctrl := connctl.NewController(link, e.Store, e.Events, e.Log, t)
	ctrl.KeepaliveInterval = time.Duration(stream.NegotiateKeepalive(keepalive, peerHdr.KeepaliveInterval)) * time.Second
	ctrl.DataTimeout = time.Duration(optInt(link.Options, "data_timeout", 30)) * time.Second
	ctrl.ReliableLink = true
	ctrl.ReactiveFragOK = optBool(link.Options, "reactive_frag_enabled", true)
	ctrl.BreakOnKeepaliveFault = optBool(link.Options, "break_contact_on_keepalive_fault", true)
	if lim := optInt(link.Options, "send_rate_limit", 0); lim > 0 {
		ctrl.SendLimiter = rate.NewLimiter(rate.Limit(lim), lim)
	}
	t.ctrl = ctrl

	ctrl.MarkContactUp()
	readable := make(chan struct{}, 1)
	go pumpReadable(conn, br, readable)
	go ctrl.Run(readable, nil)
	return nil
}

// pumpReadable signals readable whenever the connection has at least one
// byte available, approximating poll(2)'s POLLIN readiness notification.
// bufio.Reader.Peek blocks until a byte arrives (or the read deadline
// trips) without consuming it, so the controller's own ProcessReadable
// still sees the byte via the same buffered reader.
func pumpReadable(conn net.Conn, br *bufio.Reader, readable chan<- struct{}) {
	for {
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		if _, err := br.Peek(1); err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			readable <- struct{}{}
			return
		}
		conn.SetReadDeadline(time.Time{})
		readable <- struct{}{}
	}
}

func optInt(opts map[string]string, key string, def int) int {
	v, ok := opts[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func optBool(opts map[string]string, key string, def bool) bool {
	v, ok := opts[key]
	if !ok {
		return def
	}
	return v == "true" || v == "1"
}
