/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package mtcp implements the MTCP convergence layer of spec.md §4.10:
// each transmission is a single CBOR byte-string (major type 2) whose
// content is the bundle's raw bytes; a zero-length byte-string is an
// optional keepalive.
package mtcp

import (
	"bufio"
	"net"
	"strconv"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/time/rate"

	"github.com/dtnme-go/bpcore/bplog"
	"github.com/dtnme-go/bpcore/bpv6"
	"github.com/dtnme-go/bpcore/bundle"
	"github.com/dtnme-go/bpcore/cl"
	"github.com/dtnme-go/bpcore/cl/connctl"
)

const Name = "mtcp"

func optBool(opts map[string]string, key string, def bool) bool {
	v, ok := opts[key]
	if !ok {
		return def
	}
	return v == "true" || v == "1"
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

// Engine implements cl.Engine for MTCP.
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

func (e *Engine) Dial(link *cl.Link) error {
	conn, err := net.DialTimeout("tcp", link.Nexthop, 10*time.Second)
	if err != nil {
		return err
	}
	return e.startSession(link, conn)
}

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
			go func(c net.Conn) {
				link := cl.NewLink(c.RemoteAddr().String(), Name, c.RemoteAddr().String())
				if err := e.startSession(link, c); err != nil {
					e.Log.Warnf("mtcp[%s]: inbound session setup failed: %v", iface.Name, err)
					c.Close()
				}
			}(conn)
		}
	}()
	return nil
}

func (e *Engine) startSession(link *cl.Link, conn net.Conn) error {
	reg := e.Blocks
	if reg == nil {
		reg = bpv6.DefaultRegistry()
	}

	br := bufio.NewReader(conn)
	t := &transport{conn: conn, br: br, dec: cbor.NewDecoder(br), log: e.Log, reg: reg, linkName: link.Name}
	ctrl := connctl.NewController(link, e.Store, e.Events, e.Log, t)
	ctrl.ReliableLink = true
	ctrl.DataTimeout = 30 * time.Second
	ctrl.KeepaliveInterval = 0
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

type transport struct {
	conn     net.Conn
	br       *bufio.Reader
	dec      *cbor.Decoder
	log      *bplog.Logger
	ctrl     *connctl.Controller
	reg      *bpv6.Registry
	linkName string
}

func (t *transport) Close() error { return t.conn.Close() }

// SendPendingData marshals one dequeued bundle's raw bytes as a CBOR
// byte string and writes it whole; MTCP has no segmentation.
func (t *transport) SendPendingData() (bool, error) {
	b, ok := t.ctrl.Link.DequeueNext()
	if !ok {
		return false, nil
	}
	wire, err := bundle.Encode(b, t.reg, t.linkName)
	if err != nil {
		t.ctrl.Link.CompleteInflight(b)
		return false, err
	}
	frame, err := cbor.Marshal(wire)
	if err != nil {
		t.ctrl.Link.CompleteInflight(b)
		return false, err
	}
	if _, err := t.conn.Write(frame); err != nil {
		return false, err
	}
	t.ctrl.Link.CompleteInflight(b)
	return true, nil
}

// ProcessReadable decodes one CBOR byte-string frame; the cbor decoder
// reads exactly the bytes the header declares from the underlying
// bufio.Reader, satisfying spec.md §4.10's "stream exactly that many
// bytes before accepting a new transmission."
func (t *transport) ProcessReadable() error {
	var buf []byte
	if err := t.dec.Decode(&buf); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil // zero-length byte-string is an optional keepalive
	}
	if !t.ctrl.TryReserve(int64(len(buf))) {
		return nil
	}
	b, err := bundle.Decode(t.reg, buf)
	if err != nil {
		return err
	}

	ib := &connctl.IncomingBundle{Bundle: b, TotalLength: int64(len(buf)), BundleComplete: true, BundleAccepted: true, PayloadBytesReserved: int64(len(buf))}
	t.ctrl.AddIncoming(ib)
	t.ctrl.CompleteIncoming(ib)
	return nil
}
