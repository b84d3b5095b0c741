/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package stcp implements the STCP convergence layer of spec.md §4.10:
// each transmission is a 4-byte big-endian length followed by a complete
// bundle, with no acknowledgement, refusal, or segmentation.
package stcp

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/dtnme-go/bpcore/bplog"
	"github.com/dtnme-go/bpcore/bpv6"
	"github.com/dtnme-go/bpcore/bundle"
	"github.com/dtnme-go/bpcore/cl"
	"github.com/dtnme-go/bpcore/cl/connctl"
)

const Name = "stcp"

var ErrFrameTooLarge = errors.New("stcp: advertised frame length exceeds configured maximum")

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

// Engine implements cl.Engine for STCP.
type Engine struct {
	LocalEID string
	Store    *bundle.Store
	Events   chan<- cl.Event
	Log      *bplog.Logger
	MaxFrame uint32 // 0 means no limit beyond available storage quota

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
					e.Log.Warnf("stcp[%s]: inbound session setup failed: %v", iface.Name, err)
					c.Close()
				}
			}(conn)
		}
	}()
	return nil
}

// startSession wraps conn in a transport and hands it to a connctl
// Controller. STCP has no contact-initiation handshake, so contact-up
// latches immediately, per spec.md §4.7 ("immediately on first readable
// data (STCP/MTCP)"): this core latches on session start rather than
// waiting for data, since there is nothing else to wait on.
func (e *Engine) startSession(link *cl.Link, conn net.Conn) error {
	reg := e.Blocks
	if reg == nil {
		reg = bpv6.DefaultRegistry()
	}

	br := bufio.NewReader(conn)
	t := &transport{conn: conn, br: br, log: e.Log, maxFrame: e.MaxFrame, reg: reg, linkName: link.Name}
	ctrl := connctl.NewController(link, e.Store, e.Events, e.Log, t)
	ctrl.ReliableLink = true
	ctrl.DataTimeout = 30 * time.Second
	ctrl.KeepaliveInterval = 0 // sender side does not expect keepalives
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

// pumpReadable signals readable whenever a byte is available, without
// consuming it, the same approach cl/tcpclv3 uses to approximate
// poll(2)'s POLLIN against a net.Conn.
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
	log      *bplog.Logger
	ctrl     *connctl.Controller
	maxFrame uint32
	reg      *bpv6.Registry
	linkName string
}

func (t *transport) Close() error { return t.conn.Close() }

// SendPendingData writes one complete length-prefixed bundle per call;
// STCP has no partial-segment state to resume.
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

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(wire)))
	if _, err := t.conn.Write(hdr[:]); err != nil {
		return false, err
	}
	if _, err := t.conn.Write(wire); err != nil {
		return false, err
	}
	t.ctrl.Link.CompleteInflight(b)
	return true, nil
}

// ProcessReadable reads one complete frame: a 4-byte length followed by
// exactly that many bytes, with no partial-frame delivery to the daemon.
func (t *transport) ProcessReadable() error {
	var hdr [4]byte
	if _, err := io.ReadFull(t.br, hdr[:]); err != nil {
		return err
	}
	length := binary.BigEndian.Uint32(hdr[:])
	if length == 0 {
		return nil // zero-length frame is a receiver-side keepalive
	}
	if t.maxFrame > 0 && length > t.maxFrame {
		return ErrFrameTooLarge
	}
	if !t.ctrl.TryReserve(int64(length)) {
		return nil
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(t.br, buf); err != nil {
		return err
	}
	b, err := bundle.Decode(t.reg, buf)
	if err != nil {
		return err
	}

	ib := &connctl.IncomingBundle{Bundle: b, TotalLength: int64(length), BundleComplete: true, BundleAccepted: true, PayloadBytesReserved: int64(length)}
	t.ctrl.AddIncoming(ib)
	t.ctrl.CompleteIncoming(ib)
	return nil
}
