/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package tcpclv4 implements the TCPCLv4 convergence layer: the shared
// cl/stream contact header followed by SESS_INIT negotiation, optional
// TLS upgrade, and XFER_SEGMENT/XFER_ACK/XFER_REFUSE transfer framing
// per spec.md §4.9.
package tcpclv4

import (
	"bufio"
	"crypto/tls"
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

const Name = "tcp4"

const FlagTLSCapable byte = 0x01

// Engine implements cl.Engine for TCPCLv4.
type Engine struct {
	LocalEID  string
	Store     *bundle.Store
	Events    chan<- cl.Event
	Log       *bplog.Logger
	TLSConfig *tls.Config // nil disables TLS capability advertisement

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
	return e.startSession(link, conn, true)
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
				if err := e.startSession(link, c, false); err != nil {
					e.Log.Warnf("tcpclv4[%s]: inbound session setup failed: %v", iface.Name, err)
					c.Close()
				}
			}(conn)
		}
	}()
	return nil
}

func (e *Engine) startSession(link *cl.Link, conn net.Conn, active bool) error {
	var flags byte
	if e.TLSConfig != nil {
		flags |= FlagTLSCapable
	}
	localHdr := stream.ContactHeader{Version: 4, Flags: flags}
	if _, err := conn.Write(localHdr.Encode()); err != nil {
		conn.Close()
		return err
	}
	buf := make([]byte, 8)
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

	if e.TLSConfig != nil && peerHdr.Flags&FlagTLSCapable != 0 {
		if active {
			conn = tls.Client(conn, e.TLSConfig)
		} else {
			conn = tls.Server(conn, e.TLSConfig)
		}
	}

	keepalive := uint16(optInt(link.Options, "keepalive_interval", 10))
	localInit := SessInit{
		KeepaliveInterval: keepalive,
		SegmentMRU:        uint64(optInt(link.Options, "segment_mru", 65536)),
		TransferMRU:       uint64(optInt(link.Options, "transfer_mru", 1<<24)),
		NodeID:            e.LocalEID,
	}
	if _, err := conn.Write(EncodeSessInit(localInit)); err != nil {
		conn.Close()
		return err
	}

	br := bufio.NewReader(conn)
	typByte, err := br.ReadByte()
	if err != nil || MsgType(typByte) != MsgSessInit {
		conn.Close()
		return ErrUnknownMessageType
	}
	rest, _ := br.Peek(br.Buffered())
	peerInit, n2, err := DecodeSessInit(rest)
	if err != nil {
		conn.Close()
		return err
	}
	br.Discard(n2)
	link.RemoteEID = peerInit.NodeID

	segmentMTU := localInit.SegmentMRU
	if peerInit.TransferMRU < segmentMTU {
		segmentMTU = peerInit.TransferMRU
	}

	reg := e.Blocks
	if reg == nil {
		reg = bpv6.DefaultRegistry()
	}

	t := &transport{conn: conn, br: br, log: e.Log, segmentMTU: segmentMTU, reg: reg, linkName: link.Name}
	ctrl := connctl.NewController(link, e.Store, e.Events, e.Log, t)
	ctrl.KeepaliveInterval = time.Duration(stream.NegotiateKeepalive(keepalive, peerInit.KeepaliveInterval)) * time.Second
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
