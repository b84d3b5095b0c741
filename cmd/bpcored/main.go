/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Command bpcored is the bundle-forwarder daemon: it loads a bpconfig
// file, wires the route table, bundle store, convergence-layer registry,
// and forwarder pipeline together, then serves the bpconsole text
// command grammar on a listening socket, in the same flag-driven,
// signal-driven (SIGINT/SIGTERM) shutdown style as gravwell's ingester
// mains.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dtnme-go/bpcore/bpconfig"
	"github.com/dtnme-go/bpcore/bpconsole"
	"github.com/dtnme-go/bpcore/bplog"
	"github.com/dtnme-go/bpcore/bundle"
	"github.com/dtnme-go/bpcore/cl"
	"github.com/dtnme-go/bpcore/cl/metrics"
	"github.com/dtnme-go/bpcore/cl/mtcp"
	"github.com/dtnme-go/bpcore/cl/stcp"
	"github.com/dtnme-go/bpcore/cl/tcpclv3"
	"github.com/dtnme-go/bpcore/cl/tcpclv4"
	"github.com/dtnme-go/bpcore/eid"
	"github.com/dtnme-go/bpcore/forwarder"
	"github.com/dtnme-go/bpcore/route"
)

const defaultConfigLoc = `/opt/bpcore/etc/bpcored.conf`

var (
	confLoc    = flag.String("config-file", defaultConfigLoc, "Location for configuration file")
	consoleTCP = flag.String("console-listen", "127.0.0.1:4551", "Address the text command console listens on")
	verbose    = flag.Bool("v", false, "Display verbose status updates to stdout")
)

func main() {
	flag.Parse()

	lg := bplog.New(os.Stderr)

	cfg, err := bpconfig.Load(*confLoc)
	if err != nil {
		lg.Criticalf("failed to load configuration %s: %v", *confLoc, err)
		os.Exit(1)
	}
	if cfg.Global.Log_Level != "" {
		if err := lg.SetLevelString(cfg.Global.Log_Level); err != nil {
			lg.Warnf("invalid log level %q: %v", cfg.Global.Log_Level, err)
		}
	}
	if cfg.Global.Log_File != "" {
		fout, err := os.OpenFile(cfg.Global.Log_File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
		if err != nil {
			lg.Criticalf("failed to open log file %s: %v", cfg.Global.Log_File, err)
			os.Exit(1)
		}
		if err := lg.AddWriter(fout); err != nil {
			lg.Criticalf("failed to add log writer: %v", err)
			os.Exit(1)
		}
	}

	localEID, err := eid.Parse(cfg.Global.LocalEID)
	if err != nil {
		lg.Criticalf("invalid local EID %q: %v", cfg.Global.LocalEID, err)
		os.Exit(1)
	}

	quota := int64(cfg.Global.QlimitBytesHi)
	store := bundle.NewStore(quota)
	lg.Infof("bundle store %s online, quota=%d bytes", store.ID, quota)
	routes := route.NewTable(lg)
	registry := cl.NewRegistry()

	d := &daemon{
		cfg:      cfg,
		log:      lg,
		store:    store,
		routes:   routes,
		registry: registry,
		pipeline: forwarder.NewPipeline(routes, store, lg, 4),
		links:    make(map[string]*cl.Link),
	}

	registry.Register(&tcpclv3.Engine{LocalEID: localEID.String(), Store: store, Events: d.pipeline.LinkEvents(), Log: lg})
	registry.Register(&tcpclv4.Engine{LocalEID: localEID.String(), Store: store, Events: d.pipeline.LinkEvents(), Log: lg})
	registry.Register(&stcp.Engine{LocalEID: localEID.String(), Store: store, Events: d.pipeline.LinkEvents(), Log: lg, MaxFrame: 16 << 20})
	registry.Register(&mtcp.Engine{LocalEID: localEID.String(), Store: store, Events: d.pipeline.LinkEvents(), Log: lg})

	collector := metrics.NewCollector()
	d.metrics = collector

	for name, l := range cfg.Link {
		opts := cfg.LinkOptions(name)
		if err := d.AddLink(name, l.Nexthop, linkTypeOr(l.Type, "always_on"), clNameOr(l.CLName, l.Type), opts); err != nil {
			lg.Errorf("failed to configure link %q: %v", name, err)
		}
	}
	for name, i := range cfg.Interface {
		opts := cfg.InterfaceOptions(name)
		if err := d.AddInterface(name, clNameOr(i.CLName, i.Type), opts); err != nil {
			lg.Errorf("failed to configure interface %q: %v", name, err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.pipeline.Run(ctx); err != nil {
			lg.Infof("forwarder pipeline stopped: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.drainEvents(ctx)
	}()

	console := &bpconsole.Console{Routes: routes, CLs: registry, Links: d}
	ln, err := net.Listen("tcp", *consoleTCP)
	if err != nil {
		lg.Criticalf("failed to open console listener on %s: %v", *consoleTCP, err)
		os.Exit(1)
	}
	go serveConsole(ctx, ln, console, lg)

	debugout(*verbose, "bpcored running, console on %s\n", *consoleTCP)
	<-ctx.Done()
	debugout(*verbose, "shutting down\n")
	ln.Close()
	wg.Wait()
}

// daemon implements bpconsole.LinkManager against the process-wide
// route table, CL registry, and forwarder pipeline.
type daemon struct {
	cfg      *bpconfig.Config
	log      *bplog.Logger
	store    *bundle.Store
	routes   *route.Table
	registry *cl.Registry
	pipeline *forwarder.Pipeline
	metrics  *metrics.Collector

	mtx   sync.Mutex
	links map[string]*cl.Link
}

func (d *daemon) AddLink(name, nexthop, linkType, clName string, opts map[string]string) error {
	engine, err := d.registry.Lookup(clName)
	if err != nil {
		return err
	}
	link := cl.NewLink(name, clName, nexthop)
	link.Type = parseLinkType(linkType)
	link.Options = opts
	link.MaxInflightBundles = bpconfig.OptInt(opts, "max_inflight", link.MaxInflightBundles)

	d.mtx.Lock()
	d.links[name] = link
	d.mtx.Unlock()

	d.pipeline.RegisterLink(link)
	d.metrics.Track(link)

	if link.Type == cl.LinkAlwaysOn {
		go func() {
			if err := engine.Dial(link); err != nil {
				d.log.Errorf("link %q: dial failed: %v", name, err)
			}
		}()
	}
	return nil
}

func (d *daemon) DelLink(name string) error {
	d.mtx.Lock()
	delete(d.links, name)
	d.mtx.Unlock()
	d.pipeline.UnregisterLink(name)
	d.metrics.Untrack(name)
	d.routes.DelEntriesForNexthop(name)
	return nil
}

func (d *daemon) OpenLink(name string) error {
	d.mtx.Lock()
	link, ok := d.links[name]
	d.mtx.Unlock()
	if !ok {
		return bpconsole.ErrUnknownLink
	}
	engine, err := d.registry.Lookup(link.CLName)
	if err != nil {
		return err
	}
	go func() {
		if err := engine.Dial(link); err != nil {
			d.log.Errorf("link %q: dial failed: %v", name, err)
		}
	}()
	return nil
}

// CloseLink marks the link closing; the live session's own contact-break
// detection (peer EOF, keepalive timeout) tears down the transport, since
// cl.Engine exposes no direct session handle for an active close.
func (d *daemon) CloseLink(name string) error {
	d.mtx.Lock()
	link, ok := d.links[name]
	d.mtx.Unlock()
	if !ok {
		return bpconsole.ErrUnknownLink
	}
	link.SetState(cl.StateClosing)
	return nil
}

func (d *daemon) DumpLinks(name string) string {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if name != "" {
		l, ok := d.links[name]
		if !ok {
			return ""
		}
		return dumpOneLink(l)
	}
	out := ""
	for n, l := range d.links {
		out += n + ": " + dumpOneLink(l) + "\n"
	}
	return out
}

func dumpOneLink(l *cl.Link) string {
	return fmt.Sprintf("state=%s queue=%d inflight=%d busy=%v", l.State(), l.QueueLen(), l.InflightLen(), l.Busy())
}

func (d *daemon) AddInterface(name, clName string, opts map[string]string) error {
	engine, err := d.registry.Lookup(clName)
	if err != nil {
		return err
	}
	iface := cl.NewInterface(name, clName)
	iface.Options = opts
	return engine.Listen(iface)
}

func (d *daemon) DelInterface(name string) error {
	// Listening sockets are not individually tracked for teardown; a
	// future revision would need Engine.Listen to return an io.Closer.
	return nil
}

func (d *daemon) drainEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.pipeline.Events():
			switch ev.Kind {
			case forwarder.EventNoRoute:
				d.log.Warnf("no route for bundle, reason=%v", ev.Reason)
			case forwarder.EventDeleted:
				d.log.Warnf("bundle deleted, reason=%v", ev.Reason)
			case forwarder.EventLinkEvent:
				d.log.Infof("link %q event %v", ev.Link, ev.LinkEvent.Kind)
			}
		}
	}
}

func serveConsole(ctx context.Context, ln net.Listener, console *bpconsole.Console, lg *bplog.Logger) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				lg.Warnf("console accept error: %v", err)
				return
			}
		}
		go handleConsoleConn(conn, console)
	}
}

func handleConsoleConn(conn net.Conn, console *bpconsole.Console) {
	defer conn.Close()
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		out, err := console.Execute(sc.Text())
		if err != nil {
			fmt.Fprintf(conn, "error: %v\n", err)
			continue
		}
		if out != "" {
			fmt.Fprintln(conn, out)
		}
		fmt.Fprintln(conn, "ok")
	}
}

func linkTypeOr(t, def string) string {
	if t == "" {
		return def
	}
	return t
}

func clNameOr(clName, fallback string) string {
	if clName != "" {
		return clName
	}
	return fallback
}

func parseLinkType(s string) cl.LinkType {
	switch s {
	case "on_demand":
		return cl.LinkOnDemand
	case "opportunistic":
		return cl.LinkOpportunistic
	case "scheduled":
		return cl.LinkScheduled
	default:
		return cl.LinkAlwaysOn
	}
}

func debugout(v bool, format string, args ...interface{}) {
	if !v {
		return
	}
	fmt.Printf(format, args...)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, for the
// same graceful-shutdown role as utils.WaitForQuit.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()
	return ctx, cancel
}
