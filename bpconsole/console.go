/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package bpconsole parses the text command grammar of spec.md §6
// (`link add|del|open|close|dump`, `interface add|del`) into calls
// against a route.Table, a cl.Registry, and a LinkManager. It is a
// line-oriented replacement for the TCL console spec.md §1 explicitly
// excludes.
package bpconsole

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dtnme-go/bpcore/cl"
	"github.com/dtnme-go/bpcore/eid"
	"github.com/dtnme-go/bpcore/route"
)

var (
	ErrEmptyCommand   = errors.New("bpconsole: empty command")
	ErrUnknownVerb    = errors.New("bpconsole: unknown command")
	ErrWrongArgCount  = errors.New("bpconsole: wrong number of arguments")
	ErrUnknownOption  = errors.New("bpconsole: unrecognized option")
	ErrUnknownLink    = errors.New("bpconsole: unknown link")
	ErrUnknownLinkCL  = errors.New("bpconsole: unknown convergence layer")
)

// LinkManager is the subset of daemon state bpconsole mutates; a real
// daemon wires this to its forwarder.Pipeline plus CL registry dial/listen
// calls, tests use a fake.
type LinkManager interface {
	AddLink(name, nexthop, linkType, clName string, opts map[string]string) error
	DelLink(name string) error
	OpenLink(name string) error
	CloseLink(name string) error
	DumpLinks(name string) string
	AddInterface(name, clName string, opts map[string]string) error
	DelInterface(name string) error
}

// Console parses and executes lines against Routes, CLs, and Links.
type Console struct {
	Routes *route.Table
	CLs    *cl.Registry
	Links  LinkManager
}

// Execute parses and runs a single command line, returning the verb's
// textual result (for `link dump`) or an empty string.
func (c *Console) Execute(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", ErrEmptyCommand
	}

	switch fields[0] {
	case "link":
		return c.execLink(fields[1:])
	case "interface":
		return c.execInterface(fields[1:])
	case "route":
		return c.execRoute(fields[1:])
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownVerb, fields[0])
}

func (c *Console) execLink(args []string) (string, error) {
	if len(args) == 0 {
		return "", ErrWrongArgCount
	}
	switch args[0] {
	case "add":
		// link add <name> <nexthop> <type> <cl> [k=v...]
		if len(args) < 5 {
			return "", ErrWrongArgCount
		}
		name, nexthop, linkType, clName := args[1], args[2], args[3], args[4]
		if _, err := c.CLs.Lookup(clName); err != nil {
			return "", fmt.Errorf("%w: %q", ErrUnknownLinkCL, clName)
		}
		opts, err := parseOptions(args[5:])
		if err != nil {
			return "", err
		}
		return "", c.Links.AddLink(name, nexthop, linkType, clName, opts)
	case "del":
		if len(args) != 2 {
			return "", ErrWrongArgCount
		}
		return "", c.Links.DelLink(args[1])
	case "open":
		if len(args) != 2 {
			return "", ErrWrongArgCount
		}
		return "", c.Links.OpenLink(args[1])
	case "close":
		if len(args) != 2 {
			return "", ErrWrongArgCount
		}
		return "", c.Links.CloseLink(args[1])
	case "dump":
		name := ""
		if len(args) == 2 {
			name = args[1]
		} else if len(args) > 2 {
			return "", ErrWrongArgCount
		}
		return c.Links.DumpLinks(name), nil
	}
	return "", fmt.Errorf("%w: link %q", ErrUnknownVerb, args[0])
}

func (c *Console) execInterface(args []string) (string, error) {
	if len(args) == 0 {
		return "", ErrWrongArgCount
	}
	switch args[0] {
	case "add":
		// interface add <name> <cl> [k=v...]
		if len(args) < 3 {
			return "", ErrWrongArgCount
		}
		name, clName := args[1], args[2]
		if _, err := c.CLs.Lookup(clName); err != nil {
			return "", fmt.Errorf("%w: %q", ErrUnknownLinkCL, clName)
		}
		opts, err := parseOptions(args[3:])
		if err != nil {
			return "", err
		}
		return "", c.Links.AddInterface(name, clName, opts)
	case "del":
		if len(args) != 2 {
			return "", ErrWrongArgCount
		}
		return "", c.Links.DelInterface(args[1])
	}
	return "", fmt.Errorf("%w: interface %q", ErrUnknownVerb, args[0])
}

// execRoute is a supplement beyond spec.md §6's literal grammar: route
// table entries need some console surface to be useful for operators,
// and route.Table already exposes the add/del operations bpconsole
// needs, as `route add <dest-pattern> <link>` and `route del
// <dest-pattern> <link>`.
func (c *Console) execRoute(args []string) (string, error) {
	if len(args) == 0 {
		return "", ErrWrongArgCount
	}
	switch args[0] {
	case "add":
		if len(args) != 3 {
			return "", ErrWrongArgCount
		}
		pat, err := eid.CompilePattern(args[1])
		if err != nil {
			return "", err
		}
		c.Routes.AddEntry(&route.Entry{DestPattern: pat, Action: route.ActionForward, NextHopLink: args[2]})
		return "", nil
	case "del":
		if len(args) != 3 {
			return "", ErrWrongArgCount
		}
		pat, err := eid.CompilePattern(args[1])
		if err != nil {
			return "", err
		}
		c.Routes.DelEntry(pat, args[2])
		return "", nil
	}
	return "", fmt.Errorf("%w: route %q", ErrUnknownVerb, args[0])
}

// parseOptions turns a "k=v" argument list into a map, per spec.md §6's
// link/interface option syntax.
func parseOptions(args []string) (map[string]string, error) {
	opts := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q (expected k=v)", ErrUnknownOption, a)
		}
		opts[k] = v
	}
	return opts, nil
}

// ParseInt is a small helper CL option validators can use when a known
// option must be numeric (e.g. segment_length, keepalive_interval).
func ParseInt(opts map[string]string, key string) (int, bool, error) {
	v, ok := opts[key]
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, true, fmt.Errorf("bpconsole: option %q: %w", key, err)
	}
	return n, true, nil
}
