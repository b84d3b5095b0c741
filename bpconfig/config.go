/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package bpconfig loads the daemon's ".conf" configuration file: a
// [global] section plus repeated [link "name"] and [interface "name"]
// subsections, in the same gcfg-backed style as gravwell's ingest/config
// package. Command-line text commands that mutate
// configuration at runtime (see bpconsole) produce the same in-memory
// shapes this package parses from disk.
package bpconfig

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gravwell/gcfg"
)

const maxConfigSize int64 = 4 * 1024 * 1024

var (
	ErrConfigTooLarge = errors.New("bpconfig: config file exceeds maximum size")
	ErrMissingNexthop = errors.New("bpconfig: link is missing a nexthop")
	ErrMissingCLType  = errors.New("bpconfig: link or interface is missing a cl type")
)

// GlobalConfig holds daemon-wide settings, the Gravwell-style top-level
// [global] section.
type GlobalConfig struct {
	LocalEID      string
	StoragePath   string
	Log_Level     string
	Log_File      string
	MaxInflight   int
	QlimitBytesHi int
	QlimitBytesLo int
}

// Config is the full parsed configuration tree.
type Config struct {
	Global    GlobalConfig
	Link      map[string]*rawSection
	Interface map[string]*rawSection

	options optionMap
}

// rawSection captures a gcfg subsection generically since link/interface
// option keys vary per CL type; gcfg requires concrete struct fields, so
// known fields are promoted and the remainder is captured as raw
// key=value pairs by a second parse pass (mirroring the VariableConfig
// approach to dynamic subsections).
type rawSection struct {
	Nexthop string
	Type    string
	CLName  string
}

// Load reads and parses path, applying LoadBytes to its contents.
func Load(path string) (*Config, error) {
	fin, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fin.Close()

	fi, err := fin.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() > maxConfigSize {
		return nil, ErrConfigTooLarge
	}

	bb := bytes.NewBuffer(nil)
	if _, err := io.Copy(bb, fin); err != nil {
		return nil, err
	}
	return LoadBytes(bb.Bytes())
}

// LoadBytes parses raw config-file contents into a Config plus the
// per-section free-form option maps gcfg cannot represent as static
// fields.
func LoadBytes(b []byte) (*Config, error) {
	if int64(len(b)) > maxConfigSize {
		return nil, ErrConfigTooLarge
	}

	var gc struct {
		Global    GlobalConfig
		Link      map[string]*rawSection
		Interface map[string]*rawSection
	}
	if err := gcfg.ReadStringInto(&gc, string(b)); err != nil {
		return nil, err
	}

	cfg := &Config{Global: gc.Global, Link: gc.Link, Interface: gc.Interface}

	opts, err := parseFreeformOptions(string(b))
	if err != nil {
		return nil, err
	}
	for name, l := range cfg.Link {
		if l == nil {
			continue
		}
		if l.Nexthop == "" {
			return nil, fmt.Errorf("link %q: %w", name, ErrMissingNexthop)
		}
		if l.Type == "" && l.CLName == "" {
			return nil, fmt.Errorf("link %q: %w", name, ErrMissingCLType)
		}
	}
	for name, i := range cfg.Interface {
		if i == nil {
			continue
		}
		if i.CLName == "" && i.Type == "" {
			return nil, fmt.Errorf("interface %q: %w", name, ErrMissingCLType)
		}
	}
	cfg.options = opts
	return cfg, nil
}

// optionMap maps "link.name" / "interface.name" to that section's
// non-reserved key=value pairs (e.g. segment_length, keepalive_interval)
// for the CL to consume via LinkOptions/InterfaceOptions below.
type optionMap map[string]map[string]string

// LinkOptions returns the free-form CL option map for the named link.
func (c *Config) LinkOptions(name string) map[string]string {
	return c.options["link."+name]
}

// InterfaceOptions returns the free-form CL option map for the named
// interface.
func (c *Config) InterfaceOptions(name string) map[string]string {
	return c.options["interface."+name]
}
