/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package bundle implements the Bundle type, its payload backing store,
// and the process-wide arena that reserves payload-storage quota and
// owns bundles while any link or the daemon still references them.
package bundle

import (
	"errors"
	"io"
	"os"
)

var (
	ErrPayloadNotOpen   = errors.New("bundle: payload has no backing storage")
	ErrPayloadTooLarge  = errors.New("bundle: payload exceeds the reserved quota")
	ErrAlreadyHasBacking = errors.New("bundle: payload already has a backing store")
)

// PayloadLocation mirrors the three payload-backing modes of spec.md §3:
// an in-memory buffer, a process-owned temp file, or a caller-named file.
type PayloadLocation int

const (
	LocationMemory PayloadLocation = iota
	LocationTempFile
	LocationNamedFile
)

// Payload is the bundle's data, backed by exactly one of memory, a
// process temp file, or a caller-named file at a time. Length is
// authoritative independent of which backing is in use.
type Payload struct {
	location PayloadLocation
	length   int64

	mem  []byte
	path string
	f    *os.File
}

// NewMemoryPayload wraps b directly; no copy is made, matching the
// teacher's pattern of owning buffers handed in by the caller.
func NewMemoryPayload(b []byte) *Payload {
	return &Payload{location: LocationMemory, mem: b, length: int64(len(b))}
}

// NewTempFilePayload creates (but does not yet write) a process-owned
// temp file to back the payload; dir follows os.CreateTemp semantics
// (empty string uses the default temp directory).
func NewTempFilePayload(dir string) (*Payload, error) {
	f, err := os.CreateTemp(dir, "bpcore-payload-*")
	if err != nil {
		return nil, err
	}
	return &Payload{location: LocationTempFile, f: f, path: f.Name()}, nil
}

// NewNamedFilePayload opens path (creating it if absent) as the
// payload's backing store; path survives the Payload's lifetime, unlike
// a temp-file payload which is removed on Close.
func NewNamedFilePayload(path string) (*Payload, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0640)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Payload{location: LocationNamedFile, f: f, path: path, length: fi.Size()}, nil
}

func (p *Payload) Location() PayloadLocation { return p.location }
func (p *Payload) Length() int64             { return p.length }
func (p *Payload) Path() string              { return p.path }

// Write appends b to the payload (memory append or file append,
// depending on backing), updating Length.
func (p *Payload) Write(b []byte) (int, error) {
	switch p.location {
	case LocationMemory:
		p.mem = append(p.mem, b...)
		p.length = int64(len(p.mem))
		return len(b), nil
	case LocationTempFile, LocationNamedFile:
		if p.f == nil {
			return 0, ErrPayloadNotOpen
		}
		n, err := p.f.Write(b)
		p.length += int64(n)
		return n, err
	}
	return 0, ErrPayloadNotOpen
}

// ReadAt reads len(b) bytes starting at off, as io.ReaderAt does.
func (p *Payload) ReadAt(b []byte, off int64) (int, error) {
	switch p.location {
	case LocationMemory:
		if off >= int64(len(p.mem)) {
			return 0, io.EOF
		}
		n := copy(b, p.mem[off:])
		if n < len(b) {
			return n, io.EOF
		}
		return n, nil
	case LocationTempFile, LocationNamedFile:
		if p.f == nil {
			return 0, ErrPayloadNotOpen
		}
		return p.f.ReadAt(b, off)
	}
	return 0, ErrPayloadNotOpen
}

// Bytes returns the full payload contents; for file-backed payloads this
// reads the file from the start, so callers streaming large bundles
// should prefer ReadAt in segment-sized chunks instead.
func (p *Payload) Bytes() ([]byte, error) {
	switch p.location {
	case LocationMemory:
		return p.mem, nil
	case LocationTempFile, LocationNamedFile:
		if p.f == nil {
			return nil, ErrPayloadNotOpen
		}
		if _, err := p.f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		return io.ReadAll(p.f)
	}
	return nil, ErrPayloadNotOpen
}

// Close releases the backing store. A temp-file payload is removed;
// a named-file payload is left on disk for the caller.
func (p *Payload) Close() error {
	if p.f == nil {
		return nil
	}
	err := p.f.Close()
	if p.location == LocationTempFile {
		if rerr := os.Remove(p.path); rerr != nil && err == nil {
			err = rerr
		}
	}
	p.f = nil
	return err
}
