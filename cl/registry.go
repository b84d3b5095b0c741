/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package cl

import (
	"errors"
	"sync"
)

var ErrUnknownCL = errors.New("cl: no convergence layer registered under that name")

// Registry is the process-wide name→Engine table used when `link add`/
// `interface add` console commands or config-file sections create a new
// link under a given cl-name ("tcp", "stcp", "mtcp", ...), mirroring the
// teacher's pattern of a mutex-guarded name table rather than a bare
// package-level map (so tests can construct isolated registries).
type Registry struct {
	mtx     sync.RWMutex
	engines map[string]Engine
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{engines: make(map[string]Engine)}
}

// Register installs e under e.Name(), overwriting any previous engine of
// the same name.
func (r *Registry) Register(e Engine) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.engines[e.Name()] = e
}

// Lookup returns the engine registered under name.
func (r *Registry) Lookup(name string) (Engine, error) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	e, ok := r.engines[name]
	if !ok {
		return nil, ErrUnknownCL
	}
	return e, nil
}

// Names returns the registered CL names, for diagnostics.
func (r *Registry) Names() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	out := make([]string, 0, len(r.engines))
	for n := range r.engines {
		out = append(out, n)
	}
	return out
}
