/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package metrics exposes a prometheus.Collector over the live state of
// every tracked convergence-layer link, grounded on the pull-based
// Describe/Collect shape of runZeroInc's TCPInfoCollector and the
// per-connection stat bookkeeping of runZeroInc's sockstats.Conn wrapper
// (gatherAndReport), adapted here to poll cl.Link state directly rather
// than wrapping a net.Conn.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dtnme-go/bpcore/cl"
)

var (
	queueLenDesc = prometheus.NewDesc(
		"bpcore_link_queue_length",
		"Number of bundles queued for transmission on a link.",
		[]string{"link", "cl"}, nil,
	)
	inflightLenDesc = prometheus.NewDesc(
		"bpcore_link_inflight_count",
		"Number of bundles currently in flight on a link.",
		[]string{"link", "cl"}, nil,
	)
	busyDesc = prometheus.NewDesc(
		"bpcore_link_busy",
		"Whether a link is presently refusing new offers (1) or not (0).",
		[]string{"link", "cl"}, nil,
	)
	stateDesc = prometheus.NewDesc(
		"bpcore_link_state",
		"The link's lifecycle state as an integer code (see cl.LinkState).",
		[]string{"link", "cl"}, nil,
	)
)

// Collector implements prometheus.Collector by polling every link
// registered via Track at scrape time, rather than pushing samples as
// events occur.
type Collector struct {
	mtx   sync.RWMutex
	links map[string]*cl.Link
}

func NewCollector() *Collector {
	return &Collector{links: make(map[string]*cl.Link)}
}

// Track registers link for inclusion in future scrapes.
func (c *Collector) Track(link *cl.Link) {
	c.mtx.Lock()
	c.links[link.Name] = link
	c.mtx.Unlock()
}

// Untrack removes a link, e.g. after `link del`.
func (c *Collector) Untrack(name string) {
	c.mtx.Lock()
	delete(c.links, name)
	c.mtx.Unlock()
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- queueLenDesc
	ch <- inflightLenDesc
	ch <- busyDesc
	ch <- stateDesc
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mtx.RLock()
	links := make([]*cl.Link, 0, len(c.links))
	for _, l := range c.links {
		links = append(links, l)
	}
	c.mtx.RUnlock()

	for _, l := range links {
		ch <- prometheus.MustNewConstMetric(queueLenDesc, prometheus.GaugeValue, float64(l.QueueLen()), l.Name, l.CLName)
		ch <- prometheus.MustNewConstMetric(inflightLenDesc, prometheus.GaugeValue, float64(l.InflightLen()), l.Name, l.CLName)
		busy := 0.0
		if l.Busy() {
			busy = 1.0
		}
		ch <- prometheus.MustNewConstMetric(busyDesc, prometheus.GaugeValue, busy, l.Name, l.CLName)
		ch <- prometheus.MustNewConstMetric(stateDesc, prometheus.GaugeValue, float64(l.State()), l.Name, l.CLName)
	}
}
