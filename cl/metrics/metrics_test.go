/*************************************************************************
 * Copyright 2026 dtnme-go Authors. All rights reserved.
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/dtnme-go/bpcore/bundle"
	"github.com/dtnme-go/bpcore/cl"
	"github.com/dtnme-go/bpcore/eid"
)

func TestCollectReportsTrackedLinks(t *testing.T) {
	c := NewCollector()
	link := cl.NewLink("r1", "tcp", "10.0.0.1:4556")
	src, _ := eid.Parse("ipn:1.1")
	dst, _ := eid.Parse("ipn:2.1")
	b := bundle.New()
	b.Source, b.Dest = src, dst
	link.Enqueue(b)
	c.Track(link)

	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)

	var sawQueueLen bool
	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			t.Fatal(err)
		}
		if m.Desc() == queueLenDesc {
			sawQueueLen = true
			if pb.GetGauge().GetValue() != 1 {
				t.Fatalf("queue length = %v, want 1", pb.GetGauge().GetValue())
			}
		}
	}
	if !sawQueueLen {
		t.Fatal("expected a queue-length metric for the tracked link")
	}
}

func TestUntrackRemovesLink(t *testing.T) {
	c := NewCollector()
	link := cl.NewLink("r1", "tcp", "10.0.0.1:4556")
	c.Track(link)
	c.Untrack("r1")

	ch := make(chan prometheus.Metric, 16)
	c.Collect(ch)
	close(ch)
	if _, ok := <-ch; ok {
		t.Fatal("expected no metrics after untracking the only link")
	}
}
