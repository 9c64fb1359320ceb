/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector adapts a Stats block into a prometheus.Collector, the same
// client_golang dependency ptp/sptp/stats/prom_exporter.go wires in,
// grounded here as a direct in-process Collector instead of that file's
// separate-process self-scrape, since cmd/n3nd registers it in the same
// process that updates the counters. Nothing in this module serves the
// Prometheus registry over HTTP.
type Collector struct {
	stats Stats
	descs map[string]*prometheus.Desc
}

// NewCollector wraps stats as a prometheus.Collector. Registering it with
// a prometheus.Registry (or the default one) exposes every counter
// Stats.ToMap reports, under an "n3n_" namespace.
func NewCollector(stats Stats) *Collector {
	names := []string{
		"peers.registered", "peers.evicted",
		"resolver.passes", "resolver.failures", "resolver.publishes",
		"slot.accepts", "slot.closes", "slot.errors", "slot.idle_closes",
	}
	descs := make(map[string]*prometheus.Desc, len(names))
	for _, name := range names {
		descs[name] = prometheus.NewDesc(
			"n3n_"+flattenKey(name),
			"n3n core counter "+name,
			nil, nil,
		)
	}
	return &Collector{stats: stats, descs: descs}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector: it snapshots the underlying
// Stats and emits one counter metric per entry in ToMap.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.stats.Snapshot()
	for name, desc := range c.descs {
		v := c.stats.ToMap()[name]
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v))
	}
}

func flattenKey(key string) string {
	out := make([]byte, len(key))
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '.', '-', ' ', '/':
			out[i] = '_'
		default:
			out[i] = key[i]
		}
	}
	return string(out)
}
