// Copyright 2026 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "snmp_ifpoller"

// Metrics about the poller itself, pushed once per run.
type runMetrics struct {
	walkDuration      prometheus.Gauge
	recordsWritten    prometheus.Counter
	incompleteRecords prometheus.Counter
	lastSuccess       prometheus.Gauge
}

func newRunMetrics(reg prometheus.Registerer) *runMetrics {
	f := promauto.With(reg)
	return &runMetrics{
		walkDuration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "walk_duration_seconds",
			Help:      "Duration of the SNMP walk.",
		}),
		recordsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Interface records written to the sink.",
		}),
		incompleteRecords: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "incomplete_records_total",
			Help:      "Interfaces skipped because columns were missing or malformed.",
		}),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last poll that completed without error.",
		}),
	}
}
