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

package walker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "snmp_ifpoller"

type Metrics struct {
	PacketsSent        prometheus.Counter
	ResponsesReceived  prometheus.Counter
	ResponsesDiscarded prometheus.Counter
	VarBindsReturned   prometheus.Counter
	RoundDuration      prometheus.Histogram
}

// NewMetrics creates the walk metrics and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PacketsSent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "walk_packets_sent_total",
			Help:      "GETBULK requests sent to the agent.",
		}),
		ResponsesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "walk_responses_received_total",
			Help:      "Responses matching the outstanding request.",
		}),
		ResponsesDiscarded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "walk_responses_discarded_total",
			Help:      "Responses discarded because their request ID did not match the outstanding request.",
		}),
		VarBindsReturned: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "walk_varbinds_returned_total",
			Help:      "Variable bindings returned by the agent.",
		}),
		RoundDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "walk_round_duration_seconds",
			Help:      "Time between sending a GETBULK request and receiving its response.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}),
	}
}
