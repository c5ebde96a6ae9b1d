// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type ratifyMetrics struct {
	reconciliations    *prometheus.CounterVec
	decodeSkips        prometheus.Counter
	actions            *prometheus.CounterVec
	rejections         *prometheus.CounterVec
	indexWrites        *prometheus.CounterVec
	chainQueryDuration *prometheus.HistogramVec
}

func newRatifyMetrics(promRegistry prometheus.Registerer) *ratifyMetrics {
	// promauto.With(nil) builds unregistered collectors
	promautoFactory := promauto.With(promRegistry)
	return &ratifyMetrics{
		reconciliations: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratify_reconciliations_total",
				Help: "campaign reconciliations by result",
			},
			[]string{"result"},
		),
		decodeSkips: promautoFactory.NewCounter(
			prometheus.CounterOpts{
				Name: "ratify_datum_decode_skipped_total",
				Help: "UTxOs skipped during reconciliation because their datum did not decode",
			},
		),
		actions: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratify_actions_total",
				Help: "campaign actions by action and result",
			},
			[]string{"action", "result"},
		),
		rejections: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratify_submission_rejections_total",
				Help: "rejected transaction submissions by reason",
			},
			[]string{"reason"},
		),
		indexWrites: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratify_index_refreshes_total",
				Help: "index writes made from reconciled state, by result",
			},
			[]string{"result"},
		),
		chainQueryDuration: promautoFactory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratify_chain_query_duration_seconds",
				Help:    "chain query latency including retries",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}
