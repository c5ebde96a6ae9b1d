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

package database

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type databaseMetrics struct {
	operations *prometheus.CounterVec
}

func newDatabaseMetrics(promRegistry prometheus.Registerer) *databaseMetrics {
	promautoFactory := promauto.With(promRegistry)
	return &databaseMetrics{
		operations: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratify_index_operations_total",
				Help: "campaign index operations by plugin, operation and result",
			},
			[]string{"plugin", "operation", "result"},
		),
	}
}
