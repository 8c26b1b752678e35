/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tomoncle/bunit/uow"
)

// SaveCollector counts saves by outcome and records their latency and the
// rows they wrote. It implements uow.Observer.
type SaveCollector struct {
	saves    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rows     prometheus.Counter
}

var _ uow.Observer = (*SaveCollector)(nil)

func NewSaveCollector(reg prometheus.Registerer, serviceName string) *SaveCollector {
	labels := prometheus.Labels{"service": serviceName}
	c := &SaveCollector{
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "bunit_saves_total",
			Help:        "Total unit of work saves by outcome.",
			ConstLabels: labels,
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "bunit_save_duration_seconds",
			Help:        "Unit of work save latency.",
			Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			ConstLabels: labels,
		}, []string{"outcome"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "bunit_saved_rows_total",
			Help:        "Rows written by committed saves.",
			ConstLabels: labels,
		}),
	}
	reg.MustRegister(c.saves, c.duration, c.rows)
	return c
}

func (c *SaveCollector) ObserveSave(_ context.Context, result uow.Result, elapsed time.Duration) {
	outcome := result.Outcome.String()
	c.saves.WithLabelValues(outcome).Inc()
	c.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if result.Status {
		c.rows.Add(float64(result.AffectedRows))
	}
}
