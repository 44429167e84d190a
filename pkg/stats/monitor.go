// Copyright 2024 VoiceDesk, Inc.
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

package stats

import (
	"errors"
	"time"

	"github.com/frostbyte73/core"
	"github.com/prometheus/client_golang/prometheus"
)

// durBucketsCall lists histogram buckets for call durations, in seconds.
var durBucketsCall = []float64{
	1, 10, 30, 60, 5 * 60, 10 * 60, 30 * 60, 3600, 6 * 3600,
}

type Monitor struct {
	registerAttempts prometheus.Counter
	registerFailures *prometheus.CounterVec
	registered       prometheus.Gauge
	callsActive      prometheus.Gauge
	callsTerminated  *prometheus.CounterVec
	dialRetries      prometheus.Counter
	eventsDropped    *prometheus.CounterVec
	durCall          prometheus.Histogram

	metrics  []prometheus.Collector
	started  core.Fuse
	shutdown core.Fuse
}

func NewMonitor() *Monitor {
	return &Monitor{}
}

func mustRegister[T prometheus.Collector](m *Monitor, c T) T {
	err := prometheus.Register(c)
	if err != nil {
		var e prometheus.AlreadyRegisteredError
		if errors.As(err, &e) {
			return e.ExistingCollector.(T)
		} else {
			panic(err)
		}
	}
	m.metrics = append(m.metrics, c)
	return c
}

func (m *Monitor) Start() error {
	m.registerAttempts = mustRegister(m, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voicedesk",
		Subsystem: "softphone",
		Name:      "register_attempts",
		Help:      "Number of registration attempts issued to the signaling server",
	}))
	m.registerFailures = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicedesk",
		Subsystem: "softphone",
		Name:      "register_failures",
		Help:      "Number of failed registration attempts",
	}, []string{"reason"}))
	m.registered = mustRegister(m, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "voicedesk",
		Subsystem: "softphone",
		Name:      "registered",
		Help:      "Whether the client is currently registered (1) or not (0)",
	}))
	m.callsActive = mustRegister(m, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "voicedesk",
		Subsystem: "softphone",
		Name:      "calls_active",
		Help:      "Number of active calls (0 or 1)",
	}))
	m.callsTerminated = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicedesk",
		Subsystem: "softphone",
		Name:      "calls_terminated",
		Help:      "Number of terminated calls by outcome category",
	}, []string{"category"}))
	m.dialRetries = mustRegister(m, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "voicedesk",
		Subsystem: "softphone",
		Name:      "dial_retries",
		Help:      "Number of queued dial attempts retried while waiting for registration",
	}))
	m.eventsDropped = mustRegister(m, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicedesk",
		Subsystem: "softphone",
		Name:      "events_dropped",
		Help:      "Number of stale or duplicate engine events dropped by the router",
	}, []string{"kind"}))
	m.durCall = mustRegister(m, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "voicedesk",
		Subsystem: "softphone",
		Name:      "call_duration_seconds",
		Help:      "Answered call duration",
		Buckets:   durBucketsCall,
	}))

	m.started.Break()
	return nil
}

func (m *Monitor) Stop() {
	m.shutdown.Once(func() {
		for _, c := range m.metrics {
			prometheus.Unregister(c)
		}
		m.metrics = nil
	})
}

func (m *Monitor) RegisterAttempt() {
	if m.registerAttempts != nil {
		m.registerAttempts.Inc()
	}
}

func (m *Monitor) RegisterFailure(reason string) {
	if m.registerFailures != nil {
		m.registerFailures.WithLabelValues(reason).Inc()
	}
}

func (m *Monitor) SetRegistered(ok bool) {
	if m.registered == nil {
		return
	}
	if ok {
		m.registered.Set(1)
	} else {
		m.registered.Set(0)
	}
}

func (m *Monitor) CallStarted() {
	if m.callsActive != nil {
		m.callsActive.Inc()
	}
}

func (m *Monitor) CallEnded(category string, dur time.Duration) {
	if m.callsActive != nil {
		m.callsActive.Dec()
	}
	if m.callsTerminated != nil {
		m.callsTerminated.WithLabelValues(category).Inc()
	}
	if m.durCall != nil && dur > 0 {
		m.durCall.Observe(dur.Seconds())
	}
}

func (m *Monitor) DialRetry() {
	if m.dialRetries != nil {
		m.dialRetries.Inc()
	}
}

func (m *Monitor) EventDropped(kind string) {
	if m.eventsDropped != nil {
		m.eventsDropped.WithLabelValues(kind).Inc()
	}
}
