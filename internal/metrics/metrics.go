// Package metrics exposes the pipeline's Prometheus collectors: per-stage
// counters for the DSP front end, the decoder, the tracker, the rate
// limiter, and every sink, plus an optional Pushgateway push loop.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/sirupsen/logrus"
)

// Metrics holds every collector registered against the default registry.
type Metrics struct {
	preambleHits      prometheus.Counter
	framesDemodulated *prometheus.CounterVec // label: frame_bits
	crcValid          prometheus.Counter
	crcInvalid        prometheus.Counter
	packetsByKind     *prometheus.CounterVec // label: kind
	decodeLatency     prometheus.Histogram

	trackerActiveAircraft prometheus.Gauge
	trackerEvictions      prometheus.Counter

	rateLimiterReceived  prometheus.Counter
	rateLimiterImmediate prometheus.Counter
	rateLimiterLimited   prometheus.Counter
	rateLimiterPending   prometheus.Gauge
	rateLimiterActive    prometheus.Gauge

	sinkClients *prometheus.GaugeVec   // label: sink
	sinkDropped *prometheus.CounterVec // label: sink
	sinkSent    *prometheus.CounterVec // label: sink
	sinkBytes   *prometheus.CounterVec // label: sink; rate() in PromQL gives bytes/sec

	pushgatewayPushesTotal   prometheus.Counter
	pushgatewaySuccessTotal  prometheus.Counter
	pushgatewayFailuresTotal prometheus.Counter
	pushgatewayLastPushTime  prometheus.Gauge
}

// New registers and returns the pipeline's metric collectors. Safe to call
// once per process; repeated calls against the default registry will panic,
// matching promauto's behavior.
func New() *Metrics {
	return &Metrics{
		preambleHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "adsb_preamble_hits_total",
			Help: "Preamble correlator hits that passed the noise-relative threshold.",
		}),
		framesDemodulated: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "adsb_frames_demodulated_total",
			Help: "Frames produced by the PPM demodulator, by frame length in bits.",
		}, []string{"frame_bits"}),
		crcValid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "adsb_crc_valid_total",
			Help: "Frames whose CRC-24 residue validated.",
		}),
		crcInvalid: promauto.NewCounter(prometheus.CounterOpts{
			Name: "adsb_crc_invalid_total",
			Help: "Frames discarded for a non-zero CRC-24 residue.",
		}),
		packetsByKind: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "adsb_packets_total",
			Help: "Decoded packets by ME message kind.",
		}, []string{"kind"}),
		decodeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "adsb_decode_latency_seconds",
			Help:    "Time taken to CRC-check and decode one CRC-valid RawFrame into a Packet.",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),

		trackerActiveAircraft: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "adsb_tracker_active_aircraft",
			Help: "Aircraft currently within the tracker's live lifetime window.",
		}),
		trackerEvictions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "adsb_tracker_evictions_total",
			Help: "Aircraft removed from the tracker after exceeding lifetime+grace.",
		}),

		rateLimiterReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "adsb_ratelimiter_received_total",
			Help: "StateUpdates submitted to the rate limiter.",
		}),
		rateLimiterImmediate: promauto.NewCounter(prometheus.CounterOpts{
			Name: "adsb_ratelimiter_allowed_immediately_total",
			Help: "StateUpdates emitted immediately (interval already elapsed).",
		}),
		rateLimiterLimited: promauto.NewCounter(prometheus.CounterOpts{
			Name: "adsb_ratelimiter_rate_limited_total",
			Help: "StateUpdates coalesced into a pending slot.",
		}),
		rateLimiterPending: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "adsb_ratelimiter_pending_now",
			Help: "StateUpdates currently held in a pending slot awaiting drain.",
		}),
		rateLimiterActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "adsb_ratelimiter_active_aircraft",
			Help: "Aircraft with live rate-limiter state.",
		}),

		sinkClients: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "adsb_sink_clients",
			Help: "Connected clients per sink.",
		}, []string{"sink"}),
		sinkDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "adsb_sink_dropped_total",
			Help: "Messages dropped (oldest-first) due to a full client queue.",
		}, []string{"sink"}),
		sinkSent: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "adsb_sink_messages_total",
			Help: "Messages broadcast per sink.",
		}, []string{"sink"}),
		sinkBytes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "adsb_sink_bytes_total",
			Help: "Payload bytes broadcast per sink; rate() over this gives bytes/sec.",
		}, []string{"sink"}),

		pushgatewayPushesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "adsb_pushgateway_pushes_total",
			Help: "Pushgateway push attempts.",
		}),
		pushgatewaySuccessTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "adsb_pushgateway_success_total",
			Help: "Successful Pushgateway pushes.",
		}),
		pushgatewayFailuresTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "adsb_pushgateway_failures_total",
			Help: "Failed Pushgateway pushes.",
		}),
		pushgatewayLastPushTime: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "adsb_pushgateway_last_push_timestamp",
			Help: "Unix timestamp of the last successful Pushgateway push.",
		}),
	}
}

func (m *Metrics) RecordPreambleHit() { m.preambleHits.Inc() }

func (m *Metrics) RecordFrameDemodulated(bits int) {
	m.framesDemodulated.WithLabelValues(fmt.Sprintf("%d", bits)).Inc()
}

func (m *Metrics) RecordCRC(valid bool) {
	if valid {
		m.crcValid.Inc()
	} else {
		m.crcInvalid.Inc()
	}
}

func (m *Metrics) RecordPacketKind(kind string)         { m.packetsByKind.WithLabelValues(kind).Inc() }
func (m *Metrics) ObserveDecodeLatency(d time.Duration)  { m.decodeLatency.Observe(d.Seconds()) }
func (m *Metrics) SetActiveAircraft(n int)               { m.trackerActiveAircraft.Set(float64(n)) }
func (m *Metrics) RecordTrackerEviction()                { m.trackerEvictions.Inc() }

// UpdateRateLimiterStats mirrors ratelimit.Stats onto gauges/counters. Since
// the counters are cumulative but Stats() reports a running total, this
// sets counters via Add(delta) against the last observed value.
type RateLimiterCounters struct {
	TotalReceived      uint64
	AllowedImmediately uint64
	RateLimited        uint64
}

func (m *Metrics) UpdateRateLimiterStats(received, immediate, limited, pending, active uint64, prev *RateLimiterCounters) {
	if prev != nil {
		if d := received - prev.TotalReceived; d > 0 {
			m.rateLimiterReceived.Add(float64(d))
		}
		if d := immediate - prev.AllowedImmediately; d > 0 {
			m.rateLimiterImmediate.Add(float64(d))
		}
		if d := limited - prev.RateLimited; d > 0 {
			m.rateLimiterLimited.Add(float64(d))
		}
	}
	m.rateLimiterPending.Set(float64(pending))
	m.rateLimiterActive.Set(float64(active))
}

func (m *Metrics) SetSinkClients(sink string, n int) { m.sinkClients.WithLabelValues(sink).Set(float64(n)) }
func (m *Metrics) AddSinkDropped(sink string, n uint64) {
	if n > 0 {
		m.sinkDropped.WithLabelValues(sink).Add(float64(n))
	}
}
func (m *Metrics) AddSinkSent(sink string, n uint64) {
	if n > 0 {
		m.sinkSent.WithLabelValues(sink).Add(float64(n))
	}
}
func (m *Metrics) AddSinkBytes(sink string, n uint64) {
	if n > 0 {
		m.sinkBytes.WithLabelValues(sink).Add(float64(n))
	}
}

// PushgatewayConfig configures the optional periodic push loop, grounded on
// the teacher's StartPushgatewayWorker.
type PushgatewayConfig struct {
	Enabled  bool
	URL      string
	JobName  string
	Instance string
	Interval time.Duration
}

// StartPushgatewayWorker runs a background loop that pushes the default
// registry's metrics to a Pushgateway at the configured interval, pushing
// once immediately on start. It returns once ctx is canceled.
func (m *Metrics) StartPushgatewayWorker(ctx context.Context, cfg PushgatewayConfig, log *logrus.Logger) {
	if !cfg.Enabled || cfg.URL == "" {
		return
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.JobName == "" {
		cfg.JobName = "adsb_pipeline"
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	pusher := push.New(cfg.URL, cfg.JobName).Gatherer(prometheus.DefaultGatherer)
	if cfg.Instance != "" {
		pusher = pusher.Grouping("instance", cfg.Instance)
	}

	doPush := func() {
		m.pushgatewayPushesTotal.Inc()
		if err := pusher.Push(); err != nil {
			m.pushgatewayFailuresTotal.Inc()
			log.WithError(err).Warn("pushgateway push failed")
			return
		}
		m.pushgatewaySuccessTotal.Inc()
		m.pushgatewayLastPushTime.Set(float64(time.Now().Unix()))
	}

	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()
		doPush()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				doPush()
			}
		}
	}()
}
