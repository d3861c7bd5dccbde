package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// New registers against the global default registry, so every collector
// exercised here must come from a single instance to avoid a duplicate
// registration panic across subtests.
func TestMetricsRecordersDoNotPanic(t *testing.T) {
	m := New()

	assert.NotPanics(t, func() {
		m.RecordPreambleHit()
		m.RecordFrameDemodulated(112)
		m.RecordCRC(true)
		m.RecordCRC(false)
		m.RecordPacketKind("airborne_position")
		m.ObserveDecodeLatency(250 * time.Microsecond)
		m.SetActiveAircraft(42)
		m.RecordTrackerEviction()

		prev := RateLimiterCounters{}
		m.UpdateRateLimiterStats(10, 3, 7, 2, 5, &prev)
		m.UpdateRateLimiterStats(20, 5, 15, 1, 4, &RateLimiterCounters{10, 3, 7})

		m.SetSinkClients("beast", 3)
		m.AddSinkDropped("beast", 2)
		m.AddSinkSent("beast", 100)
		m.AddSinkBytes("beast", 1400)

		// A disabled Pushgateway config starts nothing, so passing a nil
		// context/logger is safe: both returns happen before either is used.
		m.StartPushgatewayWorker(nil, PushgatewayConfig{Enabled: false}, nil)
	})
}
