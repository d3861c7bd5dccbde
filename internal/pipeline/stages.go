package pipeline

import (
	"context"
	"time"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
	"github.com/cwsl/adsb-pipeline/internal/dsp"
	"github.com/cwsl/adsb-pipeline/internal/metrics"
	"github.com/cwsl/adsb-pipeline/internal/ratelimit"
)

func metricsRateLimiterSnapshot(s ratelimit.Stats) metrics.RateLimiterCounters {
	return metrics.RateLimiterCounters{
		TotalReceived:      s.TotalReceived,
		AllowedImmediately: s.AllowedImmediately,
		RateLimited:        s.RateLimited,
	}
}

// carryLen is the number of trailing magnitude samples retained across
// batches so a preamble spanning a batch boundary is not missed, per
// dsp.Detector.Detect's documented buffering contract.
const carryLen = dsp.TemplateLen + 2*dsp.GuardHalf - 1

// maxPayloadSamples is the largest payload a hit can need: a 112-bit frame
// at 4 samples/chip.
const maxPayloadSamples = 112 * dsp.SamplesPerChip

// runDSP turns sample batches into demodulated RawFrames: magnitude,
// noise-floor tracking, preamble correlation and PPM demodulation, per
// spec.md sections 4.1-4.3.
func (p *Pipeline) runDSP(ctx context.Context, in <-chan []adsb.Sample, out chan<- adsb.RawFrame) error {
	defer close(out)

	noise := dsp.NewNoiseFloor(dsp.DefaultWindowSamples, dsp.DefaultPercentile, dsp.DefaultStride)
	det := dsp.NewDetector(p.dspCfg)
	demod := dsp.NewDemodulator()

	var buf []float32
	var base int64
	var pending []dsp.PreambleHit

	for {
		var batch []adsb.Sample
		var ok bool
		select {
		case batch, ok = <-in:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return nil
		}

		mags := dsp.MagnitudeBatch(batch, nil)
		noise.UpdateBatch(mags)
		buf = append(buf, mags...)

		estimate := noise.Estimate()
		noiseArr := make([]float64, len(buf))
		for i := range noiseArr {
			noiseArr[i] = estimate
		}

		hits := det.Detect(buf, noiseArr, base)
		for range hits {
			p.metrics.RecordPreambleHit()
		}
		hits = append(pending, hits...)
		pending = pending[:0]

		for _, hit := range hits {
			offset := int(hit.SampleIndex - base)
			if offset < 0 || offset+dsp.TemplateLen > len(buf) {
				continue // suppressed hit from before the retained window
			}
			if offset+dsp.TemplateLen+maxPayloadSamples > len(buf) {
				pending = append(pending, hit) // need more samples; retry next batch
				continue
			}
			preambleMags := buf[offset : offset+dsp.TemplateLen]
			payloadMags := buf[offset+dsp.TemplateLen:]
			frame, ok := demod.Demodulate(hit, preambleMags, payloadMags)
			if !ok {
				continue
			}
			p.metrics.RecordFrameDemodulated(len(frame.Bits))
			select {
			case out <- frame:
			case <-ctx.Done():
				return nil
			}
		}

		keepFrom := base + int64(len(buf)) - carryLen
		if len(pending) > 0 && pending[0].SampleIndex < keepFrom {
			keepFrom = pending[0].SampleIndex
		}
		if keepFrom > base {
			drop := int(keepFrom - base)
			if drop > len(buf) {
				drop = len(buf)
			}
			buf = append(buf[:0], buf[drop:]...)
			base += int64(drop)
		}
	}
}

// runDecode validates and classifies RawFrames, forwarding CRC-valid frames
// to the raw-frame sinks (which bypass the rate limiter entirely, per
// spec.md 4.6/4.7) and every CRC-valid packet to the tracker, which itself
// ignores anything other than DF17/18.
func (p *Pipeline) runDecode(ctx context.Context, in <-chan adsb.RawFrame, out chan<- adsb.Packet) error {
	defer close(out)
	forwardInvalid := p.cfg.Sinks.ForwardInvalid

	for {
		var frame adsb.RawFrame
		var ok bool
		select {
		case frame, ok = <-in:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return nil
		}

		start := time.Now()
		pkt, valid := p.decoder.Decode(frame)
		p.metrics.RecordCRC(valid)

		if valid {
			p.hub.PublishRawFrame(frame)
			p.metrics.RecordPacketKind(pkt.Kind.String())
			p.metrics.ObserveDecodeLatency(time.Since(start))
			select {
			case out <- pkt:
			case <-ctx.Done():
				return nil
			}
		} else if forwardInvalid {
			p.hub.PublishRawFrame(frame)
		}
	}
}

// runTracker is the Tracker's single writer: it applies each decoded
// Packet to the aircraft map and, if a field class changed, either
// publishes the resulting StateUpdate immediately or hands it to the
// RateLimiter for coalescing, per spec.md 4.5/4.6.
func (p *Pipeline) runTracker(ctx context.Context, in <-chan adsb.Packet) error {
	rateLimitEnabled := p.cfg.RateLimit.Enabled
	for {
		var pkt adsb.Packet
		var ok bool
		select {
		case pkt, ok = <-in:
			if !ok {
				return nil
			}
		case <-ctx.Done():
			return nil
		}

		update, changed := p.tracker.Handle(pkt)
		if !changed {
			continue
		}
		if !rateLimitEnabled {
			p.hub.PublishStateUpdate(update)
			continue
		}
		if emit, allowed := p.limiter.Process(update); allowed {
			p.hub.PublishStateUpdate(emit)
		}
	}
}

// runSweep periodically drains the RateLimiter's ready pending updates,
// evicts inactive aircraft/limiter state, and refreshes the gauges that
// can't be updated inline (active aircraft, sink client/drop counts).
func (p *Pipeline) runSweep(ctx context.Context) error {
	drainTicker := time.NewTicker(sweepInterval)
	defer drainTicker.Stop()
	evictTicker := time.NewTicker(evictInterval)
	defer evictTicker.Stop()

	prevSinkSent := map[string]uint64{}
	prevSinkDropped := map[string]uint64{}
	prevSinkBytes := map[string]uint64{}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-drainTicker.C:
			now := time.Now()
			for _, u := range p.limiter.DrainReady(now) {
				p.hub.PublishStateUpdate(u)
			}
			p.refreshRateLimiterMetrics()
		case <-evictTicker.C:
			now := time.Now()
			for range p.tracker.Sweep(now) {
				p.metrics.RecordTrackerEviction()
			}
			p.limiter.Evict(now)
			p.metrics.SetActiveAircraft(p.tracker.Len())
			p.refreshRateLimiterMetrics()
			p.refreshSinkMetrics(prevSinkSent, prevSinkDropped, prevSinkBytes)
		}
	}
}

func (p *Pipeline) refreshRateLimiterMetrics() {
	stats := p.limiter.Stats()
	p.metrics.UpdateRateLimiterStats(
		stats.TotalReceived, stats.AllowedImmediately, stats.RateLimited,
		stats.PendingNow, stats.ActiveAircraft, &p.prevRL,
	)
	p.prevRL = metricsRateLimiterSnapshot(stats)
}

func (p *Pipeline) refreshSinkMetrics(prevSent, prevDropped, prevBytes map[string]uint64) {
	stats := p.hub.Stats()
	named := map[string]struct {
		clients int
		sent    uint64
		dropped uint64
		bytes   uint64
	}{
		"beast": {clients: stats.Beast.Clients, sent: stats.Beast.TotalSent, dropped: stats.Beast.TotalDropped, bytes: stats.Beast.TotalBytes},
		"raw":   {clients: stats.Raw.Clients, sent: stats.Raw.TotalSent, dropped: stats.Raw.TotalDropped, bytes: stats.Raw.TotalBytes},
		"avr":   {clients: stats.AVR.Clients, sent: stats.AVR.TotalSent, dropped: stats.AVR.TotalDropped, bytes: stats.AVR.TotalBytes},
		"sbs1":  {clients: stats.SBS1.Clients, sent: stats.SBS1.TotalSent, dropped: stats.SBS1.TotalDropped, bytes: stats.SBS1.TotalBytes},
		"ws":    {clients: stats.WSClients, sent: 0, dropped: stats.WSDropped, bytes: stats.WSBytes},
	}
	for name, v := range named {
		p.metrics.SetSinkClients(name, v.clients)
		if v.sent >= prevSent[name] {
			p.metrics.AddSinkSent(name, v.sent-prevSent[name])
		}
		if v.dropped >= prevDropped[name] {
			p.metrics.AddSinkDropped(name, v.dropped-prevDropped[name])
		}
		if v.bytes >= prevBytes[name] {
			p.metrics.AddSinkBytes(name, v.bytes-prevBytes[name])
		}
		prevSent[name] = v.sent
		prevDropped[name] = v.dropped
		prevBytes[name] = v.bytes
	}
}
