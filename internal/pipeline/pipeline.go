// Package pipeline wires the DSP front end, decoder, tracker, rate
// limiter and sink hub into one running system: bounded channels
// between stages, a single errgroup.Group for goroutine lifecycle, and
// cooperative shutdown via context.Context, per spec.md section 5.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sirupsen/logrus"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
	"github.com/cwsl/adsb-pipeline/internal/config"
	"github.com/cwsl/adsb-pipeline/internal/decoder"
	"github.com/cwsl/adsb-pipeline/internal/dsp"
	"github.com/cwsl/adsb-pipeline/internal/mcpserver"
	"github.com/cwsl/adsb-pipeline/internal/metrics"
	"github.com/cwsl/adsb-pipeline/internal/mqttpublish"
	"github.com/cwsl/adsb-pipeline/internal/ratelimit"
	"github.com/cwsl/adsb-pipeline/internal/sinks"
	"github.com/cwsl/adsb-pipeline/internal/snapshot"
	"github.com/cwsl/adsb-pipeline/internal/source"
	"github.com/cwsl/adsb-pipeline/internal/tracker"
)

// channel depths between stages; bounded so a slow downstream stage applies
// backpressure rather than growing memory without limit.
const (
	sampleQueueDepth = 64
	frameQueueDepth  = 2048
	packetQueueDepth = 2048
)

// sweepInterval is how often the RateLimiter's pending slots are drained.
const sweepInterval = 50 * time.Millisecond

// evictInterval is how often the Tracker/RateLimiter inactivity sweeps run.
const evictInterval = 5 * time.Second

// Pipeline owns every pipeline stage and ambient service (metrics, MQTT
// publisher, MCP server, snapshot/control HTTP surface).
type Pipeline struct {
	cfg *config.Config
	log *logrus.Entry

	dspCfg  dsp.Config
	decoder *decoder.Decoder
	tracker *tracker.Tracker
	limiter *ratelimit.RateLimiter
	hub     *sinks.Hub
	metrics *metrics.Metrics

	snap *snapshot.Server
	mcp  *mcpserver.Server
	mqtt *mqttpublish.Publisher

	prevRL metrics.RateLimiterCounters
}

// New builds a Pipeline from a loaded configuration. It wires but does not
// start any goroutines or listeners; call Run to start.
func New(cfg *config.Config, log *logrus.Logger) (*Pipeline, error) {
	if log == nil {
		log = config.NewLogger(cfg.LogLevel)
	}
	entry := log.WithField("component", "pipeline")

	trackerCfg := tracker.DefaultConfig()
	if cfg.Pipeline.AircraftLifetimeMs > 0 {
		trackerCfg.Lifetime = time.Duration(cfg.Pipeline.AircraftLifetimeMs) * time.Millisecond
	}
	if cfg.Pipeline.AircraftGraceMs > 0 {
		trackerCfg.GraceInterval = time.Duration(cfg.Pipeline.AircraftGraceMs) * time.Millisecond
	}
	if cfg.Pipeline.AircraftCap > 0 {
		trackerCfg.Cap = cfg.Pipeline.AircraftCap
	}

	rlCfg := ratelimit.DefaultConfig()
	if cfg.RateLimit.Enabled {
		rlCfg.PositionInterval = time.Duration(cfg.RateLimit.PositionMs) * time.Millisecond
		rlCfg.VelocityInterval = time.Duration(cfg.RateLimit.VelocityMs) * time.Millisecond
		rlCfg.IdentificationInterval = time.Duration(cfg.RateLimit.IdentificationMs) * time.Millisecond
		rlCfg.MetadataInterval = time.Duration(cfg.RateLimit.MetadataMs) * time.Millisecond
	} else {
		rlCfg.PositionInterval = 0
		rlCfg.VelocityInterval = 0
		rlCfg.IdentificationInterval = 0
		rlCfg.MetadataInterval = 0
	}
	rlCfg.EvictionTimeout = trackerCfg.Lifetime + trackerCfg.GraceInterval

	dspCfg := dsp.DefaultConfig()
	if cfg.Pipeline.PreambleThreshold > 0 {
		dspCfg.TAbs = cfg.Pipeline.PreambleThreshold
	}

	sinksCfg := sinks.Config{QueueDepth: cfg.Sinks.QueueDepth}
	if sinksCfg.QueueDepth <= 0 {
		sinksCfg.QueueDepth = 1024
	}
	if cfg.Sinks.Beast.Enabled {
		sinksCfg.BeastAddr = fmt.Sprintf("0.0.0.0:%d", orDefault(cfg.Sinks.Beast.Port, sinks.DefaultBeastPort))
	}
	if cfg.Sinks.Raw.Enabled {
		sinksCfg.RawAddr = fmt.Sprintf("0.0.0.0:%d", orDefault(cfg.Sinks.Raw.Port, sinks.DefaultRawPort))
	}
	if cfg.Sinks.AVR.Enabled {
		sinksCfg.AVRAddr = fmt.Sprintf("0.0.0.0:%d", orDefault(cfg.Sinks.AVR.Port, sinks.DefaultAVRPort))
	}
	if cfg.Sinks.SBS1.Enabled {
		sinksCfg.SBS1Addr = fmt.Sprintf("0.0.0.0:%d", orDefault(cfg.Sinks.SBS1.Port, sinks.DefaultSBS1Port))
	}
	if cfg.Sinks.WebSocket.Enabled {
		// WSAddr is a presence flag here, not a bind address: the WebSocket
		// sink upgrades from the shared snapshot HTTP router (see Run)
		// rather than owning its own listener, since gorilla/websocket
		// needs an existing http.Server to upgrade from.
		sinksCfg.WSAddr = "/ws"
	}

	m := metrics.New()
	tr := tracker.New(trackerCfg)
	rl := ratelimit.New(rlCfg)
	hub := sinks.NewHub(sinksCfg, log)
	snap := snapshot.New(tr, rl, log)

	p := &Pipeline{
		cfg:     cfg,
		log:     entry,
		dspCfg:  dspCfg,
		decoder: decoder.New(),
		tracker: tr,
		limiter: rl,
		hub:     hub,
		metrics: m,
		snap:    snap,
	}

	if cfg.MCP.Enabled {
		p.mcp = mcpserver.New(tr, rl)
	}
	if cfg.MQTT.Enabled {
		mqttCfg := mqttpublish.Config{
			Enabled:         true,
			Broker:          cfg.MQTT.Broker,
			Topic:           cfg.MQTT.Topic,
			PublishInterval: time.Duration(cfg.MQTT.IntervalMs) * time.Millisecond,
		}
		pub, err := mqttpublish.New(mqttCfg, log)
		if err != nil {
			return nil, fmt.Errorf("pipeline: mqtt publisher: %w", err)
		}
		p.mqtt = pub
	}

	return p, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// Run starts every listener and goroutine, and blocks until ctx is
// canceled or a stage reports a fatal error (spec.md section 7 class 5:
// bind failures). reader supplies the sample stream (a replay file via
// source.NewReader, or any other io.Reader of the same Complex32 format);
// reaching its end drains the decode chain and stops sample processing
// without stopping the sink/snapshot/control listeners, which keep
// serving the tracker's last known state until ctx is canceled.
func (p *Pipeline) Run(ctx context.Context, reader *source.Reader) error {
	router := p.snap.Mux()
	if err := p.hub.Start(router); err != nil {
		return fmt.Errorf("pipeline: sink listen: %w", err)
	}
	if p.mcp != nil {
		router.Handle("/mcp", p.mcp.HTTPServer())
	}

	listenAddr := p.cfg.Prometheus.Listen
	if listenAddr == "" {
		listenAddr = ":9090"
	}
	if err := p.snap.ListenHTTP(listenAddr); err != nil {
		return fmt.Errorf("pipeline: snapshot http listen: %w", err)
	}
	ctrlAddr := p.cfg.CtrlPortBind
	if ctrlAddr == "" {
		ctrlAddr = "127.0.0.1:8888"
	}
	if err := p.snap.ListenControl(ctrlAddr); err != nil {
		return fmt.Errorf("pipeline: control port listen: %w", err)
	}
	defer p.snap.Close()
	defer p.hub.Close()

	if p.mqtt != nil {
		go p.mqtt.Start(ctx)
	}

	if pg := p.cfg.Prometheus.Pushgateway; pg.Enabled {
		p.metrics.StartPushgatewayWorker(ctx, metrics.PushgatewayConfig{
			Enabled:  pg.Enabled,
			URL:      pg.URL,
			JobName:  pg.JobName,
			Instance: pg.Instance,
			Interval: time.Duration(pg.IntervalMs) * time.Millisecond,
		}, p.log.Logger)
	}

	g, ctx := errgroup.WithContext(ctx)

	samplesCh := make(chan []adsb.Sample, sampleQueueDepth)
	framesCh := make(chan adsb.RawFrame, frameQueueDepth)
	packetsCh := make(chan adsb.Packet, packetQueueDepth)

	g.Go(func() error { return p.readSamples(ctx, reader, samplesCh) })
	g.Go(func() error { return p.runDSP(ctx, samplesCh, framesCh) })
	g.Go(func() error { return p.runDecode(ctx, framesCh, packetsCh) })
	g.Go(func() error { return p.runTracker(ctx, packetsCh) })
	g.Go(func() error { return p.runSweep(ctx) })

	return g.Wait()
}

// readSamples pulls sample batches from reader until ctx is canceled or
// the stream is exhausted (io.EOF, a normal, non-error end for a replay
// file), closing samplesCh either way.
func (p *Pipeline) readSamples(ctx context.Context, reader *source.Reader, out chan<- []adsb.Sample) error {
	defer close(out)
	for {
		batch, err := reader.Next()
		if len(batch) > 0 {
			select {
			case out <- batch:
			case <-ctx.Done():
				return nil
			}
		}
		if err != nil {
			if err == io.EOF {
				p.log.Info("sample source exhausted")
				return nil
			}
			return fmt.Errorf("pipeline: sample read: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}
