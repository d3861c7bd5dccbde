// Command adsb-pipeline runs the ADS-B/Mode-S decode pipeline: DSP front
// end, decoder, tracker, rate limiter, sink broadcasters, and the
// snapshot/control HTTP surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"flag"

	"github.com/cwsl/adsb-pipeline/internal/config"
	"github.com/cwsl/adsb-pipeline/internal/pipeline"
	"github.com/cwsl/adsb-pipeline/internal/source"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML configuration file")
	filePath := flag.String("file", "", "Replay from a Complex32 sample file")
	gainDB := flag.Float64("gain", 0, "SDR gain (dB); device default is out of scope, kept for CLI compatibility")
	preambleThreshold := flag.Float64("preamble-threshold", 0, "Absolute preamble correlation threshold (T_abs); 0 keeps the configured default")

	rateLimit := flag.Bool("rate-limit", false, "Enable the per-aircraft rate limiter")
	positionRateMs := flag.Int("position-rate-ms", 0, "Position StateUpdate interval in ms (0 keeps the configured default)")
	velocityRateMs := flag.Int("velocity-rate-ms", 0, "Velocity StateUpdate interval in ms")
	identificationRateMs := flag.Int("identification-rate-ms", 0, "Identification StateUpdate interval in ms")
	metadataRateMs := flag.Int("metadata-rate-ms", 0, "Metadata StateUpdate interval in ms")

	beast := flag.Bool("beast", true, "Enable the BEAST sink")
	noBeast := flag.Bool("no-beast", false, "Disable the BEAST sink")
	beastPort := flag.Int("beast-port", 0, "BEAST sink port")
	raw := flag.Bool("raw", true, "Enable the Raw hex sink")
	noRaw := flag.Bool("no-raw", false, "Disable the Raw hex sink")
	rawPort := flag.Int("raw-port", 0, "Raw sink port")
	avr := flag.Bool("avr", false, "Enable the AVR sink")
	avrPort := flag.Int("avr-port", 0, "AVR sink port")
	sbs1 := flag.Bool("sbs1", false, "Enable the SBS-1 CSV sink")
	sbs1Port := flag.Int("sbs1-port", 0, "SBS-1 sink port")
	ws := flag.Bool("websocket", false, "Enable the WebSocket state sink")
	wsPort := flag.Int("websocket-port", 0, "WebSocket sink port")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "adsb-pipeline: %v\n", err)
		os.Exit(1)
	}
	applyFlags(cfg, flagOverrides{
		filePath:             *filePath,
		gainDB:               *gainDB,
		preambleThreshold:    *preambleThreshold,
		rateLimit:            *rateLimit,
		positionRateMs:       *positionRateMs,
		velocityRateMs:       *velocityRateMs,
		identificationRateMs: *identificationRateMs,
		metadataRateMs:       *metadataRateMs,
		beast:                *beast,
		noBeast:              *noBeast,
		beastPort:            *beastPort,
		raw:                  *raw,
		noRaw:                *noRaw,
		rawPort:              *rawPort,
		avr:                  *avr,
		avrPort:              *avrPort,
		sbs1:                 *sbs1,
		sbs1Port:             *sbs1Port,
		websocket:            *ws,
		websocketPort:        *wsPort,
	})

	log := config.NewLogger(cfg.LogLevel)

	if cfg.Pipeline.ReplayFile == "" {
		log.Fatal("no sample source configured: pass --file <path> to replay a Complex32 sample file (SDR hardware capture is an external collaborator, out of scope for this build)")
	}
	f, err := os.Open(cfg.Pipeline.ReplayFile)
	if err != nil {
		log.WithError(err).Fatal("failed to open replay file")
	}
	defer f.Close()
	reader := source.NewReader(f)

	p, err := pipeline.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build pipeline")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	if err := p.Run(ctx, reader); err != nil {
		log.WithError(err).Fatal("pipeline exited with error")
	}
}

// flagOverrides holds every CLI flag that can override the loaded config,
// per spec.md section 6's flag table.
type flagOverrides struct {
	filePath             string
	gainDB               float64
	preambleThreshold    float64
	rateLimit            bool
	positionRateMs       int
	velocityRateMs       int
	identificationRateMs int
	metadataRateMs       int

	beast, noBeast bool
	beastPort      int
	raw, noRaw     bool
	rawPort        int
	avr            bool
	avrPort        int
	sbs1           bool
	sbs1Port       int
	websocket      bool
	websocketPort  int
}

func applyFlags(cfg *config.Config, f flagOverrides) {
	if f.filePath != "" {
		cfg.Pipeline.ReplayFile = f.filePath
	}
	if f.gainDB != 0 {
		cfg.Pipeline.GainDB = f.gainDB
	}
	if f.preambleThreshold != 0 {
		cfg.Pipeline.PreambleThreshold = f.preambleThreshold
	}

	if f.rateLimit {
		cfg.RateLimit.Enabled = true
	}
	if f.positionRateMs > 0 {
		cfg.RateLimit.PositionMs = f.positionRateMs
	}
	if f.velocityRateMs > 0 {
		cfg.RateLimit.VelocityMs = f.velocityRateMs
	}
	if f.identificationRateMs > 0 {
		cfg.RateLimit.IdentificationMs = f.identificationRateMs
	}
	if f.metadataRateMs > 0 {
		cfg.RateLimit.MetadataMs = f.metadataRateMs
	}

	cfg.Sinks.Beast.Enabled = f.beast && !f.noBeast
	if f.beastPort > 0 {
		cfg.Sinks.Beast.Port = f.beastPort
	}
	cfg.Sinks.Raw.Enabled = f.raw && !f.noRaw
	if f.rawPort > 0 {
		cfg.Sinks.Raw.Port = f.rawPort
	}
	if f.avr {
		cfg.Sinks.AVR.Enabled = true
	}
	if f.avrPort > 0 {
		cfg.Sinks.AVR.Port = f.avrPort
	}
	if f.sbs1 {
		cfg.Sinks.SBS1.Enabled = true
	}
	if f.sbs1Port > 0 {
		cfg.Sinks.SBS1.Port = f.sbs1Port
	}
	if f.websocket {
		cfg.Sinks.WebSocket.Enabled = true
	}
	if f.websocketPort > 0 {
		cfg.Sinks.WebSocket.Port = f.websocketPort
	}
}
