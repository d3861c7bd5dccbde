// Package config loads the pipeline's TOML configuration file, the way the
// teacher's config.go loads YAML — here the format is TOML per spec.md
// section 6. A local .env file is loaded into the process environment
// first, but no field is read from the environment; CLI flags are
// applied on top by cmd/adsb-pipeline.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// SinkConfig is the enable/port pair shared by every wire-format sink.
type SinkConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// SinksConfig groups the five broadcaster sinks of spec.md section 4.7.
type SinksConfig struct {
	Beast          SinkConfig `toml:"beast"`
	Raw            SinkConfig `toml:"raw"`
	AVR            SinkConfig `toml:"avr"`
	SBS1           SinkConfig `toml:"sbs1"`
	WebSocket      SinkConfig `toml:"websocket"`
	QueueDepth     int        `toml:"queue_depth"`
	ForwardInvalid bool       `toml:"forward_invalid_crc"`
}

// PipelineConfig holds the DSP-facing knobs.
type PipelineConfig struct {
	GainDB             float64 `toml:"gain_db"`
	PreambleThreshold  float64 `toml:"preamble_threshold"`
	ReplayFile         string  `toml:"replay_file"`
	AircraftLifetimeMs int     `toml:"aircraft_lifetime_ms"`
	AircraftCap        int     `toml:"aircraft_cap"`
	AircraftGraceMs    int     `toml:"aircraft_grace_ms"`
}

// RateLimitConfig holds the per-field-class interval configuration of
// spec.md section 4.6.
type RateLimitConfig struct {
	Enabled              bool `toml:"enabled"`
	PositionMs           int  `toml:"position_ms"`
	VelocityMs           int  `toml:"velocity_ms"`
	IdentificationMs     int  `toml:"identification_ms"`
	MetadataMs           int  `toml:"metadata_ms"`
}

// PrometheusConfig controls the metrics endpoint.
type PrometheusConfig struct {
	Enabled     bool              `toml:"enabled"`
	Listen      string            `toml:"listen"`
	Pushgateway PushgatewayConfig `toml:"pushgateway"`
}

// PushgatewayConfig controls the optional periodic metrics push loop.
type PushgatewayConfig struct {
	Enabled    bool   `toml:"enabled"`
	URL        string `toml:"url"`
	JobName    string `toml:"job_name"`
	Instance   string `toml:"instance"`
	IntervalMs int    `toml:"interval_ms"`
}

// MQTTConfig controls the optional metrics publisher.
type MQTTConfig struct {
	Enabled      bool   `toml:"enabled"`
	Broker       string `toml:"broker"`
	Topic        string `toml:"topic"`
	IntervalMs   int    `toml:"interval_ms"`
	ClientID     string `toml:"client_id"`
}

// MCPConfig controls the optional MCP tool server.
type MCPConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
}

// Config is the top-level TOML document, structured into one sub-struct per
// concern the way the teacher's Config is.
type Config struct {
	LogLevel     string `toml:"log_level"`
	CtrlPortBind string `toml:"ctrlport_bind"`
	FrontendPath string `toml:"frontend_path"`

	Pipeline   PipelineConfig   `toml:"pipeline"`
	RateLimit  RateLimitConfig  `toml:"rate_limit"`
	Sinks      SinksConfig      `toml:"sinks"`
	Prometheus PrometheusConfig `toml:"prometheus"`
	MQTT       MQTTConfig       `toml:"mqtt"`
	MCP        MCPConfig        `toml:"mcp"`
}

// Default returns the configuration with every default named in spec.md
// sections 4.6 and 6.
func Default() *Config {
	return &Config{
		LogLevel:     "info",
		CtrlPortBind: "127.0.0.1:8888",
		FrontendPath: "./web",
		Pipeline: PipelineConfig{
			PreambleThreshold:  10.0,
			AircraftLifetimeMs: 60_000,
			AircraftCap:        8192,
			AircraftGraceMs:    30_000,
		},
		RateLimit: RateLimitConfig{
			Enabled:          false,
			PositionMs:       500,
			VelocityMs:       1000,
			IdentificationMs: 0,
			MetadataMs:       5000,
		},
		Sinks: SinksConfig{
			Beast:          SinkConfig{Enabled: true, Port: 30005},
			Raw:            SinkConfig{Enabled: true, Port: 30002},
			AVR:            SinkConfig{Enabled: false, Port: 30001},
			SBS1:           SinkConfig{Enabled: false, Port: 30003},
			WebSocket:      SinkConfig{Enabled: false, Port: 8080},
			QueueDepth:     1024,
			ForwardInvalid: false,
		},
		Prometheus: PrometheusConfig{
			Enabled: true,
			Listen:  ":9090",
			Pushgateway: PushgatewayConfig{
				JobName:    "adsb_pipeline",
				IntervalMs: 60_000,
			},
		},
		MQTT:       MQTTConfig{IntervalMs: 10_000, Topic: "adsb-pipeline/metrics"},
		MCP:        MCPConfig{Listen: ":8899"},
	}
}

// Load reads .env (if present, silently ignored when absent) then the TOML
// file at path on top of Default().
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return cfg, nil
}

// NewLogger builds the package-level structured logger for the given
// configured level, defaulting to info on an unrecognized value.
func NewLogger(level string) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
	return l
}
