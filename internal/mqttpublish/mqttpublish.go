// Package mqttpublish optionally republishes the pipeline's Prometheus
// metrics as a single JSON payload over MQTT, for deployments that already
// have an MQTT broker wired into their monitoring stack.
package mqttpublish

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sirupsen/logrus"
)

// TLSConfig carries optional client/CA certificate paths.
type TLSConfig struct {
	Enabled    bool
	CACert     string
	ClientCert string
	ClientKey  string
}

// Config controls the MQTT connection and publish cadence.
type Config struct {
	Enabled         bool
	Broker          string
	Username        string
	Password        string
	Topic           string
	PublishInterval time.Duration
	TLS             TLSConfig
}

// Payload is the JSON document published on each tick.
type Payload struct {
	Timestamp int64              `json:"timestamp"`
	Metrics   map[string]float64 `json:"metrics"`
}

func generateClientID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "adsb_pipeline_" + hex.EncodeToString(b)
}

func loadTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if cfg.CACert != "" {
		ca, err := os.ReadFile(cfg.CACert)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(ca) {
			return nil, fmt.Errorf("parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if cfg.ClientCert != "" && cfg.ClientKey != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// Publisher connects to an MQTT broker and periodically publishes a JSON
// snapshot of every metric in the default Prometheus registry.
type Publisher struct {
	client mqtt.Client
	cfg    Config
	log    *logrus.Entry
}

// New connects to the configured broker and returns a Publisher. Callers
// should check cfg.Enabled before calling New.
func New(cfg Config, log *logrus.Logger) (*Publisher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	entry := log.WithField("component", "mqtt")

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(generateClientID())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	if cfg.TLS.Enabled {
		tlsCfg, err := loadTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("mqtt TLS config: %w", err)
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) { entry.Info("connected to broker") })
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) { entry.WithError(err).Warn("connection lost") })
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) { entry.Info("reconnecting") })

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}

	return &Publisher{client: client, cfg: cfg, log: entry}, nil
}

// Start runs the publish loop until ctx is canceled, publishing immediately
// and then every cfg.PublishInterval.
func (p *Publisher) Start(ctx context.Context) {
	interval := p.cfg.PublishInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.publishOnce()
	for {
		select {
		case <-ctx.Done():
			p.client.Disconnect(250)
			return
		case <-ticker.C:
			p.publishOnce()
		}
	}
}

func (p *Publisher) publishOnce() {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		p.log.WithError(err).Warn("failed to gather metrics")
		return
	}

	values := make(map[string]float64)
	for _, mf := range families {
		name := mf.GetName()
		for _, m := range mf.GetMetric() {
			v := extractValue(m)
			if v == nil {
				continue
			}
			key := name
			for _, l := range m.GetLabel() {
				key = fmt.Sprintf("%s.%s", key, l.GetValue())
			}
			values[key] = *v
		}
	}

	payload := Payload{Timestamp: time.Now().Unix(), Metrics: values}
	body, err := json.Marshal(payload)
	if err != nil {
		p.log.WithError(err).Warn("failed to marshal payload")
		return
	}

	token := p.client.Publish(p.cfg.Topic, 0, false, body)
	token.Wait()
	if err := token.Error(); err != nil {
		p.log.WithError(err).Warn("publish failed")
	}
}

func extractValue(m *dto.Metric) *float64 {
	switch {
	case m.GetGauge() != nil:
		v := m.GetGauge().GetValue()
		return &v
	case m.GetCounter() != nil:
		v := m.GetCounter().GetValue()
		return &v
	case m.GetHistogram() != nil:
		v := m.GetHistogram().GetSampleSum()
		return &v
	default:
		return nil
	}
}
