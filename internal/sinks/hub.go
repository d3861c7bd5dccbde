package sinks

import (
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/cwsl/adsb-pipeline/internal/adsb"
)

// Ports are the default listen ports from spec.md 4.7.
const (
	DefaultBeastPort = 30005
	DefaultRawPort   = 30002
	DefaultAVRPort   = 30001
	DefaultSBS1Port  = 30003
	DefaultWSPort    = 8080
)

// Config controls the sink hub's listen addresses and per-client queue
// depth. Any address left empty disables that sink.
type Config struct {
	BeastAddr  string
	RawAddr    string
	AVRAddr    string
	SBS1Addr   string
	WSAddr     string
	QueueDepth int
}

// DefaultConfig binds every sink to localhost on its spec-default port.
func DefaultConfig() Config {
	return Config{
		BeastAddr:  "127.0.0.1:30005",
		RawAddr:    "127.0.0.1:30002",
		AVRAddr:    "127.0.0.1:30001",
		SBS1Addr:   "127.0.0.1:30003",
		WSAddr:     "127.0.0.1:8080",
		QueueDepth: 1024,
	}
}

// Hub owns every sink broadcaster and routes decoded data to them: raw-frame
// sinks (BEAST/Raw/AVR) see every CRC-valid RawFrame and bypass the
// RateLimiter entirely, per spec.md 4.7; state sinks (SBS-1/WebSocket) see
// rate-limited StateUpdates.
type Hub struct {
	cfg   Config
	beast *Broadcaster
	raw   *Broadcaster
	avr   *Broadcaster
	sbs1  *Broadcaster
	ws    *WSStateSink

	log *logrus.Entry
}

// NewHub constructs a Hub; call Start to bind listeners.
func NewHub(cfg Config, log *logrus.Logger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &Hub{log: log.WithField("component", "sinks")}
	if cfg.BeastAddr != "" {
		h.beast = NewBroadcaster("beast", cfg.QueueDepth, log)
	}
	if cfg.RawAddr != "" {
		h.raw = NewBroadcaster("raw", cfg.QueueDepth, log)
	}
	if cfg.AVRAddr != "" {
		h.avr = NewBroadcaster("avr", cfg.QueueDepth, log)
	}
	if cfg.SBS1Addr != "" {
		h.sbs1 = NewBroadcaster("sbs1", cfg.QueueDepth, log)
	}
	if cfg.WSAddr != "" {
		h.ws = NewWSStateSink(cfg.QueueDepth, log)
	}
	h.cfg = cfg
	return h
}

// Start binds every configured sink's listener. The WebSocket sink is
// mounted on router rather than given its own listener, since it upgrades
// from an existing HTTP server (the snapshot server, per spec.md 4.8).
func (h *Hub) Start(router *mux.Router) error {
	if h.beast != nil {
		if err := h.beast.Listen(h.cfg.BeastAddr); err != nil {
			return err
		}
	}
	if h.raw != nil {
		if err := h.raw.Listen(h.cfg.RawAddr); err != nil {
			return err
		}
	}
	if h.avr != nil {
		if err := h.avr.Listen(h.cfg.AVRAddr); err != nil {
			return err
		}
	}
	if h.sbs1 != nil {
		if err := h.sbs1.Listen(h.cfg.SBS1Addr); err != nil {
			return err
		}
	}
	if h.ws != nil && router != nil {
		router.Handle("/ws", h.ws)
	}
	return nil
}

// PublishRawFrame fans a CRC-valid RawFrame out to the BEAST/Raw/AVR sinks.
func (h *Hub) PublishRawFrame(f adsb.RawFrame) {
	if h.beast != nil {
		h.beast.Broadcast(EncodeBEAST(f))
	}
	if h.raw != nil {
		h.raw.Broadcast(EncodeRaw(f))
	}
	if h.avr != nil {
		h.avr.Broadcast(EncodeAVR(f))
	}
}

// PublishStateUpdate fans a rate-limited StateUpdate out to the SBS-1 and
// WebSocket sinks.
func (h *Hub) PublishStateUpdate(u adsb.StateUpdate) {
	line := EncodeSBS1(u)
	if h.sbs1 != nil {
		h.sbs1.Broadcast(line)
	}
	if h.ws != nil {
		h.ws.Broadcast(line)
	}
}

// HubStats summarizes every sink's client count and loss for the metrics
// and snapshot-server surfaces.
type HubStats struct {
	Beast, Raw, AVR, SBS1 Stats
	WSClients             int
	WSDropped             uint64
	WSBytes               uint64
}

// Stats snapshots every sink's counters.
func (h *Hub) Stats() HubStats {
	var s HubStats
	if h.beast != nil {
		s.Beast = h.beast.Stats()
	}
	if h.raw != nil {
		s.Raw = h.raw.Stats()
	}
	if h.avr != nil {
		s.AVR = h.avr.Stats()
	}
	if h.sbs1 != nil {
		s.SBS1 = h.sbs1.Stats()
	}
	if h.ws != nil {
		s.WSClients = h.ws.ClientCount()
		s.WSDropped = h.ws.Dropped()
		s.WSBytes = h.ws.BytesSent()
	}
	return s
}

// Close shuts down the BEAST, Raw, AVR and SBS-1 listeners and disconnects
// their clients. WebSocket clients are not touched; they ride the shared
// HTTP server.
func (h *Hub) Close() error {
	for _, b := range []*Broadcaster{h.beast, h.raw, h.avr, h.sbs1} {
		if b != nil {
			b.Close()
		}
	}
	return nil
}
