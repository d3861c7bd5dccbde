package sinks

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsConn owns one upgraded WebSocket connection. A dedicated writer
// goroutine drains outbound, so the HTTP handler goroutine that accepted
// the connection never blocks on a slow client.
type wsConn struct {
	conn     *websocket.Conn
	outbound chan []byte
	writeMu  sync.Mutex
	dropped  int64
}

func newWSConn(conn *websocket.Conn, queueDepth int) *wsConn {
	return &wsConn{conn: conn, outbound: make(chan []byte, queueDepth)}
}

func (wc *wsConn) writer() {
	for msg := range wc.outbound {
		wc.writeMu.Lock()
		wc.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		err := wc.conn.WriteMessage(websocket.TextMessage, msg)
		wc.writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

// send enqueues msg without blocking; when the outbound channel is full it
// drops the single oldest queued message to make room, matching the
// drop-oldest policy used by the TCP broadcasters.
func (wc *wsConn) send(msg []byte) {
	select {
	case wc.outbound <- msg:
		return
	default:
	}
	select {
	case <-wc.outbound:
		atomic.AddInt64(&wc.dropped, 1)
	default:
	}
	select {
	case wc.outbound <- msg:
	default:
		atomic.AddInt64(&wc.dropped, 1)
	}
}

func (wc *wsConn) close() {
	close(wc.outbound)
	wc.conn.Close()
}

// WSStateSink serves the WebSocket state feed described by spec.md 4.7: the
// same SBS-1 CSV line delivered as a text frame to every upgraded client.
type WSStateSink struct {
	queueDepth int
	log        *logrus.Entry

	mu      sync.Mutex
	clients map[*wsConn]struct{}
	sent    uint64
	bytes   uint64
}

// NewWSStateSink builds a WSStateSink.
func NewWSStateSink(queueDepth int, log *logrus.Logger) *WSStateSink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &WSStateSink{
		queueDepth: queueDepth,
		log:        log.WithField("sink", "websocket"),
		clients:    make(map[*wsConn]struct{}),
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers the
// connection as a broadcast target until it disconnects.
func (s *WSStateSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	wc := newWSConn(conn, s.queueDepth)

	s.mu.Lock()
	s.clients[wc] = struct{}{}
	s.mu.Unlock()

	go wc.writer()

	defer func() {
		s.mu.Lock()
		delete(s.clients, wc)
		s.mu.Unlock()
		wc.close()
	}()

	// The client never sends meaningful data; read until it disconnects so
	// the handler goroutine notices the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast delivers a StateUpdate CSV line to every connected client.
func (s *WSStateSink) Broadcast(update []byte) {
	s.mu.Lock()
	clients := make([]*wsConn, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.sent++
	s.bytes += uint64(len(update))
	s.mu.Unlock()

	for _, c := range clients {
		c.send(update)
	}
}

// BytesSent reports the cumulative payload bytes handed to Broadcast.
func (s *WSStateSink) BytesSent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bytes
}

// ClientCount reports the number of currently connected WebSocket clients.
func (s *WSStateSink) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped reports the drop-oldest count summed over the currently
// connected clients; drops of clients that have disconnected are not
// included.
func (s *WSStateSink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total uint64
	for c := range s.clients {
		total += uint64(atomic.LoadInt64(&c.dropped))
	}
	return total
}
