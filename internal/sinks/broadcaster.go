// Package sinks implements the fan-out broadcasters described by spec.md
// 4.7: BEAST, Raw, AVR and SBS-1 over TCP, plus a WebSocket state feed. All
// five share the same bounded, drop-oldest client queue so one slow reader
// can never apply backpressure to the decode pipeline.
package sinks

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned by operations on a client that has already been
// removed from its broadcaster.
var ErrClosed = errors.New("sinks: client closed")

// client is one connected consumer's outbound queue. Push never blocks: once
// the queue is at capacity, the oldest pending message is dropped to make
// room for the new one, matching spec.md 4.7's drop-oldest policy.
type client struct {
	id uuid.UUID

	mu      sync.Mutex
	queue   [][]byte
	cap     int
	closed  bool
	dropped uint64

	wake chan struct{}
	done chan struct{}
}

func newClient(queueDepth int) *client {
	return &client{
		id:   uuid.New(),
		cap:  queueDepth,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

func (c *client) push(msg []byte) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if len(c.queue) >= c.cap {
		c.queue = c.queue[1:]
		c.dropped++
	}
	c.queue = append(c.queue, msg)
	c.mu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *client) pop() ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return nil, false
	}
	msg := c.queue[0]
	c.queue = c.queue[1:]
	return msg, true
}

// next blocks until a message is available or the client is closed.
func (c *client) next() ([]byte, bool) {
	for {
		if msg, ok := c.pop(); ok {
			return msg, true
		}
		select {
		case <-c.wake:
		case <-c.done:
			return nil, false
		}
	}
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.done)
}

func (c *client) droppedCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Stats summarizes one broadcaster's connected clients and loss counters.
type Stats struct {
	Name         string
	Clients      int
	TotalDropped uint64
	TotalSent    uint64
	TotalBytes   uint64
}

// Broadcaster accepts TCP connections on a single port and fans out every
// Broadcast()'d message to all currently connected clients.
type Broadcaster struct {
	name       string
	queueDepth int
	log        *logrus.Entry

	mu       sync.Mutex
	clients  map[uuid.UUID]*client
	listener net.Listener
	sent     uint64
	bytes    uint64

	writeTimeout time.Duration
}

// defaultWriteTimeout bounds how long a single client write may take before
// the client is dropped, per spec.md 5: "a TCP write stuck longer than 5 s
// results in client removal."
const defaultWriteTimeout = 5 * time.Second

// NewBroadcaster builds a Broadcaster. queueDepth bounds each client's
// pending-message backlog.
func NewBroadcaster(name string, queueDepth int, log *logrus.Logger) *Broadcaster {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Broadcaster{
		name:         name,
		queueDepth:   queueDepth,
		log:          log.WithField("sink", name),
		clients:      make(map[uuid.UUID]*client),
		writeTimeout: defaultWriteTimeout,
	}
}

// Listen starts accepting TCP clients on addr. It returns once the listener
// is bound; the accept loop runs on its own goroutine.
func (b *Broadcaster) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	b.listener = l
	b.log.WithField("addr", addr).Info("sink listening")
	go b.acceptLoop()
	return nil
}

func (b *Broadcaster) acceptLoop() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			b.log.WithError(err).Warn("accept failed, retrying")
			time.Sleep(100 * time.Millisecond)
			continue
		}
		c := newClient(b.queueDepth)
		b.addClient(c)
		go b.serve(conn, c)
	}
}

func (b *Broadcaster) addClient(c *client) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[c.id] = c
}

func (b *Broadcaster) removeClient(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.clients, id)
}

func (b *Broadcaster) serve(conn net.Conn, c *client) {
	defer func() {
		conn.Close()
		c.close()
		b.removeClient(c.id)
	}()
	for {
		msg, ok := c.next()
		if !ok {
			return
		}
		conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
		if _, err := conn.Write(msg); err != nil {
			return
		}
	}
}

// Broadcast pushes msg onto every connected client's queue.
func (b *Broadcaster) Broadcast(msg []byte) {
	b.mu.Lock()
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.sent++
	b.bytes += uint64(len(msg))
	b.mu.Unlock()

	for _, c := range clients {
		c.push(msg)
	}
}

// Stats reports the broadcaster's current client count and the drop count
// summed over the currently connected clients; drops of clients that have
// disconnected are not included.
func (b *Broadcaster) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	var dropped uint64
	for _, c := range b.clients {
		dropped += c.droppedCount()
	}
	return Stats{Name: b.name, Clients: len(b.clients), TotalDropped: dropped, TotalSent: b.sent, TotalBytes: b.bytes}
}

// Close stops accepting new connections and disconnects all clients.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	l := b.listener
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	if l != nil {
		return l.Close()
	}
	return nil
}
