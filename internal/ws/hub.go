// Package ws fans operator events out to WebSocket subscribers. The
// registry and scheduler publish typed telemetry events; every connected
// client receives each one as a JSON text frame.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/large-farva/orbitwatch/internal/logging"
)

// Options tunes keepalive timing. Zero values take the defaults.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// Hello, when set, is written to each client right after it connects.
	Hello func() any
	Log   *slog.Logger
}

// Hub owns the set of subscribers. Only Run touches the client map;
// everything else goes through channels.
type Hub struct {
	opts       Options
	log        *slog.Logger
	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	done       chan struct{} // closed when Run returns
	upgrader   websocket.Upgrader

	count   atomic.Int64
	dropped atomic.Int64
}

// NewHub allocates a hub. Call Run in a goroutine to start delivery.
func NewHub(opts Options) *Hub {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 20 * time.Second
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 3 * opts.PingInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 3 * time.Second
	}
	return &Hub{
		opts:       opts,
		log:        logging.Component(opts.Log, "ws"),
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Clients reports the number of connected subscribers.
func (h *Hub) Clients() int { return int(h.count.Load()) }

// Dropped reports how many events were discarded because the queue was full.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Run delivers queued events and keepalive pings until ctx is cancelled,
// then closes every client. Subscriptions arriving after that are refused.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	ping := time.NewTicker(h.opts.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			if h.opts.Hello != nil {
				if b, err := json.Marshal(h.opts.Hello()); err == nil {
					h.write(c, websocket.TextMessage, b)
				}
			}

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.broadcast:
			for c := range h.clients {
				h.write(c, websocket.TextMessage, msg)
			}

		case <-ping.C:
			for c := range h.clients {
				h.write(c, websocket.PingMessage, nil)
			}
		}
	}
}

// write sends one frame and drops the client on failure. Run only.
func (h *Hub) write(c *websocket.Conn, kind int, msg []byte) {
	_ = c.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
	if err := c.WriteMessage(kind, msg); err != nil {
		h.log.Debug("subscriber dropped", slog.String("remote", c.RemoteAddr().String()), slog.Any("err", err))
		h.drop(c)
	}
}

func (h *Hub) drop(c *websocket.Conn) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	h.count.Store(int64(len(h.clients)))
	_ = c.Close()
}

// Handler upgrades requests to WebSocket subscriptions. Clients never send
// anything meaningful; the read loop only services pongs and detects close.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the error response.
			return
		}
		select {
		case h.register <- conn:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go func() {
			defer func() {
				select {
				case h.unregister <- conn:
				case <-h.done:
				}
			}()
			_ = conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

// BroadcastJSON queues v for every subscriber. It never blocks: when the
// queue is full the event is dropped and counted.
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.log.Warn("event not encodable", slog.Any("err", err))
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.dropped.Add(1)
	}
}
