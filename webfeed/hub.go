// Package webfeed broadcasts acquired samples to websocket clients.
package webfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/mklimuk/imu/acquisition"
)

const (
	socketBufferSize  = 1024
	messageBufferSize = 256
)

var ErrHubStopped = errors.New("hub stopped")

var upgrader = &websocket.Upgrader{ReadBufferSize: socketBufferSize, WriteBufferSize: socketBufferSize}

type Opt func(*Hub)

func WithLogger(logger *slog.Logger) Opt {
	return func(h *Hub) {
		h.log = logger
	}
}

// Hub fans messages out to every connected client. A client that cannot keep up misses messages
// instead of slowing the others down.
type Hub struct {
	forward chan []byte
	join    chan *client
	leave   chan *client
	done    chan struct{}
	clients map[*client]bool
	count   atomic.Int32
	dropped atomic.Uint64
	log     *slog.Logger
}

func NewHub(opts ...Opt) *Hub {
	h := &Hub{
		forward: make(chan []byte),
		join:    make(chan *client),
		leave:   make(chan *client),
		done:    make(chan struct{}),
		clients: make(map[*client]bool),
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run dispatches messages until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.count.Store(0)
			return
		case c := <-h.join:
			h.clients[c] = true
			h.count.Store(int32(len(h.clients)))
			h.log.Debug("client joined", "remote", c.socket.RemoteAddr())
		case c := <-h.leave:
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			h.count.Store(int32(len(h.clients)))
			h.log.Debug("client left", "remote", c.socket.RemoteAddr())
		case msg := <-h.forward:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.dropped.Add(1)
				}
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Dropped returns the number of messages not delivered to slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Publish sends v as JSON to every connected client.
func (h *Hub) Publish(ctx context.Context, v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("could not encode message: %w", err)
	}
	select {
	case h.forward <- msg:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Feed publishes every sample of w until the worker's sample channel is closed.
func (h *Hub) Feed(ctx context.Context, w *acquisition.Worker) error {
	for s := range w.Samples() {
		err := h.Publish(ctx, s)
		if err != nil {
			// the worker owns the channel until it has exited
			w.Detach()
			return errors.Join(err, w.Wait())
		}
	}
	return w.Wait()
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	socket, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &client{
		socket: socket,
		send:   make(chan []byte, messageBufferSize),
	}
	select {
	case h.join <- c:
	case <-h.done:
		socket.Close()
		return
	}
	defer func() {
		select {
		case h.leave <- c:
		case <-h.done:
		}
	}()
	go c.write()
	c.read()
}

type client struct {
	socket *websocket.Conn
	send   chan []byte
}

// read discards incoming messages until the peer goes away.
func (c *client) read() {
	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) write() {
	defer c.socket.Close()
	for msg := range c.send {
		if err := c.socket.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.socket.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
