package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hasirciogluhq/xdevice-sim/cmd/devicesim/internal/logger"
)

const (
	eventsBuffer      = 16
	eventWriteTimeout = time.Second
)

// eventHub pushes status changes to websocket clients on /events. Publishing
// never blocks; a full buffer drops the update.
type eventHub struct {
	upgrader websocket.Upgrader
	updates  chan StatusResponse
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newEventHub() *eventHub {
	h := &eventHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  512,
			WriteBufferSize: 1024,
		},
		updates: make(chan StatusResponse, eventsBuffer),
		done:    make(chan struct{}),
		clients: make(map[*websocket.Conn]struct{}),
	}
	go h.run()
	return h
}

func (h *eventHub) publish(msg StatusResponse) {
	select {
	case h.updates <- msg:
	default:
		logger.Warn("Status event dropped, subscribers too slow")
	}
}

func (h *eventHub) run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return
		case msg := <-h.updates:
			h.broadcast(msg)
		}
	}
}

func (h *eventHub) broadcast(msg StatusResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		if err := writeEvent(conn, msg); err != nil {
			logger.Debug("Dropping events client", "remote_addr", conn.RemoteAddr(), "error", err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// handle upgrades the request, sends current and keeps the client registered
// until it disconnects.
func (h *eventHub) handle(w http.ResponseWriter, r *http.Request, current StatusResponse) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("Events upgrade failed", "error", err)
		return
	}

	h.mu.Lock()
	err = writeEvent(conn, current)
	if err == nil {
		h.clients[conn] = struct{}{}
	}
	h.mu.Unlock()
	if err != nil {
		conn.Close()
		return
	}

	// Clients never send anything; reading only detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

func (h *eventHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}

func (h *eventHub) stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func writeEvent(conn *websocket.Conn, msg StatusResponse) error {
	conn.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
	return conn.WriteJSON(msg)
}
