package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/log"
	"github.com/KarmaPanda/StarResonanceDamageCounter/internal/metrics"
)

const (
	// writeWait bounds a single WebSocket write.
	writeWait = 10 * time.Second

	// pongWait is how long a subscriber may stay silent before the
	// connection is considered dead. Pings go out at pingPeriod so a
	// live client always answers in time.
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize caps inbound messages. Subscribers are not
	// expected to send anything beyond control frames.
	maxMessageSize = 512

	// sendBufferSize is the per-subscriber outbound queue. A client
	// that falls this far behind is dropped instead of stalling the
	// broadcaster.
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard may be served from anywhere (file://, another
	// port); the API carries no credentials, so any origin is fine.
	CheckOrigin: func(*http.Request) bool { return true },
}

// subscriber is one connected WebSocket client.
type subscriber struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// Hub fans broadcast messages out to all connected WebSocket
// subscribers. Subscribers are write-only from the server's point of
// view; the read pump exists to drive pong handling and notice closes.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
	log  log.Logger
}

func newHub(logger log.Logger) *Hub {
	return &Hub{
		subs: make(map[string]*subscriber),
		log:  logger,
	}
}

// ServeHTTP upgrades the request and registers the subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	sub := &subscriber{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.subs[sub.id] = sub
	h.mu.Unlock()
	metrics.WSSubscribers.Inc()
	h.log.Infof("websocket subscriber %s connected from %s", sub.id, r.RemoteAddr)

	go h.writePump(sub)
	go h.readPump(sub)
}

func (h *Hub) readPump(sub *subscriber) {
	defer h.drop(sub)
	sub.conn.SetReadLimit(maxMessageSize)
	_ = sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debugf("websocket subscriber %s read error: %v", sub.id, err)
			}
			return
		}
	}
}

func (h *Hub) writePump(sub *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-sub.send:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = sub.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drop unregisters the subscriber and closes its send channel, which
// ends the write pump. Safe to call more than once.
func (h *Hub) drop(sub *subscriber) {
	h.mu.Lock()
	if _, ok := h.subs[sub.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, sub.id)
	h.mu.Unlock()

	close(sub.send)
	sub.conn.Close()
	metrics.WSSubscribers.Dec()
	h.log.Infof("websocket subscriber %s disconnected", sub.id)
}

// Broadcast queues msg for every subscriber. Subscribers whose queue
// is full are dropped rather than blocking the caller.
func (h *Hub) Broadcast(msg []byte) {
	var stalled []*subscriber
	h.mu.RLock()
	for _, sub := range h.subs {
		select {
		case sub.send <- msg:
		default:
			stalled = append(stalled, sub)
		}
	}
	h.mu.RUnlock()
	for _, sub := range stalled {
		h.log.Warnf("websocket subscriber %s too slow, dropping", sub.id)
		h.drop(sub)
	}
}

// Count reports the number of connected subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		h.drop(sub)
	}
}
