// Package hub is the websocket fan-out for live telemetry. Browsers
// subscribe with ?topics=pointcloud,joints and receive JSON envelopes
// {"type": <topic>, "data": <payload>}. A slow client never stalls the
// ingest path: when its send buffer fills, new frames are dropped for
// that client and the next frame supersedes them.
package hub

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/candela-robotics/teleop.live/internal/monitoring"
)

// Well-known topics.
const (
	TopicPointCloud = "pointcloud"
	TopicJoints     = "joints"
)

const clientSendBuffer = 16

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the viewer page is served from a different origin in dev
	},
}

// Envelope is the wire format for every broadcast frame.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	topics map[string]bool
}

func (c *client) wants(topic string) bool {
	return len(c.topics) == 0 || c.topics[topic]
}

// Hub tracks connected websocket clients and broadcasts frames to them.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	dropped int64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// DroppedFrames returns the number of frames discarded for slow clients.
func (h *Hub) DroppedFrames() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Broadcast marshals payload into a topic envelope and queues it to every
// subscribed client. Never blocks.
func (h *Hub) Broadcast(topic string, payload interface{}) {
	frame, err := json.Marshal(Envelope{Type: topic, Data: payload})
	if err != nil {
		monitoring.Logf("failed to marshal %s frame: %v", topic, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(topic) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.dropped++
		}
	}
}

// ServeWS upgrades the request and registers the connection. Topics come
// from the ?topics= query parameter; an absent parameter subscribes to
// everything.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("websocket upgrade failed: %v", err)
		return
	}

	c := &client{
		conn:   conn,
		send:   make(chan []byte, clientSendBuffer),
		topics: parseTopics(r.URL.Query().Get("topics")),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	monitoring.Logf("websocket client connected (%d total)", n)

	go h.writeLoop(c)
	h.readLoop(c)
}

// readLoop drains inbound messages so control frames are processed; any
// read error means the client is gone.
func (h *Hub) readLoop(c *client) {
	defer h.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				monitoring.Logf("websocket read error: %v", err)
			}
			return
		}
	}
}

func (h *Hub) writeLoop(c *client) {
	for frame := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			h.remove(c)
			return
		}
	}
}

// remove unregisters the client and closes its connection. Safe to call
// from both loops.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, present := h.clients[c]
	if present {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if present {
		c.conn.Close()
		monitoring.Logf("websocket client disconnected (%d total)", n)
	}
}

func parseTopics(raw string) map[string]bool {
	if raw == "" {
		return nil
	}
	topics := make(map[string]bool)
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			topics[t] = true
		}
	}
	return topics
}
