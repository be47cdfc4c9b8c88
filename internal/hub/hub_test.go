package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/candela-robotics/teleop.live/internal/monitoring"
)

func dialHub(t *testing.T, h *Hub, topics string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	if topics != "" {
		url += "?topics=" + topics
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	// Wait for the server side to register.
	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.ClientCount() == 0 {
		t.Fatal("client never registered")
	}
	return conn
}

func TestBroadcastReachesSubscriber(t *testing.T) {
	monitoring.SetLogger(nil)

	h := NewHub()
	conn := dialHub(t, h, "")

	h.Broadcast(TopicJoints, map[string]int{"base": 42})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}
	if env.Type != TopicJoints {
		t.Errorf("type = %q, want %q", env.Type, TopicJoints)
	}
}

func TestTopicFiltering(t *testing.T) {
	monitoring.SetLogger(nil)

	h := NewHub()
	conn := dialHub(t, h, TopicJoints)

	h.Broadcast(TopicPointCloud, "ignored")
	h.Broadcast(TopicJoints, "wanted")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}
	if env.Type != TopicJoints {
		t.Errorf("filtered client received %q frame", env.Type)
	}
}

func TestSlowClientDropsFrames(t *testing.T) {
	monitoring.SetLogger(nil)

	h := NewHub()
	dialHub(t, h, "")

	// Flood well past the send buffer without reading.
	for i := 0; i < clientSendBuffer*10; i++ {
		h.Broadcast(TopicPointCloud, i)
	}
	if h.DroppedFrames() == 0 {
		t.Error("expected dropped frames for unread client")
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	monitoring.SetLogger(nil)

	h := NewHub()
	conn := dialHub(t, h, "")
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.ClientCount() != 0 {
		t.Error("client still registered after close")
	}
}

func TestParseTopics(t *testing.T) {
	if got := parseTopics(""); got != nil {
		t.Errorf("empty spec should mean all topics, got %v", got)
	}
	got := parseTopics("pointcloud, joints,")
	if !got["pointcloud"] || !got["joints"] || len(got) != 2 {
		t.Errorf("parseTopics = %v", got)
	}
}
