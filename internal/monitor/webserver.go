// Package monitor is the HTTP face of the teleoperation backend: a status
// page, JSON status and tuning APIs, debug charts, a point cloud snapshot
// renderer and the live websocket endpoint.
package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/candela-robotics/teleop.live/internal/cloud"
	"github.com/candela-robotics/teleop.live/internal/hub"
	"github.com/candela-robotics/teleop.live/internal/ingest"
	"github.com/candela-robotics/teleop.live/internal/monitoring"
	"github.com/candela-robotics/teleop.live/internal/telemetrydb"
)

//go:embed status.html
var statusHTML embed.FS

// WebServer handles the HTTP interface for monitoring the teleop backend.
type WebServer struct {
	address     string
	stats       *ingest.PacketStats
	accumulator *cloud.Accumulator
	feed        *JointFeed
	hub         *hub.Hub
	db          *telemetrydb.DB
	udpAddr     string
	server      *http.Server

	// Render-time tuning, adjustable through /api/params.
	mu     sync.Mutex
	filter cloud.Filter
}

// WebServerConfig contains configuration options for the web server.
type WebServerConfig struct {
	Address     string
	Stats       *ingest.PacketStats
	Accumulator *cloud.Accumulator
	Feed        *JointFeed
	Hub         *hub.Hub
	DB          *telemetrydb.DB // optional; enables the /debug admin routes
	UDPAddr     string
	Filter      cloud.Filter
}

// NewWebServer creates a new web server with the provided configuration.
func NewWebServer(config WebServerConfig) *WebServer {
	ws := &WebServer{
		address:     config.Address,
		stats:       config.Stats,
		accumulator: config.Accumulator,
		feed:        config.Feed,
		hub:         config.Hub,
		db:          config.DB,
		udpAddr:     config.UDPAddr,
		filter:      config.Filter,
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown.
func (ws *WebServer) Start(ctx context.Context) error {
	go func() {
		monitoring.Logf("starting HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			monitoring.Logf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	monitoring.Logf("shutting down HTTP server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		monitoring.Logf("HTTP server shutdown error: %v", err)
		if err := ws.server.Close(); err != nil {
			monitoring.Logf("HTTP server force close error: %v", err)
		}
	}

	monitoring.Logf("HTTP server routine stopped")
	return nil
}

func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/api/status", ws.handleAPIStatus)
	mux.HandleFunc("/api/params", ws.handleAPIParams)
	mux.HandleFunc("/charts/joints", ws.handleJointsChart)
	mux.HandleFunc("/charts/cloud", ws.handleCloudChart)
	mux.HandleFunc("/snapshot.png", ws.handleSnapshotPNG)
	if ws.hub != nil {
		mux.HandleFunc("/ws", ws.hub.ServeWS)
	}
	if ws.db != nil {
		if err := ws.db.AttachAdminRoutes(mux); err != nil {
			monitoring.Logf("failed to attach admin routes: %v", err)
		}
	}
	mux.HandleFunc("/", ws.handleStatus)

	return mux
}

// Close shuts down the web server.
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}

// renderFilter returns the current snapshot filter under the lock.
func (ws *WebServer) renderFilter() cloud.Filter {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.filter
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// handleHealth handles the health check endpoint.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "teleop", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// handleStatus handles the main status page endpoint.
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	tmpl, err := template.ParseFS(statusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	snap := ws.stats.LatestSnapshot()
	packets, points, pruned := ws.accumulator.Counters()

	data := struct {
		UDPAddr        string
		HTTPAddress    string
		Uptime         string
		JointSource    string
		Horizon        string
		RetainedPoints int
		IngestPackets  int64
		IngestPoints   int64
		PrunedPoints   int64
		Clients        int
		Stats          ingest.StatsSnapshot
	}{
		UDPAddr:        ws.udpAddr,
		HTTPAddress:    ws.address,
		Uptime:         ws.stats.Uptime().Round(time.Second).String(),
		JointSource:    ws.feed.Source(),
		Horizon:        ws.accumulator.Horizon().String(),
		RetainedPoints: ws.accumulator.Len(),
		IngestPackets:  packets,
		IngestPoints:   points,
		PrunedPoints:   pruned,
		Clients:        ws.hubClientCount(),
		Stats:          snap,
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

func (ws *WebServer) hubClientCount() int {
	if ws.hub == nil {
		return 0
	}
	return ws.hub.ClientCount()
}
