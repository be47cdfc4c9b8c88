package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/candela-robotics/teleop.live/internal/cloud"
	"github.com/candela-robotics/teleop.live/internal/config"
	"github.com/candela-robotics/teleop.live/internal/hub"
	"github.com/candela-robotics/teleop.live/internal/ingest"
	"github.com/candela-robotics/teleop.live/internal/joints"
	"github.com/candela-robotics/teleop.live/internal/livox"
	"github.com/candela-robotics/teleop.live/internal/monitor"
	"github.com/candela-robotics/teleop.live/internal/telemetrydb"
)

var (
	configPath = flag.String("config", "", "Path to a tuning config JSON file (optional)")
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	udpAddr    = flag.String("udp", "", "LiDAR UDP listen address (overrides config)")
	dbPath     = flag.String("db", "", "Telemetry sqlite path (overrides config)")
	noDB       = flag.Bool("no-db", false, "Disable telemetry persistence")
)

// broadcastInterval paces websocket frames. 10Hz is plenty for a viewer
// while keeping a full-window frame cheap to assemble.
const broadcastInterval = 100 * time.Millisecond

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("listen address is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("failed to load tuning config: %v", err)
		}
	}

	lidarAddr := cfg.GetLidarUDPAddr()
	if *udpAddr != "" {
		lidarAddr = *udpAddr
	}
	telemetryPath := cfg.GetDBPath()
	if *dbPath != "" {
		telemetryPath = *dbPath
	}
	if telemetryPath == "" {
		telemetryPath = "telemetry.db"
	}

	var db *telemetrydb.DB
	if !*noDB {
		var err error
		db, err = telemetrydb.NewDB(telemetryPath)
		if err != nil {
			log.Fatalf("failed to open telemetry database: %v", err)
		}
		defer db.Close()
		if err := db.MigrateUp(cfg.GetMigrationsDir()); err != nil {
			log.Fatalf("failed to migrate telemetry database: %v", err)
		}
		session, err := db.StartSession(lidarAddr)
		if err != nil {
			log.Fatalf("failed to start telemetry session: %v", err)
		}
		log.Printf("telemetry session %s -> %s", session, telemetryPath)
	}

	stats := ingest.NewPacketStats()
	accumulator := cloud.NewAccumulator(cloud.AccumulatorConfig{
		Horizon:       cfg.GetHorizon(),
		PruneInterval: cfg.GetPruneInterval(),
	})
	series := joints.NewSeries(joints.SeriesConfig{
		Ranges:        cfg.GetJointRanges(),
		Window:        cfg.GetJointWindow(),
		SweepInterval: cfg.GetJointSweepInterval(),
	})
	generator := joints.NewSyntheticGenerator(cfg.GetJointRanges(), time.Now())
	feed := monitor.NewJointFeed(monitor.JointFeedConfig{
		Series:    series,
		Generator: generator,
		Grace:     cfg.GetSyntheticGrace(),
		Window:    cfg.GetJointWindow(),
		Enabled:   cfg.GetSyntheticEnabled(),
	})
	wsHub := hub.NewHub()

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// LiDAR ingest over UDP.
	var statsSink func(ingest.StatsSnapshot)
	if db != nil {
		statsSink = func(snap ingest.StatsSnapshot) {
			if err := db.RecordPacketStats(snap); err != nil {
				log.Printf("failed to persist packet stats: %v", err)
			}
		}
	}
	listener := ingest.NewUDPListener(ingest.UDPListenerConfig{
		Address:     lidarAddr,
		RcvBuf:      cfg.GetUDPRcvBuf(),
		LogInterval: cfg.GetStatsInterval(),
		Stats:       stats,
		Handler:     func(pkt *livox.Packet) { accumulator.Ingest(pkt) },
		StatsSink:   statsSink,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := listener.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("UDP listener failed: %v", err)
		}
	}()

	// Periodic aging sweeps for both rolling windows.
	wg.Add(1)
	go func() {
		defer wg.Done()
		accumulator.RunPruneLoop(ctx.Done())
	}()
	wg.Add(1)
	go func() {
		defer wg.Done()
		series.RunSweepLoop(ctx.Done())
	}()

	// Joint state sources: MQTT when a broker is configured, serial when a
	// port is configured. Both are optional; the synthetic fallback covers
	// a backend running with neither.
	if broker := cfg.GetMQTTBroker(); broker != "" {
		source := ingest.NewMQTTJointSource(ingest.MQTTJointSourceConfig{
			Broker: broker,
			Topic:  cfg.GetMQTTTopic(),
			Series: series,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := source.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("MQTT joint source failed: %v", err)
			}
		}()
	}
	if port := cfg.GetSerialPort(); port != "" {
		source := ingest.NewSerialJointSource(ingest.SerialJointSourceConfig{
			PortName: port,
			BaudRate: cfg.GetSerialBaud(),
			Series:   series,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := source.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("serial joint source failed: %v", err)
			}
		}()
	}

	// Websocket broadcast pacing.
	baseFilter := cloud.Filter{
		MaxDistance: cfg.GetSnapshotMaxRange(),
		Stride:      cfg.GetSnapshotStride(),
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		runBroadcastLoop(ctx, wsHub, accumulator, feed, db, baseFilter)
	}()

	// Monitoring webserver.
	webServer := monitor.NewWebServer(monitor.WebServerConfig{
		Address:     *listen,
		Stats:       stats,
		Accumulator: accumulator,
		Feed:        feed,
		Hub:         wsHub,
		DB:          db,
		UDPAddr:     lidarAddr,
		Filter:      baseFilter,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := webServer.Start(ctx); err != nil {
			log.Printf("web server failed: %v", err)
		}
	}()

	log.Printf("teleop backend up: http=%s lidar=%s", *listen, lidarAddr)
	wg.Wait()
	log.Print("teleop backend stopped")
	os.Exit(0)
}

// cloudFrame is the websocket point cloud payload: flat engine-space
// vertex buffers ready for the viewer to upload.
type cloudFrame struct {
	Positions []float32 `json:"positions"`
	Colors    []float32 `json:"colors"`
	Count     int       `json:"count"`
}

// jointFrame is the websocket joint telemetry payload.
type jointFrame struct {
	Source string        `json:"source"`
	Sample joints.Sample `json:"sample"`
}

// runBroadcastLoop assembles and fans out telemetry frames at a fixed
// cadence, and persists a joint sample once a second while live data is
// flowing.
func runBroadcastLoop(ctx context.Context, wsHub *hub.Hub, accumulator *cloud.Accumulator, feed *monitor.JointFeed, db *telemetrydb.DB, filter cloud.Filter) {
	ticker := time.NewTicker(broadcastInterval)
	defer ticker.Stop()

	var buffers cloud.VertexBuffers
	var lastPersist time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if wsHub.ClientCount() > 0 {
				points := accumulator.Snapshot(filter)
				buffers.Project(points)
				wsHub.Broadcast(hub.TopicPointCloud, cloudFrame{
					Positions: buffers.Positions,
					Colors:    buffers.Colors,
					Count:     buffers.PointCount(),
				})

				sample, source := feed.Latest()
				if source != monitor.SourceNone {
					wsHub.Broadcast(hub.TopicJoints, jointFrame{Source: source, Sample: sample})
				}
			}

			if db != nil && time.Since(lastPersist) >= time.Second {
				if sample, source := feed.Latest(); source == monitor.SourceLive {
					if err := db.RecordJointSample(sample); err != nil {
						log.Printf("failed to persist joint sample: %v", err)
					}
					lastPersist = time.Now()
				}
			}
		}
	}
}
