package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/candela-robotics/teleop.live/internal/cloud"
	"github.com/candela-robotics/teleop.live/internal/joints"
)

// statusResponse is the /api/status payload.
type statusResponse struct {
	UptimeSeconds  float64        `json:"uptime_seconds"`
	HorizonSeconds float64        `json:"horizon_seconds"`
	RetainedPoints int            `json:"retained_points"`
	IngestPackets  int64          `json:"ingest_packets"`
	IngestPoints   int64          `json:"ingest_points"`
	PrunedPoints   int64          `json:"pruned_points"`
	Clients        int            `json:"websocket_clients"`
	DroppedFrames  int64          `json:"dropped_frames"`
	JointSource    string         `json:"joint_source"`
	Joints         []jointStatus  `json:"joints"`
	Cloud          cloudStatus    `json:"cloud"`
	LastInterval   intervalStatus `json:"last_interval"`
}

type jointStatus struct {
	Name   string   `json:"name"`
	Status string   `json:"status"`
	Angle  *float64 `json:"angle_radians,omitempty"`
}

type cloudStatus struct {
	Bounds cloud.BoundingBox `json:"bounds"`
	P50    float64           `json:"distance_p50"`
	P95    float64           `json:"distance_p95"`
}

type intervalStatus struct {
	Packets        int64   `json:"packets"`
	Points         int64   `json:"points"`
	Bytes          int64   `json:"bytes"`
	DecodeFailures int64   `json:"decode_failures"`
	MissedEstimate int64   `json:"missed_estimate"`
	Seconds        float64 `json:"seconds"`
}

// handleAPIStatus reports the live state of both telemetry pipelines.
func (ws *WebServer) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	points := ws.accumulator.Snapshot(ws.renderFilter())
	bounds := cloud.Bounds(points)
	p50, p95 := cloud.DistanceQuantiles(points)

	sample, source := ws.feed.Latest()
	ranges := joints.DefaultRanges()
	js := make([]jointStatus, 0, joints.JointCount)
	for i := 0; i < joints.JointCount; i++ {
		js = append(js, jointStatus{
			Name:   ranges[i].Name,
			Status: sample.Status[i].String(),
			Angle:  sample.Angles[i],
		})
	}

	packets, ingested, pruned := ws.accumulator.Counters()
	snap := ws.stats.LatestSnapshot()

	resp := statusResponse{
		UptimeSeconds:  ws.stats.Uptime().Seconds(),
		HorizonSeconds: ws.accumulator.Horizon().Seconds(),
		RetainedPoints: len(points),
		IngestPackets:  packets,
		IngestPoints:   ingested,
		PrunedPoints:   pruned,
		Clients:        ws.hubClientCount(),
		JointSource:    source,
		Joints:         js,
		Cloud:          cloudStatus{Bounds: bounds, P50: p50, P95: p95},
		LastInterval: intervalStatus{
			Packets:        snap.Packets,
			Points:         snap.Points,
			Bytes:          snap.Bytes,
			DecodeFailures: snap.DecodeFailures,
			MissedEstimate: snap.MissedEstimate,
			Seconds:        snap.Duration.Seconds(),
		},
	}
	if ws.hub != nil {
		resp.DroppedFrames = ws.hub.DroppedFrames()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// paramsPayload is the /api/params wire format; pointer fields distinguish
// "leave unchanged" from explicit zero values on POST.
type paramsPayload struct {
	HorizonSeconds   *float64 `json:"horizon_seconds,omitempty"`
	MinDistance      *float64 `json:"min_distance,omitempty"`
	MaxDistance      *float64 `json:"max_distance,omitempty"`
	MinIntensity     *uint8   `json:"min_intensity,omitempty"`
	MaxIntensity     *uint8   `json:"max_intensity,omitempty"`
	Stride           *int     `json:"stride,omitempty"`
	SyntheticEnabled *bool    `json:"synthetic_enabled,omitempty"`
}

// handleAPIParams reads (GET) or adjusts (POST) the render-time tuning.
func (ws *WebServer) handleAPIParams(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ws.writeParams(w)
	case http.MethodPost:
		ws.updateParams(w, r)
	default:
		ws.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (ws *WebServer) writeParams(w http.ResponseWriter) {
	f := ws.renderFilter()
	horizon := ws.accumulator.Horizon().Seconds()
	synthetic := ws.feed.SyntheticEnabled()
	stride := f.Stride

	resp := paramsPayload{
		HorizonSeconds:   &horizon,
		MinDistance:      &f.MinDistance,
		MaxDistance:      &f.MaxDistance,
		MinIntensity:     &f.MinIntensity,
		MaxIntensity:     &f.MaxIntensity,
		Stride:           &stride,
		SyntheticEnabled: &synthetic,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (ws *WebServer) updateParams(w http.ResponseWriter, r *http.Request) {
	var req paramsPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("bad request body: %v", err))
		return
	}

	if req.HorizonSeconds != nil {
		if *req.HorizonSeconds <= 0 {
			ws.writeJSONError(w, http.StatusBadRequest, "horizon_seconds must be positive")
			return
		}
		ws.accumulator.SetHorizon(time.Duration(*req.HorizonSeconds * float64(time.Second)))
	}
	if req.Stride != nil && *req.Stride < 0 {
		ws.writeJSONError(w, http.StatusBadRequest, "stride must be non-negative")
		return
	}

	ws.mu.Lock()
	if req.MinDistance != nil {
		ws.filter.MinDistance = *req.MinDistance
	}
	if req.MaxDistance != nil {
		ws.filter.MaxDistance = *req.MaxDistance
	}
	if req.MinIntensity != nil {
		ws.filter.MinIntensity = *req.MinIntensity
	}
	if req.MaxIntensity != nil {
		ws.filter.MaxIntensity = *req.MaxIntensity
	}
	if req.Stride != nil {
		ws.filter.Stride = *req.Stride
	}
	ws.mu.Unlock()

	if req.SyntheticEnabled != nil {
		ws.feed.SetSyntheticEnabled(*req.SyntheticEnabled)
	}

	ws.writeParams(w)
}
