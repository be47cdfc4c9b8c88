package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/candela-robotics/teleop.live/internal/joints"
)

// handleJointsChart renders the 30-second joint strip-chart as an HTML page
// using go-echarts. One line per joint, degrees on a fixed ±180 axis so the
// traces do not rescale while the arm moves.
func (ws *WebServer) handleJointsChart(w http.ResponseWriter, r *http.Request) {
	samples := ws.feed.Samples()
	if len(samples) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no joint samples available")
		return
	}

	ranges := joints.DefaultRanges()

	x := make([]string, 0, len(samples))
	series := make([][]opts.LineData, joints.JointCount)
	for i := range series {
		series[i] = make([]opts.LineData, 0, len(samples))
	}
	for _, s := range samples {
		x = append(x, s.Timestamp.Format("15:04:05.0"))
		for i := 0; i < joints.JointCount; i++ {
			if s.Angles[i] == nil {
				series[i] = append(series[i], opts.LineData{Value: nil})
				continue
			}
			deg := *s.Angles[i] * 180.0 / math.Pi
			series[i] = append(series[i], opts.LineData{Value: deg})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Arm Joints", Theme: "dark", Width: "1200px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Joint Angles", Subtitle: fmt.Sprintf("source=%s samples=%d", ws.feed.Source(), len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: -180, Max: 180, Name: "Angle (deg)", NameLocation: "middle", NameGap: 40}),
	)

	line.SetXAxis(x)
	for i := 0; i < joints.JointCount; i++ {
		line.AddSeries(ranges[i].Name, series[i])
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleCloudChart renders a top-down scatter of the current point cloud
// window, colored by intensity.
//
// Query params:
//   - max_points (optional; default 8000) to reduce payload size
func (ws *WebServer) handleCloudChart(w http.ResponseWriter, r *http.Request) {
	points := ws.accumulator.Snapshot(ws.renderFilter())
	if len(points) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no points in the current window")
		return
	}

	maxPoints := 8000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	stride := 1
	if len(points) > maxPoints {
		stride = int(math.Ceil(float64(len(points)) / float64(maxPoints)))
	}

	data := make([]opts.ScatterData, 0, len(points)/stride+1)
	maxAbs := 0.0
	for i := 0; i < len(points); i += stride {
		p := points[i]
		if math.Abs(p.X) > maxAbs {
			maxAbs = math.Abs(p.X)
		}
		if math.Abs(p.Y) > maxAbs {
			maxAbs = math.Abs(p.Y)
		}
		data = append(data, opts.ScatterData{Value: []interface{}{p.X, p.Y, int(p.Intensity)}})
	}

	pad := maxAbs * 1.05
	if pad == 0 {
		pad = 1.0
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Point Cloud (Top-Down)", Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Point Cloud", Subtitle: fmt.Sprintf("window=%s points=%d stride=%d", ws.accumulator.Horizon(), len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: -pad, Max: pad, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: -pad, Max: pad, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        255,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#0000ff", "#00ff00", "#ff0000"}},
		}),
	)
	scatter.AddSeries("points", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
