package monitor

import (
	"fmt"
	"image/color"
	"net/http"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/candela-robotics/teleop.live/internal/cloud"
)

// handleSnapshotPNG renders the current window as a static top-down PNG.
// Useful for grabbing a frame into a bug report without a running viewer.
func (ws *WebServer) handleSnapshotPNG(w http.ResponseWriter, r *http.Request) {
	points := ws.accumulator.Snapshot(ws.renderFilter())
	if len(points) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no points in the current window")
		return
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Point Cloud (%d points, window %s)", len(points), ws.accumulator.Horizon())
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
	}

	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to build scatter: %v", err))
		return
	}
	scatter.GlyphStyle.Radius = vg.Points(1)
	scatter.GlyphStyle.Shape = draw.CircleGlyph{}
	// Per-point intensity coloring, matching the viewer's gradient.
	scatter.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		cr, cg, cb := cloud.IntensityColor(points[i].Intensity)
		return draw.GlyphStyle{
			Color:  color.RGBA{R: uint8(cr * 255), G: uint8(cg * 255), B: uint8(cb * 255), A: 255},
			Radius: vg.Points(1),
			Shape:  draw.CircleGlyph{},
		}
	}
	p.Add(scatter)

	writer, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render png: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := writer.WriteTo(w); err != nil {
		// Headers already sent; nothing left to report to the client.
		return
	}
}
