// Package render draws a dashboard snapshot as a plotly map page and, through
// headless Chrome, as a PNG.
package render

import (
	"fmt"
	"html/template"
	"io"

	"github.com/jgoulah/gridview/internal/view"
	"github.com/jgoulah/gridview/pkg/models"
)

// PageOptions controls the generated page
type PageOptions struct {
	Title string
	// Live makes the page follow the server's websocket and send clicks and
	// hour changes back to it.
	Live bool
}

type pageData struct {
	Title     string
	Hour      int
	Hours     []int
	Mode      string
	CanReturn bool
	Live      bool
	Lats      []float64
	Lons      []float64
	Colors    []string
	HasCenter bool
	CenterLat float64
	CenterLon float64
	Zoom      int
	Selected  *models.GridPoint
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="https://cdn.plot.ly/plotly-2.35.2.min.js"></script>
<style>
body { font-family: sans-serif; margin: 0; }
header { padding: 8px 16px; display: flex; gap: 16px; align-items: center; }
#map { width: 100vw; height: calc(100vh - 56px); }
#empty { padding: 16px; color: #666; }
</style>
</head>
<body>
<header>
<span>Please, select time of the day</span>
<select id="hour">
{{- range .Hours}}
<option value="{{.}}"{{if eq . $.Hour}} selected{{end}}>{{.}}</option>
{{- end}}
</select>
<span id="mode">{{.Mode}}</span>
<button id="back"{{if not .CanReturn}} hidden{{end}}>Back to overview</button>
{{- with .Selected}}
<span id="selected">{{.Address}} ({{.Cadaster}})</span>
{{- end}}
</header>
{{- if .HasCenter}}
<div id="map"></div>
{{- else}}
<div id="map" hidden></div>
<div id="empty">No data loaded for this hour.</div>
{{- end}}
<script>
const live = {{.Live}};
let mode = {{.Mode}};

function draw(lats, lons, colors, center, zoom) {
  const el = document.getElementById("map");
  if (!center) { el.hidden = true; return; }
  el.hidden = false;
  Plotly.react(el, [{
    type: "scattermapbox", lat: lats, lon: lons,
    marker: { color: colors, size: 10 }
  }], {
    dragmode: "zoom",
    mapbox: { style: "open-street-map", center: { lat: center.lat, lon: center.lon }, zoom: zoom },
    margin: { r: 0, t: 0, b: 0, l: 0 }
  });
}

{{if .HasCenter -}}
draw({{.Lats}}, {{.Lons}}, {{.Colors}}, { lat: {{.CenterLat}}, lon: {{.CenterLon}} }, {{.Zoom}});
{{- end}}

if (live) {
  const post = (path) => fetch(path, { method: "POST" });
  document.getElementById("hour").addEventListener("change", (ev) => post("/api/hour/" + ev.target.value));
  document.getElementById("back").addEventListener("click", () => post("/api/return"));
  const el = document.getElementById("map");
  let bound = false;
  const bindClicks = () => {
    if (bound || !el.on) return;
    bound = true;
    el.on("plotly_click", (ev) => {
      if (mode === "overview") post("/api/select/" + ev.points[0].pointIndex);
    });
  };
  bindClicks();
  const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
  ws.onmessage = (msg) => {
    const snap = JSON.parse(msg.data);
    const r = snap.render;
    mode = snap.mode;
    document.getElementById("mode").textContent = snap.mode;
    document.getElementById("hour").value = snap.hour;
    document.getElementById("back").hidden = !snap.can_return;
    const empty = document.getElementById("empty");
    if (empty) empty.hidden = !!r.center;
    draw(r.positions.map(p => p.lat), r.positions.map(p => p.lon), r.colors, r.center, r.zoom);
    bindClicks();
  };
}
</script>
</body>
</html>
`))

// Page writes the HTML map page for snap
func Page(w io.Writer, snap view.Snapshot, opts PageOptions) error {
	title := opts.Title
	if title == "" {
		title = fmt.Sprintf("Grid load at hour %d", snap.Hour)
	}

	data := pageData{
		Title:     title,
		Hour:      snap.Hour,
		Mode:      snap.Mode,
		CanReturn: snap.CanReturn,
		Live:      opts.Live,
		Zoom:      snap.Render.Zoom,
		Selected:  snap.Selected,
		Lats:      make([]float64, 0, len(snap.Render.Positions)),
		Lons:      make([]float64, 0, len(snap.Render.Positions)),
		Colors:    make([]string, 0, len(snap.Render.Colors)),
	}
	for h := models.MinHour; h <= models.MaxHour; h++ {
		data.Hours = append(data.Hours, h)
	}
	for _, p := range snap.Render.Positions {
		data.Lats = append(data.Lats, p.Lat)
		data.Lons = append(data.Lons, p.Lon)
	}
	for _, c := range snap.Render.Colors {
		data.Colors = append(data.Colors, string(c))
	}
	if c := snap.Render.Center; c != nil {
		data.HasCenter = true
		data.CenterLat = c.Lat
		data.CenterLon = c.Lon
	}

	if err := pageTmpl.Execute(w, data); err != nil {
		return fmt.Errorf("rendering page: %w", err)
	}
	return nil
}
