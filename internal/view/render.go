package view

import (
	"github.com/jgoulah/gridview/internal/classify"
	"github.com/jgoulah/gridview/pkg/models"
)

// Color is a marker color understood by the map widget
type Color string

const (
	Blue   Color = "blue"
	Red    Color = "red"
	Purple Color = "purple"
	Green  Color = "green"
)

const (
	OverviewZoom  = 11
	DrillDownZoom = 13
)

// RenderSet is the geometry handed to the map widget
type RenderSet struct {
	Positions []models.LatLon `json:"positions"`
	Colors    []Color         `json:"colors"`
	Center    *models.LatLon  `json:"center,omitempty"` // nil means nothing to render
	Zoom      int             `json:"zoom"`
}

// Empty reports whether there is nothing to draw
func (r RenderSet) Empty() bool {
	return len(r.Positions) == 0
}

// CategoryColor maps a classifier category to its overview marker color
func CategoryColor(c classify.Category) Color {
	switch c {
	case classify.OverloadedUnderCapacity:
		return Red
	case classify.OverloadedAtOrOverCapacity:
		return Purple
	default:
		return Blue
	}
}

func deriveOverview(points []models.GridPoint) RenderSet {
	rs := RenderSet{
		Positions: make([]models.LatLon, 0, len(points)),
		Colors:    make([]Color, 0, len(points)),
		Zoom:      OverviewZoom,
	}
	for _, p := range points {
		rs.Positions = append(rs.Positions, p.Position)
		rs.Colors = append(rs.Colors, CategoryColor(classify.Classify(p)))
	}
	rs.Center = meanPosition(rs.Positions)
	return rs
}

func deriveDrillDown(chargers []models.ChargerRecord, selected models.GridPoint) RenderSet {
	rs := RenderSet{
		Positions: make([]models.LatLon, 0, len(chargers)+1),
		Colors:    make([]Color, 0, len(chargers)+1),
		Zoom:      DrillDownZoom,
	}
	for _, c := range chargers {
		rs.Positions = append(rs.Positions, c.Position)
		rs.Colors = append(rs.Colors, Green)
	}

	// The selected point is always overloaded, so it is drawn red whatever its category.
	rs.Positions = append(rs.Positions, selected.Position)
	rs.Colors = append(rs.Colors, Red)

	center := selected.Position
	rs.Center = &center
	return rs
}

// meanPosition averages latitudes and longitudes independently.
// An empty set has no center.
func meanPosition(positions []models.LatLon) *models.LatLon {
	if len(positions) == 0 {
		return nil
	}
	var lat, lon float64
	for _, p := range positions {
		lat += p.Lat
		lon += p.Lon
	}
	n := float64(len(positions))
	return &models.LatLon{Lat: lat / n, Lon: lon / n}
}
