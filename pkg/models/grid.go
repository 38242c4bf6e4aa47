package models

import "strings"

const (
	MinHour     = 1
	MaxHour     = 24
	DefaultHour = 12
)

// LatLon is a map position, passed through without projection
type LatLon struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// GridPoint represents one location's load figures at one hour of the day
type GridPoint struct {
	Position      LatLon         `json:"position"`
	Hour          int            `json:"time"`
	PredictedLoad float64        `json:"predicted_load"`
	BaseLoad      float64        `json:"base_load"`
	MaxLoad       float64        `json:"max_load"`
	IsOverloaded  bool           `json:"is_overloaded"`
	Address       string         `json:"address"`
	Cadaster      string         `json:"cadaster"`
	Extra         map[string]any `json:"extra,omitempty"` // Pass-through attributes from the backend
}

// ChargerRecord represents one vehicle charging event near a grid point
type ChargerRecord struct {
	Position        LatLon  `json:"position"`
	CarModel        string  `json:"car_model"`
	ChargeNeed      float64 `json:"charge_need"`
	OptimizedCharge float64 `json:"optimized_charge"`
	Address         string  `json:"address"`
	Cadaster        string  `json:"cadaster"`
	DecreasePercent float64 `json:"decrease_percent"`
}

// ChargerQuery identifies the chargers to load for one overloaded point
type ChargerQuery struct {
	Hour     int     `json:"hour"`
	Cadaster string  `json:"cadaster"`
	BaseLoad float64 `json:"base_load"`
	MaxLoad  float64 `json:"max_load"`
}

// ValidHour reports whether h is a selectable hour of day
func ValidHour(h int) bool {
	return h >= MinHour && h <= MaxHour
}

// ParseOverloaded converts the backend's string flag to a boolean.
// Only "True" (any case) is truthy; missing or malformed values are false.
func ParseOverloaded(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}
