// Package view holds the dashboard view state: the hour selection, the loaded
// datasets and the overview/drill-down navigation that decides what the map
// draws.
//
// A Controller performs no I/O. Transitions that need data return a request
// tagged with a sequence number; the caller runs the fetch and hands the result
// back through PointsLoaded or ChargersLoaded. Only the latest request of each
// kind is accepted, so the display always matches the most recent user action.
package view

import (
	"errors"
	"fmt"

	"github.com/jgoulah/gridview/internal/classify"
	"github.com/jgoulah/gridview/pkg/models"
)

// Mode is the navigation mode of the view
type Mode int

const (
	Overview Mode = iota
	DrillDown
)

func (m Mode) String() string {
	if m == DrillDown {
		return "drilldown"
	}
	return "overview"
}

var (
	ErrInvalidHour     = errors.New("hour out of range")
	ErrIndexOutOfRange = errors.New("point index out of range")
	ErrNotInOverview   = errors.New("points can only be selected in overview mode")
	ErrNotInDrillDown  = errors.New("not in drill-down mode")
	ErrReturnDisabled  = errors.New("return to overview is disabled")
)

// PointsRequest asks the data source for the grid points of one hour
type PointsRequest struct {
	Seq  uint64
	Hour int
}

// ChargersRequest asks the data source for the chargers near one overloaded point
type ChargersRequest struct {
	Seq   uint64
	Query models.ChargerQuery
}

// State is the view state owned by a Controller
type State struct {
	Hour     int
	Points   []models.GridPoint
	Chargers []models.ChargerRecord
	Mode     Mode
	Selected *models.GridPoint
}

// Controller owns a State and applies transitions to it. It is not safe for
// concurrent use; Session serializes access for asynchronous callers.
type Controller struct {
	state       State
	allowReturn bool

	pointsSeq   uint64
	chargersSeq uint64
}

// Option configures a Controller
type Option func(*Controller)

// WithHour sets the initially selected hour. Invalid hours are ignored.
func WithHour(h int) Option {
	return func(c *Controller) {
		if models.ValidHour(h) {
			c.state.Hour = h
		}
	}
}

// WithReturn enables the explicit Return transition out of drill-down
func WithReturn(enabled bool) Option {
	return func(c *Controller) {
		c.allowReturn = enabled
	}
}

// NewController creates a controller in overview mode at the default hour
func NewController(opts ...Option) *Controller {
	c := &Controller{
		state: State{Hour: models.DefaultHour, Mode: Overview},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start issues the initial points request for the current hour
func (c *Controller) Start() PointsRequest {
	c.pointsSeq++
	return PointsRequest{Seq: c.pointsSeq, Hour: c.state.Hour}
}

// SetHour selects a new hour, returning to overview and discarding the drill-down.
// Points stay as loaded until the returned request is fulfilled.
func (c *Controller) SetHour(h int) (PointsRequest, error) {
	if !models.ValidHour(h) {
		return PointsRequest{}, fmt.Errorf("%w: %d (valid %d-%d)", ErrInvalidHour, h, models.MinHour, models.MaxHour)
	}

	c.state.Hour = h
	c.state.Mode = Overview
	c.state.Selected = nil
	c.state.Chargers = nil
	c.chargersSeq++ // any chargers in flight belong to the old hour

	c.pointsSeq++
	return PointsRequest{Seq: c.pointsSeq, Hour: h}, nil
}

// SelectPoint handles a click on the idx-th overview point. A normal point only
// becomes the selection; an overloaded one switches to drill-down and returns the
// chargers request to run.
func (c *Controller) SelectPoint(idx int) (*ChargersRequest, error) {
	if c.state.Mode != Overview {
		return nil, ErrNotInOverview
	}
	if idx < 0 || idx >= len(c.state.Points) {
		return nil, fmt.Errorf("%w: %d (have %d points)", ErrIndexOutOfRange, idx, len(c.state.Points))
	}

	point := c.state.Points[idx]
	c.state.Selected = &point

	if !classify.Classify(point).Overloaded() {
		return nil, nil
	}

	c.state.Chargers = []models.ChargerRecord{}
	c.state.Mode = DrillDown

	c.chargersSeq++
	return &ChargersRequest{
		Seq: c.chargersSeq,
		Query: models.ChargerQuery{
			Hour:     c.state.Hour,
			Cadaster: point.Cadaster,
			BaseLoad: point.BaseLoad,
			MaxLoad:  point.MaxLoad,
		},
	}, nil
}

// Return leaves drill-down for the overview of the current hour
func (c *Controller) Return() error {
	if !c.allowReturn {
		return ErrReturnDisabled
	}
	if c.state.Mode != DrillDown {
		return ErrNotInDrillDown
	}

	c.state.Mode = Overview
	c.state.Selected = nil
	c.state.Chargers = nil
	c.chargersSeq++
	return nil
}

// PointsLoaded replaces the points with a delivered dataset. It returns false
// and leaves the state untouched when seq is not the latest points request.
func (c *Controller) PointsLoaded(seq uint64, points []models.GridPoint) bool {
	if seq != c.pointsSeq {
		return false
	}
	c.state.Points = points
	return true
}

// ChargersLoaded replaces the chargers with a delivered dataset. It returns false
// and leaves the state untouched when seq is not the latest chargers request.
func (c *Controller) ChargersLoaded(seq uint64, records []models.ChargerRecord) bool {
	if seq != c.chargersSeq {
		return false
	}
	c.state.Chargers = records
	return true
}

// State returns a copy of the current view state
func (c *Controller) State() State {
	s := c.state
	s.Points = append([]models.GridPoint(nil), c.state.Points...)
	s.Chargers = append([]models.ChargerRecord(nil), c.state.Chargers...)
	if c.state.Selected != nil {
		sel := *c.state.Selected
		s.Selected = &sel
	}
	return s
}

// Hour returns the selected hour
func (c *Controller) Hour() int { return c.state.Hour }

// Mode returns the navigation mode
func (c *Controller) Mode() Mode { return c.state.Mode }

// ReturnEnabled reports whether Return is allowed
func (c *Controller) ReturnEnabled() bool { return c.allowReturn }

// RenderSet derives the map geometry for the active mode
func (c *Controller) RenderSet() RenderSet {
	if c.state.Mode == DrillDown && c.state.Selected != nil {
		return deriveDrillDown(c.state.Chargers, *c.state.Selected)
	}
	return deriveOverview(c.state.Points)
}
