package view

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jgoulah/gridview/pkg/models"
)

// fakeSource serves canned datasets. A gate registered for an hour or cadaster
// holds that fetch until the test closes it.
type fakeSource struct {
	mu          sync.Mutex
	points      map[int][]models.GridPoint
	chargers    map[string][]models.ChargerRecord
	pointsErr   error
	pointGates  map[int]chan struct{}
	chargeGates map[string]chan struct{}
	queries     []models.ChargerQuery
	hours       []int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		points:      make(map[int][]models.GridPoint),
		chargers:    make(map[string][]models.ChargerRecord),
		pointGates:  make(map[int]chan struct{}),
		chargeGates: make(map[string]chan struct{}),
	}
}

func (f *fakeSource) FetchPoints(ctx context.Context, hour int) ([]models.GridPoint, error) {
	f.mu.Lock()
	f.hours = append(f.hours, hour)
	gate := f.pointGates[hour]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pointsErr != nil {
		return nil, f.pointsErr
	}
	return f.points[hour], nil
}

func (f *fakeSource) FetchChargers(ctx context.Context, q models.ChargerQuery) ([]models.ChargerRecord, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	gate := f.chargeGates[q.Cadaster]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chargers[q.Cadaster], nil
}

func (f *fakeSource) chargerQueries() []models.ChargerQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ChargerQuery(nil), f.queries...)
}

func startSession(t *testing.T, src Source, opts ...Option) *Session {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSession(NewController(opts...), src, zaptest.NewLogger(t))

	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errc
	})
	return s
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestSessionEndToEnd(t *testing.T) {
	src := newFakeSource()
	src.points[12] = samplePoints()
	src.chargers["C1"] = []models.ChargerRecord{{Position: models.LatLon{Lat: 2.1, Lon: 2.1}, Cadaster: "C1"}}

	s := startSession(t, src)
	ctx := testContext(t)

	require.NoError(t, s.Settle(ctx))
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "overview", snap.Mode)
	assert.Equal(t, []Color{Blue, Red}, snap.Render.Colors)

	require.NoError(t, s.SelectPoint(ctx, 1))
	require.NoError(t, s.Settle(ctx))

	snap, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "drilldown", snap.Mode)
	assert.Equal(t, []models.LatLon{{Lat: 2.1, Lon: 2.1}, {Lat: 2, Lon: 2}}, snap.Render.Positions)
	assert.Equal(t, []Color{Green, Red}, snap.Render.Colors)
	assert.Equal(t, []models.ChargerQuery{{Hour: 12, Cadaster: "C1", BaseLoad: 5, MaxLoad: 10}}, src.chargerQueries())
}

func TestSessionNormalPointIssuesNoFetch(t *testing.T) {
	src := newFakeSource()
	src.points[12] = samplePoints()

	s := startSession(t, src)
	ctx := testContext(t)
	require.NoError(t, s.Settle(ctx))

	require.NoError(t, s.SelectPoint(ctx, 0))
	require.NoError(t, s.Settle(ctx))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "overview", snap.Mode)
	require.NotNil(t, snap.Selected)
	assert.Empty(t, src.chargerQueries())
}

func TestSessionCentersBeforeChargersArrive(t *testing.T) {
	src := newFakeSource()
	src.points[12] = samplePoints()
	gate := make(chan struct{})
	src.chargeGates["C1"] = gate

	s := startSession(t, src)
	ctx := testContext(t)
	require.NoError(t, s.Settle(ctx))

	require.NoError(t, s.SelectPoint(ctx, 1))
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "drilldown", snap.Mode)
	assert.Empty(t, snap.Chargers)
	require.NotNil(t, snap.Render.Center)
	assert.Equal(t, models.LatLon{Lat: 2, Lon: 2}, *snap.Render.Center)

	close(gate)
	require.NoError(t, s.Settle(ctx))
}

func TestSessionDiscardsStalePoints(t *testing.T) {
	src := newFakeSource()
	src.points[12] = samplePoints()
	src.points[3] = []models.GridPoint{{Position: models.LatLon{Lat: 3, Lon: 3}}}
	src.points[4] = []models.GridPoint{{Position: models.LatLon{Lat: 4, Lon: 4}}}
	slow := make(chan struct{})
	src.pointGates[3] = slow

	s := startSession(t, src)
	ctx := testContext(t)
	require.NoError(t, s.Settle(ctx))

	require.NoError(t, s.SetHour(ctx, 3))
	require.NoError(t, s.SetHour(ctx, 4))

	// Let hour 4 land first, then release the older hour 3 response.
	require.Eventually(t, func() bool {
		snap, err := s.Snapshot(ctx)
		return err == nil && len(snap.Points) == 1 && snap.Points[0].Position.Lat == 4
	}, 2*time.Second, 5*time.Millisecond)
	close(slow)
	require.NoError(t, s.Settle(ctx))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Hour)
	require.Len(t, snap.Points, 1)
	assert.Equal(t, 4.0, snap.Points[0].Position.Lat)
}

func TestSessionDiscardsChargersAfterHourChange(t *testing.T) {
	src := newFakeSource()
	src.points[12] = samplePoints()
	src.chargers["C1"] = []models.ChargerRecord{{CarModel: "late"}}
	gate := make(chan struct{})
	src.chargeGates["C1"] = gate

	s := startSession(t, src)
	ctx := testContext(t)
	require.NoError(t, s.Settle(ctx))

	require.NoError(t, s.SelectPoint(ctx, 1))
	require.NoError(t, s.SetHour(ctx, 12))
	close(gate)
	require.NoError(t, s.Settle(ctx))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "overview", snap.Mode)
	assert.Empty(t, snap.Chargers)
	assert.Nil(t, snap.Selected)
}

func TestSessionFetchFailureKeepsStaleData(t *testing.T) {
	src := newFakeSource()
	src.points[12] = samplePoints()

	s := startSession(t, src)
	ctx := testContext(t)
	require.NoError(t, s.Settle(ctx))

	src.mu.Lock()
	src.pointsErr = errors.New("backend down")
	src.mu.Unlock()

	require.NoError(t, s.SetHour(ctx, 5))
	require.NoError(t, s.Settle(ctx))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Hour)
	assert.Len(t, snap.Points, 2)
	assert.Len(t, snap.Render.Colors, 2)
}

func TestSessionRejectsInvalidTransitions(t *testing.T) {
	src := newFakeSource()
	src.points[12] = samplePoints()

	s := startSession(t, src)
	ctx := testContext(t)
	require.NoError(t, s.Settle(ctx))

	assert.ErrorIs(t, s.SetHour(ctx, 0), ErrInvalidHour)
	assert.ErrorIs(t, s.SelectPoint(ctx, 9), ErrIndexOutOfRange)
	assert.ErrorIs(t, s.Return(ctx), ErrReturnDisabled)
}

func TestSessionReturn(t *testing.T) {
	src := newFakeSource()
	src.points[12] = samplePoints()

	s := startSession(t, src, WithReturn(true))
	ctx := testContext(t)
	require.NoError(t, s.Settle(ctx))

	require.NoError(t, s.SelectPoint(ctx, 1))
	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.CanReturn)

	require.NoError(t, s.Return(ctx))
	snap, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "overview", snap.Mode)
	assert.False(t, snap.CanReturn)
}

func TestSessionSubscribe(t *testing.T) {
	src := newFakeSource()
	src.points[12] = samplePoints()

	s := startSession(t, src)
	ctx := testContext(t)
	require.NoError(t, s.Settle(ctx))

	updates, unsubscribe, err := s.Subscribe(ctx)
	require.NoError(t, err)
	defer unsubscribe()

	first := <-updates
	assert.Equal(t, 12, first.Hour)

	require.NoError(t, s.SetHour(ctx, 6))
	select {
	case snap := <-updates:
		assert.Equal(t, 6, snap.Hour)
	case <-ctx.Done():
		t.Fatal("no snapshot after hour change")
	}
}

func TestSessionClosed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSession(NewController(), newFakeSource(), nil)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	assert.ErrorIs(t, s.SetHour(context.Background(), 3), ErrSessionClosed)
}
