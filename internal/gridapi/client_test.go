package gridapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jgoulah/gridview/pkg/models"
)

const pointsBody = `[
  {"lat": 1, "lon": 1, "address": "1 Main St", "time": 12, "predictedLoad": 3.5,
   "isOverloaded": "False", "baseLoad": 10, "maxLoad": 5, "cadaster": "C0", "feeder": "F7"},
  {"lat": 2, "lon": 2, "address": "2 Main St", "time": 12.0, "predictedLoad": 14,
   "isOverloaded": "True", "baseLoad": 5, "maxLoad": 10, "cadaster": "C1"},
  {"lat": 95, "lon": 2, "isOverloaded": true, "cadaster": "bad"},
  {"lat": 3, "lon": 3, "isOverloaded": true, "baseLoad": 10, "maxLoad": 10, "cadaster": "C3"},
  {"lat": 4, "lon": 4, "isOverloaded": 1, "cadaster": "C4"},
  {"isOverloaded": "False", "cadaster": "nopos"},
  {"lat": 5, "isOverloaded": "False", "cadaster": "nolon"},
  {"lat": "1.5", "lon": 2, "isOverloaded": "False", "cadaster": "typed"},
  {"lat": 0, "lon": 0, "isOverloaded": "False", "cadaster": "origin"}
]`

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t)), WithRetries(2, time.Millisecond)}, opts...)
	c, err := New(srv.URL+"/api/", opts...)
	require.NoError(t, err)
	return c
}

func TestFetchPoints(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/points", r.URL.Path)
		assert.Equal(t, "12", r.URL.Query().Get("time"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(pointsBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, WithToken("secret"))
	points, err := c.FetchPoints(context.Background(), 12)
	require.NoError(t, err)
	require.Len(t, points, 5, "out-of-range, missing and mistyped coordinates are skipped")

	assert.False(t, points[0].IsOverloaded)
	assert.Equal(t, "F7", points[0].Extra["feeder"])
	assert.Equal(t, models.LatLon{Lat: 1, Lon: 1}, points[0].Position)
	assert.Equal(t, 12, points[0].Hour)
	assert.Equal(t, 3.5, points[0].PredictedLoad)

	assert.True(t, points[1].IsOverloaded)
	assert.Equal(t, 12, points[1].Hour)
	assert.Equal(t, "C1", points[1].Cadaster)
	assert.Empty(t, points[1].Extra)

	assert.True(t, points[2].IsOverloaded, "JSON booleans are accepted")
	assert.False(t, points[3].IsOverloaded, "malformed flags are falsy")

	assert.Equal(t, "origin", points[4].Cadaster, "an explicit zero coordinate is kept")
	assert.Equal(t, models.LatLon{}, points[4].Position)
}

func TestFetchChargers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chargers", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "12", q.Get("time"))
		assert.Equal(t, "C1", q.Get("cadaster"))
		assert.Equal(t, "5", q.Get("baseLoad"))
		assert.Equal(t, "10.5", q.Get("maxLoad"))
		_, _ = w.Write([]byte(`[{"lat": 2.1, "lon": 2.1, "carModel": "Leaf", "chargeNeed": 20,
			"optimizedCharge": 15, "address": "x", "cadaster": "C1", "decreasePercent": 25},
			{"carModel": "Zoe", "cadaster": "C1"},
			{"lat": 2.2, "lon": "east", "carModel": "Kona", "cadaster": "C1"}]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	records, err := c.FetchChargers(context.Background(), models.ChargerQuery{Hour: 12, Cadaster: "C1", BaseLoad: 5, MaxLoad: 10.5})
	require.NoError(t, err)
	require.Len(t, records, 1, "chargers without usable coordinates are skipped")
	assert.Equal(t, models.ChargerRecord{
		Position:        models.LatLon{Lat: 2.1, Lon: 2.1},
		CarModel:        "Leaf",
		ChargeNeed:      20,
		OptimizedCharge: 15,
		Address:         "x",
		Cadaster:        "C1",
		DecreasePercent: 25,
	}, records[0])
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	points, err := c.FetchPoints(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, points)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsArePermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such hour", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.FetchPoints(context.Background(), 30)
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.FetchPoints(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"not": "an array"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.FetchPoints(context.Background(), 1)
	assert.ErrorContains(t, err, "decoding points")
}

func TestNewRequiresAbsoluteURL(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
	_, err = New("/relative")
	assert.Error(t, err)
}
