package view

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/jgoulah/gridview/pkg/models"
)

// ErrSessionClosed is returned when the session's event loop has stopped
var ErrSessionClosed = errors.New("session closed")

// Source supplies the datasets the view displays
type Source interface {
	FetchPoints(ctx context.Context, hour int) ([]models.GridPoint, error)
	FetchChargers(ctx context.Context, q models.ChargerQuery) ([]models.ChargerRecord, error)
}

// Snapshot is a read-only copy of the view for renderers and publishers
type Snapshot struct {
	Hour      int                    `json:"hour"`
	Mode      string                 `json:"mode"`
	CanReturn bool                   `json:"can_return"`
	Selected  *models.GridPoint      `json:"selected,omitempty"`
	Points    []models.GridPoint     `json:"points"`
	Chargers  []models.ChargerRecord `json:"chargers"`
	Render    RenderSet              `json:"render"`
}

type event func(loopCtx context.Context)

// Session drives a Controller from concurrent callers. All transitions and
// deliveries run on the goroutine executing Run, one at a time; fetches run on
// their own goroutines and report back as events.
type Session struct {
	ctrl   *Controller
	src    Source
	logger *zap.Logger

	events chan event
	done   chan struct{}

	// Owned by the loop goroutine.
	pending     int
	waiters     []chan struct{}
	subscribers map[int]chan Snapshot
	nextSubID   int
}

// NewSession creates a session around ctrl. Run must be called once to start it.
func NewSession(ctrl *Controller, src Source, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		ctrl:        ctrl,
		src:         src,
		logger:      logger.Named("view"),
		events:      make(chan event),
		done:        make(chan struct{}),
		subscribers: make(map[int]chan Snapshot),
	}
}

// Run issues the initial points fetch and processes events until ctx is done
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	s.fetchPoints(ctx, s.ctrl.Start())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			ev(ctx)
		}
	}
}

// SetHour selects an hour and starts loading its points
func (s *Session) SetHour(ctx context.Context, hour int) error {
	return s.call(ctx, func(loopCtx context.Context) error {
		req, err := s.ctrl.SetHour(hour)
		if err != nil {
			return err
		}
		s.logger.Debug("hour selected", zap.Int("hour", hour), zap.Uint64("seq", req.Seq))
		s.fetchPoints(loopCtx, req)
		s.publish()
		return nil
	})
}

// SelectPoint clicks the idx-th overview point
func (s *Session) SelectPoint(ctx context.Context, idx int) error {
	return s.call(ctx, func(loopCtx context.Context) error {
		req, err := s.ctrl.SelectPoint(idx)
		if err != nil {
			return err
		}
		if req != nil {
			s.logger.Debug("drilling into point",
				zap.Int("index", idx),
				zap.String("cadaster", req.Query.Cadaster),
				zap.Uint64("seq", req.Seq))
			s.fetchChargers(loopCtx, *req)
		}
		s.publish()
		return nil
	})
}

// Return leaves drill-down mode
func (s *Session) Return(ctx context.Context) error {
	return s.call(ctx, func(context.Context) error {
		if err := s.ctrl.Return(); err != nil {
			return err
		}
		s.publish()
		return nil
	})
}

// Snapshot returns the current view
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.call(ctx, func(context.Context) error {
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

// Settle blocks until no fetch is in flight
func (s *Session) Settle(ctx context.Context) error {
	idle := make(chan struct{})
	err := s.call(ctx, func(context.Context) error {
		if s.pending == 0 {
			close(idle)
		} else {
			s.waiters = append(s.waiters, idle)
		}
		return nil
	})
	if err != nil {
		return err
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}
}

// Subscribe returns a channel receiving the current snapshot and then one per
// change. Slow readers only see the latest snapshot. The returned func
// unsubscribes.
func (s *Session) Subscribe(ctx context.Context) (<-chan Snapshot, func(), error) {
	ch := make(chan Snapshot, 1)
	var id int
	err := s.call(ctx, func(context.Context) error {
		id = s.nextSubID
		s.nextSubID++
		s.subscribers[id] = ch
		ch <- s.snapshot()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	cancel := func() {
		_ = s.call(context.Background(), func(context.Context) error {
			delete(s.subscribers, id)
			return nil
		})
	}
	return ch, cancel, nil
}

func (s *Session) call(ctx context.Context, fn func(loopCtx context.Context) error) error {
	errc := make(chan error, 1)
	ev := func(loopCtx context.Context) { errc <- fn(loopCtx) }

	select {
	case s.events <- ev:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrSessionClosed
	}

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post delivers an event from a fetch goroutine, dropping it if the loop has stopped
func (s *Session) post(ctx context.Context, ev event) {
	select {
	case s.events <- ev:
	case <-ctx.Done():
	case <-s.done:
	}
}

func (s *Session) fetchPoints(ctx context.Context, req PointsRequest) {
	s.pending++
	go func() {
		points, err := s.src.FetchPoints(ctx, req.Hour)
		s.post(ctx, func(context.Context) {
			defer s.fetchDone()
			if err != nil {
				s.logger.Warn("points fetch failed", zap.Int("hour", req.Hour), zap.Error(err))
				return
			}
			if !s.ctrl.PointsLoaded(req.Seq, points) {
				s.logger.Debug("discarding stale points", zap.Int("hour", req.Hour), zap.Uint64("seq", req.Seq))
				return
			}
			s.logger.Debug("points loaded", zap.Int("hour", req.Hour), zap.Int("count", len(points)))
			s.publish()
		})
	}()
}

func (s *Session) fetchChargers(ctx context.Context, req ChargersRequest) {
	s.pending++
	go func() {
		records, err := s.src.FetchChargers(ctx, req.Query)
		s.post(ctx, func(context.Context) {
			defer s.fetchDone()
			if err != nil {
				s.logger.Warn("chargers fetch failed", zap.String("cadaster", req.Query.Cadaster), zap.Error(err))
				return
			}
			if !s.ctrl.ChargersLoaded(req.Seq, records) {
				s.logger.Debug("discarding stale chargers", zap.String("cadaster", req.Query.Cadaster), zap.Uint64("seq", req.Seq))
				return
			}
			s.logger.Debug("chargers loaded", zap.String("cadaster", req.Query.Cadaster), zap.Int("count", len(records)))
			s.publish()
		})
	}()
}

func (s *Session) fetchDone() {
	s.pending--
	if s.pending > 0 {
		return
	}
	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil
}

func (s *Session) snapshot() Snapshot {
	st := s.ctrl.State()
	return Snapshot{
		Hour:      st.Hour,
		Mode:      st.Mode.String(),
		CanReturn: s.ctrl.ReturnEnabled() && st.Mode == DrillDown,
		Selected:  st.Selected,
		Points:    st.Points,
		Chargers:  st.Chargers,
		Render:    s.ctrl.RenderSet(),
	}
}

func (s *Session) publish() {
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshot()
	for _, ch := range s.subscribers {
		// Only the loop writes, so after draining there is room.
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
