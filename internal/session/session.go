// Package session runs one capture at a time against a driver.
//
// A Session owns the receive worker. State transitions are serialized by a
// mutex that is never held across a driver call. Stop uses two mechanisms:
// a cancel flag the worker checks between frames, and a handle close that
// unblocks a receive in flight.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/s2onet/internal/core"
	"firestige.xyz/s2onet/internal/driver"
	"firestige.xyz/s2onet/internal/log"
	"firestige.xyz/s2onet/internal/metrics"
	"firestige.xyz/s2onet/internal/store"
)

const (
	DefaultStopTimeout = 2 * time.Second
	DefaultMTUHint     = 65535
)

// Driver is the part of driver.Adapter a session uses.
type Driver interface {
	Open(filter string) (*driver.Handle, error)
	Recv(h *driver.Handle, buf []byte) (driver.RecvOutcome, error)
	Close(h *driver.Handle) error
}

// Params configures one run.
type Params struct {
	Filter      string
	MTUHint     int
	StopTimeout time.Duration
	LinkType    core.LinkType
}

func (p Params) withDefaults() Params {
	if p.MTUHint <= 0 {
		p.MTUHint = DefaultMTUHint
	}
	if p.StopTimeout <= 0 {
		p.StopTimeout = DefaultStopTimeout
	}
	return p
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	ID             string
	State          State
	FramesCaptured uint64 // Frames received in the current or last run
	FramesDropped  uint64 // Frames evicted from the store
	StoreLen       int
	HighWaterMark  int
	StartedAt      time.Time
	LastError      error
}

type run struct {
	gen    uint64
	params Params
	handle *driver.Handle
	cancel atomic.Bool
	done   chan struct{}
}

// Session is a restartable capture run.
type Session struct {
	id     string
	drv    Driver
	store  *store.Store
	logger log.Logger

	mu        sync.Mutex
	state     State
	lastErr   error
	gen       uint64
	cur       *run
	starting  chan struct{}
	startedAt time.Time
	captured  atomic.Uint64
}

// New creates an idle session that pushes frames into st.
func New(id string, drv Driver, st *store.Store, logger log.Logger) *Session {
	if logger == nil {
		logger = log.GetLogger()
	}
	s := &Session{
		id:     id,
		drv:    drv,
		store:  st,
		logger: logger.WithField("session", id),
	}
	s.publish(Idle)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState must be called with s.mu held.
func (s *Session) setState(next State) {
	prev := s.state
	s.state = next
	s.publish(prev)
	entry := s.logger.WithField("state", next.String())
	if next == Failed && s.lastErr != nil {
		entry = entry.WithError(s.lastErr)
		entry.Warnf("capture session %s -> %s", prev, next)
		return
	}
	entry.Debugf("capture session %s -> %s", prev, next)
}

func (s *Session) publish(prev State) {
	metrics.SessionState.WithLabelValues(s.id, prev.String()).Set(0)
	metrics.SessionState.WithLabelValues(s.id, s.state.String()).Set(1)
}

// fail must be called with s.mu held.
func (s *Session) fail(err error) {
	s.lastErr = err
	s.setState(Failed)
}

// Start opens a driver handle and starts the receive worker. It does not
// wait for the first frame. A failed open leaves the store untouched and
// the session Failed.
func (s *Session) Start(p Params) error {
	p = p.withDefaults()

	s.mu.Lock()
	switch {
	case s.state.Active():
		s.mu.Unlock()
		return core.ErrAlreadyRunning
	case s.state == Failed:
		err := fmt.Errorf("%w: %w", core.ErrSessionFailed, s.lastErr)
		s.mu.Unlock()
		return err
	}
	s.gen++
	gen := s.gen
	starting := make(chan struct{})
	s.starting = starting
	s.lastErr = nil
	s.setState(Starting)
	s.mu.Unlock()

	h, err := s.drv.Open(p.Filter)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(starting)

	if err != nil {
		s.fail(err)
		return err
	}

	r := &run{gen: gen, params: p, handle: h, done: make(chan struct{})}
	s.cur = r
	s.startedAt = time.Now()
	s.captured.Store(0)
	s.setState(Running)
	go s.work(r)
	return nil
}

// Stop cancels the run and waits up to the run's stop timeout for the
// worker to exit. On timeout the session is Failed with
// core.ErrStopTimeout, the handle is leaked and the store stays readable.
func (s *Session) Stop() error {
	s.mu.Lock()
	if s.state == Starting {
		starting := s.starting
		s.mu.Unlock()
		<-starting
		s.mu.Lock()
	}
	if s.state != Running {
		s.mu.Unlock()
		return core.ErrNotRunning
	}
	r := s.cur
	s.setState(Stopping)
	s.mu.Unlock()

	r.cancel.Store(true)
	if err := s.drv.Close(r.handle); err != nil && !errors.Is(err, core.ErrAlreadyClosed) {
		s.logger.WithError(err).Warn("closing capture handle failed")
	}

	timer := time.NewTimer(r.params.StopTimeout)
	defer timer.Stop()

	select {
	case <-r.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen == r.gen && s.state == Stopping {
			s.setState(Stopped)
		}
		return nil
	case <-timer.C:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen == r.gen && s.state == Stopping {
			s.fail(core.ErrStopTimeout)
		}
		metrics.StopTimeoutsTotal.Inc()
		s.logger.WithField("timeout", r.params.StopTimeout.String()).Error("capture worker did not exit, driver handle leaked")
		return fmt.Errorf("stop after %s: %w", r.params.StopTimeout, core.ErrStopTimeout)
	}
}

// Reset returns a Failed session to Idle so it can be started again.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state.Active():
		return core.ErrAlreadyRunning
	case s.state == Failed:
		s.lastErr = nil
		s.setState(Idle)
	}
	return nil
}

// Wait blocks until the current run's worker has exited.
func (s *Session) Wait() {
	s.mu.Lock()
	r := s.cur
	s.mu.Unlock()
	if r != nil {
		<-r.done
	}
}

// Status returns a snapshot of the session and its store.
func (s *Session) Status() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:             s.id,
		State:          s.state,
		FramesCaptured: s.captured.Load(),
		FramesDropped:  s.store.DroppedCount(),
		StoreLen:       s.store.Len(),
		HighWaterMark:  s.store.HighWaterMark(),
		StartedAt:      s.startedAt,
		LastError:      s.lastErr,
	}
}

func (s *Session) work(r *run) {
	defer close(r.done)

	err := s.receive(r)
	if cerr := s.drv.Close(r.handle); cerr != nil && !errors.Is(cerr, core.ErrAlreadyClosed) {
		s.logger.WithError(cerr).Warn("closing capture handle failed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != r.gen || s.state != Running {
		// Stop owns the transition, or the run was abandoned.
		if err != nil {
			s.logger.WithError(err).Debug("capture worker exited during stop")
		}
		return
	}
	if err != nil {
		s.fail(err)
		return
	}
	s.setState(Stopped)
}

func (s *Session) receive(r *run) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v", core.ErrWorkerPanic, p)
		}
	}()

	buf := make([]byte, r.params.MTUHint)
	captured := metrics.FramesCapturedTotal.WithLabelValues(s.id)
	for !r.cancel.Load() {
		out, err := s.drv.Recv(r.handle, buf)
		if err != nil {
			if errors.Is(err, core.ErrClosed) {
				return nil
			}
			return err
		}

		data := make([]byte, out.Len)
		copy(data, buf[:out.Len])
		s.store.Push(core.Frame{
			Data:       data,
			CapturedAt: time.Now(),
			Direction:  out.Direction,
			LinkType:   r.params.LinkType,
		})
		s.captured.Add(1)
		captured.Inc()
	}
	return nil
}
