package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/s2onet/internal/core"
	"firestige.xyz/s2onet/internal/driver"
	"firestige.xyz/s2onet/internal/driver/drivertest"
	"firestige.xyz/s2onet/internal/log"
	"firestige.xyz/s2onet/internal/store"
)

type fixture struct {
	drv     *drivertest.Driver
	adapter *driver.Adapter
	store   *store.Store
	session *Session
}

func newFixture(t *testing.T, capacity int) *fixture {
	t.Helper()
	d := drivertest.New(0)
	a := driver.NewAdapter(drivertest.NewLoader(d), driver.WithLogger(log.Discard()))
	require.NoError(t, a.Load(driver.DefaultABI()))
	st := store.New(capacity)
	t.Cleanup(d.Unstick)
	return &fixture{drv: d, adapter: a, store: st, session: New(t.Name(), a, st, log.Discard())}
}

func TestStartStopEmpty(t *testing.T) {
	f := newFixture(t, 16)

	require.NoError(t, f.session.Start(Params{}))
	assert.Equal(t, Running, f.session.State())

	begin := time.Now()
	require.NoError(t, f.session.Stop())
	assert.Less(t, time.Since(begin), DefaultStopTimeout)

	assert.Equal(t, Stopped, f.session.State())
	assert.Equal(t, 1, f.drv.Opens())
	assert.Equal(t, 1, f.drv.Closes())
	assert.Equal(t, 0, f.adapter.OpenHandles())
	assert.Equal(t, 0, f.store.Len())
	assert.Equal(t, []string{"true"}, f.drv.Filters())
}

func TestFramesReachStore(t *testing.T) {
	f := newFixture(t, 16)
	require.NoError(t, f.session.Start(Params{Filter: "udp", LinkType: core.LinkRawIP}))

	f.drv.Inject([]byte{0x45, 1, 2}, core.DirectionOutbound)
	f.drv.Inject([]byte{0x45, 3}, core.DirectionInbound)

	require.Eventually(t, func() bool { return f.session.Status().FramesCaptured == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.session.Stop())

	snap := f.store.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, []byte{0x45, 1, 2}, snap[0].Data)
	assert.Equal(t, core.DirectionOutbound, snap[0].Direction)
	assert.Equal(t, core.LinkRawIP, snap[0].LinkType)
	assert.False(t, snap[0].CapturedAt.IsZero())
	assert.Equal(t, uint64(2), snap[1].Seq)
	assert.Equal(t, []string{"udp"}, f.drv.Filters())
}

func TestFramesAreCopied(t *testing.T) {
	f := newFixture(t, 16)
	require.NoError(t, f.session.Start(Params{MTUHint: 64}))

	f.drv.Inject([]byte{1, 1, 1, 1}, core.DirectionUnknown)
	f.drv.Inject([]byte{2, 2}, core.DirectionUnknown)
	require.Eventually(t, func() bool { return f.store.Len() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.session.Stop())

	snap := f.store.Snapshot()
	assert.Equal(t, []byte{1, 1, 1, 1}, snap[0].Data)
	assert.Equal(t, []byte{2, 2}, snap[1].Data)
}

func TestStopUnblocksRecv(t *testing.T) {
	f := newFixture(t, 16)
	require.NoError(t, f.session.Start(Params{}))
	time.Sleep(500 * time.Millisecond)

	begin := time.Now()
	require.NoError(t, f.session.Stop())
	assert.Less(t, time.Since(begin), 100*time.Millisecond)
}

func TestStartWhileRunning(t *testing.T) {
	f := newFixture(t, 16)
	require.NoError(t, f.session.Start(Params{}))
	defer f.session.Stop()

	assert.ErrorIs(t, f.session.Start(Params{}), core.ErrAlreadyRunning)
	assert.Equal(t, 1, f.drv.Opens())
}

func TestStopTwice(t *testing.T) {
	f := newFixture(t, 16)
	require.NoError(t, f.session.Start(Params{}))

	assert.NoError(t, f.session.Stop())
	assert.ErrorIs(t, f.session.Stop(), core.ErrNotRunning)
}

func TestStopIdle(t *testing.T) {
	f := newFixture(t, 16)
	assert.ErrorIs(t, f.session.Stop(), core.ErrNotRunning)
	assert.Equal(t, Idle, f.session.State())
}

func TestRestartContinuesSeq(t *testing.T) {
	f := newFixture(t, 16)

	require.NoError(t, f.session.Start(Params{}))
	f.drv.Inject([]byte{1}, core.DirectionUnknown)
	require.Eventually(t, func() bool { return f.store.Len() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.session.Stop())

	require.NoError(t, f.session.Start(Params{}))
	f.drv.Inject([]byte{2}, core.DirectionUnknown)
	require.Eventually(t, func() bool { return f.store.Len() == 2 }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.session.Stop())

	snap := f.store.Snapshot()
	assert.Equal(t, uint64(1), snap[0].Seq)
	assert.Equal(t, uint64(2), snap[1].Seq)
	assert.Equal(t, uint64(1), f.session.Status().FramesCaptured)
	assert.Equal(t, 2, f.drv.Opens())
	assert.Equal(t, 2, f.drv.Closes())
}

func TestOpenFailure(t *testing.T) {
	f := newFixture(t, 16)
	f.store.Push(core.Frame{Data: []byte{9}})
	f.drv.FailOpen(drivertest.CodeAccessDenied)

	err := f.session.Start(Params{})
	require.ErrorIs(t, err, core.ErrInsufficientPrivilege)

	st := f.session.Status()
	assert.Equal(t, Failed, st.State)
	assert.ErrorIs(t, st.LastError, core.ErrInsufficientPrivilege)
	assert.Equal(t, 1, f.store.Len())

	err = f.session.Start(Params{})
	assert.ErrorIs(t, err, core.ErrSessionFailed)
	assert.ErrorIs(t, err, core.ErrInsufficientPrivilege)

	f.drv.FailOpen(0)
	require.NoError(t, f.session.Reset())
	assert.Equal(t, Idle, f.session.State())
	require.NoError(t, f.session.Start(Params{}))
	require.NoError(t, f.session.Stop())
}

func TestRecvFaultFailsSession(t *testing.T) {
	f := newFixture(t, 16)
	require.NoError(t, f.session.Start(Params{}))

	f.drv.Inject([]byte{1}, core.DirectionUnknown)
	f.drv.InjectError(drivertest.CodeGenFailure)
	f.session.Wait()

	st := f.session.Status()
	assert.Equal(t, Failed, st.State)
	assert.ErrorIs(t, st.LastError, core.ErrDriverFault)
	assert.Equal(t, 1, st.StoreLen)
	assert.Equal(t, 0, f.drv.Live())
	assert.ErrorIs(t, f.session.Stop(), core.ErrNotRunning)
}

func TestTruncatedFrameFailsSession(t *testing.T) {
	f := newFixture(t, 16)
	require.NoError(t, f.session.Start(Params{MTUHint: 4}))

	f.drv.Inject(make([]byte, 10), core.DirectionUnknown)
	f.session.Wait()

	st := f.session.Status()
	assert.Equal(t, Failed, st.State)
	assert.ErrorIs(t, st.LastError, core.ErrTruncated)
}

func TestWorkerPanicRecovered(t *testing.T) {
	f := newFixture(t, 16)
	require.NoError(t, f.session.Start(Params{}))

	f.drv.InjectPanic()
	f.session.Wait()

	st := f.session.Status()
	assert.Equal(t, Failed, st.State)
	assert.ErrorIs(t, st.LastError, core.ErrWorkerPanic)
	assert.Equal(t, 0, f.drv.Live())
	assert.Equal(t, 0, f.adapter.OpenHandles())
}

func TestStopTimeout(t *testing.T) {
	f := newFixture(t, 16)
	f.drv.IgnoreClose(true)
	f.store.Push(core.Frame{Data: []byte{1}})

	require.NoError(t, f.session.Start(Params{StopTimeout: 50 * time.Millisecond}))
	require.Eventually(t, func() bool { return f.drv.Blocked() == 1 }, time.Second, time.Millisecond)

	begin := time.Now()
	err := f.session.Stop()
	require.ErrorIs(t, err, core.ErrStopTimeout)
	assert.GreaterOrEqual(t, time.Since(begin), 50*time.Millisecond)

	st := f.session.Status()
	assert.Equal(t, Failed, st.State)
	assert.ErrorIs(t, st.LastError, core.ErrStopTimeout)
	assert.Equal(t, 1, st.StoreLen)

	// The late worker exit must not overwrite the failure.
	f.drv.Unstick()
	f.session.Wait()
	assert.Equal(t, Failed, f.session.State())

	require.NoError(t, f.session.Reset())
	f.drv.IgnoreClose(false)
	require.NoError(t, f.session.Start(Params{}))
	require.NoError(t, f.session.Stop())
}

func TestStopDuringStart(t *testing.T) {
	f := newFixture(t, 16)
	gate := &gatedDriver{Driver: f.adapter, release: make(chan struct{}), entered: make(chan struct{})}
	s := New("gated", gate, f.store, log.Discard())

	startErr := make(chan error, 1)
	go func() { startErr <- s.Start(Params{}) }()
	<-gate.entered
	assert.Equal(t, Starting, s.State())

	stopErr := make(chan error, 1)
	go func() { stopErr <- s.Stop() }()

	time.Sleep(20 * time.Millisecond)
	close(gate.release)

	require.NoError(t, <-startErr)
	require.NoError(t, <-stopErr)
	assert.Equal(t, Stopped, s.State())
}

func TestConcurrentStatus(t *testing.T) {
	f := newFixture(t, 8)
	require.NoError(t, f.session.Start(Params{}))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				st := f.session.Status()
				assert.LessOrEqual(t, st.StoreLen, 8)
			}
		}()
	}
	for i := 0; i < 50; i++ {
		f.drv.Inject([]byte{byte(i)}, core.DirectionUnknown)
	}
	wg.Wait()

	require.Eventually(t, func() bool { return f.session.Status().FramesCaptured == 50 }, time.Second, 5*time.Millisecond)
	require.NoError(t, f.session.Stop())
	assert.Equal(t, uint64(42), f.session.Status().FramesDropped)
}

func TestStateNames(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, Stopping.Active())
	assert.False(t, Stopped.Active())
}

// gatedDriver holds Open until release is closed.
type gatedDriver struct {
	Driver
	release chan struct{}
	entered chan struct{}
}

func (g *gatedDriver) Open(filter string) (*driver.Handle, error) {
	close(g.entered)
	<-g.release
	return g.Driver.Open(filter)
}
