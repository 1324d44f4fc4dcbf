package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/s2onet/internal/config"
	"firestige.xyz/s2onet/internal/controller"
	"firestige.xyz/s2onet/internal/core"
	"firestige.xyz/s2onet/internal/log"
	"firestige.xyz/s2onet/internal/session"
	"firestige.xyz/s2onet/internal/throughput"
)

// mockCapturer is a mock implementation of Capturer.
type mockCapturer struct {
	mock.Mock
}

func (m *mockCapturer) Start(cfg config.CaptureConfig) error {
	args := m.Called(cfg)
	return args.Error(0)
}

func (m *mockCapturer) Stop() error {
	args := m.Called()
	return args.Error(0)
}

func (m *mockCapturer) Status() session.Snapshot {
	args := m.Called()
	return args.Get(0).(session.Snapshot)
}

func (m *mockCapturer) SnapshotDecoded() []controller.DecodedFrame {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]controller.DecodedFrame)
}

func (m *mockCapturer) Probe(cfg config.CaptureConfig) error {
	args := m.Called(cfg)
	return args.Error(0)
}

func decoded(seq uint64) controller.DecodedFrame {
	return controller.DecodedFrame{
		Frame: core.Frame{Seq: seq, Data: make([]byte, 42), Direction: core.DirectionInbound},
		Record: core.ProtocolRecord{
			Kind:    core.KindUDP,
			Proto:   17,
			SrcIP:   core.IPv4Addr{10, 0, 0, 1},
			DstIP:   core.IPv4Addr{10, 0, 0, 2},
			SrcPort: 53,
			DstPort: 5353,
		},
	}
}

func TestRunCapturePrintsRecords(t *testing.T) {
	m := new(mockCapturer)
	capCfg := config.DefaultCaptureConfig()
	m.On("Start", capCfg).Return(nil)
	m.On("Stop").Return(nil)
	m.On("Status").Return(session.Snapshot{ID: "default", State: session.Stopped, FramesCaptured: 2, StoreLen: 2})
	m.On("SnapshotDecoded").Return([]controller.DecodedFrame{decoded(1), decoded(2)})

	var out bytes.Buffer
	err := runCapture(context.Background(), m, capCfg, captureOptions{duration: time.Millisecond}, &out)

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "state=stopped captured=2")
	assert.Contains(t, lines[1], "#1")
	assert.Contains(t, lines[2], "udp 10.0.0.1:53 -> 10.0.0.2:5353")
	m.AssertExpectations(t)
}

func TestRunCaptureFilterOverride(t *testing.T) {
	m := new(mockCapturer)
	capCfg := config.DefaultCaptureConfig()
	m.On("Start", mock.MatchedBy(func(c config.CaptureConfig) bool {
		return c.Filter == "tcp"
	})).Return(nil)
	m.On("Stop").Return(nil)
	m.On("Status").Return(session.Snapshot{State: session.Stopped})

	var out bytes.Buffer
	err := runCapture(context.Background(), m, capCfg,
		captureOptions{duration: time.Millisecond, filter: "tcp", quiet: true}, &out)

	require.NoError(t, err)
	m.AssertNotCalled(t, "SnapshotDecoded")
	m.AssertExpectations(t)
}

func TestRunCaptureLimit(t *testing.T) {
	m := new(mockCapturer)
	m.On("Start", mock.Anything).Return(nil)
	m.On("Stop").Return(nil)
	m.On("Status").Return(session.Snapshot{State: session.Stopped})
	m.On("SnapshotDecoded").Return([]controller.DecodedFrame{decoded(1), decoded(2), decoded(3)})

	var out bytes.Buffer
	err := runCapture(context.Background(), m, config.DefaultCaptureConfig(),
		captureOptions{duration: time.Millisecond, limit: 1}, &out)

	require.NoError(t, err)
	assert.NotContains(t, out.String(), "#1 ")
	assert.Contains(t, out.String(), "#3")
}

func TestRunCaptureStartError(t *testing.T) {
	m := new(mockCapturer)
	m.On("Start", mock.Anything).Return(core.ErrOpen)

	err := runCapture(context.Background(), m, config.DefaultCaptureConfig(),
		captureOptions{duration: time.Hour}, &bytes.Buffer{})

	assert.ErrorIs(t, err, core.ErrOpen)
	m.AssertNotCalled(t, "Stop")
}

func TestRunCaptureCancelled(t *testing.T) {
	m := new(mockCapturer)
	m.On("Start", mock.Anything).Return(nil)
	m.On("Stop").Return(nil)
	m.On("Status").Return(session.Snapshot{State: session.Stopped})
	m.On("SnapshotDecoded").Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- runCapture(ctx, m, config.DefaultCaptureConfig(), captureOptions{duration: time.Hour}, &bytes.Buffer{})
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("capture did not return after cancellation")
	}
}

func TestRunCaptureStopTimeout(t *testing.T) {
	m := new(mockCapturer)
	m.On("Start", mock.Anything).Return(nil)
	m.On("Stop").Return(core.ErrStopTimeout)
	m.On("Status").Return(session.Snapshot{State: session.Failed, LastError: core.ErrStopTimeout})
	m.On("SnapshotDecoded").Return([]controller.DecodedFrame{decoded(1)})

	var out bytes.Buffer
	err := runCapture(context.Background(), m, config.DefaultCaptureConfig(),
		captureOptions{duration: time.Millisecond}, &out)

	assert.ErrorIs(t, err, core.ErrStopTimeout)
	assert.Contains(t, out.String(), "stop:")
	assert.Contains(t, out.String(), "#1")
}

func TestRunCaptureWorkerFailure(t *testing.T) {
	m := new(mockCapturer)
	fault := errors.New("driver fault")
	m.On("Start", mock.Anything).Return(nil)
	m.On("Stop").Return(core.ErrNotRunning)
	m.On("Status").Return(session.Snapshot{State: session.Failed, LastError: fault})
	m.On("SnapshotDecoded").Return(nil)

	var out bytes.Buffer
	err := runCapture(context.Background(), m, config.DefaultCaptureConfig(),
		captureOptions{duration: time.Millisecond}, &out)

	assert.ErrorIs(t, err, fault)
	assert.NotContains(t, out.String(), "stop:")
}

func TestRunCaptureProbe(t *testing.T) {
	m := new(mockCapturer)
	m.On("Probe", mock.Anything).Return(nil)

	var out bytes.Buffer
	err := runCapture(context.Background(), m, config.DefaultCaptureConfig(), captureOptions{probe: true}, &out)

	require.NoError(t, err)
	assert.Contains(t, out.String(), "loaded and opened")
	m.AssertNotCalled(t, "Start", mock.Anything)
}

func TestRunCaptureProbeError(t *testing.T) {
	m := new(mockCapturer)
	m.On("Probe", mock.Anything).Return(core.ErrLoad)

	err := runCapture(context.Background(), m, config.DefaultCaptureConfig(), captureOptions{probe: true}, &bytes.Buffer{})

	assert.ErrorIs(t, err, core.ErrLoad)
}

type counterSource struct {
	mu sync.Mutex
	n  uint64
}

func (s *counterSource) read(context.Context) ([]throughput.Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n += 1024
	return []throughput.Counters{{Interface: "eth0", BytesRecv: s.n, BytesSent: s.n / 2}}, nil
}

func TestRunSpeedCount(t *testing.T) {
	src := &counterSource{}
	s := throughput.New(config.ThroughputConfig{Interval: 5 * time.Millisecond},
		throughput.WithSource(src.read), throughput.WithLogger(log.Discard()))

	var out bytes.Buffer
	err := runSpeed(context.Background(), s, 2, &out)

	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "eth0")
	assert.Contains(t, lines[0], "rx")
}

func TestRunConfigDump(t *testing.T) {
	c := config.Default()

	var out bytes.Buffer
	require.NoError(t, runConfigDump(&c, &out))

	s := out.String()
	assert.True(t, strings.HasPrefix(s, "s2onet:"))
	assert.Contains(t, s, "buffer_capacity: 4096")
	assert.Contains(t, s, "library: WinDivert.dll")
}

func TestExecuteReturnsCommandError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "s2onet.yml")
	require.NoError(t, os.WriteFile(path, []byte(`s2onet:
  metrics:
    enabled: true
    listen: "127.0.0.1:0"
  capture:
    library_override_path: "`+filepath.ToSlash(filepath.Join(dir, "missing.dll"))+`"
`), 0o600))

	saved := captureOpts
	rootCmd.SetArgs([]string{"capture", "--probe", "-c", path})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		captureOpts = saved
		configFile = ""
	})

	err := Execute()

	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrLoad)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Contains(t, err.Error(), "capture failed")
	assert.Nil(t, metricsServer)
}
