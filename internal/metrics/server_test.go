package metrics

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerServesCollectors(t *testing.T) {
	StopTimeoutsTotal.Add(0)
	FramesCapturedTotal.WithLabelValues("test").Inc()

	s := NewServer("127.0.0.1:0", "")
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "s2onet_frames_captured_total")
	assert.Contains(t, string(body), "s2onet_stop_timeouts_total")
}

func TestServerStopWithoutStart(t *testing.T) {
	s := NewServer("127.0.0.1:0", "/m")
	assert.NoError(t, s.Stop(context.Background()))
}

func TestServerListenError(t *testing.T) {
	s := NewServer("256.0.0.1:bad", "")
	assert.Error(t, s.Start(context.Background()))
}
