package webfeed

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/imu/acquisition"
	"github.com/mklimuk/imu/mpu6050"
	"github.com/mklimuk/imu/sim"
)

func startHub(t *testing.T) (*Hub, string, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := NewHub()
	go h.Run(ctx)
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http"), cancel
}

func dial(t *testing.T, h *Hub, url string, want int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return h.Clients() == want }, 2*time.Second, 5*time.Millisecond)
	return conn
}

func TestHub_Broadcast(t *testing.T) {
	h, url, _ := startHub(t)
	first := dial(t, h, url, 1)
	second := dial(t, h, url, 2)

	sample := acquisition.Sample{Timestamp: 0.5, Reading: mpu6050.Reading{AccelZ: 16384, GyroX: -131}}
	require.NoError(t, h.Publish(context.Background(), sample))

	for _, conn := range []*websocket.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var got acquisition.Sample
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, sample, got)
	}
}

func TestHub_ClientLeaves(t *testing.T) {
	h, url, _ := startHub(t)
	conn := dial(t, h, url, 1)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_Stop(t *testing.T) {
	h, url, cancel := startHub(t)
	conn := dial(t, h, url, 1)
	cancel()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
	assert.Eventually(t, func() bool {
		return h.Publish(context.Background(), 1) == ErrHubStopped
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHub_Feed(t *testing.T) {
	h, url, _ := startHub(t)
	conn := dial(t, h, url, 1)

	dev := sim.NewDevice()
	dev.SetSample(sim.Sample{0, 0, 16384, 0, 0, 0})
	s, err := mpu6050.Open(context.Background(), sim.NewBus(dev), 0, mpu6050.WithWakeDelay(0), mpu6050.WithResetDelay(0))
	require.NoError(t, err)
	w := acquisition.Start(context.Background(), s, acquisition.Config{Mode: acquisition.ModePolling, Rate: 100, Duration: 100 * time.Millisecond})

	done := make(chan error, 1)
	go func() { done <- h.Feed(context.Background(), w) }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got acquisition.Sample
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, int16(16384), got.AccelZ)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		require.FailNow(t, "feed did not finish")
	}
}

func TestHub_FeedReleasesSensorOnStop(t *testing.T) {
	h, _, cancel := startHub(t)

	dev := sim.NewDevice(sim.WithTransferDelay(20 * time.Millisecond))
	bus := sim.NewBus(dev)
	s, err := mpu6050.Open(context.Background(), bus, 0, mpu6050.WithWakeDelay(0), mpu6050.WithResetDelay(0))
	require.NoError(t, err)
	w := acquisition.Start(context.Background(), s, acquisition.Config{Mode: acquisition.ModePolling, Rate: 100})

	done := make(chan error, 1)
	go func() { done <- h.Feed(context.Background(), w) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrHubStopped)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "feed did not finish")
	}
	// the worker has exited and released the channel by the time Feed returns
	select {
	case <-w.Done():
	default:
		assert.Fail(t, "worker still running after Feed returned")
	}
	assert.Equal(t, 1, bus.Closed())
}
