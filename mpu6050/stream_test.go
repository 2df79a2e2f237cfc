package mpu6050

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/imu"
	"github.com/mklimuk/imu/sim"
)

func burstReads(dev *sim.Device) int {
	n := 0
	for _, tx := range dev.Transactions() {
		if !tx.Write && tx.Register == RegAccelXOutH {
			n++
		}
	}
	return n
}

func TestStream_BreakOnFirst(t *testing.T) {
	dev := sim.NewDevice()
	s, _ := openSim(t, dev)
	dev.ResetLog()

	count, err := s.Stream(context.Background(), 100, func(Reading) Control { return Break })
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
	assert.Equal(t, 1, burstReads(dev))
}

func TestStream_RejectsRate(t *testing.T) {
	dev := sim.NewDevice()
	s, _ := openSim(t, dev)
	for _, rate := range []int{0, -5, 1001} {
		dev.ResetLog()
		count, err := s.Stream(context.Background(), rate, func(Reading) Control { return Continue })
		assert.ErrorIs(t, err, ErrInvalidParameter, "rate %d", rate)
		assert.Zero(t, count)
		assert.Empty(t, dev.Transactions())
	}
}

func TestStream_BusFaultStopsStream(t *testing.T) {
	dev := sim.NewDevice()
	s, _ := openSim(t, dev)

	count, err := s.Stream(context.Background(), 1000, func(Reading) Control {
		if burstReads(dev) == 3 {
			dev.FailNext(imu.StatusIOError)
		}
		return Continue
	})
	var fault *imu.BusFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, imu.StatusIOError, fault.Status)
	assert.Equal(t, uint64(3), count)
}

func TestStream_ContextCancelled(t *testing.T) {
	s, _ := openSim(t, sim.NewDevice())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	count, err := s.Stream(ctx, 10, func(Reading) Control { return Continue })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, count, uint64(1))
}

func TestStreamFor_Paced(t *testing.T) {
	s, _ := openSim(t, sim.NewDevice())

	start := time.Now()
	count, err := s.StreamFor(context.Background(), 100, 200*time.Millisecond, func(Reading) Control { return Continue })
	elapsed := time.Since(start)
	require.NoError(t, err)
	// one reading at t=0 then one every 10ms until the deadline
	assert.InDelta(t, 100*elapsed.Seconds(), float64(count), 1)
	assert.GreaterOrEqual(t, count, uint64(20))
}

func TestStreamFor_CallbackBreak(t *testing.T) {
	s, _ := openSim(t, sim.NewDevice())

	var seen int
	count, err := s.StreamFor(context.Background(), 1000, time.Second, func(Reading) Control {
		seen++
		if seen == 4 {
			return Break
		}
		return Continue
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), count)
}

func TestStream_NoBurstAfterSlowTick(t *testing.T) {
	s, _ := openSim(t, sim.NewDevice())

	var stamps []time.Time
	_, err := s.Stream(context.Background(), 100, func(Reading) Control {
		stamps = append(stamps, time.Now())
		if len(stamps) == 3 {
			time.Sleep(60 * time.Millisecond)
		}
		if len(stamps) == 8 {
			return Break
		}
		return Continue
	})
	require.NoError(t, err)
	require.Len(t, stamps, 8)
	// readings after the slow one keep their spacing instead of catching up
	for i := 4; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), 5*time.Millisecond, "gap before reading %d", i)
	}
}

func TestCollectSamples(t *testing.T) {
	dev := sim.NewDevice()
	dev.SetSample(sim.Sample{1, 2, 3, 4, 5, 6})
	s, _ := openSim(t, dev)

	samples, err := s.CollectSamples(context.Background(), 1000, 5)
	require.NoError(t, err)
	require.Len(t, samples, 5)
	for _, r := range samples {
		assert.Equal(t, Reading{AccelX: 1, AccelY: 2, AccelZ: 3, GyroX: 4, GyroY: 5, GyroZ: 6}, r)
	}

	_, err = s.CollectSamples(context.Background(), 1000, 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestStreamFIFO_RejectsInterval(t *testing.T) {
	s, _ := openSim(t, sim.NewDevice())
	for _, interval := range []time.Duration{0, 5 * time.Millisecond, 2 * time.Second} {
		_, err := s.StreamFIFO(context.Background(), interval, func([]Reading) Control { return Continue })
		assert.ErrorIs(t, err, ErrInvalidParameter, "interval %v", interval)
	}
}

func TestStreamFIFO_NotEnabled(t *testing.T) {
	s, _ := openSim(t, sim.NewDevice())
	called := false
	count, err := s.StreamFIFO(context.Background(), 10*time.Millisecond, func([]Reading) Control {
		called = true
		return Continue
	})
	assert.ErrorIs(t, err, ErrFIFONotEnabled)
	assert.Zero(t, count)
	assert.False(t, called)
}

func TestStreamFIFO_Batches(t *testing.T) {
	s, _ := openSim(t, sim.NewDevice(sim.WithFillPerPoll(5)))
	require.NoError(t, s.EnableFIFO(context.Background(), 500))

	var sizes []int
	count, err := s.StreamFIFO(context.Background(), 10*time.Millisecond, func(batch []Reading) Control {
		sizes = append(sizes, len(batch))
		if len(sizes) == 3 {
			return Break
		}
		return Continue
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(15), count)
	assert.Equal(t, []int{5, 5, 5}, sizes)
}

func TestStreamFIFO_BreakOnEmptyBatch(t *testing.T) {
	s, _ := openSim(t, sim.NewDevice())
	require.NoError(t, s.EnableFIFO(context.Background(), 4))

	var sizes []int
	count, err := s.StreamFIFO(context.Background(), 10*time.Millisecond, func(batch []Reading) Control {
		sizes = append(sizes, len(batch))
		return Break
	})
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, []int{0}, sizes)
}

func TestStreamFIFO_Overflow(t *testing.T) {
	dev := sim.NewDevice()
	s, _ := openSim(t, dev)
	require.NoError(t, s.EnableFIFO(context.Background(), 4))
	dev.InjectOverflow(sim.FIFOCapacity)

	_, err := s.StreamFIFO(context.Background(), 10*time.Millisecond, func([]Reading) Control { return Continue })
	var overflow *FIFOOverflowError
	require.ErrorAs(t, err, &overflow)
	assert.Equal(t, sim.FIFOCapacity/RecordSize, overflow.SamplesLost)
}

func TestCollectSamplesFIFO(t *testing.T) {
	dev := sim.NewDevice(
		sim.WithFillPerPoll(80),
		sim.WithGenerator(func(i int) sim.Sample { return sim.Sample{int16(i), 0, 0, 0, 0, 0} }),
	)
	s, _ := openSim(t, dev)

	samples, err := s.CollectSamplesFIFO(context.Background(), 1000, 2048)
	require.NoError(t, err)
	require.Len(t, samples, 2048)
	for i, r := range samples {
		if !assert.Equal(t, int16(i), r.AccelX, "sample %d", i) {
			break
		}
	}
	assert.True(t, s.FIFOEnabled())
	assert.Equal(t, byte(0), s.FIFODivider())
}

func TestCollectSamplesFIFO_InvalidArguments(t *testing.T) {
	dev := sim.NewDevice()
	s, _ := openSim(t, dev)
	dev.ResetLog()

	_, err := s.CollectSamplesFIFO(context.Background(), 1000, 0)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	_, err = s.CollectSamplesFIFO(context.Background(), 2000, 10)
	assert.ErrorIs(t, err, ErrInvalidParameter)
	assert.Empty(t, dev.Transactions())
}

func TestControl_String(t *testing.T) {
	assert.Equal(t, "continue", Continue.String())
	assert.Equal(t, "break", Break.String())
}
