package mpu6050

import (
	"context"
	"time"
)

// Control is returned by streaming callbacks to keep going or stop.
type Control int

const (
	Continue Control = iota
	Break
)

func (c Control) String() string {
	if c == Break {
		return "break"
	}
	return "continue"
}

// Stream rate bounds.
const (
	MinStreamRate    = 1
	MaxStreamRate    = 1000
	MinFIFOInterval  = 10 * time.Millisecond
	MaxFIFOInterval  = 1000 * time.Millisecond
	fifoCollectBatch = 64
)

// pacer spaces ticks by accumulating deadlines. A late tick is not made up for: the deadline is
// pulled forward to now so that a slow tick never turns into a burst of fast ones.
type pacer struct {
	interval time.Duration
	next     time.Time
}

func newPacer(interval time.Duration) *pacer {
	return &pacer{interval: interval, next: time.Now()}
}

func (p *pacer) wait(ctx context.Context) error {
	p.next = p.next.Add(p.interval)
	now := time.Now()
	if !p.next.After(now) {
		p.next = now
		return ctx.Err()
	}
	return sleep(ctx, p.next.Sub(now))
}

// Stream reads the sensor at rate readings per second and hands every reading to fn until fn
// returns Break or a read fails. It returns the number of readings taken.
func (s *Sensor) Stream(ctx context.Context, rate int, fn func(Reading) Control) (uint64, error) {
	if rate < MinStreamRate || rate > MaxStreamRate {
		return 0, invalidParameter("sample rate must be between %d-%d Hz, got %d", MinStreamRate, MaxStreamRate, rate)
	}
	p := newPacer(time.Duration(1_000_000/rate) * time.Microsecond)
	var count uint64
	for {
		r, err := s.ReadAll(ctx)
		if err != nil {
			return count, err
		}
		count++
		if fn(r) == Break {
			return count, nil
		}
		err = p.wait(ctx)
		if err != nil {
			return count, err
		}
	}
}

// StreamFor streams at rate until d has elapsed, checking the deadline after each callback.
func (s *Sensor) StreamFor(ctx context.Context, rate int, d time.Duration, fn func(Reading) Control) (uint64, error) {
	end := time.Now().Add(d)
	return s.Stream(ctx, rate, func(r Reading) Control {
		if fn(r) == Break {
			return Break
		}
		if !time.Now().Before(end) {
			return Break
		}
		return Continue
	})
}

// CollectSamples takes n readings at rate and returns them.
func (s *Sensor) CollectSamples(ctx context.Context, rate int, n int) ([]Reading, error) {
	if n < 1 {
		return nil, invalidParameter("number of samples must be positive, got %d", n)
	}
	samples := make([]Reading, 0, n)
	_, err := s.Stream(ctx, rate, func(r Reading) Control {
		samples = append(samples, r)
		if len(samples) >= n {
			return Break
		}
		return Continue
	})
	if err != nil {
		return nil, err
	}
	return samples, nil
}

// StreamFIFO drains the FIFO every interval and hands each batch to fn, including empty ones,
// until fn returns Break or a read fails. It returns the total number of readings delivered.
// A FIFO overflow aborts the stream with a *FIFOOverflowError.
func (s *Sensor) StreamFIFO(ctx context.Context, interval time.Duration, fn func([]Reading) Control) (uint64, error) {
	if interval < MinFIFOInterval || interval > MaxFIFOInterval {
		return 0, invalidParameter("FIFO interval must be between %v-%v, got %v", MinFIFOInterval, MaxFIFOInterval, interval)
	}
	p := newPacer(interval)
	var total uint64
	for {
		batch, err := s.ReadFIFOBatch(ctx)
		if err != nil {
			return total, err
		}
		total += uint64(len(batch))
		if fn(batch) == Break {
			return total, nil
		}
		err = p.wait(ctx)
		if err != nil {
			return total, err
		}
	}
}

// CollectSamplesFIFO enables the FIFO at rate if necessary, resets it and collects exactly n
// readings.
func (s *Sensor) CollectSamplesFIFO(ctx context.Context, rate int, n int) ([]Reading, error) {
	if n < 1 {
		return nil, invalidParameter("number of samples must be positive, got %d", n)
	}
	if rate < MinFIFORate || rate > MaxFIFORate {
		return nil, invalidParameter("FIFO sample rate must be between %d-%d Hz, got %d", MinFIFORate, MaxFIFORate, rate)
	}
	if !s.fifo.enabled || s.fifo.divider != Divider(rate) {
		err := s.EnableFIFO(ctx, rate)
		if err != nil {
			return nil, err
		}
	}
	err := s.ResetFIFO(ctx)
	if err != nil {
		return nil, err
	}
	samples := make([]Reading, 0, n+fifoCollectBatch)
	_, err = s.StreamFIFO(ctx, s.config.FIFOPollInterval, func(batch []Reading) Control {
		samples = append(samples, batch...)
		if len(samples) >= n {
			return Break
		}
		return Continue
	})
	if err != nil {
		return nil, err
	}
	// the last batch may overshoot
	return samples[:n], nil
}
