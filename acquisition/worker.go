// Package acquisition runs a sensor in the background. A Worker owns the driver exclusively, runs
// one of the streaming loops and hands timestamped samples to a single consumer.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mklimuk/imu/mpu6050"
)

type Mode string

const (
	ModePolling Mode = "polling"
	ModeFIFO    Mode = "fifo"
)

// FallbackRate is the polling rate used when the FIFO cannot be enabled.
const FallbackRate = 100

// Driver is the part of *mpu6050.Sensor the worker drives.
type Driver interface {
	Stream(ctx context.Context, rate int, fn func(mpu6050.Reading) mpu6050.Control) (uint64, error)
	StreamFIFO(ctx context.Context, interval time.Duration, fn func([]mpu6050.Reading) mpu6050.Control) (uint64, error)
	EnableFIFO(ctx context.Context, rate int) error
	DisableFIFO(ctx context.Context) error
	FIFOSampleRate() float64
	Close(ctx context.Context)
}

// Sample is a reading stamped with the seconds elapsed since acquisition started.
type Sample struct {
	Timestamp       float64 `json:"t" yaml:"t"`
	mpu6050.Reading `yaml:",inline"`
}

type Config struct {
	Mode Mode
	// Rate is the polling rate in Hz.
	Rate int
	// FIFORate is the on-device sample rate in Hz.
	FIFORate int
	// Interval is the FIFO drain interval.
	Interval time.Duration
	// Duration bounds the acquisition, zero runs until stopped.
	Duration time.Duration
}

func DefaultConfig() Config {
	return Config{
		Mode:     ModeFIFO,
		Rate:     FallbackRate,
		FIFORate: mpu6050.MaxFIFORate,
		Interval: 20 * time.Millisecond,
	}
}

type Stats struct {
	Samples   uint64 `yaml:"samples"`
	Lost      uint64 `yaml:"lost"`
	Overflows uint64 `yaml:"overflows"`
	Pending   int    `yaml:"pending"`
}

type Opt func(*Worker)

func WithLogger(logger *slog.Logger) Opt {
	return func(w *Worker) {
		w.log = logger
	}
}

type Worker struct {
	driver Driver
	config Config
	log    *slog.Logger
	queue  *queue

	stop      atomic.Bool
	samples   atomic.Uint64
	lost      atomic.Uint64
	overflows atomic.Uint64

	mx   sync.Mutex
	mode Mode
	err  error
	done chan struct{}
}

// Start hands driver over to a new worker goroutine. The driver is closed when the worker exits.
func Start(ctx context.Context, driver Driver, config Config, opts ...Opt) *Worker {
	w := &Worker{
		driver: driver,
		config: config,
		log:    slog.Default(),
		queue:  newQueue(),
		mode:   config.Mode,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	go w.run(ctx)
	return w
}

// Samples delivers acquired samples in order. It is closed after the worker exits and every
// buffered sample was received.
func (w *Worker) Samples() <-chan Sample {
	return w.queue.out
}

// Stop asks the worker to exit at the next tick boundary.
func (w *Worker) Stop() {
	w.stop.Store(true)
}

// Detach disconnects the consumer. Buffered samples are dropped and the worker stops.
func (w *Worker) Detach() {
	w.queue.detach()
	w.stop.Store(true)
}

// Done is closed when the worker has exited and released the driver.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Wait blocks until the worker exits and returns the error that ended acquisition, if any.
func (w *Worker) Wait() error {
	<-w.done
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.err
}

// Mode returns the effective mode, which differs from the configured one after a fallback.
func (w *Worker) Mode() Mode {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.mode
}

func (w *Worker) Stats() Stats {
	return Stats{
		Samples:   w.samples.Load(),
		Lost:      w.lost.Load(),
		Overflows: w.overflows.Load(),
		Pending:   w.queue.pending(),
	}
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.queue.close()
	defer w.release(context.WithoutCancel(ctx))

	start := time.Now()
	var end time.Time
	if w.config.Duration > 0 {
		end = start.Add(w.config.Duration)
	}
	var err error
	if w.config.Mode == ModeFIFO {
		err = w.driver.EnableFIFO(ctx, w.config.FIFORate)
		if err == nil {
			w.log.Debug("acquisition started", "mode", ModeFIFO, "rate", w.driver.FIFOSampleRate())
			err = w.runFIFO(ctx, start, end)
		} else {
			w.log.Warn("could not enable FIFO, falling back to polling", "rate", FallbackRate, "error", err)
			w.mx.Lock()
			w.mode = ModePolling
			w.mx.Unlock()
			err = w.runPolling(ctx, FallbackRate, start, end)
		}
	} else {
		w.log.Debug("acquisition started", "mode", ModePolling, "rate", w.config.Rate)
		err = w.runPolling(ctx, w.config.Rate, start, end)
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	w.mx.Lock()
	w.err = err
	w.mx.Unlock()
	w.log.Debug("acquisition stopped", "samples", w.samples.Load(), "error", err)
}

// halted is polled once per tick.
func (w *Worker) halted(end time.Time) bool {
	if w.stop.Load() {
		return true
	}
	return !end.IsZero() && !time.Now().Before(end)
}

func (w *Worker) runPolling(ctx context.Context, rate int, start, end time.Time) error {
	_, err := w.driver.Stream(ctx, rate, func(r mpu6050.Reading) mpu6050.Control {
		if w.halted(end) {
			return mpu6050.Break
		}
		if !w.queue.push(Sample{Timestamp: time.Since(start).Seconds(), Reading: r}) {
			return mpu6050.Break
		}
		w.samples.Add(1)
		return mpu6050.Continue
	})
	return err
}

func (w *Worker) runFIFO(ctx context.Context, start, end time.Time) error {
	rate := w.driver.FIFOSampleRate()
	dt := 1 / rate
	for {
		_, err := w.driver.StreamFIFO(ctx, w.config.Interval, func(batch []mpu6050.Reading) mpu6050.Control {
			if w.halted(end) {
				return mpu6050.Break
			}
			if len(batch) == 0 {
				return mpu6050.Continue
			}
			if !w.queue.push(Interpolate(batch, time.Since(start).Seconds(), dt)...) {
				return mpu6050.Break
			}
			w.samples.Add(uint64(len(batch)))
			return mpu6050.Continue
		})
		var overflow *mpu6050.FIFOOverflowError
		if !errors.As(err, &overflow) {
			return err
		}
		// the FIFO was reset and is still enabled
		w.overflows.Add(1)
		w.lost.Add(uint64(overflow.SamplesLost))
		if w.halted(end) || w.queue.isDetached() {
			return nil
		}
	}
}

func (w *Worker) release(ctx context.Context) {
	if w.Mode() == ModeFIFO {
		if err := w.driver.DisableFIFO(ctx); err != nil {
			w.log.Debug("could not disable FIFO", "error", err)
		}
	}
	w.driver.Close(ctx)
}

// Interpolate stamps a FIFO batch read at end seconds, spacing samples dt apart backwards from the
// last one.
func Interpolate(batch []mpu6050.Reading, end, dt float64) []Sample {
	res := make([]Sample, len(batch))
	n := len(batch)
	for i, r := range batch {
		res[i] = Sample{Timestamp: end - float64(n-1-i)*dt, Reading: r}
	}
	return res
}

func (s Sample) String() string {
	return fmt.Sprintf("%10.4fs %s", s.Timestamp, s.Reading)
}
