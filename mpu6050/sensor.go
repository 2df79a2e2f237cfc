package mpu6050

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/imu"
)

type Opts struct {
	ClockRate        uint32
	Latency          time.Duration
	WakeDelay        time.Duration
	ResetDelay       time.Duration
	FIFOPollInterval time.Duration
	// ExactBursts drops fast-transfer framing from burst reads so short transfers are detected.
	ExactBursts bool
	Logger      *slog.Logger
}

type Opt func(*Opts)

func WithClockRate(hz uint32) Opt {
	return func(o *Opts) {
		o.ClockRate = hz
	}
}

func WithLatency(latency time.Duration) Opt {
	return func(o *Opts) {
		o.Latency = latency
	}
}

// WithWakeDelay sets the settle time after clearing the sleep bit.
func WithWakeDelay(delay time.Duration) Opt {
	return func(o *Opts) {
		o.WakeDelay = delay
	}
}

// WithResetDelay sets the settle time after pulsing the FIFO reset bit.
func WithResetDelay(delay time.Duration) Opt {
	return func(o *Opts) {
		o.ResetDelay = delay
	}
}

// WithFIFOPollInterval sets the tick interval used by CollectSamplesFIFO.
func WithFIFOPollInterval(interval time.Duration) Opt {
	return func(o *Opts) {
		o.FIFOPollInterval = interval
	}
}

// WithExactBursts makes burst reads use plain byte-counted framing. Bridges then report the
// transferred byte count and a short burst fails with a TransferError instead of being trusted.
func WithExactBursts(enabled bool) Opt {
	return func(o *Opts) {
		o.ExactBursts = enabled
	}
}

func WithLogger(logger *slog.Logger) Opt {
	return func(o *Opts) {
		o.Logger = logger
	}
}

// Sensor represents an InvenSense MPU-6050 accelerometer/gyroscope reached through a bridge channel.
// Typical usage:
//
//	s, err := mpu6050.Open(ctx, bus, 0)
//	if err != nil { ... }
//	defer s.Close(ctx)
//	r, err := s.ReadAll(ctx)
//
// A Sensor exclusively owns its channel and must not be used from several goroutines at once.
type Sensor struct {
	registers
	config Opts
	log    *slog.Logger
	fifo   fifoState

	closeOnce sync.Once
}

// Open enumerates the channels of bus, opens the one at index and brings the sensor up: wake,
// identity check and default ranges. The channel is closed again if any step fails.
func Open(ctx context.Context, bus imu.Bus, index int, opts ...Opt) (*Sensor, error) {
	config := Opts{
		ClockRate:        imu.ClockFastModePlus,
		Latency:          time.Millisecond,
		WakeDelay:        100 * time.Millisecond,
		ResetDelay:       10 * time.Millisecond,
		FIFOPollInterval: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(&config)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	count, err := bus.Channels(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not enumerate channels: %w", imu.AsBusFault(err))
	}
	if count == 0 {
		return nil, imu.ErrNoChannelsFound
	}
	if index < 0 || index >= count {
		return nil, &imu.InvalidChannelError{Index: index}
	}
	ch, err := bus.Open(ctx, index)
	if err != nil {
		return nil, fmt.Errorf("could not open channel %d: %w", index, imu.AsBusFault(err))
	}
	err = ch.Configure(ctx, config.ClockRate, config.Latency)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("could not configure channel %d: %w", index, imu.AsBusFault(err))
	}
	s := &Sensor{
		registers: registers{ch: ch, addr: Address, exact: config.ExactBursts},
		config:    config,
		log:       logger,
	}
	err = s.init(ctx)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	logger.Debug("mpu6050 ready", "channel", index, "clock", config.ClockRate)
	return s, nil
}

func (s *Sensor) init(ctx context.Context) error {
	err := s.writeRegister(ctx, RegPowerMgmt1, 0x00)
	if err != nil {
		return fmt.Errorf("could not wake device: %w", err)
	}
	err = sleep(ctx, s.config.WakeDelay)
	if err != nil {
		return err
	}
	id, err := s.readRegister(ctx, RegWhoAmI)
	if err != nil {
		return fmt.Errorf("could not read device id: %w", err)
	}
	if id != ExpectedWhoAmI {
		return &InvalidDeviceIDError{Got: id}
	}
	err = s.writeRegister(ctx, RegAccelConfig, AccelRange2G)
	if err != nil {
		return fmt.Errorf("could not set accelerometer range: %w", err)
	}
	err = s.writeRegister(ctx, RegGyroConfig, GyroRange250DPS)
	if err != nil {
		return fmt.Errorf("could not set gyroscope range: %w", err)
	}
	return nil
}

// Close disables the FIFO if needed and releases the channel. Failures are discarded so that the
// channel is always released; repeated calls are no-ops.
func (s *Sensor) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		if s.fifo.enabled {
			if err := s.DisableFIFO(ctx); err != nil {
				s.log.Debug("could not disable FIFO on close", "error", err)
			}
		}
		if err := s.ch.Close(); err != nil {
			s.log.Debug("could not close channel", "error", err)
		}
	})
}

// ReadAll reads accelerometer, temperature and gyroscope in one 14-byte burst and drops the
// temperature.
func (s *Sensor) ReadAll(ctx context.Context) (Reading, error) {
	buf, err := s.readRegisters(ctx, RegAccelXOutH, burstLengthAll)
	if err != nil {
		return Reading{}, err
	}
	return decodeBurst(buf), nil
}

// ReadAccel reads the raw accelerometer triad. ReadAll is cheaper when both triads are needed.
func (s *Sensor) ReadAccel(ctx context.Context) (x, y, z int16, err error) {
	return s.readTriad(ctx, RegAccelXOutH)
}

// ReadGyro reads the raw gyroscope triad.
func (s *Sensor) ReadGyro(ctx context.Context) (x, y, z int16, err error) {
	return s.readTriad(ctx, RegGyroXOutH)
}

func (s *Sensor) readTriad(ctx context.Context, reg byte) (int16, int16, int16, error) {
	buf, err := s.readRegisters(ctx, reg, burstLengthTriad)
	if err != nil {
		return 0, 0, 0, err
	}
	return be16(buf[0:2]), be16(buf[2:4]), be16(buf[4:6]), nil
}

// RegisterSnapshot is a read-back of the registers involved in FIFO acquisition.
type RegisterSnapshot struct {
	PowerMgmt1        byte `yaml:"pwr_mgmt_1"`
	PowerMgmt2        byte `yaml:"pwr_mgmt_2"`
	Config            byte `yaml:"config"`
	SampleRateDivider byte `yaml:"smplrt_div"`
	FIFOEnable        byte `yaml:"fifo_en"`
	UserControl       byte `yaml:"user_ctrl"`
}

func (c RegisterSnapshot) Sleeping() bool    { return c.PowerMgmt1&PowerMgmt1Sleep != 0 }
func (c RegisterSnapshot) ClockSource() byte { return c.PowerMgmt1 & 0x07 }
func (c RegisterSnapshot) DLPF() byte        { return c.Config & 0x07 }
func (c RegisterSnapshot) SampleRate() int   { return internalRateHz / (1 + int(c.SampleRateDivider)) }

// AccelGyroRouted reports whether accelerometer and all gyro axes are routed to the FIFO.
func (c RegisterSnapshot) AccelGyroRouted() bool { return c.FIFOEnable == FIFOEnableAccelGyro }

func (c RegisterSnapshot) FIFOEnabled() bool { return c.UserControl&UserControlFIFOEnable != 0 }

// ReadRegisterSnapshot reads back the acquisition configuration for diagnostics.
func (s *Sensor) ReadRegisterSnapshot(ctx context.Context) (RegisterSnapshot, error) {
	var res RegisterSnapshot
	targets := []struct {
		reg byte
		dst *byte
	}{
		{RegPowerMgmt1, &res.PowerMgmt1},
		{RegPowerMgmt2, &res.PowerMgmt2},
		{RegConfig, &res.Config},
		{RegSampleRateDivider, &res.SampleRateDivider},
		{RegFIFOEnable, &res.FIFOEnable},
		{RegUserControl, &res.UserControl},
	}
	for _, t := range targets {
		v, err := s.readRegister(ctx, t.reg)
		if err != nil {
			return res, fmt.Errorf("could not read register %#02x: %w", t.reg, err)
		}
		*t.dst = v
	}
	return res, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
