package mpu6050

import (
	"context"
	"encoding/binary"
	"fmt"
)

// FIFO rate bounds in Hz.
const (
	MinFIFORate = 4
	MaxFIFORate = 1000
)

type fifoState struct {
	enabled bool
	divider byte
}

// Divider returns the sample-rate divider that brings the 1kHz internal rate down to rate.
func Divider(rate int) byte {
	if rate <= 0 {
		return 0
	}
	d := internalRateHz/rate - 1
	if d < 0 {
		return 0
	}
	if d > 0xFF {
		return 0xFF
	}
	return byte(d)
}

func (s *Sensor) FIFOEnabled() bool {
	return s.fifo.enabled
}

// FIFODivider returns the divider configured by the last EnableFIFO.
func (s *Sensor) FIFODivider() byte {
	return s.fifo.divider
}

// FIFOSampleRate returns the effective FIFO sample rate in Hz, or 0 when the FIFO is disabled.
func (s *Sensor) FIFOSampleRate() float64 {
	if !s.fifo.enabled {
		return 0
	}
	return float64(internalRateHz) / float64(1+int(s.fifo.divider))
}

// EnableFIFO configures on-device buffering of accelerometer and gyroscope samples at rate Hz.
// An already enabled FIFO is disabled first.
func (s *Sensor) EnableFIFO(ctx context.Context, rate int) error {
	if rate < MinFIFORate || rate > MaxFIFORate {
		return invalidParameter("FIFO sample rate must be between %d-%d Hz, got %d", MinFIFORate, MaxFIFORate, rate)
	}
	if s.fifo.enabled {
		err := s.DisableFIFO(ctx)
		if err != nil {
			return err
		}
	}
	err := s.writeRegister(ctx, RegConfig, ConfigDLPF1kHz)
	if err != nil {
		return fmt.Errorf("could not set low-pass filter: %w", err)
	}
	div := Divider(rate)
	err = s.writeRegister(ctx, RegSampleRateDivider, div)
	if err != nil {
		return fmt.Errorf("could not set sample rate divider: %w", err)
	}
	err = s.ResetFIFO(ctx)
	if err != nil {
		return err
	}
	err = s.writeRegister(ctx, RegFIFOEnable, FIFOEnableAccelGyro)
	if err != nil {
		return fmt.Errorf("could not route sensors to FIFO: %w", err)
	}
	err = s.writeRegister(ctx, RegUserControl, UserControlFIFOEnable)
	if err != nil {
		return fmt.Errorf("could not enable FIFO: %w", err)
	}
	s.fifo = fifoState{enabled: true, divider: div}
	s.log.Debug("FIFO enabled", "rate", rate, "divider", div)
	return nil
}

// DisableFIFO stops buffering and restores divider and filter defaults. It is idempotent.
func (s *Sensor) DisableFIFO(ctx context.Context) error {
	steps := []struct {
		reg  byte
		name string
	}{
		{RegUserControl, "user control"},
		{RegFIFOEnable, "FIFO routing"},
		{RegSampleRateDivider, "sample rate divider"},
		{RegConfig, "low-pass filter"},
	}
	for _, step := range steps {
		err := s.writeRegister(ctx, step.reg, 0x00)
		if err != nil {
			return fmt.Errorf("could not clear %s: %w", step.name, err)
		}
	}
	s.fifo = fifoState{}
	s.log.Debug("FIFO disabled")
	return nil
}

// FIFOCount returns the number of bytes currently buffered. It is not necessarily a multiple of
// RecordSize.
func (s *Sensor) FIFOCount(ctx context.Context) (int, error) {
	buf, err := s.readRegisters(ctx, RegFIFOCountH, 2)
	if err != nil {
		return 0, fmt.Errorf("could not read FIFO count: %w", err)
	}
	return int(binary.BigEndian.Uint16(buf)), nil
}

// ResetFIFO clears the FIFO contents, keeping the enable bit as it is.
func (s *Sensor) ResetFIFO(ctx context.Context) error {
	ctrl := byte(UserControlFIFOReset)
	if s.fifo.enabled {
		ctrl |= UserControlFIFOEnable
	}
	err := s.writeRegister(ctx, RegUserControl, ctrl)
	if err != nil {
		return fmt.Errorf("could not reset FIFO: %w", err)
	}
	return sleep(ctx, s.config.ResetDelay)
}

// ReadFIFOBatch drains every complete record from the FIFO. The result is empty when less than one
// record is buffered. After an overflow the FIFO is reset and a *FIFOOverflowError is returned;
// the FIFO stays enabled.
func (s *Sensor) ReadFIFOBatch(ctx context.Context) ([]Reading, error) {
	if !s.fifo.enabled {
		return nil, ErrFIFONotEnabled
	}
	status, err := s.readRegister(ctx, RegIntStatus)
	if err != nil {
		return nil, fmt.Errorf("could not read interrupt status: %w", err)
	}
	if status&IntStatusFIFOOverflow != 0 {
		count, err := s.FIFOCount(ctx)
		if err != nil {
			return nil, err
		}
		lost := count / RecordSize
		err = s.ResetFIFO(ctx)
		if err != nil {
			return nil, err
		}
		s.log.Warn("FIFO overflow", "samples_lost", lost)
		return nil, &FIFOOverflowError{SamplesLost: lost}
	}
	count, err := s.FIFOCount(ctx)
	if err != nil {
		return nil, err
	}
	n := count / RecordSize
	if n == 0 {
		return []Reading{}, nil
	}
	buf, err := s.readRegisters(ctx, RegFIFOReadWrite, n*RecordSize)
	if err != nil {
		return nil, fmt.Errorf("could not read FIFO data: %w", err)
	}
	return Decode(buf)
}
