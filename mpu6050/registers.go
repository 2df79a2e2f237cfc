package mpu6050

import (
	"context"

	"github.com/mklimuk/imu"
)

// Address is the fixed 7-bit bus address of the sensor (AD0 low).
const Address = 0x68

// ExpectedWhoAmI is the identity register content of a genuine MPU-6050.
const ExpectedWhoAmI = 0x68

// Register map
const (
	RegSampleRateDivider = 0x19
	RegConfig            = 0x1A
	RegGyroConfig        = 0x1B
	RegAccelConfig       = 0x1C
	RegFIFOEnable        = 0x23
	RegIntStatus         = 0x3A
	RegAccelXOutH        = 0x3B
	RegTempOutH          = 0x41
	RegGyroXOutH         = 0x43
	RegUserControl       = 0x6A
	RegPowerMgmt1        = 0x6B
	RegPowerMgmt2        = 0x6C
	RegFIFOCountH        = 0x72
	RegFIFOCountL        = 0x73
	RegFIFOReadWrite     = 0x74
	RegWhoAmI            = 0x75
)

// Register bits
const (
	PowerMgmt1Sleep = 0x40

	IntStatusFIFOOverflow = 0x10

	UserControlFIFOEnable = 0x40
	UserControlFIFOReset  = 0x04

	// FIFO_EN routing: XG | YG | ZG | ACCEL, temperature excluded.
	FIFOEnableAccelGyro = 0x78

	// DLPF_CFG=1 keeps the gyro output rate at 1kHz.
	ConfigDLPF1kHz = 0x01

	// +/-2g and +/-250 deg/s
	AccelRange2G     = 0x00
	GyroRange250DPS  = 0x00
	internalRateHz   = 1000
	burstLengthAll   = 14
	burstLengthTriad = 6
)

// registers frames register transactions over an owned channel.
type registers struct {
	ch   imu.Channel
	addr byte
	// exact disables fast-transfer framing on bursts
	exact bool
}

func (r *registers) writeRegister(ctx context.Context, reg, value byte) error {
	_, err := r.ch.Write(ctx, r.addr, []byte{reg, value}, imu.StartBit|imu.StopBit|imu.FastTransferBytes)
	if err != nil {
		return imu.AsBusFault(err)
	}
	// fast transfer counts are reported in bits, only the status is meaningful
	return nil
}

func (r *registers) readRegister(ctx context.Context, reg byte) (byte, error) {
	// address phase keeps the bus for the repeated start
	_, err := r.ch.Write(ctx, r.addr, []byte{reg}, imu.StartBit|imu.BreakOnNack)
	if err != nil {
		return 0, imu.AsBusFault(err)
	}
	buf := []byte{0x00}
	n, err := r.ch.Read(ctx, r.addr, buf, imu.StartBit|imu.StopBit|imu.NackLastByte)
	if err != nil {
		return 0, imu.AsBusFault(err)
	}
	if n != 1 {
		return 0, &imu.TransferError{Expected: 1, Actual: n}
	}
	return buf[0], nil
}

// readRegisters performs a burst read of count bytes starting at reg using address auto-increment.
func (r *registers) readRegisters(ctx context.Context, reg byte, count int) ([]byte, error) {
	_, err := r.ch.Write(ctx, r.addr, []byte{reg}, imu.StartBit|imu.BreakOnNack|imu.FastTransferBytes)
	if err != nil {
		return nil, imu.AsBusFault(err)
	}
	opts := imu.StartBit | imu.StopBit | imu.NackLastByte
	if !r.exact {
		opts |= imu.FastTransferBytes
	}
	buf := make([]byte, count)
	n, err := r.ch.Read(ctx, r.addr, buf, opts)
	if err != nil {
		return nil, imu.AsBusFault(err)
	}
	if !opts.FastTransfer() && n != count {
		return nil, &imu.TransferError{Expected: count, Actual: n}
	}
	return buf, nil
}
