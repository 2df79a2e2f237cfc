package imu

import (
	"context"
	"time"
)

// TransferOption is a bitmask controlling how a single bus transfer is framed.
type TransferOption uint32

const (
	// StartBit asserts a (repeated) start condition before the transfer.
	StartBit TransferOption = 0x01
	// StopBit releases the bus after the transfer.
	StopBit TransferOption = 0x02
	// BreakOnNack aborts a write as soon as the device does not acknowledge a byte.
	BreakOnNack TransferOption = 0x04
	// NackLastByte answers the last byte of a read with NACK.
	NackLastByte TransferOption = 0x08
	// FastTransferBytes batches the whole transfer into one bridge command.
	// Bindings may then report the transferred count in bits.
	FastTransferBytes TransferOption = 0x10
	// FastTransferBits is the bit-granular variant of FastTransferBytes.
	FastTransferBits TransferOption = 0x20
	// NoAddress suppresses the address byte.
	NoAddress TransferOption = 0x40
)

// Has reports whether all bits of flag are set.
func (o TransferOption) Has(flag TransferOption) bool {
	return o&flag == flag
}

// FastTransfer reports whether the transferred count can not be trusted as a byte count.
func (o TransferOption) FastTransfer() bool {
	return o&(FastTransferBytes|FastTransferBits) != 0
}

// I2C clock rates in Hz.
const (
	ClockStandardMode  uint32 = 100_000
	ClockFastMode      uint32 = 400_000
	ClockFastModePlus  uint32 = 1_000_000
	ClockHighSpeedMode uint32 = 3_400_000
)

// Bus enumerates and opens I2C channels exposed by a bridge.
type Bus interface {
	// Channels returns the number of channels that can be opened.
	Channels(ctx context.Context) (int, error)
	Open(ctx context.Context, index int) (Channel, error)
}

// Channel is an opened bridge channel. It is owned by exactly one driver and is not safe for
// concurrent use.
type Channel interface {
	Configure(ctx context.Context, clockRate uint32, latency time.Duration) error
	// Write sends buffer to the device at address. It returns the count reported by the bridge,
	// which is expressed in bits for fast transfers on some bridges.
	Write(ctx context.Context, address byte, buffer []byte, opts TransferOption) (int, error)
	// Read fills buffer from the device at address and returns the reported transferred count.
	Read(ctx context.Context, address byte, buffer []byte, opts TransferOption) (int, error)
	Close() error
}
