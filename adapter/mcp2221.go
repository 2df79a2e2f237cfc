package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karalabe/hid"

	"github.com/mklimuk/imu"
	"github.com/mklimuk/imu/snsctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

// MCP2221 HID commands
const (
	cmdStatusSetParameters = 0x10
	cmdReadData            = 0x40
	cmdWriteData           = 0x90
	cmdReadRequest         = 0x91
	cmdReadRepeatedStart   = 0x93
	cmdWriteNoStop         = 0x94
)

const (
	reportSize = 64
	// maximum payload of a write request or a read data response
	chunkSize     = 60
	systemClock   = 12_000_000
	maxClockRate  = imu.ClockFastMode
	readDataError = 127
	readAttempts  = 10
)

var ErrCommandFailed = errors.New("command failed")

var _ imu.Bus = &Bus{}
var _ imu.Channel = &MCP2221{}

// hidDevice is the part of *hid.Device used by the bridge.
type hidDevice interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)
	Close() error
}

type BusOpt func(*Bus)

// WithResponseWait sets a pause between a HID request and reading its response.
func WithResponseWait(wait time.Duration) BusOpt {
	return func(b *Bus) {
		b.responseWait = wait
	}
}

// Bus enumerates MCP2221 bridges attached over USB HID. Each bridge is one channel.
type Bus struct {
	responseWait time.Duration
}

func NewBus(opts ...BusOpt) *Bus {
	b := &Bus{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Channels(ctx context.Context) (int, error) {
	if !hid.Supported() {
		return 0, imu.Fault(imu.StatusOtherError, errors.New("HID is not supported on this platform"))
	}
	return len(hid.Enumerate(VendorID, ProductID)), nil
}

func (b *Bus) Open(ctx context.Context, index int) (imu.Channel, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	if index < 0 || index >= len(devs) {
		return nil, imu.Fault(imu.StatusDeviceNotFound, nil)
	}
	dev, err := devs[index].Open()
	if err != nil {
		return nil, imu.Fault(imu.StatusDeviceNotOpened, fmt.Errorf("error opening device: %w", err))
	}
	slog.Debug("MCP2221 opened", "path", devs[index].Path, "serial", devs[index].Serial)
	return newMCP2221(dev, b.responseWait), nil
}

// MCP2221 is an opened Microchip MCP2221 USB-I2C bridge.
type MCP2221 struct {
	mx           sync.Mutex
	dev          hidDevice
	request      []byte
	response     []byte
	responseWait time.Duration
	// a write without stop leaves the bus claimed for a repeated start read
	restart bool
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"speed_divider"`
	I2CTimeout             int    `yaml:"timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent"`
	ReadPending            int    `yaml:"read_pending"`
}

func newMCP2221(dev hidDevice, responseWait time.Duration) *MCP2221 {
	return &MCP2221{
		dev:          dev,
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: responseWait,
	}
}

// Configure sets the I2C clock divider. The bridge tops out at 400kHz, faster rates are clamped.
func (d *MCP2221) Configure(ctx context.Context, clockRate uint32, latency time.Duration) error {
	if clockRate > maxClockRate {
		slog.Debug("clock rate clamped", "requested", clockRate, "used", maxClockRate)
		clockRate = maxClockRate
	}
	if clockRate == 0 {
		return imu.Fault(imu.StatusInvalidParameter, errors.New("clock rate must be positive"))
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatusSetParameters
	d.request[3] = 0x20
	d.request[4] = byte(systemClock/clockRate - 3)
	err := d.send(ctx)
	if err != nil {
		return fmt.Errorf("set speed request failed: %w", err)
	}
	// 0x21: speed not set, the engine is busy with a transfer
	if d.response[3] == 0x21 {
		return imu.Fault(imu.StatusIOError, imu.ErrBusBusy)
	}
	return nil
}

func (d *MCP2221) Write(ctx context.Context, address byte, buffer []byte, opts imu.TransferOption) (int, error) {
	if len(buffer) > chunkSize {
		return 0, imu.Fault(imu.StatusInvalidParameter, fmt.Errorf("write of %d bytes exceeds %d", len(buffer), chunkSize))
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdWriteData
	if !opts.Has(imu.StopBit) {
		d.request[0] = cmdWriteNoStop
	}
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	err := d.send(ctx)
	if err != nil {
		return 0, fmt.Errorf("write to %x failed: %w", address, err)
	}
	// write could not be performed
	if d.response[1] == 0x01 {
		slog.Debug("adapter busy")
		return 0, imu.Fault(imu.StatusIOError, imu.ErrBusBusy)
	}
	d.restart = !opts.Has(imu.StopBit)
	return len(buffer), nil
}

func (d *MCP2221) Read(ctx context.Context, address byte, buffer []byte, opts imu.TransferOption) (int, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdReadRequest
	if d.restart {
		d.request[0] = cmdReadRepeatedStart
	}
	d.restart = false
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 + 1
	err := d.send(ctx)
	if err != nil {
		return 0, fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		return 0, imu.Fault(imu.StatusIOError, imu.ErrBusBusy)
	}
	read := 0
	// only consecutive empty reports count against the retry limit
	for empty := 0; read < len(buffer); {
		if empty >= readAttempts {
			return read, &imu.TransferError{Expected: len(buffer), Actual: read}
		}
		d.resetBuffers()
		d.request[0] = cmdReadData
		err = d.send(ctx)
		if err != nil {
			return read, fmt.Errorf("error getting read data from adapter: %w", err)
		}
		if d.response[1] == 0x41 {
			return read, imu.Fault(imu.StatusIOError, errors.New("error reading the I2C slave data from the I2C engine"))
		}
		n := int(d.response[3])
		if n == readDataError {
			return read, imu.Fault(imu.StatusIOError, fmt.Errorf("no acknowledge from %#x", address))
		}
		if n > chunkSize {
			return read, imu.Fault(imu.StatusIOError, fmt.Errorf("invalid data size byte %d", n))
		}
		if n == 0 {
			empty++
			continue
		}
		empty = 0
		read += copy(buffer[read:], d.response[4:4+n])
	}
	return read, nil
}

func (d *MCP2221) Close() error {
	d.mx.Lock()
	defer d.mx.Unlock()
	err := d.dev.Close()
	if err != nil {
		return imu.Fault(imu.StatusIOError, err)
	}
	return nil
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatusSetParameters
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return bufferToStatus(d.response), nil
}

// ReleaseBus cancels the current transfer and frees the I2C engine.
func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdStatusSetParameters
	d.request[2] = 0x10
	err := d.send(ctx)
	if err != nil {
		return nil, fmt.Errorf("release request failed: %w", err)
	}
	d.restart = false
	return bufferToStatus(d.response), nil
}

func bufferToStatus(buffer []byte) *MCP2221Status {
	/*
		9-10: requested I2C transfer length
		11-12: already transferred number of bytes
		13: internal I2C data buffer counter
		14: current I2C communication speed divider value
		15: current I2C timeout value
		16-17: I2C address being used
		25: read pending
	*/
	return &MCP2221Status{
		I2CDataBufferCounter:   int(buffer[13]),
		I2CSpeedDivider:        int(buffer[14]),
		I2CTimeout:             int(buffer[15]),
		CurrentAddress:         hex.EncodeToString(buffer[16:18]),
		LastWriteRequestedSize: binary.LittleEndian.Uint16(buffer[9:11]),
		LastWriteSentSize:      binary.LittleEndian.Uint16(buffer[11:13]),
		ReadPending:            int(buffer[25]),
	}
}

func (d *MCP2221) send(ctx context.Context) error {
	snsctx.Dump(ctx, "sending message to adapter", d.request, "command", d.request[0])
	n, err := d.dev.Write(d.request)
	if err != nil {
		return imu.Fault(imu.StatusIOError, fmt.Errorf("could not write request: %w", err))
	}
	if n != reportSize {
		return imu.Fault(imu.StatusIOError, fmt.Errorf("short write: %d", n))
	}
	if d.responseWait > 0 {
		time.Sleep(d.responseWait)
	}
	n, err = d.dev.Read(d.response)
	if err != nil {
		return imu.Fault(imu.StatusIOError, fmt.Errorf("could not read response: %w", err))
	}
	if n != reportSize {
		return imu.Fault(imu.StatusIOError, fmt.Errorf("short read: %d", n))
	}
	snsctx.Dump(ctx, "read message from adapter", d.response, "command", d.request[0])
	if d.response[0] != d.request[0] {
		return imu.Fault(imu.StatusIOError, fmt.Errorf("%w: response to %#x for command %#x", ErrCommandFailed, d.response[0], d.request[0]))
	}
	return nil
}

func (d *MCP2221) resetBuffers() {
	clear(d.request)
	clear(d.response)
}
