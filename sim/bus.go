package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mklimuk/imu"
	"github.com/mklimuk/imu/snsctx"
)

var _ imu.Bus = &Bus{}
var _ imu.Channel = &Channel{}

type BusOpt func(*Bus)

// WithChannels sets the number of channels reported by enumeration. Every channel reaches the same
// device.
func WithChannels(n int) BusOpt {
	return func(b *Bus) {
		b.channels = n
	}
}

// WithEnumerationStatus makes channel enumeration fail with status.
func WithEnumerationStatus(status imu.Status) BusOpt {
	return func(b *Bus) {
		b.enumStatus = status
	}
}

// WithConfigureStatus makes channel configuration fail with status.
func WithConfigureStatus(status imu.Status) BusOpt {
	return func(b *Bus) {
		b.configStatus = status
	}
}

// Bus is a simulated bridge with a single device attached.
type Bus struct {
	mx           sync.Mutex
	dev          *Device
	channels     int
	enumStatus   imu.Status
	configStatus imu.Status
	opened       int
	closed       int
}

func NewBus(dev *Device, opts ...BusOpt) *Bus {
	b := &Bus{dev: dev, channels: 1}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) Device() *Device {
	return b.dev
}

func (b *Bus) Channels(ctx context.Context) (int, error) {
	if b.enumStatus != imu.StatusOK {
		return 0, imu.Fault(b.enumStatus, nil)
	}
	return b.channels, nil
}

func (b *Bus) Open(ctx context.Context, index int) (imu.Channel, error) {
	if index < 0 || index >= b.channels {
		return nil, imu.Fault(imu.StatusDeviceNotFound, nil)
	}
	b.mx.Lock()
	defer b.mx.Unlock()
	b.opened++
	return &Channel{bus: b, index: index}, nil
}

// Opened returns how many channels have been opened.
func (b *Bus) Opened() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.opened
}

// Closed returns how many channels have been closed.
func (b *Bus) Closed() int {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.closed
}

// Channel is an opened simulated channel.
type Channel struct {
	bus       *Bus
	index     int
	clockRate uint32
	latency   time.Duration
	closed    bool
}

func (c *Channel) Configure(ctx context.Context, clockRate uint32, latency time.Duration) error {
	if c.bus.configStatus != imu.StatusOK {
		return imu.Fault(c.bus.configStatus, nil)
	}
	c.clockRate = clockRate
	c.latency = latency
	return nil
}

// ClockRate returns the configured clock rate.
func (c *Channel) ClockRate() uint32 {
	return c.clockRate
}

func (c *Channel) Write(ctx context.Context, address byte, buffer []byte, opts imu.TransferOption) (int, error) {
	if err := c.check(address); err != nil {
		return 0, err
	}
	dev := c.bus.dev
	c.pause()
	dev.mx.Lock()
	err := dev.write(buffer, opts)
	dev.mx.Unlock()
	if err != nil {
		return 0, err
	}
	snsctx.Dump(ctx, "sim write", buffer, "address", address)
	return transferred(len(buffer), opts), nil
}

func (c *Channel) Read(ctx context.Context, address byte, buffer []byte, opts imu.TransferOption) (int, error) {
	if err := c.check(address); err != nil {
		return 0, err
	}
	dev := c.bus.dev
	c.pause()
	dev.mx.Lock()
	err := dev.read(buffer, opts)
	dev.mx.Unlock()
	if err != nil {
		return 0, err
	}
	snsctx.Dump(ctx, "sim read", buffer, "address", address)
	return transferred(len(buffer), opts), nil
}

func (c *Channel) Close() error {
	if c.closed {
		return imu.Fault(imu.StatusInvalidHandle, nil)
	}
	c.closed = true
	c.bus.mx.Lock()
	defer c.bus.mx.Unlock()
	c.bus.closed++
	return nil
}

func (c *Channel) check(address byte) error {
	if c.closed {
		return imu.Fault(imu.StatusInvalidHandle, nil)
	}
	if address != Address {
		return imu.Fault(imu.StatusIOError, fmt.Errorf("no acknowledge from %#02x", address))
	}
	return nil
}

func (c *Channel) pause() {
	c.bus.dev.mx.Lock()
	delay := c.bus.dev.delay
	c.bus.dev.mx.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
}

// transferred mimics bridges that report fast transfers in bits.
func transferred(n int, opts imu.TransferOption) int {
	if opts.FastTransfer() {
		return n * 8
	}
	return n
}
