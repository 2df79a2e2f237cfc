// Package ftdi binds the imu bus contract to FTDI FT232H bridges driven in MPSSE mode through
// periph.io. Each FT232H found on the host is one channel.
package ftdi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/gpio"
	pi2c "periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"

	"github.com/mklimuk/imu"
	"github.com/mklimuk/imu/i2c"
)

var _ imu.Bus = &Bus{}
var _ imu.Channel = &Channel{}

// Device describes one FTDI chip seen on the host.
type Device struct {
	Index  int    `yaml:"index"`
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Vendor uint16 `yaml:"vendor"`
	Device uint16 `yaml:"device"`
	Opened bool   `yaml:"opened"`
}

type BusOpt func(*Bus)

// WithPull selects the pull applied to SCL/SDA. gpio.Float leaves it to external resistors.
func WithPull(pull gpio.Pull) BusOpt {
	return func(b *Bus) {
		b.pull = pull
	}
}

type Bus struct {
	pull gpio.Pull
}

// NewBus loads the periph host drivers, which enumerate the attached FTDI devices.
func NewBus(opts ...BusOpt) (*Bus, error) {
	_, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	b := &Bus{pull: gpio.PullUp}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// List describes every FTDI device, including the ones that cannot serve as a channel.
func List() []Device {
	var res []Device
	for i, d := range ftdi.All() {
		var info ftdi.Info
		d.Info(&info)
		res = append(res, Device{
			Index:  i,
			Name:   d.String(),
			Type:   info.Type,
			Vendor: info.VenID,
			Device: info.DevID,
			Opened: info.Opened,
		})
	}
	return res
}

func bridges() []*ftdi.FT232H {
	var res []*ftdi.FT232H
	for _, d := range ftdi.All() {
		if h, ok := d.(*ftdi.FT232H); ok {
			res = append(res, h)
		}
	}
	return res
}

func (b *Bus) Channels(ctx context.Context) (int, error) {
	return len(bridges()), nil
}

func (b *Bus) Open(ctx context.Context, index int) (imu.Channel, error) {
	devs := bridges()
	if index < 0 || index >= len(devs) {
		return nil, imu.Fault(imu.StatusDeviceNotFound, nil)
	}
	bus, err := devs[index].I2C(b.pull)
	if err != nil {
		return nil, imu.Fault(imu.StatusDeviceNotOpened, err)
	}
	slog.Debug("FT232H opened", "device", devs[index].String())
	return &Channel{Framer: i2c.NewFramer(bus), bus: bus}, nil
}

// Channel is the MPSSE I2C engine of one FT232H.
type Channel struct {
	*i2c.Framer
	bus pi2c.BusCloser
}

// Configure sets the I2C clock. The USB latency is managed by the D2XX driver.
func (c *Channel) Configure(ctx context.Context, clockRate uint32, latency time.Duration) error {
	err := c.bus.SetSpeed(physic.Frequency(clockRate) * physic.Hertz)
	if err != nil {
		return imu.Fault(imu.StatusInvalidParameter, err)
	}
	return nil
}

func (c *Channel) Close() error {
	err := c.bus.Close()
	if err != nil {
		return imu.Fault(imu.StatusIOError, err)
	}
	return nil
}
