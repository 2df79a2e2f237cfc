package i2c

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/mklimuk/imu"
)

var _ imu.Bus = &HostBus{}
var _ imu.Channel = &HostChannel{}

// HostBus exposes the I2C buses registered with periph.io (i2c-dev on Linux) as channels.
type HostBus struct {
	name string
	refs []*i2creg.Ref
}

// NewHostBus initialises the periph host drivers. With a non-empty name (e.g. "/dev/i2c-1" or "1")
// the bus exposes that single device as channel 0; otherwise every registered bus is a channel.
func NewHostBus(name string) (*HostBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	return &HostBus{name: name}, nil
}

func (b *HostBus) Channels(ctx context.Context) (int, error) {
	if b.name != "" {
		return 1, nil
	}
	b.refs = i2creg.All()
	return len(b.refs), nil
}

func (b *HostBus) Open(ctx context.Context, index int) (imu.Channel, error) {
	name := b.name
	if name == "" {
		if b.refs == nil {
			b.refs = i2creg.All()
		}
		if index < 0 || index >= len(b.refs) {
			return nil, imu.Fault(imu.StatusDeviceNotFound, nil)
		}
		name = b.refs[index].Name
	} else if index != 0 {
		return nil, imu.Fault(imu.StatusDeviceNotFound, nil)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, imu.Fault(imu.StatusDeviceNotOpened, fmt.Errorf("could not open i2c bus %s: %w", name, err))
	}
	slog.Debug("i2c bus opened", "bus", bus.String())
	return &HostChannel{Framer: NewFramer(bus), bus: bus}, nil
}

// HostChannel is an opened periph.io bus.
type HostChannel struct {
	*Framer
	bus i2c.BusCloser
}

// Configure sets the bus clock where the host allows it. i2c-dev buses usually have their clock
// fixed by the device tree, in which case the request is ignored.
func (c *HostChannel) Configure(ctx context.Context, clockRate uint32, latency time.Duration) error {
	err := c.bus.SetSpeed(physic.Frequency(clockRate) * physic.Hertz)
	if err != nil {
		slog.Debug("bus clock not adjustable", "bus", c.bus.String(), "error", err)
	}
	return nil
}

func (c *HostChannel) Close() error {
	err := c.bus.Close()
	if err != nil {
		return imu.Fault(imu.StatusIOError, err)
	}
	return nil
}
