package i2c

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	gi2c "gobot.io/x/gobot/v2/drivers/i2c"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/imu"
)

var _ imu.Bus = &GobotBus{}
var _ imu.Channel = &GobotChannel{}

// GobotBus exposes I2C buses of a gobot platform adaptor as channels, one per bus number.
type GobotBus struct {
	connector gi2c.Connector
	buses     []int
	finalize  func() error
}

// NewGobotBus wraps an already connected adaptor. Without bus numbers the adaptor default is used.
func NewGobotBus(connector gi2c.Connector, buses ...int) *GobotBus {
	if len(buses) == 0 {
		buses = []int{connector.DefaultI2cBus()}
	}
	return &GobotBus{connector: connector, buses: buses}
}

// NewNeoBus connects the I2C adaptor of a NanoPi NEO board.
func NewNeoBus(buses ...int) (*GobotBus, error) {
	npi := nanopi.NewNeoAdaptor()
	err := npi.I2cBusAdaptor.Connect()
	if err != nil {
		return nil, fmt.Errorf("adaptor connect error: %w", err)
	}
	b := NewGobotBus(npi, buses...)
	b.finalize = npi.I2cBusAdaptor.Finalize
	return b, nil
}

func (b *GobotBus) Channels(ctx context.Context) (int, error) {
	return len(b.buses), nil
}

func (b *GobotBus) Open(ctx context.Context, index int) (imu.Channel, error) {
	if index < 0 || index >= len(b.buses) {
		return nil, imu.Fault(imu.StatusDeviceNotFound, nil)
	}
	tx := &gobotTx{connector: b.connector, bus: b.buses[index], conns: make(map[int]gi2c.Connection)}
	return &GobotChannel{Framer: NewFramer(tx), tx: tx}, nil
}

// Close releases the adaptor if the bus created it.
func (b *GobotBus) Close() error {
	if b.finalize == nil {
		return nil
	}
	return b.finalize()
}

// GobotChannel is one adaptor bus. Connections are opened lazily per device address.
type GobotChannel struct {
	*Framer
	tx *gobotTx
}

// Configure is a no-op: the bus clock of board adaptors is set by the kernel.
func (c *GobotChannel) Configure(ctx context.Context, clockRate uint32, latency time.Duration) error {
	slog.Debug("bus clock fixed by board", "bus", c.tx.bus, "requested", clockRate)
	return nil
}

func (c *GobotChannel) Close() error {
	return c.tx.close()
}

type gobotTx struct {
	connector gi2c.Connector
	bus       int
	conns     map[int]gi2c.Connection
}

// Tx writes w and then reads r. Board adaptors cannot issue a repeated start, so the two phases are
// separate messages; registers with auto-increment behave the same either way.
func (t *gobotTx) Tx(addr uint16, w, r []byte) error {
	conn, err := t.conn(int(addr))
	if err != nil {
		return err
	}
	if len(w) > 0 {
		_, err = conn.Write(w)
		if err != nil {
			return fmt.Errorf("write to %#x failed: %w", addr, err)
		}
	}
	if len(r) > 0 {
		n, err := conn.Read(r)
		if err != nil {
			return fmt.Errorf("read from %#x failed: %w", addr, err)
		}
		if n != len(r) {
			return &imu.TransferError{Expected: len(r), Actual: n}
		}
	}
	return nil
}

func (t *gobotTx) conn(addr int) (gi2c.Connection, error) {
	if conn, ok := t.conns[addr]; ok {
		return conn, nil
	}
	conn, err := t.connector.GetI2cConnection(addr, t.bus)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %#x on bus %d: %w", addr, t.bus, err)
	}
	t.conns[addr] = conn
	return conn, nil
}

func (t *gobotTx) close() error {
	var first error
	for addr, conn := range t.conns {
		err := conn.Close()
		if err != nil && first == nil {
			first = imu.Fault(imu.StatusIOError, err)
		}
		delete(t.conns, addr)
	}
	return first
}
