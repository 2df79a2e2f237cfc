package sim

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/imu"
)

func openChannel(t *testing.T, dev *Device) imu.Channel {
	t.Helper()
	ch, err := NewBus(dev).Open(context.Background(), 0)
	require.NoError(t, err)
	require.NoError(t, ch.Configure(context.Background(), imu.ClockFastModePlus, 0))
	return ch
}

func TestDevice_RegisterPointerAutoIncrement(t *testing.T) {
	dev := NewDevice()
	ch := openChannel(t, dev)
	ctx := context.Background()

	_, err := ch.Write(ctx, Address, []byte{0x19, 0x07, 0x01}, imu.StartBit|imu.StopBit)
	require.NoError(t, err)
	assert.Equal(t, byte(0x07), dev.Register(0x19))
	assert.Equal(t, byte(0x01), dev.Register(0x1A))

	_, err = ch.Write(ctx, Address, []byte{0x19}, imu.StartBit)
	require.NoError(t, err)
	buf := make([]byte, 2)
	n, err := ch.Read(ctx, Address, buf, imu.StartBit|imu.StopBit)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte{0x07, 0x01}, buf)
}

func TestDevice_DataRegisters(t *testing.T) {
	dev := NewDevice()
	dev.SetSample(Sample{16384, -1, 0, 131, 0, -131})
	dev.SetTemperature(0x1234)
	ch := openChannel(t, dev)
	ctx := context.Background()

	_, err := ch.Write(ctx, Address, []byte{regAccelXOutH}, imu.StartBit)
	require.NoError(t, err)
	buf := make([]byte, 14)
	n, err := ch.Read(ctx, Address, buf, imu.StartBit|imu.StopBit|imu.FastTransferBytes)
	require.NoError(t, err)
	assert.Equal(t, 14*8, n)
	assert.Equal(t, []byte{0x40, 0x00, 0xFF, 0xFF, 0x00, 0x00, 0x12, 0x34, 0x00, 0x83, 0x00, 0x00, 0xFF, 0x7D}, buf)
}

func TestDevice_FIFOFillAndReset(t *testing.T) {
	dev := NewDevice(WithFillPerPoll(2))
	ch := openChannel(t, dev)
	ctx := context.Background()

	_, err := ch.Write(ctx, Address, []byte{regFIFOEnable, fifoAccelGyro}, imu.StartBit|imu.StopBit)
	require.NoError(t, err)
	_, err = ch.Write(ctx, Address, []byte{regUserControl, userCtrlFIFOEnable}, imu.StartBit|imu.StopBit)
	require.NoError(t, err)

	_, err = ch.Write(ctx, Address, []byte{regFIFOCountH}, imu.StartBit)
	require.NoError(t, err)
	count := make([]byte, 2)
	_, err = ch.Read(ctx, Address, count, imu.StartBit|imu.StopBit)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 24}, count)
	assert.Equal(t, 24, dev.FIFOLen())

	_, err = ch.Write(ctx, Address, []byte{regUserControl, userCtrlFIFOEnable | userCtrlFIFOReset}, imu.StartBit|imu.StopBit)
	require.NoError(t, err)
	assert.Equal(t, 0, dev.FIFOLen())
	assert.Equal(t, byte(userCtrlFIFOEnable), dev.Register(regUserControl))
}

func TestDevice_Overflow(t *testing.T) {
	dev := NewDevice()
	dev.AppendFIFO(make([]byte, FIFOCapacity+20))
	assert.Equal(t, FIFOCapacity, dev.FIFOLen())
	assert.Equal(t, byte(intFIFOOverflow), dev.Register(regIntStatus))

	ch := openChannel(t, dev)
	ctx := context.Background()
	_, err := ch.Write(ctx, Address, []byte{regIntStatus}, imu.StartBit)
	require.NoError(t, err)
	status := make([]byte, 1)
	_, err = ch.Read(ctx, Address, status, imu.StartBit|imu.StopBit)
	require.NoError(t, err)
	assert.Equal(t, byte(intFIFOOverflow), status[0])
	// cleared on read
	assert.Equal(t, byte(0), dev.Register(regIntStatus))
}

func TestDevice_ReadOnlyRegisters(t *testing.T) {
	dev := NewDevice()
	ch := openChannel(t, dev)
	_, err := ch.Write(context.Background(), Address, []byte{regWhoAmI, 0x00}, imu.StartBit|imu.StopBit)
	require.NoError(t, err)
	assert.Equal(t, byte(0x68), dev.Register(regWhoAmI))
}

func TestDevice_FaultInjection(t *testing.T) {
	dev := NewDevice()
	ch := openChannel(t, dev)
	ctx := context.Background()

	dev.FailOn(regPowerMgmt1, imu.StatusIOError)
	_, err := ch.Write(ctx, Address, []byte{regConfig, 0x01}, imu.StartBit|imu.StopBit)
	assert.NoError(t, err)
	_, err = ch.Write(ctx, Address, []byte{regPowerMgmt1, 0x00}, imu.StartBit|imu.StopBit)
	var fault *imu.BusFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, imu.StatusIOError, fault.Status)
	// one-shot
	_, err = ch.Write(ctx, Address, []byte{regPowerMgmt1, 0x00}, imu.StartBit|imu.StopBit)
	assert.NoError(t, err)
}

func TestChannel_WrongAddressAndClose(t *testing.T) {
	bus := NewBus(NewDevice())
	ch, err := bus.Open(context.Background(), 0)
	require.NoError(t, err)

	_, err = ch.Write(context.Background(), 0x50, []byte{0x00}, imu.StartBit)
	var fault *imu.BusFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, imu.StatusIOError, fault.Status)

	require.NoError(t, ch.Close())
	assert.Error(t, ch.Close())
	assert.Equal(t, 1, bus.Closed())

	_, err = bus.Open(context.Background(), 1)
	assert.Error(t, err)
}
