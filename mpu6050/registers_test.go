package mpu6050

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/imu"
)

// MockChannel is a mock implementation of imu.Channel using testify/mock
type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) Configure(ctx context.Context, clockRate uint32, latency time.Duration) error {
	args := m.Called(ctx, clockRate, latency)
	return args.Error(0)
}

func (m *MockChannel) Write(ctx context.Context, address byte, buffer []byte, opts imu.TransferOption) (int, error) {
	args := m.Called(ctx, address, buffer, opts)
	return args.Int(0), args.Error(1)
}

func (m *MockChannel) Read(ctx context.Context, address byte, buffer []byte, opts imu.TransferOption) (int, error) {
	args := m.Called(ctx, address, len(buffer), opts)
	if data, ok := args.Get(0).([]byte); ok {
		copy(buffer, data)
	}
	return args.Int(1), args.Error(2)
}

func (m *MockChannel) Close() error {
	args := m.Called()
	return args.Error(0)
}

const (
	writeOpts     = imu.StartBit | imu.StopBit | imu.FastTransferBytes
	pointerOpts   = imu.StartBit | imu.BreakOnNack
	readOpts      = imu.StartBit | imu.StopBit | imu.NackLastByte
	burstPtrOpts  = imu.StartBit | imu.BreakOnNack | imu.FastTransferBytes
	burstReadOpts = imu.StartBit | imu.StopBit | imu.NackLastByte | imu.FastTransferBytes
	exactReadOpts = imu.StartBit | imu.StopBit | imu.NackLastByte
)

func TestRegisters_WriteIgnoresBitCount(t *testing.T) {
	ch := new(MockChannel)
	r := registers{ch: ch, addr: Address}
	ch.On("Write", mock.Anything, byte(Address), []byte{RegPowerMgmt1, 0x00}, writeOpts).Return(16, nil).Once()

	err := r.writeRegister(context.Background(), RegPowerMgmt1, 0x00)
	assert.NoError(t, err)
	ch.AssertExpectations(t)
}

func TestRegisters_WriteFailure(t *testing.T) {
	ch := new(MockChannel)
	r := registers{ch: ch, addr: Address}
	ch.On("Write", mock.Anything, byte(Address), mock.Anything, writeOpts).Return(0, errors.New("usb transfer failed")).Once()

	err := r.writeRegister(context.Background(), RegPowerMgmt1, 0x00)
	var fault *imu.BusFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, imu.StatusIOError, fault.Status)
	assert.Equal(t, "usb transfer failed", fault.Description)
}

func TestRegisters_ReadSingle(t *testing.T) {
	ch := new(MockChannel)
	r := registers{ch: ch, addr: Address}
	ch.On("Write", mock.Anything, byte(Address), []byte{RegWhoAmI}, pointerOpts).Return(1, nil).Once()
	ch.On("Read", mock.Anything, byte(Address), 1, readOpts).Return([]byte{0x68}, 1, nil).Once()

	v, err := r.readRegister(context.Background(), RegWhoAmI)
	require.NoError(t, err)
	assert.Equal(t, byte(0x68), v)
	ch.AssertExpectations(t)
}

func TestRegisters_ReadSingleShort(t *testing.T) {
	ch := new(MockChannel)
	r := registers{ch: ch, addr: Address}
	ch.On("Write", mock.Anything, byte(Address), []byte{RegWhoAmI}, pointerOpts).Return(1, nil).Once()
	ch.On("Read", mock.Anything, byte(Address), 1, readOpts).Return(nil, 0, nil).Once()

	_, err := r.readRegister(context.Background(), RegWhoAmI)
	var transfer *imu.TransferError
	require.ErrorAs(t, err, &transfer)
	assert.Equal(t, 1, transfer.Expected)
	assert.Equal(t, 0, transfer.Actual)
}

func TestRegisters_ReadSingleAddressPhaseFails(t *testing.T) {
	ch := new(MockChannel)
	r := registers{ch: ch, addr: Address}
	ch.On("Write", mock.Anything, byte(Address), []byte{RegWhoAmI}, pointerOpts).
		Return(0, imu.Fault(imu.StatusDeviceNotOpened, nil)).Once()

	_, err := r.readRegister(context.Background(), RegWhoAmI)
	var fault *imu.BusFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, imu.StatusDeviceNotOpened, fault.Status)
	ch.AssertNotCalled(t, "Read", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRegisters_BurstTrustsStatusOnly(t *testing.T) {
	ch := new(MockChannel)
	r := registers{ch: ch, addr: Address}
	data := []byte{0x40, 0x00, 0x00, 0x00, 0xC0, 0x00}
	ch.On("Write", mock.Anything, byte(Address), []byte{RegAccelXOutH}, burstPtrOpts).Return(8, nil).Once()
	// bridge reports the count in bits
	ch.On("Read", mock.Anything, byte(Address), 6, burstReadOpts).Return(data, 48, nil).Once()

	buf, err := r.readRegisters(context.Background(), RegAccelXOutH, 6)
	require.NoError(t, err)
	assert.Equal(t, data, buf)
	ch.AssertExpectations(t)
}

func TestRegisters_ExactBurstShort(t *testing.T) {
	ch := new(MockChannel)
	r := registers{ch: ch, addr: Address, exact: true}
	ch.On("Write", mock.Anything, byte(Address), []byte{RegAccelXOutH}, burstPtrOpts).Return(8, nil).Once()
	ch.On("Read", mock.Anything, byte(Address), 6, exactReadOpts).Return([]byte{0x40, 0x00, 0x00, 0x00}, 4, nil).Once()

	_, err := r.readRegisters(context.Background(), RegAccelXOutH, 6)
	var transfer *imu.TransferError
	require.ErrorAs(t, err, &transfer)
	assert.Equal(t, 6, transfer.Expected)
	assert.Equal(t, 4, transfer.Actual)
	ch.AssertExpectations(t)
}

func TestRegisters_ExactBurst(t *testing.T) {
	ch := new(MockChannel)
	r := registers{ch: ch, addr: Address, exact: true}
	data := []byte{0x40, 0x00, 0x00, 0x00, 0xC0, 0x00}
	ch.On("Write", mock.Anything, byte(Address), []byte{RegAccelXOutH}, burstPtrOpts).Return(8, nil).Once()
	ch.On("Read", mock.Anything, byte(Address), 6, exactReadOpts).Return(data, 6, nil).Once()

	buf, err := r.readRegisters(context.Background(), RegAccelXOutH, 6)
	require.NoError(t, err)
	assert.Equal(t, data, buf)
	ch.AssertExpectations(t)
}
