package i2c

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/imu"
)

// MockTxer is a mock implementation of Txer using testify/mock
type MockTxer struct {
	mock.Mock
}

func (m *MockTxer) Tx(addr uint16, w, r []byte) error {
	args := m.Called(addr, w, len(r))
	if data, ok := args.Get(1).([]byte); ok {
		copy(r, data)
	}
	return args.Error(0)
}

func TestFramer_CombinesRegisterRead(t *testing.T) {
	tx := new(MockTxer)
	f := NewFramer(tx)
	ctx := context.Background()
	tx.On("Tx", uint16(0x68), []byte{0x75}, 1).Return(nil, []byte{0x68}).Once()

	n, err := f.Write(ctx, 0x68, []byte{0x75}, imu.StartBit|imu.BreakOnNack)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.Pending())
	tx.AssertNotCalled(t, "Tx", mock.Anything, mock.Anything, mock.Anything)

	buf := make([]byte, 1)
	n, err = f.Read(ctx, 0x68, buf, imu.StartBit|imu.StopBit|imu.NackLastByte)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, byte(0x68), buf[0])
	assert.False(t, f.Pending())
	tx.AssertExpectations(t)
}

func TestFramer_WriteWithStopGoesOut(t *testing.T) {
	tx := new(MockTxer)
	f := NewFramer(tx)
	var noRead []byte
	tx.On("Tx", uint16(0x68), []byte{0x6B, 0x00}, 0).Return(nil, noRead).Once()

	n, err := f.Write(context.Background(), 0x68, []byte{0x6B, 0x00}, imu.StartBit|imu.StopBit|imu.FastTransferBytes)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, f.Pending())
	tx.AssertExpectations(t)
}

func TestFramer_HeldWriteFlushedByNextWrite(t *testing.T) {
	tx := new(MockTxer)
	f := NewFramer(tx)
	ctx := context.Background()
	var noRead []byte
	tx.On("Tx", uint16(0x68), []byte{0x3B}, 0).Return(nil, noRead).Once()
	tx.On("Tx", uint16(0x68), []byte{0x6B, 0x00}, 0).Return(nil, noRead).Once()

	_, err := f.Write(ctx, 0x68, []byte{0x3B}, imu.StartBit)
	require.NoError(t, err)
	_, err = f.Write(ctx, 0x68, []byte{0x6B, 0x00}, imu.StartBit|imu.StopBit)
	require.NoError(t, err)
	tx.AssertExpectations(t)
}

func TestFramer_ReadFromOtherAddressFlushes(t *testing.T) {
	tx := new(MockTxer)
	f := NewFramer(tx)
	ctx := context.Background()
	var noWrite, noRead []byte
	tx.On("Tx", uint16(0x68), []byte{0x3B}, 0).Return(nil, noRead).Once()
	tx.On("Tx", uint16(0x50), noWrite, 2).Return(nil, []byte{0x01, 0x02}).Once()

	_, err := f.Write(ctx, 0x68, []byte{0x3B}, imu.StartBit)
	require.NoError(t, err)
	buf := make([]byte, 2)
	_, err = f.Read(ctx, 0x50, buf, imu.StartBit|imu.StopBit)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, buf)
	tx.AssertExpectations(t)
}

func TestFramer_TxFailureIsBusFault(t *testing.T) {
	tx := new(MockTxer)
	f := NewFramer(tx)
	tx.On("Tx", uint16(0x68), []byte{0x75}, 1).Return(errors.New("remote I/O error"), nil).Once()

	_, err := f.Write(context.Background(), 0x68, []byte{0x75}, imu.StartBit)
	require.NoError(t, err)
	_, err = f.Read(context.Background(), 0x68, make([]byte, 1), imu.StartBit|imu.StopBit)
	var fault *imu.BusFault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, imu.StatusIOError, fault.Status)
	assert.Equal(t, "remote I/O error", fault.Description)
	assert.False(t, f.Pending())
}
