package imu

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		given    Status
		expected string
	}{
		{StatusOK, "FT_OK"},
		{StatusIOError, "FT_IO_ERROR"},
		{StatusOtherError, "FT_OTHER_ERROR"},
		{Status(99), "UNKNOWN_ERROR(99)"},
	}
	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.given.String())
		})
	}
}

func TestAsBusFault(t *testing.T) {
	assert.Nil(t, AsBusFault(nil))

	fault := Fault(StatusDeviceNotFound, nil)
	wrapped := fmt.Errorf("could not open: %w", fault)
	assert.Same(t, fault, AsBusFault(wrapped))
	assert.Equal(t, "FT_DEVICE_NOT_FOUND", fault.Description)

	cause := errors.New("usb unplugged")
	normalised := AsBusFault(cause)
	require.NotNil(t, normalised)
	assert.Equal(t, StatusIOError, normalised.Status)
	assert.ErrorIs(t, normalised, cause)
}

func TestTransferOption(t *testing.T) {
	opts := StartBit | StopBit | FastTransferBytes
	assert.True(t, opts.Has(StartBit|StopBit))
	assert.False(t, opts.Has(NackLastByte))
	assert.True(t, opts.FastTransfer())
	assert.False(t, (StartBit | BreakOnNack).FastTransfer())
}
