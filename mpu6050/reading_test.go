package mpu6050

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConversions(t *testing.T) {
	tests := []struct {
		name     string
		got      float32
		expected float32
	}{
		{"accel +1g", AccelToG(16384), 1.0},
		{"accel -1g", AccelToG(-16384), -1.0},
		{"accel half", AccelToG(8192), 0.5},
		{"accel zero", AccelToG(0), 0},
		{"gyro +1dps", GyroToDPS(131), 1.0},
		{"gyro -2dps", GyroToDPS(-262), -2.0},
		{"gyro zero", GyroToDPS(0), 0},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.InDelta(t, test.expected, test.got, 1e-6)
		})
	}
}

func TestReading_Units(t *testing.T) {
	r := Reading{AccelX: 16384, AccelY: -8192, AccelZ: 0, GyroX: 131, GyroY: 0, GyroZ: -131}
	ax, ay, az := r.Accel()
	assert.InDelta(t, 1.0, ax, 1e-6)
	assert.InDelta(t, -0.5, ay, 1e-6)
	assert.InDelta(t, 0.0, az, 1e-6)
	gx, gy, gz := r.Gyro()
	assert.InDelta(t, 1.0, gx, 1e-6)
	assert.InDelta(t, 0.0, gy, 1e-6)
	assert.InDelta(t, -1.0, gz, 1e-6)
	assert.Equal(t, "accel=(1.000, -0.500, 0.000)g gyro=(1.00, 0.00, -1.00)dps", r.String())
}

func TestDecode(t *testing.T) {
	raw := []byte{
		0x40, 0x00, 0x00, 0x00, 0xC0, 0x00, 0x00, 0x83, 0xFF, 0x7D, 0x00, 0x00,
		0x00, 0x01, 0xFF, 0xFF, 0x7F, 0xFF, 0x80, 0x00, 0x00, 0x00, 0x01, 0x00,
	}
	readings, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, []Reading{
		{AccelX: 16384, AccelY: 0, AccelZ: -16384, GyroX: 131, GyroY: -131, GyroZ: 0},
		{AccelX: 1, AccelY: -1, AccelZ: 32767, GyroX: -32768, GyroY: 0, GyroZ: 256},
	}, readings)
}

func TestDecode_Empty(t *testing.T) {
	readings, err := Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, readings)
}

func TestDecode_PartialRecord(t *testing.T) {
	_, err := Decode(make([]byte, 13))
	var cfg *InvalidFIFOConfigError
	assert.ErrorAs(t, err, &cfg)
}

func TestDecodeBurst_DropsTemperature(t *testing.T) {
	raw := []byte{0x40, 0x00, 0x00, 0x00, 0xC0, 0x00, 0x12, 0x34, 0x00, 0x83, 0xFF, 0x7D, 0x00, 0x00}
	assert.Equal(t, Reading{AccelX: 16384, AccelZ: -16384, GyroX: 131, GyroY: -131}, decodeBurst(raw))
}
