package mpu6050

import (
	"encoding/binary"
	"fmt"
)

// Scale factors valid for the ranges configured at Open.
const (
	AccelScale = 16384.0 // LSB/g at +/-2g
	GyroScale  = 131.0   // LSB/(deg/s) at +/-250 deg/s
)

// RecordSize is the size of one FIFO record: 6 axes, 2 bytes each.
const RecordSize = 12

// Reading is one raw sample of the six motion axes.
type Reading struct {
	AccelX int16 `json:"ax" yaml:"ax"`
	AccelY int16 `json:"ay" yaml:"ay"`
	AccelZ int16 `json:"az" yaml:"az"`
	GyroX  int16 `json:"gx" yaml:"gx"`
	GyroY  int16 `json:"gy" yaml:"gy"`
	GyroZ  int16 `json:"gz" yaml:"gz"`
}

func AccelToG(v int16) float32 {
	return float32(v) / AccelScale
}

func GyroToDPS(v int16) float32 {
	return float32(v) / GyroScale
}

// Accel returns the acceleration in g.
func (r Reading) Accel() (x, y, z float32) {
	return AccelToG(r.AccelX), AccelToG(r.AccelY), AccelToG(r.AccelZ)
}

// Gyro returns the angular rate in degrees per second.
func (r Reading) Gyro() (x, y, z float32) {
	return GyroToDPS(r.GyroX), GyroToDPS(r.GyroY), GyroToDPS(r.GyroZ)
}

func (r Reading) AccelXG() float32  { return AccelToG(r.AccelX) }
func (r Reading) AccelYG() float32  { return AccelToG(r.AccelY) }
func (r Reading) AccelZG() float32  { return AccelToG(r.AccelZ) }
func (r Reading) GyroXDPS() float32 { return GyroToDPS(r.GyroX) }
func (r Reading) GyroYDPS() float32 { return GyroToDPS(r.GyroY) }
func (r Reading) GyroZDPS() float32 { return GyroToDPS(r.GyroZ) }

func (r Reading) String() string {
	ax, ay, az := r.Accel()
	gx, gy, gz := r.Gyro()
	return fmt.Sprintf("accel=(%.3f, %.3f, %.3f)g gyro=(%.2f, %.2f, %.2f)dps", ax, ay, az, gx, gy, gz)
}

func be16(b []byte) int16 {
	return int16(binary.BigEndian.Uint16(b))
}

// decodeBurst decodes the 14-byte accel/temp/gyro burst, dropping the temperature.
func decodeBurst(b []byte) Reading {
	return Reading{
		AccelX: be16(b[0:2]),
		AccelY: be16(b[2:4]),
		AccelZ: be16(b[4:6]),
		// b[6:8] is TEMP_OUT
		GyroX: be16(b[8:10]),
		GyroY: be16(b[10:12]),
		GyroZ: be16(b[12:14]),
	}
}

func decodeRecord(b []byte) Reading {
	return Reading{
		AccelX: be16(b[0:2]),
		AccelY: be16(b[2:4]),
		AccelZ: be16(b[4:6]),
		GyroX:  be16(b[6:8]),
		GyroY:  be16(b[8:10]),
		GyroZ:  be16(b[10:12]),
	}
}

// Decode splits raw FIFO bytes into readings. The buffer length must be a multiple of RecordSize.
func Decode(buf []byte) ([]Reading, error) {
	if len(buf)%RecordSize != 0 {
		return nil, &InvalidFIFOConfigError{
			Reason: fmt.Sprintf("buffer of %d bytes is not a multiple of %d", len(buf), RecordSize),
		}
	}
	res := make([]Reading, 0, len(buf)/RecordSize)
	for off := 0; off < len(buf); off += RecordSize {
		res = append(res, decodeRecord(buf[off:off+RecordSize]))
	}
	return res, nil
}
