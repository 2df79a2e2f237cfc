package imu

import "fmt"

// Status is the result code reported by a bridge driver.
type Status uint32

const (
	StatusOK Status = iota
	StatusInvalidHandle
	StatusDeviceNotFound
	StatusDeviceNotOpened
	StatusIOError
	StatusInsufficientResources
	StatusInvalidParameter
	StatusInvalidBaudRate
	StatusDeviceNotOpenedForErase
	StatusDeviceNotOpenedForWrite
	StatusFailedToWriteDevice
	StatusEEPROMReadFailed
	StatusEEPROMWriteFailed
	StatusEEPROMEraseFailed
	StatusEEPROMNotPresent
	StatusEEPROMNotProgrammed
	StatusInvalidArgs
	StatusNotSupported
	StatusOtherError
)

var statusNames = [...]string{
	"FT_OK",
	"FT_INVALID_HANDLE",
	"FT_DEVICE_NOT_FOUND",
	"FT_DEVICE_NOT_OPENED",
	"FT_IO_ERROR",
	"FT_INSUFFICIENT_RESOURCES",
	"FT_INVALID_PARAMETER",
	"FT_INVALID_BAUD_RATE",
	"FT_DEVICE_NOT_OPENED_FOR_ERASE",
	"FT_DEVICE_NOT_OPENED_FOR_WRITE",
	"FT_FAILED_TO_WRITE_DEVICE",
	"FT_EEPROM_READ_FAILED",
	"FT_EEPROM_WRITE_FAILED",
	"FT_EEPROM_ERASE_FAILED",
	"FT_EEPROM_NOT_PRESENT",
	"FT_EEPROM_NOT_PROGRAMMED",
	"FT_INVALID_ARGS",
	"FT_NOT_SUPPORTED",
	"FT_OTHER_ERROR",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("UNKNOWN_ERROR(%d)", uint32(s))
}
