package mpu6050

import (
	"errors"
	"fmt"
)

var ErrInvalidParameter = errors.New("invalid parameter")

var ErrFIFONotEnabled = errors.New("FIFO not enabled")

type InvalidDeviceIDError struct {
	Got byte
}

func (e *InvalidDeviceIDError) Error() string {
	return fmt.Sprintf("invalid WHO_AM_I response: expected %#02x, got %#02x", ExpectedWhoAmI, e.Got)
}

type InvalidParameterError struct {
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter: %s", e.Reason)
}

func (e *InvalidParameterError) Is(target error) bool {
	return target == ErrInvalidParameter
}

func invalidParameter(format string, args ...any) error {
	return &InvalidParameterError{Reason: fmt.Sprintf(format, args...)}
}

// FIFOOverflowError is returned after the FIFO overflowed. The FIFO has already been reset and
// stays enabled, so streaming may resume.
type FIFOOverflowError struct {
	SamplesLost int
}

func (e *FIFOOverflowError) Error() string {
	return fmt.Sprintf("FIFO overflow: ~%d samples lost", e.SamplesLost)
}

type InvalidFIFOConfigError struct {
	Reason string
}

func (e *InvalidFIFOConfigError) Error() string {
	return fmt.Sprintf("invalid FIFO configuration: %s", e.Reason)
}
