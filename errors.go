package imu

import (
	"errors"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

var ErrNoChannelsFound = errors.New("no I2C channels found")

// BusFault is returned whenever the bridge reports a status other than StatusOK.
type BusFault struct {
	Status      Status
	Description string
	// Err is the binding-level cause, if any.
	Err error
}

func (e *BusFault) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bus fault: %s (%s): %v", e.Status, e.Description, e.Err)
	}
	return fmt.Sprintf("bus fault: %s (%s)", e.Status, e.Description)
}

func (e *BusFault) Unwrap() error {
	return e.Err
}

// Fault builds a BusFault for status, keeping cause for errors.Is/As.
func Fault(status Status, cause error) *BusFault {
	desc := status.String()
	if cause != nil {
		desc = cause.Error()
	}
	return &BusFault{Status: status, Description: desc, Err: cause}
}

// AsBusFault normalises any binding error into a BusFault. Errors that already are (or wrap)
// a BusFault are returned as found; anything else becomes a StatusIOError fault.
func AsBusFault(err error) *BusFault {
	if err == nil {
		return nil
	}
	var fault *BusFault
	if errors.As(err, &fault) {
		return fault
	}
	return Fault(StatusIOError, err)
}

type InvalidChannelError struct {
	Index int
}

func (e *InvalidChannelError) Error() string {
	return fmt.Sprintf("invalid channel index: %d", e.Index)
}

// TransferError reports a byte count mismatch on a transfer whose count is trustworthy.
type TransferError struct {
	Expected int
	Actual   int
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("data transfer error: expected %d bytes, transferred %d", e.Expected, e.Actual)
}
