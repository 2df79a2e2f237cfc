package console

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/imu"
)

func Exit(code int, msg string, args ...interface{}) cli.ExitCoder {
	return cli.Exit(fmt.Sprintf(msg, args...), code)
}

// Exit codes
const (
	ExitFailure = 1
	ExitBus     = 2
	ExitUsage   = 64
)

// ExitErr picks the exit code from the error kind: bus faults and transfer errors exit with
// ExitBus, everything else with ExitFailure.
func ExitErr(msg string, err error) cli.ExitCoder {
	var fault *imu.BusFault
	var transfer *imu.TransferError
	code := ExitFailure
	if errors.As(err, &fault) || errors.As(err, &transfer) || errors.Is(err, imu.ErrNoChannelsFound) {
		code = ExitBus
	}
	return Exit(code, "%s: %s", msg, Red(err))
}
