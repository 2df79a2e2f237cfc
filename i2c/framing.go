// Package i2c binds the imu bus contract to hosts that expose I2C as combined write/read
// transactions: Linux i2c-dev through periph.io and single board computers through gobot.
package i2c

import (
	"context"

	"github.com/mklimuk/imu"
	"github.com/mklimuk/imu/snsctx"
)

// Txer performs one combined transaction: write w, then read r after a repeated start.
type Txer interface {
	Tx(addr uint16, w, r []byte) error
}

// Framer maps the two-phase transfers of imu.Channel onto combined transactions. A write without
// StopBit is held back and sent together with the next read from the same address; any other
// transfer flushes it on its own first.
type Framer struct {
	tx      Txer
	held    []byte
	heldFor byte
	holding bool
}

func NewFramer(tx Txer) *Framer {
	return &Framer{tx: tx}
}

func (f *Framer) Write(ctx context.Context, address byte, buffer []byte, opts imu.TransferOption) (int, error) {
	err := f.flush(ctx)
	if err != nil {
		return 0, err
	}
	if !opts.Has(imu.StopBit) {
		f.held = append([]byte(nil), buffer...)
		f.heldFor = address
		f.holding = true
		return len(buffer), nil
	}
	snsctx.Dump(ctx, "i2c write", buffer, "address", address)
	err = f.tx.Tx(uint16(address), buffer, nil)
	if err != nil {
		return 0, imu.Fault(imu.StatusIOError, err)
	}
	return len(buffer), nil
}

func (f *Framer) Read(ctx context.Context, address byte, buffer []byte, opts imu.TransferOption) (int, error) {
	var w []byte
	if f.holding && f.heldFor == address {
		w = f.held
		f.release()
	} else if err := f.flush(ctx); err != nil {
		return 0, err
	}
	if w != nil {
		snsctx.Dump(ctx, "i2c write", w, "address", address)
	}
	err := f.tx.Tx(uint16(address), w, buffer)
	if err != nil {
		return 0, imu.Fault(imu.StatusIOError, err)
	}
	snsctx.Dump(ctx, "i2c read", buffer, "address", address)
	return len(buffer), nil
}

// Pending reports whether a write is being held for the next read.
func (f *Framer) Pending() bool {
	return f.holding
}

func (f *Framer) flush(ctx context.Context) error {
	if !f.holding {
		return nil
	}
	w, address := f.held, f.heldFor
	f.release()
	snsctx.Dump(ctx, "i2c write", w, "address", address)
	err := f.tx.Tx(uint16(address), w, nil)
	if err != nil {
		return imu.Fault(imu.StatusIOError, err)
	}
	return nil
}

func (f *Framer) release() {
	f.held = nil
	f.holding = false
}
