// Package sim simulates an MPU-6050 behind an I2C bridge. It implements the imu.Bus contract on top of
// a register file so drivers can be exercised without hardware: register contents can be
// pre-programmed, the FIFO fills from a sample generator, and bus faults or overflows can be
// injected. Every transaction is logged.
package sim

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/mklimuk/imu"
)

// Address is the bus address the simulated sensor answers on.
const Address = 0x68

// FIFOCapacity is the size of the on-device FIFO in bytes.
const FIFOCapacity = 1024

const recordSize = 12

// register map mirrored from the datasheet; kept local so the simulator does not depend on the driver
const (
	regSampleRateDivider = 0x19
	regConfig            = 0x1A
	regFIFOEnable        = 0x23
	regIntStatus         = 0x3A
	regAccelXOutH        = 0x3B
	regGyroZOutL         = 0x48
	regUserControl       = 0x6A
	regPowerMgmt1        = 0x6B
	regFIFOCountH        = 0x72
	regFIFOCountL        = 0x73
	regFIFOReadWrite     = 0x74
	regWhoAmI            = 0x75

	userCtrlFIFOEnable = 0x40
	userCtrlFIFOReset  = 0x04
	intFIFOOverflow    = 0x10
	fifoAccelGyro      = 0x78
)

// Sample holds raw axis values in register order: accel x,y,z then gyro x,y,z.
type Sample [6]int16

// Generator produces the i-th sample written to the FIFO.
type Generator func(i int) Sample

// Transaction is one logged bus transfer.
type Transaction struct {
	Write   bool
	Address byte
	// Register is the register pointer the transfer started at.
	Register byte
	Data     []byte
	Opts     imu.TransferOption
}

type DeviceOpt func(*Device)

// WithWhoAmI overrides the identity register.
func WithWhoAmI(id byte) DeviceOpt {
	return func(d *Device) {
		d.regs[regWhoAmI] = id
	}
}

// WithFillPerPoll makes the FIFO grow by n records on every FIFO count read instead of following
// the wall clock.
func WithFillPerPoll(n int) DeviceOpt {
	return func(d *Device) {
		d.fillPerPoll = n
	}
}

func WithGenerator(gen Generator) DeviceOpt {
	return func(d *Device) {
		d.gen = gen
	}
}

// WithTransferDelay makes every transfer block for delay.
func WithTransferDelay(delay time.Duration) DeviceOpt {
	return func(d *Device) {
		d.delay = delay
	}
}

// Device is the simulated sensor. It is safe for concurrent use.
type Device struct {
	mx sync.Mutex

	regs        [256]byte
	pointer     byte
	sample      Sample
	temperature int16
	fifo        []byte

	gen         Generator
	fillPerPoll int
	fillStart   time.Time
	produced    int
	delay       time.Duration

	failNext *imu.Status
	failOn   map[byte]imu.Status
	log      []Transaction
}

func NewDevice(opts ...DeviceOpt) *Device {
	d := &Device{
		failOn: make(map[byte]imu.Status),
	}
	d.regs[regWhoAmI] = 0x68
	d.regs[regPowerMgmt1] = 0x40 // asleep after power-on
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetSample sets the value returned by data register reads and, without a generator, stored
// into the FIFO.
func (d *Device) SetSample(s Sample) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.sample = s
}

func (d *Device) SetTemperature(raw int16) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.temperature = raw
}

// Register returns the raw content of reg without logging a transaction.
func (d *Device) Register(reg byte) byte {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.regs[reg]
}

// SetRegister pokes reg without logging a transaction or triggering side effects.
func (d *Device) SetRegister(reg, value byte) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.regs[reg] = value
}

// FIFOLen returns the number of bytes buffered in the FIFO.
func (d *Device) FIFOLen() int {
	d.mx.Lock()
	defer d.mx.Unlock()
	return len(d.fifo)
}

// AppendFIFO pushes raw bytes into the FIFO, e.g. to leave a partial record behind.
func (d *Device) AppendFIFO(raw []byte) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.push(raw)
}

// InjectOverflow fills the FIFO with count bytes and raises the overflow status bit.
func (d *Device) InjectOverflow(count int) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.fifo = make([]byte, count)
	d.regs[regIntStatus] |= intFIFOOverflow
}

// FailNext makes the next transfer report status.
func (d *Device) FailNext(status imu.Status) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.failNext = &status
}

// FailOn makes the next transfer touching reg report status.
func (d *Device) FailOn(reg byte, status imu.Status) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.failOn[reg] = status
}

// Transactions returns a copy of the transaction log.
func (d *Device) Transactions() []Transaction {
	d.mx.Lock()
	defer d.mx.Unlock()
	res := make([]Transaction, len(d.log))
	copy(res, d.log)
	return res
}

// Writes returns the logged register writes as register/value pairs, in order.
func (d *Device) Writes() [][2]byte {
	d.mx.Lock()
	defer d.mx.Unlock()
	var res [][2]byte
	for _, tx := range d.log {
		if tx.Write && len(tx.Data) >= 2 {
			res = append(res, [2]byte{tx.Data[0], tx.Data[1]})
		}
	}
	return res
}

func (d *Device) ResetLog() {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.log = nil
}

// SampleRate returns the FIFO sample rate implied by the current configuration.
func (d *Device) SampleRate() float64 {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.sampleRate()
}

func (d *Device) sampleRate() float64 {
	base := 8000.0
	if dlpf := d.regs[regConfig] & 0x07; dlpf >= 1 && dlpf <= 6 {
		base = 1000.0
	}
	return base / float64(1+int(d.regs[regSampleRateDivider]))
}

func (d *Device) fifoActive() bool {
	return d.regs[regUserControl]&userCtrlFIFOEnable != 0 && d.regs[regFIFOEnable]&fifoAccelGyro == fifoAccelGyro
}

func (d *Device) fault(reg byte) error {
	if d.failNext != nil {
		status := *d.failNext
		d.failNext = nil
		return imu.Fault(status, nil)
	}
	if status, ok := d.failOn[reg]; ok {
		delete(d.failOn, reg)
		return imu.Fault(status, nil)
	}
	return nil
}

func (d *Device) write(buffer []byte, opts imu.TransferOption) error {
	if len(buffer) == 0 {
		return nil
	}
	if err := d.fault(buffer[0]); err != nil {
		return err
	}
	d.log = append(d.log, Transaction{
		Write:    true,
		Address:  Address,
		Register: buffer[0],
		Data:     append([]byte(nil), buffer...),
		Opts:     opts,
	})
	d.pointer = buffer[0]
	for _, v := range buffer[1:] {
		d.store(d.pointer, v)
		if d.pointer != regFIFOReadWrite {
			d.pointer++
		}
	}
	return nil
}

func (d *Device) store(reg, v byte) {
	switch reg {
	case regFIFOReadWrite:
		d.push([]byte{v})
	case regUserControl:
		wasActive := d.fifoActive()
		if v&userCtrlFIFOReset != 0 {
			d.fifo = nil
			d.regs[regIntStatus] &^= intFIFOOverflow
			d.restartFill()
		}
		// reset bit is self-clearing
		d.regs[reg] = v &^ userCtrlFIFOReset
		if !wasActive && d.fifoActive() {
			d.restartFill()
		}
	case regFIFOEnable:
		wasActive := d.fifoActive()
		d.regs[reg] = v
		if !wasActive && d.fifoActive() {
			d.restartFill()
		}
	case regWhoAmI, regFIFOCountH, regFIFOCountL, regIntStatus:
		// read-only
	default:
		d.regs[reg] = v
	}
}

func (d *Device) read(buffer []byte, opts imu.TransferOption) error {
	if err := d.fault(d.pointer); err != nil {
		return err
	}
	start := d.pointer
	if start == regFIFOCountH {
		d.fill()
	}
	for i := range buffer {
		buffer[i] = d.load(d.pointer)
		if d.pointer != regFIFOReadWrite {
			d.pointer++
		}
	}
	d.log = append(d.log, Transaction{
		Address:  Address,
		Register: start,
		Data:     append([]byte(nil), buffer...),
		Opts:     opts,
	})
	return nil
}

func (d *Device) load(reg byte) byte {
	switch {
	case reg >= regAccelXOutH && reg <= regGyroZOutL:
		image := make([]byte, 14)
		for i, v := range d.sample[:3] {
			binary.BigEndian.PutUint16(image[2*i:], uint16(v))
		}
		binary.BigEndian.PutUint16(image[6:], uint16(d.temperature))
		for i, v := range d.sample[3:] {
			binary.BigEndian.PutUint16(image[8+2*i:], uint16(v))
		}
		return image[reg-regAccelXOutH]
	case reg == regIntStatus:
		v := d.regs[reg]
		// cleared on read
		d.regs[reg] = 0
		return v
	case reg == regFIFOCountH:
		return byte(len(d.fifo) >> 8)
	case reg == regFIFOCountL:
		return byte(len(d.fifo))
	case reg == regFIFOReadWrite:
		if len(d.fifo) == 0 {
			return 0
		}
		v := d.fifo[0]
		d.fifo = d.fifo[1:]
		return v
	default:
		return d.regs[reg]
	}
}

func (d *Device) restartFill() {
	d.fillStart = time.Now()
	d.produced = 0
}

func (d *Device) fill() {
	if !d.fifoActive() {
		return
	}
	due := d.fillPerPoll
	if due == 0 {
		target := int(time.Since(d.fillStart).Seconds() * d.sampleRate())
		due = target - d.produced
	}
	for range due {
		s := d.sample
		if d.gen != nil {
			s = d.gen(d.produced)
		}
		record := make([]byte, recordSize)
		for i, v := range s {
			binary.BigEndian.PutUint16(record[2*i:], uint16(v))
		}
		d.push(record)
		d.produced++
	}
}

// push appends to the FIFO, dropping the oldest bytes and flagging an overflow past capacity.
func (d *Device) push(b []byte) {
	d.fifo = append(d.fifo, b...)
	if len(d.fifo) > FIFOCapacity {
		d.fifo = append([]byte(nil), d.fifo[len(d.fifo)-FIFOCapacity:]...)
		d.regs[regIntStatus] |= intFIFOOverflow
	}
}
