// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bladerf1

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"periph.io/x/bladerf"
	"periph.io/x/bladerf/devices/dac161s055"
	"periph.io/x/bladerf/devices/lms6002d"
	"periph.io/x/bladerf/devices/si5338"
	"periph.io/x/bladerf/nios"
	"periph.io/x/bladerf/usbbus"
	"periph.io/x/periph/conn"
	"periph.io/x/periph/conn/physic"
)

// USB identity.
const (
	VendorID  uint16 = 0x2CF0
	ProductID uint16 = 0x5246
)

// Atomic selects whether the LMS6002D N divider is written with the FPGA
// multi register write.
type Atomic uint8

const (
	// AtomicAuto enables atomic writes when the FPGA is v0.2.0 or later.
	AtomicAuto Atomic = iota
	AtomicOn
	AtomicOff
)

func (a Atomic) String() string {
	switch a {
	case AtomicOn:
		return "on"
	case AtomicOff:
		return "off"
	default:
		return "auto"
	}
}

// ParseAtomic parses "auto", "on" or "off".
func ParseAtomic(s string) (Atomic, error) {
	switch s {
	case "", "auto":
		return AtomicAuto, nil
	case "on":
		return AtomicOn, nil
	case "off":
		return AtomicOff, nil
	}
	return AtomicAuto, fmt.Errorf("bladerf1: invalid atomic mode %q", s)
}

// Opts holds the configuration options.
type Opts struct {
	// Timeout is the USB transfer timeout. Only used by the Open functions.
	Timeout time.Duration
	// DACTrim is the VCTCXO trim written by Initialize.
	DACTrim uint16
	// SIBase is the Si5338 multisynth addressing mode.
	SIBase si5338.BaseMode
	Atomic Atomic
	Logger *zap.Logger
	// Exchange is notified of every NIOS exchange.
	Exchange nios.Observer
	// Tune is notified of every LMS6002D tuning.
	Tune lms6002d.TuneObserver
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{Timeout: usbbus.DefaultTimeout}

// minAtomic is the first FPGA version supporting LMS6002D multi register
// writes.
var minAtomic = Version{Major: 0, Minor: 2, Patch: 0}

// Open opens the first bladeRF x40/x115 found.
func Open(opts *Opts) (*Dev, error) {
	opts = defaults(opts)
	u, err := usbbus.OpenFirst(VendorID, ProductID, opts.Timeout)
	if err != nil {
		return nil, err
	}
	return fromUSB(u, opts)
}

// OpenSerial opens the bladeRF x40/x115 with the serial number serial.
func OpenSerial(serial string, opts *Opts) (*Dev, error) {
	opts = defaults(opts)
	u, err := usbbus.OpenSerial(VendorID, ProductID, serial, opts.Timeout)
	if err != nil {
		return nil, err
	}
	return fromUSB(u, opts)
}

// OpenBusAddr opens the bladeRF x40/x115 at an USB bus and address.
func OpenBusAddr(bus, addr int, opts *Opts) (*Dev, error) {
	opts = defaults(opts)
	u, err := usbbus.Open(usbbus.Desc{VID: VendorID, PID: ProductID, Bus: bus, Addr: addr}, opts.Timeout)
	if err != nil {
		return nil, err
	}
	return fromUSB(u, opts)
}

func defaults(opts *Opts) *Opts {
	if opts == nil {
		return &DefaultOpts
	}
	if opts.Timeout == 0 {
		o := *opts
		o.Timeout = usbbus.DefaultTimeout
		return &o
	}
	return opts
}

func fromUSB(u *usbbus.Dev, opts *Opts) (*Dev, error) {
	d, err := New(u, u.Speed(), opts)
	if err != nil {
		if err2 := u.Close(); err2 != nil {
			opts.logger().Warn("failed to close", zap.Stringer("device", u), zap.Error(err2))
		}
		return nil, err
	}
	return d, nil
}

func (o *Opts) logger() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// New returns a handle to a bladeRF reachable via t.
//
// speed is the USB link speed; it selects the DMA transfer size configured in
// the FPGA. If t implements io.Closer, Close closes it.
//
// The FPGA version is read to select the LMS6002D write mode.
func New(t nios.Transport, speed usbbus.Speed, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	id := uuid.New()
	name := "bladerf1"
	if s, ok := t.(fmt.Stringer); ok {
		name = s.String()
	}
	l := opts.logger().Named("bladerf1").With(zap.String("session", id.String()), zap.String("device", name))
	c := nios.NewConn(t, nios.EndpointOut, nios.EndpointIn, opts.Exchange)
	p := nios.NewConn(t, nios.PeripheralEndpointOut, nios.PeripheralEndpointIn, opts.Exchange)
	d := &Dev{
		name:    name,
		session: id,
		log:     l,
		speed:   speed,
		opts:    *opts,
		lmsRegs: nios.NewReg8(c, nios.Target8x8LMS6),
		gpio:    nios.NewReg32(c, nios.Target8x32Control),
		version: nios.NewReg32(c, nios.Target8x32Version),
		ts:      nios.NewReg64(c, nios.Target8x64Timestamp),
		iq:      nios.NewReg16(p, nios.Target8x16IQCorr),
		agc:     nios.NewReg16(p, nios.Target8x16AGCCorr),
		si:      si5338.New(nios.NewReg8(c, nios.Target8x8SI5338), &si5338.Opts{Base: opts.SIBase, Logger: l}),
		dac:     dac161s055.New(nios.NewReg16(p, nios.Target8x16VCTCXODAC)),
	}
	if cl, ok := t.(io.Closer); ok {
		d.closer = cl
	}
	v, err := d.readVersion()
	if err != nil {
		return nil, fmt.Errorf("bladerf1: reading FPGA version: %w", err)
	}
	d.fpga = v
	atomic := false
	switch opts.Atomic {
	case AtomicOn:
		atomic = true
	case AtomicAuto:
		atomic = v.AtLeast(minAtomic)
	}
	d.lms = lms6002d.New(d.lmsRegs, &lms6002d.Opts{Atomic: atomic, Logger: l, Observer: opts.Tune})
	l.Debug("opened", zap.Stringer("fpga", v), zap.Stringer("speed", speed), zap.Bool("atomic", atomic))
	return d, nil
}

// Dev is a handle to a bladeRF x40/x115.
//
// All the methods are serialized.
type Dev struct {
	// Immutable after initialization.
	name    string
	session uuid.UUID
	log     *zap.Logger
	speed   usbbus.Speed
	opts    Opts
	fpga    Version
	closer  io.Closer

	mu      sync.Mutex
	lmsRegs *nios.Reg8
	gpio    *nios.Reg32
	version *nios.Reg32
	ts      *nios.Reg64
	iq      *nios.Reg16
	agc     *nios.Reg16
	lms     *lms6002d.Dev
	si      *si5338.Dev
	dac     *dac161s055.Dev
}

func (d *Dev) String() string {
	return d.name
}

// Session returns the identifier of this handle, as found in its logs.
func (d *Dev) Session() uuid.UUID {
	return d.session
}

// Speed returns the USB link speed.
func (d *Dev) Speed() usbbus.Speed {
	return d.speed
}

// Halt implements conn.Resource.
//
// It disables both RF front ends.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return errors.Join(d.lms.EnableRFFE(bladerf.TX, false), d.lms.EnableRFFE(bladerf.RX, false))
}

// Close closes the transport. It doesn't halt the device.
func (d *Dev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.closer = nil
	return err
}

// Read reads a LMS6002D register.
func (d *Dev) Read(addr uint8) (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lmsRegs.Read(addr)
}

// Write writes a LMS6002D register.
func (d *Dev) Write(addr, data uint8) (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lmsRegs.Write(addr, data)
}

// SetFrequency tunes a module to f.
//
// f is clamped to the LMS6002D range, 237.5MHz to 3.8GHz. Precision below
// 1Hz is ignored.
func (d *Dev) SetFrequency(mod bladerf.Module, f physic.Frequency) (lms6002d.Freq, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setFrequency(mod, f)
}

func (d *Dev) setFrequency(mod bladerf.Module, f physic.Frequency) (lms6002d.Freq, error) {
	if f < 0 {
		return lms6002d.Freq{}, fmt.Errorf("bladerf1: frequency %s: %w", f, bladerf.ErrRange)
	}
	d.log.Info("setting frequency", zap.Stringer("module", mod), zap.Stringer("frequency", f))
	return d.lms.SetFrequency(mod, uint64(f/physic.Hertz))
}

// GetFrequency returns the frequency a module is tuned to.
func (d *Dev) GetFrequency(mod bladerf.Module) (physic.Frequency, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, err := d.lms.GetFrequency(mod)
	if err != nil {
		return 0, err
	}
	return physic.Frequency(f.Hz()) * physic.Hertz, nil
}

// SetSampleRate sets the sample rate of a module and returns the rate
// achieved.
func (d *Dev) SetSampleRate(mod bladerf.Module, hz uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.si.SetSampleRate(mod, hz)
}

// GetSampleRate returns the sample rate of a module.
func (d *Dev) GetSampleRate(mod bladerf.Module) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.si.GetSampleRate(mod)
}

// SetRationalSampleRate sets the sample rate of a module with sub-Hz
// precision.
func (d *Dev) SetRationalSampleRate(mod bladerf.Module, r si5338.Rate) (si5338.Rate, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.si.SetRationalSampleRate(mod, r)
}

// SetSmbFreq sets the frequency of the clock output on the SMB connector.
func (d *Dev) SetSmbFreq(hz uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.si.SetSmbFreq(hz)
}

// GetSmbFreq returns the frequency of the clock output on the SMB connector.
func (d *Dev) GetSmbFreq() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.si.GetSmbFreq()
}

// WriteDac writes the VCTCXO trim DAC.
func (d *Dev) WriteDac(value uint16) (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dac.Write(value)
}

// Loopback returns the loopback path configured in the LMS6002D.
func (d *Dev) Loopback() (lms6002d.Loopback, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lms.Loopback()
}

// Sweep records the VTUNE state for every VCOCAP code of a module at its
// current frequency.
func (d *Dev) Sweep(mod bladerf.Module) (lms6002d.Sweep, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lms.Sweep(mod)
}

// DumpRegisters reads all the LMS6002D registers.
func (d *Dev) DumpRegisters() ([]lms6002d.RegValue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lms.DumpRegisters()
}

// Settings is a RF configuration. Zero values are left untouched.
type Settings struct {
	RXFrequency  physic.Frequency
	TXFrequency  physic.Frequency
	RXSampleRate uint32
	TXSampleRate uint32
}

// Apply applies the non-zero values of s: sample rates first, then
// frequencies.
func (d *Dev) Apply(s *Settings) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range [...]struct {
		mod bladerf.Module
		hz  uint32
	}{{bladerf.TX, s.TXSampleRate}, {bladerf.RX, s.RXSampleRate}} {
		if r.hz == 0 {
			continue
		}
		if _, err := d.si.SetSampleRate(r.mod, r.hz); err != nil {
			return err
		}
	}
	for _, f := range [...]struct {
		mod bladerf.Module
		f   physic.Frequency
	}{{bladerf.TX, s.TXFrequency}, {bladerf.RX, s.RXFrequency}} {
		if f.f == 0 {
			continue
		}
		if _, err := d.setFrequency(f.mod, f.f); err != nil {
			return err
		}
	}
	return nil
}

var _ conn.Resource = &Dev{}
