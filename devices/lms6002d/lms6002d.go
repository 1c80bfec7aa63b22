// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package lms6002d controls the Lime Microsystems LMS6002D transceiver of the
// bladeRF x40/x115.
//
// The package focuses on the two fractional-N PLLs: computing the N divider
// and the VCO selection for a frequency, programming them and searching for
// the VCOCAP code that centers the VCO control voltage. It also exposes the
// few front end settings the board needs during initialization.
//
// Datasheet
//
// https://limemicro.com/app/uploads/2015/10/LMS6002Dr2-DataSheet-1.2r0.pdf
//
// Programming and calibration guide
//
// https://limemicro.com/app/uploads/2015/10/LMS6002Dr2-Programming_and_Calibration_Guide-1.1r1.pdf
package lms6002d // import "periph.io/x/bladerf/devices/lms6002d"

import (
	"fmt"

	"go.uber.org/zap"
	"periph.io/x/bladerf"
)

// Regs is the register interface of the LMS6002D, as provided by nios.Reg8.
type Regs interface {
	Read(addr uint8) (uint8, error)
	Write(addr, data uint8) (uint8, error)
	Set(addr, mask uint8) error
}

// TuneObserver is notified once per tuning attempt.
//
// vcocap is the VCOCAP code the PLL ended up with, 0xff if none.
type TuneObserver interface {
	ObserveTune(mod bladerf.Module, vcocap uint8, err error)
}

// Opts holds the configuration options.
type Opts struct {
	// Atomic enables the FPGA multi register write for the N divider, where
	// bit 7 of the address is set. It requires FPGA v0.2.0 or later.
	Atomic   bool
	Logger   *zap.Logger
	Observer TuneObserver
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{Atomic: true}

// New returns a handle to the LMS6002D reachable via r.
func New(r Regs, opts *Opts) *Dev {
	if opts == nil {
		opts = &DefaultOpts
	}
	l := opts.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &Dev{r: r, atomic: opts.Atomic, obs: opts.Observer, log: l.Named("lms6002d")}
}

// Dev is a handle to the LMS6002D.
type Dev struct {
	r      Regs
	atomic bool
	obs    TuneObserver
	log    *zap.Logger
}

func (d *Dev) String() string {
	return "lms6002d"
}

// VTune is the state of the VCO control voltage comparators.
type VTune uint8

// VTune values, as read in bits 7:6 of register base+10.
const (
	VTuneNorm VTune = 0
	VTuneLow  VTune = 1
	VTuneHigh VTune = 2
)

func (v VTune) String() string {
	switch v {
	case VTuneNorm:
		return "NORM"
	case VTuneLow:
		return "LOW"
	case VTuneHigh:
		return "HIGH"
	default:
		return fmt.Sprintf("VTune(%d)", uint8(v))
	}
}

// Loopback is a loopback path configured in the LMS6002D.
type Loopback uint8

// Loopback paths.
const (
	LoopbackNone           Loopback = iota
	LoopbackBbTxlpfRxvga2           // TXLPF output to RXVGA2 input
	LoopbackBbTxvga1Rxvga2          // TXVGA1 output to RXVGA2 input
	LoopbackBbTxlpfRxlpf            // TXLPF output to RXLPF input
	LoopbackBbTxvga1Rxlpf           // TXVGA1 output to RXLPF input
	LoopbackRfLna1                  // TXMIX through the AUX PA to LNA1 output
	LoopbackRfLna2
	LoopbackRfLna3
)

var loopbackName = [...]string{"None", "BbTxlpfRxvga2", "BbTxvga1Rxvga2", "BbTxlpfRxlpf", "BbTxvga1Rxlpf", "RfLna1", "RfLna2", "RfLna3"}

func (l Loopback) String() string {
	if int(l) >= len(loopbackName) {
		return fmt.Sprintf("Loopback(%d)", uint8(l))
	}
	return loopbackName[l]
}

// Register 0x08 and 0x46 fields.
const (
	lbenMask      = 0x70
	lbenVGA2In    = 1 << 5
	lbenLPFIn     = 1 << 6
	lbrfenLNA1    = 1
	lbrfenLNA2    = 2
	lbrfenLNA3    = 3
	loopbbenTXLPF = 1 << 2
	loopbbenTXVGA = 2 << 2
)

// Loopback returns the loopback path currently configured.
func (d *Dev) Loopback() (Loopback, error) {
	lb, err := d.r.Read(0x08)
	if err != nil {
		return LoopbackNone, err
	}
	bb, err := d.r.Read(0x46)
	if err != nil {
		return LoopbackNone, err
	}
	l := LoopbackNone
	switch lb & 7 {
	case lbrfenLNA1:
		l = LoopbackRfLna1
	case lbrfenLNA2:
		l = LoopbackRfLna2
	case lbrfenLNA3:
		l = LoopbackRfLna3
	}
	switch lb & lbenMask {
	case lbenVGA2In:
		if bb&loopbbenTXLPF != 0 {
			l = LoopbackBbTxlpfRxvga2
		} else if bb&loopbbenTXVGA != 0 {
			l = LoopbackBbTxvga1Rxvga2
		}
	case lbenLPFIn:
		if bb&loopbbenTXLPF != 0 {
			l = LoopbackBbTxlpfRxlpf
		} else if bb&loopbbenTXVGA != 0 {
			l = LoopbackBbTxvga1Rxlpf
		}
	}
	return l, nil
}

// EnableRFFE enables or disables the RF front end of a module.
func (d *Dev) EnableRFFE(mod bladerf.Module, enable bool) error {
	addr, bit := uint8(0x70), uint8(1<<1)
	if mod == bladerf.TX {
		addr, bit = 0x40, 1<<0
	}
	v, err := d.r.Read(addr)
	if err != nil {
		return err
	}
	if enable {
		v |= bit
	} else {
		v &^= bit
	}
	_, err = d.r.Write(addr, v)
	return err
}

// ConfigChargePumps sets the PLL charge pump currents of a module: Ichp to
// 1.2mA, Iup and Idn to 30uA.
func (d *Dev) ConfigChargePumps(mod bladerf.Module) error {
	base := pllBase(mod)
	for _, r := range [...]struct{ addr, v uint8 }{{base + 6, 0x0c}, {base + 7, 0x03}, {base + 8, 0x03}} {
		v, err := d.r.Read(r.addr)
		if err != nil {
			return err
		}
		if _, err = d.r.Write(r.addr, v&^0x1f|r.v); err != nil {
			return err
		}
	}
	return nil
}

// VTune returns the VTUNE comparators state of the PLL of a module.
func (d *Dev) VTune(mod bladerf.Module) (VTune, error) {
	v, err := d.r.Read(pllBase(mod) + 10)
	return VTune(v >> 6), err
}

// WriteVCOCAP writes the VCOCAP code of the PLL of a module, preserving the
// upper bits of the register.
func (d *Dev) WriteVCOCAP(mod bladerf.Module, vcocap uint8) error {
	if vcocap > MaxVCOCAP {
		return fmt.Errorf("lms6002d: VCOCAP %d > %d: %w", vcocap, MaxVCOCAP, bladerf.ErrRange)
	}
	base := pllBase(mod)
	v, err := d.r.Read(base + 9)
	if err != nil {
		return err
	}
	_, err = d.r.Write(base+9, v&^0x3f|vcocap)
	return err
}

// RegValue is one register read by DumpRegisters.
type RegValue struct {
	Addr  uint8
	Value uint8
}

// DumpSet is the list of registers read by DumpRegisters.
var DumpSet = [...]uint8{
	// Top level.
	0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0e, 0x0f,
	// TX PLL.
	0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f,
	// RX PLL.
	0x20, 0x21, 0x22, 0x23, 0x24, 0x25, 0x26, 0x27, 0x28, 0x29, 0x2a, 0x2b, 0x2c, 0x2d, 0x2e, 0x2f,
	// TX LPF.
	0x30, 0x31, 0x32, 0x33, 0x34, 0x35, 0x36,
	// TX RF.
	0x40, 0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48, 0x49, 0x4a, 0x4b, 0x4c, 0x4d, 0x4e, 0x4f,
	// RX LPF, ADC and DAC.
	0x50, 0x51, 0x52, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59, 0x5a, 0x5b, 0x5c, 0x5d, 0x5e, 0x5f,
	// RX VGA2.
	0x60, 0x61, 0x62, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68,
	// RX FE.
	0x70, 0x71, 0x72, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79, 0x7a, 0x7b, 0x7c,
}

// DumpRegisters reads all the documented registers.
func (d *Dev) DumpRegisters() ([]RegValue, error) {
	out := make([]RegValue, 0, len(DumpSet))
	for _, a := range DumpSet {
		v, err := d.r.Read(a)
		if err != nil {
			return out, err
		}
		out = append(out, RegValue{Addr: a, Value: v})
	}
	return out, nil
}

// pllBase returns the first register of the PLL of a module.
func pllBase(mod bladerf.Module) uint8 {
	if mod == bladerf.RX {
		return 0x20
	}
	return 0x10
}

var _ fmt.Stringer = &Dev{}
