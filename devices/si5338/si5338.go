// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package si5338 controls the Si5338 clock generator of the bladeRF x40/x115.
//
// The Si5338 derives the LMS6002D sample clocks (multisynth 1 for RX,
// multisynth 2 for TX) and the clock on the SMB connector (multisynth 3) from
// a 2.5344GHz VCO. Frequencies are solved with rational arithmetic, so the
// rate actually programmed can differ slightly from the one requested.
//
// Datasheet
//
// https://www.skyworksinc.com/-/media/Skyworks/SL/documents/public/reference-manuals/Si5338-RM.pdf
package si5338 // import "periph.io/x/bladerf/devices/si5338"

import (
	"fmt"
	"math"
	"math/bits"

	"go.uber.org/zap"
	"periph.io/x/bladerf"
)

// Output enables.
const (
	EnableA uint8 = 0x01
	EnableB uint8 = 0x02
)

// Supported range.
const (
	SampleRateMin = 80000
	SMBFreqMin    = FVCO / (MaxR * MaxA) // 139682Hz
	SMBFreqMax    = 200000000
)

// Multisynth assignments.
const (
	indexRX  uint8 = 1
	indexTX  uint8 = 2
	indexSMB uint8 = 3
)

// BaseMode selects the address of the multisynth parameter registers.
type BaseMode uint8

const (
	// BaseFromIndex uses the addresses from the datasheet, 53+11*index.
	BaseFromIndex BaseMode = iota
	// BaseUnset writes the parameters starting at address 0. This reproduces
	// the USB traces captured from a reference host implementation, where the
	// base address was never computed. Use only to compare traces.
	BaseUnset
)

func (b BaseMode) String() string {
	if b == BaseUnset {
		return "unset"
	}
	return "index"
}

// ParseBaseMode parses "index" or "unset".
func ParseBaseMode(s string) (BaseMode, error) {
	switch s {
	case "", "index":
		return BaseFromIndex, nil
	case "unset":
		return BaseUnset, nil
	}
	return BaseFromIndex, fmt.Errorf("si5338: invalid base mode %q", s)
}

// Regs is the register interface of the Si5338, as provided by
// nios.Reg8.
type Regs interface {
	Read(addr uint8) (uint8, error)
	Write(addr, data uint8) (uint8, error)
}

// Opts holds the configuration options.
type Opts struct {
	Base   BaseMode
	Logger *zap.Logger
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{Base: BaseFromIndex}

// New returns a handle to the Si5338 reachable via r.
func New(r Regs, opts *Opts) *Dev {
	if opts == nil {
		opts = &DefaultOpts
	}
	l := opts.Logger
	if l == nil {
		l = zap.NewNop()
	}
	return &Dev{r: r, mode: opts.Base, log: l.Named("si5338")}
}

// Dev is a handle to the Si5338.
type Dev struct {
	r    Regs
	mode BaseMode
	log  *zap.Logger
}

func (d *Dev) String() string {
	return "si5338"
}

func (d *Dev) base(index uint8) uint8 {
	if d.mode == BaseUnset {
		return 0
	}
	return BaseOf(index)
}

// ReadMultisynth reads back the configuration of multisynth index.
func (d *Dev) ReadMultisynth(index uint8) (Multisynth, error) {
	m := Multisynth{Index: index, Base: d.base(index)}
	v, err := d.r.Read(36 + index)
	if err != nil {
		return m, err
	}
	m.Enable = v & 7
	for i := range m.Regs {
		if m.Regs[i], err = d.r.Read(m.Base + uint8(i)); err != nil {
			return m, err
		}
	}
	if v, err = d.r.Read(31 + index); err != nil {
		return m, err
	}
	// R is stored as a power of 2.
	m.R = 1 << ((v >> 2) & 7)
	m.Unpack()
	return m, nil
}

// WriteMultisynth programs m.
func (d *Dev) WriteMultisynth(m *Multisynth) error {
	v, err := d.r.Read(36 + m.Index)
	if err != nil {
		return err
	}
	v |= m.Enable
	if _, err = d.r.Write(36+m.Index, v); err != nil {
		return err
	}
	for i, r := range m.Regs {
		if _, err = d.r.Write(m.Base+uint8(i), r); err != nil {
			return err
		}
	}
	v = 0xc0 | uint8(bits.TrailingZeros32(m.R))<<2
	d.log.Debug("write multisynth", zap.Uint8("index", m.Index), zap.Uint8("base", m.Base), zap.Binary("regs", m.Regs[:]), zap.Uint8("r", v))
	_, err = d.r.Write(31+m.Index, v)
	return err
}

// SetRationalMultisynth programs multisynth index to rate and returns the
// rate actually achieved.
func (d *Dev) SetRationalMultisynth(index, enable uint8, rate Rate) (Rate, error) {
	m, err := CalculateMultisynth(index, rate)
	if err != nil {
		return Rate{}, err
	}
	m.Enable = enable
	m.Base = d.base(index)
	actual := m.Rate()
	if err := d.WriteMultisynth(&m); err != nil {
		return Rate{}, err
	}
	return actual, nil
}

// SetRationalSampleRate sets the sample rate of module.
func (d *Dev) SetRationalSampleRate(mod bladerf.Module, rate Rate) (Rate, error) {
	if rate.Den == 0 {
		return Rate{}, fmt.Errorf("si5338: rate %d+%d/0: %w", rate.Integer, rate.Num, bladerf.ErrRange)
	}
	rate = rate.Reduce()
	if rate.Integer < SampleRateMin {
		return Rate{}, &RangeError{What: "sample rate", Value: rate.Integer, Min: SampleRateMin, Max: math.MaxUint32}
	}
	if mod == bladerf.TX {
		return d.SetRationalMultisynth(indexTX, EnableA|EnableB, rate)
	}
	return d.SetRationalMultisynth(indexRX, EnableA, rate)
}

// SetSampleRate sets the sample rate of module and returns the rate achieved,
// truncated to an integer.
func (d *Dev) SetSampleRate(mod bladerf.Module, hz uint32) (uint32, error) {
	actual, err := d.SetRationalSampleRate(mod, Hz(uint64(hz)))
	if err != nil {
		return 0, err
	}
	if actual.Num != 0 {
		d.log.Warn("non-integer sample rate set from integer sample rate, truncating", zap.Stringer("module", mod), zap.Stringer("actual", actual))
	}
	return uint32(actual.Integer), nil
}

// GetRationalSampleRate returns the sample rate of module.
func (d *Dev) GetRationalSampleRate(mod bladerf.Module) (Rate, error) {
	index := indexRX
	if mod == bladerf.TX {
		index = indexTX
	}
	return d.rate(index)
}

// GetSampleRate returns the sample rate of module, truncated to an integer.
func (d *Dev) GetSampleRate(mod bladerf.Module) (uint32, error) {
	actual, err := d.GetRationalSampleRate(mod)
	if err != nil {
		return 0, err
	}
	if actual.Num != 0 {
		d.log.Warn("fractional sample rate truncated", zap.Stringer("module", mod), zap.Stringer("actual", actual))
	}
	return uint32(actual.Integer), nil
}

// SetRationalSmbFreq sets the frequency of the clock on the SMB connector.
func (d *Dev) SetRationalSmbFreq(rate Rate) (Rate, error) {
	if rate.Den == 0 {
		return Rate{}, fmt.Errorf("si5338: rate %d+%d/0: %w", rate.Integer, rate.Num, bladerf.ErrRange)
	}
	rate = rate.Reduce()
	if rate.Integer < SMBFreqMin || rate.Integer > SMBFreqMax || (rate.Integer == SMBFreqMax && rate.Num != 0) {
		return Rate{}, &RangeError{What: "SMB frequency", Value: rate.Integer, Min: SMBFreqMin, Max: SMBFreqMax}
	}
	return d.SetRationalMultisynth(indexSMB, EnableA, rate)
}

// SetSmbFreq sets the frequency of the clock on the SMB connector and returns
// the frequency achieved, truncated to an integer.
func (d *Dev) SetSmbFreq(hz uint32) (uint32, error) {
	actual, err := d.SetRationalSmbFreq(Hz(uint64(hz)))
	if err != nil {
		return 0, err
	}
	if actual.Num != 0 {
		d.log.Warn("non-integer SMB frequency set from integer frequency, truncating", zap.Stringer("actual", actual))
	}
	d.log.Debug("set SMB frequency", zap.Uint32("requested", hz), zap.Uint64("actual", actual.Integer))
	return uint32(actual.Integer), nil
}

// GetRationalSmbFreq returns the frequency of the clock on the SMB connector.
func (d *Dev) GetRationalSmbFreq() (Rate, error) {
	return d.rate(indexSMB)
}

// GetSmbFreq returns the frequency of the clock on the SMB connector,
// truncated to an integer.
func (d *Dev) GetSmbFreq() (uint32, error) {
	actual, err := d.GetRationalSmbFreq()
	if err != nil {
		return 0, err
	}
	if actual.Num != 0 {
		d.log.Warn("fractional SMB frequency truncated", zap.Stringer("actual", actual))
	}
	return uint32(actual.Integer), nil
}

func (d *Dev) rate(index uint8) (Rate, error) {
	m, err := d.ReadMultisynth(index)
	if err != nil {
		return Rate{}, err
	}
	if m.C == 0 {
		return Rate{}, fmt.Errorf("si5338: multisynth %d is not configured: %w", index, bladerf.ErrInvalidState)
	}
	return m.Rate(), nil
}

var _ fmt.Stringer = &Dev{}
