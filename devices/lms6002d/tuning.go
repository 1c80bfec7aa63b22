// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lms6002d

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"periph.io/x/bladerf"
)

// Tuning range and reference.
const (
	RefClock = 38400000
	FreqMin  = 237500000
	FreqMax  = 3800000000

	// Below this frequency the low band PLL output buffer is used.
	bandHigh = 1500000000
)

// VCOCAP search constants.
const (
	MaxVCOCAP = 63

	vcocapEstMin = 15
	vcocapEstMax = 55
	// Largest distance seen between the HIGH and LOW limits.
	maxLowHigh    = 12
	maxIterations = 20
	maxRetries    = 15
)

// VCO ranges.
const (
	vco4Low  = 3800000000
	vco4High = 4535000000
	vco3High = 5408000000
	vco2High = 6480000000
	vco1High = 7600000000
)

// FREQSEL fields.
const (
	selVCO4 = 4 << 3
	selVCO3 = 5 << 3
	selVCO2 = 6 << 3
	selVCO1 = 7 << 3

	div2  = 4
	div4  = 5
	div8  = 6
	div16 = 7
)

type band struct {
	low, high uint64
	freqsel   uint8
}

// bands is searched in order, the first match wins. The last entry, listed as
// 3.72GHz in the programming guide, is usable up to 3.8GHz.
var bands = [16]band{
	{FreqMin, vco4High / 16, selVCO4 | div16},
	{vco4High / 16, vco3High / 16, selVCO3 | div16},
	{vco3High / 16, vco2High / 16, selVCO2 | div16},
	{vco2High / 16, vco1High / 16, selVCO1 | div16},
	{vco4Low / 8, vco4High / 8, selVCO4 | div8},
	{vco4High / 8, vco3High / 8, selVCO3 | div8},
	{vco3High / 8, vco2High / 8, selVCO2 | div8},
	{vco2High / 8, vco1High / 8, selVCO1 | div8},
	{vco4Low / 4, vco4High / 4, selVCO4 | div4},
	{vco4High / 4, vco3High / 4, selVCO3 | div4},
	{vco3High / 4, vco2High / 4, selVCO2 | div4},
	{vco2High / 4, vco1High / 4, selVCO1 | div4},
	{vco4Low / 2, vco4High / 2, selVCO4 | div2},
	{vco4High / 2, vco3High / 2, selVCO3 | div2},
	{vco3High / 2, vco2High / 2, selVCO2 | div2},
	{vco2High / 2, FreqMax, selVCO1 | div2},
}

// Flags modify how a Freq is programmed.
type Flags uint8

const (
	// FlagLowBand selects the low band PLL output buffer.
	FlagLowBand Flags = 1 << 0
	// FlagForceVCOCAP uses the VCOCAP as-is instead of as the starting point
	// of the search. Retuning is faster, with potentially worse phase noise.
	FlagForceVCOCAP Flags = 1 << 1
)

// Freq is the PLL configuration for one frequency.
type Freq struct {
	Freqsel uint8  // VCO and divider selection
	VCOCAP  uint8  // VCOCAP estimate
	Nint    uint16 // Integer part of the N divider
	Nfrac   uint32 // Fractional part of the N divider, in 1/2^23
	X       uint8  // VCO division ratio
	Flags   Flags
	// VCOCAPResult is the VCOCAP code the search converged to, 0xff until
	// programmed.
	VCOCAPResult uint8
}

func (f *Freq) String() string {
	return fmt.Sprintf("{freqsel:%#02x vcocap:%d nint:%d nfrac:%d x:%d flags:%d}", f.Freqsel, f.VCOCAP, f.Nint, f.Nfrac, f.X, f.Flags)
}

// Hz returns the frequency f programs.
func (f *Freq) Hz() uint64 {
	return FrequencyToHz(f)
}

// CalculateTuningParams returns the PLL configuration for hz.
//
// hz is clamped to [FreqMin, FreqMax].
func CalculateTuningParams(hz uint64) (Freq, error) {
	if hz < FreqMin {
		hz = FreqMin
	} else if hz > FreqMax {
		hz = FreqMax
	}
	var b *band
	for i := range bands {
		if hz >= bands[i].low && hz <= bands[i].high {
			b = &bands[i]
			break
		}
	}
	if b == nil {
		return Freq{}, fmt.Errorf("lms6002d: no band for %dHz: %w", hz, bladerf.ErrRange)
	}
	f := Freq{Freqsel: b.freqsel, VCOCAP: estimateVCOCAP(hz, b.low, b.high), VCOCAPResult: 0xff}
	x := uint64(1) << ((b.freqsel & 7) - 3)
	f.X = uint8(x)
	nint := x * hz / RefClock
	f.Nint = uint16(nint)
	// Round half up.
	f.Nfrac = uint32(((1<<23)*(x*hz-nint*RefClock) + RefClock/2) / RefClock)
	if hz < bandHigh {
		f.Flags |= FlagLowBand
	}
	return f, nil
}

// estimateVCOCAP linearly interpolates the VCOCAP code across a band, from
// the experimentally determined mean limits.
func estimateVCOCAP(hz, low, high uint64) uint8 {
	denom := float32(high - low)
	diff := float32(hz - low)
	v := uint32(float32(vcocapEstMax-vcocapEstMin)/denom*diff + 0.5 + vcocapEstMin)
	if v > MaxVCOCAP {
		return MaxVCOCAP
	}
	return uint8(v)
}

// FrequencyToHz returns the frequency programmed by f, rounded to the
// nearest Hz.
func FrequencyToHz(f *Freq) uint64 {
	div := uint64(f.X) << 23
	if div == 0 {
		return 0
	}
	return (RefClock*(uint64(f.Nint)<<23+uint64(f.Nfrac)) + div/2) / div
}

// SetFrequency tunes the PLL of a module to hz.
func (d *Dev) SetFrequency(mod bladerf.Module, hz uint64) (Freq, error) {
	f, err := CalculateTuningParams(hz)
	if err != nil {
		return f, err
	}
	if hz < FreqMin || hz > FreqMax {
		d.log.Info("clamped frequency", zap.Uint64("requested", hz), zap.Uint64("actual", f.Hz()))
	}
	d.log.Debug("tuning", zap.Stringer("module", mod), zap.Stringer("freq", &f))
	err = d.SetPrecalculatedFrequency(mod, &f)
	return f, err
}

// SetPrecalculatedFrequency programs f in the PLL of a module, then searches
// for the best VCOCAP unless FlagForceVCOCAP is set.
//
// On success, f.VCOCAPResult is updated.
func (d *Dev) SetPrecalculatedFrequency(mod bladerf.Module, f *Freq) error {
	f.VCOCAPResult = 0xff
	if f.VCOCAP > MaxVCOCAP {
		return fmt.Errorf("lms6002d: VCOCAP %d > %d: %w", f.VCOCAP, MaxVCOCAP, bladerf.ErrRange)
	}
	// Turn on the DSMs.
	if err := d.r.Set(0x09, 0x05); err != nil {
		return err
	}
	p, err := d.program(mod, f)
	if err != nil {
		d.abort()
		d.observe(mod, 0xff, err)
		return err
	}
	if f.Flags&FlagForceVCOCAP != 0 {
		f.VCOCAPResult = f.VCOCAP
		d.observe(mod, f.VCOCAPResult, nil)
		return nil
	}
	v, err := p.tune(f.VCOCAP)
	if err != nil {
		// The PLL is left programmed when the search itself gave up.
		if !errors.Is(err, bladerf.ErrConvergence) && !errors.Is(err, bladerf.ErrInvalidState) {
			d.abort()
		}
		d.observe(mod, 0xff, err)
		return err
	}
	f.VCOCAPResult = v
	d.observe(mod, v, nil)
	return nil
}

// GetFrequency reads back the PLL configuration of a module.
func (d *Dev) GetFrequency(mod bladerf.Module) (Freq, error) {
	base := pllBase(mod)
	var r [10]uint8
	for _, i := range [...]uint8{0, 1, 2, 3, 5, 9} {
		v, err := d.r.Read(base + i)
		if err != nil {
			return Freq{}, err
		}
		r[i] = v
	}
	f := Freq{
		Nint:    uint16(r[0])<<1 | uint16(r[1]>>7),
		Nfrac:   uint32(r[1]&0x7f)<<16 | uint32(r[2])<<8 | uint32(r[3]),
		Freqsel: r[5] >> 2,
		VCOCAP:  r[9] & 0x3f,
	}
	f.VCOCAPResult = f.VCOCAP
	if f.Freqsel&7 >= 3 {
		f.X = 1 << ((f.Freqsel & 7) - 3)
	}
	if r[5]&3 == 1 {
		f.Flags |= FlagLowBand
	}
	return f, nil
}

// program writes everything but the VCOCAP search.
func (d *Dev) program(mod bladerf.Module, f *Freq) (*pll, error) {
	base := pllBase(mod)
	v, err := d.r.Read(base + 9)
	if err != nil {
		return nil, err
	}
	// Bits 7:6 hold VOVCOREG and must be kept.
	p := &pll{d: d, mod: mod, base: base, state: v &^ 0x3f}
	if err = p.write(f.VCOCAP); err != nil {
		return nil, err
	}
	if err = d.writePLLConfig(mod, f.Freqsel, f.Flags&FlagLowBand != 0); err != nil {
		return nil, err
	}
	nbase := base
	if d.atomic {
		nbase |= 0x80
	}
	for i, v := range [...]uint8{
		uint8(f.Nint >> 1),
		uint8(f.Nint&1)<<7 | uint8(f.Nfrac>>16)&0x7f,
		uint8(f.Nfrac >> 8),
		uint8(f.Nfrac),
	} {
		if _, err = d.r.Write(nbase+uint8(i), v); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (d *Dev) writePLLConfig(mod bladerf.Module, freqsel uint8, lowBand bool) error {
	addr := pllBase(mod) + 5
	v, err := d.r.Read(addr)
	if err != nil {
		return err
	}
	l, err := d.Loopback()
	if err != nil {
		return err
	}
	if l == LoopbackNone {
		// Select the PLL output buffer.
		selout := uint8(2)
		if lowBand {
			selout = 1
		}
		v = freqsel<<2 | selout
	} else {
		// The output buffer is owned by the loopback configuration.
		v = v&^0xfc | freqsel<<2
	}
	_, err = d.r.Write(addr, v)
	return err
}

// abort turns the DSMs off after a register failure. The caller returns its
// own error so the cleanup error is only logged.
func (d *Dev) abort() {
	if err := d.dsmOff(); err != nil {
		d.log.Error("failed to turn off the DSMs", zap.Error(err))
	}
}

func (d *Dev) dsmOff() error {
	v, err := d.r.Read(0x09)
	if err != nil {
		return err
	}
	_, err = d.r.Write(0x09, v&^0x05)
	return err
}

func (d *Dev) observe(mod bladerf.Module, vcocap uint8, err error) {
	if d.obs != nil {
		d.obs.ObserveTune(mod, vcocap, err)
	}
}

// ConvergenceError is returned when the VCOCAP search cannot settle in the
// VTUNE NORM region.
type ConvergenceError struct {
	Op     string
	VCOCAP uint8
	VTune  VTune
}

func (e *ConvergenceError) Error() string {
	return fmt.Sprintf("lms6002d: %s failed to converge (VCOCAP=%d, VTUNE=%s)", e.Op, e.VCOCAP, e.VTune)
}

// Is matches bladerf.ErrConvergence.
func (e *ConvergenceError) Is(target error) bool {
	return target == bladerf.ErrConvergence
}

// pll is one PLL during a tuning operation.
type pll struct {
	d     *Dev
	mod   bladerf.Module
	base  uint8
	state uint8 // Upper bits of register base+9.
}

func (p *pll) write(vcocap uint8) error {
	_, err := p.d.r.Write(p.base+9, vcocap|p.state)
	return err
}

func (p *pll) vtune() (VTune, error) {
	v, err := p.d.r.Read(p.base + 10)
	return VTune(v >> 6), err
}

// step writes vcocap and returns the resulting VTUNE.
func (p *pll) step(vcocap uint8) (VTune, error) {
	if err := p.write(vcocap); err != nil {
		return 0, err
	}
	return p.vtune()
}

// tune searches the VCOCAP code in the middle of the NORM region. The
// estimate must already be written.
//
// Increasing VCOCAP lowers VTUNE:
//
//	VCOCAP=0                          VCOCAP=63
//	|----HIGH-----[  NORM  ]----LOW----|
func (p *pll) tune(est uint8) (uint8, error) {
	log := p.d.log
	vt, err := p.vtune()
	if err != nil {
		return 0, err
	}
	high, low := uint8(MaxVCOCAP), uint8(0)
	switch vt {
	case VTuneHigh:
		log.Debug("estimate HIGH, walking up to NORM", zap.Uint8("vcocap", est))
		high, err = p.highToNorm(est)
	case VTuneNorm:
		log.Debug("estimate NORM, walking down to HIGH", zap.Uint8("vcocap", est))
		high, err = p.normToHigh(est)
	case VTuneLow:
		log.Debug("estimate LOW, walking down to NORM", zap.Uint8("vcocap", est))
		low, err = p.lowToNorm(est)
	}
	if err != nil {
		return 0, err
	}

	if high != MaxVCOCAP {
		// The HIGH limit is known, jump past the LOW limit and walk back.
		if vt != VTuneNorm && vt != VTuneHigh {
			return 0, fmt.Errorf("lms6002d: VTUNE %s after finding the HIGH limit: %w", vt, bladerf.ErrInvalidState)
		}
		v := high + maxLowHigh
		if v > MaxVCOCAP {
			v = MaxVCOCAP
			log.Debug("clamping VCOCAP", zap.Uint8("vcocap", v))
		}
		if err = p.write(v); err != nil {
			return 0, err
		}
		if v, err = p.waitFor(VTuneLow, v); err != nil {
			return 0, err
		}
		if low, err = p.lowToNorm(v); err != nil {
			return 0, err
		}
	} else {
		// The LOW limit is known, jump below the HIGH limit and walk back.
		if vt != VTuneLow && vt != VTuneNorm {
			return 0, fmt.Errorf("lms6002d: VTUNE %s after finding the LOW limit: %w", vt, bladerf.ErrInvalidState)
		}
		v := 0
		if i := int(low) - maxLowHigh; i > 0 {
			v = i
		} else {
			log.Debug("clamping VCOCAP", zap.Int("vcocap", v))
		}
		w := uint8(v)
		if err = p.write(w); err != nil {
			return 0, err
		}
		if w, err = p.waitFor(VTuneHigh, w); err != nil {
			return 0, err
		}
		if high, err = p.highToNorm(w); err != nil {
			return 0, err
		}
	}

	vcocap := uint8(int(high) + (int(low)-int(high))/2)
	log.Debug("VTUNE limits", zap.Uint8("low", low), zap.Uint8("norm", vcocap), zap.Uint8("estimate", est), zap.Uint8("high", high))
	vt, err = p.step(vcocap)
	if err != nil {
		return 0, err
	}
	if vt != VTuneNorm {
		return 0, &ConvergenceError{Op: "final VCOCAP", VCOCAP: vcocap, VTune: vt}
	}
	return vcocap, nil
}

// highToNorm increments VCOCAP until VTUNE reads NORM and returns the last
// code reading HIGH.
func (p *pll) highToNorm(vcocap uint8) (uint8, error) {
	vt := VTuneHigh
	for i := 0; i < maxIterations; i++ {
		if vcocap >= MaxVCOCAP {
			p.d.log.Debug("VCOCAP hit max value", zap.String("op", "high to norm"))
			return MaxVCOCAP, nil
		}
		vcocap++
		var err error
		if vt, err = p.step(vcocap); err != nil {
			return 0, err
		}
		if vt == VTuneNorm {
			p.d.log.Debug("VTUNE NORM", zap.Uint8("vcocap", vcocap))
			return vcocap - 1, nil
		}
	}
	return 0, &ConvergenceError{Op: "VTUNE high to norm", VCOCAP: vcocap, VTune: vt}
}

// normToHigh decrements VCOCAP until VTUNE reads HIGH and returns this code.
func (p *pll) normToHigh(vcocap uint8) (uint8, error) {
	vt := VTuneNorm
	for i := 0; i < maxIterations; i++ {
		if vcocap == 0 {
			p.d.log.Debug("VCOCAP hit min value", zap.String("op", "norm to high"))
			return 0, nil
		}
		vcocap--
		var err error
		if vt, err = p.step(vcocap); err != nil {
			return 0, err
		}
		if vt == VTuneHigh {
			p.d.log.Debug("VTUNE HIGH", zap.Uint8("vcocap", vcocap))
			return vcocap, nil
		}
	}
	return 0, &ConvergenceError{Op: "VTUNE norm to high", VCOCAP: vcocap, VTune: vt}
}

// lowToNorm decrements VCOCAP until VTUNE reads NORM and returns the last
// code reading LOW.
func (p *pll) lowToNorm(vcocap uint8) (uint8, error) {
	vt := VTuneLow
	for i := 0; i < maxIterations; i++ {
		if vcocap == 0 {
			p.d.log.Debug("VCOCAP hit min value", zap.String("op", "low to norm"))
			return 0, nil
		}
		vcocap--
		var err error
		if vt, err = p.step(vcocap); err != nil {
			return 0, err
		}
		if vt == VTuneNorm {
			p.d.log.Debug("VTUNE NORM", zap.Uint8("vcocap", vcocap))
			return vcocap + 1, nil
		}
	}
	return 0, &ConvergenceError{Op: "VTUNE low to norm", VCOCAP: vcocap, VTune: vt}
}

// waitFor polls VTUNE until it reads target, then walks VCOCAP towards the
// matching end of the range. It returns the VCOCAP code written last.
//
// Not reaching target is not an error.
func (p *pll) waitFor(target VTune, vcocap uint8) (uint8, error) {
	for i := 0; i < maxRetries; i++ {
		vt, err := p.vtune()
		if err != nil {
			return vcocap, err
		}
		if vt == target {
			p.d.log.Debug("VTUNE reached", zap.Stringer("vtune", target), zap.Int("iteration", i))
			return vcocap, nil
		}
	}
	limit := uint8(MaxVCOCAP)
	if target == VTuneHigh {
		limit = 0
	}
	p.d.log.Debug("timed out waiting for VTUNE, walking VCOCAP", zap.Stringer("vtune", target))
	for vcocap != limit {
		if target == VTuneHigh {
			vcocap--
		} else {
			vcocap++
		}
		vt, err := p.step(vcocap)
		if err != nil {
			return vcocap, err
		}
		if vt == target {
			return vcocap, nil
		}
	}
	p.d.log.Warn("VTUNE did not reach its target, tuning may not be nominal", zap.Stringer("module", p.mod), zap.Stringer("vtune", target))
	return vcocap, nil
}

var _ error = &ConvergenceError{}
