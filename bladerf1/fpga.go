// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bladerf1

import (
	"fmt"

	"periph.io/x/bladerf"
	"periph.io/x/bladerf/nios"
)

// Version is the version of the FPGA image.
type Version struct {
	Major uint8
	Minor uint8
	Patch uint16
}

func (v Version) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// AtLeast reports if v is o or later.
func (v Version) AtLeast(o Version) bool {
	if v.Major != o.Major {
		return v.Major > o.Major
	}
	if v.Minor != o.Minor {
		return v.Minor > o.Minor
	}
	return v.Patch >= o.Patch
}

// FPGAVersion returns the version of the FPGA image, as read when the handle
// was created.
func (d *Dev) FPGAVersion() Version {
	return d.fpga
}

func (d *Dev) readVersion() (Version, error) {
	v, err := d.version.Read(0)
	if err != nil {
		return Version{}, err
	}
	return Version{Major: uint8(v >> 24), Minor: uint8(v >> 16), Patch: uint16(v)}, nil
}

// IQCorrection returns the gain and phase correction applied by the FPGA to
// the samples of a module.
func (d *Dev) IQCorrection(mod bladerf.Module) (gain, phase int16, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, p := iqAddr(mod)
	v, err := d.iq.Read(g)
	if err != nil {
		return 0, 0, err
	}
	w, err := d.iq.Read(p)
	return int16(v), int16(w), err
}

// SetIQCorrection sets the gain and phase correction applied by the FPGA to
// the samples of a module.
func (d *Dev) SetIQCorrection(mod bladerf.Module, gain, phase int16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	g, p := iqAddr(mod)
	if _, err := d.iq.Write(g, uint16(gain)); err != nil {
		return err
	}
	_, err := d.iq.Write(p, uint16(phase))
	return err
}

func iqAddr(mod bladerf.Module) (gain, phase uint8) {
	if mod == bladerf.TX {
		return nios.AddrIQCorrTXGain, nios.AddrIQCorrTXPhase
	}
	return nios.AddrIQCorrRXGain, nios.AddrIQCorrRXPhase
}

// DCCorrection is a DC offset correction for I and Q.
type DCCorrection struct {
	I, Q int16
}

// SetAGCDCCorrection sets the DC offset corrections used by the AGC for each
// of its gain states.
func (d *Dev) SetAGCDCCorrection(high, mid, low DCCorrection) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range [...]struct {
		addr uint8
		v    int16
	}{
		{nios.AddrAGCDCQMax, high.Q},
		{nios.AddrAGCDCIMax, high.I},
		{nios.AddrAGCDCQMid, mid.Q},
		{nios.AddrAGCDCIMid, mid.I},
		{nios.AddrAGCDCQMin, low.Q},
		{nios.AddrAGCDCIMin, low.I},
	} {
		if _, err := d.agc.Write(r.addr, uint16(r.v)); err != nil {
			return err
		}
	}
	return nil
}

// Timestamp returns the sample counter of a module.
func (d *Dev) Timestamp(mod bladerf.Module) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	addr := nios.AddrTimestampRX
	if mod == bladerf.TX {
		addr = nios.AddrTimestampTX
	}
	return d.ts.Read(addr)
}
