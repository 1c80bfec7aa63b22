// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package niostest

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/bladerf/nios"
)

// Reject can be returned by Device.Fail to make the device answer with the
// success flag cleared.
var Reject = errors.New("niostest: reject")

// VTune comparator states, as found in bits 7:6 of the LMS6002D VTUNE
// register.
const (
	VTuneNorm uint8 = 0
	VTuneLow  uint8 = 1
	VTuneHigh uint8 = 2
)

// Window is the range of VCOCAP codes for which the LMS6002D VTUNE
// comparator reads NORM. Codes below read HIGH, codes above read LOW.
type Window struct {
	Low  uint8
	High uint8
}

// Device implements nios.Transport and simulates the registers reachable
// through the bladeRF x40/x115 FPGA.
type Device struct {
	// Fail, if set, is called for every request before it is processed. A
	// non-nil error is returned as-is by Exchange, except Reject which
	// produces a response without the success flag.
	Fail func(p nios.Packet) error
	// VTune, if set, overrides the Norm window model. base is 0x10 for TX and
	// 0x20 for RX.
	VTune func(base, vcocap uint8) uint8
	// Norm is the VTUNE model per PLL base address.
	Norm map[uint8]Window

	mu        sync.Mutex
	LMS       [128]uint8
	SI5338    [256]uint8
	Control   uint32
	Version   uint32
	DAC       [256]uint16
	IQ        [4]uint16
	AGC       [6]uint16
	Timestamp [2]uint64
	requests  []nios.Packet
}

// NewDevice returns a freshly powered on device running FPGA v0.11.0.
func NewDevice() *Device {
	return &Device{
		Norm:    map[uint8]Window{0x10: {Low: 24, High: 34}, 0x20: {Low: 24, High: 34}},
		Version: 0x000b0000,
	}
}

// Requests returns all the requests received so far.
func (d *Device) Requests() []nios.Packet {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]nios.Packet, len(d.requests))
	copy(out, d.requests)
	return out
}

// Writes returns the write requests received so far for one target.
func (d *Device) Writes(c nios.Class, target uint8) []nios.Packet {
	var out []nios.Packet
	for _, p := range d.Requests() {
		if p.Class == c && p.Target == target && p.Flags.Write() {
			out = append(out, p)
		}
	}
	return out
}

// Reset forgets the recorded requests.
func (d *Device) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = nil
}

// Exchange implements nios.Transport.
func (d *Device) Exchange(out, in uint8, req nios.Frame) (nios.Frame, error) {
	c, ok := nios.ClassOf(req[0])
	if !ok {
		return nios.Frame{}, fmt.Errorf("niostest: unknown magic %#02x", req[0])
	}
	p, err := nios.Parse(c, req)
	if err != nil {
		return nios.Frame{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, p)
	resp := p
	resp.Flags |= nios.FlagSuccess
	if d.Fail != nil {
		if err := d.Fail(p); errors.Is(err, Reject) {
			resp.Flags &^= nios.FlagSuccess
			return resp.Build()
		} else if err != nil {
			return nios.Frame{}, err
		}
	}
	if v, ok := d.access(&p); ok {
		resp.Data = v
	} else {
		resp.Flags &^= nios.FlagSuccess
	}
	return resp.Build()
}

// VTuneOf returns the comparator state for a VCOCAP code on the PLL at base.
func (d *Device) VTuneOf(base, vcocap uint8) uint8 {
	if d.VTune != nil {
		return d.VTune(base, vcocap)
	}
	w, ok := d.Norm[base]
	if !ok {
		return VTuneNorm
	}
	switch {
	case vcocap < w.Low:
		return VTuneHigh
	case vcocap > w.High:
		return VTuneLow
	default:
		return VTuneNorm
	}
}

// access must be called with mu held.
func (d *Device) access(p *nios.Packet) (uint64, bool) {
	w := p.Flags.Write()
	switch p.Class {
	case nios.Class8x8:
		switch p.Target {
		case nios.Target8x8LMS6:
			// Bit 7 selects the FPGA's multi register write; it maps to the same
			// register file.
			a := uint8(p.Addr) & 0x7f
			if w {
				d.LMS[a] = uint8(p.Data)
				return p.Data, true
			}
			if a == 0x1a || a == 0x2a {
				base := a - 10
				v := d.VTuneOf(base, d.LMS[base+9]&0x3f)
				return uint64(v<<6 | d.LMS[a]&0x3f), true
			}
			return uint64(d.LMS[a]), true
		case nios.Target8x8SI5338:
			if w {
				d.SI5338[p.Addr] = uint8(p.Data)
				return p.Data, true
			}
			return uint64(d.SI5338[p.Addr]), true
		}
	case nios.Class8x16:
		var regs []uint16
		switch p.Target {
		case nios.Target8x16VCTCXODAC:
			regs = d.DAC[:]
		case nios.Target8x16IQCorr:
			regs = d.IQ[:]
		case nios.Target8x16AGCCorr:
			regs = d.AGC[:]
		}
		if int(p.Addr) >= len(regs) {
			return 0, false
		}
		if w {
			regs[p.Addr] = uint16(p.Data)
			return p.Data, true
		}
		return uint64(regs[p.Addr]), true
	case nios.Class8x32:
		switch p.Target {
		case nios.Target8x32Version:
			if w {
				return 0, false
			}
			return uint64(d.Version), true
		case nios.Target8x32Control:
			if p.Addr != 0 {
				return 0, false
			}
			if w {
				d.Control = uint32(p.Data)
				return p.Data, true
			}
			return uint64(d.Control), true
		}
	case nios.Class8x64:
		if p.Target == nios.Target8x64Timestamp && !w && p.Addr < 2 {
			return d.Timestamp[p.Addr], true
		}
	}
	return 0, false
}

var _ nios.Transport = &Device{}
