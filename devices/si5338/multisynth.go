// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package si5338

import (
	"fmt"
	"math"
	"math/bits"

	"periph.io/x/bladerf"
)

// FVCO is the frequency of the Si5338 VCO as configured on the bladeRF: the
// 38.4MHz reference multiplied by 66.
const FVCO = 38400000 * 66

// Multisynth divider bounds.
const (
	MinA = 8
	MaxA = 567
	MaxR = 32
)

// MaxDen is the largest reduced denominator accepted in a requested rate, so
// that FVCO*Den fits in 64 bits.
const MaxDen = math.MaxUint64 / FVCO

// Multisynth is one output stage of the Si5338.
//
// fout = FVCO / (A + B/C) / R
type Multisynth struct {
	Index  uint8 // 0 to 3
	Base   uint8 // Address of Regs[0]
	Enable uint8 // Output enables, EnableA and/or EnableB

	A, B, C uint32
	R       uint32 // Power of 2, 1 to 32

	P1, P2, P3 uint32
	Regs       [10]uint8
}

// BaseOf returns the register address of the parameters of a multisynth.
func BaseOf(index uint8) uint8 {
	return 53 + index*11
}

// halved reports if the output feeds the LMS6002D, which samples at half the
// clock rate.
func halved(index uint8) bool {
	return index == 1 || index == 2
}

// CalculateMultisynth solves (a, b, c, r) for rate on multisynth index and
// packs the result.
func CalculateMultisynth(index uint8, rate Rate) (Multisynth, error) {
	m := Multisynth{Index: index, Base: BaseOf(index)}
	if rate.Den == 0 {
		return m, fmt.Errorf("si5338: rate %d+%d/0: %w", rate.Integer, rate.Num, bladerf.ErrRange)
	}
	req := rate.Reduce()
	if req.Den > MaxDen {
		return m, &RangeError{What: "rate denominator", Value: req.Den, Min: 1, Max: MaxDen}
	}
	if halved(index) {
		req = req.Double()
	}
	// The multisynth output must be at least 5MHz, the R divider takes care of
	// the rest.
	r := uint32(1)
	for req.Integer < 5000000 && r < MaxR {
		req = req.Double()
		r <<= 1
	}
	hi, den := bits.Mul64(req.Integer, req.Den)
	den, carry := bits.Add64(den, req.Num, 0)
	if hi != 0 || carry != 0 {
		return m, fmt.Errorf("si5338: rate %s overflows the divider computation: %w", req, bladerf.ErrRange)
	}
	if den == 0 {
		return m, &RangeError{What: "rate", Value: 0, Min: 1, Max: FVCO}
	}
	abc := Rate{Num: FVCO * req.Den, Den: den}.Reduce()
	if abc.Integer < MinA || abc.Integer > MaxA {
		return m, &RangeError{What: "multisynth divider", Value: abc.Integer, Min: MinA, Max: MaxA}
	}
	// Precision loss is accepted.
	for abc.Num > 1<<30 || abc.Den > 1<<30 {
		abc.Num >>= 1
		abc.Den >>= 1
	}
	m.A = uint32(abc.Integer)
	m.B = uint32(abc.Num)
	m.C = uint32(abc.Den)
	m.R = r
	m.Pack()
	return m, nil
}

// Pack computes (P1, P2, P3) and Regs from (A, B, C).
func (m *Multisynth) Pack() {
	a, b, c := uint64(m.A), uint64(m.B), uint64(m.C)
	m.P1 = uint32((a*c+b)*128/c - 512)
	m.P2 = uint32(b * 128 % c)
	m.P3 = m.C

	m.Regs[0] = uint8(m.P1)
	m.Regs[1] = uint8(m.P1 >> 8)
	m.Regs[2] = uint8((m.P2&0x3f)<<2) | uint8((m.P1>>16)&0x3)
	m.Regs[3] = uint8(m.P2 >> 6)
	m.Regs[4] = uint8(m.P2 >> 14)
	m.Regs[5] = uint8(m.P2 >> 22)
	m.Regs[6] = uint8(m.P3)
	m.Regs[7] = uint8(m.P3 >> 8)
	m.Regs[8] = uint8(m.P3 >> 16)
	m.Regs[9] = uint8(m.P3 >> 24)
}

// Unpack computes (P1, P2, P3) and (A, B, C) from Regs.
func (m *Multisynth) Unpack() {
	r := &m.Regs
	m.P1 = uint32(r[2]&3)<<16 | uint32(r[1])<<8 | uint32(r[0])
	m.P2 = uint32(r[5])<<22 | uint32(r[4])<<14 | uint32(r[3])<<6 | uint32(r[2]>>2)&0x3f
	m.P3 = uint32(r[9]&0x3f)<<24 | uint32(r[8])<<16 | uint32(r[7])<<8 | uint32(r[6])
	m.C = m.P3
	m.A = (m.P1 + 512) / 128
	// +64 rounds to the nearest.
	t := (uint64(m.P1)+512-128*uint64(m.A))*uint64(m.C) + uint64(m.P2)
	m.B = uint32((t + 64) / 128)
}

// Rate returns the output frequency of the multisynth.
//
// For the sample clocks, it is the sample rate, half of the clock frequency.
func (m *Multisynth) Rate() Rate {
	out := Rate{
		Num: FVCO * uint64(m.C),
		Den: uint64(m.R) * (uint64(m.A)*uint64(m.C) + uint64(m.B)),
	}
	if halved(m.Index) {
		out.Den *= 2
	}
	return out.Reduce()
}

// RangeError is returned when a request is outside the supported bounds.
type RangeError struct {
	What     string
	Value    uint64
	Min, Max uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("si5338: %s %d outside [%d, %d]", e.What, e.Value, e.Min, e.Max)
}

// Unwrap returns bladerf.ErrRange.
func (e *RangeError) Unwrap() error {
	return bladerf.ErrRange
}
