// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lms6002d

import (
	"go.uber.org/zap"
	"periph.io/x/bladerf"
)

// Sweep is the VTUNE state for every VCOCAP code.
type Sweep [MaxVCOCAP + 1]VTune

// Norm returns the first and last VCOCAP codes reading NORM.
func (s *Sweep) Norm() (first, last uint8, ok bool) {
	for i, v := range s {
		if v != VTuneNorm {
			continue
		}
		if !ok {
			first, ok = uint8(i), true
		}
		last = uint8(i)
	}
	return first, last, ok
}

// Sweep writes every VCOCAP code to the PLL of a module and records the
// VTUNE state. The previous VCOCAP register value is restored afterward.
//
// The PLL must already be programmed, usually with SetFrequency.
func (d *Dev) Sweep(mod bladerf.Module) (Sweep, error) {
	var s Sweep
	base := pllBase(mod)
	orig, err := d.r.Read(base + 9)
	if err != nil {
		return s, err
	}
	p := &pll{d: d, mod: mod, base: base, state: orig &^ 0x3f}
	for i := range s {
		if s[i], err = p.step(uint8(i)); err != nil {
			break
		}
	}
	if _, err2 := d.r.Write(base+9, orig); err2 != nil {
		if err == nil {
			return s, err2
		}
		d.log.Error("failed to restore VCOCAP", zap.Error(err2))
	}
	return s, err
}
