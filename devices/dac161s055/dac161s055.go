// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package dac161s055 controls the TI DAC161S055 that trims the VCTCXO of the
// bladeRF x40/x115.
//
// Datasheet
//
// https://www.ti.com/lit/ds/symlink/dac161s055.pdf
package dac161s055 // import "periph.io/x/bladerf/devices/dac161s055"

// Regs is the register interface of the DAC, as provided by nios.Reg16.
type Regs interface {
	Write(addr uint8, data uint16) (uint16, error)
}

// Registers.
const (
	regDACA   = 0x08
	regConfig = 0x28
)

// New returns a handle to the DAC reachable via r.
func New(r Regs) *Dev {
	return &Dev{r: r}
}

// Dev is a handle to the DAC161S055.
type Dev struct {
	r Regs
}

func (d *Dev) String() string {
	return "dac161s055"
}

// Write sets the DAC output code and returns the value echoed by the
// device.
//
// 0 is the lowest frequency of the VCTCXO, 0xffff the highest.
func (d *Dev) Write(value uint16) (uint16, error) {
	// Enable the output with the default configuration.
	if _, err := d.r.Write(regConfig, 0); err != nil {
		return 0, err
	}
	return d.r.Write(regDACA, value)
}
