// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bladerf1

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
	"periph.io/x/bladerf"
	"periph.io/x/bladerf/usbbus"
	"periph.io/x/periph/conn/physic"
)

// FPGA configuration GPIO bits.
const (
	GPIOLMSRXEnable   uint32 = 1 << 1
	GPIOLMSTXEnable   uint32 = 1 << 2
	GPIOTXHBEnable    uint32 = 1 << 3
	GPIOTXLBEnable    uint32 = 2 << 3
	GPIORXHBEnable    uint32 = 1 << 5
	GPIORXLBEnable    uint32 = 2 << 5
	GPIOSmallDMAXfer  uint32 = 1 << 7 // 256 cycles DMA transfers, for High Speed
	GPIOCounterEnable uint32 = 1 << 9
	GPIOTimestamp     uint32 = 1 << 16
	GPIOTimestampDiv2 uint32 = 1 << 17
	GPIOAGCEnable     uint32 = 1 << 18
	GPIOPacket        uint32 = 1 << 19
	GPIO8BitMode      uint32 = 1 << 20
	GPIOPacketCore    uint32 = 1 << 28 // Read only
)

// gpioDefault enables the LMS6002D and selects the low band.
const gpioDefault = 0x57

// ConfigGPIORead reads the FPGA configuration GPIO.
func (d *Dev) ConfigGPIORead() (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gpio.Read(0)
}

// ConfigGPIOWrite writes the FPGA configuration GPIO.
//
// GPIOSmallDMAXfer is managed according to the USB link speed.
func (d *Dev) ConfigGPIOWrite(v uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.configGPIOWrite(v)
}

func (d *Dev) configGPIOWrite(v uint32) error {
	switch d.speed {
	case usbbus.SpeedHigh:
		v |= GPIOSmallDMAXfer
	case usbbus.SpeedSuper:
		v &^= GPIOSmallDMAXfer
	default:
		d.log.Warn("unknown USB speed, DMA transfer size left as-is")
	}
	_, err := d.gpio.Write(0, v)
	return err
}

// GainMode is the RX gain control mode.
type GainMode uint8

const (
	// GainDefault enables the FPGA automatic gain control.
	GainDefault GainMode = iota
	// GainManual leaves the gain to the application.
	GainManual
)

func (g GainMode) String() string {
	switch g {
	case GainDefault:
		return "default"
	case GainManual:
		return "manual"
	default:
		return fmt.Sprintf("GainMode(%d)", uint8(g))
	}
}

// SetGainMode sets the gain control mode. Only RX is supported.
func (d *Dev) SetGainMode(mod bladerf.Module, mode GainMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setGainMode(mod, mode)
}

func (d *Dev) setGainMode(mod bladerf.Module, mode GainMode) error {
	if mod != bladerf.RX {
		return fmt.Errorf("bladerf1: gain mode on %s: %w", mod, errors.ErrUnsupported)
	}
	v, err := d.gpio.Read(0)
	if err != nil {
		return err
	}
	switch mode {
	case GainDefault:
		v |= GPIOAGCEnable
	case GainManual:
		v &^= GPIOAGCEnable
	default:
		return fmt.Errorf("bladerf1: gain mode %s: %w", mode, bladerf.ErrRange)
	}
	return d.configGPIOWrite(v)
}

// Initialize brings a freshly configured FPGA to a known state: LMS6002D
// enabled with both front ends off, sample rates at 1MHz, TX at 2.447GHz and
// RX at 2.484GHz, VCTCXO trimmed and AGC enabled.
//
// Nothing is done if the configuration GPIO shows the device was already
// initialized.
func (d *Dev) Initialize() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cfg, err := d.gpio.Read(0)
	if err != nil {
		return err
	}
	if cfg&0x7f != 0 {
		d.log.Info("already initialized", zap.Uint32("gpio", cfg))
		return nil
	}
	d.log.Info("initializing", zap.Uint32("gpio", cfg))
	if err := d.configGPIOWrite(gpioDefault); err != nil {
		return err
	}
	if err := d.lms.EnableRFFE(bladerf.TX, false); err != nil {
		return err
	}
	if err := d.lms.EnableRFFE(bladerf.RX, false); err != nil {
		return err
	}
	for _, r := range [...]struct{ addr, v uint8 }{
		{0x05, 0x3e}, // Enable RX and TX
		{0x47, 0x40}, // Improve TX spurious emission
		{0x59, 0x29}, // Improve ADC performance
		{0x64, 0x36}, // ADC common mode voltage
		{0x79, 0x37}, // Higher LNA gain
	} {
		if _, err := d.lmsRegs.Write(r.addr, r.v); err != nil {
			return err
		}
	}
	// Power down the DC calibration comparators, they introduce artifacts.
	for _, r := range [...]struct{ addr, mask uint8 }{
		{0x3f, 0x80}, // TX LPF
		{0x5f, 0x80}, // RX LPF
		{0x6e, 0xc0}, // RXVGA2A/B
	} {
		if err := d.lmsRegs.Set(r.addr, r.mask); err != nil {
			return err
		}
	}
	if err := d.lms.ConfigChargePumps(bladerf.TX); err != nil {
		return err
	}
	if err := d.lms.ConfigChargePumps(bladerf.RX); err != nil {
		return err
	}
	for _, mod := range [...]bladerf.Module{bladerf.TX, bladerf.RX} {
		if _, err := d.si.SetSampleRate(mod, 1000000); err != nil {
			return err
		}
	}
	if _, err := d.setFrequency(bladerf.TX, 2447*physic.MegaHertz); err != nil {
		return err
	}
	if _, err := d.setFrequency(bladerf.RX, 2484*physic.MegaHertz); err != nil {
		return err
	}
	if _, err := d.dac.Write(d.opts.DACTrim); err != nil {
		return err
	}
	return d.setGainMode(bladerf.RX, GainDefault)
}
