// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package nios

// USB bulk endpoints used to reach the command processor.
const (
	EndpointOut           uint8 = 0x02
	EndpointIn            uint8 = 0x82
	PeripheralEndpointOut uint8 = 0x02
	PeripheralEndpointIn  uint8 = 0x82
)

// Targets 0x80 to 0xff are reserved for user FPGA images.
const (
	TargetUser1   uint8 = 0x80
	TargetUser128 uint8 = 0xff
)

// Class8x8 targets.
const (
	Target8x8LMS6        uint8 = 0x00 // LMS6002D registers
	Target8x8SI5338      uint8 = 0x01 // Si5338 registers
	Target8x8VCTCXOTamer uint8 = 0x02
	Target8x8TXTrigger   uint8 = 0x03
	Target8x8RXTrigger   uint8 = 0x04
)

// Class8x16 targets.
const (
	Target8x16VCTCXODAC uint8 = 0x00
	Target8x16IQCorr    uint8 = 0x01
	Target8x16AGCCorr   uint8 = 0x02
	Target8x16AD56X1DAC uint8 = 0x03
	Target8x16INA219    uint8 = 0x04
)

// Target8x16IQCorr addresses.
const (
	AddrIQCorrRXGain  uint8 = 0x00
	AddrIQCorrRXPhase uint8 = 0x01
	AddrIQCorrTXGain  uint8 = 0x02
	AddrIQCorrTXPhase uint8 = 0x03
)

// Target8x16AGCCorr addresses.
const (
	AddrAGCDCQMax uint8 = 0x00
	AddrAGCDCIMax uint8 = 0x01
	AddrAGCDCQMid uint8 = 0x02
	AddrAGCDCIMid uint8 = 0x03
	AddrAGCDCQMin uint8 = 0x04
	AddrAGCDCIMin uint8 = 0x05
)

// Class8x32 targets.
const (
	Target8x32Version  uint8 = 0x00 // Read only.
	Target8x32Control  uint8 = 0x01 // FPGA configuration GPIO.
	Target8x32ADF4351  uint8 = 0x02 // Write only.
	Target8x32RFFECSR  uint8 = 0x03
	Target8x32ADF400X  uint8 = 0x04
	Target8x32Fastlock uint8 = 0x05
)

// Class8x64 targets.
const (
	Target8x64Timestamp uint8 = 0x00 // Read only.

	AddrTimestampRX uint8 = 0x00
	AddrTimestampTX uint8 = 0x01
)

// Class16x64 targets.
const (
	Target16x64AD9361 uint8 = 0x00
	Target16x64RFIC   uint8 = 0x01
)

// Class32x32 targets. For the expansion targets, the address is a bitmask.
const (
	Target32x32Exp    uint8 = 0x00
	Target32x32ExpDir uint8 = 0x01
	Target32x32ADIAXI uint8 = 0x02
	Target32x32WBMstr uint8 = 0x03
)
