// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bladerf1 implements the control plane of the Nuand bladeRF x40 and
// x115.
//
// The board is a Cypress FX3 USB 3.0 bridge, an Altera Cyclone IV FPGA running
// a NIOS II soft core, a LMS6002D transceiver, a Si5338 clock generator and a
// VCTCXO trimmed by a DAC161S055. Every chip register is reached through the
// FPGA command processor; see periph.io/x/bladerf/nios.
//
// The FPGA must already be loaded, usually by the FX3 firmware from its
// flash autoload.
//
// Usage
//
// Either open a device directly:
//
//	d, err := bladerf1.Open(nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer d.Close()
//	if err := d.Initialize(); err != nil {
//		log.Fatal(err)
//	}
//	if _, err := d.SetFrequency(bladerf.RX, 915*physic.MegaHertz); err != nil {
//		log.Fatal(err)
//	}
//
// Or load the driver with hostextra.Init() and use All().
//
// More details
//
// https://www.nuand.com/bladerf-1/
//
// https://github.com/Nuand/bladeRF/tree/master/host/libraries/libbladeRF/src/board/bladerf1
package bladerf1 // import "periph.io/x/bladerf/bladerf1"
