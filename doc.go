// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bladerf contains the error taxonomy shared by the bladeRF packages.
//
// The driver itself lives in periph.io/x/bladerf/bladerf1. The FPGA command
// processor is reached with periph.io/x/bladerf/nios over the USB transport in
// periph.io/x/bladerf/usbbus.
//
// Setup
//
// gousb requires libusb-1.0 and cgo. On Debian, including Raspbian and
// Ubuntu, run:
//
//  sudo apt install pkg-config libusb-1.0-0-dev
//
// On MacOS, install pkg-config and libusb via Homebrew:
//
//  brew install pkgconfig libusb
//
// Permissions
//
// Accessing the device as a regular user requires an udev rule:
//
//  SUBSYSTEM=="usb", ATTR{idVendor}=="2cf0", ATTR{idProduct}=="5246", MODE="0660", GROUP="plugdev"
package bladerf // import "periph.io/x/bladerf"
