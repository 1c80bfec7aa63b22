// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package hostextra loads the bladeRF drivers for the host itself.
//
// The host is the machine where this code is running; the bladeRF is
// connected to it over USB. Contrary to periph.io/x/periph/host, hostextra
// loads drivers that depend on third party Go packages and on cgo.
package hostextra
