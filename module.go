// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bladerf

import "strconv"

// Module is one direction of the RF front end.
type Module uint8

// The values match the channel numbering of the bladeRF x40/x115, which has a
// single channel per direction.
const (
	RX Module = 0
	TX Module = 1
)

func (m Module) String() string {
	switch m {
	case RX:
		return "RX"
	case TX:
		return "TX"
	default:
		return "Module(" + strconv.Itoa(int(m)) + ")"
	}
}
