// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bladerf1

import (
	"strconv"
	"sync"

	"go.uber.org/zap"
	"periph.io/x/bladerf/usbbus"
	"periph.io/x/periph"
	"periph.io/x/periph/conn"
)

// All enumerates all the bladeRF x40/x115 found when the driver was loaded.
//
// Devices that could not be opened are returned as a placeholder whose
// String() describes the error. Use a type assertion to *Dev to use the
// others.
func All() []conn.Resource {
	mu.Lock()
	defer mu.Unlock()
	out := make([]conn.Resource, len(all))
	copy(out, all)
	return out
}

//

var (
	mu  sync.Mutex
	all []conn.Resource
)

// broken represents a device that couldn't be opened correctly.
//
// It returns an error message to help the user diagnose issues.
type broken struct {
	index int
	desc  usbbus.Desc
	err   error
}

func (b *broken) String() string {
	return "broken#" + strconv.Itoa(b.index) + "(" + b.desc.String() + "): " + b.err.Error()
}

func (b *broken) Halt() error {
	return nil
}

// Err returns the error that prevented the device from being opened.
func (b *broken) Err() error {
	return b.err
}

// driver implements periph.Driver.
type driver struct {
	scan func(vid, pid uint16) ([]usbbus.Desc, error)
	open func(desc usbbus.Desc) (*Dev, error)
}

func (d *driver) String() string {
	return "bladerf1"
}

func (d *driver) Prerequisites() []string {
	return nil
}

func (d *driver) After() []string {
	return nil
}

func (d *driver) Init() (bool, error) {
	descs, err := d.scan(VendorID, ProductID)
	if err != nil {
		return true, err
	}
	mu.Lock()
	defer mu.Unlock()
	for i, desc := range descs {
		if dev, err1 := d.open(desc); err1 == nil {
			all = append(all, dev)
		} else {
			// Create a shallow broken handle, so the user can learn how to fix the
			// problem.
			err = err1
			all = append(all, &broken{index: i, desc: desc, err: err1})
		}
	}
	return true, err
}

func openDesc(desc usbbus.Desc) (*Dev, error) {
	u, err := usbbus.Open(desc, usbbus.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	return fromUSB(u, &Opts{Timeout: usbbus.DefaultTimeout, Logger: zap.L()})
}

var drv = driver{scan: usbbus.Scan, open: openDesc}

func init() {
	periph.MustRegister(&drv)
}

var _ periph.Driver = &drv
var _ conn.Resource = &broken{}
