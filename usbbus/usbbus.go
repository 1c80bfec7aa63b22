// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package usbbus implements the NIOS transport over the bladeRF USB bulk
// endpoints.
//
// It uses gousb, which requires libusb-1.0 and cgo.
package usbbus // import "periph.io/x/bladerf/usbbus"

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/gousb"
	"periph.io/x/bladerf"
	"periph.io/x/bladerf/nios"
)

// DefaultTimeout is the per exchange timeout used when none is specified.
const DefaultTimeout = time.Second

// Speed is the negotiated USB link speed.
type Speed uint8

// Link speeds that matter to the FPGA.
const (
	SpeedUnknown Speed = iota
	SpeedHigh
	SpeedSuper
)

func (s Speed) String() string {
	switch s {
	case SpeedHigh:
		return "High"
	case SpeedSuper:
		return "Super"
	default:
		return "Unknown"
	}
}

func speedOf(s gousb.Speed) Speed {
	switch s {
	case gousb.SpeedHigh:
		return SpeedHigh
	case gousb.SpeedSuper:
		return SpeedSuper
	default:
		return SpeedUnknown
	}
}

// Desc represents the description of an USB device on an USB bus.
type Desc struct {
	VID    uint16
	PID    uint16
	Bus    int
	Addr   int
	Speed  Speed
	Serial string
}

func (d *Desc) String() string {
	if d.Serial == "" {
		return fmt.Sprintf("%04x:%04x@%d.%d", d.VID, d.PID, d.Bus, d.Addr)
	}
	return fmt.Sprintf("%04x:%04x@%d.%d(%s)", d.VID, d.PID, d.Bus, d.Addr, d.Serial)
}

type descriptors []Desc

func (d descriptors) Len() int      { return len(d) }
func (d descriptors) Swap(i, j int) { d[i], d[j] = d[j], d[i] }
func (d descriptors) Less(i, j int) bool {
	if d[i].Bus != d[j].Bus {
		return d[i].Bus < d[j].Bus
	}
	return d[i].Addr < d[j].Addr
}

func fromDesc(d *gousb.DeviceDesc) Desc {
	return Desc{VID: uint16(d.Vendor), PID: uint16(d.Product), Bus: d.Bus, Addr: d.Address, Speed: speedOf(d.Speed)}
}

// Scan returns all the devices matching vid and pid, sorted by bus and
// address.
//
// Each device is briefly opened to read its serial number.
func Scan(vid, pid uint16) ([]Desc, error) {
	ctx := gousb.NewContext()
	defer ctx.Close()
	devs, err := ctx.OpenDevices(func(d *gousb.DeviceDesc) bool {
		return uint16(d.Vendor) == vid && uint16(d.Product) == pid
	})
	// OpenDevices returns the devices it could open even on error, e.g.
	// LIBUSB_ERROR_ACCESS when the user needs root access to one of them.
	var all descriptors
	for _, d := range devs {
		desc := fromDesc(d.Desc)
		if s, err1 := d.SerialNumber(); err1 == nil {
			desc.Serial = s
		}
		all = append(all, desc)
		d.Close()
	}
	sort.Sort(all)
	if err != nil && len(all) == 0 {
		return nil, fmt.Errorf("usbbus: scan: %w: %w", bladerf.ErrTransport, err)
	}
	return all, nil
}

// Open opens the device at the bus and address of desc.
func Open(desc Desc, timeout time.Duration) (*Dev, error) {
	return open(desc.VID, desc.PID, timeout, func(d *Desc) bool {
		return d.Bus == desc.Bus && d.Addr == desc.Addr
	})
}

// OpenSerial opens the device with the serial number serial.
func OpenSerial(vid, pid uint16, serial string, timeout time.Duration) (*Dev, error) {
	return open(vid, pid, timeout, func(d *Desc) bool {
		return d.Serial == serial
	})
}

// OpenFirst opens the first device found.
func OpenFirst(vid, pid uint16, timeout time.Duration) (*Dev, error) {
	return open(vid, pid, timeout, func(d *Desc) bool {
		return true
	})
}

// ErrNotFound is returned when no device matched.
var ErrNotFound = errors.New("usbbus: device not found")

func open(vid, pid uint16, timeout time.Duration, match func(d *Desc) bool) (*Dev, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx := gousb.NewContext()
	devs, err := ctx.OpenDevices(func(d *gousb.DeviceDesc) bool {
		return uint16(d.Vendor) == vid && uint16(d.Product) == pid
	})
	sort.Slice(devs, func(i, j int) bool {
		if devs[i].Desc.Bus != devs[j].Desc.Bus {
			return devs[i].Desc.Bus < devs[j].Desc.Bus
		}
		return devs[i].Desc.Address < devs[j].Desc.Address
	})
	var found *gousb.Device
	var desc Desc
	for _, d := range devs {
		if found == nil {
			desc = fromDesc(d.Desc)
			if s, err1 := d.SerialNumber(); err1 == nil {
				desc.Serial = s
			}
			if match(&desc) {
				found = d
				continue
			}
		}
		d.Close()
	}
	if found == nil {
		ctx.Close()
		if err != nil {
			return nil, fmt.Errorf("usbbus: open: %w: %w", bladerf.ErrTransport, err)
		}
		return nil, ErrNotFound
	}
	d, err := newDev(ctx, found, desc, timeout)
	if err != nil {
		found.Close()
		ctx.Close()
		return nil, err
	}
	return d, nil
}

func newDev(ctx *gousb.Context, d *gousb.Device, desc Desc, timeout time.Duration) (*Dev, error) {
	if err := d.SetAutoDetach(true); err != nil {
		return nil, fmt.Errorf("usbbus: %s: auto detach: %w: %w", &desc, bladerf.ErrTransport, err)
	}
	cfg, err := d.Config(1)
	if err != nil {
		return nil, fmt.Errorf("usbbus: %s: config: %w: %w", &desc, bladerf.ErrTransport, err)
	}
	// Alternate setting 1 routes the bulk endpoints to the NIOS II.
	i, err := cfg.Interface(0, 1)
	if err != nil {
		cfg.Close()
		return nil, fmt.Errorf("usbbus: %s: interface: %w: %w", &desc, bladerf.ErrTransport, err)
	}
	name, err := d.Product()
	if err != nil || name == "" {
		// Sometimes the USB device will return junk, default to the vendor and
		// device ids.
		name = desc.String()
	}
	return &Dev{
		desc:    desc,
		name:    name,
		timeout: timeout,
		ctx:     ctx,
		d:       d,
		cfg:     cfg,
		i:       i,
		in:      map[uint8]*gousb.InEndpoint{},
		out:     map[uint8]*gousb.OutEndpoint{},
	}, nil
}

// Dev is an open handle to a bladeRF.
//
// The device can disappear at any moment.
type Dev struct {
	desc    Desc
	name    string
	timeout time.Duration

	mu  sync.Mutex
	ctx *gousb.Context
	d   *gousb.Device
	cfg *gousb.Config
	i   *gousb.Interface
	in  map[uint8]*gousb.InEndpoint
	out map[uint8]*gousb.OutEndpoint
}

func (d *Dev) String() string {
	return d.name
}

// Desc returns the description of the device.
func (d *Dev) Desc() Desc {
	return d.desc
}

// Speed returns the negotiated link speed.
func (d *Dev) Speed() Speed {
	return d.desc.Speed
}

// Close releases the interface and closes the device.
func (d *Dev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.d == nil {
		return nil
	}
	d.i.Close()
	err := d.cfg.Close()
	if err1 := d.d.Close(); err == nil {
		err = err1
	}
	if err1 := d.ctx.Close(); err == nil {
		err = err1
	}
	d.d = nil
	return err
}

// Exchange implements nios.Transport.
//
// out and in are endpoint addresses, e.g. 0x02 and 0x82.
func (d *Dev) Exchange(out, in uint8, req nios.Frame) (nios.Frame, error) {
	var resp nios.Frame
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.d == nil {
		return resp, fmt.Errorf("usbbus: %s: %w: closed", d, bladerf.ErrTransport)
	}
	o, err := d.outEndpoint(out)
	if err != nil {
		return resp, err
	}
	r, err := d.inEndpoint(in)
	if err != nil {
		return resp, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if n, err := o.WriteContext(ctx, req[:]); err != nil {
		return resp, fmt.Errorf("usbbus: %s: bulk out: %w: %w", d, bladerf.ErrTransport, err)
	} else if n != nios.Size {
		return resp, fmt.Errorf("usbbus: %s: bulk out: %w: short write %d", d, bladerf.ErrTransport, n)
	}
	if n, err := r.ReadContext(ctx, resp[:]); err != nil {
		return resp, fmt.Errorf("usbbus: %s: bulk in: %w: %w", d, bladerf.ErrTransport, err)
	} else if n != nios.Size {
		return resp, fmt.Errorf("usbbus: %s: bulk in: %w: short read %d", d, bladerf.ErrTransport, n)
	}
	return resp, nil
}

// outEndpoint must be called with mu held.
func (d *Dev) outEndpoint(addr uint8) (*gousb.OutEndpoint, error) {
	if e := d.out[addr]; e != nil {
		return e, nil
	}
	e, err := d.i.OutEndpoint(int(addr & 0x0f))
	if err != nil {
		return nil, fmt.Errorf("usbbus: %s: endpoint %#02x: %w: %w", d, addr, bladerf.ErrTransport, err)
	}
	d.out[addr] = e
	return e, nil
}

// inEndpoint must be called with mu held.
func (d *Dev) inEndpoint(addr uint8) (*gousb.InEndpoint, error) {
	if e := d.in[addr]; e != nil {
		return e, nil
	}
	e, err := d.i.InEndpoint(int(addr & 0x0f))
	if err != nil {
		return nil, fmt.Errorf("usbbus: %s: endpoint %#02x: %w: %w", d, addr, bladerf.ErrTransport, err)
	}
	d.in[addr] = e
	return e, nil
}

var _ nios.Transport = &Dev{}
var _ fmt.Stringer = &Dev{}
