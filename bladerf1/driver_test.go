// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bladerf1

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"
	"periph.io/x/bladerf/nios/niostest"
	"periph.io/x/bladerf/usbbus"
)

func TestDriver(t *testing.T) {
	defer reset(t)
	drv.scan = func(vid, pid uint16) ([]usbbus.Desc, error) {
		if vid != VendorID || pid != ProductID {
			t.Fatalf("unexpected %04x:%04x", vid, pid)
		}
		return []usbbus.Desc{
			{VID: vid, PID: pid, Bus: 2, Addr: 3, Speed: usbbus.SpeedSuper, Serial: "a"},
			{VID: vid, PID: pid, Bus: 2, Addr: 4, Speed: usbbus.SpeedHigh, Serial: "b"},
		}, nil
	}
	drv.open = func(desc usbbus.Desc) (*Dev, error) {
		if desc.Serial == "b" {
			return nil, errors.New("access denied")
		}
		return New(niostest.NewDevice(), desc.Speed, &Opts{Logger: zap.NewNop()})
	}
	b, err := drv.Init()
	if !b || err == nil || err.Error() != "access denied" {
		t.Fatalf("Init() = %t, %v", b, err)
	}
	a := All()
	if len(a) != 2 {
		t.Fatalf("got %d devices", len(a))
	}
	if _, ok := a[0].(*Dev); !ok {
		t.Fatalf("expected *Dev, got %T", a[0])
	}
	br, ok := a[1].(*broken)
	if !ok {
		t.Fatalf("expected *broken, got %T", a[1])
	}
	if s := br.String(); !strings.HasPrefix(s, "broken#1(") || !strings.HasSuffix(s, "): access denied") {
		t.Fatalf("unexpected %q", s)
	}
	if err := br.Halt(); err != nil {
		t.Fatal(err)
	}
	if br.Err().Error() != "access denied" {
		t.Fatal(br.Err())
	}
	// All() returns a copy.
	a[0] = nil
	if All()[0] == nil {
		t.Fatal("All() leaked its internal slice")
	}
}

func TestDriver_scanFail(t *testing.T) {
	defer reset(t)
	drv.scan = func(vid, pid uint16) ([]usbbus.Desc, error) {
		return nil, errors.New("no libusb")
	}
	drv.open = func(desc usbbus.Desc) (*Dev, error) {
		t.Fatal("unexpected open")
		return nil, nil
	}
	if b, err := drv.Init(); !b || err == nil {
		t.Fatalf("Init() = %t, %v", b, err)
	}
	if len(All()) != 0 {
		t.Fatal("expected no device")
	}
}

func TestDriver_String(t *testing.T) {
	if s := drv.String(); s != "bladerf1" {
		t.Fatal(s)
	}
	if drv.Prerequisites() != nil || drv.After() != nil {
		t.Fatal("expected no dependency")
	}
}

//

func reset(t *testing.T) {
	mu.Lock()
	defer mu.Unlock()
	all = nil
	drv = driver{scan: usbbus.Scan, open: openDesc}
}
