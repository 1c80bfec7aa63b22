// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package dac161s055

import (
	"errors"
	"testing"

	"periph.io/x/bladerf"
	"periph.io/x/bladerf/nios"
	"periph.io/x/bladerf/nios/niostest"
)

func TestWrite(t *testing.T) {
	p := &niostest.Playback{
		Ops: []niostest.IO{
			{
				W: nios.Frame{0x42, 0x00, 0x01, 0x00, 0x28, 0x00, 0x00},
				R: nios.Frame{0x42, 0x00, 0x03, 0x00, 0x28, 0x00, 0x00},
			},
			{
				W: nios.Frame{0x42, 0x00, 0x01, 0x00, 0x08, 0x34, 0x12},
				R: nios.Frame{0x42, 0x00, 0x03, 0x00, 0x08, 0x34, 0x12},
			},
		},
	}
	c := nios.NewConn(p, nios.PeripheralEndpointOut, nios.PeripheralEndpointIn, nil)
	d := New(nios.NewReg16(c, nios.Target8x16VCTCXODAC))
	v, err := d.Write(0x1234)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0x1234 {
		t.Fatalf("got %#x", v)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if s := d.String(); s != "dac161s055" {
		t.Fatal(s)
	}
}

func TestWrite_fail(t *testing.T) {
	fake := niostest.NewDevice()
	fake.Fail = func(p nios.Packet) error {
		if p.Addr == 0x28 {
			return niostest.Reject
		}
		return nil
	}
	c := nios.NewConn(fake, nios.PeripheralEndpointOut, nios.PeripheralEndpointIn, nil)
	d := New(nios.NewReg16(c, nios.Target8x16VCTCXODAC))
	if _, err := d.Write(0x8000); !errors.Is(err, bladerf.ErrOperationFailed) {
		t.Fatal(err)
	}
	// The value write is not attempted.
	if n := len(fake.Requests()); n != 1 {
		t.Fatal(n)
	}
	if fake.DAC[0x08] != 0 {
		t.Fatal(fake.DAC[0x08])
	}
}
