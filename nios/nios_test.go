// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package nios

import (
	"errors"
	"testing"

	"periph.io/x/bladerf"
)

func TestClass(t *testing.T) {
	data := []struct {
		c     Class
		name  string
		magic byte
		addr  int
		data  int
	}{
		{Class8x8, "8x8", 0x41, 8, 8},
		{Class8x16, "8x16", 0x42, 8, 16},
		{Class8x32, "8x32", 0x43, 8, 32},
		{Class8x64, "8x64", 0x44, 8, 64},
		{Class16x64, "16x64", 0x45, 16, 64},
		{Class32x32, "32x32", 0x4B, 32, 32},
	}
	for _, line := range data {
		if s := line.c.String(); s != line.name {
			t.Fatalf("String() = %q, expected %q", s, line.name)
		}
		if m := line.c.Magic(); m != line.magic {
			t.Fatalf("%s: Magic() = %#x", line.name, m)
		}
		if line.c.AddrBits() != line.addr || line.c.DataBits() != line.data {
			t.Fatalf("%s: %dx%d", line.name, line.c.AddrBits(), line.c.DataBits())
		}
		if c, ok := ClassOf(line.magic); !ok || c != line.c {
			t.Fatalf("ClassOf(%#x) = %s, %t", line.magic, c, ok)
		}
	}
	if _, ok := ClassOf('N'); ok {
		t.Fatal("legacy magic must not be recognized")
	}
}

func TestBuild(t *testing.T) {
	f, err := Build(Class8x8, Target8x8SI5338, FlagWrite, 0x4b, 0x66)
	if err != nil {
		t.Fatal(err)
	}
	expected := Frame{0x41, 0x01, 0x01, 0x00, 0x4b, 0x66}
	if f != expected {
		t.Fatalf("%x != %x", f, expected)
	}
	f, err = Build(Class16x64, Target16x64RFIC, FlagRead, 0x1234, 0x0102030405060708)
	if err != nil {
		t.Fatal(err)
	}
	expected = Frame{0x45, 0x01, 0x00, 0x00, 0x34, 0x12, 0x08, 0x07, 0x06, 0x05, 0x04, 0x03, 0x02, 0x01}
	if f != expected {
		t.Fatalf("%x != %x", f, expected)
	}
	f, err = Build(Class32x32, Target32x32Exp, FlagWrite, 0xdeadbeef, 0xcafe)
	if err != nil {
		t.Fatal(err)
	}
	expected = Frame{0x4B, 0x00, 0x01, 0x00, 0xef, 0xbe, 0xad, 0xde, 0xfe, 0xca}
	if f != expected {
		t.Fatalf("%x != %x", f, expected)
	}
}

func TestBuild_range(t *testing.T) {
	if _, err := Build(Class8x8, 0, FlagRead, 0x100, 0); !errors.Is(err, bladerf.ErrRange) {
		t.Fatalf("address: %v", err)
	}
	if _, err := Build(Class8x16, 0, FlagWrite, 0, 0x10000); !errors.Is(err, bladerf.ErrRange) {
		t.Fatalf("data: %v", err)
	}
	if _, err := Build(Class16x64, 0, FlagWrite, 0x10000, 0); !errors.Is(err, bladerf.ErrRange) {
		t.Fatalf("address: %v", err)
	}
	if _, err := Build(numClasses, 0, FlagRead, 0, 0); !errors.Is(err, bladerf.ErrRange) {
		t.Fatalf("class: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	for c := Class(0); c < numClasses; c++ {
		maxAddr := uint32(1<<uint(c.AddrBits()) - 1)
		maxData := uint64(1<<uint(c.DataBits()) - 1)
		for _, flags := range []Flags{FlagRead, FlagWrite, FlagWrite | FlagSuccess, FlagSuccess} {
			for _, addr := range []uint32{0, 1, maxAddr / 3, maxAddr} {
				for _, data := range []uint64{0, 0x5a, maxData / 7, maxData} {
					in := Packet{Class: c, Target: 0x80, Flags: flags, Addr: addr, Data: data}
					f, err := in.Build()
					if err != nil {
						t.Fatalf("%s: %v", &in, err)
					}
					out, err := Parse(c, f)
					if err != nil {
						t.Fatal(err)
					}
					if out != in {
						t.Fatalf("%s != %s", &out, &in)
					}
					for i := 4 + (c.AddrBits()+c.DataBits())/8; i < Size; i++ {
						if f[i] != 0 {
							t.Fatalf("%s: byte %d not zero: %x", &in, i, f)
						}
					}
				}
			}
		}
	}
}

func TestParse_magic(t *testing.T) {
	f, _ := Build(Class8x32, Target8x32Control, FlagRead, 0, 0)
	_, err := Parse(Class8x8, f)
	var perr *ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
	if !errors.Is(err, bladerf.ErrProtocol) {
		t.Fatal("ProtocolError must match ErrProtocol")
	}
	if s := err.Error(); s != "nios: 8x8: got magic 0x43, expected 0x41" {
		t.Fatal(s)
	}
}
