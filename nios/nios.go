// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package nios implements the command packets understood by the NIOS II
// soft processor running in the bladeRF FPGA.
//
// Every request and response is exactly 16 bytes. The packet class selects
// the width of the address and data fields:
//
//  byte 0     magic, one per class
//  byte 1     target id
//  byte 2     flags
//  byte 3     reserved, always 0
//  byte 4..   address, little endian, followed by data, little endian
//
// Unused trailing bytes are zero.
package nios // import "periph.io/x/bladerf/nios"

import (
	"encoding/binary"
	"fmt"

	"periph.io/x/bladerf"
)

// Size is the size of every request and response frame.
const Size = 16

// Frame is one raw request or response.
type Frame [Size]byte

// Class is the address and data width of a packet.
type Class uint8

// Supported classes. The name is the address width followed by the data
// width, in bits.
const (
	Class8x8 Class = iota
	Class8x16
	Class8x32
	Class8x64
	Class16x64
	Class32x32
	numClasses
)

type classInfo struct {
	name      string
	magic     byte
	addrBytes int
	dataBytes int
}

var classes = [numClasses]classInfo{
	{"8x8", 0x41, 1, 1},
	{"8x16", 0x42, 1, 2},
	{"8x32", 0x43, 1, 4},
	{"8x64", 0x44, 1, 8},
	{"16x64", 0x45, 2, 8},
	{"32x32", 0x4B, 4, 4},
}

func (c Class) String() string {
	if c >= numClasses {
		return fmt.Sprintf("Class(%d)", uint8(c))
	}
	return classes[c].name
}

// Magic returns the first byte of every frame of this class.
func (c Class) Magic() byte {
	return classes[c].magic
}

// AddrBits returns the width of the address field.
func (c Class) AddrBits() int {
	return 8 * classes[c].addrBytes
}

// DataBits returns the width of the data field.
func (c Class) DataBits() int {
	return 8 * classes[c].dataBytes
}

// ClassOf returns the class identified by a magic byte.
func ClassOf(magic byte) (Class, bool) {
	for i := range classes {
		if classes[i].magic == magic {
			return Class(i), true
		}
	}
	return 0, false
}

// Flags is the third byte of a frame.
type Flags uint8

// Flag bits.
const (
	FlagRead    Flags = 0
	FlagWrite   Flags = 1 << 0
	FlagSuccess Flags = 1 << 1 // Only meaningful in a response.
)

// Write reports if the write bit is set.
func (f Flags) Write() bool {
	return f&FlagWrite != 0
}

// Success reports if the success bit is set.
func (f Flags) Success() bool {
	return f&FlagSuccess != 0
}

// Packet is a decoded frame.
type Packet struct {
	Class  Class
	Target uint8
	Flags  Flags
	Addr   uint32
	Data   uint64
}

// Success reports if the device acknowledged the request.
func (p *Packet) Success() bool {
	return p.Flags.Success()
}

func (p *Packet) String() string {
	op := "read"
	if p.Flags.Write() {
		op = "write"
	}
	return fmt.Sprintf("%s %s target=%#02x addr=%#x data=%#x", p.Class, op, p.Target, p.Addr, p.Data)
}

// Build encodes a frame.
//
// It fails if the address or the data does not fit in the class' fields.
func Build(c Class, target uint8, flags Flags, addr uint32, data uint64) (Frame, error) {
	var f Frame
	if c >= numClasses {
		return f, fmt.Errorf("nios: unknown class %d: %w", uint8(c), bladerf.ErrRange)
	}
	info := &classes[c]
	if info.addrBytes < 4 && addr >= 1<<uint(8*info.addrBytes) {
		return f, fmt.Errorf("nios: %s address %#x too large: %w", c, addr, bladerf.ErrRange)
	}
	if info.dataBytes < 8 && data >= 1<<uint(8*info.dataBytes) {
		return f, fmt.Errorf("nios: %s data %#x too large: %w", c, data, bladerf.ErrRange)
	}
	f[0] = info.magic
	f[1] = target
	f[2] = byte(flags)
	var tmp [8]byte
	binary.LittleEndian.PutUint32(tmp[:], addr)
	n := copy(f[4:], tmp[:info.addrBytes])
	binary.LittleEndian.PutUint64(tmp[:], data)
	copy(f[4+n:], tmp[:info.dataBytes])
	return f, nil
}

// Build encodes the packet.
func (p *Packet) Build() (Frame, error) {
	return Build(p.Class, p.Target, p.Flags, p.Addr, p.Data)
}

// Parse decodes a frame that is expected to be of class c.
func Parse(c Class, f Frame) (Packet, error) {
	if c >= numClasses {
		return Packet{}, fmt.Errorf("nios: unknown class %d: %w", uint8(c), bladerf.ErrRange)
	}
	info := &classes[c]
	if f[0] != info.magic {
		return Packet{}, &ProtocolError{Class: c, Reason: fmt.Sprintf("got magic %#02x, expected %#02x", f[0], info.magic)}
	}
	var tmp [8]byte
	copy(tmp[:], f[4:4+info.addrBytes])
	addr := binary.LittleEndian.Uint32(tmp[:4])
	tmp = [8]byte{}
	copy(tmp[:], f[4+info.addrBytes:4+info.addrBytes+info.dataBytes])
	return Packet{
		Class:  c,
		Target: f[1],
		Flags:  Flags(f[2]),
		Addr:   addr,
		Data:   binary.LittleEndian.Uint64(tmp[:]),
	}, nil
}

// ProtocolError is returned when a response cannot belong to the request it
// answers.
type ProtocolError struct {
	Class  Class
	Reason string
}

func (e *ProtocolError) Error() string {
	return "nios: " + e.Class.String() + ": " + e.Reason
}

// Unwrap returns bladerf.ErrProtocol.
func (e *ProtocolError) Unwrap() error {
	return bladerf.ErrProtocol
}
