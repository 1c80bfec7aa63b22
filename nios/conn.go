// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package nios

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/bladerf"
)

// Transport exchanges one request frame for one response frame.
//
// It must block until the response is received or a fixed timeout expires.
// It must not retry.
type Transport interface {
	Exchange(out, in uint8, req Frame) (Frame, error)
}

// Observer is notified after every exchange.
type Observer interface {
	ObserveExchange(c Class, target uint8, write bool, d time.Duration, err error)
}

// Conn sends packets on one pair of endpoints.
//
// Responses are not tagged so only one exchange is in flight at a time.
type Conn struct {
	mu  sync.Mutex
	t   Transport
	out uint8
	in  uint8
	obs Observer
}

// NewConn returns a Conn using the endpoints out and in of t.
//
// obs may be nil.
func NewConn(t Transport, out, in uint8, obs Observer) *Conn {
	return &Conn{t: t, out: out, in: in, obs: obs}
}

func (c *Conn) String() string {
	return fmt.Sprintf("nios(%#02x,%#02x)", c.out, c.in)
}

// Do sends the request p and returns the decoded response.
//
// The response must be of the same class and target as the request and must
// have the success flag set.
func (c *Conn) Do(p Packet) (Packet, error) {
	req, err := p.Build()
	if err != nil {
		return Packet{}, err
	}
	c.mu.Lock()
	start := time.Now()
	resp, err := c.t.Exchange(c.out, c.in, req)
	d := time.Since(start)
	c.mu.Unlock()
	var out Packet
	if err == nil {
		out, err = c.check(&p, resp)
	} else if errors.Is(err, bladerf.ErrTransport) {
		err = fmt.Errorf("nios: %s: %w", &p, err)
	} else {
		err = fmt.Errorf("nios: %s: %w: %w", &p, bladerf.ErrTransport, err)
	}
	if c.obs != nil {
		c.obs.ObserveExchange(p.Class, p.Target, p.Flags.Write(), d, err)
	}
	return out, err
}

func (c *Conn) check(req *Packet, f Frame) (Packet, error) {
	resp, err := Parse(req.Class, f)
	if err != nil {
		return resp, err
	}
	if resp.Target != req.Target {
		return resp, &ProtocolError{Class: req.Class, Reason: fmt.Sprintf("got target %#02x, expected %#02x", resp.Target, req.Target)}
	}
	if !resp.Success() {
		return resp, fmt.Errorf("nios: %s: %w", req, bladerf.ErrOperationFailed)
	}
	return resp, nil
}

// Read sends a read request and returns the data field of the response.
func (c *Conn) Read(cl Class, target uint8, addr uint32) (uint64, error) {
	p, err := c.Do(Packet{Class: cl, Target: target, Flags: FlagRead, Addr: addr})
	return p.Data, err
}

// Write sends a write request and returns the data field of the response.
func (c *Conn) Write(cl Class, target uint8, addr uint32, data uint64) (uint64, error) {
	p, err := c.Do(Packet{Class: cl, Target: target, Flags: FlagWrite, Addr: addr, Data: data})
	return p.Data, err
}

// Reg8 accesses the 8 bits registers of one Class8x8 target.
type Reg8 struct {
	c      *Conn
	target uint8
}

// NewReg8 returns a register accessor for target.
func NewReg8(c *Conn, target uint8) *Reg8 {
	return &Reg8{c: c, target: target}
}

// Read returns the value of the register at addr.
func (r *Reg8) Read(addr uint8) (uint8, error) {
	v, err := r.c.Read(Class8x8, r.target, uint32(addr))
	return uint8(v), err
}

// Write writes data at addr and returns the data echoed by the device.
func (r *Reg8) Write(addr, data uint8) (uint8, error) {
	v, err := r.c.Write(Class8x8, r.target, uint32(addr), uint64(data))
	return uint8(v), err
}

// Set sets the bits of mask in the register at addr.
//
// It is a read followed by a write. It is not atomic: another request sent to
// the device between the two exchanges can be lost. Callers must serialize.
func (r *Reg8) Set(addr, mask uint8) error {
	v, err := r.Read(addr)
	if err != nil {
		return err
	}
	_, err = r.Write(addr, v|mask)
	return err
}

// Reg16 accesses the 16 bits registers of one Class8x16 target.
type Reg16 struct {
	c      *Conn
	target uint8
}

// NewReg16 returns a register accessor for target.
func NewReg16(c *Conn, target uint8) *Reg16 {
	return &Reg16{c: c, target: target}
}

// Read returns the value of the register at addr.
func (r *Reg16) Read(addr uint8) (uint16, error) {
	v, err := r.c.Read(Class8x16, r.target, uint32(addr))
	return uint16(v), err
}

// Write writes data at addr and returns the data echoed by the device.
func (r *Reg16) Write(addr uint8, data uint16) (uint16, error) {
	v, err := r.c.Write(Class8x16, r.target, uint32(addr), uint64(data))
	return uint16(v), err
}

// Reg32 accesses the 32 bits registers of one Class8x32 target.
type Reg32 struct {
	c      *Conn
	target uint8
}

// NewReg32 returns a register accessor for target.
func NewReg32(c *Conn, target uint8) *Reg32 {
	return &Reg32{c: c, target: target}
}

// Read returns the value of the register at addr.
func (r *Reg32) Read(addr uint8) (uint32, error) {
	v, err := r.c.Read(Class8x32, r.target, uint32(addr))
	return uint32(v), err
}

// Write writes data at addr and returns the data echoed by the device.
func (r *Reg32) Write(addr uint8, data uint32) (uint32, error) {
	v, err := r.c.Write(Class8x32, r.target, uint32(addr), uint64(data))
	return uint32(v), err
}

// Reg64 accesses the 64 bits registers of one Class8x64 target.
type Reg64 struct {
	c      *Conn
	target uint8
}

// NewReg64 returns a register accessor for target.
func NewReg64(c *Conn, target uint8) *Reg64 {
	return &Reg64{c: c, target: target}
}

// Read returns the value of the register at addr.
func (r *Reg64) Read(addr uint8) (uint64, error) {
	return r.c.Read(Class8x64, r.target, uint32(addr))
}

var _ fmt.Stringer = &Conn{}
