// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package niostest is meant to be used to test drivers over a fake NIOS
// transport.
package niostest

import (
	"errors"
	"fmt"
	"sync"

	"periph.io/x/bladerf/nios"
)

// IO registers one exchange.
type IO struct {
	W nios.Frame
	R nios.Frame
}

// Packet returns an IO built from a request and its response.
//
// It panics on invalid packets, it is meant for tables in tests.
func Packet(w, r nios.Packet) IO {
	wf, err := w.Build()
	if err != nil {
		panic(err)
	}
	rf, err := r.Build()
	if err != nil {
		panic(err)
	}
	return IO{W: wf, R: rf}
}

// Playback implements nios.Transport and plays back a recorded transcript.
type Playback struct {
	sync.Mutex
	Ops   []IO
	Count int
}

func (p *Playback) String() string {
	return "playback"
}

// Close verifies that all the expected exchanges have been consumed.
func (p *Playback) Close() error {
	p.Lock()
	defer p.Unlock()
	if len(p.Ops) != p.Count {
		return fmt.Errorf("niostest: expected playback to be empty: I/O count %d; expected %d", p.Count, len(p.Ops))
	}
	return nil
}

// Exchange implements nios.Transport.
func (p *Playback) Exchange(out, in uint8, req nios.Frame) (nios.Frame, error) {
	p.Lock()
	defer p.Unlock()
	if p.Count >= len(p.Ops) {
		return nios.Frame{}, errors.New("niostest: unexpected Exchange()")
	}
	if req != p.Ops[p.Count].W {
		return nios.Frame{}, fmt.Errorf("niostest: unexpected request (op #%d) %x != %x", p.Count, req[:], p.Ops[p.Count].W[:])
	}
	r := p.Ops[p.Count].R
	p.Count++
	return r, nil
}

// Record implements nios.Transport and records every exchange.
type Record struct {
	sync.Mutex
	T   nios.Transport
	Ops []IO
}

// Exchange implements nios.Transport.
func (r *Record) Exchange(out, in uint8, req nios.Frame) (nios.Frame, error) {
	resp, err := r.T.Exchange(out, in, req)
	if err == nil {
		r.Lock()
		r.Ops = append(r.Ops, IO{W: req, R: resp})
		r.Unlock()
	}
	return resp, err
}

var _ nios.Transport = &Playback{}
var _ nios.Transport = &Record{}
