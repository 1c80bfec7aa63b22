// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lms6002d

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/bladerf"
)

func TestLoopback(t *testing.T) {
	data := []struct {
		reg08, reg46 uint8
		want         Loopback
	}{
		{0x00, 0x00, LoopbackNone},
		{0x20, 0x04, LoopbackBbTxlpfRxvga2},
		{0x20, 0x08, LoopbackBbTxvga1Rxvga2},
		{0x40, 0x04, LoopbackBbTxlpfRxlpf},
		{0x40, 0x08, LoopbackBbTxvga1Rxlpf},
		{0x01, 0x00, LoopbackRfLna1},
		{0x02, 0x00, LoopbackRfLna2},
		{0x03, 0x00, LoopbackRfLna3},
		// Baseband input selected without a source.
		{0x20, 0x00, LoopbackNone},
		// Baseband takes precedence.
		{0x22, 0x04, LoopbackBbTxlpfRxvga2},
		{0x60, 0x04, LoopbackNone},
	}
	for _, line := range data {
		d, fake := newDev(nil)
		fake.LMS[0x08] = line.reg08
		fake.LMS[0x46] = line.reg46
		l, err := d.Loopback()
		require.NoError(t, err)
		assert.Equal(t, line.want, l, "%#02x %#02x", line.reg08, line.reg46)
	}
}

func TestLoopback_String(t *testing.T) {
	assert.Equal(t, "None", LoopbackNone.String())
	assert.Equal(t, "BbTxvga1Rxlpf", LoopbackBbTxvga1Rxlpf.String())
	assert.Equal(t, "RfLna3", LoopbackRfLna3.String())
	assert.Equal(t, "Loopback(8)", Loopback(8).String())
}

func TestVTune_String(t *testing.T) {
	assert.Equal(t, "NORM", VTuneNorm.String())
	assert.Equal(t, "LOW", VTuneLow.String())
	assert.Equal(t, "HIGH", VTuneHigh.String())
	assert.Equal(t, "VTune(3)", VTune(3).String())
}

func TestEnableRFFE(t *testing.T) {
	d, fake := newDev(nil)
	fake.LMS[0x70] = 0xff
	require.NoError(t, d.EnableRFFE(bladerf.TX, true))
	require.NoError(t, d.EnableRFFE(bladerf.RX, false))
	assert.Equal(t, uint8(0x01), fake.LMS[0x40])
	assert.Equal(t, uint8(0xfd), fake.LMS[0x70])
	require.NoError(t, d.EnableRFFE(bladerf.TX, false))
	assert.Equal(t, uint8(0x00), fake.LMS[0x40])
}

func TestConfigChargePumps(t *testing.T) {
	d, fake := newDev(nil)
	fake.LMS[0x26] = 0xff
	fake.LMS[0x28] = 0xe0
	require.NoError(t, d.ConfigChargePumps(bladerf.RX))
	assert.Equal(t, []uint8{0xec, 0x03, 0xe3}, fake.LMS[0x26:0x29])
	assert.Equal(t, []uint8{0, 0, 0}, fake.LMS[0x16:0x19])
}

func TestWriteVCOCAP(t *testing.T) {
	d, fake := newDev(nil)
	fake.LMS[0x19] = 0xc5
	require.NoError(t, d.WriteVCOCAP(bladerf.TX, 10))
	assert.Equal(t, uint8(0xca), fake.LMS[0x19])
	fake.Reset()
	assert.True(t, errors.Is(d.WriteVCOCAP(bladerf.TX, 64), bladerf.ErrRange))
	assert.Empty(t, fake.Requests())
}

func TestDumpRegisters(t *testing.T) {
	d, fake := newDev(nil)
	for i := range fake.LMS {
		fake.LMS[i] = uint8(i) ^ 0x5a
	}
	regs, err := d.DumpRegisters()
	require.NoError(t, err)
	require.Len(t, regs, 107)
	assert.Equal(t, RegValue{Addr: 0x0e, Value: 0x0e ^ 0x5a}, regs[12])
	for _, r := range regs {
		if r.Addr == 0x1a || r.Addr == 0x2a {
			// Bits 7:6 are VTUNE.
			assert.Equal(t, fake.LMS[r.Addr]&0x3f, r.Value&0x3f)
			continue
		}
		assert.Equal(t, fake.LMS[r.Addr], r.Value)
	}
	assert.Equal(t, uint8(0x7c), regs[len(regs)-1].Addr)
}

func TestSweep(t *testing.T) {
	d, fake := newDev(nil)
	fake.LMS[0x29] = 0x9f
	s, err := d.Sweep(bladerf.RX)
	require.NoError(t, err)
	for i, v := range s {
		switch {
		case i < 24:
			assert.Equal(t, VTuneHigh, v, "%d", i)
		case i > 34:
			assert.Equal(t, VTuneLow, v, "%d", i)
		default:
			assert.Equal(t, VTuneNorm, v, "%d", i)
		}
	}
	first, last, ok := s.Norm()
	assert.True(t, ok)
	assert.Equal(t, uint8(24), first)
	assert.Equal(t, uint8(34), last)
	assert.Equal(t, uint8(0x9f), fake.LMS[0x29])
}

func TestSweep_Norm_none(t *testing.T) {
	var s Sweep
	for i := range s {
		s[i] = VTuneLow
	}
	_, _, ok := s.Norm()
	assert.False(t, ok)
}
