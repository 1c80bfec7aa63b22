// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package lms6002d

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"periph.io/x/bladerf"
	"periph.io/x/bladerf/nios"
	"periph.io/x/bladerf/nios/niostest"
)

func newDev(opts *Opts) (*Dev, *niostest.Device) {
	fake := niostest.NewDevice()
	c := nios.NewConn(fake, nios.EndpointOut, nios.EndpointIn, nil)
	if opts == nil {
		opts = &Opts{Atomic: true, Logger: zap.NewNop()}
	}
	return New(nios.NewReg8(c, nios.Target8x8LMS6), opts), fake
}

func TestBands(t *testing.T) {
	assert.Equal(t, uint64(FreqMin), bands[0].low)
	assert.Equal(t, uint64(vco4Low/16), bands[0].low)
	assert.Equal(t, uint64(FreqMax), bands[len(bands)-1].high)
	assert.Equal(t, uint64(vco1High/2), bands[len(bands)-1].high)
	for i := 1; i < len(bands); i++ {
		assert.Equal(t, bands[i-1].high, bands[i].low, "band %d", i)
		assert.True(t, bands[i].low < bands[i].high)
	}
}

func TestCalculateTuningParams(t *testing.T) {
	f, err := CalculateTuningParams(2447000000)
	require.NoError(t, err)
	assert.Equal(t, Freq{Freqsel: 44, VCOCAP: 31, Nint: 127, Nfrac: 3757397, X: 2, VCOCAPResult: 0xff}, f)
	assert.InDelta(t, 2447000000, float64(FrequencyToHz(&f)), 1)

	f, err = CalculateTuningParams(300000000)
	require.NoError(t, err)
	assert.Equal(t, uint8(selVCO3|div16), f.Freqsel)
	assert.Equal(t, uint8(16), f.X)
	assert.Equal(t, FlagLowBand, f.Flags)
}

func TestCalculateTuningParams_clamp(t *testing.T) {
	min, err := CalculateTuningParams(FreqMin)
	require.NoError(t, err)
	assert.Equal(t, uint8(vcocapEstMin), min.VCOCAP)
	max, err := CalculateTuningParams(FreqMax)
	require.NoError(t, err)
	assert.Equal(t, uint8(vcocapEstMax), max.VCOCAP)
	for _, hz := range []uint64{0, 1, FreqMin - 1} {
		f, err := CalculateTuningParams(hz)
		require.NoError(t, err)
		assert.Equal(t, min, f, "%d", hz)
	}
	for _, hz := range []uint64{FreqMax + 1, 6000000000} {
		f, err := CalculateTuningParams(hz)
		require.NoError(t, err)
		assert.Equal(t, max, f, "%d", hz)
	}
}

func TestCalculateTuningParams_sweep(t *testing.T) {
	for hz := uint64(FreqMin); hz <= FreqMax; hz += 1234567 {
		f, err := CalculateTuningParams(hz)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, f.VCOCAP, uint8(vcocapEstMin), "%d", hz)
		assert.LessOrEqual(t, f.VCOCAP, uint8(vcocapEstMax), "%d", hz)
		assert.Equal(t, uint8(1)<<(f.Freqsel&7-3), f.X, "%d", hz)
		assert.Equal(t, hz < 1500000000, f.Flags&FlagLowBand != 0, "%d", hz)
		got := FrequencyToHz(&f)
		if d := int64(got) - int64(hz); d < -2 || d > 2 {
			t.Fatalf("%d: got %d", hz, got)
		}
	}
}

func TestFrequencyToHz_zero(t *testing.T) {
	assert.Equal(t, uint64(0), FrequencyToHz(&Freq{Nint: 100}))
}

func TestSetFrequency(t *testing.T) {
	d, fake := newDev(nil)
	fake.LMS[0x29] = 0xc0
	f, err := d.SetFrequency(bladerf.RX, 2447000000)
	require.NoError(t, err)
	// NORM window is [24, 34]; HIGH limit found at 23, LOW limit at 35.
	assert.Equal(t, uint8(29), f.VCOCAPResult)
	assert.Equal(t, uint8(0xc0|29), fake.LMS[0x29])
	assert.Equal(t, uint8(0x05), fake.LMS[0x09])
	assert.Equal(t, []uint8{63, 0xb9, 0x55, 0x55}, fake.LMS[0x20:0x24])
	assert.Equal(t, uint8(44<<2|2), fake.LMS[0x25])
	// The TX PLL is untouched.
	assert.Equal(t, uint8(0), fake.LMS[0x19])

	atomic := 0
	for _, p := range fake.Writes(nios.Class8x8, nios.Target8x8LMS6) {
		if p.Addr >= 0xa0 && p.Addr <= 0xa3 {
			atomic++
		}
	}
	assert.Equal(t, 4, atomic)

	vt, err := d.VTune(bladerf.RX)
	require.NoError(t, err)
	assert.Equal(t, VTuneNorm, vt)

	got, err := d.GetFrequency(bladerf.RX)
	require.NoError(t, err)
	assert.Equal(t, Freq{Freqsel: 44, VCOCAP: 29, Nint: 127, Nfrac: 3757397, X: 2, VCOCAPResult: 29}, got)
	assert.InDelta(t, 2447000000, float64(got.Hz()), 1)
}

func TestSetFrequency_notAtomic(t *testing.T) {
	d, fake := newDev(&Opts{})
	f, err := d.SetFrequency(bladerf.TX, 1000000000)
	require.NoError(t, err)
	assert.NotEqual(t, uint8(0xff), f.VCOCAPResult)
	for _, p := range fake.Writes(nios.Class8x8, nios.Target8x8LMS6) {
		assert.Less(t, p.Addr, uint32(0x80))
	}
	// Low band output buffer.
	assert.Equal(t, uint8(1), fake.LMS[0x15]&3)
	got, err := d.GetFrequency(bladerf.TX)
	require.NoError(t, err)
	assert.Equal(t, FlagLowBand, got.Flags)
	assert.Equal(t, f.Nint, got.Nint)
	assert.Equal(t, f.Nfrac, got.Nfrac)
}

func TestSetFrequency_paths(t *testing.T) {
	data := []struct {
		name   string
		window niostest.Window
		want   uint8
	}{
		// Estimate is 31 for 2447MHz.
		{"norm", niostest.Window{Low: 24, High: 34}, 29},
		{"low", niostest.Window{Low: 20, High: 28}, 24},
		{"high", niostest.Window{Low: 40, High: 50}, 45},
		// The jump past the HIGH limit lands in NORM, VCOCAP is walked up.
		{"wait", niostest.Window{Low: 24, High: 40}, 32},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			d, fake := newDev(nil)
			fake.Norm[0x20] = line.window
			f, err := d.SetFrequency(bladerf.RX, 2447000000)
			require.NoError(t, err)
			assert.Equal(t, line.want, f.VCOCAPResult)
			assert.Greater(t, f.VCOCAPResult, line.window.Low-1)
			assert.Less(t, f.VCOCAPResult, line.window.High+1)
		})
	}
}

func TestSetFrequency_convergence(t *testing.T) {
	d, fake := newDev(nil)
	fake.VTune = func(base, vcocap uint8) uint8 { return niostest.VTuneLow }
	f, err := d.SetFrequency(bladerf.RX, 2447000000)
	require.Error(t, err)
	assert.True(t, errors.Is(err, bladerf.ErrConvergence))
	var cerr *ConvergenceError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "VTUNE low to norm", cerr.Op)
	assert.Equal(t, VTuneLow, cerr.VTune)
	assert.Equal(t, uint8(11), cerr.VCOCAP)
	assert.Equal(t, uint8(0xff), f.VCOCAPResult)
	// DSMs stay on.
	assert.Equal(t, uint8(0x05), fake.LMS[0x09]&0x05)
}

func TestSetFrequency_final(t *testing.T) {
	d, fake := newDev(nil)
	fake.VTune = func(base, vcocap uint8) uint8 {
		switch {
		case vcocap < 24:
			return niostest.VTuneHigh
		case vcocap > 34 || vcocap == 29:
			return niostest.VTuneLow
		}
		return niostest.VTuneNorm
	}
	_, err := d.SetFrequency(bladerf.RX, 2447000000)
	assert.Equal(t, "lms6002d: final VCOCAP failed to converge (VCOCAP=29, VTUNE=LOW)", err.Error())
	assert.True(t, errors.Is(err, bladerf.ErrConvergence))
}

func TestSetFrequency_invalidState(t *testing.T) {
	d, fake := newDev(nil)
	fake.VTune = func(base, vcocap uint8) uint8 { return niostest.VTuneHigh }
	// The estimate is 55; the walk saturates at 63 without finding NORM.
	_, err := d.SetFrequency(bladerf.RX, FreqMax)
	assert.True(t, errors.Is(err, bladerf.ErrInvalidState), "%v", err)
}

func TestSetPrecalculatedFrequency_force(t *testing.T) {
	d, fake := newDev(nil)
	f, err := CalculateTuningParams(2447000000)
	require.NoError(t, err)
	f.Flags |= FlagForceVCOCAP
	require.NoError(t, d.SetPrecalculatedFrequency(bladerf.RX, &f))
	assert.Equal(t, f.VCOCAP, f.VCOCAPResult)
	assert.Equal(t, f.VCOCAP, fake.LMS[0x29])
	for _, p := range fake.Requests() {
		assert.NotEqual(t, uint32(0x2a), p.Addr, "VTUNE must not be read")
	}
}

func TestSetPrecalculatedFrequency_range(t *testing.T) {
	d, fake := newDev(nil)
	f := Freq{VCOCAP: 64}
	assert.True(t, errors.Is(d.SetPrecalculatedFrequency(bladerf.RX, &f), bladerf.ErrRange))
	assert.Empty(t, fake.Requests())
}

func TestSetPrecalculatedFrequency_dsmOff(t *testing.T) {
	obs := &tuneRecorder{}
	d, fake := newDev(&Opts{Atomic: true, Observer: obs})
	fake.LMS[0x09] = 0x02
	fake.Fail = func(p nios.Packet) error {
		// The VCOCAP estimate.
		if p.Flags.Write() && p.Addr == 0x29 {
			return niostest.Reject
		}
		return nil
	}
	_, err := d.SetFrequency(bladerf.RX, 2447000000)
	assert.True(t, errors.Is(err, bladerf.ErrOperationFailed), "%v", err)
	assert.Equal(t, uint8(0x02), fake.LMS[0x09])
	require.Len(t, obs.calls, 1)
	assert.Equal(t, uint8(0xff), obs.calls[0].vcocap)
	assert.Equal(t, err, obs.calls[0].err)
}

func TestSetPrecalculatedFrequency_searchFail(t *testing.T) {
	obs := &tuneRecorder{}
	d, fake := newDev(&Opts{Atomic: true, Observer: obs})
	fake.LMS[0x09] = 0x02
	fake.Fail = func(p nios.Packet) error {
		// The VTUNE comparator.
		if !p.Flags.Write() && p.Addr == 0x2a {
			return niostest.Reject
		}
		return nil
	}
	_, err := d.SetFrequency(bladerf.RX, 2447000000)
	assert.True(t, errors.Is(err, bladerf.ErrOperationFailed), "%v", err)
	assert.Equal(t, uint8(0x02), fake.LMS[0x09])
	require.Len(t, obs.calls, 1)
	assert.Equal(t, uint8(0xff), obs.calls[0].vcocap)
}

func TestSetPrecalculatedFrequency_loopback(t *testing.T) {
	d, fake := newDev(nil)
	fake.LMS[0x08] = lbrfenLNA1
	fake.LMS[0x25] = 0x03
	f, err := CalculateTuningParams(2447000000)
	require.NoError(t, err)
	f.Flags |= FlagForceVCOCAP
	require.NoError(t, d.SetPrecalculatedFrequency(bladerf.RX, &f))
	assert.Equal(t, uint8(44<<2|3), fake.LMS[0x25])
}

func TestObserver(t *testing.T) {
	obs := &tuneRecorder{}
	d, _ := newDev(&Opts{Atomic: true, Observer: obs})
	_, err := d.SetFrequency(bladerf.TX, 2447000000)
	require.NoError(t, err)
	require.Len(t, obs.calls, 1)
	assert.Equal(t, tuneCall{mod: bladerf.TX, vcocap: 29}, obs.calls[0])
}

//

type tuneCall struct {
	mod    bladerf.Module
	vcocap uint8
	err    error
}

type tuneRecorder struct {
	calls []tuneCall
}

func (r *tuneRecorder) ObserveTune(mod bladerf.Module, vcocap uint8, err error) {
	r.calls = append(r.calls, tuneCall{mod, vcocap, err})
}
