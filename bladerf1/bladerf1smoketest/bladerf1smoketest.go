// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bladerf1smoketest is leveraged by extra-smoketest to verify that a
// bladeRF x40/x115 is working as expected.
package bladerf1smoketest

import (
	"errors"
	"flag"
	"fmt"

	"periph.io/x/bladerf"
	"periph.io/x/bladerf/bladerf1"
	"periph.io/x/periph/conn/physic"
)

// SmokeTest is imported by extra-smoketest.
type SmokeTest struct {
}

// Name implements the SmokeTest interface.
func (s *SmokeTest) Name() string {
	return "bladerf1"
}

// Description implements the SmokeTest interface.
func (s *SmokeTest) Description() string {
	return "Tests bladeRF x40/x115 tuning and clocking"
}

// Run implements the SmokeTest interface.
func (s *SmokeTest) Run(f *flag.FlagSet, args []string) (err error) {
	hz := f.Int64("freq", 915000000, "Frequency in Hz to tune both modules to")
	rate := f.Uint("rate", 2000000, "Sample rate to set on both modules")
	if err := f.Parse(args); err != nil {
		return err
	}
	if f.NArg() != 0 {
		f.Usage()
		return errors.New("unrecognized arguments")
	}

	all := bladerf1.All()
	if len(all) != 1 {
		return fmt.Errorf("exactly one device is expected, got %d", len(all))
	}
	d, ok := all[0].(*bladerf1.Dev)
	if !ok {
		return fmt.Errorf("device is unusable: %s", all[0])
	}
	defer func() {
		if err2 := d.Halt(); err == nil {
			err = err2
		}
	}()
	return run(d, physic.Frequency(*hz)*physic.Hertz, uint32(*rate))
}

func run(d *bladerf1.Dev, freq physic.Frequency, rate uint32) error {
	if err := d.Initialize(); err != nil {
		return err
	}
	for _, mod := range []bladerf.Module{bladerf.TX, bladerf.RX} {
		r, err := d.SetSampleRate(mod, rate)
		if err != nil {
			return err
		}
		if r != rate {
			return fmt.Errorf("%s: sample rate %d, expected %d", mod, r, rate)
		}
		if _, err := d.SetFrequency(mod, freq); err != nil {
			return err
		}
		got, err := d.GetFrequency(mod)
		if err != nil {
			return err
		}
		if diff := got - freq; diff > 2*physic.Hertz || diff < -2*physic.Hertz {
			return fmt.Errorf("%s: tuned to %s, expected %s", mod, got, freq)
		}
		v, err := d.Sweep(mod)
		if err != nil {
			return err
		}
		if _, _, ok := v.Norm(); !ok {
			return fmt.Errorf("%s: no VCOCAP code locks at %s", mod, freq)
		}
	}
	return nil
}
