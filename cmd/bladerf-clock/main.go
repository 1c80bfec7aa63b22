// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// bladerf-clock programs the Si5338 clocks of a bladeRF x40/x115.
//
// It can set the RX and TX sample rates, with an optional fraction, and the
// frequency of the clock output on the SMB connector.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	"periph.io/x/bladerf"
	"periph.io/x/bladerf/bladerf1"
	"periph.io/x/bladerf/config"
	"periph.io/x/bladerf/devices/si5338"
	"periph.io/x/bladerf/logging"
)

// program applies the requested clocks and prints what was achieved.
func program(d *bladerf1.Dev, rx, tx si5338.Rate, smb uint32) error {
	for _, r := range []struct {
		mod  bladerf.Module
		rate si5338.Rate
	}{{bladerf.RX, rx}, {bladerf.TX, tx}} {
		if r.rate.Integer == 0 {
			continue
		}
		got, err := d.SetRationalSampleRate(r.mod, r.rate)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", r.mod, got)
	}
	if smb != 0 {
		got, err := d.SetSmbFreq(smb)
		if err != nil {
			return err
		}
		fmt.Printf("SMB: %dHz\n", got)
	}
	return nil
}

func mainImpl() error {
	verbose := flag.Bool("v", false, "verbose mode")
	cfgPath := flag.String("config", "", "YAML configuration file")
	serial := flag.String("serial", "", "serial number of the device to open")
	rx := flag.Uint64("rx", 0, "RX sample rate in Hz")
	tx := flag.Uint64("tx", 0, "TX sample rate in Hz")
	num := flag.Uint64("num", 0, "numerator of the fractional part of -rx and -tx")
	den := flag.Uint64("den", 1, "denominator of the fractional part of -rx and -tx")
	smb := flag.Uint("smb", 0, "SMB clock output frequency in Hz")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}
	if *rx == 0 && *tx == 0 && *smb == 0 {
		return errors.New("at least one of -rx, -tx or -smb is required")
	}
	if *den == 0 {
		return errors.New("-den must not be 0")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}
	if *serial != "" {
		cfg.Device.Serial = *serial
		cfg.Device.Bus, cfg.Device.Addr = 0, 0
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()
	opts, err := cfg.Device.Opts()
	if err != nil {
		return err
	}
	opts.Logger = log

	var d *bladerf1.Dev
	switch {
	case cfg.Device.Serial != "":
		d, err = bladerf1.OpenSerial(cfg.Device.Serial, opts)
	case cfg.Device.Bus != 0:
		d, err = bladerf1.OpenBusAddr(cfg.Device.Bus, cfg.Device.Addr, opts)
	default:
		d, err = bladerf1.Open(opts)
	}
	if err != nil {
		return err
	}
	defer d.Close()
	log.Debug("opened", zap.Stringer("device", d), zap.Stringer("fpga", d.FPGAVersion()))

	rate := func(hz uint64) si5338.Rate {
		if hz == 0 {
			return si5338.Rate{}
		}
		return si5338.Rate{Integer: hz, Num: *num, Den: *den}
	}
	return program(d, rate(*rx), rate(*tx), uint32(*smb))
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "bladerf-clock: %s.\n", err)
		os.Exit(1)
	}
}
