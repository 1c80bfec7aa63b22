// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// bladerf inspects and tunes a bladeRF x40/x115.
//
// Usage:
//
//	bladerf [flags] list
//	bladerf [flags] info
//	bladerf [flags] init
//	bladerf [flags] tune <rx|tx> <hz>
//	bladerf [flags] sweep <rx|tx>
//	bladerf [flags] regdump
//	bladerf [flags] scan <rx|tx> <start> <stop> <step>
//	bladerf [flags] config
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"periph.io/x/bladerf"
	"periph.io/x/bladerf/bladerf1"
	"periph.io/x/bladerf/config"
	"periph.io/x/bladerf/devices/vtunemap"
	"periph.io/x/bladerf/hostextra"
	"periph.io/x/bladerf/logging"
	"periph.io/x/bladerf/metrics"
	"periph.io/x/periph/conn/physic"
)

func parseModule(s string) (bladerf.Module, error) {
	switch strings.ToLower(s) {
	case "rx":
		return bladerf.RX, nil
	case "tx":
		return bladerf.TX, nil
	}
	return 0, fmt.Errorf("invalid module %q, use rx or tx", s)
}

// parseHz accepts integers and floats, e.g. 915000000 or 915e6.
func parseHz(s string) (physic.Frequency, error) {
	if v, err := strconv.ParseUint(s, 10, 64); err == nil {
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("frequency %q is out of range", s)
		}
		return physic.Frequency(v) * physic.Hertz, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || v < 0 {
		return 0, fmt.Errorf("invalid frequency %q", s)
	}
	// float64(math.MaxInt64) rounds up to 2^63.
	if v >= math.MaxInt64 {
		return 0, fmt.Errorf("frequency %q is out of range", s)
	}
	return physic.Frequency(v) * physic.Hertz, nil
}

// env is what every command needs.
type env struct {
	cfg *config.Config
	log *zap.Logger
	m   *metrics.Metrics
}

func (e *env) open() (*bladerf1.Dev, error) {
	opts, err := e.cfg.Device.Opts()
	if err != nil {
		return nil, err
	}
	opts.Logger = e.log
	if e.m != nil {
		opts.Exchange = e.m
		opts.Tune = e.m
	}
	switch {
	case e.cfg.Device.Serial != "":
		return bladerf1.OpenSerial(e.cfg.Device.Serial, opts)
	case e.cfg.Device.Bus != 0:
		return bladerf1.OpenBusAddr(e.cfg.Device.Bus, e.cfg.Device.Addr, opts)
	default:
		return bladerf1.Open(opts)
	}
}

// list enumerates the devices found by the bladerf1 driver, then releases
// them.
func list(w io.Writer) error {
	if _, err := hostextra.Init(); err != nil {
		return err
	}
	all := bladerf1.All()
	plural := ""
	if len(all) != 1 {
		plural = "s"
	}
	fmt.Fprintf(w, "Found %d device%s\n", len(all), plural)
	var errs []error
	for i, r := range all {
		fmt.Fprintf(w, "- Device #%d: %s\n", i, r)
		if c, ok := r.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func info(w io.Writer, d *bladerf1.Dev) error {
	fmt.Fprintf(w, "Device:   %s\n", d)
	fmt.Fprintf(w, "FPGA:     %s\n", d.FPGAVersion())
	fmt.Fprintf(w, "Speed:    %s\n", d.Speed())
	fmt.Fprintf(w, "Session:  %s\n", d.Session())
	if lb, err := d.Loopback(); err == nil {
		fmt.Fprintf(w, "Loopback: %s\n", lb)
	} else {
		fmt.Fprintf(w, "Loopback: %v\n", err)
	}
	for _, mod := range []bladerf.Module{bladerf.RX, bladerf.TX} {
		f, err := d.GetFrequency(mod)
		if err != nil {
			return err
		}
		sr, err := d.GetSampleRate(mod)
		if err != nil {
			// Not configured yet.
			fmt.Fprintf(w, "%s:       %s\n", mod, f)
			continue
		}
		fmt.Fprintf(w, "%s:       %s @ %dsps\n", mod, f, sr)
	}
	return nil
}

func initialize(e *env, d *bladerf1.Dev) error {
	if err := d.Initialize(); err != nil {
		return err
	}
	return d.Apply(e.cfg.Tuning.Settings())
}

func tune(d *bladerf1.Dev, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: tune <rx|tx> <hz>")
	}
	mod, err := parseModule(args[0])
	if err != nil {
		return err
	}
	f, err := parseHz(args[1])
	if err != nil {
		return err
	}
	p, err := d.SetFrequency(mod, f)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %s\n", mod, &p)
	return nil
}

func sweep(d *bladerf1.Dev, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: sweep <rx|tx>")
	}
	mod, err := parseModule(args[0])
	if err != nil {
		return err
	}
	s, err := d.Sweep(mod)
	if err != nil {
		return err
	}
	v := vtunemap.NewStdout()
	defer v.Halt()
	if err := v.Draw(&s); err != nil {
		return err
	}
	if lo, hi, ok := s.Norm(); ok {
		fmt.Printf("%s: NORM for VCOCAP %d to %d\n", mod, lo, hi)
	} else {
		fmt.Printf("%s: no VCOCAP code reads NORM\n", mod)
	}
	return nil
}

func regdump(d *bladerf1.Dev) error {
	regs, err := d.DumpRegisters()
	if err != nil {
		return err
	}
	for _, r := range regs {
		fmt.Printf("0x%02x: 0x%02x\n", r.Addr, r.Value)
	}
	return nil
}

// scan tunes a module from start to stop, at most perSec times per second.
func scan(ctx context.Context, d *bladerf1.Dev, perSec float64, args []string) error {
	if len(args) != 4 {
		return errors.New("usage: scan <rx|tx> <start> <stop> <step>")
	}
	mod, err := parseModule(args[0])
	if err != nil {
		return err
	}
	var f [3]physic.Frequency
	for i := range f {
		if f[i], err = parseHz(args[1+i]); err != nil {
			return err
		}
	}
	start, stop, step := f[0], f[1], f[2]
	if step <= 0 || stop < start {
		return errors.New("scan requires start <= stop and step > 0")
	}
	l := rate.NewLimiter(rate.Limit(perSec), 1)
	for hz := start; hz <= stop; hz += step {
		if err := l.Wait(ctx); err != nil {
			return err
		}
		p, err := d.SetFrequency(mod, hz)
		if err != nil {
			if errors.Is(err, bladerf.ErrConvergence) {
				fmt.Printf("%s: %v\n", hz, err)
				continue
			}
			return err
		}
		fmt.Printf("%s: VCOCAP %d\n", hz, p.VCOCAPResult)
	}
	return nil
}

func serveMetrics(addr string, reg http.Handler, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg)
	s := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()
	return s
}

func mainImpl() error {
	verbose := flag.Bool("v", false, "verbose mode")
	cfgPath := flag.String("config", "", "YAML configuration file")
	serial := flag.String("serial", "", "serial number of the device to open")
	enableMetrics := flag.Bool("metrics", false, "serve Prometheus metrics while running")
	perSec := flag.Float64("rate", 10, "scan: tunings per second")
	flag.Parse()
	if flag.NArg() == 0 {
		return errors.New("missing command, try -help")
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
	if *enableMetrics {
		cfg.Metrics.Enable = true
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Sync()
	undo := zap.ReplaceGlobals(log)
	defer undo()

	cmd, args := flag.Arg(0), flag.Args()[1:]
	switch cmd {
	case "list":
		return list(os.Stdout)
	case "config":
		return cfg.Dump(os.Stdout)
	}

	e := &env{cfg: cfg, log: log}
	if cfg.Metrics.Enable {
		reg := metrics.NewRegistry()
		e.m = metrics.New(reg)
		s := serveMetrics(cfg.Metrics.Addr, metrics.Handler(reg), log)
		defer s.Close()
	}
	d, err := e.open()
	if err != nil {
		return err
	}
	defer d.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	switch cmd {
	case "info":
		return info(os.Stdout, d)
	case "init":
		return initialize(e, d)
	case "tune":
		return tune(d, args)
	case "sweep":
		return sweep(d, args)
	case "regdump":
		return regdump(d)
	case "scan":
		return scan(ctx, d, *perSec, args)
	default:
		return fmt.Errorf("unknown command %q, try -help", cmd)
	}
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "bladerf: %s.\n", err)
		os.Exit(1)
	}
}
