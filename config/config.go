// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config loads the settings shared by the bladeRF commands.
//
// Values come from an optional YAML file, overridden by environment variables
// prefixed with BLADERF_, e.g. BLADERF_DEVICE_SERIAL or
// BLADERF_TUNING_RXFREQUENCY.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
	"periph.io/x/bladerf/bladerf1"
	"periph.io/x/bladerf/devices/lms6002d"
	"periph.io/x/bladerf/devices/si5338"
	"periph.io/x/periph/conn/physic"
)

// Device selects and configures the device to open.
type Device struct {
	// Serial selects a device by serial number. Bus and Addr select it by USB
	// location. If all are unset, the first device found is used.
	Serial  string        `mapstructure:"serial" yaml:"serial"`
	Bus     int           `mapstructure:"bus" yaml:"bus"`
	Addr    int           `mapstructure:"addr" yaml:"addr"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	DACTrim uint16        `mapstructure:"dacTrim" yaml:"dacTrim"`
	SIBase  string        `mapstructure:"siBase" yaml:"siBase"`
	Atomic  string        `mapstructure:"atomic" yaml:"atomic"`
}

// Tuning is the RF configuration applied after initialization. Zero values
// are left untouched.
type Tuning struct {
	RXFrequency  uint64 `mapstructure:"rxFrequency" yaml:"rxFrequency"`
	TXFrequency  uint64 `mapstructure:"txFrequency" yaml:"txFrequency"`
	RXSampleRate uint32 `mapstructure:"rxSampleRate" yaml:"rxSampleRate"`
	TXSampleRate uint32 `mapstructure:"txSampleRate" yaml:"txSampleRate"`
}

// File is the rotated log file.
type File struct {
	Filename   string `mapstructure:"filename" yaml:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize" yaml:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups" yaml:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge" yaml:"maxAge"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// Logging is the log level and outputs.
type Logging struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   File   `mapstructure:"file" yaml:"file"`
}

// Metrics is the Prometheus endpoint.
type Metrics struct {
	Enable bool   `mapstructure:"enable" yaml:"enable"`
	Addr   string `mapstructure:"addr" yaml:"addr"`
}

// Config is the top level configuration.
type Config struct {
	Device  Device  `mapstructure:"device" yaml:"device"`
	Tuning  Tuning  `mapstructure:"tuning" yaml:"tuning"`
	Logging Logging `mapstructure:"logging" yaml:"logging"`
	Metrics Metrics `mapstructure:"metrics" yaml:"metrics"`
}

// Load reads the configuration from the YAML file at path, if not empty, and
// from the environment.
//
// The result is validated.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BLADERF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("device.serial", "")
	v.SetDefault("device.bus", 0)
	v.SetDefault("device.addr", 0)
	v.SetDefault("device.timeout", "1s")
	v.SetDefault("device.dacTrim", 0)
	v.SetDefault("device.siBase", "index")
	v.SetDefault("device.atomic", "auto")

	v.SetDefault("tuning.rxFrequency", 0)
	v.SetDefault("tuning.txFrequency", 0)
	v.SetDefault("tuning.rxSampleRate", 0)
	v.SetDefault("tuning.txSampleRate", 0)

	v.SetDefault("logging.level", "warn")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file.filename", "")
	v.SetDefault("logging.file.maxSize", 10)
	v.SetDefault("logging.file.maxBackups", 3)
	v.SetDefault("logging.file.maxAge", 7)
	v.SetDefault("logging.file.compress", false)

	v.SetDefault("metrics.enable", false)
	v.SetDefault("metrics.addr", "localhost:9090")
}

// Validate returns all the invalid values found.
func (c *Config) Validate() error {
	var errs []error
	d := &c.Device
	if d.Serial != "" && (d.Bus != 0 || d.Addr != 0) {
		errs = append(errs, errors.New("device.serial and device.bus/addr are mutually exclusive"))
	}
	if d.Bus < 0 || d.Addr < 0 {
		errs = append(errs, fmt.Errorf("device.bus %d and device.addr %d must be positive", d.Bus, d.Addr))
	}
	if (d.Bus == 0) != (d.Addr == 0) {
		errs = append(errs, errors.New("device.bus and device.addr must be set together"))
	}
	if d.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("device.timeout %s must be positive", d.Timeout))
	}
	if _, err := si5338.ParseBaseMode(d.SIBase); err != nil {
		errs = append(errs, fmt.Errorf("device.siBase: %w", err))
	}
	if _, err := bladerf1.ParseAtomic(d.Atomic); err != nil {
		errs = append(errs, fmt.Errorf("device.atomic: %w", err))
	}
	for _, f := range [...]struct {
		name string
		hz   uint64
	}{{"tuning.rxFrequency", c.Tuning.RXFrequency}, {"tuning.txFrequency", c.Tuning.TXFrequency}} {
		if f.hz != 0 && (f.hz < lms6002d.FreqMin || f.hz > lms6002d.FreqMax) {
			errs = append(errs, fmt.Errorf("%s %d outside [%d, %d]", f.name, f.hz, uint64(lms6002d.FreqMin), uint64(lms6002d.FreqMax)))
		}
	}
	for _, r := range [...]struct {
		name string
		hz   uint32
	}{{"tuning.rxSampleRate", c.Tuning.RXSampleRate}, {"tuning.txSampleRate", c.Tuning.TXSampleRate}} {
		if r.hz != 0 && r.hz < si5338.SampleRateMin {
			errs = append(errs, fmt.Errorf("%s %d below %d", r.name, r.hz, si5338.SampleRateMin))
		}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q unknown", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q unknown", c.Logging.Format))
	}
	if c.Metrics.Enable && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Dump writes the effective configuration as YAML.
func (c *Config) Dump(w io.Writer) error {
	e := yaml.NewEncoder(w)
	e.SetIndent(2)
	if err := e.Encode(c); err != nil {
		return err
	}
	return e.Close()
}

// MarshalYAML renders Timeout as a duration string so that Dump output can be
// loaded back.
func (d Device) MarshalYAML() (any, error) {
	type plain Device
	var n yaml.Node
	if err := n.Encode(plain(d)); err != nil {
		return nil, err
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "timeout" {
			n.Content[i+1].SetString(d.Timeout.String())
		}
	}
	return &n, nil
}

// Opts returns the options to open the device with.
func (d *Device) Opts() (*bladerf1.Opts, error) {
	b, err := si5338.ParseBaseMode(d.SIBase)
	if err != nil {
		return nil, err
	}
	a, err := bladerf1.ParseAtomic(d.Atomic)
	if err != nil {
		return nil, err
	}
	return &bladerf1.Opts{Timeout: d.Timeout, DACTrim: d.DACTrim, SIBase: b, Atomic: a}, nil
}

// Settings returns the RF configuration to apply.
func (t *Tuning) Settings() *bladerf1.Settings {
	return &bladerf1.Settings{
		RXFrequency:  physic.Frequency(t.RXFrequency) * physic.Hertz,
		TXFrequency:  physic.Frequency(t.TXFrequency) * physic.Hertz,
		RXSampleRate: t.RXSampleRate,
		TXSampleRate: t.TXSampleRate,
	}
}
