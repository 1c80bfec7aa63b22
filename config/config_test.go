// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/bladerf/bladerf1"
	"periph.io/x/bladerf/devices/si5338"
	"periph.io/x/periph/conn/physic"
)

func TestLoad_defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, time.Second, c.Device.Timeout)
	assert.Equal(t, "index", c.Device.SIBase)
	assert.Equal(t, "auto", c.Device.Atomic)
	assert.Equal(t, uint16(0), c.Device.DACTrim)
	assert.Equal(t, Tuning{}, c.Tuning)
	assert.Equal(t, "warn", c.Logging.Level)
	assert.Equal(t, "console", c.Logging.Format)
	assert.False(t, c.Metrics.Enable)
	assert.Equal(t, "localhost:9090", c.Metrics.Addr)
}

func TestLoad_env(t *testing.T) {
	t.Setenv("BLADERF_DEVICE_SERIAL", "a1b2")
	t.Setenv("BLADERF_DEVICE_DACTRIM", "34000")
	t.Setenv("BLADERF_TUNING_RXFREQUENCY", "915000000")
	t.Setenv("BLADERF_LOGGING_LEVEL", "debug")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "a1b2", c.Device.Serial)
	assert.Equal(t, uint16(34000), c.Device.DACTrim)
	assert.Equal(t, uint64(915000000), c.Tuning.RXFrequency)
	assert.Equal(t, "debug", c.Logging.Level)
}

func TestLoad_file(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bladerf.yaml")
	data := `device:
  timeout: 250ms
  siBase: unset
  atomic: "off"
tuning:
  txFrequency: 2447000000
  txSampleRate: 2000000
metrics:
  enable: true
`
	require.NoError(t, os.WriteFile(p, []byte(data), 0o600))
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, c.Device.Timeout)
	assert.Equal(t, uint64(2447000000), c.Tuning.TXFrequency)
	assert.Equal(t, uint32(2000000), c.Tuning.TXSampleRate)
	assert.True(t, c.Metrics.Enable)

	o, err := c.Device.Opts()
	require.NoError(t, err)
	assert.Equal(t, &bladerf1.Opts{Timeout: 250 * time.Millisecond, SIBase: si5338.BaseUnset, Atomic: bladerf1.AtomicOff}, o)
	assert.Equal(t, &bladerf1.Settings{TXFrequency: 2447 * physic.MegaHertz, TXSampleRate: 2000000}, c.Tuning.Settings())

	// The dump loads back.
	var b bytes.Buffer
	require.NoError(t, c.Dump(&b))
	assert.Contains(t, b.String(), "  timeout: 250ms\n")
	p2 := filepath.Join(t.TempDir(), "dump.yaml")
	require.NoError(t, os.WriteFile(p2, b.Bytes(), 0o600))
	c2, err := Load(p2)
	require.NoError(t, err)
	assert.Equal(t, c, c2)
}

func TestLoad_missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_invalid(t *testing.T) {
	t.Setenv("BLADERF_DEVICE_ATOMIC", "maybe")
	_, err := Load("")
	assert.ErrorContains(t, err, "device.atomic")
}

func TestValidate(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	c.Device.Serial = "x"
	c.Device.Bus = 1
	c.Device.Timeout = 0
	c.Device.SIBase = "zero"
	c.Tuning.RXFrequency = 100
	c.Tuning.TXSampleRate = 1000
	c.Logging.Level = "loud"
	c.Logging.Format = "xml"
	c.Metrics.Enable = true
	c.Metrics.Addr = ""
	err = c.Validate()
	require.Error(t, err)
	for _, s := range []string{
		"mutually exclusive",
		"must be set together",
		"device.timeout",
		"device.siBase",
		"tuning.rxFrequency 100 outside [237500000, 3800000000]",
		"tuning.txSampleRate 1000 below 80000",
		`logging.level "loud"`,
		`logging.format "xml"`,
		"metrics.addr",
	} {
		assert.ErrorContains(t, err, s)
	}
}

func TestDump(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	var b bytes.Buffer
	require.NoError(t, c.Dump(&b))
	s := b.String()
	assert.Contains(t, s, "device:\n")
	assert.Contains(t, s, "  timeout: 1s\n")
	assert.Contains(t, s, "  siBase: index\n")
	assert.Contains(t, s, "  level: warn\n")
}
