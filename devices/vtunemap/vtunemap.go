// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package vtunemap draws LMS6002D VTUNE sweeps on a terminal using ANSI color
// codes.
//
// Each VCOCAP code is one cell: red when VTUNE reads HIGH, green for NORM and
// blue for LOW. The tuning search settles in the middle of the green area.
package vtunemap // import "periph.io/x/bladerf/devices/vtunemap"

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"periph.io/x/bladerf/devices/lms6002d"
	"periph.io/x/periph/conn"
)

// Colors used per VTUNE state.
var (
	High    = color.NRGBA{R: 255, A: 255}
	Norm    = color.NRGBA{G: 255, A: 255}
	Low     = color.NRGBA{B: 255, A: 255}
	Invalid = color.NRGBA{R: 128, G: 128, B: 128, A: 255}
)

// Dev draws sweeps to a writer.
type Dev struct {
	w     io.Writer
	plain bool
	buf   bytes.Buffer
}

// New returns a Dev that writes ANSI colors to w.
func New(w io.Writer) *Dev {
	return &Dev{w: w}
}

// NewPlain returns a Dev that writes one character per code to w: '^' for
// HIGH, '=' for NORM and 'v' for LOW.
func NewPlain(w io.Writer) *Dev {
	return &Dev{w: w, plain: true}
}

// NewStdout returns a Dev that displays on the console.
//
// Colors are only used when stdout is a terminal.
func NewStdout() *Dev {
	fd := os.Stdout.Fd()
	if !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd) {
		return NewPlain(os.Stdout)
	}
	return New(colorable.NewColorableStdout())
}

func (d *Dev) String() string {
	return "VTuneMap"
}

// Halt implements conn.Resource.
//
// It resets the terminal attributes.
func (d *Dev) Halt() error {
	if d.plain {
		return nil
	}
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// Draw writes one sweep as a single line.
func (d *Dev) Draw(s *lms6002d.Sweep) error {
	d.buf.Reset()
	if d.plain {
		for _, v := range s {
			_ = d.buf.WriteByte(char(v))
		}
		_ = d.buf.WriteByte('\n')
	} else {
		_, _ = d.buf.WriteString("\r\033[0m")
		for _, v := range s {
			_, _ = io.WriteString(&d.buf, ansi256.Default.Block(Color(v)))
		}
		_, _ = d.buf.WriteString("\033[0m\n")
	}
	_, err := d.buf.WriteTo(d.w)
	return err
}

// Color returns the color used for a VTUNE state.
func Color(v lms6002d.VTune) color.NRGBA {
	switch v {
	case lms6002d.VTuneHigh:
		return High
	case lms6002d.VTuneNorm:
		return Norm
	case lms6002d.VTuneLow:
		return Low
	default:
		return Invalid
	}
}

func char(v lms6002d.VTune) byte {
	switch v {
	case lms6002d.VTuneHigh:
		return '^'
	case lms6002d.VTuneNorm:
		return '='
	case lms6002d.VTuneLow:
		return 'v'
	default:
		return '?'
	}
}

var _ conn.Resource = &Dev{}
var _ fmt.Stringer = &Dev{}
