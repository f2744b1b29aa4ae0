// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gauge draws a single line bar gauge on a terminal using ANSI color
// codes.
//
// Each call to Draw overwrites the current line, so successive readings
// animate in place.
package gauge

import (
	"bytes"
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
)

// Opts represents the options available for the gauge.
type Opts struct {
	// Width is the number of cells of the bar. Default is 40.
	Width int
	// Palette maps colors to terminal codes. Default is ansi256.Default.
	Palette *ansi256.Palette
	// Min and Max are the values at both ends of the bar. Default is 0 to 100.
	Min, Max float64
}

// DefaultOpts is a 0 to 100 gauge, suitable for relative humidity.
var DefaultOpts = Opts{Width: 40, Min: 0, Max: 100}

var (
	cold  = color.NRGBA{0, 64, 255, 255}
	hot   = color.NRGBA{255, 32, 0, 255}
	empty = color.NRGBA{32, 32, 32, 255}
)

// Dev is a console bar gauge.
type Dev struct {
	w       io.Writer
	opts    Opts
	palette ansi256.Palette

	buf bytes.Buffer
}

// New returns a gauge writing to w, or to the console when w is nil. The Opts
// can be nil.
func New(w io.Writer, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.Width <= 0 {
		o.Width = DefaultOpts.Width
	}
	if o.Min == 0 && o.Max == 0 {
		o.Min, o.Max = DefaultOpts.Min, DefaultOpts.Max
	}
	if o.Max <= o.Min {
		return nil, fmt.Errorf("gauge: empty range [%g, %g]", o.Min, o.Max)
	}
	p := o.Palette
	if p == nil {
		p = ansi256.Default
	}
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	return &Dev{w: w, opts: o, palette: *p}, nil
}

func (d *Dev) String() string {
	return "Gauge"
}

// Halt implements conn.Resource.
//
// It moves to the next line and resets the colors.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// Draw renders v as a bar followed by label. Values outside the range are
// clamped. NaN is rejected.
func (d *Dev) Draw(v float64, label string) error {
	if math.IsNaN(v) {
		return errors.New("gauge: NaN value")
	}
	n := d.Cells(v)
	d.buf.Reset()
	last := max(d.opts.Width-1, 1)
	_, _ = d.buf.WriteString("\r\033[0m")
	for i := range d.opts.Width {
		c := empty
		if i < n {
			c = blend(cold, hot, float64(i)/float64(last))
		}
		_, _ = io.WriteString(&d.buf, d.palette.Block(c))
	}
	_, _ = d.buf.WriteString("\033[0m ")
	_, _ = d.buf.WriteString(label)
	_, err := d.buf.WriteTo(d.w)
	return err
}

// Cells returns the number of filled cells for v.
func (d *Dev) Cells(v float64) int {
	f := (v - d.opts.Min) / (d.opts.Max - d.opts.Min)
	f = math.Max(0, math.Min(1, f))
	return int(math.Round(f * float64(d.opts.Width)))
}

// blend interpolates linearly between a and b, f being in [0, 1].
func blend(a, b color.NRGBA, f float64) color.NRGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*f))
	}
	return color.NRGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 255}
}

var _ fmt.Stringer = &Dev{}
