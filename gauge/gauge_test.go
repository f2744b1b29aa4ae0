// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package gauge

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/maruel/ansi256"
)

func TestNew(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, &Opts{Min: 10, Max: 5}); err == nil {
		t.Error("expected error on empty range")
	}
	d, err := New(&bytes.Buffer{}, &Opts{})
	if err != nil {
		t.Fatal(err)
	}
	if d.opts.Width != 40 || d.opts.Max != 100 {
		t.Errorf("defaults not applied: %#v", d.opts)
	}
	if s := d.String(); s != "Gauge" {
		t.Error(s)
	}
}

func TestCells(t *testing.T) {
	d, err := New(&bytes.Buffer{}, &Opts{Width: 10, Min: -40, Max: 60})
	if err != nil {
		t.Fatal(err)
	}
	data := []struct {
		v    float64
		want int
	}{
		{-100, 0},
		{-40, 0},
		{10, 5},
		{14, 5},
		{16, 6},
		{60, 10},
		{200, 10},
		{math.Inf(1), 10},
	}
	for _, line := range data {
		if got := d.Cells(line.v); got != line.want {
			t.Errorf("Cells(%g) = %d, want %d", line.v, got, line.want)
		}
	}
}

func TestDraw(t *testing.T) {
	buf := &bytes.Buffer{}
	d, err := New(buf, &Opts{Width: 4})
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Draw(50, "50%rH"); err != nil {
		t.Fatal(err)
	}
	p := ansi256.Default
	expected := "\r\033[0m" + p.Block(cold) + p.Block(blend(cold, hot, 1./3)) + p.Block(empty) + p.Block(empty) + "\033[0m 50%rH"
	if s := buf.String(); s != expected {
		t.Errorf("%q != %q", s, expected)
	}

	// Redraws overwrite the line.
	buf.Reset()
	if err := d.Draw(100, "full"); err != nil {
		t.Fatal(err)
	}
	if s := buf.String(); !strings.HasPrefix(s, "\r") || !strings.HasSuffix(s, " full") || strings.Contains(s, p.Block(empty)) {
		t.Errorf("unexpected %q", s)
	}
	if err := d.Draw(math.NaN(), ""); err == nil {
		t.Error("expected error on NaN")
	}
}

func TestHalt(t *testing.T) {
	buf := &bytes.Buffer{}
	d, err := New(buf, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if s := buf.String(); s != "\n\033[0m" {
		t.Errorf("%q", s)
	}
}

func TestBlend(t *testing.T) {
	if c := blend(cold, hot, 0); c != cold {
		t.Errorf("%v", c)
	}
	if c := blend(cold, hot, 1); c != hot {
		t.Errorf("%v", c)
	}
}
