// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package bitbang implements a byte level I²C master over two GPIO pins.
//
// Both lines are driven open drain: a line is released by setting the pin as
// an input with pull-up and is asserted by driving it low. External pull-up
// resistors are still recommended, the internal ones are weak.
//
// Devices holding SCL low (clock stretching) are waited for, up to
// Opts.StretchTimeout per clock pulse.
package bitbang

import (
	"errors"
	"fmt"
	"time"

	"github.com/GermanBionicSystems/devices-htu21/i2cm"
	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
)

// Opts holds the configuration options for the master.
type Opts struct {
	// HalfPeriod is half of the SCL period. Default is 5µs, which is 100kHz
	// at best. The effective speed depends on the host's sleep granularity.
	HalfPeriod time.Duration
	// StretchTimeout is how long a device may hold SCL low before the master
	// gives up on the current byte. The HTU21 holds it up to 50ms while
	// measuring in hold master mode. Default is 100ms.
	StretchTimeout time.Duration
	// Clock is used for every delay. Default is the real clock.
	Clock clockwork.Clock
}

// DefaultOpts holds the default configuration options for the master.
var DefaultOpts = Opts{
	HalfPeriod:     5 * time.Microsecond,
	StretchTimeout: 100 * time.Millisecond,
}

// Master is a bit banged I²C master. It implements i2cm.Master.
type Master struct {
	scl     gpio.PinIO
	sda     gpio.PinIO
	opts    Opts
	started bool
}

// New returns a Master using the scl and sda pins. Both lines are released.
// The Opts can be nil.
func New(scl, sda gpio.PinIO, opts *Opts) (*Master, error) {
	if scl == nil || sda == nil {
		return nil, errors.New("bitbang: both SCL and SDA pins are required")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.HalfPeriod <= 0 {
		o.HalfPeriod = DefaultOpts.HalfPeriod
	}
	if o.StretchTimeout <= 0 {
		o.StretchTimeout = DefaultOpts.StretchTimeout
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	m := &Master{scl: scl, sda: sda, opts: o}
	if err := scl.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("bitbang: releasing SCL %s: %w", scl, err)
	}
	if err := sda.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("bitbang: releasing SDA %s: %w", sda, err)
	}
	return m, nil
}

func (m *Master) String() string {
	return fmt.Sprintf("bitbang(SCL=%s, SDA=%s)", m.scl, m.sda)
}

// Halt implements conn.Resource.
//
// It releases both lines.
func (m *Master) Halt() error {
	m.started = false
	if err := m.sda.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("bitbang: %w", err)
	}
	if err := m.scl.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return fmt.Errorf("bitbang: %w", err)
	}
	return nil
}

// Start implements i2cm.Master.
func (m *Master) Start() {
	if m.started {
		// Repeated start: bring both lines back high first.
		m.setSDA(true)
		m.delay()
		m.raiseSCL()
		m.delay()
	}
	m.setSDA(false)
	m.delay()
	_ = m.scl.Out(gpio.Low)
	m.started = true
}

// Stop implements i2cm.Master.
func (m *Master) Stop() {
	if !m.started {
		m.setSDA(true)
		_ = m.scl.In(gpio.PullUp, gpio.NoEdge)
		return
	}
	m.setSDA(false)
	m.delay()
	m.raiseSCL()
	m.delay()
	m.setSDA(true)
	m.delay()
	m.started = false
}

// Transmit implements i2cm.Master.
//
// A device holding SCL low past StretchTimeout is reported as NACK.
func (m *Master) Transmit(b byte) i2cm.Ack {
	for i := 7; i >= 0; i-- {
		bit := b&(1<<uint(i)) != 0
		m.setSDA(bit)
		m.delay()
		if !m.raiseSCL() {
			m.setSDA(true)
			return i2cm.NACK
		}
		if bit && m.sda.Read() == gpio.Low {
			// Someone else is driving SDA.
			_ = m.scl.Out(gpio.Low)
			m.setSDA(true)
			return i2cm.Collision
		}
		m.delay()
		_ = m.scl.Out(gpio.Low)
	}
	m.setSDA(true)
	m.delay()
	if !m.raiseSCL() {
		return i2cm.NACK
	}
	ack := i2cm.NACK
	if m.sda.Read() == gpio.Low {
		ack = i2cm.ACK
	}
	m.delay()
	_ = m.scl.Out(gpio.Low)
	return ack
}

// Receive implements i2cm.Master.
//
// A device holding SCL low past StretchTimeout aborts the byte: SDA is
// released and 0xFF is returned, like an idle bus would read.
func (m *Master) Receive(ack i2cm.Ack) byte {
	m.setSDA(true)
	var b byte
	for range 8 {
		m.delay()
		if !m.raiseSCL() {
			return 0xff
		}
		b <<= 1
		if m.sda.Read() == gpio.High {
			b |= 1
		}
		m.delay()
		_ = m.scl.Out(gpio.Low)
	}
	m.setSDA(ack != i2cm.ACK)
	m.delay()
	if !m.raiseSCL() {
		m.setSDA(true)
		return 0xff
	}
	m.delay()
	_ = m.scl.Out(gpio.Low)
	m.setSDA(true)
	return b
}

// raiseSCL releases SCL and waits for the line to go high. It returns false
// if a device kept it low for longer than StretchTimeout.
func (m *Master) raiseSCL() bool {
	_ = m.scl.In(gpio.PullUp, gpio.NoEdge)
	budget := int(m.opts.StretchTimeout/m.opts.HalfPeriod) + 1
	for ; budget > 0; budget-- {
		if m.scl.Read() == gpio.High {
			return true
		}
		m.delay()
	}
	return false
}

func (m *Master) setSDA(high bool) {
	if high {
		_ = m.sda.In(gpio.PullUp, gpio.NoEdge)
	} else {
		_ = m.sda.Out(gpio.Low)
	}
}

func (m *Master) delay() {
	m.opts.Clock.Sleep(m.opts.HalfPeriod)
}

var _ i2cm.Master = &Master{}
var _ conn.Resource = &Master{}
