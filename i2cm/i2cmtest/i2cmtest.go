// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package i2cmtest is meant to be used to test drivers over a fake byte level
// I²C master.
package i2cmtest

import (
	"fmt"
	"sync"

	"github.com/GermanBionicSystems/devices-htu21/i2cm"
	"periph.io/x/conn/v3/conntest"
)

// Op is a bus operation.
type Op uint8

const (
	OpStart Op = iota
	OpStop
	OpTransmit
	OpReceive
)

func (o Op) String() string {
	switch o {
	case OpStart:
		return "Start"
	case OpStop:
		return "Stop"
	case OpTransmit:
		return "Transmit"
	case OpReceive:
		return "Receive"
	default:
		return fmt.Sprintf("Op(%d)", uint8(o))
	}
}

// Step registers one operation that happened on either a real or fake bus.
//
// For OpTransmit, B is the byte sent and Ack the device's answer. For
// OpReceive, B is the byte received and Ack the master's answer.
type Step struct {
	Op  Op
	B   byte
	Ack i2cm.Ack
}

func (s Step) String() string {
	switch s.Op {
	case OpTransmit, OpReceive:
		return fmt.Sprintf("%s(0x%02x, %s)", s.Op, s.B, s.Ack)
	default:
		return s.Op.String()
	}
}

// Start returns a start (or repeated start) step.
func Start() Step {
	return Step{Op: OpStart}
}

// Stop returns a stop step.
func Stop() Step {
	return Step{Op: OpStop}
}

// Transmit returns a step where b is sent and the device answers ack.
func Transmit(b byte, ack i2cm.Ack) Step {
	return Step{Op: OpTransmit, B: b, Ack: ack}
}

// Receive returns a step where b is received and the master answers ack.
func Receive(b byte, ack i2cm.Ack) Step {
	return Step{Op: OpReceive, B: b, Ack: ack}
}

// Record implements i2cm.Master and records everything going through it.
//
// This can then be used to feed to Playback to do "replay" based unit tests.
type Record struct {
	sync.Mutex
	Master i2cm.Master // Master can be nil, then every byte is acknowledged and reads return 0xFF.
	Steps  []Step
}

func (r *Record) String() string {
	return "record"
}

// Start implements i2cm.Master.
func (r *Record) Start() {
	r.Lock()
	defer r.Unlock()
	if r.Master != nil {
		r.Master.Start()
	}
	r.Steps = append(r.Steps, Start())
}

// Stop implements i2cm.Master.
func (r *Record) Stop() {
	r.Lock()
	defer r.Unlock()
	if r.Master != nil {
		r.Master.Stop()
	}
	r.Steps = append(r.Steps, Stop())
}

// Transmit implements i2cm.Master.
func (r *Record) Transmit(b byte) i2cm.Ack {
	r.Lock()
	defer r.Unlock()
	ack := i2cm.ACK
	if r.Master != nil {
		ack = r.Master.Transmit(b)
	}
	r.Steps = append(r.Steps, Transmit(b, ack))
	return ack
}

// Receive implements i2cm.Master.
func (r *Record) Receive(ack i2cm.Ack) byte {
	r.Lock()
	defer r.Unlock()
	b := byte(0xff)
	if r.Master != nil {
		b = r.Master.Receive(ack)
	}
	r.Steps = append(r.Steps, Receive(b, ack))
	return b
}

// Playback implements i2cm.Master and plays back a recorded bus flow.
//
// Set DontPanic to true to collect mismatches instead of panicking, which is
// the default. Collected mismatches are returned by Close().
type Playback struct {
	sync.Mutex
	Steps     []Step
	Count     int
	DontPanic bool

	errs []error
}

func (p *Playback) String() string {
	return "playback"
}

// Close verifies that all the expected Steps have been consumed and that no
// mismatch happened. It never panics.
func (p *Playback) Close() error {
	p.Lock()
	defer p.Unlock()
	if len(p.errs) != 0 {
		return p.errs[0]
	}
	if len(p.Steps) != p.Count {
		return conntest.Errorf("i2cmtest: expected playback to be empty: step count %d; expected %d", p.Count, len(p.Steps))
	}
	return nil
}

// Start implements i2cm.Master.
func (p *Playback) Start() {
	p.Lock()
	defer p.Unlock()
	p.next(Start())
}

// Stop implements i2cm.Master.
func (p *Playback) Stop() {
	p.Lock()
	defer p.Unlock()
	p.next(Stop())
}

// Transmit implements i2cm.Master.
//
// It returns the recorded answer, or NACK on mismatch.
func (p *Playback) Transmit(b byte) i2cm.Ack {
	p.Lock()
	defer p.Unlock()
	s, ok := p.next(Step{Op: OpTransmit, B: b})
	if !ok {
		return i2cm.NACK
	}
	return s.Ack
}

// Receive implements i2cm.Master.
//
// It returns the recorded byte, or 0xFF on mismatch.
func (p *Playback) Receive(ack i2cm.Ack) byte {
	p.Lock()
	defer p.Unlock()
	s, ok := p.next(Step{Op: OpReceive, Ack: ack})
	if !ok {
		return 0xff
	}
	return s.B
}

// next consumes the next step if it matches got. Only the fields set by the
// caller are compared: the byte for a transmit, the answer for a receive.
func (p *Playback) next(got Step) (Step, bool) {
	if len(p.Steps) <= p.Count {
		p.errorf("i2cmtest: unexpected %s (count #%d)", got.Op, p.Count)
		return Step{}, false
	}
	want := p.Steps[p.Count]
	if want.Op != got.Op {
		p.errorf("i2cmtest: unexpected %s (count #%d) expecting %s", got.Op, p.Count, want)
		return Step{}, false
	}
	if got.Op == OpTransmit && want.B != got.B {
		p.errorf("i2cmtest: unexpected write (count #%d) 0x%02x != 0x%02x", p.Count, got.B, want.B)
		return Step{}, false
	}
	if got.Op == OpReceive && want.Ack != got.Ack {
		p.errorf("i2cmtest: unexpected read answer (count #%d) %s != %s", p.Count, got.Ack, want.Ack)
		return Step{}, false
	}
	p.Count++
	return want, true
}

// errorf records the error, or panics unless DontPanic is set.
func (p *Playback) errorf(format string, a ...interface{}) {
	err := conntest.Errorf(format, a...)
	if !p.DontPanic {
		panic(err)
	}
	p.errs = append(p.errs, err)
}

var _ i2cm.Master = &Record{}
var _ i2cm.Master = &Playback{}
