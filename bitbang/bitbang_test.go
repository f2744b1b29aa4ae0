// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package bitbang

import (
	"bytes"
	"testing"
	"time"

	"github.com/GermanBionicSystems/devices-htu21/i2cm"
	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

// virtualClock advances instead of blocking.
type virtualClock struct {
	clockwork.FakeClock
}

func (c virtualClock) Sleep(d time.Duration) {
	c.Advance(d)
}

const (
	stateIdle = iota
	stateReceiving
	stateSending
)

// wire simulates two open drain lines with one device attached.
type wire struct {
	masterSCL, masterSDA bool // true when the master pulls the line low
	deviceSDA            bool // true when the device pulls SDA low
	stuck                bool // device holds SCL low forever
	jam                  bool // something holds SDA low forever
	stretch              int  // SCL reads left during which the device holds SCL

	prevSCL, prevSDA bool

	// Device.
	addr  byte   // 7 bit address
	tx    []byte // bytes served to the master
	rx    []byte // bytes written by the master after the address
	hold  int    // SCL reads to stretch after being addressed for a read
	busy  int    // read addressings to refuse
	state int

	first     bool
	reading   bool
	bits      int
	shift     byte
	cur       byte
	ackPhase  bool
	masterAck bool

	starts, stops int
}

func newWire(addr byte) *wire {
	return &wire{addr: addr, prevSCL: true, prevSDA: true}
}

func (w *wire) scl() bool {
	return !w.masterSCL && !w.stuck && w.stretch == 0
}

func (w *wire) sda() bool {
	return !w.masterSDA && !w.deviceSDA && !w.jam
}

func (w *wire) set(clock, low bool) {
	if clock {
		w.masterSCL = low
	} else {
		w.masterSDA = low
	}
	w.update()
}

func (w *wire) read(clock bool) gpio.Level {
	if clock {
		if w.stretch > 0 {
			w.stretch--
			w.update()
		}
		return gpio.Level(w.scl())
	}
	return gpio.Level(w.sda())
}

func (w *wire) update() {
	scl, sda := w.scl(), w.sda()
	switch {
	case w.prevSCL && scl && w.prevSDA && !sda:
		w.starts++
		w.state = stateReceiving
		w.first = true
		w.bits, w.shift = 0, 0
		w.ackPhase = false
		w.deviceSDA = false
	case w.prevSCL && scl && !w.prevSDA && sda:
		w.stops++
		w.state = stateIdle
		w.deviceSDA = false
	case !w.prevSCL && scl:
		w.rise(sda)
	case w.prevSCL && !scl:
		w.fall()
	}
	w.prevSCL, w.prevSDA = w.scl(), w.sda()
}

func (w *wire) rise(sda bool) {
	switch w.state {
	case stateReceiving:
		if w.ackPhase {
			return
		}
		w.shift <<= 1
		if sda {
			w.shift |= 1
		}
		w.bits++
	case stateSending:
		if w.ackPhase {
			w.masterAck = !sda
		}
	}
}

func (w *wire) fall() {
	switch w.state {
	case stateReceiving:
		if w.ackPhase {
			w.ackPhase = false
			w.deviceSDA = false
			w.bits, w.shift = 0, 0
			if w.reading {
				w.state = stateSending
				w.stretch = w.hold
				w.load()
			}
			return
		}
		if w.bits < 8 {
			return
		}
		b := w.shift
		if w.first {
			w.first = false
			if b>>1 != w.addr {
				w.state = stateIdle
				return
			}
			w.reading = b&1 == 1
			if w.reading && w.busy > 0 {
				w.busy--
				w.state = stateIdle
				return
			}
		} else {
			w.rx = append(w.rx, b)
		}
		w.ackPhase = true
		w.deviceSDA = true
	case stateSending:
		if w.ackPhase {
			w.ackPhase = false
			if !w.masterAck {
				w.state = stateIdle
				w.deviceSDA = false
				return
			}
			w.load()
			return
		}
		w.bits++
		if w.bits == 8 {
			w.deviceSDA = false
			w.ackPhase = true
			return
		}
		w.deviceSDA = w.cur&(0x80>>uint(w.bits)) == 0
	}
}

// load puts the next byte to send on the bus.
func (w *wire) load() {
	w.bits = 0
	w.cur = 0xff
	if len(w.tx) != 0 {
		w.cur = w.tx[0]
		w.tx = w.tx[1:]
	}
	w.deviceSDA = w.cur&0x80 == 0
}

// pin is one of the two lines of a wire.
type pin struct {
	*gpiotest.Pin
	w     *wire
	clock bool
}

func (p *pin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.w.set(p.clock, false)
	return nil
}

func (p *pin) Out(l gpio.Level) error {
	p.w.set(p.clock, l == gpio.Low)
	return nil
}

func (p *pin) Read() gpio.Level {
	return p.w.read(p.clock)
}

func newMaster(t *testing.T, w *wire) (*Master, virtualClock) {
	clk := virtualClock{clockwork.NewFakeClock()}
	scl := &pin{Pin: &gpiotest.Pin{N: "SCL", Num: 3}, w: w, clock: true}
	sda := &pin{Pin: &gpiotest.Pin{N: "SDA", Num: 2}, w: w}
	m, err := New(scl, sda, &Opts{Clock: clk})
	if err != nil {
		t.Fatal(err)
	}
	return m, clk
}

func TestMaster_writeThenRead(t *testing.T) {
	w := newWire(0x40)
	w.tx = []byte{0x68, 0x3a, 0x7c}
	m, _ := newMaster(t, w)

	m.Start()
	if a := m.Transmit(0x80); a != i2cm.ACK {
		t.Fatalf("address write: %s", a)
	}
	if a := m.Transmit(0xe7); a != i2cm.ACK {
		t.Fatalf("command: %s", a)
	}
	m.Start()
	if a := m.Transmit(0x81); a != i2cm.ACK {
		t.Fatalf("address read: %s", a)
	}
	got := []byte{m.Receive(i2cm.ACK), m.Receive(i2cm.ACK), m.Receive(i2cm.NACK)}
	m.Stop()

	if !bytes.Equal(got, []byte{0x68, 0x3a, 0x7c}) {
		t.Errorf("read %#v", got)
	}
	if !bytes.Equal(w.rx, []byte{0xe7}) {
		t.Errorf("device received %#v", w.rx)
	}
	if w.starts != 2 || w.stops != 1 {
		t.Errorf("starts=%d stops=%d", w.starts, w.stops)
	}
	if w.state != stateIdle || !w.scl() || !w.sda() {
		t.Error("bus not released")
	}
}

func TestMaster_wrongAddress(t *testing.T) {
	w := newWire(0x40)
	m, _ := newMaster(t, w)
	m.Start()
	if a := m.Transmit(0x90); a != i2cm.NACK {
		t.Fatalf("got %s", a)
	}
	m.Stop()
	if w.stops != 1 {
		t.Errorf("stops=%d", w.stops)
	}
}

func TestMaster_pollBusyDevice(t *testing.T) {
	w := newWire(0x40)
	w.busy = 3
	w.tx = []byte{0x12}
	m, _ := newMaster(t, w)
	m.Start()
	if a := m.Transmit(0x80); a != i2cm.ACK {
		t.Fatalf("got %s", a)
	}
	if a := m.Transmit(0xf5); a != i2cm.ACK {
		t.Fatalf("got %s", a)
	}
	attempts := 0
	for {
		attempts++
		m.Start()
		if m.Transmit(0x81) == i2cm.ACK {
			break
		}
		if attempts > 10 {
			t.Fatal("device never acknowledged")
		}
	}
	if attempts != 4 {
		t.Errorf("attempts=%d", attempts)
	}
	if b := m.Receive(i2cm.NACK); b != 0x12 {
		t.Errorf("got 0x%02x", b)
	}
	m.Stop()
}

func TestMaster_clockStretching(t *testing.T) {
	w := newWire(0x40)
	w.hold = 500
	w.tx = []byte{0xa5, 0x5a}
	m, clk := newMaster(t, w)
	start := clk.Now()
	m.Start()
	if a := m.Transmit(0x81); a != i2cm.ACK {
		t.Fatalf("got %s", a)
	}
	if b := m.Receive(i2cm.ACK); b != 0xa5 {
		t.Errorf("got 0x%02x", b)
	}
	if b := m.Receive(i2cm.NACK); b != 0x5a {
		t.Errorf("got 0x%02x", b)
	}
	m.Stop()
	if d := clk.Since(start); d < 499*DefaultOpts.HalfPeriod {
		t.Errorf("did not wait for the stretched clock: %s", d)
	}
}

func TestMaster_stuckClock(t *testing.T) {
	w := newWire(0x40)
	m, clk := newMaster(t, w)
	m.Start()
	w.stuck = true
	start := clk.Now()
	if a := m.Transmit(0x80); a != i2cm.NACK {
		t.Fatalf("got %s", a)
	}
	if d := clk.Since(start); d < DefaultOpts.StretchTimeout {
		t.Errorf("gave up after %s", d)
	}
}

func TestMaster_stuckClockWhileReceiving(t *testing.T) {
	w := newWire(0x40)
	w.tx = []byte{0x00}
	m, clk := newMaster(t, w)
	m.Start()
	if a := m.Transmit(0x81); a != i2cm.ACK {
		t.Fatalf("got %s", a)
	}
	w.stuck = true
	start := clk.Now()
	if b := m.Receive(i2cm.ACK); b != 0xff {
		t.Errorf("got 0x%02x", b)
	}
	// Gives up on the first bit instead of waiting once per bit.
	if d := clk.Since(start); d < DefaultOpts.StretchTimeout || d >= 2*DefaultOpts.StretchTimeout {
		t.Errorf("gave up after %s", d)
	}
	if w.masterSDA {
		t.Error("SDA not released")
	}
}

func TestMaster_collision(t *testing.T) {
	w := newWire(0x40)
	m, _ := newMaster(t, w)
	m.Start()
	w.jam = true
	if a := m.Transmit(0x80); a != i2cm.Collision {
		t.Fatalf("got %s", a)
	}
}

func TestMaster_String_Halt(t *testing.T) {
	w := newWire(0x40)
	m, _ := newMaster(t, w)
	if s := m.String(); s != "bitbang(SCL=SCL(3), SDA=SDA(2))" {
		t.Error(s)
	}
	m.Start()
	if err := m.Halt(); err != nil {
		t.Fatal(err)
	}
	if !w.scl() || !w.sda() {
		t.Error("lines not released")
	}
}

func TestNew_missingPin(t *testing.T) {
	if _, err := New(nil, &gpiotest.Pin{}, nil); err == nil {
		t.Fatal("expected error")
	}
}
