// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package htu21

import (
	"errors"
	"fmt"

	"github.com/GermanBionicSystems/devices-htu21/i2cm"
)

// UserRegister is the sensor's 8 bit configuration register.
//
// Bits 7 and 0 select the resolution, bit 6 reports the end of battery, bit 2
// enables the heater. The other bits are reserved and must be written back as
// read.
type UserRegister uint8

const (
	resolutionMask   UserRegister = 0x81
	endOfBatteryMask UserRegister = 0x40
	heaterMask       UserRegister = 0x04
)

// Resolution returns the measurement resolution bits.
func (r UserRegister) Resolution() Resolution {
	return Resolution(r & resolutionMask)
}

// EndOfBattery reports whether the supply voltage dropped below 2.25V.
func (r UserRegister) EndOfBattery() bool {
	return r&endOfBatteryMask != 0
}

// Heater reports whether the on-chip heater is enabled.
func (r UserRegister) Heater() bool {
	return r&heaterMask != 0
}

// WithResolution returns r with the resolution bits replaced.
func (r UserRegister) WithResolution(res Resolution) UserRegister {
	return r&^resolutionMask | UserRegister(res)&resolutionMask
}

// WithHeater returns r with the heater bit set or cleared.
func (r UserRegister) WithHeater(on bool) UserRegister {
	if on {
		return r | heaterMask
	}
	return r &^ heaterMask
}

// Resolution is the pair of humidity and temperature resolutions, as encoded
// in the user register.
type Resolution uint8

const (
	RH12T14 Resolution = 0x00 // Power on default.
	RH8T12  Resolution = 0x01
	RH10T13 Resolution = 0x80
	RH11T11 Resolution = 0x81
)

// Bits returns the humidity and temperature resolutions in bits.
func (r Resolution) Bits() (rh, t uint) {
	switch r {
	case RH8T12:
		return 8, 12
	case RH10T13:
		return 10, 13
	case RH11T11:
		return 11, 11
	default:
		return 12, 14
	}
}

func (r Resolution) String() string {
	rh, t := r.Bits()
	return fmt.Sprintf("RH=%dbit T=%dbit", rh, t)
}

func (r Resolution) valid() bool {
	return UserRegister(r)&^resolutionMask == 0
}

var errInvalidResolution = errors.New("htu21: invalid resolution")

// ReadUserRegister returns the user register.
func (d *Dev) ReadUserRegister() (UserRegister, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, code := d.readUserRegister()
	return r, code.err()
}

// WriteUserRegister overwrites the user register. Prefer the helpers that
// read it first, reserved bits must keep their value.
func (d *Dev) WriteUserRegister(r UserRegister) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeUserRegister(r).err()
}

// Resolution returns the current measurement resolution.
func (d *Dev) Resolution() (Resolution, error) {
	r, err := d.ReadUserRegister()
	return r.Resolution(), err
}

// SetResolution changes the measurement resolution, keeping the other bits of
// the user register.
func (d *Dev) SetResolution(res Resolution) error {
	if !res.valid() {
		return errInvalidResolution
	}
	return d.modifyUserRegister(func(r UserRegister) UserRegister {
		return r.WithResolution(res)
	})
}

// Heater reports whether the on-chip heater is enabled.
func (d *Dev) Heater() (bool, error) {
	r, err := d.ReadUserRegister()
	return r.Heater(), err
}

// SetHeater enables or disables the on-chip heater, keeping the other bits of
// the user register. The heater raises the temperature by a few degrees and
// helps recovering from condensation.
func (d *Dev) SetHeater(on bool) error {
	return d.modifyUserRegister(func(r UserRegister) UserRegister {
		return r.WithHeater(on)
	})
}

// EndOfBattery reports whether the supply voltage is below 2.25V. The status
// is updated after each measurement.
func (d *Dev) EndOfBattery() (bool, error) {
	r, err := d.ReadUserRegister()
	return r.EndOfBattery(), err
}

// modifyUserRegister does a read-modify-write of the user register. Nothing
// is written if the read failed.
func (d *Dev) modifyUserRegister(f func(UserRegister) UserRegister) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, code := d.readUserRegister()
	if code != 0 {
		return code.err()
	}
	return d.writeUserRegister(f(r)).err()
}

func (d *Dev) readUserRegister() (UserRegister, Error) {
	d.m.Start()
	code := d.write(addrWrite)
	code |= d.write(cmdReadUserRegister)
	d.m.Start()
	code |= d.write(addrRead)
	v := d.m.Receive(i2cm.ACK)
	sum := d.m.Receive(i2cm.NACK)
	code |= checkCRC([]byte{v}, sum)
	d.m.Stop()
	r := UserRegister(v)
	if code == 0 {
		d.res = r.Resolution()
	}
	return r, code
}

func (d *Dev) writeUserRegister(r UserRegister) Error {
	d.m.Start()
	code := d.write(addrWrite)
	code |= d.write(cmdWriteUserRegister)
	code |= d.write(byte(r))
	d.m.Stop()
	if code == 0 {
		d.res = r.Resolution()
	}
	return code
}
