// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package htu21

import (
	"math"
	"strconv"

	"github.com/GermanBionicSystems/devices-htu21/i2cm"
	"periph.io/x/conn/v3/physic"
)

// Kind selects the quantity to measure.
type Kind uint8

const (
	Humidity Kind = iota
	Temperature
)

func (k Kind) String() string {
	switch k {
	case Humidity:
		return "humidity"
	case Temperature:
		return "temperature"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Mode selects how the driver waits for a measurement to complete.
type Mode uint8

const (
	// ModePoll addresses the sensor repeatedly until it acknowledges. The bus
	// is free while the sensor measures.
	ModePoll Mode = iota
	// ModeHoldMaster lets the sensor hold SCL low until the measurement is
	// done. The bus master must support clock stretching.
	ModeHoldMaster
)

func (m Mode) String() string {
	switch m {
	case ModePoll:
		return "poll"
	case ModeHoldMaster:
		return "hold-master"
	default:
		return "Mode(" + strconv.Itoa(int(m)) + ")"
	}
}

const (
	statusBits = 0x0003

	humidityOffset    = -6.0
	humiditySpan      = 125.0
	temperatureOffset = -46.85
	temperatureSpan   = 175.72
	countDivisor      = 65536.0
)

// fetcher triggers a measurement and retrieves the raw measurand.
type fetcher interface {
	fetch(d *Dev, k Kind) (uint16, Error)
}

type holdMaster struct{}

func (holdMaster) fetch(d *Dev, k Kind) (uint16, Error) {
	cmd := cmdTriggerHumidityHold
	if k == Temperature {
		cmd = cmdTriggerTemperatureHold
	}
	d.m.Start()
	code := d.write(addrWrite)
	code |= d.write(cmd)
	d.m.Start()
	code |= d.write(addrRead)
	raw, crc := d.readMeasurand()
	d.m.Stop()
	return raw, code | crc
}

type polling struct{}

func (polling) fetch(d *Dev, k Kind) (uint16, Error) {
	cmd := cmdTriggerHumidityPoll
	if k == Temperature {
		cmd = cmdTriggerTemperaturePoll
	}
	d.m.Start()
	code := d.write(addrWrite)
	code |= d.write(cmd)

	// The sensor refuses its read address until the measurement is done.
	ready := false
	for i := range d.opts.PollAttempts {
		if i != 0 {
			d.opts.Clock.Sleep(d.opts.PollInterval)
		}
		d.m.Start()
		if d.m.Transmit(addrRead) == i2cm.ACK {
			ready = true
			break
		}
	}
	if !ready {
		code |= TimeoutError
	}
	raw, crc := d.readMeasurand()
	d.m.Stop()
	return raw, code | crc
}

// readMeasurand reads the two data bytes, most significant first, and the
// checksum.
func (d *Dev) readMeasurand() (uint16, Error) {
	msb := d.m.Receive(i2cm.ACK)
	lsb := d.m.Receive(i2cm.ACK)
	sum := d.m.Receive(i2cm.NACK)
	return uint16(msb)<<8 | uint16(lsb), checkCRC([]byte{lsb, msb}, sum)
}

// measure returns the value in %RH or °C.
func (d *Dev) measure(k Kind) (float64, Error) {
	raw, code := d.fetch.fetch(d, k)
	if k == Temperature {
		return countToTemperature(raw), code
	}
	return countToHumidity(raw), code
}

// countToHumidity converts a raw measurand to %RH: RH = -6 + 125 * S / 2^16.
func countToHumidity(raw uint16) float64 {
	return humidityOffset + humiditySpan*float64(raw&^statusBits)/countDivisor
}

// countToTemperature converts a raw measurand to °C: T = -46.85 + 175.72 * S / 2^16.
func countToTemperature(raw uint16) float64 {
	return temperatureOffset + temperatureSpan*float64(raw&^statusBits)/countDivisor
}

func toRelativeHumidity(percent float64) physic.RelativeHumidity {
	return physic.RelativeHumidity(math.Round(percent * float64(physic.PercentRH)))
}

func toTemperature(celsius float64) physic.Temperature {
	return physic.Temperature(math.Round(celsius*float64(physic.Kelvin))) + physic.ZeroCelsius
}
