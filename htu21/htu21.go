// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package htu21

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/GermanBionicSystems/devices-htu21/common"
	"github.com/GermanBionicSystems/devices-htu21/i2cm"
	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
)

const (
	// Address is the fixed 7 bit I²C address of the sensor.
	Address byte = 0x40

	addrWrite = Address << 1
	addrRead  = Address<<1 | 1
)

const (
	cmdTriggerTemperatureHold byte = 0xE3
	cmdTriggerHumidityHold    byte = 0xE5
	cmdTriggerTemperaturePoll byte = 0xF3
	cmdTriggerHumidityPoll    byte = 0xF5
	cmdWriteUserRegister      byte = 0xE6
	cmdReadUserRegister       byte = 0xE7
	cmdSoftReset              byte = 0xFE

	// On-chip memory holding the serial number, as two command/address pairs.
	cmdReadMemory1 byte = 0xFA
	addrMemory1    byte = 0x0F
	cmdReadMemory2 byte = 0xFC
	addrMemory2    byte = 0xC9
)

// A measurement takes at most 50ms for humidity and 16ms for temperature at
// the highest resolution.
const minSampleInterval = 100 * time.Millisecond

// Opts holds the configuration options for the device.
type Opts struct {
	// Mode selects how the end of a measurement is detected. Default is
	// ModePoll.
	Mode Mode
	// PollAttempts is the number of times the sensor is addressed while
	// waiting for a measurement in ModePoll. Default is 200.
	PollAttempts int
	// PollInterval is the pause between two addressing attempts. Default is
	// 500µs, which makes a budget just under 100ms with the default
	// PollAttempts.
	PollInterval time.Duration
	// ResetDelay is the time the sensor needs to reboot after a soft reset.
	// Default is 15ms according to the datasheet.
	ResetDelay time.Duration
	// Clock is used for every wait. Default is the real clock.
	Clock clockwork.Clock
}

// DefaultOpts holds the default configuration options for the device.
var DefaultOpts = Opts{
	Mode:         ModePoll,
	PollAttempts: 200,
	PollInterval: 500 * time.Microsecond,
	ResetDelay:   15 * time.Millisecond,
}

// Dev is a handle to an HTU21D sensor.
type Dev struct {
	m     i2cm.Master
	opts  Opts
	fetch fetcher

	mu   sync.Mutex
	res  Resolution
	stop chan struct{}
	wg   sync.WaitGroup
}

// New returns an object that communicates with an HTU21D sensor through m.
// The bus is not accessed. The Opts can be nil.
func New(m i2cm.Master, opts *Opts) (*Dev, error) {
	if m == nil {
		return nil, errors.New("htu21: a bus master is required")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.PollAttempts <= 0 {
		o.PollAttempts = DefaultOpts.PollAttempts
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultOpts.PollInterval
	}
	if o.ResetDelay <= 0 {
		o.ResetDelay = DefaultOpts.ResetDelay
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	d := &Dev{m: m, opts: o, res: RH12T14}
	switch o.Mode {
	case ModePoll:
		d.fetch = polling{}
	case ModeHoldMaster:
		d.fetch = holdMaster{}
	default:
		return nil, fmt.Errorf("htu21: invalid mode %d", o.Mode)
	}
	return d, nil
}

func (d *Dev) String() string {
	return "htu21"
}

// MeasureHumidity triggers a relative humidity measurement and returns it.
//
// If the returned error is not nil, it is an Error and the value must be
// treated as unreliable.
func (d *Dev) MeasureHumidity() (physic.RelativeHumidity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rh, code := d.measure(Humidity)
	return toRelativeHumidity(rh), code.err()
}

// MeasureTemperature triggers a temperature measurement and returns it.
//
// If the returned error is not nil, it is an Error and the value must be
// treated as unreliable.
func (d *Dev) MeasureTemperature() (physic.Temperature, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, code := d.measure(Temperature)
	return toTemperature(c), code.err()
}

// Reset issues a soft reset and waits for the sensor to reboot. The user
// register is back to its power on value afterward, except the heater bit.
func (d *Dev) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.m.Start()
	code := d.write(addrWrite)
	code |= d.write(cmdSoftReset)
	d.m.Stop()
	d.opts.Clock.Sleep(d.opts.ResetDelay)
	d.res = RH12T14
	return code.err()
}

// Sense implements physic.SenseEnv. It measures the temperature then the
// humidity. Pressure is not modified.
//
// On error both values are still written and are best effort.
func (d *Dev) Sense(e *physic.Env) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, code := d.measure(Temperature)
	rh, code2 := d.measure(Humidity)
	e.Temperature = toTemperature(c)
	e.Humidity = toRelativeHumidity(rh)
	return (code | code2).err()
}

// SenseContinuous implements physic.SenseEnv. It returns a channel that will
// receive a measurement every interval. Failed measurements are skipped. It
// is the caller's responsibility to call Halt() when done.
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan physic.Env, error) {
	if interval < minSampleInterval {
		return nil, fmt.Errorf("htu21: sample interval %s is shorter than %s", interval, minSampleInterval)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stop != nil {
		return nil, errors.New("htu21: SenseContinuous already running")
	}
	stop := make(chan struct{})
	d.stop = stop
	ch := make(chan physic.Env)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(ch)
		t := d.opts.Clock.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.Chan():
				var e physic.Env
				if err := d.Sense(&e); err != nil {
					continue
				}
				select {
				case ch <- e:
				case <-stop:
					return
				}
			}
		}
	}()
	return ch, nil
}

// Precision implements physic.SenseEnv. It depends on the resolution last
// read from or written to the user register.
func (d *Dev) Precision(e *physic.Env) {
	d.mu.Lock()
	res := d.res
	d.mu.Unlock()
	rhBits, tBits := res.Bits()
	e.Temperature = physic.Temperature(math.Round(temperatureSpan / float64(uint32(1)<<tBits) * float64(physic.Kelvin)))
	e.Humidity = physic.RelativeHumidity(math.Round(humiditySpan / float64(uint32(1)<<rhBits) * float64(physic.PercentRH)))
	e.Pressure = 0
}

// Halt implements conn.Resource. It stops a running SenseContinuous().
func (d *Dev) Halt() error {
	d.mu.Lock()
	stop := d.stop
	d.stop = nil
	d.mu.Unlock()
	if stop != nil {
		close(stop)
		d.wg.Wait()
	}
	return nil
}

// write sends b and returns AckError unless the sensor acknowledged it.
func (d *Dev) write(b byte) Error {
	if d.m.Transmit(b) != i2cm.ACK {
		return AckError
	}
	return 0
}

// checkCRC validates data, stored least significant byte first, against the
// checksum sent by the sensor.
func checkCRC(data []byte, checksum byte) Error {
	if common.CRC8Reverse(data) != checksum {
		return ChecksumError
	}
	return 0
}

var _ conn.Resource = &Dev{}
var _ physic.SenseEnv = &Dev{}
