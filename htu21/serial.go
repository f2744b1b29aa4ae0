// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package htu21

import (
	"encoding/binary"
	"fmt"

	"github.com/GermanBionicSystems/devices-htu21/i2cm"
)

// SerialNumber is the 64 bit unique identifier set at the factory, least
// significant byte first: SNC_0, SNC_1, SNB_0 to SNB_3, SNA_0, SNA_1.
type SerialNumber [8]byte

// String returns the serial number as 16 hexadecimal digits, most
// significant first.
func (s SerialNumber) String() string {
	return fmt.Sprintf("%016x", s.Uint64())
}

// Uint64 returns the serial number as an integer.
func (s SerialNumber) Uint64() uint64 {
	return binary.LittleEndian.Uint64(s[:])
}

// SerialNumber reads the serial number from the two on-chip memory locations
// holding it.
//
// The CRC bytes following the serial number bytes are read but not checked.
func (d *Dev) SerialNumber() (SerialNumber, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var s SerialNumber

	// First location: SNB_3..SNB_0, each followed by its CRC.
	code := d.openMemory(cmdReadMemory1, addrMemory1)
	s[5] = d.m.Receive(i2cm.ACK)
	d.m.Receive(i2cm.ACK)
	s[4] = d.m.Receive(i2cm.ACK)
	d.m.Receive(i2cm.ACK)
	s[3] = d.m.Receive(i2cm.ACK)
	d.m.Receive(i2cm.ACK)
	s[2] = d.m.Receive(i2cm.ACK)
	d.m.Receive(i2cm.NACK)
	d.m.Stop()

	// Second location: SNC_1, SNC_0, CRC, SNA_1, SNA_0, CRC.
	code |= d.openMemory(cmdReadMemory2, addrMemory2)
	s[1] = d.m.Receive(i2cm.ACK)
	s[0] = d.m.Receive(i2cm.ACK)
	d.m.Receive(i2cm.ACK)
	s[7] = d.m.Receive(i2cm.ACK)
	s[6] = d.m.Receive(i2cm.ACK)
	d.m.Receive(i2cm.NACK)
	d.m.Stop()

	return s, code.err()
}

// openMemory addresses an on-chip memory location and switches to reading.
func (d *Dev) openMemory(cmd, addr byte) Error {
	d.m.Start()
	code := d.write(addrWrite)
	code |= d.write(cmd)
	code |= d.write(addr)
	d.m.Start()
	code |= d.write(addrRead)
	return code
}
