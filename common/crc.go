// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages. For
// example, a CRC8 calculation
package common

// crc8Polynomial is x^8 + x^5 + x^4 + 1. The x^8 term falls off the byte
// during the shift.
const crc8Polynomial = 0x131

// CRC8Reverse calculates the 8-bit CRC used by the Measurement Specialties
// HTU21 and Sensirion SHT2x sensors: initial value 0, no final XOR, bytes
// consumed from the last one to the first one.
//
// Pass a 16 bit word least significant byte first, the sensor computes its
// checksum over the most significant byte first.
func CRC8Reverse(bytes []byte) byte {
	var crc byte
	for i := len(bytes) - 1; i >= 0; i-- {
		crc ^= bytes[i]
		for range 8 {
			if (crc & 0x80) == 0 {
				crc <<= 1
			} else {
				crc = (byte)((crc << 1) ^ (crc8Polynomial & 0xff))
			}
		}
	}
	return crc
}
