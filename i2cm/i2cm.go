// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package i2cm defines a byte level I²C master.
//
// Unlike i2c.Bus, which exchanges a whole transaction in one Tx() call, a
// Master exposes the individual bus conditions: start, repeated start, stop,
// and single byte transfers with the acknowledge bit. Some sensors need this
// level of control, for example to poll a device by repeatedly addressing it
// until it acknowledges.
package i2cm

import "strconv"

// Ack is the acknowledge bit following a byte on the bus.
//
// As the result of Master.Transmit, it is what the receiving device answered.
// As the argument of Master.Receive, it is what the master answers.
type Ack uint8

const (
	// ACK means the byte was accepted. When reading, it requests another byte.
	ACK Ack = 0
	// NACK means the byte was refused or nobody answered. When reading, it
	// signals the last byte of the read.
	NACK Ack = 1
	// Collision means the master lost arbitration while transmitting.
	Collision Ack = 2
)

func (a Ack) String() string {
	switch a {
	case ACK:
		return "ACK"
	case NACK:
		return "NACK"
	case Collision:
		return "Collision"
	default:
		return "Ack(" + strconv.Itoa(int(a)) + ")"
	}
}

// Master is a byte level I²C bus master.
//
// Implementations block until each bus condition completed or their own
// internal timeout expired. A Master is not safe for concurrent use.
type Master interface {
	// Start emits a start condition. When called inside a transaction, it
	// emits a repeated start.
	Start()
	// Stop emits a stop condition and releases the bus.
	Stop()
	// Transmit sends one byte and returns the acknowledge bit.
	Transmit(b byte) Ack
	// Receive reads one byte then answers with ack. Use NACK on the last byte
	// of a read.
	Receive(ack Ack) byte
}
