// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package htu21

import (
	"fmt"
	"strings"
)

// Error is the set of failures observed during one operation.
//
// Flags accumulate: a single operation may report several of them. Use
// errors.Is(err, ChecksumError) to test for one flag and errors.As to get
// the whole set.
type Error uint8

const (
	// AckError means the sensor did not acknowledge a byte, or the master lost
	// arbitration while sending it.
	AckError Error = 1 << iota
	// TimeoutError means the sensor did not finish the measurement within the
	// poll budget.
	TimeoutError
	// ChecksumError means the CRC received with the data did not match.
	ChecksumError
	// UnitError is reserved for range checking of converted values. It is never
	// set today: out of range values are returned as computed.
	UnitError
)

var errorNames = []struct {
	flag Error
	name string
}{
	{AckError, "acknowledge error"},
	{TimeoutError, "timeout error"},
	{ChecksumError, "checksum error"},
	{UnitError, "unit error"},
}

func (e Error) Error() string {
	if e == 0 {
		return "htu21: no error"
	}
	var names []string
	rest := e
	for _, n := range errorNames {
		if e&n.flag != 0 {
			names = append(names, n.name)
			rest &^= n.flag
		}
	}
	if rest != 0 {
		names = append(names, fmt.Sprintf("unknown flags 0x%02x", uint8(rest)))
	}
	return "htu21: " + strings.Join(names, ", ")
}

// Is reports whether every flag of target is present in e.
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t != 0 && e&t == t
}

// Has reports whether flag is part of the set.
func (e Error) Has(flag Error) bool {
	return e&flag != 0
}

// err returns nil for an empty set.
func (e Error) err() error {
	if e == 0 {
		return nil
	}
	return e
}
