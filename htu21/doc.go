// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package htu21 controls a Measurement Specialties (TE Connectivity) HTU21D
// temperature and relative humidity sensor over I²C.
//
// The driver talks to the sensor through a byte level master (i2cm.Master)
// because the measurement completion is detected either by the sensor
// stretching the clock (hold master mode) or by polling its read address
// until it acknowledges (no hold master mode, the default).
//
// Bus outcomes are reported as an Error, a set of flags accumulated over the
// whole exchange: every byte of an operation is sent even after a failure so
// the caller gets all the failures at once. A measurement that failed still
// returns its best effort value alongside the error.
//
//	rh, err := dev.MeasureHumidity()
//	if errors.Is(err, htu21.ChecksumError) {
//		// rh is not reliable.
//	}
//
// The Dev type implements physic.SenseEnv. Pressure is not measured.
package htu21
