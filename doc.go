// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package devices is a container for the HTU21 humidity and temperature
// sensor driver and its supporting packages.
//
// The driver lives in htu21. It talks to the sensor through i2cm.Master, a
// byte level I²C bus master; bitbang implements one over two GPIO pins.
// monitor and the htu21 command export readings as Prometheus metrics.
package devices
