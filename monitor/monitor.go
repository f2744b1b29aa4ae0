// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package monitor samples an HTU21 sensor periodically, logs the readings and
// exports them as Prometheus metrics.
//
// Exported metrics, with the default namespace:
//
//	htu21_humidity_percent{serial_number}
//	htu21_temperature_celsius{serial_number}
//	htu21_errors_total{flag}
//
// A failed measurement leaves its gauge untouched and increments the error
// counter once per flag it carries.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GermanBionicSystems/devices-htu21/htu21"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/physic"
)

// Sensor is the subset of *htu21.Dev used by the monitor.
type Sensor interface {
	MeasureHumidity() (physic.RelativeHumidity, error)
	MeasureTemperature() (physic.Temperature, error)
}

// Opts holds the configuration options for the monitor.
type Opts struct {
	// Interval between two samples. Default is 10s.
	Interval time.Duration
	// Namespace prefixes the metric names. Default is "htu21".
	Namespace string
	// Registerer receives the metrics. Default is prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer
	// OnSample is called with every successful sample, from the goroutine
	// calling Run.
	OnSample func(physic.Env)
	// Clock drives the sampling. Default is the real clock.
	Clock clockwork.Clock
}

// DefaultOpts holds the default configuration options for the monitor.
var DefaultOpts = Opts{
	Interval:  10 * time.Second,
	Namespace: "htu21",
}

// flagLabels names the error counter's flag label values.
var flagLabels = []struct {
	flag  htu21.Error
	label string
}{
	{htu21.AckError, "ack"},
	{htu21.TimeoutError, "timeout"},
	{htu21.ChecksumError, "checksum"},
	{htu21.UnitError, "unit"},
}

// Monitor periodically samples a Sensor.
type Monitor struct {
	s      Sensor
	serial string
	log    zerolog.Logger
	opts   Opts

	humidity    *prometheus.GaugeVec
	temperature *prometheus.GaugeVec
	errs        *prometheus.CounterVec
}

// New returns a Monitor for s and registers its metrics. serial labels the
// readings, usually the sensor's serial number. The Opts can be nil.
func New(s Sensor, serial string, log zerolog.Logger, opts *Opts) (*Monitor, error) {
	if s == nil {
		return nil, errors.New("monitor: a sensor is required")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.Interval <= 0 {
		o.Interval = DefaultOpts.Interval
	}
	if o.Namespace == "" {
		o.Namespace = DefaultOpts.Namespace
	}
	if o.Registerer == nil {
		o.Registerer = prometheus.DefaultRegisterer
	}
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	m := &Monitor{
		s:      s,
		serial: serial,
		log:    log.With().Str("serial_number", serial).Logger(),
		opts:   o,
		humidity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: o.Namespace,
			Name:      "humidity_percent",
			Help:      "Relative humidity (units: % of relative humidity)",
		}, []string{"serial_number"}),
		temperature: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: o.Namespace,
			Name:      "temperature_celsius",
			Help:      "Air temperature (units: degrees Celsius)",
		}, []string{"serial_number"}),
		errs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: o.Namespace,
			Name:      "errors_total",
			Help:      "Failed measurements, by error flag",
		}, []string{"flag"}),
	}
	if err := register(o.Registerer, m.humidity, m.temperature, m.errs); err != nil {
		return nil, fmt.Errorf("monitor: registering metrics: %w", err)
	}
	return m, nil
}

// register registers all of cs or none of them.
func register(r prometheus.Registerer, cs ...prometheus.Collector) error {
	for i, c := range cs {
		if err := r.Register(c); err != nil {
			for _, done := range cs[:i] {
				r.Unregister(done)
			}
			return err
		}
	}
	return nil
}

// Sample measures both quantities once and updates the metrics.
//
// The returned error joins the failures of both measurements. The Env holds
// best effort values in that case.
func (m *Monitor) Sample() (physic.Env, error) {
	var e physic.Env
	var errT, errH error
	e.Temperature, errT = m.s.MeasureTemperature()
	e.Humidity, errH = m.s.MeasureHumidity()

	celsius := float64(e.Temperature-physic.ZeroCelsius) / float64(physic.Kelvin)
	percent := float64(e.Humidity) / float64(physic.PercentRH)
	if errT == nil {
		m.temperature.WithLabelValues(m.serial).Set(celsius)
	} else {
		m.failed("temperature", errT)
	}
	if errH == nil {
		m.humidity.WithLabelValues(m.serial).Set(percent)
	} else {
		m.failed("humidity", errH)
	}
	if err := errors.Join(errT, errH); err != nil {
		return e, err
	}
	m.log.Info().
		Float64("humidity_percent", percent).
		Float64("temperature_celsius", celsius).
		Msg("reading")
	return e, nil
}

// Run samples until ctx is canceled, starting immediately.
func (m *Monitor) Run(ctx context.Context) error {
	t := m.opts.Clock.NewTicker(m.opts.Interval)
	defer t.Stop()
	m.log.Info().Dur("interval", m.opts.Interval).Msg("monitor started")
	defer m.log.Info().Msg("monitor stopped")
	for {
		if e, err := m.Sample(); err == nil && m.opts.OnSample != nil {
			m.opts.OnSample(e)
		}
		select {
		case <-ctx.Done():
			if err := ctx.Err(); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case <-t.Chan():
		}
	}
}

func (m *Monitor) failed(what string, err error) {
	var code htu21.Error
	if !errors.As(err, &code) {
		m.errs.WithLabelValues("other").Inc()
		m.log.Warn().Err(err).Str("measure", what).Msg("sample failed")
		return
	}
	for _, f := range flagLabels {
		if code.Has(f.flag) {
			m.errs.WithLabelValues(f.label).Inc()
		}
	}
	m.log.Warn().Err(err).Str("measure", what).Uint8("flags", uint8(code)).Msg("sample failed")
}
