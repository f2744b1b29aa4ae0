// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// htu21 reads an HTU21D humidity and temperature sensor wired to two GPIO
// pins.
//
// Usage:
//
//	htu21 [flags] <command> [arg]
//
// Commands:
//
//	read               measure humidity and temperature once
//	serial             print the serial number
//	reset              soft reset the sensor
//	register           print the user register
//	heater on|off      switch the on-chip heater
//	resolution <res>   set the resolution: 12/14, 8/12, 10/13 or 11/11
//	serve              sample every -interval and export /metrics on -listen
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/GermanBionicSystems/devices-htu21/bitbang"
	"github.com/GermanBionicSystems/devices-htu21/gauge"
	"github.com/GermanBionicSystems/devices-htu21/htu21"
	"github.com/GermanBionicSystems/devices-htu21/monitor"
	"github.com/mattn/go-colorable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var resolutions = map[string]htu21.Resolution{
	"12/14": htu21.RH12T14,
	"8/12":  htu21.RH8T12,
	"10/13": htu21.RH10T13,
	"11/11": htu21.RH11T11,
}

var modes = map[string]htu21.Mode{
	"poll": htu21.ModePoll,
	"hold": htu21.ModeHoldMaster,
}

func newLogger(json bool, w io.Writer) zerolog.Logger {
	if !json {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

func open(scl, sda, mode string) (*bitbang.Master, *htu21.Dev, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, err
	}
	m, ok := modes[mode]
	if !ok {
		return nil, nil, fmt.Errorf("unknown mode %q", mode)
	}
	pSCL := gpioreg.ByName(scl)
	if pSCL == nil {
		return nil, nil, fmt.Errorf("no pin %q", scl)
	}
	pSDA := gpioreg.ByName(sda)
	if pSDA == nil {
		return nil, nil, fmt.Errorf("no pin %q", sda)
	}
	b, err := bitbang.New(pSCL, pSDA, nil)
	if err != nil {
		return nil, nil, err
	}
	d, err := htu21.New(b, &htu21.Opts{Mode: m})
	if err != nil {
		b.Halt()
		return nil, nil, err
	}
	return b, d, nil
}

func run(ctx context.Context, d *htu21.Dev, log zerolog.Logger, args []string, listen string, interval time.Duration, useGauge bool) error {
	switch args[0] {
	case "read":
		var e physic.Env
		if err := d.Sense(&e); err != nil {
			return err
		}
		fmt.Printf("%8s %9s\n", e.Temperature, e.Humidity)
	case "serial":
		s, err := d.SerialNumber()
		if err != nil {
			return err
		}
		fmt.Println(s)
	case "reset":
		return d.Reset()
	case "register":
		r, err := d.ReadUserRegister()
		if err != nil {
			return err
		}
		fmt.Printf("0x%02x %s heater=%t end_of_battery=%t\n", uint8(r), r.Resolution(), r.Heater(), r.EndOfBattery())
	case "heater":
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			return errors.New("usage: heater on|off")
		}
		return d.SetHeater(args[1] == "on")
	case "resolution":
		if len(args) != 2 {
			return errors.New("usage: resolution 12/14|8/12|10/13|11/11")
		}
		res, ok := resolutions[args[1]]
		if !ok {
			return fmt.Errorf("unknown resolution %q", args[1])
		}
		return d.SetResolution(res)
	case "serve":
		return serve(ctx, d, log, listen, interval, useGauge)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
	return nil
}

// newRegistry returns a registry holding the Go build information.
func newRegistry() (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewBuildInfoCollector()); err != nil {
		return nil, err
	}
	return reg, nil
}

func serve(ctx context.Context, d *htu21.Dev, log zerolog.Logger, listen string, interval time.Duration, useGauge bool) error {
	s, err := d.SerialNumber()
	if err != nil {
		return fmt.Errorf("reading serial number: %w", err)
	}
	opts := monitor.Opts{Interval: interval}
	if useGauge {
		g, err := gauge.New(nil, nil)
		if err != nil {
			return err
		}
		defer g.Halt()
		opts.OnSample = func(e physic.Env) {
			_ = g.Draw(float64(e.Humidity)/float64(physic.PercentRH), fmt.Sprintf("%9s %8s", e.Humidity, e.Temperature))
		}
	}
	reg, err := newRegistry()
	if err != nil {
		return err
	}
	opts.Registerer = reg
	mon, err := monitor.New(d, s.String(), log, &opts)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info().Str("listen", listen).Msg("serving metrics")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server")
		}
	}()
	defer srv.Close()
	return mon.Run(ctx)
}

func mainImpl() error {
	scl := flag.String("scl", "GPIO3", "SCL pin name")
	sda := flag.String("sda", "GPIO2", "SDA pin name")
	mode := flag.String("mode", "poll", "measurement mode: poll or hold")
	interval := flag.Duration("interval", 10*time.Second, "sampling interval for serve")
	listen := flag.String("listen", ":9110", "address to serve /metrics on")
	json := flag.Bool("json", false, "log as JSON instead of console text")
	useGauge := flag.Bool("gauge", false, "draw the humidity as a bar gauge in serve mode")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] read|serial|reset|register|heater|resolution|serve [arg]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		return errors.New("a command is required")
	}

	log := newLogger(*json, colorable.NewColorableStderr())
	b, d, err := open(*scl, *sda, *mode)
	if err != nil {
		return err
	}
	defer b.Halt()
	defer d.Halt()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return run(ctx, d, log, flag.Args(), *listen, *interval, *useGauge)
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "htu21: %s.\n", err)
		os.Exit(1)
	}
}
