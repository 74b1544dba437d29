package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gr-butler/loadmon/activity"
	"github.com/gr-butler/loadmon/env"
	"github.com/gr-butler/loadmon/metrics"
	"github.com/gr-butler/loadmon/serial"
	"github.com/gr-butler/loadmon/telemetry"
	"github.com/gr-butler/loadmon/timer"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/host/v3"
)

const version = "GRB-LoadMon-1.0.0"

func main() {
	args := env.Args{
		Verbose:  flag.Bool("verbose", false, "debug logging"),
		Config:   flag.String("config", "", "YAML board description, built-in board when empty"),
		Serial:   flag.String("serial", "-", "serial device for messages and statistics, - for stdout"),
		Policy:   flag.String("policy", "", "scheduling policy override: fixed-priority or edf"),
		Metrics:  flag.String("metrics", env.MetricsAddr, "address for /metrics, empty to disable"),
		Board:    flag.String("board", env.BoardName, "board name used in telemetry"),
		Duration: flag.String("duration", "", "stop after this long, run until signalled when empty"),
	}
	flag.Parse()

	logger.Infof("Starting load monitor [%v]", version)
	if *args.Verbose {
		logger.SetLevel(logger.DebugLevel)
	}

	cfg, err := env.Load(*args.Config)
	if err != nil {
		logger.Fatalf("Failed to load configuration [%v]", err)
	}
	if *args.Policy != "" {
		cfg.Policy = *args.Policy
		if err := cfg.Validate(); err != nil {
			logger.Fatalf("Invalid policy [%v]", err)
		}
	}

	if _, err := host.Init(); err != nil {
		// lines stay detached, the activities still run
		logger.Errorf("Failed to init GPIO drivers [%v]", err)
	}

	port, closer, err := serial.Open(*args.Serial)
	if err != nil {
		logger.Fatalf("Failed to open serial port [%v]", err)
	}
	defer closer.Close()

	var sinks []activity.Sink
	var mirror *telemetry.Mirror
	if broker, ok := os.LookupEnv(env.MQTTBrokerEnv); ok {
		client, err := telemetry.Dial(broker, "loadmon-"+*args.Board)
		if err != nil {
			logger.Errorf("Telemetry disabled [%v]", err)
		} else {
			mirror = telemetry.NewMirror(client, *args.Board, env.MQTTTopic)
			defer mirror.Close()
			sinks = append(sinks, mirror)
		}
	}

	clock := clockwork.NewRealClock()
	src := timer.NewClockSource(clock, env.TimerResolution)
	var counter timer.Source = src
	if cfg.CounterBits == 32 {
		counter = timer.Truncated32(src)
	}
	b, err := newBoard(cfg, boardOptions{
		clock:  clock,
		source: counter,
		counts: src.Counts,
		port:   port,
		sinks:  sinks,
		onFault: func(task string, v any) {
			logger.Fatalf("Task [%v] faulted [%v]", task, v)
		},
	})
	if err != nil {
		logger.Fatalf("Failed to create activities [%v]", err)
	}

	diag := metrics.Sources{SerialLost: b.reporter.Lost, SerialRejected: port.Rejected}
	if mirror != nil {
		diag.TelemetryDropped = mirror.Dropped
	}
	prometheus.MustRegister(metrics.Diagnostics(diag)...)

	if *args.Metrics != "" {
		go func() {
			if err := metrics.Serve(*args.Metrics); err != nil {
				logger.Errorf("Metrics webservice stopped [%v]", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *args.Duration != "" {
		d, err := time.ParseDuration(*args.Duration)
		if err != nil {
			logger.Fatalf("Invalid duration [%v]", err)
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	logger.Infof("Running %d activities, policy [%v], tick [%v]", len(cfg.Activities), cfg.Policy, cfg.Tick)
	if err := b.k.Run(ctx); !shutdown(err) {
		logger.Errorf("Kernel stopped [%v]", err)
	}

	// the tasks are released, print the totals once more
	b.reporter.Report()
	snap := b.acct.Snapshot()
	logger.Infof("Exiting after %d ticks, load [%.2f%%], serial lost [%d] rejected [%d]",
		b.k.TickCount(), snap.LoadPercent, b.reporter.Lost(), port.Rejected())
	if mirror != nil {
		logger.Infof("Telemetry sent [%d] dropped [%d]", mirror.Sent(), mirror.Dropped())
	}
}

// shutdown reports whether err is the normal end of a run: nil, a signal or the duration.
func shutdown(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
