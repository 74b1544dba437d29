package metrics

import (
	"net/http"
	"time"

	"github.com/gr-butler/loadmon/accounting"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	logger "github.com/sirupsen/logrus"
)

var Prom_cpuLoad = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "cpu_load_percent",
		Help: "Busy time over elapsed time of all accounted activities",
	},
)

var Prom_elapsed = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "accounting_elapsed_units",
		Help: "Timer units since accounting started",
	},
)

var Prom_busy = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "activity_busy_units",
		Help: "Accumulated busy time per activity in timer units",
	},
	[]string{"activity"},
)

var Prom_runs = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "activity_runs",
		Help: "Number of times the activity was switched in",
	},
	[]string{"activity"},
)

var Prom_mailboxDepth = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "mailbox_depth",
		Help: "Messages waiting in the mailbox at the last report",
	},
)

var Prom_sendFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "mailbox_send_failures_total",
		Help: "Messages dropped because the mailbox stayed full",
	},
	[]string{"activity"},
)

func init() {
	logger.Infof("%v: Initialize prometheus...", time.Now().Format(time.RFC822))
	prometheus.MustRegister(
		Prom_cpuLoad,
		Prom_elapsed,
		Prom_busy,
		Prom_runs,
		Prom_mailboxDepth,
		Prom_sendFailures)
}

// SendFailures returns the drop counter of one activity.
func SendFailures(activity string) prometheus.Counter {
	return Prom_sendFailures.WithLabelValues(activity)
}

// Sources reads the drop counters kept outside the kernel. Nil readers are skipped.
type Sources struct {
	SerialLost       func() uint64
	SerialRejected   func() uint64
	TelemetryDropped func() uint64
}

// Diagnostics returns counters that read the sources at scrape time.
func Diagnostics(s Sources) []prometheus.Collector {
	var out []prometheus.Collector
	add := func(name, help string, read func() uint64) {
		if read == nil {
			return
		}
		out = append(out, prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: name, Help: help},
			func() float64 { return float64(read()) },
		))
	}
	add("serial_writes_lost_total", "Reporter writes the serial port never accepted", s.SerialLost)
	add("serial_writes_rejected_total", "Writes refused by the serial device", s.SerialRejected)
	add("telemetry_reports_dropped_total", "Reports not mirrored because the publisher was busy", s.TelemetryDropped)
	return out
}

// Publisher copies each statistics report into the gauges.
type Publisher struct {
	Mailbox interface{ Len() int }
}

func (p *Publisher) Observe(snap accounting.Snapshot, stats []accounting.Stat) {
	Prom_cpuLoad.Set(snap.LoadPercent)
	Prom_elapsed.Set(float64(snap.Elapsed))
	for _, s := range stats {
		Prom_busy.WithLabelValues(s.Name).Set(float64(s.Total))
		Prom_runs.WithLabelValues(s.Name).Set(float64(s.Runs))
	}
	if p.Mailbox != nil {
		Prom_mailboxDepth.Set(float64(p.Mailbox.Len()))
	}
}

// Serve exposes /metrics on addr. It only returns on failure.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Infof("Starting metrics webservice on [%v]", addr)
	return http.ListenAndServe(addr, mux)
}
