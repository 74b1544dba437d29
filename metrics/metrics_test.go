package metrics

import (
	"testing"

	"github.com/gr-butler/loadmon/accounting"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type depth int

func (d depth) Len() int { return int(d) }

func TestPublisherObserve(t *testing.T) {
	p := &Publisher{Mailbox: depth(3)}
	p.Observe(
		accounting.Snapshot{Elapsed: 500, Busy: 50, LoadPercent: 10},
		[]accounting.Stat{{Tag: 7, Name: "Load 1", Total: 50, Runs: 4}},
	)

	assert.Equal(t, 10.0, testutil.ToFloat64(Prom_cpuLoad))
	assert.Equal(t, 500.0, testutil.ToFloat64(Prom_elapsed))
	assert.Equal(t, 50.0, testutil.ToFloat64(Prom_busy.WithLabelValues("Load 1")))
	assert.Equal(t, 4.0, testutil.ToFloat64(Prom_runs.WithLabelValues("Load 1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(Prom_mailboxDepth))
}

func TestSendFailures(t *testing.T) {
	c := SendFailures("Button 1")
	before := testutil.ToFloat64(c)
	c.Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(SendFailures("Button 1")))
}

func TestDiagnostics(t *testing.T) {
	lost, dropped := uint64(3), uint64(0)
	cs := Diagnostics(Sources{
		SerialLost:       func() uint64 { return lost },
		TelemetryDropped: func() uint64 { return dropped },
	})
	require.Len(t, cs, 2)

	assert.Equal(t, 3.0, testutil.ToFloat64(cs[0]))
	dropped = 7
	assert.Equal(t, 7.0, testutil.ToFloat64(cs[1]))
	assert.Empty(t, Diagnostics(Sources{}))
}
