package env

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Len(t, c.Activities, 6)
	assert.Equal(t, "UART", c.Activities[3].Name)
	assert.Equal(t, uint64(20), c.Activities[3].Period)
}

func TestParseOverlaysDefaults(t *testing.T) {
	c := Default()
	require.NoError(t, Parse([]byte("policy: edf\nstats_every: 5\n"), c))
	assert.Equal(t, "edf", c.Policy)
	assert.Equal(t, 5, c.StatsEvery)
	assert.Equal(t, QueueLength, c.QueueLength)
	assert.Equal(t, 64, c.CounterBits)

	require.NoError(t, Parse([]byte("counter_bits: 32\n"), c))
	assert.Equal(t, 32, c.CounterBits)
	assert.Len(t, c.Activities, 6)
}

func TestParseReplacesActivities(t *testing.T) {
	raw := `
activities:
  - name: UART
    kind: reporter
    tag: 6
    period: 20
    priority: 1
  - name: Burner
    kind: load
    tag: 10
    period: 5
    priority: 2
    busy: 2ms
`
	c := Default()
	require.NoError(t, Parse([]byte(raw), c))
	require.Len(t, c.Activities, 2)
	assert.Equal(t, 2*time.Millisecond, c.Activities[1].Busy)
	assert.Equal(t, KindLoad, c.Activities[1].Kind)
}

func TestValidateRejects(t *testing.T) {
	for name, raw := range map[string]string{
		"policy":        "policy: lottery\n",
		"duplicate tag": "activities:\n- {name: UART, kind: reporter, tag: 6, period: 20, priority: 1}\n- {name: B, kind: button, tag: 6, period: 5, priority: 1, input: GPIO17}\n",
		"idle tag":      "activities:\n- {name: UART, kind: reporter, tag: 9, period: 20, priority: 1}\n",
		"no reporter":   "activities:\n- {name: L, kind: load, tag: 7, period: 10, priority: 1, busy: 1ms}\n",
		"no busy":       "activities:\n- {name: UART, kind: reporter, tag: 6, period: 20, priority: 1}\n- {name: L, kind: load, tag: 7, period: 10, priority: 1}\n",
		"kind":          "activities:\n- {name: UART, kind: reporter, tag: 6, period: 20, priority: 1}\n- {name: X, kind: blinker, tag: 7, period: 10, priority: 1}\n",
		"priority":      "activities:\n- {name: UART, kind: reporter, tag: 6, period: 20, priority: 0}\n",
		"period":        "activities:\n- {name: UART, kind: reporter, tag: 6, period: 0, priority: 1}\n",
		"syntax":        "activities: [\n",
		"counter bits":  "counter_bits: 16\n",
	} {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Parse([]byte(raw), Default()))
		})
	}
}

func TestLoad(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)

	path := filepath.Join(t.TempDir(), "board.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tick: 2ms\n"), 0o644))
	c, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Millisecond, c.Tick)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
