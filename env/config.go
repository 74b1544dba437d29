package env

import (
	"fmt"
	"os"
	"time"

	"github.com/gr-butler/loadmon/kernel"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Kind string

const (
	KindButton      Kind = "button"
	KindTransmitter Kind = "transmitter"
	KindLoad        Kind = "load"
	KindReporter    Kind = "reporter"
)

// maxTag mirrors the size of the accounting table.
const maxTag = 31

// Activity declares one periodic activity. Which of the optional fields apply
// depends on Kind.
type Activity struct {
	Name     string `yaml:"name"`
	Kind     Kind   `yaml:"kind"`
	Tag      int    `yaml:"tag"`
	Period   uint64 `yaml:"period"`
	Priority int    `yaml:"priority"`
	Stack    int    `yaml:"stack,omitempty"`
	Trace    string `yaml:"trace,omitempty"`

	Input   string        `yaml:"input,omitempty"`
	Button  int           `yaml:"button,omitempty"`
	Message string        `yaml:"message,omitempty"`
	Busy    time.Duration `yaml:"busy,omitempty"`
}

type Config struct {
	Policy      string        `yaml:"policy"`
	Tick        time.Duration `yaml:"tick"`
	QueueLength int           `yaml:"queue_length"`
	MessageSize int           `yaml:"message_size"`
	SendTimeout uint64        `yaml:"send_timeout"`
	StatsEvery  int           `yaml:"stats_every"`
	StatsSize   int           `yaml:"stats_size"`
	History     int           `yaml:"history"`
	IdleTag     int           `yaml:"idle_tag"`
	IdleLine    string        `yaml:"idle_line"`
	TickLine    string        `yaml:"tick_line"`
	AliveLine   string        `yaml:"alive_line"`
	CounterBits int           `yaml:"counter_bits"`
	Activities  []Activity    `yaml:"activities"`
}

// Default is the board as shipped: two buttons, a periodic transmitter, the
// reporter and two synthetic loads, all at the same priority.
func Default() *Config {
	return &Config{
		Policy:      kernel.FixedPriority.String(),
		Tick:        TickPeriod,
		QueueLength: QueueLength,
		MessageSize: MessageSize,
		SendTimeout: SendTimeout,
		StatsEvery:  StatsEvery,
		StatsSize:   StatsBufferSize,
		History:     HistorySize,
		IdleTag:     TagIdle,
		IdleLine:    IdleLine,
		TickLine:    TickLine,
		AliveLine:   AliveLed,
		CounterBits: 64,
		Activities: []Activity{
			{Name: "Button 1", Kind: KindButton, Tag: TagButton1, Period: Button1Period, Priority: 1, Trace: GPIO02, Input: Button1In, Button: 1},
			{Name: "Button 2", Kind: KindButton, Tag: TagButton2, Period: Button2Period, Priority: 1, Trace: GPIO03, Input: Button2In, Button: 2},
			{Name: "Periodic", Kind: KindTransmitter, Tag: TagPeriodic, Period: PeriodicPeriod, Priority: 1, Trace: GPIO05, Message: PeriodicMessage},
			{Name: "UART", Kind: KindReporter, Tag: TagUART, Period: UARTPeriod, Priority: 1, Trace: GPIO06},
			{Name: "Load 1", Kind: KindLoad, Tag: TagLoad1, Period: Load1Period, Priority: 1, Trace: GPIO07, Busy: Load1Busy},
			{Name: "Load 2", Kind: KindLoad, Tag: TagLoad2, Period: Load2Period, Priority: 1, Trace: GPIO08, Busy: Load2Busy},
		},
	}
}

// Load reads a YAML board description. Settings missing from the file keep their
// default; a file that lists activities replaces the default table.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := Parse(raw, c); err != nil {
		return nil, errors.Wrapf(err, "config %v", path)
	}
	return c, nil
}

// Parse overlays YAML onto c and validates the result.
func Parse(raw []byte, c *Config) error {
	var activities []Activity
	c.Activities, activities = nil, c.Activities
	if err := yaml.Unmarshal(raw, c); err != nil {
		return errors.Wrap(err, "parse")
	}
	if c.Activities == nil {
		c.Activities = activities
	}
	return c.Validate()
}

func (c *Config) Validate() error {
	if _, err := kernel.ParsePolicy(c.Policy); err != nil {
		return err
	}
	if c.Tick <= 0 {
		return errors.New("tick must be positive")
	}
	if c.QueueLength <= 0 || c.MessageSize <= 0 {
		return errors.New("queue length and message size must be positive")
	}
	if c.IdleTag <= 0 || c.IdleTag > maxTag {
		return errors.Errorf("idle tag %d out of range", c.IdleTag)
	}
	if c.CounterBits != 32 && c.CounterBits != 64 {
		return errors.Errorf("counter bits %d, want 32 or 64", c.CounterBits)
	}
	if len(c.Activities) == 0 {
		return errors.New("no activities")
	}

	tags := map[int]string{c.IdleTag: "IDLE"}
	reporters := 0
	for _, a := range c.Activities {
		if err := a.validate(); err != nil {
			return errors.Wrapf(err, "activity %q", a.Name)
		}
		if other, ok := tags[a.Tag]; ok {
			return errors.Errorf("activity %q reuses tag %d of %q", a.Name, a.Tag, other)
		}
		tags[a.Tag] = a.Name
		if a.Kind == KindReporter {
			reporters++
		}
	}
	if reporters != 1 {
		return errors.Errorf("want exactly one reporter, have %d", reporters)
	}
	return nil
}

func (a Activity) validate() error {
	switch {
	case a.Name == "":
		return errors.New("missing name")
	case a.Tag <= 0 || a.Tag > maxTag:
		return errors.Errorf("tag %d out of range", a.Tag)
	case a.Period == 0:
		return errors.New("period must be positive")
	case a.Priority <= kernel.IdlePriority || a.Priority >= Priorities:
		return errors.Errorf("priority %d out of range", a.Priority)
	}
	switch a.Kind {
	case KindButton:
		if a.Input == "" {
			return errors.New("button needs an input line")
		}
	case KindTransmitter:
		if a.Message == "" {
			return errors.New("transmitter needs a message")
		}
	case KindLoad:
		if a.Busy <= 0 {
			return errors.New("load needs a busy time")
		}
	case KindReporter:
	default:
		return errors.Errorf("unknown kind %q", a.Kind)
	}
	return nil
}

func (a Activity) String() string {
	return fmt.Sprintf("%v(%v) tag %d every %d ticks", a.Name, a.Kind, a.Tag, a.Period)
}
