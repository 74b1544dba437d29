package env

import "time"

const (
	GPIO02 = "GPIO2"
	GPIO03 = "GPIO3"
	GPIO04 = "GPIO4"
	GPIO05 = "GPIO5"
	GPIO06 = "GPIO6"
	GPIO07 = "GPIO7"
	GPIO08 = "GPIO8"
	GPIO09 = "GPIO9"
	GPIO17 = "GPIO17" // button 1
	GPIO20 = "GPIO20" // heartbeat LED
	GPIO27 = "GPIO27" // button 2

	Button1In = GPIO17
	Button2In = GPIO27
	AliveLed  = GPIO20

	// Activity tags double as the number of their trace line.
	TagButton1  = 2
	TagButton2  = 3
	TagTick     = 4
	TagPeriodic = 5
	TagUART     = 6
	TagLoad1    = 7
	TagLoad2    = 8
	TagIdle     = 9

	TickLine = GPIO04
	IdleLine = GPIO09

	TickPeriod      = time.Millisecond
	TimerResolution = time.Microsecond

	Button1Period  = 50
	Button2Period  = 50
	PeriodicPeriod = 100
	UARTPeriod     = 20
	Load1Period    = 10
	Load2Period    = 100

	Load1Busy = 5 * time.Millisecond
	Load2Busy = 12 * time.Millisecond

	QueueLength     = 10
	MessageSize     = 15
	SendTimeout     = 10
	StatsBufferSize = 240
	StatsEvery      = 50
	HistorySize     = 60

	StackSize  = 100
	Priorities = 4

	PeriodicMessage = "Periodic str.\n"

	MetricsAddr = ":80"
	MQTTTopic   = "loadmon/stats"
	BoardName   = "lpc2129"
)

// Environment variables read at start-up.
const (
	MQTTBrokerEnv = "LOADMON_MQTT_BROKER"
)
