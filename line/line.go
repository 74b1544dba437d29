package line

import (
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Line is a single digital I/O line. A Line with no pin is valid and does nothing,
// so a missing instrumentation pin never stops the board from running.
type Line struct {
	Name    string
	gpioPin gpio.PinIO
}

// Lookup resolves a pin name through the periph registry.
func Lookup(name, GPIOPin string) *Line {
	p := gpioreg.ByName(GPIOPin)
	if p == nil {
		logger.Errorf("Failed to find %v pin for [%v]", GPIOPin, name)
	}
	return New(name, p)
}

func New(name string, p gpio.PinIO) *Line {
	return &Line{Name: name, gpioPin: p}
}

// Output configures the line as a low output.
func (l *Line) Output() error {
	if l == nil || l.gpioPin == nil {
		return nil
	}
	return l.gpioPin.Out(gpio.Low)
}

// Input configures the line as an input with a pull-up, the idle level of a button.
func (l *Line) Input() error {
	if l == nil || l.gpioPin == nil {
		return nil
	}
	return l.gpioPin.In(gpio.PullUp, gpio.NoEdge)
}

// Write drives the line. It does not block and does not allocate.
func (l *Line) Write(level gpio.Level) {
	if l == nil || l.gpioPin == nil {
		return
	}
	_ = l.gpioPin.Out(level)
}

func (l *Line) High() { l.Write(gpio.High) }
func (l *Line) Low()  { l.Write(gpio.Low) }

// Pulse drives a high then low edge for a logic analyser.
func (l *Line) Pulse() {
	l.Write(gpio.High)
	l.Write(gpio.Low)
}

// Read returns the current level, Low when no pin is attached.
func (l *Line) Read() gpio.Level {
	if l == nil || l.gpioPin == nil {
		return gpio.Low
	}
	return l.gpioPin.Read()
}

func (l *Line) Attached() bool {
	return l != nil && l.gpioPin != nil
}
