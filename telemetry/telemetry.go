package telemetry

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-querystring/query"
	"github.com/gr-butler/loadmon/accounting"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

const (
	DefaultTopic   = "loadmon/stats"
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
	backlog        = 8
)

// Client is the publishing side of a broker connection.
type Client interface {
	Publish(topic string, payload []byte) error
	Close()
}

type report struct {
	Board      string   `url:"board"`
	Elapsed    uint64   `url:"elapsed"`
	Busy       uint64   `url:"busy"`
	Load       float64  `url:"load"`
	Activities []string `url:"activity,omitempty"`
}

// Encode renders a report as URL query values, one activity value per accounted
// activity in the form name:busy:runs.
func Encode(board string, snap accounting.Snapshot, stats []accounting.Stat) (string, error) {
	r := report{
		Board:   board,
		Elapsed: snap.Elapsed,
		Busy:    snap.Busy,
		Load:    snap.LoadPercent,
	}
	for _, s := range stats {
		r.Activities = append(r.Activities, fmt.Sprintf("%s:%d:%d", s.Name, s.Total, s.Runs))
	}
	v, err := query.Values(r)
	if err != nil {
		return "", errors.Wrap(err, "encode report")
	}
	return v.Encode(), nil
}

// Mirror forwards statistics reports to a broker. Observe never blocks: reports are
// handed to a background publisher and dropped when it falls behind.
type Mirror struct {
	board   string
	topic   string
	client  Client
	pending chan []byte
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Uint64
	sent    atomic.Uint64
}

func NewMirror(client Client, board, topic string) *Mirror {
	if topic == "" {
		topic = DefaultTopic
	}
	m := &Mirror{
		board:   board,
		topic:   topic,
		client:  client,
		pending: make(chan []byte, backlog),
		done:    make(chan struct{}),
	}
	m.wg.Add(1)
	go m.publish()
	return m
}

func (m *Mirror) Observe(snap accounting.Snapshot, stats []accounting.Stat) {
	payload, err := Encode(m.board, snap, stats)
	if err != nil {
		logger.Errorf("Telemetry encode failed [%v]", err)
		return
	}
	select {
	case m.pending <- []byte(payload):
	default:
		m.dropped.Add(1)
	}
}

func (m *Mirror) publish() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case p := <-m.pending:
			if err := m.client.Publish(m.topic, p); err != nil {
				logger.Errorf("Telemetry publish to [%v] failed [%v]", m.topic, err)
				continue
			}
			m.sent.Add(1)
		}
	}
}

// Close stops the publisher and the broker connection.
func (m *Mirror) Close() {
	close(m.done)
	m.wg.Wait()
	m.client.Close()
}

func (m *Mirror) Sent() uint64    { return m.sent.Load() }
func (m *Mirror) Dropped() uint64 { return m.dropped.Load() }

type pahoClient struct {
	c mqtt.Client
}

// Dial connects to an MQTT broker such as tcp://host:1883.
func Dial(broker, clientID string) (Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(connectTimeout).
		SetAutoReconnect(true)
	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.Errorf("connect to %v timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, errors.Wrapf(err, "connect to %v", broker)
	}
	logger.Infof("Connected to MQTT broker [%v]", broker)
	return &pahoClient{c: c}, nil
}

func (p *pahoClient) Publish(topic string, payload []byte) error {
	token := p.c.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Errorf("publish to %v timed out", topic)
	}
	return token.Error()
}

func (p *pahoClient) Close() {
	p.c.Disconnect(250)
}
