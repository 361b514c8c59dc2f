package publish

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/ayusman/gazetrack/internal/session"
)

const (
	connectTimeout = 5 * time.Second
	eventTimeout   = 250 * time.Millisecond
	queueSize      = 64
)

// ErrNoBroker is returned by Connect when no broker address is configured.
var ErrNoBroker = errors.New("no mqtt broker configured")

// Config selects the broker and topics.
type Config struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	// Every publishes one display message per Every frames. Events are never
	// throttled.
	Every int
}

// client is the subset of mqtt.Client the Publisher uses.
type client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Publisher sends display messages to <prefix>/display and events to
// <prefix>/events. Messages are handed to a single background goroutine so
// a slow broker never holds up the caller; when its queue is full, messages
// are dropped.
type Publisher struct {
	client  client
	display string
	events  string
	every   int
	frames  int
	queue   chan outgoing
	wg      sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	dropped int
}

type outgoing struct {
	topic   string
	payload []byte
	wait    bool
}

// Connect dials the broker and returns a Publisher for it.
func Connect(cfg Config) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, ErrNoBroker
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout)

	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connect to %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}

	return newPublisher(c, cfg.TopicPrefix, cfg.Every), nil
}

func newPublisher(c client, prefix string, every int) *Publisher {
	if every < 1 {
		every = 1
	}
	p := &Publisher{
		client:  c,
		display: prefix + "/display",
		events:  prefix + "/events",
		every:   every,
		queue:   make(chan outgoing, queueSize),
	}
	p.wg.Add(1)
	go p.work()
	return p
}

// Frame queues the display message when due, followed by events. It never
// blocks on the broker.
func (p *Publisher) Frame(out session.FrameOutput, events []Event) {
	if p.frames%p.every == 0 {
		p.enqueue(p.display, DisplayOf(out), false)
	}
	p.frames++

	for _, e := range events {
		p.enqueue(p.events, e, true)
	}
}

// Dropped returns the number of messages discarded because the queue was full.
func (p *Publisher) Dropped() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

func (p *Publisher) enqueue(topic string, v any, wait bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("mqtt: marshal %s: %v", topic, err)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- outgoing{topic: topic, payload: payload, wait: wait}:
	default:
		p.dropped++
	}
}

func (p *Publisher) work() {
	defer p.wg.Done()
	for m := range p.queue {
		token := p.client.Publish(m.topic, 0, false, m.payload)
		if !m.wait {
			continue
		}
		if !token.WaitTimeout(eventTimeout) {
			log.Printf("mqtt: publish %s: timed out", m.topic)
		} else if err := token.Error(); err != nil {
			log.Printf("mqtt: publish %s: %v", m.topic, err)
		}
	}
}

// Close sends the messages already queued and disconnects from the broker.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	p.client.Disconnect(250)
}
