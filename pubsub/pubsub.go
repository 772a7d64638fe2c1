package pubsub

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Every payload needs a type to distinguish what kind of update it is.
type Payload interface {
	Type() string
}

// Listener represents the common functions required by all subscription listeners
type Listener interface {
	// Begin listening on this channel with this callback. Blocks until Close() is called.
	Listen(chanName string, fn func(p Payload)) error
	// Close the listener. No more callbacks should fire.
	Close() error
}

// Notifier represents the common functions required by all notifiers
type Notifier interface {
	// Notify chanName that there is a new payload p. Return an error if we failed to send the notification.
	Notify(chanName string, p Payload) error
	// Close is called when we should stop listening.
	Close() error
}

// PubSub is an in-process Notifier and Listener backed by buffered channels, one per
// channel name.
type PubSub struct {
	chans      map[string]chan Payload
	mu         *sync.Mutex
	closed     bool
	done       chan struct{}
	bufferSize int
	timeout    time.Duration
}

func NewPubSub(bufferSize int) *PubSub {
	return &PubSub{
		chans:      make(map[string]chan Payload),
		mu:         &sync.Mutex{},
		done:       make(chan struct{}),
		bufferSize: bufferSize,
		timeout:    5 * time.Second,
	}
}

func (ps *PubSub) getChan(chanName string) (chan Payload, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return nil, fmt.Errorf("pubsub is closed")
	}
	ch := ps.chans[chanName]
	if ch == nil {
		ch = make(chan Payload, ps.bufferSize)
		ps.chans[chanName] = ch
	}
	return ch, nil
}

func (ps *PubSub) Notify(chanName string, p Payload) error {
	ch, err := ps.getChan(chanName)
	if err != nil {
		return fmt.Errorf("notify with payload %v: %w", p.Type(), err)
	}
	select {
	case ch <- p:
		break
	case <-ps.done:
		return fmt.Errorf("notify with payload %v: pubsub is closed", p.Type())
	case <-time.After(ps.timeout):
		return fmt.Errorf("notify with payload %v timed out", p.Type())
	}
	return nil
}

// Close wakes any blocked Notify and stops every Listen. Per-name channels are never
// closed, so a sender racing with Close gets an error rather than a panic.
func (ps *PubSub) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.closed {
		return nil
	}
	ps.closed = true
	close(ps.done)
	return nil
}

func (ps *PubSub) Listen(chanName string, fn func(p Payload)) error {
	ch, err := ps.getChan(chanName)
	if err != nil {
		return err
	}
	for {
		select {
		case payload := <-ch:
			fn(payload)
		case <-ps.done:
			return nil
		}
	}
}

// Wrapper around a Notifier which adds Prometheus metrics
type PromNotifier struct {
	Notifier
	msgCounter *prometheus.CounterVec
}

func (p *PromNotifier) Notify(chanName string, payload Payload) error {
	p.msgCounter.WithLabelValues(payload.Type()).Inc()
	return p.Notifier.Notify(chanName, payload)
}

func (p *PromNotifier) Close() error {
	prometheus.Unregister(p.msgCounter)
	return p.Notifier.Close()
}

// Wrap a notifier for prometheus metrics
func NewPromNotifier(n Notifier, subsystem string) Notifier {
	p := &PromNotifier{
		Notifier: n,
		msgCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "typingsync",
			Subsystem: subsystem,
			Name:      "num_payloads",
			Help:      "Number of payloads published",
		}, []string{"payload_type"}),
	}
	prometheus.MustRegister(p.msgCounter)
	return p
}
