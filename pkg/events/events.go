package events

import (
	"fmt"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventRunStarted    EventType = "run.started"
	EventRunAborted    EventType = "run.aborted"
	EventRunCompleted  EventType = "run.completed"
	EventStepStarted   EventType = "step.started"
	EventStepCompleted EventType = "step.completed"
	EventStepSkipped   EventType = "step.skipped"
	EventNodeFaulted   EventType = "node.faulted"
)

const (
	queueSize      = 100
	subscriberSize = 50
)

// Event is one transition of a run
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Step      string
	Node      string
	Message   string
	Metadata  map[string]string
}

// String renders the event as a single progress line
func (e *Event) String() string {
	switch e.Type {
	case EventRunStarted:
		return "run started"
	case EventRunCompleted:
		return "run finished: " + e.Message
	case EventRunAborted:
		return fmt.Sprintf("run aborted at %s: %s", e.Step, e.Message)
	case EventStepStarted:
		return e.Step
	case EventStepCompleted:
		if e.Message != "" {
			return fmt.Sprintf("%s done (%s)", e.Step, e.Message)
		}
		return e.Step + " done"
	case EventStepSkipped:
		return e.Step + " skipped"
	case EventNodeFaulted:
		return fmt.Sprintf("%s faulted in %s: %s", e.Node, e.Step, e.Message)
	}
	return string(e.Type)
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans run events out to subscribers. Delivery never blocks the
// publisher: a subscriber with a full buffer misses the event.
type Broker struct {
	mu   sync.RWMutex
	subs map[Subscriber]map[EventType]bool // nil filter = every type

	queue    chan *Event
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subs:   make(map[Subscriber]map[EventType]bool),
		queue:  make(chan *Event, queueSize),
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start begins delivering published events
func (b *Broker) Start() {
	go b.loop()
}

// Stop delivers the events already published and stops the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		<-b.done
	})
}

// Subscribe returns a channel receiving the given event types, or every type
// when none is given
func (b *Broker) Subscribe(types ...EventType) Subscriber {
	var filter map[EventType]bool
	if len(types) > 0 {
		filter = make(map[EventType]bool, len(types))
		for _, t := range types {
			filter[t] = true
		}
	}

	sub := make(Subscriber, subscriberSize)
	b.mu.Lock()
	b.subs[sub] = filter
	b.mu.Unlock()
	return sub
}

// Unsubscribe closes sub. It is safe to call more than once.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[sub]; ok {
		delete(b.subs, sub)
		close(sub)
	}
}

// Publish queues event for delivery. Events published after Stop are dropped.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case <-b.stopCh:
		return
	default:
	}

	select {
	case b.queue <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) loop() {
	defer close(b.done)
	for {
		select {
		case event := <-b.queue:
			b.deliver(event)
		case <-b.stopCh:
			b.drain()
			return
		}
	}
}

func (b *Broker) drain() {
	for {
		select {
		case event := <-b.queue:
			b.deliver(event)
		default:
			return
		}
	}
}

func (b *Broker) deliver(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub, filter := range b.subs {
		if filter != nil && !filter[event.Type] {
			continue
		}
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
