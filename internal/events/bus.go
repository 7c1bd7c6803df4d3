package events

import (
	"sync"
	"time"
)

// EventType represents the type of governance event being published.
type EventType string

const (
	// EventExecutionBlocked is published when the guard refuses a unit of work.
	EventExecutionBlocked EventType = "execution_blocked"
	// EventPlanRepaired is published when the validator auto-repairs a plan.
	EventPlanRepaired EventType = "plan_repaired"
	// EventPatternDetected is published when the anomaly engine flags a pattern.
	EventPatternDetected EventType = "pattern_detected"
	// EventHealthDegraded is published when a health check leaves HEALTHY.
	EventHealthDegraded EventType = "health_degraded"
	// EventIterationLimit is published when a refinement loop hits its budget.
	EventIterationLimit EventType = "iteration_limit"
	// EventLockTakeover is published when a stale backend lock is reclaimed.
	EventLockTakeover EventType = "lock_takeover"
)

// Event represents a control-plane event.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

// Bus is a non-blocking event bus. Events are delivered asynchronously via
// buffered channels; if a subscriber's channel is full the event is dropped
// silently so governance checks can never stall on a slow observer.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
}

// NewBus creates a new event bus with the specified buffer size per subscriber.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a subscriber for a specific event type. The subscriber
// function runs in its own goroutine. Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			func() {
				defer func() {
					if r := recover(); r != nil {
						// subscriber panics must not disrupt the bus
					}
				}()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// Publish sends an event to all subscribers of the given type without
// blocking. A nil bus is a no-op so components can run unwired.
func (b *Bus) Publish(eventType EventType, data map[string]interface{}) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			// channel full, drop rather than block a check
		}
	}
}

// Close closes all subscriber channels and clears subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}
