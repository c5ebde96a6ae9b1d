// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event

import (
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	EventQueueSize = 64
	AsyncQueueSize = 1000
)

type EventType string

type EventSubscriberId int

type EventHandlerFunc func(Event)

type Event struct {
	Timestamp time.Time
	Data      any
	Type      EventType
}

func NewEvent(eventType EventType, eventData any) Event {
	return Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      eventData,
	}
}

type subscriber struct {
	ch     chan Event
	mu     sync.Mutex
	closed bool
}

// deliver hands the event to the subscriber without blocking. It returns
// false when the subscriber's queue is full and the event was dropped.
func (s *subscriber) deliver(evt Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.ch <- evt:
		return true
	default:
		return false
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// EventBus fans campaign lifecycle events out to subscribers. Publishing
// never blocks on a slow subscriber; events that do not fit in its queue
// are dropped and counted.
type EventBus struct {
	subscribers map[EventType]map[EventSubscriberId]*subscriber
	metrics     *eventMetrics
	logger      *slog.Logger
	asyncQueue  chan Event
	doneCh      chan struct{}
	lastSubId   EventSubscriberId
	mu          sync.RWMutex
	stopOnce    sync.Once
	stopped     bool
}

// NewEventBus creates a new EventBus and starts its async delivery worker
func NewEventBus(
	promRegistry prometheus.Registerer,
	logger *slog.Logger,
) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	e := &EventBus{
		subscribers: make(map[EventType]map[EventSubscriberId]*subscriber),
		logger:      logger.With("component", "event"),
		asyncQueue:  make(chan Event, AsyncQueueSize),
		doneCh:      make(chan struct{}),
	}
	if promRegistry != nil {
		e.metrics = newEventMetrics(promRegistry)
	}
	go e.asyncWorker()
	return e
}

func (e *EventBus) asyncWorker() {
	defer close(e.doneCh)
	for evt := range e.asyncQueue {
		e.Publish(evt.Type, evt)
	}
}

// Subscribe allows a consumer to receive events of a particular type via a channel
func (e *EventBus) Subscribe(
	eventType EventType,
) (EventSubscriberId, <-chan Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sub := &subscriber{
		ch: make(chan Event, EventQueueSize),
	}
	if e.stopped {
		sub.close()
		return 0, sub.ch
	}
	e.lastSubId++
	subId := e.lastSubId
	if _, ok := e.subscribers[eventType]; !ok {
		e.subscribers[eventType] = make(map[EventSubscriberId]*subscriber)
	}
	e.subscribers[eventType][subId] = sub
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType)).Inc()
	}
	return subId, sub.ch
}

// SubscribeFunc allows a consumer to receive events of a particular type via a callback function
func (e *EventBus) SubscribeFunc(
	eventType EventType,
	handlerFunc EventHandlerFunc,
) EventSubscriberId {
	subId, evtCh := e.Subscribe(eventType)
	go func() {
		for evt := range evtCh {
			handlerFunc(evt)
		}
	}()
	return subId
}

// Unsubscribe stops delivery of events for a particular type for an existing subscriber
func (e *EventBus) Unsubscribe(eventType EventType, subId EventSubscriberId) {
	e.mu.Lock()
	var sub *subscriber
	if evtTypeSubs, ok := e.subscribers[eventType]; ok {
		sub = evtTypeSubs[subId]
		delete(evtTypeSubs, subId)
		if len(evtTypeSubs) == 0 {
			delete(e.subscribers, eventType)
		}
	}
	e.mu.Unlock()
	if sub == nil {
		return
	}
	sub.close()
	if e.metrics != nil {
		e.metrics.subscribers.WithLabelValues(string(eventType)).Dec()
	}
}

// Publish delivers an event of a particular type to all current subscribers
func (e *EventBus) Publish(eventType EventType, evt Event) {
	e.mu.RLock()
	subs := make([]*subscriber, 0, len(e.subscribers[eventType]))
	for _, sub := range e.subscribers[eventType] {
		subs = append(subs, sub)
	}
	e.mu.RUnlock()
	for _, sub := range subs {
		if sub.deliver(evt) {
			continue
		}
		e.logger.Debug(
			"subscriber queue full, dropping event",
			"type", eventType,
		)
		if e.metrics != nil {
			e.metrics.dropped.WithLabelValues(string(eventType)).Inc()
		}
	}
	if e.metrics != nil {
		e.metrics.eventsTotal.WithLabelValues(string(eventType)).Inc()
	}
}

// PublishAsync enqueues an event for delivery by the bus worker. It
// returns false if the bus is stopped or the queue is full.
func (e *EventBus) PublishAsync(eventType EventType, evt Event) bool {
	evt.Type = eventType
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.stopped {
		return false
	}
	select {
	case e.asyncQueue <- evt:
		return true
	default:
		e.logger.Warn(
			"async event queue full, dropping event",
			"type", eventType,
		)
		if e.metrics != nil {
			e.metrics.dropped.WithLabelValues(string(eventType)).Inc()
		}
		return false
	}
}

// Stop drains queued async events, then closes all subscriber channels so
// SubscribeFunc goroutines exit. A stopped bus cannot be restarted.
func (e *EventBus) Stop() {
	e.stopOnce.Do(func() {
		e.mu.Lock()
		e.stopped = true
		close(e.asyncQueue)
		e.mu.Unlock()
		<-e.doneCh

		e.mu.Lock()
		subsCopy := e.subscribers
		e.subscribers = make(map[EventType]map[EventSubscriberId]*subscriber)
		e.mu.Unlock()
		for _, evtTypeSubs := range subsCopy {
			for _, sub := range evtTypeSubs {
				sub.close()
			}
		}
		if e.metrics != nil {
			e.metrics.subscribers.Reset()
		}
	})
}
