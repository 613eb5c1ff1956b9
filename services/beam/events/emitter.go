// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBufferSize is the number of events kept for replay.
const DefaultBufferSize = 1000

// Handler is a function that processes events.
type Handler func(event *Event)

// Filter is a function that determines if an event should be handled.
type Filter func(event *Event) bool

// Subscription represents a subscription to events.
type Subscription struct {
	// ID uniquely identifies this subscription.
	ID string

	// Handler processes matching events.
	Handler Handler

	// Filter determines which events to handle (nil = all events).
	Filter Filter

	// Types limits which event types to handle (nil = all types).
	Types []Type
}

// Emitter broadcasts the events of one run to subscribers and keeps a
// bounded replay buffer.
//
// Events are delivered synchronously, in emission order, on the emitting
// goroutine. Handlers must not block, emit or close the emitter; a
// panicking handler is recovered and logged.
//
// Thread Safety: Emitter is safe for concurrent use.
type Emitter struct {
	mu            sync.RWMutex
	emitMu        sync.Mutex
	subscriptions map[string]*Subscription
	order         []string
	buffer        []Event
	bufferSize    int
	runKey        string
	round         int
	seq           uint64
	closed        bool
	logger        *slog.Logger
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithBufferSize sets the replay buffer size.
func WithBufferSize(size int) EmitterOption {
	return func(e *Emitter) {
		if size > 0 {
			e.bufferSize = size
		}
	}
}

// WithRunKey sets the run key stamped on all events.
func WithRunKey(key string) EmitterOption {
	return func(e *Emitter) {
		e.runKey = key
	}
}

// WithLogger sets the logger used to report handler panics.
func WithLogger(logger *slog.Logger) EmitterOption {
	return func(e *Emitter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEmitter creates a new event emitter.
func NewEmitter(opts ...EmitterOption) *Emitter {
	e := &Emitter{
		subscriptions: make(map[string]*Subscription),
		bufferSize:    DefaultBufferSize,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.buffer = make([]Event, 0, min(e.bufferSize, 64))
	return e
}

// Subscribe registers a handler for events.
//
// Inputs:
//   - handler: Function to call for each event.
//   - types: Event types to subscribe to (nil = all types).
//
// Outputs:
//   - string: Subscription ID for unsubscribing.
func (e *Emitter) Subscribe(handler Handler, types ...Type) string {
	return e.SubscribeWithFilter(handler, nil, types...)
}

// SubscribeWithFilter registers a handler with a custom filter.
//
// Inputs:
//   - handler: Function to call for matching events.
//   - filter: Custom filter function (nil = no filter).
//   - types: Event types to subscribe to (nil = all types).
//
// Outputs:
//   - string: Subscription ID for unsubscribing.
func (e *Emitter) SubscribeWithFilter(handler Handler, filter Filter, types ...Type) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	sub := &Subscription{
		ID:      uuid.NewString(),
		Handler: handler,
		Filter:  filter,
		Types:   types,
	}
	e.subscriptions[sub.ID] = sub
	e.order = append(e.order, sub.ID)
	return sub.ID
}

// Unsubscribe removes a subscription.
//
// Outputs:
//   - bool: True if the subscription was found and removed.
func (e *Emitter) Unsubscribe(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.subscriptions[id]; !ok {
		return false
	}
	delete(e.subscriptions, id)
	for i, sid := range e.order {
		if sid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return true
}

// Emit broadcasts an event to all matching subscribers.
func (e *Emitter) Emit(eventType Type, data any) {
	e.EmitWithMetadata(eventType, data, nil)
}

// EmitWithMetadata broadcasts an event with additional metadata.
//
// The event is appended to the replay buffer (dropping the oldest entry
// when full) and then delivered to matching subscribers in subscription
// order. Emission is serialized so every subscriber observes the same
// sequence. Emitting after Close is a no-op.
//
// Inputs:
//   - eventType: The type of event.
//   - data: Event payload.
//   - metadata: Additional context (nil is allowed).
//
// Thread Safety: This method is safe for concurrent use.
func (e *Emitter) EmitWithMetadata(eventType Type, data any, metadata *EventMetadata) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.seq++
	event := Event{
		ID:        uuid.NewString(),
		Seq:       e.seq,
		Type:      eventType,
		RunKey:    e.runKey,
		Timestamp: time.Now(),
		Round:     e.round,
		Data:      data,
		Metadata:  metadata,
	}
	if len(e.buffer) >= e.bufferSize {
		e.buffer = e.buffer[1:]
	}
	e.buffer = append(e.buffer, event)

	subs := make([]*Subscription, 0, len(e.order))
	for _, id := range e.order {
		subs = append(subs, e.subscriptions[id])
	}
	e.mu.Unlock()

	for _, sub := range subs {
		if shouldHandle(sub, &event) {
			e.safeInvokeHandler(sub.Handler, &event)
		}
	}
}

// safeInvokeHandler invokes a handler with panic recovery.
func (e *Emitter) safeInvokeHandler(handler Handler, event *Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event handler panicked",
				"event_type", event.Type,
				"event_id", event.ID,
				"panic", r,
			)
		}
	}()
	handler(event)
}

// shouldHandle determines if a subscription should handle an event.
func shouldHandle(sub *Subscription, event *Event) bool {
	if len(sub.Types) > 0 {
		match := false
		for _, t := range sub.Types {
			if t == event.Type {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	if sub.Filter != nil && !sub.Filter(event) {
		return false
	}
	return true
}

// RunKey returns the run key stamped on events.
func (e *Emitter) RunKey() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.runKey
}

// SetRunKey updates the run key for future events.
func (e *Emitter) SetRunKey(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runKey = key
}

// SetRound updates the round stamped on future events.
func (e *Emitter) SetRound(round int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.round = round
}

// Round returns the current round.
func (e *Emitter) Round() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.round
}

// GetBuffer returns a copy of buffered events.
func (e *Emitter) GetBuffer() []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Event, len(e.buffer))
	copy(out, e.buffer)
	return out
}

// GetBufferAfter returns buffered events with Seq greater than after.
func (e *Emitter) GetBufferAfter(after uint64) []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Event
	for _, event := range e.buffer {
		if event.Seq > after {
			out = append(out, event)
		}
	}
	return out
}

// GetBufferByType returns buffered events of a specific type.
func (e *Emitter) GetBufferByType(eventType Type) []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var out []Event
	for _, event := range e.buffer {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}

// SubscriptionCount returns the number of active subscriptions.
func (e *Emitter) SubscriptionCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.subscriptions)
}

// Close stops delivery and drops all subscriptions. The replay buffer
// remains readable.
func (e *Emitter) Close() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	e.subscriptions = make(map[string]*Subscription)
	e.order = nil
}

// Closed reports whether Close has been called.
func (e *Emitter) Closed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}
