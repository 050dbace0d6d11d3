// Package event delivers simulation notifications to subscribers.
package event

import (
	"sync"
)

// Type names an event kind. Subscriptions are keyed by it.
type Type string

// Flight event types
const (
	ActorAdded            Type = "actor_added"
	ActorRemoved          Type = "actor_removed"
	ControllerPossessed   Type = "controller_possessed"
	ControllerUnpossessed Type = "controller_unpossessed"
	CameraModeChanged     Type = "camera_mode_changed"
	RenderableSwapped     Type = "renderable_swapped"
	NetworkInputReceived  Type = "network_input_received"
)

// Event is implemented by every payload published on a Bus.
type Event interface {
	GetType() Type
	GetSource() interface{}
}

// BaseEvent is embedded by payloads to satisfy Event.
type BaseEvent struct {
	EventType Type
	Source    interface{}
}

func (e *BaseEvent) GetType() Type {
	return e.EventType
}

func (e *BaseEvent) GetSource() interface{} {
	return e.Source
}

// Handler receives published events. It runs on the publisher's goroutine.
type Handler func(Event)

// Subscription identifies a registered handler. Cancel removes it.
type Subscription struct {
	ID     uint64
	Cancel func()
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Bus dispatches events synchronously to subscribers of their type.
type Bus struct {
	handlers map[Type][]subscriber
	nextID   uint64
	mu       sync.RWMutex
}

// NewEventBus returns an empty bus.
func NewEventBus() *Bus {
	return &Bus{
		handlers: make(map[Type][]subscriber),
		nextID:   1,
	}
}

// Subscribe registers handler for eventType.
func (b *Bus) Subscribe(eventType Type, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], subscriber{id: id, handler: handler})

	return &Subscription{
		ID:     id,
		Cancel: func() { b.unsubscribe(eventType, id) },
	}
}

func (b *Bus) unsubscribe(eventType Type, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			kept := make([]subscriber, 0, len(subs)-1)
			kept = append(kept, subs[:i]...)
			b.handlers[eventType] = append(kept, subs[i+1:]...)
			return
		}
	}
}

// SubscribeMany registers one handler for several event types. Cancelling
// the returned subscription removes it from every type.
func (b *Bus) SubscribeMany(handler Handler, types ...Type) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	for _, t := range types {
		b.handlers[t] = append(b.handlers[t], subscriber{id: id, handler: handler})
	}

	return &Subscription{
		ID: id,
		Cancel: func() {
			for _, t := range types {
				b.unsubscribe(t, id)
			}
		},
	}
}

// Subscribers returns the number of handlers registered for eventType.
func (b *Bus) Subscribers(eventType Type) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[eventType])
}

// Publish calls every handler subscribed to the event's type, in
// subscription order.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	subs := b.handlers[event.GetType()]
	b.mu.RUnlock()

	// Handlers run outside the lock so they may subscribe or cancel.
	for _, s := range subs {
		s.handler(event)
	}
}

// ActorEvent reports an actor joining or leaving the simulation
type ActorEvent struct {
	BaseEvent
	ActorID uint64
	Name    string
	Class   string
}

// NewActorEvent creates a new actor event
func NewActorEvent(eventType Type, source interface{}, actorID uint64, name, class string) *ActorEvent {
	return &ActorEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		ActorID: actorID,
		Name:    name,
		Class:   class,
	}
}

// PossessionEvent reports a controller taking or releasing an actor
type PossessionEvent struct {
	BaseEvent
	ActorID      uint64
	ControllerID string
}

// NewPossessionEvent creates a new possession event
func NewPossessionEvent(eventType Type, source interface{}, actorID uint64, controllerID string) *PossessionEvent {
	return &PossessionEvent{
		BaseEvent: BaseEvent{
			EventType: eventType,
			Source:    source,
		},
		ActorID:      actorID,
		ControllerID: controllerID,
	}
}

// CameraEvent reports a camera mode transition
type CameraEvent struct {
	BaseEvent
	From string
	To   string
}

// NewCameraEvent creates a new camera mode event
func NewCameraEvent(source interface{}, from, to string) *CameraEvent {
	return &CameraEvent{
		BaseEvent: BaseEvent{
			EventType: CameraModeChanged,
			Source:    source,
		},
		From: from,
		To:   to,
	}
}

// RenderableEvent reports a renderable being replaced for an actor
type RenderableEvent struct {
	BaseEvent
	ActorID uint64
	Asset   string
	Handle  string
}

// NewRenderableEvent creates a new renderable swap event
func NewRenderableEvent(source interface{}, actorID uint64, asset, handle string) *RenderableEvent {
	return &RenderableEvent{
		BaseEvent: BaseEvent{
			EventType: RenderableSwapped,
			Source:    source,
		},
		ActorID: actorID,
		Asset:   asset,
		Handle:  handle,
	}
}

// NetworkInputEvent reports an input frame accepted from a remote pilot
type NetworkInputEvent struct {
	BaseEvent
	ActorID   uint64
	SessionID string
	Sequence  uint32
}

// NewNetworkInputEvent creates a new network input event
func NewNetworkInputEvent(source interface{}, actorID uint64, sessionID string, sequence uint32) *NetworkInputEvent {
	return &NetworkInputEvent{
		BaseEvent: BaseEvent{
			EventType: NetworkInputReceived,
			Source:    source,
		},
		ActorID:   actorID,
		SessionID: sessionID,
		Sequence:  sequence,
	}
}
