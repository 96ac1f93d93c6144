// Package events provides a typed publish-subscribe mechanism. Subscribers are keyed by the Go
// type of the event, so any comparable struct can be used as an event without registration.
package events

import (
	"reflect"
	"sync"
)

type Event any

var (
	subscriptions   = make(map[reflect.Type]map[*subscription]func(any))
	subscriptionsMu sync.RWMutex
)

type subscription struct {
	typ reflect.Type
}

// Subscription allows unsubscribing from an event.
type Subscription[T Event] struct {
	sub *subscription
}

// Subscribe registers callback for events of type T.
func Subscribe[T Event](callback func(evt T)) *Subscription[T] {
	typ := reflect.TypeFor[T]()
	sub := &subscription{typ: typ}
	subscriptionsMu.Lock()
	defer subscriptionsMu.Unlock()
	if subscriptions[typ] == nil {
		subscriptions[typ] = make(map[*subscription]func(any))
	}
	subscriptions[typ][sub] = func(e any) { callback(e.(T)) }
	return &Subscription[T]{sub: sub}
}

// SubscribeOnce registers callback for the next event of type T only.
func SubscribeOnce[T Event](callback func(evt T)) *Subscription[T] {
	var (
		once sync.Once
		s    *Subscription[T]
		mu   sync.Mutex
	)
	mu.Lock()
	defer mu.Unlock()
	s = Subscribe(func(evt T) {
		once.Do(func() {
			mu.Lock()
			Unsubscribe(s)
			mu.Unlock()
			callback(evt)
		})
	})
	return s
}

// Unsubscribe removes the given subscription.
func Unsubscribe[T Event](s *Subscription[T]) {
	if s == nil || s.sub == nil {
		return
	}
	subscriptionsMu.Lock()
	defer subscriptionsMu.Unlock()
	if subs, ok := subscriptions[s.sub.typ]; ok {
		delete(subs, s.sub)
		if len(subs) == 0 {
			delete(subscriptions, s.sub.typ)
		}
	}
}

// Emit notifies all subscribers of the event. Callbacks are invoked asynchronously in separate
// goroutines, so subscribers must not rely on delivery order across events.
func Emit[T Event](evt T) {
	subscriptionsMu.RLock()
	defer subscriptionsMu.RUnlock()
	for _, cb := range subscriptions[reflect.TypeFor[T]()] {
		go cb(evt)
	}
}
