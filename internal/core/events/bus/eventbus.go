package bus

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type simpleEvent struct {
	typeStr string
	source  string
	ts      time.Time
	data    any
}

func (e simpleEvent) Type() string         { return e.typeStr }
func (e simpleEvent) Source() string       { return e.source }
func (e simpleEvent) Timestamp() time.Time { return e.ts }
func (e simpleEvent) Data() any            { return e.data }

// NewEvent creates a simple Event implementation.
func NewEvent(typ, src string, data any) Event {
	return simpleEvent{typeStr: typ, source: src, ts: time.Now(), data: data}
}

type subscription struct {
	bus       *inMemoryBus
	id        string
	seq       uint64
	topic     string
	eventType string
	handler   EventHandler

	mu     sync.Mutex
	active bool
}

func (s *subscription) ID() string        { return s.id }
func (s *subscription) Topic() string     { return s.topic }
func (s *subscription) EventType() string { return s.eventType }

func (s *subscription) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *subscription) Cancel() error {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return nil
	}
	s.active = false
	s.mu.Unlock()
	s.bus.remove(s)
	return nil
}

// inMemoryBus keeps handlers as topic -> eventType -> subID -> subscription.
type inMemoryBus struct {
	mu        sync.RWMutex
	handlers  map[string]map[string]map[string]*subscription
	seq       uint64
	observers map[EventBusObserver]struct{}
}

// New creates a new EventBus instance.
func New() EventBus {
	return &inMemoryBus{
		handlers:  make(map[string]map[string]map[string]*subscription),
		observers: make(map[EventBusObserver]struct{}),
	}
}

func (b *inMemoryBus) Publish(event Event) error {
	return b.deliver("", event)
}

func (b *inMemoryBus) PublishToTopic(topic string, event Event) error {
	return b.deliver(topic, event)
}

func (b *inMemoryBus) Subscribe(eventType string, handler EventHandler) (Subscription, error) {
	return b.SubscribeTopic("", eventType, handler)
}

func (b *inMemoryBus) SubscribeTopic(topic, eventType string, handler EventHandler) (Subscription, error) {
	if handler == nil {
		return nil, errors.New("bus: nil handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[string]map[string]*subscription)
	}
	if b.handlers[topic][eventType] == nil {
		b.handlers[topic][eventType] = make(map[string]*subscription)
	}
	b.seq++
	s := &subscription{
		bus:       b,
		id:        uuid.NewString(),
		seq:       b.seq,
		topic:     topic,
		eventType: eventType,
		handler:   handler,
		active:    true,
	}
	b.handlers[topic][eventType][s.id] = s
	return s, nil
}

func (b *inMemoryBus) Unsubscribe(sub Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Cancel()
}

func (b *inMemoryBus) AddObserver(obs EventBusObserver) {
	b.mu.Lock()
	b.observers[obs] = struct{}{}
	b.mu.Unlock()
}

func (b *inMemoryBus) RemoveObserver(obs EventBusObserver) {
	b.mu.Lock()
	delete(b.observers, obs)
	b.mu.Unlock()
}

func (b *inMemoryBus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, et := range b.handlers {
		for _, m := range et {
			n += len(m)
		}
	}
	return n
}

func (b *inMemoryBus) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	byType := b.handlers[s.topic]
	if byType == nil {
		return
	}
	if m := byType[s.eventType]; m != nil {
		delete(m, s.id)
		if len(m) == 0 {
			delete(byType, s.eventType)
		}
	}
	if len(byType) == 0 {
		delete(b.handlers, s.topic)
	}
}

func (b *inMemoryBus) deliver(topic string, event Event) error {
	start := time.Now()
	etype := event.Type()

	b.mu.RLock()
	var subs []*subscription
	if m := b.handlers[topic][etype]; m != nil {
		subs = make([]*subscription, 0, len(m))
		for _, s := range m {
			subs = append(subs, s)
		}
	}
	var observers []EventBusObserver
	if len(b.observers) > 0 {
		observers = make([]EventBusObserver, 0, len(b.observers))
		for obs := range b.observers {
			observers = append(observers, obs)
		}
	}
	b.mu.RUnlock()

	// deliver in subscription order
	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })

	for _, obs := range observers {
		obs.OnPublish(topic, etype, event)
	}

	var all error
	delivered := 0
	for _, s := range subs {
		if !s.IsActive() {
			continue
		}
		delivered++
		if err := s.handler(event); err != nil {
			all = errors.Join(all, err)
		}
	}

	if len(observers) > 0 {
		took := time.Since(start)
		for _, obs := range observers {
			obs.OnDelivered(topic, etype, delivered, all, took)
		}
	}
	return all
}
