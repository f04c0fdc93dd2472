package bus

import "time"

// EventBus is a thread-safe, in-process pub/sub bus.
//
// Handlers subscribe by Event.Type(). Topics scope delivery: the default topic
// is "" and agent-local events are published to a topic named after the agent
// so that reactive conditions of one agent never observe another agent's
// stimuli. Delivery is synchronous on the publisher goroutine; handler errors
// are joined and returned from Publish.
type EventBus interface {
	// Publish delivers event to subscribers of event.Type() in the default topic.
	Publish(event Event) error
	// PublishToTopic delivers event to subscribers within topic.
	PublishToTopic(topic string, event Event) error

	// Subscribe registers handler for eventType in the default topic.
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// SubscribeTopic registers handler for eventType within topic.
	SubscribeTopic(topic, eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels sub. Nil is ignored.
	Unsubscribe(sub Subscription) error

	// AddObserver reports every delivery to obs until it is removed.
	AddObserver(obs EventBusObserver)
	RemoveObserver(obs EventBusObserver)
	// Subscribers returns the number of active subscriptions across all topics.
	Subscribers() int
}

// Event is an immutable message transported by the EventBus.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
}

// EventHandler is invoked per delivered event.
type EventHandler func(event Event) error

// Subscription is a registered handler bound to an event type.
type Subscription interface {
	ID() string
	Topic() string
	EventType() string
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}

// EventBusObserver is notified about deliveries. handlers is the number of
// subscriptions the event reached and err joins their failures.
type EventBusObserver interface {
	OnPublish(topic, eventType string, event Event)
	OnDelivered(topic, eventType string, handlers int, err error, took time.Duration)
}
