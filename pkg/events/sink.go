package events

import (
	"github.com/ThreeDotsLabs/watermill/message"
)

// EventSink represents a destination for inference events.
// Implementations can publish events to different backends like watermill,
// logging systems, or other event processing systems.
type EventSink interface {
	// PublishEvent publishes an event to the sink.
	// Returns an error if the event could not be published.
	PublishEvent(event Event) error
}

// NullSink discards all events.
type NullSink struct{}

func NewNullSink() *NullSink { return &NullSink{} }

func (s *NullSink) PublishEvent(Event) error { return nil }

var _ EventSink = &NullSink{}

// WatermillSink publishes events to a watermill publisher on a fixed topic.
type WatermillSink struct {
	manager *PublisherManager
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	manager := NewPublisherManager()
	manager.SubscribePublisher(topic, publisher)
	return &WatermillSink{manager: manager}
}

func (s *WatermillSink) PublishEvent(event Event) error {
	return s.manager.Publish(event)
}

var _ EventSink = &WatermillSink{}
