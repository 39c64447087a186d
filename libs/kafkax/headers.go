// Package kafkax holds the Kafka conventions shared by the outbox relay and
// its consumers: envelope headers, trace propagation and client setup.
package kafkax

import (
	"github.com/segmentio/kafka-go"
)

const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)

// EventMeta identifies one event across redeliveries.
type EventMeta struct {
	EventID   string
	EventType string
}

func (m EventMeta) Headers() []kafka.Header {
	return []kafka.Header{
		{Key: HeaderEventID, Value: []byte(m.EventID)},
		{Key: HeaderEventType, Value: []byte(m.EventType)},
	}
}

// MetaOf reads the envelope headers, falling back to the message key and
// topic for producers that do not set them.
func MetaOf(msg kafka.Message) EventMeta {
	m := EventMeta{
		EventID:   Header(msg.Headers, HeaderEventID),
		EventType: Header(msg.Headers, HeaderEventType),
	}
	if m.EventID == "" {
		m.EventID = string(msg.Key)
	}
	if m.EventType == "" {
		m.EventType = msg.Topic
	}
	return m
}

// Header returns the last value for key, or "".
func Header(headers []kafka.Header, key string) string {
	for i := len(headers) - 1; i >= 0; i-- {
		if headers[i].Key == key {
			return string(headers[i].Value)
		}
	}
	return ""
}
