// Package bustest provides an in-process document bus with retained
// message semantics for tests: subscribing delivers retained documents
// synchronously, publishing an empty retained payload deletes.
package bustest

import (
	"strings"
	"sync"

	"github.com/cutiefunny/musclecat/internal/ports"
)

type subscription struct {
	filter  string
	handler ports.MessageHandler
}

// Bus is an in-memory ports.Bus.
type Bus struct {
	mu       sync.Mutex
	retained map[string][]byte
	subs     []*subscription
}

var _ ports.Bus = (*Bus)(nil)

// New creates an empty bus.
func New() *Bus {
	return &Bus{retained: map[string][]byte{}}
}

// Publish delivers to matching subscribers and records retained payloads.
func (b *Bus) Publish(topic string, _ byte, retained bool, payload []byte) error {
	b.mu.Lock()
	if retained {
		if len(payload) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = append([]byte(nil), payload...)
		}
	}
	var handlers []ports.MessageHandler
	for _, sub := range b.subs {
		if topicMatches(sub.filter, topic) {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.Unlock()

	for _, handler := range handlers {
		handler(topic, payload)
	}
	return nil
}

// Subscribe attaches a handler and replays matching retained documents.
func (b *Bus) Subscribe(filter string, _ byte, handler ports.MessageHandler) error {
	b.mu.Lock()
	b.subs = append(b.subs, &subscription{filter: filter, handler: handler})
	type msg struct {
		topic   string
		payload []byte
	}
	var replay []msg
	for topic, payload := range b.retained {
		if topicMatches(filter, topic) {
			replay = append(replay, msg{topic, payload})
		}
	}
	b.mu.Unlock()

	for _, m := range replay {
		handler(m.topic, m.payload)
	}
	return nil
}

// Unsubscribe detaches handlers synchronously.
func (b *Bus) Unsubscribe(filters ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.subs[:0]
	for _, sub := range b.subs {
		remove := false
		for _, filter := range filters {
			if sub.filter == filter {
				remove = true
				break
			}
		}
		if !remove {
			kept = append(kept, sub)
		}
	}
	b.subs = kept
	return nil
}

// Retained returns the retained payload for a topic, if any.
func (b *Bus) Retained(topic string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	payload, ok := b.retained[topic]
	return payload, ok
}

func topicMatches(filter, topic string) bool {
	if filter == topic {
		return true
	}
	fparts := strings.Split(filter, "/")
	tparts := strings.Split(topic, "/")
	if len(fparts) != len(tparts) {
		return false
	}
	for i, part := range fparts {
		if part == "+" {
			continue
		}
		if part != tparts[i] {
			return false
		}
	}
	return true
}
