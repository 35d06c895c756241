// Package events fans chat events out to in-process subscribers, feeding the
// SSE endpoint. Durable history lives in the store; the broker only handles
// live delivery.
package events

import (
	"context"
	"strings"
	"sync"
)

// Well-known event types. Anything else passes through untouched.
const (
	TypeChatStarted      = "chat.started"
	TypeMessageUser      = "message.user"
	TypeMessageAssistant = "message.assistant"
	TypeSearchStarted    = "search.started"
	TypeSearchCompleted  = "search.completed"
	TypeAnswerStarted    = "answer.started"
	TypeChatFailed       = "chat.failed"
	TypeChatCancelled    = "chat.cancelled"
	TypeChatTitleUpdated = "chat.title.updated"
)

type ChatEvent struct {
	ChatID  string         `json:"chat_id"`
	Seq     int64          `json:"seq"`
	Type    string         `json:"type"`
	Ts      string         `json:"ts"`
	Source  string         `json:"source"`
	TraceID string         `json:"trace_id,omitempty"`
	Payload map[string]any `json:"payload"`
}

type Broker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan ChatEvent]struct{}
}

func NormalizeType(eventType string) string {
	return strings.TrimSpace(strings.ToLower(eventType))
}

func NewBroker() *Broker {
	return &Broker{
		subscribers: map[string]map[chan ChatEvent]struct{}{},
	}
}

// Subscribe registers a listener for one chat. The channel is buffered and
// closed when ctx is cancelled.
func (b *Broker) Subscribe(ctx context.Context, chatID string) <-chan ChatEvent {
	ch := make(chan ChatEvent, 16)

	b.mu.Lock()
	if b.subscribers[chatID] == nil {
		b.subscribers[chatID] = map[chan ChatEvent]struct{}{}
	}
	b.subscribers[chatID][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		if b.subscribers[chatID] != nil {
			delete(b.subscribers[chatID], ch)
			if len(b.subscribers[chatID]) == 0 {
				delete(b.subscribers, chatID)
			}
		}
		// Close while holding the lock so Publish, which sends under the
		// read lock, can never hit a closed channel.
		close(ch)
		b.mu.Unlock()
	}()

	return ch
}

// Publish delivers to every live subscriber of the event's chat. Slow
// subscribers drop events rather than block the publisher.
func (b *Broker) Publish(event ChatEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers[event.ChatID] {
		select {
		case ch <- event:
		default:
		}
	}
}
