package events

import (
	"context"
	"sync"
)

// memorySubscription is the in-process stand-in for a redis PubSub.
type memorySubscription struct {
	channels map[string]bool
	msgChan  chan Message
	closeCh  chan struct{}
	closed   bool
	mu       sync.RWMutex
}

func newMemorySubscription(channels []string) *memorySubscription {
	set := make(map[string]bool, len(channels))
	for _, ch := range channels {
		set[ch] = true
	}
	return &memorySubscription{
		channels: set,
		msgChan:  make(chan Message, 100),
		closeCh:  make(chan struct{}),
	}
}

func (m *memorySubscription) Channel() <-chan Message {
	return m.msgChan
}

func (m *memorySubscription) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closeCh)
		close(m.msgChan)
	}
	return nil
}

// deliver drops the message when the subscriber is not keeping up.
func (m *memorySubscription) deliver(msg Message) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed || !m.channels[msg.Channel] {
		return
	}
	select {
	case m.msgChan <- msg:
	default:
	}
}

// memoryHub fans published messages out to in-process subscriptions.
type memoryHub struct {
	subscribers map[string][]*memorySubscription
	mu          sync.RWMutex
}

func newMemoryHub() *memoryHub {
	return &memoryHub{subscribers: make(map[string][]*memorySubscription)}
}

func (h *memoryHub) subscribe(ctx context.Context, channels ...string) *memorySubscription {
	sub := newMemorySubscription(channels)

	h.mu.Lock()
	for _, ch := range channels {
		h.subscribers[ch] = append(h.subscribers[ch], sub)
	}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.closeCh:
		}
		h.remove(sub, channels)
	}()

	return sub
}

func (h *memoryHub) remove(sub *memorySubscription, channels []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range channels {
		subs := h.subscribers[ch]
		for i, s := range subs {
			if s == sub {
				h.subscribers[ch] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(h.subscribers[ch]) == 0 {
			delete(h.subscribers, ch)
		}
	}
}

func (h *memoryHub) publish(channel, payload string) {
	h.mu.RLock()
	subs := append([]*memorySubscription(nil), h.subscribers[channel]...)
	h.mu.RUnlock()

	msg := Message{Channel: channel, Payload: payload}
	for _, sub := range subs {
		sub.deliver(msg)
	}
}
