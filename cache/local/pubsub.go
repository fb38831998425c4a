package local

import (
	"context"
	"sync"
)

// LocalMessage is an in-process pub/sub message.
type LocalMessage struct {
	Channel string
	Payload string
}

// LocalPubSub is an in-process fan-out pub/sub. Slow subscribers lose
// messages rather than block publishers.
type LocalPubSub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *LocalMessage]struct{}
	bufSize     int
}

// NewPubSub creates a new LocalPubSub with the given per-subscriber buffer size.
func NewPubSub(bufSize int) *LocalPubSub {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &LocalPubSub{
		subscribers: make(map[string]map[chan *LocalMessage]struct{}),
		bufSize:     bufSize,
	}
}

// Publish sends a message to all subscribers of the given channel.
func (ps *LocalPubSub) Publish(_ context.Context, channel, message string) error {
	msg := &LocalMessage{Channel: channel, Payload: message}
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	for ch := range ps.subscribers[channel] {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns one channel receiving messages from all given channels,
// and an idempotent cancel function that closes it.
func (ps *LocalPubSub) Subscribe(_ context.Context, channels ...string) (<-chan *LocalMessage, func(), error) {
	ch := make(chan *LocalMessage, ps.bufSize)

	ps.mu.Lock()
	for _, name := range channels {
		if ps.subscribers[name] == nil {
			ps.subscribers[name] = make(map[chan *LocalMessage]struct{})
		}
		ps.subscribers[name][ch] = struct{}{}
	}
	ps.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			ps.mu.Lock()
			defer ps.mu.Unlock()
			for _, name := range channels {
				delete(ps.subscribers[name], ch)
				if len(ps.subscribers[name]) == 0 {
					delete(ps.subscribers, name)
				}
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}
