package store

import (
	"context"
	"sync"

	"github.com/dd0wney/cluso-relay/pkg/relayitem"
)

// feedBufferSize is the per-subscriber buffer. Items are dropped for a subscriber whose
// buffer is full; the partner's periodic resync recovers them.
const feedBufferSize = 256

// Feed fans written items out to watchers.
type Feed struct {
	subscribers map[*feedSub]struct{}
	mu          sync.RWMutex
	isShutdown  bool
}

type feedSub struct {
	ch        chan relayitem.Item
	closeOnce sync.Once
}

func (s *feedSub) close() {
	s.closeOnce.Do(func() {
		close(s.ch)
	})
}

// NewFeed creates a new feed
func NewFeed() *Feed {
	return &Feed{
		subscribers: make(map[*feedSub]struct{}),
	}
}

// Subscribe returns a channel receiving every item published after the call.
// The channel is closed when ctx ends or the feed shuts down.
func (f *Feed) Subscribe(ctx context.Context) (<-chan relayitem.Item, error) {
	f.mu.Lock()
	if f.isShutdown {
		f.mu.Unlock()
		return nil, ErrStoreClosed
	}
	sub := &feedSub{ch: make(chan relayitem.Item, feedBufferSize)}
	f.subscribers[sub] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.unsubscribe(sub)
	}()

	return sub.ch, nil
}

func (f *Feed) unsubscribe(sub *feedSub) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.subscribers, sub)
	sub.close()
}

// Publish delivers a copy of the item to every subscriber without blocking.
// Sends happen under the read lock so a subscriber cannot be closed mid-send.
func (f *Feed) Publish(it *relayitem.Item) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.isShutdown {
		return
	}
	for sub := range f.subscribers {
		select {
		case sub.ch <- *it.Clone():
		default:
		}
	}
}

// SubscriberCount returns the number of live subscriptions
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

// Shutdown closes every subscription. It is idempotent.
func (f *Feed) Shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.isShutdown {
		return
	}
	f.isShutdown = true
	for sub := range f.subscribers {
		sub.close()
		delete(f.subscribers, sub)
	}
}
