package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dd0wney/cluso-relay/pkg/relayitem"
)

// MemStore is an in-process relay store. It backs tests and single-host deployments.
type MemStore struct {
	items   map[string]*relayitem.Item
	mu      sync.RWMutex
	stamps  *stamper
	feed    *Feed
	closed  bool
	failErr error // injected fault, returned by every operation while set
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return NewMemStoreWithClock(time.Now)
}

// NewMemStoreWithClock creates an empty store whose stamps come from now
func NewMemStoreWithClock(now func() time.Time) *MemStore {
	return &MemStore{
		items:  make(map[string]*relayitem.Item),
		stamps: newStamper(now),
		feed:   NewFeed(),
	}
}

func (s *MemStore) checkLocked() error {
	if s.closed {
		return ErrStoreClosed
	}
	return s.failErr
}

// Submit implements Store
func (s *MemStore) Submit(ctx context.Context, key string, timestamp int64, payload []byte, force bool) (*relayitem.Item, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if err := s.checkLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}

	existing := s.items[key]
	if !force && !relayitem.Accepts(existing, timestamp) {
		s.mu.Unlock()
		return nil, nil
	}

	it := &relayitem.Item{
		Key:       key,
		Timestamp: timestamp,
		Stamp:     s.stamps.next(),
		Payload:   append([]byte(nil), payload...),
	}
	s.items[key] = it
	out := it.Clone()
	s.mu.Unlock()

	s.feed.Publish(it)
	return out, nil
}

// Get implements Reader
func (s *MemStore) Get(ctx context.Context, key string) (*relayitem.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.checkLocked(); err != nil {
		return nil, err
	}
	return s.items[key].Clone(), nil
}

// Query implements Reader
func (s *MemStore) Query(ctx context.Context, q Query) ([]relayitem.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	if err := s.checkLocked(); err != nil {
		s.mu.RUnlock()
		return nil, err
	}
	out := make([]relayitem.Item, 0)
	for _, it := range s.items {
		if q.Matches(it) {
			out = append(out, *it.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Stamp < out[j].Stamp })
	return out, nil
}

// Watch implements Reader
func (s *MemStore) Watch(ctx context.Context) (<-chan relayitem.Item, error) {
	s.mu.RLock()
	err := s.checkLocked()
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return s.feed.Subscribe(ctx)
}

// Ping implements Store
func (s *MemStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkLocked()
}

// Len returns the number of keys held
func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// SetFault makes every operation fail with err until cleared with nil.
// Tests use it to simulate an unreachable store.
func (s *MemStore) SetFault(err error) {
	s.mu.Lock()
	s.failErr = err
	s.mu.Unlock()
}

// Close implements Store
func (s *MemStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.feed.Shutdown()
	return nil
}

var _ Store = (*MemStore)(nil)
