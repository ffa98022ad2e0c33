package store

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dd0wney/cluso-relay/pkg/relayitem"
)

// Common sentinel errors
var (
	ErrStoreClosed = errors.New("store is closed")
	ErrEmptyKey    = errors.New("relay item key cannot be empty")
)

// StampUnbounded is the upper bound used for open-ended stamp queries
const StampUnbounded int64 = math.MaxInt64

// Query selects items by stamp window and key prefix.
// StampLo and StampHi are inclusive; an empty Prefixes matches every key.
type Query struct {
	StampLo  int64
	StampHi  int64
	Prefixes []string
}

// Matches reports whether the item satisfies the query
func (q Query) Matches(it *relayitem.Item) bool {
	if it.Stamp < q.StampLo || it.Stamp > q.StampHi {
		return false
	}
	if len(q.Prefixes) == 0 {
		return true
	}
	for _, p := range q.Prefixes {
		if strings.HasPrefix(it.Key, p) {
			return true
		}
	}
	return false
}

// Reader is the read side of a relay store. It is all a partner needs to sync from us.
type Reader interface {
	// Get returns the item stored under key, or nil if there is none
	Get(ctx context.Context, key string) (*relayitem.Item, error)
	// Query returns matching items ordered by stamp
	Query(ctx context.Context, q Query) ([]relayitem.Item, error)
	// Watch streams every item written after the call. The channel is closed when ctx
	// ends or the store closes. Slow consumers may miss items.
	Watch(ctx context.Context) (<-chan relayitem.Item, error)
}

// Store is a replicated record store with last-writer-wins upsert.
type Store interface {
	Reader

	// Submit writes an item. Without force the write happens only if the key is absent or
	// timestamp is strictly greater than the stored one. Returns the stored item, or nil
	// when the write was rejected as stale.
	Submit(ctx context.Context, key string, timestamp int64, payload []byte, force bool) (*relayitem.Item, error)

	// Ping checks that the store is reachable
	Ping(ctx context.Context) error

	Close() error
}

// stamper hands out strictly increasing stamps derived from wall-clock milliseconds.
type stamper struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func newStamper(now func() time.Time) *stamper {
	if now == nil {
		now = time.Now
	}
	return &stamper{now: now}
}

func (s *stamper) next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp := s.now().UnixMilli()
	if stamp <= s.last {
		stamp = s.last + 1
	}
	s.last = stamp
	return stamp
}

// observe makes sure future stamps are greater than one already persisted
func (s *stamper) observe(stamp int64) {
	s.mu.Lock()
	if stamp > s.last {
		s.last = stamp
	}
	s.mu.Unlock()
}
