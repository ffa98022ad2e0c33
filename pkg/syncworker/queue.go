package syncworker

import (
	"sync"

	"github.com/dd0wney/cluso-relay/pkg/relayitem"
)

// itemQueue is an unbounded FIFO safe for one producer goroutine and one consumer
type itemQueue struct {
	items []*relayitem.Item
	head  int
	mu    sync.Mutex
}

func (q *itemQueue) push(it *relayitem.Item) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, it)
	return len(q.items) - q.head
}

func (q *itemQueue) pop() (*relayitem.Item, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		return nil, 0
	}
	it := q.items[q.head]
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return it, len(q.items) - q.head
}

func (q *itemQueue) clear() {
	q.mu.Lock()
	q.items = nil
	q.head = 0
	q.mu.Unlock()
}

func (q *itemQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
