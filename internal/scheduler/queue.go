package scheduler

import (
	"context"
	"sync"
)

// chanQueue is a bounded queue. The End sentinel bypasses the buffer so the
// consumer can push it without blocking on its own queue.
type chanQueue struct {
	ch      chan Item
	end     chan struct{}
	endOnce sync.Once
}

func newChanQueue(size int) *chanQueue {
	return &chanQueue{ch: make(chan Item, size), end: make(chan struct{})}
}

func (q *chanQueue) Push(ctx context.Context, item Item) error {
	if item.Kind == ItemEnd {
		q.endOnce.Do(func() { close(q.end) })
		return nil
	}
	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pop returns buffered items first; End is only reported once the buffer is empty.
func (q *chanQueue) Pop(ctx context.Context) (Item, error) {
	select {
	case item := <-q.ch:
		return item, nil
	default:
	}
	select {
	case item := <-q.ch:
		return item, nil
	case <-q.end:
		return EndItem(), nil
	case <-ctx.Done():
		return Item{}, ctx.Err()
	}
}

// listQueue is an unbounded queue guarded by a mutex.
type listQueue struct {
	mu     sync.Mutex
	items  []Item
	notify chan struct{}
}

func newListQueue() *listQueue {
	return &listQueue{notify: make(chan struct{}, 1)}
}

func (q *listQueue) Push(ctx context.Context, item Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *listQueue) Pop(ctx context.Context) (Item, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items[0] = Item{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-ctx.Done():
			return Item{}, ctx.Err()
		}
	}
}

func (q *listQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
