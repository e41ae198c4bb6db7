package hsm

import "sync"

// eventQueue is an unbounded, thread-safe FIFO of pending events. It never
// rejects a push; a queue that grows without bound simply means nothing is
// draining it. The passive dispatcher only ever needs push/popAll (Execute
// drains everything posted so far on the caller's goroutine); the active
// dispatcher instead blocks its worker on popOne until an event is
// available or the queue is closed, matching a standard producer/consumer
// split.
type eventQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Event
	closed bool
}

func newEventQueue() *eventQueue {
	q := &eventQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues an event and wakes any blocked consumer.
func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	q.items = append(q.items, e)
	q.mu.Unlock()
	q.cond.Signal()
}

// popAll atomically drains every event currently queued, in FIFO order.
// Used by the passive dispatcher's Execute, which must also observe events
// enqueued reentrantly by the dispatch it is currently running.
func (q *eventQueue) popAll() []Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	items := q.items
	q.items = nil
	return items
}

// popOne blocks until an event is available, returning (event, true), or
// until the queue is closed and drained, returning (zero, false).
func (q *eventQueue) popOne() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return Event{}, false
	}
	e := q.items[0]
	q.items = q.items[1:]
	return e, true
}

// close marks the queue closed. Any events already queued are still
// delivered by popOne; only once the queue is empty does popOne start
// returning false.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
