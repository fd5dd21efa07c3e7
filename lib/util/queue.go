package util

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// queueNode is a single element of the linked list backing a Queue
type queueNode[T any] struct {
	value T
	next  atomic.Pointer[queueNode[T]]
}

// Queue is an unbounded multi-producer single-consumer queue.
//
// Producers append with Push without taking a lock (CAS on the tail node), so event
// callbacks that feed the queue never block on the consumer. A single internal goroutine
// moves items from the list to the channel returned by Recv.
//
// Ordering: items pushed by one producer are delivered in push order. Items pushed
// concurrently by different producers are delivered in the order their CAS succeeded.
type Queue[T any] struct {
	head    atomic.Pointer[queueNode[T]]
	tail    atomic.Pointer[queueNode[T]]
	out     chan T
	closed  atomic.Bool
	pending atomic.Int64

	mu   sync.Mutex
	cond *sync.Cond
	done sync.WaitGroup
}

// NewQueue creates a new queue and starts its delivery goroutine.
func NewQueue[T any]() *Queue[T] {
	sentinel := &queueNode[T]{}

	q := &Queue[T]{out: make(chan T)}
	q.cond = sync.NewCond(&q.mu)
	q.head.Store(sentinel)
	q.tail.Store(sentinel)

	q.done.Add(1)
	go q.deliver()

	return q
}

// Push appends an item to the queue.
// Returns false if the queue has been closed.
//
// Thread-safety: This method is thread-safe and can be called concurrently.
func (q *Queue[T]) Push(value T) bool {
	if q.closed.Load() {
		return false
	}

	n := &queueNode[T]{value: value}
	spins := 0
	for {
		tail := q.tail.Load()
		next := tail.next.Load()
		if next == nil {
			if tail.next.CompareAndSwap(nil, n) {
				// a failed CAS here means another producer already advanced the tail
				q.tail.CompareAndSwap(tail, n)
				q.pending.Add(1)

				q.mu.Lock()
				q.cond.Signal()
				q.mu.Unlock()
				return true
			}
		} else {
			// help a producer that linked its node but did not move the tail yet
			q.tail.CompareAndSwap(tail, next)
		}

		if spins < 8 {
			spins++
		}
		for i := 0; i < spins; i++ {
			runtime.Gosched()
		}
	}
}

// Recv returns the channel the single consumer reads from.
// The channel is closed after Close was called and all queued items were delivered.
func (q *Queue[T]) Recv() <-chan T {
	return q.out
}

// Close stops accepting new items. Items already queued are still delivered.
func (q *Queue[T]) Close() {
	q.closed.Store(true)

	q.mu.Lock()
	q.cond.Signal()
	q.mu.Unlock()
}

// Wait blocks until the delivery goroutine exited (after Close and a fully drained queue).
func (q *Queue[T]) Wait() {
	q.done.Wait()
}

// Len returns the number of items pushed but not yet handed to the consumer.
func (q *Queue[T]) Len() int {
	return int(q.pending.Load())
}

// deliver moves items from the linked list to the output channel
func (q *Queue[T]) deliver() {
	defer q.done.Done()
	defer close(q.out)

	var zero T
	for {
		head := q.head.Load()
		next := head.next.Load()

		if next != nil {
			value := next.value
			q.head.Store(next)
			next.value = zero // drop the reference, next is the new sentinel
			q.pending.Add(-1)
			q.out <- value
			continue
		}

		if q.closed.Load() {
			return
		}

		q.mu.Lock()
		if q.head.Load().next.Load() == nil && !q.closed.Load() {
			q.cond.Wait()
		}
		q.mu.Unlock()
	}
}
