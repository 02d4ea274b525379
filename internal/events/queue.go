package events

import "sync"

// Queue is a bounded, thread-safe FIFO of batches. When full, the oldest
// batch is dropped to make room so that emitters never block.
type Queue struct {
	mu       sync.Mutex
	batches  []Batch
	head     int // next write position
	tail     int // next read position
	count    int
	capacity int
	dropped  int64
	ready    chan struct{}
}

// NewQueue creates a queue holding at most capacity batches.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 10000
	}
	return &Queue{
		batches:  make([]Batch, capacity),
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// Enqueue adds a batch, dropping the oldest if necessary. It reports whether
// a batch was dropped.
func (q *Queue) Enqueue(b Batch) (dropped bool) {
	q.mu.Lock()
	if q.count >= q.capacity {
		q.batches[q.tail] = nil
		q.tail = (q.tail + 1) % q.capacity
		q.count--
		q.dropped++
		dropped = true
	}
	q.batches[q.head] = b
	q.head = (q.head + 1) % q.capacity
	q.count++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return dropped
}

// DequeueBatches removes up to n batches in FIFO order.
func (q *Queue) DequeueBatches(n int) []Batch {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil
	}
	if n > q.count {
		n = q.count
	}
	out := make([]Batch, n)
	for i := 0; i < n; i++ {
		out[i] = q.batches[q.tail]
		q.batches[q.tail] = nil
		q.tail = (q.tail + 1) % q.capacity
	}
	q.count -= n
	return out
}

// Ready is signalled after an enqueue.
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Len returns the number of queued batches.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}

// Dropped returns the total number of dropped batches.
func (q *Queue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
