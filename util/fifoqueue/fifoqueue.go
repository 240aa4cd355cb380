package fifoqueue

import (
	"sync"

	"github.com/gammazero/deque"
)

// FIFOQueue implements synchronized FIFO queue. If capacity is limited,
// writing to the full queue drops the oldest element
type FIFOQueue[T any] struct {
	d        *deque.Deque[T]
	mutex    sync.RWMutex
	capacity int
}

// New creates queue. Capacity 0 or omitted means unlimited
func New[T any](capacity ...int) *FIFOQueue[T] {
	ret := &FIFOQueue[T]{
		d: new(deque.Deque[T]),
	}
	if len(capacity) > 0 && capacity[0] > 0 {
		ret.capacity = capacity[0]
	}
	return ret
}

// Write pushes element. Returns true if the oldest element was dropped
func (q *FIFOQueue[T]) Write(elem T) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.d.PushBack(elem)
	if q.capacity > 0 && q.d.Len() > q.capacity {
		q.d.PopFront()
		return true
	}
	return false
}

// Read pops the oldest element
func (q *FIFOQueue[T]) Read() (T, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.d.Len() == 0 {
		var nilT T
		return nilT, false
	}
	return q.d.PopFront(), true
}

// Elements returns copy of the content, oldest first
func (q *FIFOQueue[T]) Elements() []T {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	ret := make([]T, q.d.Len())
	for i := range ret {
		ret[i] = q.d.At(i)
	}
	return ret
}

func (q *FIFOQueue[T]) Len() int {
	q.mutex.RLock()
	defer q.mutex.RUnlock()

	return q.d.Len()
}

func (q *FIFOQueue[T]) Capacity() int {
	return q.capacity
}
