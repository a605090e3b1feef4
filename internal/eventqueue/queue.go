// Package eventqueue implements the min-heap of scheduled failure
// events, ordered by simulated time with a stable tiebreak so tests
// are deterministic.
package eventqueue

import "container/heap"

// Event is a scheduled failure for one component.
type Event struct {
	SimTimeHours float64
	ComponentID  string
	index        int // insertion sequence number, the stable tiebreak
}

// innerHeap implements heap.Interface; Queue wraps it so callers never
// touch container/heap directly.
type innerHeap []*Event

func (h innerHeap) Len() int { return len(h) }
func (h innerHeap) Less(i, j int) bool {
	if h[i].SimTimeHours != h[j].SimTimeHours {
		return h[i].SimTimeHours < h[j].SimTimeHours
	}
	return h[i].index < h[j].index // stable tiebreak: insertion order
}
func (h innerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *innerHeap) Push(x any)   { *h = append(*h, x.(*Event)) }
func (h *innerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Queue is the scheduled-event min-heap: push, pop_min, peek, empty.
type Queue struct {
	h       innerHeap
	nextIdx int
}

// New returns an empty queue.
func New() *Queue {
	q := &Queue{}
	heap.Init(&q.h)
	return q
}

// Push schedules a failure event.
func (q *Queue) Push(simTimeHours float64, componentID string) {
	e := &Event{SimTimeHours: simTimeHours, ComponentID: componentID, index: q.nextIdx}
	q.nextIdx++
	heap.Push(&q.h, e)
}

// Pop removes and returns the earliest-scheduled event.
func (q *Queue) Pop() *Event {
	if q.Empty() {
		return nil
	}
	return heap.Pop(&q.h).(*Event)
}

// Peek returns the earliest-scheduled event without removing it.
func (q *Queue) Peek() *Event {
	if q.Empty() {
		return nil
	}
	return q.h[0]
}

// Empty reports whether the queue has no pending events.
func (q *Queue) Empty() bool {
	return len(q.h) == 0
}

// Len reports the number of pending events.
func (q *Queue) Len() int {
	return len(q.h)
}

// Reset empties the queue for the next iteration without reallocating
// capacity.
func (q *Queue) Reset() {
	q.h = q.h[:0]
	q.nextIdx = 0
}
