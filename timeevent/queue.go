package timeevent

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Callback is invoked when a scheduled event's time arrives. now is the
// queue's current notion of time at the moment of firing. The callback may
// re-schedule or cancel any event, including the one currently firing; the
// queue tolerates this re-entrant mutation (spec §4.2).
type Callback func(now time.Time)

// Handle identifies a scheduled event so that it can later be updated or
// canceled.
type Handle struct {
	seq      uint64
	when     time.Time
	cb       Callback
	index    int // position in the heap, -1 once removed
	canceled bool
}

// Queue is a min-heap of absolute-time callbacks, the shared scheduling
// primitive behind every protocol timer: probe retries, announce
// repetitions, cache expiry, and known-answer timeouts.
//
// A Queue is not safe for concurrent use from multiple goroutines; it is
// designed to be owned by a single event-loop goroutine, matching the
// single-threaded cooperative model of spec §5.
type Queue struct {
	mu    sync.Mutex
	heap  eventHeap
	seq   uint64
	clock Clock
}

// New returns an empty Queue driven by clk.
func New(clk Clock) *Queue {
	return &Queue{clock: clk}
}

// Schedule arranges for cb to be invoked once the clock reaches t.
func (q *Queue) Schedule(t time.Time, cb Callback) *Handle {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.seq++
	h := &Handle{seq: q.seq, when: t, cb: cb, index: -1}
	heap.Push(&q.heap, h)
	return h
}

// Update reschedules h to fire at t'. It is a no-op if h has already fired or
// been canceled.
func (q *Queue) Update(h *Handle, t time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if h.canceled || h.index < 0 {
		return
	}

	h.when = t
	heap.Fix(&q.heap, h.index)
}

// Cancel removes h from the queue. It is a no-op if h has already fired or
// been canceled.
func (q *Queue) Cancel(h *Handle) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.cancelLocked(h)
}

func (q *Queue) cancelLocked(h *Handle) {
	h.canceled = true
	if h.index >= 0 {
		heap.Remove(&q.heap, h.index)
	}
}

// Next returns the earliest deadline currently scheduled, so that an event
// loop built on top of the queue can compute its next sleep. ok is false if
// the queue is empty.
func (q *Queue) Next() (t time.Time, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return time.Time{}, false
	}

	return q.heap[0].when, true
}

// Fire pops and invokes every event whose deadline is at or before now. It
// returns the number of callbacks invoked.
//
// Fire snapshots nothing: it re-reads the heap top after every callback, so a
// callback that reschedules or cancels another due event (including itself,
// via Update/Cancel called from within cb) is observed correctly.
func (q *Queue) Fire(now time.Time) int {
	n := 0

	for {
		q.mu.Lock()
		if len(q.heap) == 0 || q.heap[0].when.After(now) {
			q.mu.Unlock()
			return n
		}

		h := heap.Pop(&q.heap).(*Handle)
		h.index = -1
		cb := h.cb
		q.mu.Unlock()

		if cb != nil {
			cb(now)
		}
		n++
	}
}

// Run drives the queue against clk until ctx is canceled, sleeping between
// the current time and the next scheduled deadline and firing due events as
// they arrive. It is the production event loop; tests instead call Fire
// directly against a VirtualClock after advancing it.
func (q *Queue) Run(ctx context.Context) error {
	for {
		now := q.clock.Now()
		q.Fire(now)

		next, ok := q.Next()
		if !ok {
			// Idle until something new is scheduled or ctx is canceled. A
			// real loop would be woken by Schedule(); since this Queue is
			// meant to be driven alongside socket readiness in mdns.Server,
			// a short poll is an acceptable fallback for the standalone
			// case.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.clock.After(100 * time.Millisecond):
				continue
			}
		}

		d := next.Sub(now)
		if d < 0 {
			d = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.clock.After(d):
		}
	}
}

// eventHeap implements container/heap.Interface over *Handle, ordered by
// When, ties broken by insertion sequence.
type eventHeap []*Handle

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *eventHeap) Push(x interface{}) {
	e := x.(*Handle)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
