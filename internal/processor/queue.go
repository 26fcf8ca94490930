// Package processor is the node's late-processing stage: every message
// past the early VERSON handshake (handled directly by internal/p2p's
// Manager) lands here, ordered by internal/wire's MessageType values —
// which double as priority, lower draining first — and is handled by a
// small pool of worker goroutines waiting on a shared condition
// variable. Grounded on original_source/src/Network/MessageProcessor.{hpp,cpp}'s
// priority queue plus condition-variable worker pool, translated to
// container/heap and sync.Cond.
package processor

import (
	"container/heap"
	"sync"

	"duskledger/internal/p2p"
	"duskledger/internal/wire"
)

type job struct {
	conn    *p2p.Connection
	msgType wire.MessageType
	payload []byte
}

// jobHeap orders by MessageType ascending: lower values (VERSION,
// ACK, INVENTORY, GETDATA) drain before higher ones (TRANSACTION,
// proposals, ACCOUNT, BLOCK).
type jobHeap []job

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].msgType < h[j].msgType }
func (h jobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x interface{}) { *h = append(*h, x.(job)) }
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// queue is a priority queue guarded by a condition variable: Dispatch
// pushes and signals, workers wait and pop.
type queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	heap    jobHeap
	stopped bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(j job) {
	q.mu.Lock()
	heap.Push(&q.heap, j)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop blocks until a job is available or the queue stops, in which case
// ok is false.
func (q *queue) pop() (job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.heap) == 0 && !q.stopped {
		q.cond.Wait()
	}
	if len(q.heap) == 0 {
		return job{}, false
	}
	return heap.Pop(&q.heap).(job), true
}

func (q *queue) stop() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
