package orchestrator

import (
	"container/heap"

	"github.com/kadirpekel/forge/pkg/tool"
)

// queuedTask is one pending invocation waiting for a worker. seq
// preserves submission order as the heap's tiebreaker so that, within a
// priority band, dispatch is FIFO (spec.md §4.4 "Ordering guarantee").
type queuedTask struct {
	task *Task
	seq   uint64
}

// taskHeap is a container/heap.Interface ordering by (priority desc, seq
// asc) — the same (priority, submission_timestamp) tuple spec.md §4.4
// specifies, with a monotonic counter standing in for wall-clock time so
// two tasks submitted within the same timestamp still order deterministically.
type taskHeap []*queuedTask

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	pi, pj := h[i].task.Invocation.Priority, h[j].task.Invocation.Priority
	if pi != pj {
		return pi > pj
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(*queuedTask))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// priorityQueue wraps taskHeap behind the standard heap operations and
// tracks per-band depth for metrics() without a second scan.
type priorityQueue struct {
	h     taskHeap
	depth map[tool.Priority]int
}

func newPriorityQueue() *priorityQueue {
	pq := &priorityQueue{depth: make(map[tool.Priority]int)}
	heap.Init(&pq.h)
	return pq
}

func (pq *priorityQueue) push(t *queuedTask) {
	heap.Push(&pq.h, t)
	pq.depth[t.task.Invocation.Priority]++
}

func (pq *priorityQueue) pop() *queuedTask {
	if pq.h.Len() == 0 {
		return nil
	}
	t := heap.Pop(&pq.h).(*queuedTask)
	pq.depth[t.task.Invocation.Priority]--
	return t
}

func (pq *priorityQueue) len() int { return pq.h.Len() }

func (pq *priorityQueue) drain() []*queuedTask {
	out := make([]*queuedTask, 0, pq.h.Len())
	for pq.h.Len() > 0 {
		out = append(out, heap.Pop(&pq.h).(*queuedTask))
	}
	for k := range pq.depth {
		pq.depth[k] = 0
	}
	return out
}
