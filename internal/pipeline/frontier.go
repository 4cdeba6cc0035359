package pipeline

import (
	"container/heap"

	"newspipe/pkg/models"
)

// frontier is the queue of pending fetch requests: higher priority first,
// FIFO within a priority through a monotonic sequence number. Only the
// coordinator's event loop touches it, so it carries no lock.
type frontier struct {
	items frontierHeap
	seq   uint64
}

func (f *frontier) push(req models.FetchRequest) {
	f.seq++
	heap.Push(&f.items, frontierItem{req: req, seq: f.seq})
}

func (f *frontier) peek() (models.FetchRequest, bool) {
	if len(f.items) == 0 {
		return models.FetchRequest{}, false
	}
	return f.items[0].req, true
}

func (f *frontier) pop() (models.FetchRequest, bool) {
	if len(f.items) == 0 {
		return models.FetchRequest{}, false
	}
	return heap.Pop(&f.items).(frontierItem).req, true
}

func (f *frontier) len() int { return len(f.items) }

func (f *frontier) clear() { f.items = f.items[:0] }

type frontierItem struct {
	req models.FetchRequest
	seq uint64
}

type frontierHeap []frontierItem

func (h frontierHeap) Len() int { return len(h) }

func (h frontierHeap) Less(i, j int) bool {
	if h[i].req.Priority != h[j].req.Priority {
		return h[i].req.Priority > h[j].req.Priority
	}
	return h[i].seq < h[j].seq
}

func (h frontierHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *frontierHeap) Push(x any) { *h = append(*h, x.(frontierItem)) }

func (h *frontierHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
