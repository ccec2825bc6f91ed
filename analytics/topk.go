package analytics

import "container/heap"

// usageHeap is a min-heap over (key, value) pairs, used to select the
// top-N entries by some dimension without sorting the entire key set.
type usageHeap []KeyUsage

func (h usageHeap) Len() int            { return len(h) }
func (h usageHeap) Less(i, j int) bool  { return h[i].Value < h[j].Value }
func (h usageHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *usageHeap) Push(x interface{}) { *h = append(*h, x.(KeyUsage)) }
func (h *usageHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// topK returns the N keys with the largest extract(key, stats) value, in
// descending order, using a bounded min-heap so the cost is
// O(n log N) rather than O(n log n) from a full sort.
func topK(stats map[string]*KeyStats, n int, extract func(string, *KeyStats) float64) []KeyUsage {
	if n <= 0 {
		return nil
	}
	h := &usageHeap{}
	heap.Init(h)
	for k, v := range stats {
		usage := KeyUsage{Key: k, Value: extract(k, v)}
		if h.Len() < n {
			heap.Push(h, usage)
		} else if usage.Value > (*h)[0].Value {
			heap.Pop(h)
			heap.Push(h, usage)
		}
	}
	out := make([]KeyUsage, h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(h).(KeyUsage)
	}
	return out
}
